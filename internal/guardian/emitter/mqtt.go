package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/t2linux-tools/t2guard/pkg/log"
	pkgmqtt "github.com/t2linux-tools/t2guard/pkg/mqtt"
	"github.com/t2linux-tools/t2guard/pkg/options"
)

// MQTT publishes events as JSON to {topicRoot}/events/{host}. It lets a
// fleet operator watch recovery activity across machines without any
// inbound access to the laptops.
type MQTT struct {
	client pkgmqtt.Client
	topic  string
	host   string
}

type mqttPayload struct {
	Host string `json:"host"`
	Event
}

// NewMQTT creates and starts the MQTT sink. The connection is managed
// in the background with automatic reconnect; publishes while offline
// are dropped (events are observability, not state).
func NewMQTT(ctx context.Context, opts *options.MqttOptions) (*MQTT, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	cfg := opts.ToClientConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("t2guard-%s", host)
	}

	client, err := pkgmqtt.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		return nil, err
	}

	return &MQTT{
		client: client,
		topic:  fmt.Sprintf("%s/events/%s", opts.TopicRoot, host),
		host:   host,
	}, nil
}

func (m *MQTT) Emit(ctx context.Context, ev Event) {
	payload, err := json.Marshal(mqttPayload{Host: m.host, Event: ev})
	if err != nil {
		log.Error(err, "Failed to encode event payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.client.Publish(ctx, m.topic, 1, false, payload); err != nil {
		log.Warn("Event not published to broker", "topic", m.topic, "error", err)
	}
}

// Close disconnects the underlying client.
func (m *MQTT) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.client.Disconnect(ctx)
}
