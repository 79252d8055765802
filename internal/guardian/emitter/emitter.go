// Package emitter fans recovery events out to external sinks: the
// desktop notification daemon and, when configured, an MQTT broker.
// Sinks are fire-and-forget; a failing sink never fails a recovery.
package emitter

import (
	"context"
	"time"
)

// Severity is the urgency hint forwarded to sinks. Values mirror the
// notify-send urgency levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityNormal   Severity = "normal"
	SeverityCritical Severity = "critical"
)

// Well-known icon hints.
const (
	IconRefresh  = "view-refresh"
	IconError    = "dialog-error"
	IconWireless = "network-wireless"
)

// Event is one user-visible occurrence in the watchdog.
type Event struct {
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Severity Severity  `json:"severity"`
	Icon     string    `json:"icon,omitempty"`
	Time     time.Time `json:"time"`
}

// Emitter forwards events to a sink.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Multi fans a single event out to every sink.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, e := range m {
		e.Emit(ctx, ev)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}
