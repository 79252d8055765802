// Package guardian ties the watchdog together: the kernel log watcher
// feeds recovery triggers through the cooldown gate into the reset
// sequencer, with events fanned out to the configured sinks.
package guardian

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/t2linux-tools/t2guard/internal/guardian/cooldown"
	"github.com/t2linux-tools/t2guard/internal/guardian/emitter"
	"github.com/t2linux-tools/t2guard/internal/guardian/executor"
	"github.com/t2linux-tools/t2guard/internal/guardian/sequencer"
	"github.com/t2linux-tools/t2guard/internal/guardian/server"
	"github.com/t2linux-tools/t2guard/internal/guardian/verify"
	"github.com/t2linux-tools/t2guard/internal/guardian/watcher"
	"github.com/t2linux-tools/t2guard/internal/pkg/metrics"
	"github.com/t2linux-tools/t2guard/pkg/log"
)

// ErrCoolingDown is returned when a trigger arrives inside the
// cooldown window.
var ErrCoolingDown = errors.New("recovery suppressed by cooldown")

// Guardian owns the recovery pipeline and its trigger sources.
type Guardian struct {
	cfg    *Config
	gate   *cooldown.Gate
	seq    *sequencer.Sequencer
	events emitter.Emitter
	watch  *watcher.Watcher
	srv    *server.Server
	logger log.Logger

	closeSinks func()

	mu   sync.Mutex
	last *sequencer.Attempt
}

// New wires the full pipeline from config. The MQTT sink, when
// configured, connects during construction so broker misconfiguration
// surfaces at startup.
func New(ctx context.Context, cfg *Config) (*Guardian, error) {
	runner := executor.NewRunner()
	modules := executor.NewModuleController(runner)
	services := executor.NewServiceController(runner)

	var sinks emitter.Multi
	closeSinks := func() {}

	if cfg.DesktopNotify {
		sinks = append(sinks, emitter.NewDesktop(runner))
	}

	if cfg.Mqtt.Enabled() {
		sink, err := emitter.NewMQTT(ctx, cfg.Mqtt)
		if err != nil {
			return nil, fmt.Errorf("connecting event broker: %w", err)
		}
		sinks = append(sinks, sink)
		closeSinks = sink.Close
	}

	var events emitter.Emitter = sinks
	if len(sinks) == 0 {
		events = emitter.Nop{}
	}

	engine := verify.New(cfg.Registry, verify.NewSysfsProbe(), modules, events)

	g := &Guardian{
		cfg:        cfg,
		gate:       cooldown.New(cfg.CooldownWindow),
		seq:        sequencer.New(cfg.Registry, modules, services, engine),
		events:     events,
		logger:     log.WithName("guardian"),
		closeSinks: closeSinks,
	}
	g.watch = watcher.New(g.onSignature)
	if cfg.Http.Enabled {
		g.srv = server.New(cfg.Http, g)
	}

	return g, nil
}

// Run starts the kernel log watcher and the status server and blocks
// until the context is cancelled or a component fails.
func (g *Guardian) Run(ctx context.Context) error {
	defer g.closeSinks()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return g.watch.Run(ctx)
	})

	if g.srv != nil {
		group.Go(func() error {
			return g.srv.Start(ctx)
		})
	}

	g.logger.Info("Watchdog running", "cooldown", g.cfg.CooldownWindow)

	return group.Wait()
}

// TriggerRecovery runs one full recovery attempt. Triggers inside the
// cooldown window return ErrCoolingDown; triggers while an attempt is
// already in flight return sequencer.ErrBusy. Both are dropped, never
// queued.
func (g *Guardian) TriggerRecovery(ctx context.Context, reason sequencer.TriggerReason) (*sequencer.Attempt, error) {
	if ok, remaining := g.gate.TryAcquire(); !ok {
		metrics.CooldownRejectionsTotal.Inc()
		g.logger.Info("Recovery suppressed by cooldown", "reason", reason, "remaining", remaining)
		return nil, ErrCoolingDown
	}

	g.notifyStart(ctx, reason)

	attempt, err := g.seq.Run(ctx, reason)
	if err != nil {
		if errors.Is(err, sequencer.ErrBusy) {
			g.logger.Debug("Recovery already in flight, trigger dropped", "reason", reason)
		}
		return nil, err
	}

	// The window opens on completion regardless of outcome so a
	// persistently dead device cannot retrigger on every log line.
	g.gate.MarkCompleted()

	g.mu.Lock()
	g.last = attempt
	g.mu.Unlock()

	return attempt, nil
}

// Status implements server.Provider.
func (g *Guardian) Status() server.Status {
	g.mu.Lock()
	last := g.last
	g.mu.Unlock()

	st := server.Status{
		Phase:                    g.seq.Phase(),
		CooldownWindowSeconds:    g.gate.Window().Seconds(),
		CooldownRemainingSeconds: g.gate.Remaining().Seconds(),
		LastAttempt:              last,
	}

	if t := g.gate.LastRecovery(); !t.IsZero() {
		st.LastRecovery = &t
	}

	return st
}

// onSignature is the watcher trigger. Cooldown refusals and in-flight
// drops are expected here and already logged.
func (g *Guardian) onSignature(ctx context.Context, sig watcher.Signature, line string) {
	_, err := g.TriggerRecovery(ctx, sequencer.TriggerSignatureMatch)
	if err != nil && !errors.Is(err, ErrCoolingDown) && !errors.Is(err, sequencer.ErrBusy) {
		g.logger.Error(err, "Recovery attempt failed to start", "signature", sig.Name)
	}
}

func (g *Guardian) notifyStart(ctx context.Context, reason sequencer.TriggerReason) {
	ev := emitter.Event{Time: time.Now()}

	switch reason {
	case sequencer.TriggerSignatureMatch:
		ev.Title = "Hardware hang detected"
		ev.Body = "WiFi firmware stopped responding. Resetting drivers now."
		ev.Severity = emitter.SeverityCritical
		ev.Icon = emitter.IconError
	case sequencer.TriggerManualExec:
		ev.Title = "Manual reset triggered"
		ev.Body = "Resetting WiFi and Bluetooth drivers."
		ev.Severity = emitter.SeverityNormal
		ev.Icon = emitter.IconRefresh
	default:
		ev.Title = "Reset sequence started"
		ev.Body = "Resetting WiFi and Bluetooth drivers."
		ev.Severity = emitter.SeverityNormal
		ev.Icon = emitter.IconRefresh
	}

	g.events.Emit(ctx, ev)
}
