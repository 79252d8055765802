// Package verify confirms that the wireless and Bluetooth hardware is
// actually present after a reset, retrying narrowly per resource.
package verify

import (
	"context"
	"strings"
	"time"

	"github.com/t2linux-tools/t2guard/internal/guardian/emitter"
	"github.com/t2linux-tools/t2guard/internal/guardian/registry"
	"github.com/t2linux-tools/t2guard/pkg/log"
)

// ModuleOps is the narrow reload surface the engine needs; satisfied by
// executor.ModuleController.
type ModuleOps interface {
	Load(ctx context.Context, d registry.DriverSpec) error
	Unload(ctx context.Context, d registry.DriverSpec) error
}

const (
	// DefaultPasses is the confirmation pass budget.
	DefaultPasses = 3

	// DefaultPassWait is slept between passes after a narrow reload.
	DefaultPassWait = 2 * time.Second
)

// Result is the final verdict of a verification run.
type Result struct {
	WifiOK      bool
	BluetoothOK bool

	// Passes is the number of presence checks performed.
	Passes int
}

// OK reports whether both resources are present.
func (r Result) OK() bool { return r.WifiOK && r.BluetoothOK }

// Missing lists the absent resources.
func (r Result) Missing() []registry.Resource {
	var m []registry.Resource
	if !r.WifiOK {
		m = append(m, registry.ResourceWiFi)
	}
	if !r.BluetoothOK {
		m = append(m, registry.ResourceBluetooth)
	}
	return m
}

// Engine runs bounded verification passes. The retry is an explicit
// loop with a counter, never recursion, so the ceiling is testable.
type Engine struct {
	reg     *registry.Registry
	probe   Probe
	modules ModuleOps
	events  emitter.Emitter

	passes   int
	passWait time.Duration
	sleep    func(ctx context.Context, d time.Duration)
}

// New builds a verification engine with default pass budget and wait.
func New(reg *registry.Registry, probe Probe, modules ModuleOps, events emitter.Emitter) *Engine {
	return &Engine{
		reg:      reg,
		probe:    probe,
		modules:  modules,
		events:   events,
		passes:   DefaultPasses,
		passWait: DefaultPassWait,
		sleep:    sleepCtx,
	}
}

// Verify polls hardware presence up to the pass budget. Between passes
// it reloads only the module backing the still-missing resource, not
// the whole sequence. The final verdict is emitted to the event sinks.
func (e *Engine) Verify(ctx context.Context) Result {
	var res Result

	for pass := 1; pass <= e.passes; pass++ {
		log.Info("Verifying hardware recovery", "pass", pass, "passes", e.passes)

		res = Result{
			WifiOK:      e.probe.WirelessPresent(),
			BluetoothOK: e.probe.BluetoothPresent(),
			Passes:      pass,
		}

		if res.OK() {
			log.Info("Connectivity verified: WiFi and Bluetooth are active")
			e.events.Emit(ctx, emitter.Event{
				Title:    "t2guard",
				Body:     "Connectivity restored",
				Severity: emitter.SeverityLow,
				Icon:     emitter.IconWireless,
				Time:     time.Now(),
			})
			return res
		}

		if pass == e.passes {
			break
		}

		for _, missing := range res.Missing() {
			e.reloadResource(ctx, missing)
		}
		e.sleep(ctx, e.passWait)

		if ctx.Err() != nil {
			break
		}
	}

	missing := res.Missing()
	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = string(m)
	}
	log.Error(nil, "Verification failed, hardware still missing", "missing", strings.Join(names, ","), "passes", res.Passes)
	e.events.Emit(ctx, emitter.Event{
		Title:    "t2guard",
		Body:     "Recovery failed: " + strings.Join(names, ", ") + " still missing",
		Severity: emitter.SeverityCritical,
		Icon:     emitter.IconError,
		Time:     time.Now(),
	})

	return res
}

// Check runs a single presence pass without retries or notifications;
// used by the `check` subcommand.
func (e *Engine) Check() Result {
	return Result{
		WifiOK:      e.probe.WirelessPresent(),
		BluetoothOK: e.probe.BluetoothPresent(),
		Passes:      1,
	}
}

// reloadResource narrowly unloads and reloads the module backing one
// resource. The unload is best-effort; the module may not be loaded at
// all, which is exactly the state we are trying to fix.
func (e *Engine) reloadResource(ctx context.Context, res registry.Resource) {
	d, ok := e.reg.DriverFor(res)
	if !ok {
		log.Warn("No driver registered for resource", "resource", res)
		return
	}

	log.Warn("Resource missing, retrying its driver", "resource", res, "module", d.Name)

	if err := e.modules.Unload(ctx, d); err != nil {
		log.Debug("Narrow unload failed", "module", d.Name, "error", err)
	}
	if err := e.modules.Load(ctx, d); err != nil {
		log.Warn("Narrow load failed", "module", d.Name, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
