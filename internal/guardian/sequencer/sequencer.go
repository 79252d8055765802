// Package sequencer executes the ordered driver reset: stop services
// and unload modules in reverse order, let the hardware settle, then
// load modules and start services forward, verifying the result.
package sequencer

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"

	"github.com/t2linux-tools/t2guard/internal/guardian/registry"
	"github.com/t2linux-tools/t2guard/internal/guardian/verify"
	"github.com/t2linux-tools/t2guard/internal/pkg/metrics"
	fsmutil "github.com/t2linux-tools/t2guard/internal/pkg/util/fsm"
	"github.com/t2linux-tools/t2guard/pkg/log"
)

// TriggerReason records what initiated a recovery.
type TriggerReason string

const (
	TriggerManualExec     TriggerReason = "ManualExec"
	TriggerSignatureMatch TriggerReason = "SignatureMatch"
	TriggerHealthCheck    TriggerReason = "HealthCheck"
)

// Outcome classifies a completed recovery attempt.
type Outcome string

const (
	// OutcomeSuccess: every step succeeded and verification passed.
	OutcomeSuccess Outcome = "Success"
	// OutcomePartialFailure: verification passed but some steps had to be
	// skipped over after exhausting their retries.
	OutcomePartialFailure Outcome = "PartialFailure"
	// OutcomeFailure: hardware still missing after verification.
	OutcomeFailure Outcome = "Failure"
)

// Attempt is the in-memory record of one recovery run. Nothing is
// persisted beyond the process lifetime.
type Attempt struct {
	Reason     TriggerReason `json:"reason"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Outcome    Outcome       `json:"outcome"`

	VerifiedWifi      bool `json:"verifiedWifi"`
	VerifiedBluetooth bool `json:"verifiedBluetooth"`
}

// ErrBusy is returned when a trigger arrives while a recovery is
// already in flight. Such triggers are dropped, never queued.
var ErrBusy = errors.New("recovery already in flight")

// ModuleOps is the module surface the sequencer drives; satisfied by
// executor.ModuleController.
type ModuleOps interface {
	Load(ctx context.Context, d registry.DriverSpec) error
	Unload(ctx context.Context, d registry.DriverSpec) error
}

// ServiceOps is the service surface the sequencer drives; satisfied by
// executor.ServiceController.
type ServiceOps interface {
	Stop(ctx context.Context, s registry.ServiceSpec) error
	StartOrRestart(ctx context.Context, s registry.ServiceSpec) error
}

// Verifier confirms hardware presence after the load stage.
type Verifier interface {
	Verify(ctx context.Context) verify.Result
}

// Sequencer phases.
const (
	PhaseIdle      = "idle"
	PhaseUnloading = "unloading"
	PhaseSettling  = "settling"
	PhaseLoading   = "loading"
	PhaseVerifying = "verifying"
)

const (
	eventBeginUnload = "begin_unload"
	eventBeginSettle = "begin_settle"
	eventBeginLoad   = "begin_load"
	eventBeginVerify = "begin_verify"
	eventFinish      = "finish"
)

var phases = []string{PhaseIdle, PhaseUnloading, PhaseSettling, PhaseLoading, PhaseVerifying}

const (
	// DefaultRetries is the per-step attempt ceiling.
	DefaultRetries = 3
	// DefaultBackoff is slept between attempts of the same step.
	DefaultBackoff = 1 * time.Second
	// DefaultSettle is slept between the unload and load stages to let
	// the hardware finish powering down.
	DefaultSettle = 5 * time.Second
)

// Sequencer runs the reset state machine. At most one run is in flight
// at any time; the machine's idle-only begin transition enforces it.
type Sequencer struct {
	reg      *registry.Registry
	modules  ModuleOps
	services ServiceOps
	verifier Verifier

	retries int
	backoff time.Duration
	settle  time.Duration

	machine *fsm.FSM
	sleep   func(ctx context.Context, d time.Duration)
	now     func() time.Time
}

// Option adjusts sequencer timing.
type Option func(*Sequencer)

// WithSettle overrides the inter-stage settle delay.
func WithSettle(d time.Duration) Option {
	return func(s *Sequencer) { s.settle = d }
}

// WithRetryPolicy overrides the per-step attempt ceiling and backoff.
func WithRetryPolicy(retries int, backoff time.Duration) Option {
	return func(s *Sequencer) {
		if retries > 0 {
			s.retries = retries
		}
		s.backoff = backoff
	}
}

// New builds a sequencer with the default retry ceiling, backoff and
// settle delay.
func New(reg *registry.Registry, modules ModuleOps, services ServiceOps, verifier Verifier, opts ...Option) *Sequencer {
	s := &Sequencer{
		reg:      reg,
		modules:  modules,
		services: services,
		verifier: verifier,
		retries:  DefaultRetries,
		backoff:  DefaultBackoff,
		settle:   DefaultSettle,
		sleep:    sleepCtx,
		now:      time.Now,
	}

	s.machine = fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: eventBeginUnload, Src: []string{PhaseIdle}, Dst: PhaseUnloading},
			{Name: eventBeginSettle, Src: []string{PhaseUnloading}, Dst: PhaseSettling},
			{Name: eventBeginLoad, Src: []string{PhaseSettling}, Dst: PhaseLoading},
			{Name: eventBeginVerify, Src: []string{PhaseLoading}, Dst: PhaseVerifying},
			{Name: eventFinish, Src: []string{PhaseUnloading, PhaseSettling, PhaseLoading, PhaseVerifying}, Dst: PhaseIdle},
		},
		fsm.Callbacks{
			// Refuse to start a reset while the daemon is shutting down.
			"before_" + eventBeginUnload: fsmutil.WrapEvent(func(ctx context.Context, e *fsm.Event) error {
				return ctx.Err()
			}),
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				for _, p := range phases {
					v := 0.0
					if p == e.Dst {
						v = 1.0
					}
					metrics.SequencerPhase.WithLabelValues(p).Set(v)
				}
				log.Debug("Sequencer phase change", "from", e.Src, "to", e.Dst)
			},
		},
	)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Phase returns the current sequencer phase for the status endpoint.
func (s *Sequencer) Phase() string { return s.machine.Current() }

// Run executes the full reset pipeline: unload, settle, load, verify.
// A second Run while one is in flight returns ErrBusy.
func (s *Sequencer) Run(ctx context.Context, reason TriggerReason) (*Attempt, error) {
	if err := s.machine.Event(ctx, eventBeginUnload); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, ErrBusy
	}

	attempt := &Attempt{
		Reason:    reason,
		StartedAt: s.now(),
	}

	log.Warn("Initiating hardware reset sequence", "reason", reason)

	unloadOK := s.unloadStage(ctx)

	_ = s.machine.Event(ctx, eventBeginSettle)
	log.Info("Hardware settling", "delay", s.settle)
	s.sleep(ctx, s.settle)

	_ = s.machine.Event(ctx, eventBeginLoad)
	loadOK := s.loadStage(ctx)

	_ = s.machine.Event(ctx, eventBeginVerify)
	vres := s.verifier.Verify(ctx)

	_ = s.machine.Event(ctx, eventFinish)

	attempt.FinishedAt = s.now()
	attempt.VerifiedWifi = vres.WifiOK
	attempt.VerifiedBluetooth = vres.BluetoothOK

	switch {
	case !vres.OK():
		attempt.Outcome = OutcomeFailure
	case unloadOK && loadOK:
		attempt.Outcome = OutcomeSuccess
	default:
		attempt.Outcome = OutcomePartialFailure
	}

	metrics.RecoveriesTotal.WithLabelValues(string(reason), string(attempt.Outcome)).Inc()
	metrics.RecoveryDurationSeconds.Observe(attempt.FinishedAt.Sub(attempt.StartedAt).Seconds())

	log.Info("Reset sequence complete",
		"outcome", attempt.Outcome,
		"wifi", attempt.VerifiedWifi,
		"bluetooth", attempt.VerifiedBluetooth,
		"duration", attempt.FinishedAt.Sub(attempt.StartedAt))

	return attempt, nil
}

// unloadStage stops services and unloads modules in reverse order.
// Failed steps are skipped over, never aborting the stage: a single
// stuck module must not block attempts to unload its peers.
func (s *Sequencer) unloadStage(ctx context.Context) bool {
	log.Info("STAGE 1: stopping services and unloading drivers")

	ok := true
	for _, svc := range s.reg.ServicesStopOrder() {
		svc := svc
		stepOK := s.withRetry(ctx, "unload", svc.Name, func(ctx context.Context) error {
			return s.services.Stop(ctx, svc)
		})
		ok = stepOK && ok
	}

	for _, d := range s.reg.DriversUnloadOrder() {
		d := d
		stepOK := s.withRetry(ctx, "unload", d.Name, func(ctx context.Context) error {
			return s.modules.Unload(ctx, d)
		})
		ok = stepOK && ok
	}

	return ok
}

// loadStage loads modules and starts services in forward order, with a
// per-module settle delay after each successful load.
func (s *Sequencer) loadStage(ctx context.Context) bool {
	log.Info("STAGE 2: loading drivers and starting services")

	ok := true
	for _, d := range s.reg.DriversLoadOrder() {
		d := d
		stepOK := s.withRetry(ctx, "load", d.Name, func(ctx context.Context) error {
			return s.modules.Load(ctx, d)
		})
		if stepOK && d.SettleDelay > 0 {
			s.sleep(ctx, d.SettleDelay)
		}
		ok = stepOK && ok
	}

	for _, svc := range s.reg.ServicesStartOrder() {
		svc := svc
		stepOK := s.withRetry(ctx, "load", svc.Name, func(ctx context.Context) error {
			return s.services.StartOrRestart(ctx, svc)
		})
		ok = stepOK && ok
	}

	return ok
}

// withRetry attempts one step up to the retry ceiling with a fixed
// backoff. Exhaustion is logged and counted but does not abort the
// caller's loop.
func (s *Sequencer) withRetry(ctx context.Context, stage, resource string, op func(ctx context.Context) error) bool {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if err = op(ctx); err == nil {
			return true
		}
		log.Warn("Step failed", "stage", stage, "resource", resource, "attempt", attempt, "error", err)
		if attempt < s.retries {
			s.sleep(ctx, s.backoff)
		}
	}

	metrics.StepFailuresTotal.WithLabelValues(stage, resource).Inc()
	log.Error(err, "Step failed after all retries, continuing best-effort", "stage", stage, "resource", resource)
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
