package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// SignatureMatchesTotal counts kernel log lines that matched a hang signature.
	SignatureMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t2guard_signature_matches_total",
			Help: "Total number of kernel log lines matching a known hang signature.",
		},
		[]string{"pattern"},
	)

	// RecoveriesTotal counts completed recovery attempts.
	RecoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t2guard_recoveries_total",
			Help: "Total number of recovery attempts by trigger reason and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	// CooldownRejectionsTotal counts triggers refused by the cooldown gate.
	CooldownRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "t2guard_cooldown_rejections_total",
			Help: "Total number of recovery triggers refused because the cooldown window was active.",
		},
	)

	// StepFailuresTotal counts individual unload/load/service steps that
	// exhausted their retry budget.
	StepFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t2guard_step_failures_total",
			Help: "Total number of sequencer steps that failed after all retries.",
		},
		[]string{"stage", "resource"},
	)

	// RecoveryDurationSeconds observes end-to-end recovery pipeline duration.
	RecoveryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "t2guard_recovery_duration_seconds",
			Help:    "End-to-end duration of recovery attempts, including verification.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1s .. ~2m
		},
	)

	// SequencerPhase reports the current sequencer phase as a one-hot gauge.
	SequencerPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "t2guard_sequencer_phase",
			Help: "Current phase of the driver reset sequencer (1 for the active phase).",
		},
		[]string{"phase"},
	)
)

// Registry is the process-local prometheus registry served on /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		SignatureMatchesTotal,
		RecoveriesTotal,
		CooldownRejectionsTotal,
		StepFailuresTotal,
		RecoveryDurationSeconds,
		SequencerPhase,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
