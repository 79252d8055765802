package emitter

import (
	"context"
	"time"

	"github.com/t2linux-tools/t2guard/internal/guardian/executor"
	"github.com/t2linux-tools/t2guard/pkg/log"
)

// Desktop delivers events as desktop notifications via notify-send,
// executed in the active user's session so the bubble reaches the
// logged-in desktop even though the watchdog runs as root.
type Desktop struct {
	runner executor.Runner
}

// NewDesktop builds the notify-send sink.
func NewDesktop(r executor.Runner) *Desktop {
	return &Desktop{runner: r}
}

func (d *Desktop) Emit(ctx context.Context, ev Event) {
	args := []string{ev.Title, ev.Body, "--urgency=" + string(ev.Severity)}
	if ev.Icon != "" {
		args = append(args, "--icon="+ev.Icon)
	}

	// Bounded: a wedged notification daemon must not stall a recovery.
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if res := d.runner.RunAsUser(ctx, "notify-send", args...); !res.OK() {
		log.Debug("Desktop notification not delivered", "title", ev.Title, "exitCode", res.ExitCode)
	}
}
