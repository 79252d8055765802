// Package watcher follows the kernel log and fires a trigger when a
// firmware hang signature appears.
package watcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/t2linux-tools/t2guard/internal/pkg/metrics"
	"github.com/t2linux-tools/t2guard/pkg/log"
)

// Trigger is invoked synchronously for each matched signature. The
// watcher does not read further log lines until it returns, which
// keeps a burst of hang messages from stacking up recovery attempts.
type Trigger func(ctx context.Context, sig Signature, line string)

// StreamFactory opens a kernel log stream. Injected in tests.
type StreamFactory func(ctx context.Context) (io.ReadCloser, error)

const (
	// reopenBackoff is slept before reopening a dropped stream.
	reopenBackoff = 2 * time.Second

	// maxConsecutiveFailures aborts the watcher when the journal cannot
	// be followed at all, typically a permissions problem.
	maxConsecutiveFailures = 5
)

// Watcher tails journalctl kernel output and matches hang signatures.
type Watcher struct {
	open    StreamFactory
	trigger Trigger
	sleep   func(ctx context.Context, d time.Duration)
	logger  log.Logger
}

// New returns a watcher following the live kernel journal.
func New(trigger Trigger) *Watcher {
	return &Watcher{
		open:    openJournal,
		trigger: trigger,
		sleep:   sleepCtx,
		logger:  log.WithName("watcher"),
	}
}

// Run follows the kernel log until the context is cancelled. The
// stream is reopened after transient read errors; persistent failure
// to follow the journal is returned as an error.
func (w *Watcher) Run(ctx context.Context) error {
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		stream, err := w.open(ctx)
		if err != nil {
			failures++
			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("following kernel journal: %w", err)
			}
			w.logger.Warn("Failed to open kernel journal, retrying", "error", err, "failures", failures)
			w.sleep(ctx, reopenBackoff)
			continue
		}

		w.logger.Info("Watching kernel log for firmware hang signatures")

		lines, err := w.follow(ctx, stream)
		_ = stream.Close()

		if ctx.Err() != nil {
			return nil
		}

		if lines > 0 {
			failures = 0
		} else {
			failures++
			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("kernel journal stream keeps terminating without output, last error: %v", err)
			}
		}

		w.logger.Warn("Kernel journal stream ended, reopening", "error", err, "lines", lines)
		w.sleep(ctx, reopenBackoff)
	}
}

// follow scans one stream to its end, firing the trigger on every
// matched line. It returns the number of lines read.
func (w *Watcher) follow(ctx context.Context, stream io.Reader) (int, error) {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	lines := 0
	for scanner.Scan() {
		lines++
		if ctx.Err() != nil {
			return lines, nil
		}

		line := scanner.Text()
		sig, ok := Match(line)
		if !ok {
			continue
		}

		metrics.SignatureMatchesTotal.WithLabelValues(sig.Name).Inc()
		w.logger.Warn("Firmware hang signature matched", "signature", sig.Name, "line", line)
		w.trigger(ctx, sig, line)
	}

	return lines, scanner.Err()
}

// openJournal starts journalctl following new kernel messages only.
// -n 0 skips the backlog so stale hang lines do not refire on start.
func openJournal(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, "journalctl", "--dmesg", "--follow", "--lines", "0", "--no-pager")

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &journalStream{pipe: pipe, cmd: cmd}, nil
}

type journalStream struct {
	pipe io.ReadCloser
	cmd  *exec.Cmd
}

func (j *journalStream) Read(p []byte) (int, error) { return j.pipe.Read(p) }

func (j *journalStream) Close() error {
	_ = j.pipe.Close()
	if j.cmd.Process != nil {
		_ = j.cmd.Process.Kill()
	}
	return j.cmd.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
