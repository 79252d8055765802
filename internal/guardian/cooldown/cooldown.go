// Package cooldown rate-limits recovery attempts so a repeating hang
// signature cannot reset the hardware faster than it can settle.
package cooldown

import (
	"sync"
	"time"
)

// DefaultWindow is the minimum gap between the starts of two recovery
// attempts.
const DefaultWindow = 20 * time.Second

// Gate owns the last-recovery timestamp. The timestamp is advanced on
// pipeline completion regardless of outcome: a persistently broken
// device must not retrigger on every matching log line.
type Gate struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last time.Time
}

// New creates a gate with the given window. A zero or negative window
// disables rate limiting.
func New(window time.Duration) *Gate {
	return &Gate{window: window, now: time.Now}
}

// TryAcquire reports whether a recovery may start now. When refused,
// remaining carries the time left in the window.
func (g *Gate) TryAcquire() (ok bool, remaining time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.window <= 0 {
		return true, 0
	}

	elapsed := g.now().Sub(g.last)
	if !g.last.IsZero() && elapsed < g.window {
		return false, g.window - elapsed
	}
	return true, 0
}

// MarkCompleted records the completion of a recovery pipeline and opens
// a fresh cooldown window.
func (g *Gate) MarkCompleted() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = g.now()
}

// Remaining returns the time left in the current window, zero when the
// gate is open.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.window <= 0 || g.last.IsZero() {
		return 0
	}

	if left := g.window - g.now().Sub(g.last); left > 0 {
		return left
	}
	return 0
}

// LastRecovery returns the completion time of the most recent recovery,
// zero if none has run.
func (g *Gate) LastRecovery() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Window returns the configured window size.
func (g *Gate) Window() time.Duration { return g.window }
