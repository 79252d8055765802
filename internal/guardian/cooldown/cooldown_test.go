package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(window time.Duration) (*Gate, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := New(window)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestFirstAcquireIsGranted(t *testing.T) {
	g, _ := newTestGate(20 * time.Second)

	ok, remaining := g.TryAcquire()
	assert.True(t, ok)
	assert.Zero(t, remaining)
}

func TestWindowRefusesAndReportsRemaining(t *testing.T) {
	g, now := newTestGate(20 * time.Second)

	g.MarkCompleted()

	*now = now.Add(5 * time.Second)
	ok, remaining := g.TryAcquire()
	require.False(t, ok)
	assert.Equal(t, 15*time.Second, remaining)

	*now = now.Add(15 * time.Second)
	ok, _ = g.TryAcquire()
	assert.True(t, ok, "gate must reopen once the window has elapsed")
}

func TestImmediateSecondInvocationRefused(t *testing.T) {
	// Two back-to-back manual invocations: the second must be refused.
	g, _ := newTestGate(20 * time.Second)

	ok, _ := g.TryAcquire()
	require.True(t, ok)
	g.MarkCompleted()

	ok, remaining := g.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, remaining)
}

func TestZeroWindowDisablesGate(t *testing.T) {
	g, _ := newTestGate(0)

	g.MarkCompleted()
	ok, _ := g.TryAcquire()
	assert.True(t, ok)
}

func TestRemaining(t *testing.T) {
	g, now := newTestGate(20 * time.Second)
	assert.Zero(t, g.Remaining())

	g.MarkCompleted()
	assert.Equal(t, 20*time.Second, g.Remaining())

	*now = now.Add(12 * time.Second)
	assert.Equal(t, 8*time.Second, g.Remaining())

	*now = now.Add(10 * time.Second)
	assert.Zero(t, g.Remaining())
}

func TestLastRecovery(t *testing.T) {
	g, now := newTestGate(20 * time.Second)
	assert.True(t, g.LastRecovery().IsZero())

	g.MarkCompleted()
	assert.Equal(t, *now, g.LastRecovery())
}
