package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstLoginUser(t *testing.T) {
	t.Run("skips root and picks first user", func(t *testing.T) {
		runner := newFakeRunner()
		runner.script("loginctl", Result{
			ExitCode: 0,
			Stdout:   "  0 root    \n1000 alice   \n1001 bob\n",
		})

		name, err := firstLoginUser(context.Background(), runner)
		require.NoError(t, err)
		assert.Equal(t, "alice", name)
	})

	t.Run("no users", func(t *testing.T) {
		runner := newFakeRunner()
		runner.script("loginctl", Result{ExitCode: 0, Stdout: "\n"})

		_, err := firstLoginUser(context.Background(), runner)
		assert.Error(t, err)
	})

	t.Run("loginctl failure", func(t *testing.T) {
		runner := newFakeRunner()
		runner.script("loginctl", Result{ExitCode: 1, Stderr: "Failed to connect to bus"})

		_, err := firstLoginUser(context.Background(), runner)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit code 1")
	})
}

func TestSessionEnv(t *testing.T) {
	s := &Session{User: "alice", UID: 1000, RuntimeDir: "/run/user/1000", WaylandDisplay: "wayland-0"}
	env := s.Env()
	assert.Contains(t, env, "XDG_RUNTIME_DIR=/run/user/1000")
	assert.Contains(t, env, "DBUS_SESSION_BUS_ADDRESS=unix:path=/run/user/1000/bus")
	assert.Contains(t, env, "WAYLAND_DISPLAY=wayland-0")

	s.WaylandDisplay = ""
	s.Display = ":0"
	assert.Contains(t, s.Env(), "DISPLAY=:0")
}
