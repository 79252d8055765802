package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t2linux-tools/t2guard/internal/guardian/registry"
)

func TestServiceCommand(t *testing.T) {
	tests := []struct {
		name string
		op   ServiceOp
		spec registry.ServiceSpec
		want []string
	}{
		{
			name: "system blocking stop",
			op:   ServiceStop,
			spec: registry.ServiceSpec{Name: "NetworkManager", Scope: registry.ScopeSystem, Blocking: true},
			want: []string{"systemctl", "stop", "NetworkManager"},
		},
		{
			name: "system non-blocking start",
			op:   ServiceStart,
			spec: registry.ServiceSpec{Name: "bluetooth", Scope: registry.ScopeSystem},
			want: []string{"systemctl", "start", "--no-block", "bluetooth"},
		},
		{
			name: "user-scope restart",
			op:   ServiceRestart,
			spec: registry.ServiceSpec{Name: "pipewire", Scope: registry.ScopeUser, Blocking: true},
			want: []string{"systemctl", "--user", "restart", "pipewire"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serviceCommand(tt.op, tt.spec))
		})
	}
}

func TestStartOrRestart(t *testing.T) {
	spec := registry.ServiceSpec{Name: "NetworkManager", Scope: registry.ScopeSystem, Blocking: true}

	t.Run("restart when active", func(t *testing.T) {
		runner := newFakeRunner()
		runner.script("systemctl is-active", Result{ExitCode: 0})

		c := NewServiceController(runner)
		require.NoError(t, c.StartOrRestart(context.Background(), spec))

		require.Len(t, runner.calls, 2)
		assert.Equal(t, []string{"systemctl", "restart", "NetworkManager"}, runner.calls[1])
	})

	t.Run("start when inactive", func(t *testing.T) {
		runner := newFakeRunner()
		runner.script("systemctl is-active", Result{ExitCode: 3})

		c := NewServiceController(runner)
		require.NoError(t, c.StartOrRestart(context.Background(), spec))

		require.Len(t, runner.calls, 2)
		assert.Equal(t, []string{"systemctl", "start", "NetworkManager"}, runner.calls[1])
	})
}

func TestApplySurfacesFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.script("systemctl stop", Result{ExitCode: 5, Stderr: "Unit not loaded."})

	c := NewServiceController(runner)
	err := c.Stop(context.Background(), registry.ServiceSpec{Name: "bluetooth", Scope: registry.ScopeSystem, Blocking: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited 5")
}
