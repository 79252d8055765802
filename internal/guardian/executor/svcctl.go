package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/t2linux-tools/t2guard/internal/guardian/registry"
)

// ServiceOp enumerates the systemd operations the sequencer issues.
type ServiceOp int

const (
	ServiceStart ServiceOp = iota
	ServiceStop
	ServiceRestart
)

func (op ServiceOp) String() string {
	switch op {
	case ServiceStart:
		return "start"
	case ServiceStop:
		return "stop"
	default:
		return "restart"
	}
}

// ServiceController wraps systemctl into typed service primitives.
type ServiceController struct {
	runner Runner
}

// NewServiceController builds a controller using the given runner.
func NewServiceController(r Runner) *ServiceController {
	return &ServiceController{runner: r}
}

// serviceCommand builds the systemctl argv for an operation on a
// service. User-scope services get --user; non-blocking services get
// --no-block so the executor does not wait for the state transition.
func serviceCommand(op ServiceOp, s registry.ServiceSpec) []string {
	argv := []string{"systemctl"}
	if s.Scope == registry.ScopeUser {
		argv = append(argv, "--user")
	}
	argv = append(argv, op.String())
	if !s.Blocking {
		argv = append(argv, "--no-block")
	}
	return append(argv, s.Name)
}

// Apply runs a single service operation in the service's scope.
func (c *ServiceController) Apply(ctx context.Context, op ServiceOp, s registry.ServiceSpec) error {
	argv := serviceCommand(op, s)
	res := c.run(ctx, s, argv)
	if !res.OK() {
		return fmt.Errorf("%s %s: systemctl exited %d: %s", op, s.Name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Stop stops the service.
func (c *ServiceController) Stop(ctx context.Context, s registry.ServiceSpec) error {
	return c.Apply(ctx, ServiceStop, s)
}

// StartOrRestart restarts the service if it is currently active and
// starts it otherwise.
func (c *ServiceController) StartOrRestart(ctx context.Context, s registry.ServiceSpec) error {
	op := ServiceStart
	if c.IsActive(ctx, s) {
		op = ServiceRestart
	}
	return c.Apply(ctx, op, s)
}

// IsActive reports whether the service is in the active state.
func (c *ServiceController) IsActive(ctx context.Context, s registry.ServiceSpec) bool {
	argv := []string{"systemctl"}
	if s.Scope == registry.ScopeUser {
		argv = append(argv, "--user")
	}
	argv = append(argv, "is-active", "--quiet", s.Name)

	return c.run(ctx, s, argv).OK()
}

// run dispatches to the user session for user-scope services so that
// `systemctl --user` reaches the right manager instance.
func (c *ServiceController) run(ctx context.Context, s registry.ServiceSpec, argv []string) Result {
	if s.Scope == registry.ScopeUser {
		return c.runner.RunAsUser(ctx, argv[0], argv[1:]...)
	}
	return c.runner.Run(ctx, argv[0], argv[1:]...)
}
