// Package executor is the watchdog's only point of contact with the
// operating system: kernel module operations, service manager calls and
// desktop notifications all go through a Runner.
package executor

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/t2linux-tools/t2guard/pkg/log"
)

// Result captures the outcome of one external command. Failures never
// surface as Go errors here; callers inspect the exit code.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// OK reports whether the command exited zero.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Runner executes external commands synchronously.
type Runner interface {
	// Run executes argv and waits for it to exit.
	Run(ctx context.Context, name string, args ...string) Result

	// RunAsUser executes argv in the context of the active desktop user,
	// injecting the session's runtime/display/bus environment so that
	// user-scope operations succeed while the watchdog runs as root.
	// If no desktop session can be resolved it degrades to Run.
	RunAsUser(ctx context.Context, name string, args ...string) Result
}

// exitCodeStartFailure marks commands that never ran (binary missing,
// fork failure). Distinct from any real exit status.
const exitCodeStartFailure = -1

type execRunner struct {
	resolve func(ctx context.Context, r Runner) (*Session, error)
}

// NewRunner returns the os/exec backed Runner.
func NewRunner() Runner {
	return &execRunner{resolve: ResolveSession}
}

func (e *execRunner) Run(ctx context.Context, name string, args ...string) Result {
	return e.run(ctx, nil, name, args...)
}

func (e *execRunner) RunAsUser(ctx context.Context, name string, args ...string) Result {
	sess, err := e.resolve(ctx, e)
	if err != nil {
		log.Warn("No desktop session resolved, running without user context", "command", name, "error", err)
		return e.run(ctx, nil, name, args...)
	}

	argv := append([]string{"-u", sess.User, "--", name}, args...)
	return e.run(ctx, sess.Env(), "runuser", argv...)
}

func (e *execRunner) run(ctx context.Context, extraEnv []string, name string, args ...string) Result {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	log.Debug("Executing command", "command", name, "args", args)

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	case cmd.ProcessState != nil:
		res.ExitCode = cmd.ProcessState.ExitCode()
	default:
		// The process never started; fold the error into the result.
		res.ExitCode = exitCodeStartFailure
		res.Stderr = err.Error()
	}

	if !res.OK() {
		log.Debug("Command failed", "command", name, "exitCode", res.ExitCode, "stderr", res.Stderr)
	}

	return res
}
