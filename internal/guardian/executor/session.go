package executor

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

// Session describes the active graphical user's environment.
type Session struct {
	User       string
	UID        int
	RuntimeDir string

	// WaylandDisplay is empty on X11 sessions; Display is the fallback.
	WaylandDisplay string
	Display        string
}

// Env renders the environment variables needed for user-scope commands
// (service restarts, desktop notifications) issued from a root process.
func (s *Session) Env() []string {
	env := []string{
		fmt.Sprintf("XDG_RUNTIME_DIR=%s", s.RuntimeDir),
		fmt.Sprintf("DBUS_SESSION_BUS_ADDRESS=unix:path=%s/bus", s.RuntimeDir),
	}
	if s.WaylandDisplay != "" {
		env = append(env, fmt.Sprintf("WAYLAND_DISPLAY=%s", s.WaylandDisplay))
	} else {
		env = append(env, fmt.Sprintf("DISPLAY=%s", s.Display))
	}
	return env
}

// ResolveSession identifies the active desktop user. SUDO_USER wins when
// set (manual `sudo t2guard exec`); otherwise the first logind user is
// taken. The runner is used for the loginctl query so tests can fake it.
func ResolveSession(ctx context.Context, r Runner) (*Session, error) {
	name := os.Getenv("SUDO_USER")
	if name == "" || name == "root" {
		var err error
		if name, err = firstLoginUser(ctx, r); err != nil {
			return nil, err
		}
	}

	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("lookup user %q: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("non-numeric uid %q for %q", u.Uid, name)
	}

	runtimeDir := fmt.Sprintf("/run/user/%d", uid)
	if _, err := os.Stat(runtimeDir); err != nil {
		return nil, fmt.Errorf("no runtime dir for %q: %w", name, err)
	}

	sess := &Session{
		User:       name,
		UID:        uid,
		RuntimeDir: runtimeDir,
		Display:    ":0",
	}
	sess.WaylandDisplay = findWaylandSocket(runtimeDir)

	return sess, nil
}

// firstLoginUser parses `loginctl list-users --no-legend` output:
// "UID USER ..." per line, one line per logged-in user.
func firstLoginUser(ctx context.Context, r Runner) (string, error) {
	res := r.Run(ctx, "loginctl", "list-users", "--no-legend")
	if !res.OK() {
		return "", fmt.Errorf("loginctl failed with exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if fields[1] == "root" {
			continue
		}
		return fields[1], nil
	}

	return "", fmt.Errorf("no logged-in desktop user found")
}

func findWaylandSocket(runtimeDir string) string {
	entries, err := os.ReadDir(runtimeDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "wayland-") && filepath.Ext(name) != ".lock" {
			return name
		}
	}
	return ""
}
