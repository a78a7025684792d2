//go:build unix

package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"plexident/launchpad/internal/sequencer"
)

// Supported reports whether Replacer can exec on this platform.
const Supported = true

// forwardedSignals are relayed to a supervised child. gunicorn uses
// TTIN/TTOU/WINCH to resize and drain its worker pool.
var forwardedSignals = []os.Signal{
	unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGQUIT, unix.SIGUSR1, unix.SIGUSR2, unix.SIGTTIN, unix.SIGTTOU, unix.SIGWINCH,
}

// execFunc matches unix.Exec.
type execFunc func(argv0 string, argv []string, envv []string) error

// Replacer replaces the launchpad process image with the server. The server
// keeps the PID, the signal disposition and the inherited file descriptors;
// no wrapper process remains.
type Replacer struct {
	cleanups *Cleanups
	exec     execFunc
}

// NewReplacer returns a Replacer that runs cleanups right before exec.
func NewReplacer(cleanups *Cleanups) *Replacer {
	return &Replacer{cleanups: cleanups, exec: unix.Exec}
}

// Handoff only returns if exec fails.
func (r *Replacer) Handoff(ctx context.Context, cmd sequencer.Command) error {
	if err := chdir(cmd); err != nil {
		return err
	}
	path, err := resolve(cmd)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "replacing process", "path", path, "pid", os.Getpid())
	if r.cleanups != nil {
		r.cleanups.Run(ctx)
	}

	if err := r.exec(path, cmd.Argv, os.Environ()); err != nil {
		return &ExitError{Code: 126, Err: fmt.Errorf("exec %s: %w", path, err)}
	}
	return nil
}

// signalNumber returns the signal that killed the child, or 0.
func signalNumber(exitErr *exec.ExitError) int {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return int(ws.Signal())
	}
	return 0
}
