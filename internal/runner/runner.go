// Package runner executes the application's setup commands.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"plexident/launchpad/internal/sequencer"
)

// Exit statuses reported when a command cannot be started, following the
// shell's conventions.
const (
	ExitNotFound      = 127
	ExitNotExecutable = 126
)

// DefaultGracePeriod is how long a cancelled step may take to exit after
// SIGTERM before it is killed.
const DefaultGracePeriod = 10 * time.Second

// Exec runs commands on the local OS with the parent's environment and
// standard streams, so the tools' own output reaches the container log.
type Exec struct {
	Stdout io.Writer
	Stderr io.Writer
	Env    []string
	// GracePeriod bounds the wait after a cancelled step was sent SIGTERM.
	// Zero means DefaultGracePeriod.
	GracePeriod time.Duration
}

// New returns an Exec wired to the process's stdout and stderr.
func New() *Exec {
	return &Exec{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run starts cmd and waits for it. It returns the exit status and an error only
// when the command could not be run or was killed by a signal. Cancelling ctx
// sends the command SIGTERM and still reports its own exit status.
func (e *Exec) Run(ctx context.Context, cmd sequencer.Command) (int, error) {
	if len(cmd.Argv) == 0 {
		return ExitNotFound, sequencer.ErrInvalidCommand
	}

	c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Stdin = nil
	c.Stdout = e.Stdout
	c.Stderr = e.Stderr
	if e.Env != nil {
		c.Env = e.Env
	}
	c.Cancel = func() error { return terminate(c.Process) }
	c.WaitDelay = e.GracePeriod
	if c.WaitDelay <= 0 {
		c.WaitDelay = DefaultGracePeriod
	}

	err := c.Run()
	if err == nil {
		return 0, nil
	}

	// After a cancellation Run reports ctx.Err() even when the command exited
	// on its own, so the process state is authoritative.
	if state := c.ProcessState; state != nil {
		if code := state.ExitCode(); code >= 0 {
			return code, nil
		}
		// Terminated by a signal.
		return 128 + signalNumber(state), fmt.Errorf("%s: %w", cmd.Name, err)
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return ExitNotFound, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return ExitNotExecutable, fmt.Errorf("%s: %w", cmd.Name, err)
}
