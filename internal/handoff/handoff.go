// Package handoff transfers control from launchpad to the long-running
// server, either by replacing the process image or by supervising a child.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"plexident/launchpad/internal/sequencer"
)

// ErrUnsupported is returned by Replacer on platforms without exec(2).
var ErrUnsupported = errors.New("process replacement not supported on this platform")

// ExitError carries the status the process should exit with when the server
// could not be started or exited on its own.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("server exited with status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("server exited with status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the status the process should exit with.
func (e *ExitError) ExitCode() int { return e.Code }

// Cleanups collects functions that must run before control leaves launchpad:
// flushing telemetry, closing the event bus, stopping the status server.
// Deferred calls do not survive exec, so everything goes through here.
type Cleanups struct {
	mu  sync.Mutex
	fns []func(context.Context)
}

// Add registers fn. Functions run in reverse registration order.
func (c *Cleanups) Add(fn func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

// Run executes and clears every registered function.
func (c *Cleanups) Run(ctx context.Context) {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i](ctx)
	}
}

// resolve finds the absolute path of argv[0] the way a shell would.
func resolve(cmd sequencer.Command) (string, error) {
	if len(cmd.Argv) == 0 || cmd.Argv[0] == "" {
		return "", sequencer.ErrInvalidCommand
	}
	path, err := exec.LookPath(cmd.Argv[0])
	if err != nil {
		return "", &ExitError{Code: 127, Err: err}
	}
	return path, nil
}

// chdir switches to the command's working directory, if any.
func chdir(cmd sequencer.Command) error {
	if cmd.Dir == "" {
		return nil
	}
	if err := os.Chdir(cmd.Dir); err != nil {
		return &ExitError{Code: 126, Err: fmt.Errorf("chdir %s: %w", cmd.Dir, err)}
	}
	return nil
}
