package handoff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"

	"plexident/launchpad/internal/sequencer"
)

// Supervisor starts the server as a child process, relays termination
// signals to it and passes its exit status through. It stands in for
// Replacer where exec is unavailable or the status API must outlive setup.
type Supervisor struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Signals []os.Signal

	// started is called with the child's PID once it runs.
	started func(pid int)
}

// NewSupervisor returns a Supervisor bound to the process's standard streams.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Signals: forwardedSignals,
	}
}

// OnStart registers fn to receive the child's PID.
func (s *Supervisor) OnStart(fn func(pid int)) {
	s.started = fn
}

// Handoff blocks until the child exits. A zero exit returns nil; anything else
// is an *ExitError with the child's status.
func (s *Supervisor) Handoff(ctx context.Context, cmd sequencer.Command) error {
	path, err := resolve(cmd)
	if err != nil {
		return err
	}

	c := exec.Command(path, cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Stdin = s.Stdin
	c.Stdout = s.Stdout
	c.Stderr = s.Stderr

	// Register before Start so no signal falls between the two.
	sigs := make(chan os.Signal, 8)
	if len(s.Signals) > 0 {
		signal.Notify(sigs, s.Signals...)
		defer signal.Stop(sigs)
	}

	if err := c.Start(); err != nil {
		code := 126
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			code = 127
		}
		return &ExitError{Code: code, Err: fmt.Errorf("starting %s: %w", path, err)}
	}

	pid := c.Process.Pid
	slog.InfoContext(ctx, "server started", "pid", pid, "path", path)
	if s.started != nil {
		s.started(pid)
	}

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	for {
		select {
		case sig := <-sigs:
			slog.InfoContext(ctx, "forwarding signal", "signal", sig.String(), "pid", pid)
			if err := c.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
				slog.WarnContext(ctx, "signal forward failed", "signal", sig.String(), "error", err)
			}
		case err := <-done:
			return exitStatus(err)
		}
	}
}

func exitStatus(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal; report the shell convention.
			code = 128 + signalNumber(exitErr)
		}
		return &ExitError{Code: code}
	}
	return &ExitError{Code: 1, Err: err}
}
