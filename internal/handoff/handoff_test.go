//go:build unix

package handoff

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plexident/launchpad/internal/sequencer"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestReplacer_ExecsResolvedServer(t *testing.T) {
	requireShell(t)

	var order []string
	cleanups := &Cleanups{}
	cleanups.Add(func(context.Context) { order = append(order, "telemetry") })
	cleanups.Add(func(context.Context) { order = append(order, "status-server") })

	var (
		gotPath string
		gotArgv []string
		gotPID  int
	)
	r := NewReplacer(cleanups)
	r.exec = func(argv0 string, argv []string, envv []string) error {
		gotPath, gotArgv, gotPID = argv0, argv, os.Getpid()
		assert.NotEmpty(t, envv)
		return nil
	}

	cmd := sequencer.Command{Name: "serve", Argv: []string{"sh", "-c", "gunicorn --bind 0.0.0.0:8000 --workers 3"}}
	require.NoError(t, r.Handoff(context.Background(), cmd))

	shPath, err := exec.LookPath("sh")
	require.NoError(t, err)
	assert.Equal(t, shPath, gotPath)
	assert.Equal(t, cmd.Argv, gotArgv, "argv[0] is passed through unchanged")
	assert.Equal(t, os.Getpid(), gotPID)
	assert.Equal(t, []string{"status-server", "telemetry"}, order, "cleanups run in reverse order before exec")
}

func TestReplacer_NotFound(t *testing.T) {
	r := NewReplacer(nil)
	r.exec = func(string, []string, []string) error {
		t.Fatal("exec must not be called")
		return nil
	}

	err := r.Handoff(context.Background(), sequencer.Command{Argv: []string{"launchpad-no-such-server"}})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 127, exitErr.ExitCode())
}

func TestReplacer_ExecFailure(t *testing.T) {
	requireShell(t)

	r := NewReplacer(nil)
	r.exec = func(string, []string, []string) error { return syscall.ENOEXEC }

	err := r.Handoff(context.Background(), sequencer.Command{Argv: []string{"sh"}})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 126, exitErr.ExitCode())
	assert.ErrorIs(t, err, syscall.ENOEXEC)
}

func TestReplacer_EmptyArgv(t *testing.T) {
	err := NewReplacer(nil).Handoff(context.Background(), sequencer.Command{})
	assert.ErrorIs(t, err, sequencer.ErrInvalidCommand)
}

func TestSupervisor_ExitStatus(t *testing.T) {
	t.Parallel()
	requireShell(t)

	tests := []struct {
		name     string
		script   string
		wantCode int
	}{
		{name: "clean shutdown", script: "exit 0", wantCode: 0},
		{name: "crash", script: "exit 3", wantCode: 3},
		{name: "killed", script: "kill -KILL $$", wantCode: 128 + 9},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := &Supervisor{Stdout: io.Discard, Stderr: io.Discard}
			var pid int
			s.OnStart(func(p int) { pid = p })

			err := s.Handoff(context.Background(), sequencer.Command{Argv: []string{"sh", "-c", tc.script}})
			assert.NotZero(t, pid)
			assert.NotEqual(t, os.Getpid(), pid)

			if tc.wantCode == 0 {
				assert.NoError(t, err)
				return
			}
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tc.wantCode, exitErr.ExitCode())
		})
	}
}

func TestSupervisor_ForwardsSignals(t *testing.T) {
	requireShell(t)

	pr, pw := io.Pipe()
	s := &Supervisor{Stdout: pw, Stderr: io.Discard, Signals: []os.Signal{syscall.SIGUSR1}}

	script := `trap 'exit 7' USR1; echo ready; while :; do sleep 0.05; done`
	done := make(chan error, 1)
	go func() {
		done <- s.Handoff(context.Background(), sequencer.Command{Argv: []string{"sh", "-c", script}})
		pw.Close()
	}()

	line, err := bufio.NewReader(pr).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ready\n", line)
	go io.Copy(io.Discard, pr) //nolint:errcheck

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case err := <-done:
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 7, exitErr.ExitCode())
	case <-time.After(10 * time.Second):
		t.Fatal("child did not exit after forwarded signal")
	}
}

func TestSupervisor_NotFound(t *testing.T) {
	t.Parallel()

	err := NewSupervisor().Handoff(context.Background(), sequencer.Command{Argv: []string{"launchpad-no-such-server"}})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 127, exitErr.ExitCode())
}

func TestExitError(t *testing.T) {
	t.Parallel()

	inner := errors.New("boom")
	err := &ExitError{Code: 3, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "status 3")
	assert.Equal(t, "server exited with status 4", (&ExitError{Code: 4}).Error())
}

func TestCleanups_RunOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	c := &Cleanups{}
	c.Add(func(context.Context) { calls++ })
	c.Run(context.Background())
	c.Run(context.Background())
	assert.Equal(t, 1, calls)
}
