//go:build unix

package runner

import (
	"os"
	"syscall"
)

// signalNumber returns the signal that killed the process, or 0.
func signalNumber(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return int(ws.Signal())
	}
	return 0
}

// terminate asks the step to stop the way a container runtime would.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
