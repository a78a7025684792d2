//go:build !unix

package runner

import "os"

func signalNumber(*os.ProcessState) int { return 0 }

func terminate(p *os.Process) error { return p.Kill() }
