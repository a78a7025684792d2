//go:build !unix

package handoff

import (
	"context"
	"os"
	"os/exec"

	"plexident/launchpad/internal/sequencer"
)

// Supported reports whether Replacer can exec on this platform.
const Supported = false

var forwardedSignals = []os.Signal{os.Interrupt}

// Replacer is unavailable without exec(2); callers fall back to Supervisor.
type Replacer struct{}

func NewReplacer(*Cleanups) *Replacer { return &Replacer{} }

func (*Replacer) Handoff(context.Context, sequencer.Command) error { return ErrUnsupported }

func signalNumber(*exec.ExitError) int { return 0 }
