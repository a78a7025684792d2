package sequencer

import (
	"errors"
	"fmt"
)

// ErrSequenceInProgress is returned when Run or Bootstrap is called while
// another sequence is still running on the same Sequencer.
var ErrSequenceInProgress = errors.New("sequence already in progress")

// ErrInvalidCommand is returned for a step or server command without argv.
var ErrInvalidCommand = errors.New("command has no argv")

// StepFailedError aborts the sequence. Code is the step's own exit status and
// becomes the exit status of the process.
type StepFailedError struct {
	Step string
	Code int
	Err  error
}

func (e *StepFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %s failed (exit %d): %v", e.Step, e.Code, e.Err)
	}
	return fmt.Sprintf("step %s failed (exit %d)", e.Step, e.Code)
}

func (e *StepFailedError) Unwrap() error { return e.Err }

// ExitCode returns the status the process should exit with.
func (e *StepFailedError) ExitCode() int { return e.Code }
