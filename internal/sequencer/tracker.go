package sequencer

import (
	"context"
	"sync"
	"time"
)

// Tracker is an Observer that keeps the Report of the current run for
// readers on other goroutines (the status API).
type Tracker struct {
	mu     sync.RWMutex
	report Report
}

// NewTracker returns a Tracker whose report has no state yet.
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Observe(_ context.Context, ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case EventTransition:
		if ev.From == "" {
			// A new run starts from scratch.
			t.report = Report{StartedAt: ev.Time, Endpoint: ev.Endpoint}
		}
		t.report.State = ev.To
		if ev.To == StateServing {
			t.report.Serve = ev.Command.Argv
		}
	case EventProbeFailed:
		t.report.ProbeAttempts = ev.Attempt
		if ev.Err != nil {
			t.report.LastProbeErr = ev.Err.Error()
		}
	case EventProbeSucceeded:
		t.report.ProbeAttempts = ev.Attempt
		t.report.LastProbeErr = ""
	case EventStepStarted:
		t.report.Steps = append(t.report.Steps, StepResult{
			Name:   ev.Command.Name,
			Argv:   ev.Command.Argv,
			Status: StatusInProgress,
		})
	case EventStepFinished:
		if n := len(t.report.Steps); n > 0 && t.report.Steps[n-1].Name == ev.Result.Name {
			t.report.Steps[n-1] = ev.Result
		} else {
			t.report.Steps = append(t.report.Steps, ev.Result)
		}
	}
	t.report.UpdatedAt = ev.Time
}

// Snapshot returns a copy of the current report.
func (t *Tracker) Snapshot() Report {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r := t.report
	r.Steps = append([]StepResult(nil), t.report.Steps...)
	r.Serve = append([]string(nil), t.report.Serve...)
	return r
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.report.State
}

// Ready reports whether the run reached SERVING.
func (t *Tracker) Ready() bool {
	return t.State() == StateServing
}

// Uptime returns how long the current run has been going.
func (t *Tracker) Uptime(now time.Time) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.report.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(t.report.StartedAt)
}
