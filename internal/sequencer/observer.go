package sequencer

import (
	"context"
	"time"
)

// EventKind tells observers which field set of an Event is populated.
type EventKind int

const (
	EventTransition EventKind = iota
	EventProbeFailed
	EventProbeSucceeded
	EventStepStarted
	EventStepFinished
)

func (k EventKind) String() string {
	switch k {
	case EventTransition:
		return "transition"
	case EventProbeFailed:
		return "probe_failed"
	case EventProbeSucceeded:
		return "probe_succeeded"
	case EventStepStarted:
		return "step_started"
	case EventStepFinished:
		return "step_finished"
	default:
		return "unknown"
	}
}

// Event is emitted by the Sequencer for every transition, probe and step.
type Event struct {
	Kind     EventKind
	Time     time.Time
	From     State
	To       State
	Endpoint Endpoint
	Attempt  int
	Err      error
	Command  Command
	Result   StepResult
}

// Observer receives sequencer events synchronously, in order. Implementations
// must not block for long: the sequence waits for them.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans every event out to each member in order.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, ev)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}
