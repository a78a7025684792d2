package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "launchpad"

// DefaultProbeInterval is the pause between two failed dependency probes.
const DefaultProbeInterval = 500 * time.Millisecond

// Prober attempts a single connection to the endpoint. A nil error means the
// dependency is reachable. Satisfied by the probe package types.
type Prober interface {
	Probe(ctx context.Context, ep Endpoint) error
}

// Sleeper pauses between probe attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Runner executes a setup command to completion. err is non-nil only when the
// command could not be run at all; code then carries the conventional shell
// status for that failure.
type Runner interface {
	Run(ctx context.Context, cmd Command) (code int, err error)
}

// Handoff transfers control to the server command. A process-replacing
// implementation does not return on success.
type Handoff interface {
	Handoff(ctx context.Context, cmd Command) error
}

// Options configures a Sequencer. Prober and Runner are required; Handoff
// only by Run.
type Options struct {
	Prober   Prober
	Sleeper  Sleeper
	Runner   Runner
	Handoff  Handoff
	Observer Observer
	Interval time.Duration
}

// Sequencer drives the wait → migrate → collect-static → serve state machine.
// It holds no state between runs besides the current State.
type Sequencer struct {
	prober   Prober
	sleeper  Sleeper
	runner   Runner
	handoff  Handoff
	observer Observer
	interval time.Duration

	running atomic.Bool
	mu      sync.RWMutex
	state   State
}

// New constructs a Sequencer. A nil Sleeper sleeps on real timers and a
// non-positive Interval falls back to DefaultProbeInterval.
func New(opts Options) *Sequencer {
	s := &Sequencer{
		prober:   opts.Prober,
		sleeper:  opts.Sleeper,
		runner:   opts.Runner,
		handoff:  opts.Handoff,
		observer: opts.Observer,
		interval: opts.Interval,
	}
	if s.sleeper == nil {
		s.sleeper = TimerSleeper{}
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.interval <= 0 {
		s.interval = DefaultProbeInterval
	}
	return s
}

// State returns the state of the current or last run.
func (s *Sequencer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Run executes the full sequence and hands off to plan.Serve. With a
// process-replacing Handoff, Run only returns on failure. A failed setup step
// is returned as *StepFailedError.
func (s *Sequencer) Run(ctx context.Context, plan Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrSequenceInProgress
	}
	defer s.running.Store(false)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "launchpad.run")

	if err := s.prepare(ctx, plan); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return err
	}

	if err := ctx.Err(); err != nil {
		s.transition(ctx, StateFailed)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return fmt.Errorf("before serve: %w", err)
	}

	s.transitionWith(ctx, Event{To: StateServing, Command: plan.Serve})
	span.SetAttributes(attribute.String("launchpad.serve", strings.Join(plan.Serve.Argv, " ")))
	span.SetStatus(codes.Ok, "")
	// Deferred calls never run after a successful exec, so the span ends here.
	span.End()

	slog.InfoContext(ctx, "handing off to server", "argv", plan.Serve.Argv)
	if err := s.handoff.Handoff(ctx, plan.Serve); err != nil {
		s.transition(ctx, StateFailed)
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Bootstrap waits for the dependency and runs the setup steps without
// serving. It returns the results of the steps that ran.
func (s *Sequencer) Bootstrap(ctx context.Context, plan Plan) ([]StepResult, error) {
	if err := plan.ValidateSetup(); err != nil {
		return nil, err
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSequenceInProgress
	}
	defer s.running.Store(false)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "launchpad.bootstrap")
	defer span.End()

	s.reset(ctx, plan.Endpoint)
	if _, err := s.wait(ctx, plan.Endpoint); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	results, err := s.runSteps(ctx, plan.Setup)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return results, err
	}
	span.SetStatus(codes.Ok, "")
	return results, nil
}

// Wait starts a run that only waits for ep: it enters
// WAITING_FOR_DEPENDENCY and blocks until the endpoint accepts a connection,
// probing every interval with no retry limit. It returns the number of failed
// attempts. Only ctx cancellation stops it early.
func (s *Sequencer) Wait(ctx context.Context, ep Endpoint) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrSequenceInProgress
	}
	defer s.running.Store(false)

	s.reset(ctx, ep)
	return s.wait(ctx, ep)
}

func (s *Sequencer) wait(ctx context.Context, ep Endpoint) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "launchpad.wait")
	defer span.End()
	span.SetAttributes(attribute.String("launchpad.endpoint", ep.String()))

	failures := 0
	for {
		err := s.prober.Probe(ctx, ep)
		if err == nil {
			s.emit(ctx, Event{Kind: EventProbeSucceeded, Endpoint: ep, Attempt: failures + 1})
			span.SetAttributes(attribute.Int("launchpad.failed_probes", failures))
			slog.InfoContext(ctx, "dependency reachable", "endpoint", ep.String(), "failed_probes", failures)
			return failures, nil
		}

		failures++
		s.emit(ctx, Event{Kind: EventProbeFailed, Endpoint: ep, Attempt: failures, Err: err})
		slog.DebugContext(ctx, "dependency not reachable yet", "endpoint", ep.String(), "attempt", failures, "error", err)

		if err := s.sleeper.Sleep(ctx, s.interval); err != nil {
			span.SetStatus(codes.Error, "wait cancelled")
			return failures, fmt.Errorf("waiting for %s: %w", ep, err)
		}
	}
}

// prepare resets the run, waits for the dependency and runs setup steps.
func (s *Sequencer) prepare(ctx context.Context, plan Plan) error {
	s.reset(ctx, plan.Endpoint)
	if _, err := s.wait(ctx, plan.Endpoint); err != nil {
		return err
	}
	_, err := s.runSteps(ctx, plan.Setup)
	return err
}

// runSteps runs each step in order and stops at the first non-zero exit.
func (s *Sequencer) runSteps(ctx context.Context, steps []Step) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			// A step that exits cleanly on SIGTERM must not start the next one.
			s.transition(ctx, StateFailed)
			return results, fmt.Errorf("before %s: %w", step.Command.Name, err)
		}
		s.transitionWith(ctx, Event{To: step.State, Command: step.Command})
		res, err := s.runStep(ctx, step.Command)
		results = append(results, res)
		if err != nil {
			s.transition(ctx, StateFailed)
			return results, err
		}
	}
	return results, nil
}

func (s *Sequencer) runStep(ctx context.Context, cmd Command) (StepResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "launchpad.step")
	defer span.End()
	span.SetAttributes(
		attribute.String("launchpad.step", cmd.Name),
		attribute.String("launchpad.argv", strings.Join(cmd.Argv, " ")),
	)

	s.emit(ctx, Event{Kind: EventStepStarted, Command: cmd})

	start := time.Now()
	code, runErr := s.runner.Run(ctx, cmd)
	if runErr != nil && code == 0 {
		code = 1
	}
	res := StepResult{
		Name:       cmd.Name,
		Argv:       cmd.Argv,
		Status:     StatusOK,
		ExitCode:   code,
		DurationMs: time.Since(start).Milliseconds(),
	}

	var err error
	if runErr != nil || code != 0 {
		res.Status = StatusError
		if runErr != nil {
			res.Error = runErr.Error()
		}
		err = &StepFailedError{Step: cmd.Name, Code: code, Err: runErr}
	}

	span.SetAttributes(attribute.Int("launchpad.exit_code", code))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.WarnContext(ctx, "step failed", "step", cmd.Name, "exit_code", code, "error", runErr)
	} else {
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "step ok", "step", cmd.Name, "duration_ms", res.DurationMs)
	}

	s.emit(ctx, Event{Kind: EventStepFinished, Command: cmd, Result: res})
	return res, err
}

// reset starts a fresh run in the initial state.
func (s *Sequencer) reset(ctx context.Context, ep Endpoint) {
	s.mu.Lock()
	s.state = ""
	s.mu.Unlock()
	s.transitionWith(ctx, Event{To: StateWaiting, Endpoint: ep})
}

func (s *Sequencer) transition(ctx context.Context, to State) {
	s.transitionWith(ctx, Event{To: to})
}

// transitionWith moves to ev.To and emits ev as the transition event.
func (s *Sequencer) transitionWith(ctx context.Context, ev Event) {
	s.mu.Lock()
	ev.From = s.state
	s.state = ev.To
	s.mu.Unlock()

	ev.Kind = EventTransition
	slog.DebugContext(ctx, "state transition", "from", string(ev.From), "to", string(ev.To))
	s.emit(ctx, ev)
}

func (s *Sequencer) emit(ctx context.Context, ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.observer.Observe(ctx, ev)
}
