package progress

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"plexident/launchpad/internal/sequencer"
)

func TestPrinter_Lines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewPrinter(&buf)
	ctx := context.Background()
	ep := sequencer.Endpoint{Host: "db", Port: 5432}

	p.Observe(ctx, sequencer.Event{Kind: sequencer.EventTransition, To: sequencer.StateWaiting, Endpoint: ep})
	p.Observe(ctx, sequencer.Event{Kind: sequencer.EventProbeFailed, Endpoint: ep, Attempt: 1, Err: errors.New("connection refused")})
	p.Observe(ctx, sequencer.Event{Kind: sequencer.EventProbeSucceeded, Endpoint: ep, Attempt: 2})
	p.Observe(ctx, sequencer.Event{
		Kind:    sequencer.EventTransition,
		To:      sequencer.StateMigrating,
		Command: sequencer.Command{Argv: []string{"python", "manage.py", "migrate", "--noinput"}},
	})
	p.Observe(ctx, sequencer.Event{
		Kind:   sequencer.EventStepFinished,
		Result: sequencer.StepResult{Name: "migrate", Status: sequencer.StatusError, ExitCode: 2},
	})
	p.Observe(ctx, sequencer.Event{Kind: sequencer.EventTransition, To: sequencer.StateFailed})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"→ Waiting for db:5432...",
		"… db:5432 not reachable yet (attempt 1): connection refused",
		"✔ db:5432 is up",
		"→ Applying database migrations: python manage.py migrate --noinput",
		"✘ migrate failed with exit code 2",
		"✘ Start-up aborted",
	}, lines)
}

func TestPrinter_ThrottlesProbeFailures(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewPrinter(&buf)
	for i := 1; i <= 45; i++ {
		p.Observe(context.Background(), sequencer.Event{Kind: sequencer.EventProbeFailed, Attempt: i, Err: errors.New("refused")})
	}

	// attempts 1, 20 and 40
	assert.Equal(t, 3, strings.Count(buf.String(), "not reachable yet"))
}

func TestPrinter_ServingLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewPrinter(&buf).Observe(context.Background(), sequencer.Event{
		Kind: sequencer.EventTransition,
		To:   sequencer.StateServing,
		Command: sequencer.Command{Argv: []string{
			"gunicorn", "config.wsgi:application", "--bind", "0.0.0.0:8000", "--workers", "3",
		}},
	})
	assert.Equal(t, "→ Starting server: gunicorn config.wsgi:application --bind 0.0.0.0:8000 --workers 3\n", buf.String())
}
