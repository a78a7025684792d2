package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plexident/launchpad/internal/sequencer"
)

func TestRecorder_Observe(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	r.Observe(ctx, sequencer.Event{Kind: sequencer.EventTransition, To: sequencer.StateWaiting, Time: t0})
	r.Observe(ctx, sequencer.Event{Kind: sequencer.EventProbeFailed, Err: errors.New("refused"), Time: t0.Add(500 * time.Millisecond)})
	r.Observe(ctx, sequencer.Event{Kind: sequencer.EventProbeFailed, Err: errors.New("refused"), Time: t0.Add(time.Second)})
	r.Observe(ctx, sequencer.Event{Kind: sequencer.EventProbeSucceeded, Time: t0.Add(1500 * time.Millisecond)})
	r.Observe(ctx, sequencer.Event{Kind: sequencer.EventTransition, From: sequencer.StateWaiting, To: sequencer.StateMigrating, Time: t0})
	r.Observe(ctx, sequencer.Event{
		Kind:   sequencer.EventStepFinished,
		Result: sequencer.StepResult{Name: sequencer.StepMigrate, ExitCode: 2, DurationMs: 1200},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.probeAttempts.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.probeAttempts.WithLabelValues("success")))
	assert.Equal(t, 1.5, testutil.ToFloat64(r.waitSeconds))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepExitCode.WithLabelValues(sequencer.StepMigrate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.state.WithLabelValues(string(sequencer.StateMigrating))))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.state.WithLabelValues(string(sequencer.StateWaiting))))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stepDuration))
}

func TestRecorder_Handler(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Observe(context.Background(), sequencer.Event{Kind: sequencer.EventProbeFailed})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `launchpad_dependency_probe_attempts_total{result="failure"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
