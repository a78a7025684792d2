// Package metrics exports the bootstrap sequence as Prometheus series.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plexident/launchpad/internal/sequencer"
)

var allStates = []sequencer.State{
	sequencer.StateWaiting,
	sequencer.StateMigrating,
	sequencer.StateCollectingAssets,
	sequencer.StateRunningHooks,
	sequencer.StateServing,
	sequencer.StateFailed,
}

// Recorder is a sequencer.Observer backed by its own registry.
type Recorder struct {
	registry *prometheus.Registry

	probeAttempts *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepExitCode  *prometheus.GaugeVec
	state         *prometheus.GaugeVec
	waitSeconds   prometheus.Gauge

	waitStarted time.Time
}

// NewRecorder creates the collectors and registers them with a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		probeAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "dependency",
				Name:      "probe_attempts_total",
				Help:      "Dependency probe attempts by result.",
			},
			[]string{"result"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "launchpad",
				Subsystem: "step",
				Name:      "duration_seconds",
				Help:      "Duration of setup steps.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7m
			},
			[]string{"step"},
		),
		stepExitCode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "launchpad",
				Subsystem: "step",
				Name:      "exit_code",
				Help:      "Exit status of the last run of each setup step.",
			},
			[]string{"step"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "launchpad",
				Name:      "state",
				Help:      "1 for the current sequencer state, 0 otherwise.",
			},
			[]string{"state"},
		),
		waitSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "launchpad",
				Subsystem: "dependency",
				Name:      "wait_seconds",
				Help:      "Time spent waiting for the dependency in the current run.",
			},
		),
	}

	r.registry.MustRegister(
		r.probeAttempts,
		r.stepDuration,
		r.stepExitCode,
		r.state,
		r.waitSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Observe(_ context.Context, ev sequencer.Event) {
	switch ev.Kind {
	case sequencer.EventTransition:
		for _, s := range allStates {
			v := 0.0
			if s == ev.To {
				v = 1
			}
			r.state.WithLabelValues(string(s)).Set(v)
		}
		if ev.To == sequencer.StateWaiting {
			r.waitStarted = ev.Time
			r.waitSeconds.Set(0)
		}
	case sequencer.EventProbeFailed:
		r.probeAttempts.WithLabelValues("failure").Inc()
		r.observeWait(ev.Time)
	case sequencer.EventProbeSucceeded:
		r.probeAttempts.WithLabelValues("success").Inc()
		r.observeWait(ev.Time)
	case sequencer.EventStepFinished:
		r.stepDuration.WithLabelValues(ev.Result.Name).Observe(float64(ev.Result.DurationMs) / 1000)
		r.stepExitCode.WithLabelValues(ev.Result.Name).Set(float64(ev.Result.ExitCode))
	}
}

func (r *Recorder) observeWait(now time.Time) {
	if !r.waitStarted.IsZero() {
		r.waitSeconds.Set(now.Sub(r.waitStarted).Seconds())
	}
}
