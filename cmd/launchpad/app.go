package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"plexident/launchpad/internal/api"
	"plexident/launchpad/internal/config"
	"plexident/launchpad/internal/events"
	"plexident/launchpad/internal/handoff"
	"plexident/launchpad/internal/metrics"
	"plexident/launchpad/internal/probe"
	"plexident/launchpad/internal/progress"
	"plexident/launchpad/internal/runner"
	"plexident/launchpad/internal/sequencer"
	"plexident/launchpad/internal/telemetry"
)

const flushTimeout = 5 * time.Second

// AppContext holds the dependencies shared across subcommands. It is built
// once in PersistentPreRunE.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	prober       sequencer.Prober
	publisher    *events.Publisher
	tracker      *sequencer.Tracker
	recorder     *metrics.Recorder

	// cleanups run right before exec, or on return when no exec happens.
	cleanups *handoff.Cleanups
}

func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{
		cfg:      cfg,
		tracker:  sequencer.NewTracker(),
		recorder: metrics.NewRecorder(),
		cleanups: &handoff.Cleanups{},
	}

	prober, err := probe.New(cfg.Dependency)
	if err != nil {
		return nil, err
	}
	app.prober = prober

	// A missing collector must never block start-up.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(ctx, cfg.Telemetry)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
			app.cleanups.Add(func(ctx context.Context) {
				shutCtx, cancel := context.WithTimeout(ctx, flushTimeout)
				defer cancel()
				if err := tp.Shutdown(shutCtx); err != nil {
					slog.Warn("OTEL shutdown error", "err", err)
				}
			})
		}
	}

	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, cfg.Telemetry.ServiceName)
		if err != nil {
			slog.Warn("lifecycle events disabled", "err", err)
		} else {
			app.publisher = pub
			slog.Info("publishing lifecycle events", "subject", pub.Subject())
			app.cleanups.Add(func(context.Context) {
				if err := pub.Close(flushTimeout); err != nil {
					slog.Warn("closing event bus", "err", err)
				}
			})
		}
	}

	return app, nil
}

// newSequencer wires a sequencer whose progress lines go to progressOut and
// whose setup commands write to stepOut.
func (a *AppContext) newSequencer(progressOut, stepOut io.Writer, h sequencer.Handoff) *sequencer.Sequencer {
	observers := sequencer.Observers{
		progress.NewPrinter(progressOut),
		a.tracker,
		a.recorder,
	}
	if a.publisher != nil {
		observers = append(observers, a.publisher)
	}

	r := runner.New()
	r.Stdout = stepOut

	return sequencer.New(sequencer.Options{
		Prober:   a.prober,
		Runner:   r,
		Handoff:  h,
		Observer: observers,
		Interval: a.cfg.Dependency.ProbeInterval,
	})
}

// newHandoff picks process replacement unless supervision is configured or
// the platform cannot exec.
func (a *AppContext) newHandoff() sequencer.Handoff {
	if a.cfg.Server.Handoff == config.HandoffExec {
		if handoff.Supported {
			return handoff.NewReplacer(a.cleanups)
		}
		slog.Warn("process replacement not supported here, supervising the server instead")
	}
	return handoff.NewSupervisor()
}

// startStatusServer starts the status API when enabled. Its shutdown is
// registered as a cleanup so the port is released before exec.
func (a *AppContext) startStatusServer() error {
	if !a.cfg.Status.Enabled {
		return nil
	}

	targets := []api.Target{{
		Name:     a.cfg.Dependency.Kind,
		Prober:   a.prober,
		Endpoint: endpoint(a.cfg),
	}}
	if a.publisher != nil {
		targets = append(targets, api.Target{Name: "nats", Prober: a.publisher})
	}

	srv := api.NewServer(a.cfg.Status, api.NewRouter(api.Options{
		ServiceName: a.cfg.Telemetry.ServiceName,
		Status:      a.tracker,
		Targets:     targets,
		Metrics:     a.recorder.Handler(),

		DeepHealthRate: a.cfg.Status.DeepHealthRate,
	}))
	if err := srv.Start(); err != nil {
		return err
	}
	a.cleanups.Add(func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("status server shutdown", "err", err)
		}
	})
	return nil
}

// close runs the pending cleanups. It is a no-op after a successful exec
// already ran them.
func (a *AppContext) close() {
	a.cleanups.Run(context.Background())
}

func endpoint(cfg *config.Config) sequencer.Endpoint {
	return sequencer.Endpoint{Host: cfg.Dependency.Host, Port: cfg.Dependency.Port}
}
