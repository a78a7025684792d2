package sequencer

import (
	"fmt"
	"strconv"
	"strings"

	"plexident/launchpad/internal/config"
)

// Plan is the fixed sequence for one run: the endpoint to await, the setup
// steps in order, and the server command to hand off to.
type Plan struct {
	Endpoint Endpoint
	Setup    []Step
	Serve    Command
}

// NewPlan builds the plan from configuration:
//
//	python manage.py migrate --noinput
//	python manage.py collectstatic --noinput
//	python manage.py <hook...>              (one per configured hook)
//	gunicorn config.wsgi:application --bind 0.0.0.0:8000 --workers 3
//
// A non-empty serveArgv replaces the server command.
func NewPlan(cfg *config.Config, serveArgv []string) Plan {
	manage := func(args ...string) []string {
		return append([]string{cfg.App.Python, cfg.App.Manage}, args...)
	}

	steps := []Step{
		{
			State:   StateMigrating,
			Command: Command{Name: StepMigrate, Argv: manage("migrate", "--noinput"), Dir: cfg.App.Workdir},
		},
		{
			State:   StateCollectingAssets,
			Command: Command{Name: StepCollectStatic, Argv: manage("collectstatic", "--noinput"), Dir: cfg.App.Workdir},
		},
	}
	for _, hook := range cfg.App.Hooks {
		steps = append(steps, Step{
			State: StateRunningHooks,
			Command: Command{
				Name: "hook:" + strings.Join(hook, " "),
				Argv: manage(hook...),
				Dir:  cfg.App.Workdir,
			},
		})
	}

	serve := Command{
		Name: StepServe,
		Argv: []string{
			cfg.Server.Command, cfg.Server.WSGI,
			"--bind", cfg.Server.BindAddr(),
			"--workers", strconv.Itoa(cfg.Server.Workers),
		},
		Dir: cfg.App.Workdir,
	}
	if len(serveArgv) > 0 {
		serve.Argv = append([]string(nil), serveArgv...)
	}

	return Plan{
		Endpoint: Endpoint{Host: cfg.Dependency.Host, Port: cfg.Dependency.Port},
		Setup:    steps,
		Serve:    serve,
	}
}

// ValidateSetup checks the endpoint and every setup step.
func (p Plan) ValidateSetup() error {
	if p.Endpoint.Host == "" || p.Endpoint.Port <= 0 {
		return fmt.Errorf("invalid endpoint %q", p.Endpoint.String())
	}
	for _, step := range p.Setup {
		if len(step.Command.Argv) == 0 || step.Command.Argv[0] == "" {
			return fmt.Errorf("step %s: %w", step.Command.Name, ErrInvalidCommand)
		}
	}
	return nil
}

// Validate checks the whole plan including the server command.
func (p Plan) Validate() error {
	if err := p.ValidateSetup(); err != nil {
		return err
	}
	if len(p.Serve.Argv) == 0 || p.Serve.Argv[0] == "" {
		return fmt.Errorf("step %s: %w", p.Serve.Name, ErrInvalidCommand)
	}
	return nil
}
