package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"plexident/launchpad/internal/sequencer"
)

var runCmd = &cobra.Command{
	Use:   "run [-- server argv...]",
	Short: "Wait for the database, prepare the app and start the server",
	Long: `Run the full start-up sequence:

  1. wait until the database endpoint accepts TCP connections
  2. python manage.py migrate --noinput
  3. python manage.py collectstatic --noinput
  4. exec gunicorn config.wsgi:application --bind 0.0.0.0:8000 --workers 3

Arguments after -- replace the server command. A failing step aborts with
that step's exit code and the server is never started.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSequence,
}

func runSequence(cmd *cobra.Command, args []string) error {
	defer app.close()

	serveArgv, err := serveArgs(cmd, args)
	if err != nil {
		return err
	}

	plan := sequencer.NewPlan(cfg, serveArgv)
	if err := plan.Validate(); err != nil {
		return err
	}

	if err := app.startStatusServer(); err != nil {
		return err
	}

	seq := app.newSequencer(os.Stdout, os.Stdout, app.newHandoff())
	return seq.Run(cmd.Context(), plan)
}

// serveArgs returns the server override, which must follow "--" so that its
// flags are not parsed as launchpad's own.
func serveArgs(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if cmd.ArgsLenAtDash() != 0 {
		return nil, fmt.Errorf("unexpected arguments %q: the server command must follow --", args)
	}
	return args, nil
}
