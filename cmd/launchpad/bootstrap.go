package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"plexident/launchpad/internal/sequencer"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Wait for the database and prepare the app without serving",
	Long: `Bootstrap runs the wait, migrate and collect-static phases, then exits
instead of starting the server. It is meant for init containers and release
jobs: a JSON result is printed to stdout and the exit code is that of the
failed step, or 0.`,
	Args: cobra.NoArgs,
	RunE: runBootstrap,
}

type bootstrapResult struct {
	Status   string                 `json:"status"`
	Endpoint string                 `json:"endpoint"`
	Steps    []sequencer.StepResult `json:"steps"`
	Error    string                 `json:"error,omitempty"`
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	defer app.close()

	plan := sequencer.NewPlan(cfg, nil)
	if err := app.startStatusServer(); err != nil {
		return err
	}

	// stdout is reserved for the JSON result.
	seq := app.newSequencer(os.Stderr, os.Stderr, nil)
	steps, err := seq.Bootstrap(cmd.Context(), plan)

	result := bootstrapResult{
		Status:   sequencer.StatusOK,
		Endpoint: plan.Endpoint.String(),
		Steps:    steps,
	}
	if result.Steps == nil {
		result.Steps = []sequencer.StepResult{}
	}
	if err != nil {
		result.Status = sequencer.StatusError
		result.Error = err.Error()
	}
	printBootstrapResult(result)

	if err != nil {
		var stepErr *sequencer.StepFailedError
		if errors.As(err, &stepErr) {
			return stepErr
		}
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	slog.Info("bootstrap completed successfully")
	return nil
}

func printBootstrapResult(result bootstrapResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", result.Status)
	}
}
