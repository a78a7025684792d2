package main

import (
	"os"

	"github.com/spf13/cobra"

	"plexident/launchpad/internal/sequencer"
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Block until the database endpoint accepts connections",
	Long: `Probe the configured database endpoint until it accepts a connection,
then exit 0. There is no retry limit; only SIGINT or SIGTERM end the wait
early.`,
	Args: cobra.NoArgs,
	RunE: runWait,
}

func runWait(cmd *cobra.Command, _ []string) error {
	defer app.close()

	seq := app.newSequencer(os.Stdout, os.Stdout, nil)
	_, err := seq.Wait(cmd.Context(), sequencer.NewPlan(cfg, nil).Endpoint)
	return err
}
