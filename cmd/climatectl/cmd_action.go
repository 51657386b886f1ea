package main

import (
	"fmt"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spf13/cobra"
)

var actionMinutes int

func init() {
	cmdActionStart.Flags().IntVar(&actionMinutes, "minutes", 0, "Duration in minutes; 0 uses the configured default.")

	cmdAction.AddCommand(cmdActionStart)
	cmdAction.AddCommand(cmdActionStop)
	rootCmd.AddCommand(cmdAction)
}

var cmdAction = &cobra.Command{
	Use:   "action",
	Short: "Start or stop a quick action (boost, sleep, party, vacation)",
}

var cmdActionStart = &cobra.Command{
	Use:       "start boost|sleep|party|vacation",
	Short:     "Start a quick action; only one runs at a time",
	Example:   "climatectl action start boost --minutes 45",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"boost", "sleep", "party", "vacation"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		if err := client.startAction(ctx, args[0], actionMinutes); err != nil {
			return humane.Wrap(err, "failed to start the quick action",
				"a 409 means another action is active; stop it with 'climatectl action stop'",
				"a 400 means the action name or duration is out of range")
		}
		fmt.Printf("quick action %s started\n", args[0])
		return nil
	},
}

var cmdActionStop = &cobra.Command{
	Use:     "stop",
	Short:   "Stop the active quick action and restore the previous airflow",
	Example: "climatectl action stop",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		if err := client.stopAction(ctx); err != nil {
			return humane.Wrap(err, "failed to stop the quick action",
				"a 404 means no action is currently running")
		}
		fmt.Println("quick action stopped")
		return nil
	},
}
