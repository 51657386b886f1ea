package main

import (
	"fmt"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spf13/cobra"
)

var overrideRoom string

func init() {
	cmdOverride.Flags().StringVar(&overrideRoom, "room", "", "Override a single room instead of the whole controller.")

	rootCmd.AddCommand(cmdOptimize)
	rootCmd.AddCommand(cmdOverride)
}

var cmdOptimize = &cobra.Command{
	Use:     "optimize",
	Short:   "Run a control cycle immediately instead of waiting for the next tick",
	Example: "climatectl optimize",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		if err := client.optimize(ctx); err != nil {
			return humane.Wrap(err, "failed to run an optimization cycle",
				"a 503 means the controller is still in its startup delay; wait and retry")
		}
		fmt.Println("optimization cycle complete")
		return nil
	},
}

var cmdOverride = &cobra.Command{
	Use:       "override on|off",
	Short:     "Toggle the manual override, globally or for one room",
	Example:   "climatectl override on --room bedroom",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled := args[0] == "on"
		if !enabled && args[0] != "off" {
			return humane.New("override takes 'on' or 'off'",
				"run 'climatectl override on' or 'climatectl override off'")
		}

		ctx := cmd.Context()
		client := clientFromContext(ctx)

		var err error
		if overrideRoom != "" {
			err = client.setRoomOverride(ctx, overrideRoom, enabled)
		} else {
			err = client.setOverride(ctx, enabled)
		}
		if err != nil {
			return humane.Wrap(err, "failed to set override",
				"a 404 means the room name does not match the configuration")
		}

		if overrideRoom != "" {
			fmt.Printf("override %s for room %s\n", args[0], overrideRoom)
		} else {
			fmt.Printf("manual override %s\n", args[0])
		}
		return nil
	},
}
