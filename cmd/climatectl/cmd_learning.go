package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spf13/cobra"
)

var (
	learningMode string
	learningRoom string
)

func init() {
	cmdLearningEnable.Flags().StringVar(&learningMode, "mode", "", "Learning mode: passive or active. Empty keeps the current mode.")
	cmdLearningReset.Flags().StringVar(&learningRoom, "room", "", "Reset a single room; empty resets every room.")

	cmdLearning.AddCommand(cmdLearningEnable)
	cmdLearning.AddCommand(cmdLearningDisable)
	cmdLearning.AddCommand(cmdLearningReset)
	rootCmd.AddCommand(cmdLearning)
}

var cmdLearning = &cobra.Command{
	Use:     "learning",
	Short:   "Inspect and control the per-room thermal learning",
	Example: "climatectl learning",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		rep, err := client.learningReport(ctx)
		if err != nil {
			return humane.Wrap(err, "failed to load the learning report",
				"check that aircond is running and --addr points at it")
		}

		if !rep.Enabled {
			fmt.Println("learning: disabled")
		} else {
			fmt.Printf("learning: enabled (%s)\n", rep.Mode)
		}
		if len(rep.Rooms) == 0 {
			return nil
		}

		rooms := make([]string, 0, len(rep.Rooms))
		for room := range rep.Rooms {
			rooms = append(rooms, room)
		}
		sort.Strings(rooms)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROOM\tCONFIDENCE\tDATA POINTS\tBIAS\tTHERMAL MASS")
		for _, room := range rooms {
			p := rep.Rooms[room].Profile
			fmt.Fprintf(w, "%s\t%.2f\t%d\t%+.2f\t%.2f\n", room, p.Confidence, p.DataPointCount, p.BalancingBias, p.ThermalMass)
		}
		return w.Flush()
	},
}

var cmdLearningEnable = &cobra.Command{
	Use:     "enable",
	Short:   "Turn learning on",
	Example: "climatectl learning enable --mode active",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		if err := client.enableLearning(ctx, learningMode); err != nil {
			return humane.Wrap(err, "failed to enable learning",
				"mode must be 'passive' or 'active'")
		}
		fmt.Println("learning enabled")
		return nil
	},
}

var cmdLearningDisable = &cobra.Command{
	Use:     "disable",
	Short:   "Turn learning off; profiles are kept",
	Example: "climatectl learning disable",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		if err := client.disableLearning(ctx); err != nil {
			return humane.Wrap(err, "failed to disable learning")
		}
		fmt.Println("learning disabled")
		return nil
	},
}

var cmdLearningReset = &cobra.Command{
	Use:     "reset",
	Short:   "Reset learned profiles to their defaults",
	Example: "climatectl learning reset --room bedroom",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		if err := client.resetLearning(ctx, learningRoom); err != nil {
			return humane.Wrap(err, "failed to reset learning",
				"a 404 means the room name does not match the configuration")
		}
		if learningRoom != "" {
			fmt.Printf("learning profile reset for %s\n", learningRoom)
		} else {
			fmt.Println("all learning profiles reset")
		}
		return nil
	},
}
