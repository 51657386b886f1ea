package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spf13/cobra"

	"aircon_manager/internal/models"
)

var statusJSON bool

func init() {
	cmdStatus.Flags().BoolVar(&statusJSON, "json", false, "Print the raw snapshot as JSON.")

	rootCmd.AddCommand(cmdStatus)
	rootCmd.AddCommand(cmdCritical)
}

var cmdStatus = &cobra.Command{
	Use:     "status",
	Short:   "Show the controller snapshot with per-room details",
	Example: "climatectl status",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		st, err := client.state(ctx)
		if err != nil {
			return humane.Wrap(err, "failed to load controller state",
				"check that aircond is running and --addr points at it",
				"sign in with 'climatectl login' and export AIRCON_TOKEN")
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		printSnapshot(st)
		return nil
	},
}

var cmdCritical = &cobra.Command{
	Use:     "critical",
	Short:   "Show the critical temperature status of every watched room",
	Example: "climatectl critical",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		statuses, err := client.criticalStatuses(ctx)
		if err != nil {
			return humane.Wrap(err, "failed to load critical statuses",
				"check that aircond is running and --addr points at it")
		}
		if len(statuses) == 0 {
			fmt.Println("no rooms have a critical temperature limit configured")
			return nil
		}

		rooms := make([]string, 0, len(statuses))
		for room := range statuses {
			rooms = append(rooms, room)
		}
		sort.Strings(rooms)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROOM\tSTATUS")
		for _, room := range rooms {
			fmt.Fprintf(w, "%s\t%s\n", room, statuses[room])
		}
		return w.Flush()
	},
}

func printSnapshot(st models.ControllerSnapshot) {
	unit := "off"
	if st.UnitOn {
		unit = fmt.Sprintf("on (%s", st.Mode)
		if st.UnitFanSpeed != "" {
			unit += ", fan " + string(st.UnitFanSpeed)
		}
		if st.UnitSetpoint != 0 {
			unit += fmt.Sprintf(", setpoint %.1f", st.UnitSetpoint)
		}
		unit += ")"
	}
	fmt.Printf("Unit:      %s\n", unit)
	fmt.Printf("Target:    %.1f\n", st.TargetTemp)
	fmt.Printf("Override:  %s\n", onOff(st.ManualOverride))
	if st.QuickAction.Active != models.ActionNone && st.QuickAction.Active != "" {
		if st.QuickAction.ExpiresAt != nil {
			fmt.Printf("Action:    %s (expires %s)\n", st.QuickAction.Active, st.QuickAction.ExpiresAt.Local().Format("15:04"))
		} else {
			fmt.Printf("Action:    %s\n", st.QuickAction.Active)
		}
	}
	if st.LearningEnabled {
		fmt.Printf("Learning:  %s\n", st.LearningMode)
	}
	if st.ErrorCount > 0 {
		fmt.Printf("Errors:    %d\n", st.ErrorCount)
	}
	if !st.LastCycleAt.IsZero() {
		fmt.Printf("Last cycle: %s\n", st.LastCycleAt.Local().Format("2006-01-02 15:04:05"))
	}

	if len(st.Rooms) == 0 {
		return
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROOM\tTEMP\tTARGET\tAIRFLOW\tOVERRIDE")
	for _, r := range st.Rooms {
		temp := "-"
		if r.CurrentTemp != nil {
			temp = fmt.Sprintf("%.1f", *r.CurrentTemp)
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%d%%\t%s\n", r.Name, temp, r.EffectiveTarget, r.LastCommanded, onOff(r.Override))
	}
	_ = w.Flush()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
