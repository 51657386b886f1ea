package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spf13/cobra"
)

var (
	logsFrom string
	logsTo   string
	logsType string
)

func init() {
	cmdLogs.Flags().StringVar(&logsFrom, "from", "", "Start of range (RFC3339 or YYYY-MM-DD).")
	cmdLogs.Flags().StringVar(&logsTo, "to", "", "End of range (RFC3339 or YYYY-MM-DD; date-only means end of day).")
	cmdLogs.Flags().StringVar(&logsType, "type", "", "Event type filter, e.g. MODE_CHANGE or CRITICAL.")

	rootCmd.AddCommand(cmdLogs)
}

var cmdLogs = &cobra.Command{
	Use:     "logs",
	Short:   "List control events, optionally filtered by time range and type",
	Example: "climatectl logs --from 2026-08-01 --type critical",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		events, err := client.logs(ctx, logsFrom, logsTo, logsType)
		if err != nil {
			return humane.Wrap(err, "failed to list control events",
				"a 400 means the time filters could not be parsed; use RFC3339 or YYYY-MM-DD")
		}
		if len(events) == 0 {
			fmt.Println("no events in range")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tDESCRIPTION")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.OccurredAt.Local().Format("2006-01-02 15:04:05"), e.Type, e.Description)
		}
		return w.Flush()
	},
}
