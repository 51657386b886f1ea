package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	authToken  string
	timeout    time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", envOr("AIRCON_ADDR", "http://localhost:8080"), "Base URL of the aircond API.")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("AIRCON_TOKEN"), "Bearer token; defaults to $AIRCON_TOKEN.")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout.")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var rootCmd = &cobra.Command{
	Use:           "climatectl",
	Short:         "climatectl drives the aircond zone controller over its REST API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancelCtx := context.WithTimeout(cmd.Context(), timeout)

		// cancel on SIGINT/SIGTERM so a hung request dies cleanly
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			select {
			case <-ctx.Done():
			case <-sigs:
				cancelCtx()
			}
		}()

		cmd.SetContext(clientIntoContext(ctx, newAPIClient(serverAddr, authToken, timeout)))
		return nil
	},
}
