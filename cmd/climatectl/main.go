package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sierrasoftworks/humane-errors-go"
)

type apiClientContextKey int

const defaultAPIClientContextKey apiClientContextKey = 0

func clientIntoContext(ctx context.Context, client *apiClient) context.Context {
	return context.WithValue(ctx, defaultAPIClientContextKey, client)
}

func clientFromContext(ctx context.Context) *apiClient {
	client, ok := ctx.Value(defaultAPIClientContextKey).(*apiClient)
	if !ok {
		panic("api client not found in context")
	}
	return client
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var herr humane.Error
		if errors.As(err, &herr) {
			fmt.Fprintln(os.Stderr, herr.Display())
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
