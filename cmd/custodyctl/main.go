// custodyctl drives the cheque custody API from the command line. Every call
// passes through a local dispatch throttle.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cheque-custody/backend/internal/client"
	"cheque-custody/backend/internal/throttle"
)

var (
	serverURL   string
	token       string
	minInterval time.Duration
	concurrency int

	rootCtx context.Context
	api     *client.Client
	limiter *throttle.Throttle
)

var rootCmd = &cobra.Command{
	Use:           "custodyctl",
	Short:         "Cheque custody API client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		limiter = throttle.New(throttle.Config{
			MaxConcurrent: concurrency,
			MinInterval:   minInterval,
			QueueSize:     64,
		}, nil)
		c, err := client.New(serverURL, limiter, nil)
		if err != nil {
			return err
		}
		c.SetToken(token)
		api = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if limiter != nil {
			_ = limiter.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CUSTODY_SERVER", "http://localhost:8080"), "API base URL (env CUSTODY_SERVER)")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("CUSTODY_TOKEN"), "Bearer token (env CUSTODY_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&minInterval, "min-interval", throttle.DefaultMinInterval, "Minimum spacing between requests; negative disables")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 1, "Maximum requests in flight")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCtx = ctx

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
