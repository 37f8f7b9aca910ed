// Package main is the heritage command line: it records exploration
// activity, rates content, grants achievements and queries progress against
// the configured stores. All settings come from the environment (see
// config.Load).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heritage-hub/heritage-engine/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// correlationID is shared by every command of one invocation.
var correlationID string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "heritage",
		Short:        "Heritage progress and achievement engine",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&correlationID, "correlation-id", "", "Correlation id attached to published events (default: random)")

	root.AddCommand(recordCmd())
	root.AddCommand(viewCmd())
	root.AddCommand(rateCmd())
	root.AddCommand(grantCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(deleteCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(catalogCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(journalCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	return root
}

// withApp loads the configuration, wires the engine, runs fn and shuts the
// engine down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func currentCorrelationID() string {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return correlationID
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
