package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heritage-hub/heritage-engine/config"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/persistence/postgres"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/persistence/sqlite"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			return runMigrate(cmd, action)
		},
	}
	return cmd
}

func runMigrate(cmd *cobra.Command, action string) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch cfg.Store.Backend {
	case config.StoreMemory:
		return fmt.Errorf("the memory backend has no schema")
	case config.StoreSQLite:
		// The schema is applied whenever the database is opened.
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema is current: %s\n", cfg.Store.SQLitePath)
		return db.Close()
	}

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Store.DatabaseURL, postgres.DefaultPoolOptions())
	if err != nil {
		return err
	}
	defer conn.Close()
	migrator := postgres.NewMigrator(conn)

	switch action {
	case "up":
		n, err := migrator.Migrate(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", n)
		return nil
	case "down":
		if err := migrator.Rollback(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "rolled back the last migration")
		return nil
	case "status":
		status, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
		for _, m := range status {
			applied := "-"
			if m.IsApplied {
				applied = m.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown migrate action %q", action)
}
