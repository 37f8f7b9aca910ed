package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heritage-hub/heritage-engine/config"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/catalog"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and publish the achievement catalog",
	}
	cmd.AddCommand(catalogValidateCmd())
	cmd.AddCommand(catalogListCmd())
	cmd.AddCommand(catalogSyncCmd())
	cmd.AddCommand(catalogDefaultCmd())
	return cmd
}

func catalogValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a catalog file (schema, prerequisites, cycles)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d achievements, %d content items (%d tribes)\n",
				args[0], loaded.Achievements.Len(), len(loaded.Items), loaded.TotalTribes())
			return nil
		},
	}
}

func catalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the achievements of the configured catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			loaded, err := loadCatalog(cfg.Catalog.Path)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPOINTS\tRARITY\tREQUIRES")
			for _, d := range loaded.Achievements.ListAll() {
				requires := strings.Join(d.AllPrerequisites(), ",")
				if requires == "" {
					requires = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.ID, d.Name, d.Points, d.Rarity, requires)
			}
			return tw.Flush()
		},
	}
}

func catalogSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Write the catalog's content items to the store's directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				syncer, ok := a.directory.(directorySyncer)
				if !ok {
					return fmt.Errorf("the %s backend keeps no content directory", a.cfg.Store.Backend)
				}
				n, err := syncer.Sync(ctx, a.catalog.Items)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced %d content items\n", n)
				return nil
			})
		},
	}
}

func catalogDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default",
		Short: "Print the embedded default catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(catalog.DefaultDocument())
			return err
		},
	}
}
