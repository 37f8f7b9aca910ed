package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/heritage-hub/heritage-engine/config"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/internal/infrastructure/journal"
)

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Read the activity journal",
	}
	cmd.AddCommand(journalReplayCmd())
	cmd.AddCommand(journalStatsCmd())
	return cmd
}

func journalDir() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.Catalog.JournalDir == "" {
		return "", errNoJournal
	}
	return cfg.Catalog.JournalDir, nil
}

func journalReplayCmd() *cobra.Command {
	var eventType string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Print journal entries oldest first, one JSON object per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := journalDir()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return journal.Replay(cmd.Context(), dir, journal.DefaultPrefix, func(e journal.Entry) error {
				if eventType != "" && e.Event.Type != shared.EventType(eventType) {
					return nil
				}
				return enc.Encode(e)
			})
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "Only entries of this event type")
	return cmd
}

func journalStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count journal entries by type and find duplicate activities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := journalDir()
			if err != nil {
				return err
			}
			stats, err := journal.Collect(cmd.Context(), dir, journal.DefaultPrefix)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}
