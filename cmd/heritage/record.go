package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/heritage-hub/heritage-engine/internal/application/command"
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
)

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record exploration activity of a user",
	}
	cmd.AddCommand(recordItemCmd("visit <user> <tribe>", "Record a tribe visit", progress.KindTribeVisit))
	cmd.AddCommand(recordItemCmd("artifact <user> <artifact>", "Record an artifact view", progress.KindArtifactView))
	cmd.AddCommand(recordVRCmd())
	cmd.AddCommand(recordLearnCmd())
	cmd.AddCommand(recordBatchCmd())
	return cmd
}

func recordItemCmd(use, short string, kind progress.ActivityKind) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, command.RecordActivityCommand{
				UserID: args[0],
				Kind:   kind,
				ItemID: args[1],
			})
		},
	}
}

func recordVRCmd() *cobra.Command {
	var (
		score    int
		feedback bool
	)
	cmd := &cobra.Command{
		Use:   "vr <user> <experience>",
		Short: "Record a VR experience completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, command.RecordActivityCommand{
				UserID:         args[0],
				Kind:           progress.KindVRCompletion,
				ItemID:         args[1],
				Score:          score,
				SubmitFeedback: feedback,
			})
		},
	}
	cmd.Flags().IntVar(&score, "score", 0, "Completion score (0-100)")
	cmd.Flags().BoolVar(&feedback, "feedback", false, "Also rate the experience with the score")
	return cmd
}

func recordLearnCmd() *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "learn <user>",
		Short: "Add learning time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, command.RecordActivityCommand{
				UserID:  args[0],
				Kind:    progress.KindLearningTime,
				Minutes: minutes,
			})
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 0, "Minutes spent learning")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func runRecord(cmd *cobra.Command, c command.RecordActivityCommand) error {
	c.CorrelationID = currentCorrelationID()
	return withApp(cmd, func(ctx context.Context, a *app) error {
		result, err := a.activity.Handle(ctx, c)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Batch
// ─────────────────────────────────────────────────────────────────────────────

// batchItem is one entry of a batch file (YAML or JSON).
type batchItem struct {
	UserID   string `yaml:"user_id"`
	Kind     string `yaml:"kind"`
	ItemID   string `yaml:"item_id"`
	Score    int    `yaml:"score"`
	Minutes  int    `yaml:"minutes"`
	Feedback bool   `yaml:"feedback"`
}

// batchOutcome is the printed result of one item.
type batchOutcome struct {
	Index  int                           `json:"index"`
	Result *command.RecordActivityResult `json:"result,omitempty"`
	Error  string                        `json:"error,omitempty"`
}

func recordBatchCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Record a list of activities from a YAML or JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readBatchFile(file)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.batch.Handle(ctx, command.RecordBatchCommand{Items: items})
				if err != nil {
					return err
				}
				out := struct {
					Succeeded int            `json:"succeeded"`
					Failed    int            `json:"failed"`
					Items     []batchOutcome `json:"items"`
				}{Succeeded: result.Succeeded, Failed: result.Failed}
				for _, item := range result.Items {
					o := batchOutcome{Index: item.Index, Result: item.Result}
					if item.Err != nil {
						o.Error = item.Err.Error()
					}
					out.Items = append(out.Items, o)
				}
				if err := printJSON(cmd, out); err != nil {
					return err
				}
				if result.Failed > 0 {
					return fmt.Errorf("%d of %d items failed", result.Failed, len(result.Items))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Batch file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readBatchFile(path string) ([]command.RecordActivityCommand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []batchItem
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cid := currentCorrelationID()
	items := make([]command.RecordActivityCommand, len(raw))
	for i, r := range raw {
		items[i] = command.RecordActivityCommand{
			UserID:         r.UserID,
			Kind:           progress.ActivityKind(r.Kind),
			ItemID:         r.ItemID,
			Score:          r.Score,
			Minutes:        r.Minutes,
			SubmitFeedback: r.Feedback,
			CorrelationID:  cid,
		}
	}
	return items, nil
}
