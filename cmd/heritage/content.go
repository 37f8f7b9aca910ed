package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/heritage-hub/heritage-engine/internal/application/command"
)

func viewCmd() *cobra.Command {
	var (
		user   string
		unique bool
		every  bool
	)
	cmd := &cobra.Command{
		Use:   "view <content>",
		Short: "Record a view of an artifact or VR experience",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if unique && every {
				return fmt.Errorf("--unique and --every are mutually exclusive")
			}
			policy := command.ViewPolicyDefault
			switch {
			case unique:
				policy = command.ViewPolicyUnique
			case every:
				policy = command.ViewPolicyEvery
			}
			c := command.RecordViewCommand{
				ContentID:     args[0],
				UserID:        user,
				Policy:        policy,
				CorrelationID: currentCorrelationID(),
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.content.RecordView(ctx, c)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Viewer (empty for anonymous)")
	cmd.Flags().BoolVar(&unique, "unique", false, "Count one view per user")
	cmd.Flags().BoolVar(&every, "every", false, "Count every view")
	return cmd
}

func rateCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "rate <user> <content> <stars>",
		Short: "Rate an artifact or VR experience with 1-5 stars",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			stars, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("stars must be a number: %w", err)
			}
			c := command.RecordRatingCommand{
				UserID:        args[0],
				ContentID:     args[1],
				Rating:        stars,
				Comment:       comment,
				CorrelationID: currentCorrelationID(),
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.content.RecordRating(ctx, c)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "Optional comment")
	return cmd
}
