package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/heritage-hub/heritage-engine/internal/application/query"
)

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read progress, achievements and ratings",
	}
	cmd.AddCommand(querySummaryCmd())
	cmd.AddCommand(queryAchievementsCmd())
	cmd.AddCommand(queryRatingCmd())
	return cmd
}

func querySummaryCmd() *cobra.Command {
	var (
		recent  int
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "summary <user>",
		Short: "Show a user's progress summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := query.GetProgressSummaryQuery{UserID: args[0], RecentLimit: recent, SkipCache: noCache}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.summary.Handle(ctx, q)
				if err != nil {
					return err
				}
				return printJSON(cmd, result.Summary)
			})
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 0, "Entries per recent-activity list (default: RECENT_ACTIVITY_LIMIT)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the summary cache")
	return cmd
}

func queryAchievementsCmd() *cobra.Command {
	var earnedOnly bool
	cmd := &cobra.Command{
		Use:   "achievements <user>",
		Short: "List achievements with their status for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := query.GetAchievementsQuery{UserID: args[0], EarnedOnly: earnedOnly}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.achievements.Handle(ctx, q)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().BoolVar(&earnedOnly, "earned", false, "Only earned achievements")
	return cmd
}

func queryRatingCmd() *cobra.Command {
	var includeRatings bool
	cmd := &cobra.Command{
		Use:   "rating <content>",
		Short: "Show the views and ratings of an artifact or VR experience",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := query.GetContentRatingQuery{ContentID: args[0], IncludeRatings: includeRatings}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.rating.Handle(ctx, q)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().BoolVar(&includeRatings, "ratings", false, "Include individual ratings")
	return cmd
}
