package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/heritage-hub/heritage-engine/internal/application/command"
)

func grantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user> <achievement>",
		Short: "Grant an achievement explicitly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := command.GrantAchievementCommand{
				UserID:        args[0],
				AchievementID: args[1],
				CorrelationID: currentCorrelationID(),
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.grant.Handle(ctx, c)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <user>",
		Short: "Evaluate the catalog against a user's progress and grant what is due",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := command.CheckAchievementsCommand{
				UserID:        args[0],
				CorrelationID: currentCorrelationID(),
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.grant.Check(ctx, c)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user>",
		Short: "Delete a user's progress and ratings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := command.DeleteProgressCommand{
				UserID:        args[0],
				CorrelationID: currentCorrelationID(),
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.remove.Handle(ctx, c)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}
