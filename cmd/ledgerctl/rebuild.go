package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/storefront/backend/internal/bootstrap"
)

func newRebuildCmd(opts *rootOptions) *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute agent owed/paid projections from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				out := cmd.OutOrStdout()
				if agent != "" {
					id, err := uuid.Parse(agent)
					if err != nil {
						return fmt.Errorf("invalid agent id %q: %w", agent, err)
					}
					updated, err := app.Service.RebuildProjection(ctx, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "agent %s updated=%t\n", id, updated)
					return nil
				}
				res, err := app.Service.RebuildProjections(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "agents=%d updated=%d\n", res.Agents, res.Updated)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "rebuild a single agent")
	return cmd
}
