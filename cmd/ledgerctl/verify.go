package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/bootstrap"
)

var errVerifyMismatch = errors.New("ledger verification found mismatches")

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		agent   string
		workers int
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Cross-check balances, daily totals and projections against the ledger",
		Long: `verify recomputes every agent's all-time and per-day totals from the raw
ledger, compares them with the aggregate queries and the stored projection,
and exits non-zero when anything disagrees.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				var reports []appsettlement.VerifyReport
				if agent != "" {
					id, err := uuid.Parse(agent)
					if err != nil {
						return fmt.Errorf("invalid agent id %q: %w", agent, err)
					}
					report, err := app.Service.VerifyAgent(ctx, id)
					if err != nil {
						return err
					}
					reports = append(reports, *report)
				} else {
					n := workers
					if n <= 0 {
						n = app.Config.Settlement.VerifyWorkers
					}
					var err error
					if reports, err = app.Service.VerifyAll(ctx, n); err != nil {
						return err
					}
				}
				return printVerify(cmd.OutOrStdout(), reports, verbose)
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "verify a single agent")
	cmd.Flags().IntVar(&workers, "workers", 0, "agents verified concurrently (default settlement.verify_workers)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print passing agents too")
	return cmd
}

// printVerify writes one JSON line per reported agent and a summary line
func printVerify(w io.Writer, reports []appsettlement.VerifyReport, verbose bool) error {
	enc := json.NewEncoder(w)
	failed := 0
	for _, r := range reports {
		if !r.OK {
			failed++
		}
		if r.OK && !verbose {
			continue
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "verified=%d failed=%d\n", len(reports), failed)
	if failed > 0 {
		return errVerifyMismatch
	}
	return nil
}
