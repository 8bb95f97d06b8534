package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/storefront/backend/internal/bootstrap"
	"github.com/storefront/backend/internal/domain/settlement"
)

type exportOptions struct {
	date         string
	from         string
	to           string
	workers      int
	skipExisting bool
	stdout       bool
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	eo := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger entries of one or more days as JSON lines",
		Long: `export uploads prefix/YYYY/MM/DD.jsonl for every day in the range.
Without --date or --from the previous business day is exported. --stdout
writes a single day to standard output instead of object storage.`,
		Example: `  ledgerctl export --date 2024-03-10
  ledgerctl export --from 2024-03-01 --to 2024-03-31 --skip-existing
  ledgerctl export --date 2024-03-10 --stdout > day.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				from, to, err := eo.days(app.Service.Today())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if eo.stdout {
					if !from.Equal(to) {
						return fmt.Errorf("--stdout exports a single day")
					}
					_, err := app.Exporter.WriteDay(ctx, from, out)
					return err
				}
				results, err := app.Exporter.ExportRange(ctx, from, to, eo.workers, eo.skipExisting)
				for _, r := range results {
					if r.Skipped {
						fmt.Fprintf(out, "%s skipped %s\n", r.Date, r.Key)
						continue
					}
					fmt.Fprintf(out, "%s entries=%d bytes=%d %s\n", r.Date, r.Entries, r.Bytes, r.Key)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&eo.date, "date", "", "single day to export (YYYY-MM-DD)")
	cmd.Flags().StringVar(&eo.from, "from", "", "first day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&eo.to, "to", "", "last day of the range, inclusive (default --from)")
	cmd.Flags().IntVar(&eo.workers, "workers", 4, "days exported concurrently")
	cmd.Flags().BoolVar(&eo.skipExisting, "skip-existing", false, "leave days that already have a file")
	cmd.Flags().BoolVar(&eo.stdout, "stdout", false, "write the day to standard output")
	cmd.MarkFlagsMutuallyExclusive("date", "from")
	cmd.MarkFlagsMutuallyExclusive("date", "to")
	return cmd
}

// days resolves the flags into an inclusive day range. today is the current
// business day; the default is the day before it.
func (o *exportOptions) days(today time.Time) (time.Time, time.Time, error) {
	switch {
	case o.date != "":
		d, err := settlement.ParseDay(o.date)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return d, d, nil
	case o.from != "":
		from, err := settlement.ParseDay(o.from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to := from
		if o.to != "" {
			if to, err = settlement.ParseDay(o.to); err != nil {
				return time.Time{}, time.Time{}, err
			}
		}
		if to.Before(from) {
			return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", o.to, o.from)
		}
		return from, to, nil
	case o.to != "":
		return time.Time{}, time.Time{}, fmt.Errorf("--to requires --from")
	default:
		d := settlement.NormalizeDay(today).AddDate(0, 0, -1)
		return d, d, nil
	}
}
