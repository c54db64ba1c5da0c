package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sitelens/sitelens/internal/analytics"
	"github.com/sitelens/sitelens/internal/store"
)

func init() {
	rootCmd.AddCommand(newCompareCmd())
}

func newCompareCmd() *cobra.Command {
	var (
		site  string
		start string
		end   string
	)

	cmd := &cobra.Command{
		Use:   "compare <id> <id> [id...]",
		Short: "Compare metrics across cohorts",
		Long: `Show one row of metrics per cohort, side by side. The comparison is
presentational; no statistical inference is run across cohorts.

Example:
  sitelens compare mobile-users desktop-users --site acme`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeRange, err := parseRangeFlags(start, end)
			if err != nil {
				return err
			}

			return withService(func(svc *analytics.Service, _ *store.SQLiteStore) error {
				result, err := svc.CompareCohorts(context.Background(), site, args, timeRange)
				if err != nil {
					return fmt.Errorf("failed to compare cohorts: %w", err)
				}
				if result.QueryFailed {
					fmt.Println("Store query failed; showing zeroed results. Try again shortly.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "COHORT\tNAME\tSESSIONS\tEVENTS\tCLICKS\tEVENTS/SESSION")
				for _, row := range result.Comparison {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.2f\n",
						row.CohortID, row.CohortName, row.Sessions, row.Events, row.Clicks, row.EventsPerSession)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "site id (required)")
	cmd.Flags().StringVar(&start, "start", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "range end (YYYY-MM-DD)")
	cmd.MarkFlagRequired("site")

	return cmd
}
