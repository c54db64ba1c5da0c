package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sitelens/sitelens/internal/analytics"
	"github.com/sitelens/sitelens/internal/store"
)

func init() {
	rootCmd.AddCommand(newCohortCmd())
}

func newCohortCmd() *cobra.Command {
	var (
		site  string
		start string
		end   string
	)

	cmd := &cobra.Command{
		Use:   "cohort <id>",
		Short: "Show metrics for a cohort",
		Long: `Show session, event, and click metrics for one cohort, with top-page and
device breakdowns.

Examples:
  sitelens cohort mobile-users --site acme
  sitelens cohort mobile-users --site acme --start 2026-07-01 --end 2026-08-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeRange, err := parseRangeFlags(start, end)
			if err != nil {
				return err
			}

			return withService(func(svc *analytics.Service, _ *store.SQLiteStore) error {
				result, err := svc.CohortMetrics(context.Background(), site, args[0], timeRange)
				if err != nil {
					return fmt.Errorf("failed to compute cohort metrics: %w", err)
				}
				printCohortMetrics(result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "site id (required)")
	cmd.Flags().StringVar(&start, "start", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "range end (YYYY-MM-DD)")
	cmd.MarkFlagRequired("site")

	return cmd
}

func printCohortMetrics(result *analytics.CohortMetrics) {
	fmt.Printf("COHORT: %s (%s)\n", result.Cohort.Name, result.Cohort.ID)
	if result.QueryFailed {
		fmt.Println("Store query failed; showing zeroed results. Try again shortly.")
		return
	}

	m := result.Metrics
	fmt.Printf("SESSIONS: %d  EVENTS: %d  VISITORS: %d\n", m.Sessions, m.TotalEvents, m.Visitors)
	fmt.Printf("CLICK RATE: %s  EVENTS/SESSION: %.2f\n", formatPercent(m.ClickRate), m.EventsPerSession)

	if len(result.TopPages) > 0 {
		fmt.Println()
		fmt.Println("TOP PAGES            SESSIONS  EVENTS")
		fmt.Println(strings.Repeat("─", 42))
		for _, p := range result.TopPages {
			url := p.PageURL
			if len(url) > 19 {
				url = url[:16] + "..."
			}
			fmt.Printf("%-19s  %-8d  %d\n", url, p.Sessions, p.Events)
		}
	}

	if len(result.DeviceBreakdown) > 0 {
		fmt.Println()
		fmt.Println("DEVICE     SESSIONS  SHARE")
		fmt.Println(strings.Repeat("─", 28))
		for _, d := range result.DeviceBreakdown {
			fmt.Printf("%-9s  %-8d  %s\n", d.DeviceType, d.Sessions, formatPercent(d.Share))
		}
	}
}
