package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sitelens/sitelens/internal/analytics"
	"github.com/sitelens/sitelens/internal/stats"
	"github.com/sitelens/sitelens/internal/store"
)

func init() {
	rootCmd.AddCommand(newExperimentCmd())
}

func newExperimentCmd() *cobra.Command {
	var (
		site  string
		start string
		end   string
	)

	cmd := &cobra.Command{
		Use:   "experiment <id>",
		Short: "Show results for an experiment",
		Long: `Show per-variant conversion rates, confidence intervals, statistical
significance, and sample-size guidance for one experiment.

Example:
  sitelens experiment checkout-cta --site acme`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeRange, err := parseRangeFlags(start, end)
			if err != nil {
				return err
			}

			return withService(func(svc *analytics.Service, _ *store.SQLiteStore) error {
				result, err := svc.ExperimentResults(context.Background(), site, args[0], timeRange)
				if err != nil {
					return fmt.Errorf("failed to compute experiment results: %w", err)
				}
				printExperimentResult(result)
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

func printExperimentResult(result *analytics.ExperimentResult) {
	fmt.Printf("EXPERIMENT: %s\n", result.ExperimentID)
	fmt.Printf("STATUS: %s  DAYS RUNNING: %d\n", result.Status, result.DaysRunning)
	if result.QueryFailed {
		fmt.Println("Store query failed; showing zeroed results. Try again shortly.")
		return
	}
	fmt.Println()

	fmt.Println("VARIANT           USERS    CONVERSIONS  RATE     95% CI")
	fmt.Println(strings.Repeat("─", 62))
	for i, v := range result.Variants {
		indicator := ""
		if i == 0 {
			indicator = " (control)"
		}
		if v.VariantID == result.WinnerVariantID && result.WinnerVariantID != "" {
			indicator = " ← WINNER"
		}

		ciStr := "N/A"
		if v.Users > 0 {
			lower, upper := stats.WilsonInterval(v.Conversions, v.Users, 0.95)
			ciStr = fmt.Sprintf("[%.1f%%, %.1f%%]", lower*100, upper*100)
		}

		name := v.VariantID
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		fmt.Printf("%-16s  %-7d  %-11d  %-7s  %s%s\n",
			name, v.Users, v.Conversions, formatPercent(v.ConversionRate), ciStr, indicator)
	}

	fmt.Println()
	fmt.Printf("Result: %s (%.1f%% confidence)\n", result.Message, result.ConfidenceLevel*100)
	if result.MinimumSampleSize > 0 {
		fmt.Printf("Minimum sample size per variant: %d", result.MinimumSampleSize)
		if result.HasEnoughData {
			fmt.Println(" (reached)")
		} else {
			fmt.Println(" (not yet reached)")
		}
	}

	if len(result.Goals) > 0 {
		fmt.Println()
		fmt.Println("GOAL                 VARIANT      CONVERSIONS  RATE     REVENUE")
		fmt.Println(strings.Repeat("─", 66))
		for _, g := range result.Goals {
			name := g.GoalName
			if name == "" {
				name = g.GoalID
			}
			if len(name) > 19 {
				name = name[:16] + "..."
			}
			revenue := ""
			if g.GoalType == string(store.GoalRevenue) {
				revenue = fmt.Sprintf("$%.2f", g.TotalRevenue)
			}
			fmt.Printf("%-19s  %-11s  %-11d  %-7s  %s\n",
				name, g.VariantID, g.Conversions, formatPercent(g.ConversionRate), revenue)
		}
	}
}
