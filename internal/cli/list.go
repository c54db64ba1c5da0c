package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sitelens/sitelens/internal/analytics"
	"github.com/sitelens/sitelens/internal/store"
)

var listSite string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cohorts and experiments for a site",
	Long:  `List the cohort and experiment definitions owned by a site.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listSite, "site", "", "site id (required)")
	listCmd.MarkFlagRequired("site")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withService(func(_ *analytics.Service, s *store.SQLiteStore) error {
		ctx := context.Background()

		cohorts, err := s.ListCohorts(ctx, listSite)
		if err != nil {
			return fmt.Errorf("failed to list cohorts: %w", err)
		}
		experiments, err := s.ListExperiments(ctx, listSite)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(cohorts) == 0 && len(experiments) == 0 {
			fmt.Println("No cohorts or experiments yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if len(cohorts) > 0 {
			fmt.Fprintln(w, "COHORT\tNAME\tRULES\tCREATED")
			for _, c := range cohorts {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.Name, len(c.Rules), c.CreatedAt.Format("2006-01-02"))
			}
			fmt.Fprintln(w)
		}
		if len(experiments) > 0 {
			fmt.Fprintln(w, "EXPERIMENT\tNAME\tSTATUS\tVARIANTS\tSTARTED")
			for _, e := range experiments {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.ID, e.Name, e.Status, len(e.VariantIDs), e.StartedAt.Format("2006-01-02"))
			}
		}
		return w.Flush()
	})
}
