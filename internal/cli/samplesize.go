package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sitelens/sitelens/internal/stats"
)

var samplesizeCmd = &cobra.Command{
	Use:   "samplesize",
	Short: "Estimate the per-variant sample size for an experiment",
	Long: `Interactively estimate how many users each variant needs before an
experiment can detect a given relative lift, at 95% significance and
80% power.`,
	RunE: runSamplesize,
}

func init() {
	rootCmd.AddCommand(samplesizeCmd)
}

func runSamplesize(cmd *cobra.Command, args []string) error {
	baseline, err := promptRate("Baseline conversion rate (e.g. 0.05 for 5%)", func(f float64) error {
		if f <= 0 || f >= 1 {
			return fmt.Errorf("rate must be between 0 and 1 exclusive")
		}
		return nil
	})
	if err != nil {
		return err
	}

	mde, err := promptRate("Minimum detectable effect, relative (e.g. 0.2 for a 20% lift)", func(f float64) error {
		if f <= 0 {
			return fmt.Errorf("effect must be positive")
		}
		return nil
	})
	if err != nil {
		return err
	}

	n := stats.MinimumSampleSize(baseline, mde)
	if n == 0 {
		return fmt.Errorf("sample size is undefined for these inputs")
	}

	target := baseline * (1 + mde)
	fmt.Println()
	fmt.Printf("To detect %.2f%% → %.2f%% you need %d users per variant.\n", baseline*100, target*100, n)
	return nil
}

func promptRate(label string, check func(float64) error) (float64, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			f, err := strconv.ParseFloat(input, 64)
			if err != nil {
				return fmt.Errorf("enter a decimal number")
			}
			return check(f)
		},
	}

	result, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return 0, err
	}
	return strconv.ParseFloat(result, 64)
}
