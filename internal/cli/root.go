package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "sitelens",
	Short: "Sitelens - web-behavior analytics: cohort metrics and A/B experiment inference",
	Long: `Sitelens turns a raw visitor-event stream into validated business decisions:
ad-hoc cohort membership metrics and statistically sound A/B test outcomes.
Single Go binary, embedded SQLite event store.

Running without a subcommand starts the server (same as 'sitelens serve').`,
	RunE: runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("SITELENS_DB_PATH", "./sitelens.db"), "database path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnvOrDefault("SITELENS_CONFIG", ""), "config file path (YAML)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
