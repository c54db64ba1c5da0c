package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sitelens/sitelens/internal/server"
	"github.com/sitelens/sitelens/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the sitelens HTTP server.

The server provides:
  - Cohort metrics and comparison endpoints
  - Experiment results endpoint
  - Health check and Prometheus metrics

Example:
  sitelens serve --port 8456`,
	RunE: runServe,
}

func init() {
	if p := os.Getenv("SITELENS_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", port, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if port != 0 {
		cfg.Server.Port = port
	}

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	svc := newService(cfg, s)
	srv := server.New(svc, s, cfg.Logging.NewLogger(), cfg.Server.Port)

	fmt.Printf("sitelens running on http://localhost:%d\n", cfg.Server.Port)
	return srv.Start()
}
