package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/sitelens/sitelens/internal/analytics"
	"github.com/sitelens/sitelens/internal/cache"
	"github.com/sitelens/sitelens/internal/config"
	"github.com/sitelens/sitelens/internal/store"
)

// loadConfig resolves the effective configuration: the --config file when
// given, defaults otherwise. The --db flag wins over both.
func loadConfig() config.Config {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Warning: %v, using defaults\n", err)
		} else {
			cfg = loaded
		}
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	return cfg
}

// withService opens the store, wires the orchestrator, executes fn, and
// handles cleanup.
func withService(fn func(*analytics.Service, *store.SQLiteStore) error) error {
	cfg := loadConfig()

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(newService(cfg, s), s)
}

func newService(cfg config.Config, s *store.SQLiteStore) *analytics.Service {
	log := cfg.Logging.NewLogger()
	agg := analytics.NewAggregator(s, log, cfg.Query.Timeout(), uint64(cfg.Query.RetryAttempts))
	return analytics.NewService(s, agg, cache.New(cfg.Cache.MaxEntries), cfg.Cache.TTL(), log)
}

// parseRangeFlags turns optional --start/--end values (YYYY-MM-DD) into a
// TimeRange; both empty means the default trailing window.
func parseRangeFlags(start, end string) (store.TimeRange, error) {
	if start == "" && end == "" {
		return store.TimeRange{}, nil
	}
	if start == "" || end == "" {
		return store.TimeRange{}, errors.New("--start and --end must be given together")
	}
	startAt, err := time.Parse("2006-01-02", start)
	if err != nil {
		return store.TimeRange{}, fmt.Errorf("invalid --start: %w", err)
	}
	endAt, err := time.Parse("2006-01-02", end)
	if err != nil {
		return store.TimeRange{}, fmt.Errorf("invalid --end: %w", err)
	}
	if !endAt.After(startAt) {
		return store.TimeRange{}, errors.New("--end must be after --start")
	}
	return store.TimeRange{Start: startAt, End: endAt}, nil
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
