package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8456 {
		t.Errorf("unexpected default port: %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL() != 5*time.Minute {
		t.Errorf("unexpected default TTL: %v", cfg.Cache.TTL())
	}
	if cfg.Cache.MaxEntries != 1024 {
		t.Errorf("unexpected default max entries: %d", cfg.Cache.MaxEntries)
	}
	if cfg.Query.Timeout() != 30*time.Second {
		t.Errorf("unexpected default query timeout: %v", cfg.Query.Timeout())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("unexpected default log level: %q", cfg.Logging.Level)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9000
cache:
  ttl_seconds: 60
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port not overridden: %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL() != time.Minute {
		t.Errorf("ttl not overridden: %v", cfg.Cache.TTL())
	}
	// Sections absent from the file keep their defaults.
	if cfg.Query.TimeoutSeconds != 30 {
		t.Errorf("untouched section lost its default: %d", cfg.Query.TimeoutSeconds)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("format not overridden: %q", cfg.Logging.Format)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if cfg.Server.Port != 8456 {
		t.Errorf("expected defaults alongside the error, got port %d", cfg.Server.Port)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestNewLogger(t *testing.T) {
	log := LoggingConfig{Level: "debug", Format: "json"}.NewLogger()
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("unexpected level: %v", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("unexpected formatter: %T", log.Formatter)
	}

	// Unknown levels fall back to info.
	log = LoggingConfig{Level: "chatty"}.NewLogger()
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("unexpected fallback level: %v", log.GetLevel())
	}
}
