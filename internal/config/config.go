// Package config loads the sitelens configuration from a YAML file, with
// sane defaults and environment fallbacks for the common knobs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Query   QueryConfig   `yaml:"query"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
}

type QueryConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	RetryAttempts  int `yaml:"retry_attempts"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Server:  ServerConfig{Port: 8456},
		Store:   StoreConfig{Path: getEnvOrDefault("SITELENS_DB_PATH", "./sitelens.db")},
		Cache:   CacheConfig{TTLSeconds: 300, MaxEntries: 1024},
		Query:   QueryConfig{TimeoutSeconds: 30, RetryAttempts: 2},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML config file over the defaults. A missing or unreadable
// file is an error; callers decide whether to fall back to Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c QueryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NewLogger builds the process logger from the logging section.
func (c LoggingConfig) NewLogger() *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if c.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
