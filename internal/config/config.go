package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"servicetracker/internal/logger"
	"servicetracker/internal/metrics"
	"servicetracker/internal/storage"
)

// Config represents configuration data for the service tracker.
type Config struct {
	Addr          string         `yaml:"addr"`
	DataDirectory string         `yaml:"data_directory"`
	Store         storage.Config `yaml:"store"`
	Summary       Summary        `yaml:"summary"`
	Log           logger.Config  `yaml:"log"`
	PushSeconds   int            `yaml:"push_interval_seconds"`
}

// Summary configures the weekly aggregation.
type Summary struct {
	WindowDays     int     `yaml:"window_days"`
	ThresholdHours float64 `yaml:"threshold_hours"`
}

// Options converts the summary settings for metrics.ComputeWeeklySummary.
func (s Summary) Options() metrics.SummaryOptions {
	return metrics.SummaryOptions{
		Window:         time.Duration(s.WindowDays) * 24 * time.Hour,
		ThresholdHours: s.ThresholdHours,
	}
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		DataDirectory: filepath.Join(".dist", "data"),
		Store: storage.Config{
			Driver: storage.DriverFile,
		},
		Summary: Summary{
			WindowDays:     7,
			ThresholdHours: metrics.DefaultThresholdHours,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "text",
		},
		PushSeconds: 60,
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Normalise(DefaultConfig())
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Normalise(DefaultConfig())
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return Normalise(cfg)
}

// Normalise fills defaults and derives the store path from the data directory.
func Normalise(cfg Config) (Config, error) {
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = defaults.DataDirectory
	}
	if cfg.Summary.WindowDays <= 0 {
		cfg.Summary.WindowDays = defaults.Summary.WindowDays
	}
	if cfg.Summary.ThresholdHours <= 0 {
		cfg.Summary.ThresholdHours = defaults.Summary.ThresholdHours
	}
	if cfg.PushSeconds <= 0 {
		cfg.PushSeconds = defaults.PushSeconds
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch cfg.Store.Driver {
	case "":
		cfg.Store.Driver = storage.DriverFile
		fallthrough
	case storage.DriverFile:
		if cfg.Store.Path == "" {
			cfg.Store.Path = filepath.Join(cfg.DataDirectory, "services.json")
		}
	case storage.DriverSQLite:
		if cfg.Store.Path == "" {
			cfg.Store.Path = filepath.Join(cfg.DataDirectory, "services.db")
		}
	case storage.DriverMemory:
	default:
		return Config{}, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
	return cfg, nil
}
