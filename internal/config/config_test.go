package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, filepath.Join(".dist", "data", "services.json"), cfg.Store.Path)
	assert.Equal(t, 7, cfg.Summary.WindowDays)
	assert.Equal(t, 28.0, cfg.Summary.ThresholdHours)
	assert.Equal(t, 60, cfg.PushSeconds)
}

func TestLoadSQLite(t *testing.T) {
	path := writeConfig(t, `
addr: "127.0.0.1:9000"
data_directory: /var/lib/tracker
store:
  driver: SQLite
summary:
  window_days: 14
  threshold_hours: 40
log:
  level: debug
  format: json
  file: /var/log/tracker.log
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, filepath.Join("/var/lib/tracker", "services.db"), cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	opts := cfg.Summary.Options()
	assert.Equal(t, 14*24*time.Hour, opts.Window)
	assert.Equal(t, 40.0, opts.ThresholdHours)
}

func TestLoadNormalisesNonPositiveValues(t *testing.T) {
	path := writeConfig(t, `
summary:
  window_days: 0
  threshold_hours: -1
push_interval_seconds: -5
store:
  driver: memory
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Summary.WindowDays)
	assert.Equal(t, 28.0, cfg.Summary.ThresholdHours)
	assert.Equal(t, 60, cfg.PushSeconds)
	assert.Equal(t, "", cfg.Store.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "store: [unterminated"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeConfig(t, "store:\n  driver: redis\n"))
	assert.ErrorContains(t, err, "unsupported store driver")
}
