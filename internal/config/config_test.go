package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "default", cfg.Storage.Scope)
	assert.Equal(t, 30*time.Second, cfg.Storage.SaveInterval)
	assert.NotEmpty(t, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(cfg.Storage.DataDir, "console-logs"), cfg.Storage.LogDir)

	assert.Equal(t, "ulid", cfg.Console.HandleFormat)
	assert.Equal(t, 1000, cfg.Console.MaxOutputLines)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Empty(t, cfg.Metrics.Address)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	dataDir := t.TempDir()
	envVars := map[string]string{
		"TERMSTATE_DATA_DIR":         dataDir,
		"TERMSTATE_STORE":            "file",
		"TERMSTATE_SCOPE":            "project-x",
		"TERMSTATE_SAVE_INTERVAL":    "5s",
		"TERMSTATE_HANDLE_FORMAT":    "uuid",
		"TERMSTATE_MAX_OUTPUT_LINES": "250",
		"LOG_LEVEL":                  "debug",
		"LOG_DEV":                    "true",
		"METRICS_ADDR":               "127.0.0.1:9464",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "console-logs"), cfg.Storage.LogDir)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "project-x", cfg.Storage.Scope)
	assert.Equal(t, 5*time.Second, cfg.Storage.SaveInterval)
	assert.Equal(t, "uuid", cfg.Console.HandleFormat)
	assert.Equal(t, 250, cfg.Console.MaxOutputLines)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Address)

	assert.Equal(t, filepath.Join(dataDir, "console-procs.json"), cfg.MetadataPath())
}

func TestLoadExplicitLogDir(t *testing.T) {
	logDir := t.TempDir()
	t.Setenv("TERMSTATE_LOG_DIR", logDir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, logDir, cfg.Storage.LogDir)
	assert.Equal(t, filepath.Join(cfg.Storage.DataDir, "console-procs.db"), cfg.MetadataPath())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown backend": {"TERMSTATE_STORE": "redis"},
		"bad interval":    {"TERMSTATE_SAVE_INTERVAL": "often"},
		"zero interval":   {"TERMSTATE_SAVE_INTERVAL": "0s"},
		"bad max lines":   {"TERMSTATE_MAX_OUTPUT_LINES": "lots"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
