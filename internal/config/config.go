package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Storage StorageConfig
	Console ConsoleConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// StorageConfig holds metadata store and log directory configuration.
type StorageConfig struct {
	DataDir      string        `envconfig:"TERMSTATE_DATA_DIR"`
	LogDir       string        `envconfig:"TERMSTATE_LOG_DIR"`
	Backend      string        `envconfig:"TERMSTATE_STORE" default:"sqlite"`
	Scope        string        `envconfig:"TERMSTATE_SCOPE" default:"default"`
	SaveInterval time.Duration `envconfig:"TERMSTATE_SAVE_INTERVAL" default:"30s"`
}

// ConsoleConfig holds defaults for new console processes.
type ConsoleConfig struct {
	HandleFormat   string `envconfig:"TERMSTATE_HANDLE_FORMAT" default:"ulid"`
	MaxOutputLines int    `envconfig:"TERMSTATE_MAX_OUTPUT_LINES" default:"1000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds the Prometheus endpoint configuration. An empty
// address disables the endpoint.
type MetricsConfig struct {
	Address string `envconfig:"METRICS_ADDR"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			Backend:      "sqlite",
			Scope:        "default",
			SaveInterval: 30 * time.Second,
		},
		Console: ConsoleConfig{
			HandleFormat:   "ulid",
			MaxOutputLines: 1000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
	_ = cfg.resolve()
	return cfg
}

// MetadataPath returns the path of the metadata store for the configured
// backend.
func (c *Config) MetadataPath() string {
	if c.Storage.Backend == "file" {
		return filepath.Join(c.Storage.DataDir, "console-procs.json")
	}
	return filepath.Join(c.Storage.DataDir, "console-procs.db")
}

// resolve fills in directories derived from the home directory and checks
// enumerated values.
func (c *Config) resolve() error {
	if c.Storage.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		c.Storage.DataDir = filepath.Join(home, ".termstate")
	}
	if c.Storage.LogDir == "" {
		c.Storage.LogDir = filepath.Join(c.Storage.DataDir, "console-logs")
	}
	switch c.Storage.Backend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("unknown metadata store %q", c.Storage.Backend)
	}
	if c.Storage.SaveInterval <= 0 {
		return fmt.Errorf("save interval must be positive, got %s", c.Storage.SaveInterval)
	}
	return nil
}
