package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. A missing file is not an
// error: the archiver runs on built-in defaults.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("Config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

func (c *AppConfig) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	s := &c.Sync
	if s.Concurrency <= 0 {
		s.Concurrency = 16
	}
	if s.BatchDelay == 0 {
		s.BatchDelay = 100 * time.Millisecond
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = 30 * time.Second
	}
	if s.MaxErrors <= 0 {
		s.MaxErrors = 10
	}
	if s.InitialBatch == 0 {
		s.InitialBatch = 500
	}
	if s.MaxBatch == 0 {
		s.MaxBatch = 50_000
	}
	if s.MinBatch == 0 {
		s.MinBatch = 10
	}
	if s.FlushThreshold <= 0 {
		s.FlushThreshold = 5_000
	}
	if s.ProgressEvery <= 0 {
		s.ProgressEvery = 50
	}
	if s.RangeRetryDelay == 0 {
		s.RangeRetryDelay = 200 * time.Millisecond
	}
	if s.Compression == "" {
		s.Compression = "zstd"
	}

	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Minute
	}
}

func (c *AppConfig) validate() error {
	s := c.Sync
	if s.MinBatch > s.InitialBatch || s.InitialBatch > s.MaxBatch {
		return fmt.Errorf(
			"invalid batch bounds: min %d, initial %d, max %d",
			s.MinBatch, s.InitialBatch, s.MaxBatch,
		)
	}

	seen := make(map[uint64]struct{}, len(c.Chains))
	for _, ch := range c.Chains {
		if _, ok := seen[ch.ID]; ok {
			return fmt.Errorf("chain %d configured twice", ch.ID)
		}
		seen[ch.ID] = struct{}{}
		if ch.MaxRPS < 0 {
			return fmt.Errorf("chain %d: max_rps must not be negative", ch.ID)
		}
	}
	return nil
}
