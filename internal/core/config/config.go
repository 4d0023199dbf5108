package config

import (
	"time"

	"github.com/vietddude/archiver/internal/infra/objectstore"
	redisclient "github.com/vietddude/archiver/internal/infra/redis"
	"github.com/vietddude/archiver/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Logging     LoggingConfig      `yaml:"logging"`
	Sync        SyncConfig         `yaml:"sync"`
	Chains      []ChainConfig      `yaml:"chains"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Redis       redisclient.Config `yaml:"redis"`
	Database    postgres.Config    `yaml:"database"`
	ObjectStore objectstore.Config `yaml:"object_store"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SyncConfig tunes the fetch loop and the chain pool.
type SyncConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	BatchDelay      time.Duration `yaml:"batch_delay"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxErrors       int           `yaml:"max_errors"`
	InitialBatch    uint64        `yaml:"initial_batch"`
	MaxBatch        uint64        `yaml:"max_batch"`
	MinBatch        uint64        `yaml:"min_batch"`
	FlushThreshold  int           `yaml:"flush_threshold"`
	ProgressEvery   int           `yaml:"progress_every"`
	RangeRetryDelay time.Duration `yaml:"range_retry_delay"`
	Compression     string        `yaml:"compression"` // zstd, snappy, gzip, none
}

// ChainConfig overrides settings for one chain.
type ChainConfig struct {
	ID              uint64   `yaml:"id"`
	RPCs            []string `yaml:"rpcs"`
	FirstEventBlock *uint64  `yaml:"first_event_block,omitempty"`
	MaxRPS          float64  `yaml:"max_rps,omitempty"` // 0 = unlimited
}

// MetricsConfig controls where run metrics are exposed.
type MetricsConfig struct {
	Addr     string `yaml:"addr"`     // serve /metrics while syncing, e.g. ":9100"
	Textfile string `yaml:"textfile"` // node_exporter textfile written after the run
}

// MaxRPS maps chain IDs to their configured request pacing.
func (c *AppConfig) MaxRPS() map[uint64]float64 {
	out := make(map[uint64]float64, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.MaxRPS > 0 {
			out[ch.ID] = ch.MaxRPS
		}
	}
	return out
}

// Chain returns the override block for a chain, if any.
func (c *AppConfig) Chain(id uint64) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// RPCsFor resolves the endpoint pool for a chain: configured pool first,
// otherwise the built-in default.
func (c *AppConfig) RPCsFor(id uint64, fallback string) []string {
	if ch, ok := c.Chain(id); ok && len(ch.RPCs) > 0 {
		out := make([]string, len(ch.RPCs))
		copy(out, ch.RPCs)
		return out
	}
	return []string{fallback}
}
