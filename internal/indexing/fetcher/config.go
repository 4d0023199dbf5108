package fetcher

import (
	"time"

	"github.com/vietddude/archiver/internal/indexing/throttle"
	"github.com/vietddude/archiver/internal/infra/rpc/routing"
)

// Config holds the fetch loop tunables.
type Config struct {
	Batch throttle.BatchConfig

	FlushThreshold  int           // Pending rows that trigger a flush (default: 5000)
	BatchDelay      time.Duration // Pause after each successful request (default: 100ms)
	RequestTimeout  time.Duration // Per eth_getLogs call (default: 30s)
	MaxErrors       int           // Consecutive errors of any kind before giving up (default: 10)
	RangeRetryDelay time.Duration // Pause after a range error (default: 200ms)
	ProgressEvery   int           // Log progress every N requests (default: 50)

	Backoff routing.BackoffConfig
}

// DefaultConfig returns the tunables used against public endpoints.
func DefaultConfig() Config {
	return Config{
		Batch:           throttle.DefaultConfig(),
		FlushThreshold:  5_000,
		BatchDelay:      100 * time.Millisecond,
		RequestTimeout:  30 * time.Second,
		MaxErrors:       10,
		RangeRetryDelay: 200 * time.Millisecond,
		ProgressEvery:   50,
		Backoff:         routing.DefaultBackoff,
	}
}
