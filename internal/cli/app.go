package cli

import (
	"github.com/vietddude/archiver/internal/core/config"
	"github.com/vietddude/archiver/internal/indexing/fetcher"
	"github.com/vietddude/archiver/internal/indexing/throttle"
	"github.com/vietddude/archiver/internal/infra/rpc/routing"
	"github.com/vietddude/archiver/internal/infra/storage/columnar"
)

// fetcherConfig maps the sync section onto fetch loop tunables.
func fetcherConfig(s config.SyncConfig) fetcher.Config {
	return fetcher.Config{
		Batch: throttle.BatchConfig{
			Initial: s.InitialBatch,
			Max:     s.MaxBatch,
			Min:     s.MinBatch,
		},
		FlushThreshold:  s.FlushThreshold,
		BatchDelay:      s.BatchDelay,
		RequestTimeout:  s.RequestTimeout,
		MaxErrors:       s.MaxErrors,
		RangeRetryDelay: s.RangeRetryDelay,
		ProgressEvery:   s.ProgressEvery,
		Backoff:         routing.DefaultBackoff,
	}
}

func storageOptions(s config.SyncConfig) columnar.Options {
	return columnar.Options{Compression: s.Compression}
}
