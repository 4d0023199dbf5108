// Package fetcher pulls contract logs over a block range with an adaptive
// window.
//
// The window starts small and doubles after every successful request.
// Provider errors are classified:
//
//   - range too large: the ceiling drops to half the window for the rest
//     of the fetch; at the floor the fetch fails
//   - rate limited: the window is kept and the loop backs off
//   - transient: the window halves and the loop backs off
//
// Every failure counts toward one consecutive-error budget regardless of
// its class. Rows are handed to a Sink whenever the pending buffer reaches
// the flush threshold, before any fatal return, and at the end.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/archiver/internal/core/domain"
	"github.com/vietddude/archiver/internal/indexing/metrics"
	"github.com/vietddude/archiver/internal/indexing/throttle"
	"github.com/vietddude/archiver/internal/infra/rpc/routing"
	"github.com/vietddude/archiver/internal/infra/storage/columnar"
)

var (
	// ErrRangeFloor means the provider rejected even the smallest window.
	ErrRangeFloor = errors.New("range error at minimum batch size")
	// ErrTooManyErrors means the consecutive-error budget ran out.
	ErrTooManyErrors = errors.New("too many consecutive errors")
)

// LogSource serves eth_getLogs for one contract address.
type LogSource interface {
	GetLogs(ctx context.Context, address string, from, to uint64) ([]domain.RawLog, error)
}

// Sink persists flushed rows.
type Sink interface {
	Append(batch domain.Batch) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(batch domain.Batch) error

// Append calls f.
func (f SinkFunc) Append(batch domain.Batch) error { return f(batch) }

// Request is one contract range to fetch.
type Request struct {
	Chain    string
	Contract domain.Role
	Address  string
	From     uint64
	To       uint64
}

// Result reports what a fetch did.
type Result struct {
	Rows     int // valid rows handed to the sink
	Fetched  int // raw logs returned by the provider
	Requests int // successful requests
	Batcher  throttle.Batcher
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Engine runs adaptive fetches.
type Engine struct {
	cfg      Config
	classify routing.Classifier
	sleep    Sleeper
	jitter   routing.Jitter
	log      *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClassifier replaces the default error classifier.
func WithClassifier(c routing.Classifier) Option {
	return func(e *Engine) { e.classify = c }
}

// WithSleeper replaces the timer-based sleep.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) { e.sleep = s }
}

// WithJitter replaces the random backoff jitter.
func WithJitter(j routing.Jitter) Option {
	return func(e *Engine) { e.jitter = j }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		classify: routing.Classify,
		sleep:    Sleep,
		jitter:   routing.RandomJitter,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	def := DefaultConfig()
	if e.cfg.Batch.Max == 0 {
		e.cfg.Batch = def.Batch
	}
	if e.cfg.FlushThreshold <= 0 {
		e.cfg.FlushThreshold = def.FlushThreshold
	}
	if e.cfg.MaxErrors <= 0 {
		e.cfg.MaxErrors = def.MaxErrors
	}
	if e.cfg.Backoff.Base <= 0 {
		e.cfg.Backoff = def.Backoff
	}
	return e
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetch retrieves every log of req.Address in [req.From, req.To] and hands
// the converted rows to sink.
func (e *Engine) Fetch(ctx context.Context, src LogSource, sink Sink, req Request) (Result, error) {
	var res Result
	if req.From > req.To {
		return res, nil
	}

	log := e.log.With("chain_id", req.Chain, "contract", req.Contract)
	b := throttle.NewBatcher(e.cfg.Batch)
	block := req.From

	var pending domain.Batch
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := sink.Append(pending); err != nil {
			return fmt.Errorf("flush %d rows: %w", len(pending), err)
		}
		res.Rows += len(pending)
		metrics.EventsWritten.WithLabelValues(req.Chain, string(req.Contract)).Add(float64(len(pending)))
		pending = nil
		return nil
	}
	abort := func(err error) (Result, error) {
		if ferr := flush(); ferr != nil {
			log.Error("Flush before abort failed", "block", block, "error", ferr)
		}
		res.Batcher = b
		return res, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		end := b.End(block, req.To)
		logs, err := e.getLogs(ctx, src, req.Address, block, end)
		if err == nil {
			rows, _ := columnar.Convert(logs)
			pending = append(pending, rows...)
			res.Fetched += len(logs)
			res.Requests++
			b = b.OnSuccess()
			metrics.BatchSize.WithLabelValues(req.Chain, string(req.Contract)).Set(float64(b.Size))

			if len(pending) >= e.cfg.FlushThreshold {
				if err := flush(); err != nil {
					res.Batcher = b
					return res, err
				}
			}

			if e.cfg.ProgressEvery > 0 && res.Requests%e.cfg.ProgressEvery == 0 {
				log.Info("Fetching",
					"requests", res.Requests,
					"block", end,
					"batch_size", b.Size,
					"progress", fmt.Sprintf("%.0f%%", progress(req.From, req.To, end)),
				)
			}

			if end >= req.To {
				break
			}
			block = end + 1

			if err := e.pause(ctx, e.cfg.BatchDelay); err != nil {
				return abort(err)
			}
			continue
		}

		if ctx.Err() != nil {
			return abort(ctx.Err())
		}

		kind := e.classify(err)
		metrics.RPCErrors.WithLabelValues(req.Chain, kind.String()).Inc()

		if b.Errors+1 >= e.cfg.MaxErrors {
			return abort(fmt.Errorf("%w: %d at block %d: %w", ErrTooManyErrors, b.Errors+1, block, err))
		}

		var delay time.Duration
		switch kind {
		case routing.KindRangeTooLarge:
			next, ok := b.OnRangeError()
			if !ok {
				b = next
				return abort(fmt.Errorf("%w (block %d): %w", ErrRangeFloor, block, err))
			}
			b = next
			delay = e.cfg.RangeRetryDelay
			log.Warn("Range too large, shrinking", "block", block, "batch_size", b.Size, "error", err)

		case routing.KindRateLimited:
			b = b.OnRateLimit()
			delay = e.cfg.Backoff.Delay(b.Errors, e.jitter)
			log.Warn("Rate limited", "block", block, "delay_ms", delay.Milliseconds(), "error", err)

		default:
			b = b.OnTransient()
			delay = e.cfg.Backoff.Delay(b.Errors, e.jitter)
			log.Warn("Transient error",
				"block", block,
				"batch_size", b.Size,
				"delay_ms", delay.Milliseconds(),
				"error", err,
			)
		}
		metrics.BatchSize.WithLabelValues(req.Chain, string(req.Contract)).Set(float64(b.Size))

		if err := e.pause(ctx, delay); err != nil {
			return abort(err)
		}
	}

	res.Batcher = b
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) getLogs(ctx context.Context, src LogSource, address string, from, to uint64) ([]domain.RawLog, error) {
	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}
	return src.GetLogs(ctx, address, from, to)
}

func (e *Engine) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return e.sleep(ctx, d)
}

func progress(from, to, at uint64) float64 {
	if to <= from {
		return 100
	}
	return float64(at-from) / float64(to-from) * 100
}
