// Package control runs chain syncs across a bounded worker pool.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/archiver/internal/core/domain"
	"github.com/vietddude/archiver/internal/indexing/metrics"
)

var (
	// ErrChainLocked means another run holds the chain's lock.
	ErrChainLocked = errors.New("chain locked by another run")
	// ErrAllChainsFailed is returned when no targeted chain synced.
	ErrAllChainsFailed = errors.New("all chains failed")
)

// Target is one chain to sync with its ordered endpoint pool.
type Target struct {
	Chain     domain.ChainTarget
	Endpoints []string
}

// ChainSyncer brings one chain up to its tip.
type ChainSyncer interface {
	SyncChain(ctx context.Context, target domain.ChainTarget, endpoints []string) (*domain.SyncOutcome, error)
}

// Locker guards a chain against concurrent runs in other processes.
// Acquire returns a release func on success, and an error wrapping
// domain.ErrLockHeld when another run owns the chain.
type Locker interface {
	Acquire(ctx context.Context, chainID uint64) (func(context.Context) error, error)
}

// Publisher receives outcomes of chains whose cursor advanced. Failures
// never fail the chain.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, runID string, out *domain.SyncOutcome) error
}

// Observer follows chain progress, e.g. for the health endpoint.
type Observer interface {
	ChainStarted(chainID uint64)
	ChainFinished(chainID uint64, out *domain.SyncOutcome, err error)
}

// Options configures an Archiver.
type Options struct {
	Concurrency int
	RunID       string
	Locker      Locker
	Publishers  []Publisher
	Observer    Observer
}

// ChainResult is the per-chain line of a Report.
type ChainResult struct {
	ChainID  uint64
	Name     string
	Outcome  *domain.SyncOutcome
	Err      error
	Duration time.Duration
}

// Report summarises a run.
type Report struct {
	RunID     string
	Succeeded int
	Failed    int
	Results   []ChainResult // in target order
}

// Errors returns the failed chains' errors joined.
func (r Report) Errors() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("chain %d: %w", res.ChainID, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Archiver syncs many chains concurrently.
type Archiver struct {
	syncer ChainSyncer
	opts   Options
	log    *slog.Logger
}

// New creates an Archiver.
func New(syncer ChainSyncer, opts Options, log *slog.Logger) *Archiver {
	if log == nil {
		log = slog.Default()
	}
	return &Archiver{syncer: syncer, opts: opts, log: log}
}

// Validate rejects duplicate chain IDs and empty endpoint pools.
func Validate(targets []Target) error {
	seen := make(map[uint64]struct{}, len(targets))
	for _, t := range targets {
		if _, ok := seen[t.Chain.ChainID]; ok {
			return fmt.Errorf("duplicate chain id %d", t.Chain.ChainID)
		}
		seen[t.Chain.ChainID] = struct{}{}
		if len(t.Endpoints) == 0 {
			return fmt.Errorf("chain %d: no rpc endpoints", t.Chain.ChainID)
		}
	}
	return nil
}

// PoolSize returns max(1, min(concurrency, targets)).
func PoolSize(concurrency, targets int) int {
	return max(1, min(concurrency, targets))
}

// SyncAll runs every target with bounded concurrency. A chain failure is
// isolated; an error is returned only when every chain failed.
func (a *Archiver) SyncAll(ctx context.Context, targets []Target) (Report, error) {
	report := Report{RunID: a.opts.RunID}
	if err := Validate(targets); err != nil {
		return report, err
	}
	if len(targets) == 0 {
		return report, nil
	}

	n := PoolSize(a.opts.Concurrency, len(targets))
	log := a.log.With("run_id", a.opts.RunID)
	log.Info("Starting sync", "chains", len(targets), "concurrency", n)

	var (
		succeeded atomic.Int32
		failed    atomic.Int32
		mu        sync.Mutex
	)
	results := make([]ChainResult, len(targets))

	g := new(errgroup.Group)
	g.SetLimit(n)
	for i, t := range targets {
		g.Go(func() error {
			res := a.runChain(ctx, t)
			if res.Err != nil {
				failed.Add(1)
			} else {
				succeeded.Add(1)
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Succeeded = int(succeeded.Load())
	report.Failed = int(failed.Load())
	report.Results = results

	metrics.ChainsSynced.Set(float64(report.Succeeded))
	metrics.ChainsFailed.Set(float64(report.Failed))

	log.Info("Finished", "succeeded", report.Succeeded, "failed", report.Failed)
	if report.Failed == 0 {
		return report, nil
	}
	if report.Succeeded == 0 {
		return report, fmt.Errorf("%w: %w", ErrAllChainsFailed, report.Errors())
	}
	log.Warn("Some chains failed", "failed", report.Failed)
	return report, nil
}

func (a *Archiver) runChain(ctx context.Context, t Target) (res ChainResult) {
	start := time.Now()
	res = ChainResult{ChainID: t.Chain.ChainID, Name: t.Chain.Name}
	log := a.log.With("run_id", a.opts.RunID, "chain_id", t.Chain.ChainID)
	if a.opts.Observer != nil {
		a.opts.Observer.ChainStarted(t.Chain.ChainID)
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
			log.Error("Chain sync panicked", "panic", r, "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(start)
		result := "ok"
		if res.Err != nil {
			result = "error"
		}
		metrics.SyncDuration.WithLabelValues(t.Chain.Key(), result).Observe(res.Duration.Seconds())
		if a.opts.Observer != nil {
			a.opts.Observer.ChainFinished(t.Chain.ChainID, res.Outcome, res.Err)
		}
	}()

	if a.opts.Locker != nil {
		release, err := a.opts.Locker.Acquire(ctx, t.Chain.ChainID)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				res.Err = fmt.Errorf("%w: %w", ErrChainLocked, err)
			} else {
				res.Err = fmt.Errorf("acquire chain lock: %w", err)
			}
			log.Error("Failed to lock chain", "error", err)
			return res
		}
		defer func() {
			// Release even when ctx was cancelled
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(rctx); err != nil {
				log.Warn("Failed to release chain lock", "error", err)
			}
		}()
	}

	log.Info("Syncing chain", "name", t.Chain.Name, "endpoints", len(t.Endpoints))
	out, err := a.syncer.SyncChain(ctx, t.Chain, t.Endpoints)
	if err != nil {
		res.Err = err
		log.Error("Chain failed", "error", err)
		return res
	}
	res.Outcome = out
	log.Info("Chain synced", "added", out.Added(), "tip", out.Tip, "rpc", out.Endpoint)

	if out.Advanced() {
		a.publish(ctx, log, out)
	}
	return res
}

func (a *Archiver) publish(ctx context.Context, log *slog.Logger, out *domain.SyncOutcome) {
	for _, p := range a.opts.Publishers {
		if err := p.Publish(ctx, a.opts.RunID, out); err != nil {
			metrics.PublishErrors.WithLabelValues(p.Name()).Inc()
			log.Warn("Publish failed", "publisher", p.Name(), "error", err)
		}
	}
}
