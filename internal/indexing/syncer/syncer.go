// Package syncer brings one chain's datasets up to its current tip.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vietddude/archiver/internal/core/cursor"
	"github.com/vietddude/archiver/internal/core/domain"
	"github.com/vietddude/archiver/internal/indexing/fetcher"
	"github.com/vietddude/archiver/internal/indexing/metrics"
	"github.com/vietddude/archiver/internal/infra/chain"
	"github.com/vietddude/archiver/internal/infra/rpc/routing"
	"github.com/vietddude/archiver/internal/infra/storage/columnar"
)

// Options configures a Syncer.
type Options struct {
	// TipTimeout bounds the chain tip query.
	TipTimeout time.Duration
	Storage    columnar.Options
}

// Syncer runs chain sync attempts against an endpoint list.
type Syncer struct {
	dataDir string
	dial    chain.Dialer
	engine  *fetcher.Engine
	opts    Options
	log     *slog.Logger
}

// New creates a Syncer writing under dataDir.
func New(dataDir string, dial chain.Dialer, engine *fetcher.Engine, opts Options, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	if opts.TipTimeout <= 0 {
		opts.TipTimeout = 30 * time.Second
	}
	return &Syncer{
		dataDir: dataDir,
		dial:    dial,
		engine:  engine,
		opts:    opts,
		log:     log,
	}
}

// ChainDir returns the directory holding a chain's cursor and datasets.
func ChainDir(dataDir string, chainID uint64) string {
	return filepath.Join(dataDir, fmt.Sprint(chainID))
}

// DatasetPath returns the file for one contract role.
func DatasetPath(dir string, role domain.Role) string {
	return filepath.Join(dir, string(role)+columnar.Ext)
}

// ContractStart resolves where a contract fetch begins given the chain
// start and the highest block already stored for it.
func ContractStart(start, maxStored uint64, hasRows bool) uint64 {
	if !hasRows {
		return start
	}
	return max(start, maxStored+1)
}

// SyncChain tries each endpoint in order until one attempt completes.
// It returns the last attempt's error when all fail.
func (s *Syncer) SyncChain(ctx context.Context, target domain.ChainTarget, endpoints []string) (*domain.SyncOutcome, error) {
	log := s.log.With("chain_id", target.ChainID)

	return routing.Fallback(ctx, endpoints,
		func(ctx context.Context, endpoint string) (*domain.SyncOutcome, error) {
			return s.attempt(ctx, target, endpoint)
		},
		func(endpoint, next string, err error) {
			metrics.EndpointFallbacks.WithLabelValues(target.Key()).Inc()
			if next != "" {
				log.Warn("Falling back", "rpc", endpoint, "next", next, "error", err)
				return
			}
			log.Error("Last RPC failed", "rpc", endpoint, "error", err)
		},
	)
}

func (s *Syncer) attempt(ctx context.Context, target domain.ChainTarget, endpoint string) (*domain.SyncOutcome, error) {
	log := s.log.With("chain_id", target.ChainID, "rpc", endpoint)

	dir := ChainDir(s.dataDir, target.ChainID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chain dir: %w", err)
	}

	log.Info("Connecting")
	client, err := s.dial(ctx, target, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		_ = client.Close()
	}()

	tipCtx, cancel := context.WithTimeout(ctx, s.opts.TipTimeout)
	tip, err := client.BlockNumber(tipCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("get chain tip: %w", err)
	}
	metrics.ChainTip.WithLabelValues(target.Key()).Set(float64(tip))

	cur, err := cursor.Load(dir, log)
	if err != nil {
		return nil, err
	}

	outcome := &domain.SyncOutcome{
		ChainID:  target.ChainID,
		Name:     target.Name,
		Dir:      dir,
		Endpoint: endpoint,
		Tip:      tip,
		Cursor:   cur,
	}

	start := target.StartBlock(cur)
	if start > tip {
		log.Info("Already up to date", "latest", tip)
		outcome.UpToDate = true
		return outcome, nil
	}

	log.Info("Syncing", "from", start, "to", tip, "blocks", tip-start+1)

	for _, c := range target.Contracts {
		ds, err := s.syncContract(ctx, client, target, dir, c, start, tip)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.Role, err)
		}
		outcome.Datasets = append(outcome.Datasets, ds)
	}

	next := cursor.New(tip)
	if err := cursor.Save(dir, next); err != nil {
		return nil, err
	}
	outcome.Cursor = &next
	metrics.CursorBlock.WithLabelValues(target.Key()).Set(float64(tip))
	log.Info("Cursor updated", "last_block", tip)

	return outcome, nil
}

func (s *Syncer) syncContract(
	ctx context.Context,
	client chain.Client,
	target domain.ChainTarget,
	dir string,
	c domain.Contract,
	start, tip uint64,
) (domain.DatasetOutcome, error) {
	log := s.log.With("chain_id", target.ChainID, "contract", c.Role)
	path := DatasetPath(dir, c.Role)

	batches, err := columnar.Read(path)
	if err != nil {
		return domain.DatasetOutcome{}, err
	}

	maxStored, hasRows := columnar.MaxBlockNumber(batches)
	out := domain.DatasetOutcome{
		Role:     c.Role,
		Path:     path,
		Rows:     domain.Rows(batches),
		MaxBlock: maxStored,
		HasRows:  hasRows,
	}

	from := ContractStart(start, maxStored, hasRows)
	if from > tip {
		log.Info("Already up to date")
		return out, nil
	}

	log.Info("Fetching logs", "address", c.Address, "from", from, "to", tip)

	ds := &dataset{path: path, batches: batches, opts: s.opts.Storage}
	res, err := s.engine.Fetch(ctx, client, ds, fetcher.Request{
		Chain:    target.Key(),
		Contract: c.Role,
		Address:  c.Address,
		From:     from,
		To:       tip,
	})
	if err != nil {
		return out, err
	}

	out.Added = res.Rows
	out.Rows = domain.Rows(ds.batches)
	out.MaxBlock, out.HasRows = columnar.MaxBlockNumber(ds.batches)

	if dropped := res.Fetched - res.Rows; dropped > 0 {
		log.Warn("Dropped incomplete logs", "count", dropped)
	}
	if res.Rows == 0 {
		log.Info("No new events", "requests", res.Requests)
	} else {
		log.Info("Updated", "new_events", res.Rows, "total_events", out.Rows)
	}
	return out, nil
}
