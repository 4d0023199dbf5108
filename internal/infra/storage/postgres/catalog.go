package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietddude/archiver/internal/core/domain"
)

// DatasetRow is one archive_datasets record.
type DatasetRow struct {
	ChainID   int64         `db:"chain_id"`
	Role      string        `db:"role"`
	Path      string        `db:"path"`
	Rows      int64         `db:"rows"`
	MaxBlock  sql.NullInt64 `db:"max_block"`
	LastBlock int64         `db:"last_block"`
	RunID     string        `db:"run_id"`
	UpdatedAt time.Time     `db:"updated_at"`
}

// Catalog records where each dataset lives and how far it reaches.
type Catalog struct {
	db  *DB
	now func() time.Time
}

// NewCatalog creates a catalog over db.
func NewCatalog(db *DB) *Catalog {
	return &Catalog{db: db, now: time.Now}
}

// Name identifies the publisher in logs and metrics.
func (c *Catalog) Name() string { return "catalog" }

const upsertDataset = `
INSERT INTO archive_datasets (chain_id, role, path, rows, max_block, last_block, run_id, updated_at)
VALUES (:chain_id, :role, :path, :rows, :max_block, :last_block, :run_id, :updated_at)
ON CONFLICT (chain_id, role) DO UPDATE SET
    path       = EXCLUDED.path,
    rows       = EXCLUDED.rows,
    max_block  = EXCLUDED.max_block,
    last_block = EXCLUDED.last_block,
    run_id     = EXCLUDED.run_id,
    updated_at = EXCLUDED.updated_at`

// DatasetRows maps a sync outcome to catalog rows.
func DatasetRows(runID string, out *domain.SyncOutcome, now time.Time) []DatasetRow {
	last := out.Tip
	if out.Cursor != nil {
		last = out.Cursor.LastBlock
	}
	rows := make([]DatasetRow, 0, len(out.Datasets))
	for _, ds := range out.Datasets {
		rows = append(rows, DatasetRow{
			ChainID:   int64(out.ChainID),
			Role:      string(ds.Role),
			Path:      ds.Path,
			Rows:      int64(ds.Rows),
			MaxBlock:  sql.NullInt64{Int64: int64(ds.MaxBlock), Valid: ds.HasRows},
			LastBlock: int64(last),
			RunID:     runID,
			UpdatedAt: now.UTC(),
		})
	}
	return rows
}

// Publish upserts one row per dataset in a single transaction.
func (c *Catalog) Publish(ctx context.Context, runID string, out *domain.SyncOutcome) error {
	rows := DatasetRows(runID, out, c.now())
	if len(rows) == 0 {
		return nil
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, r := range rows {
		if _, err := tx.NamedExecContext(ctx, upsertDataset, r); err != nil {
			return fmt.Errorf("upsert dataset %d/%s: %w", r.ChainID, r.Role, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Datasets lists catalog rows ordered by chain and role.
func (c *Catalog) Datasets(ctx context.Context) ([]DatasetRow, error) {
	var rows []DatasetRow
	err := c.db.SelectContext(ctx, &rows, `
SELECT chain_id, role, path, rows, max_block, last_block, run_id::text AS run_id, updated_at
FROM archive_datasets
ORDER BY chain_id, role`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return rows, nil
}
