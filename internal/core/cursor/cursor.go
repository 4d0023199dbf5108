// Package cursor persists the per-chain sync position.
//
// Each chain directory holds a single cursor.json:
//
//	{
//	  "last_block": 24339871,
//	  "synced_at": 1760000000
//	}
//
// The cursor is written only after every monitored contract on the chain
// has been flushed through last_block, so its presence means the datasets
// are complete up to that block. A missing or unreadable cursor means the
// chain is synced from its configured start block again; per-contract
// datasets still prevent re-fetching rows that are already stored.
//
// Writes go to cursor.json.tmp first and are renamed into place.
package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vietddude/archiver/internal/core/domain"
)

// FileName is the cursor file inside a chain directory.
const FileName = "cursor.json"

// Path returns the cursor location for a chain directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// New returns a cursor at block stamped with the current time.
func New(block uint64) domain.Cursor {
	return domain.Cursor{LastBlock: block, SyncedAt: uint64(time.Now().Unix())}
}

// Load reads the cursor in dir. It returns nil when no cursor exists or
// when the file cannot be parsed; the latter is logged and treated as a
// fresh sync.
func Load(dir string, log *slog.Logger) (*domain.Cursor, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cursor %s: %w", path, err)
	}

	var c domain.Cursor
	if err := decode(data, &c); err != nil {
		if log == nil {
			log = slog.Default()
		}
		log.Warn("Corrupt cursor, starting fresh", "path", path, "error", err)
		return nil, nil
	}
	return &c, nil
}

// Save writes c to dir atomically, creating dir if needed.
func Save(dir string, c domain.Cursor) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chain dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	path := Path(dir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename cursor: %w", err)
	}
	return nil
}

// decode requires both fields to be present.
func decode(data []byte, c *domain.Cursor) error {
	var raw struct {
		LastBlock *uint64 `json:"last_block"`
		SyncedAt  *uint64 `json:"synced_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.LastBlock == nil || raw.SyncedAt == nil {
		return errors.New("missing last_block or synced_at")
	}
	c.LastBlock = *raw.LastBlock
	c.SyncedAt = *raw.SyncedAt
	return nil
}
