package domain

// Cursor records that every monitored contract on a chain is durably
// archived through LastBlock.
type Cursor struct {
	LastBlock uint64 `json:"last_block"`
	SyncedAt  uint64 `json:"synced_at"`
}
