package chain

import (
	"context"

	"github.com/vietddude/archiver/internal/core/domain"
)

// Client is the chain-level boundary between the syncer and a node.
type Client interface {
	// BlockNumber returns the latest block number on the chain
	BlockNumber(ctx context.Context) (uint64, error)

	// GetLogs returns every log emitted by address in [from, to]
	GetLogs(ctx context.Context, address string, from, to uint64) ([]domain.RawLog, error)

	// Endpoint identifies the node this client talks to
	Endpoint() string

	// Close releases connections
	Close() error
}

// Dialer opens a Client for one endpoint of a chain.
type Dialer func(ctx context.Context, target domain.ChainTarget, endpoint string) (Client, error)
