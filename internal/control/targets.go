package control

import (
	"errors"
	"fmt"

	"github.com/vietddude/archiver/internal/core/chains"
	"github.com/vietddude/archiver/internal/core/config"
	"github.com/vietddude/archiver/internal/core/domain"
)

var (
	// ErrUnknownChain is returned for a chain ID missing from the table.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrRPCNeedsChain is returned when an endpoint override names no chain.
	ErrRPCNeedsChain = errors.New("--rpc requires --chain")
)

// Selection narrows the chain table for a run.
type Selection struct {
	ChainID         uint64 // 0 = all
	RPC             string // replaces the endpoint pool of ChainID
	IncludeTestnets bool
}

// ResolveTargets builds the run's targets. Endpoint pools come from the
// override, then the config, then the table default. A configured
// first_event_block replaces the table hint.
func ResolveTargets(table *chains.Table, cfg *config.AppConfig, sel Selection) ([]Target, error) {
	if sel.RPC != "" && sel.ChainID == 0 {
		return nil, ErrRPCNeedsChain
	}

	selected := table.Select(sel.IncludeTestnets)
	if sel.ChainID != 0 {
		t, ok := table.Lookup(sel.ChainID)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownChain, sel.ChainID)
		}
		selected = []domain.ChainTarget{t}
	}

	targets := make([]Target, 0, len(selected))
	for _, c := range selected {
		endpoints := cfg.RPCsFor(c.ChainID, c.DefaultRPC)
		if sel.RPC != "" {
			endpoints = []string{sel.RPC}
		}
		if ch, ok := cfg.Chain(c.ChainID); ok && ch.FirstEventBlock != nil {
			hint := *ch.FirstEventBlock
			c.FirstEventBlock = &hint
		}
		targets = append(targets, Target{Chain: c, Endpoints: endpoints})
	}
	return targets, nil
}
