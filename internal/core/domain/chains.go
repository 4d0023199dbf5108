package domain

import "strconv"

// Role names one of the monitored registry contracts. It doubles as the
// dataset file stem, so values must stay filesystem safe.
type Role string

const (
	RoleIdentity   Role = "identity"
	RoleReputation Role = "reputation"
)

// Contract is a monitored registry deployment on one chain.
type Contract struct {
	Role    Role
	Address string
}

// ChainTarget describes one chain to archive.
type ChainTarget struct {
	ChainID         uint64
	Name            string
	DeploymentBlock uint64
	// FirstEventBlock is an optional start hint that skips the empty
	// stretch between deployment and the first emitted log.
	FirstEventBlock *uint64
	DefaultRPC      string
	IsTestnet       bool
	// Contracts are synced in slice order.
	Contracts []Contract
}

// Key returns the chain ID as used in directory names and metric labels.
func (c ChainTarget) Key() string {
	return strconv.FormatUint(c.ChainID, 10)
}

// Network returns "testnet" or "mainnet".
func (c ChainTarget) Network() string {
	if c.IsTestnet {
		return "testnet"
	}
	return "mainnet"
}

// StartBlock resolves where a sync with the given cursor should begin.
func (c ChainTarget) StartBlock(cur *Cursor) uint64 {
	if cur != nil {
		return cur.LastBlock + 1
	}
	if c.FirstEventBlock != nil {
		return *c.FirstEventBlock
	}
	return c.DeploymentBlock
}
