// Package testutil provides an in-memory EVM node for sync tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/archiver/internal/core/domain"
	"github.com/vietddude/archiver/internal/infra/chain"
)

// LogCall records one GetLogs request.
type LogCall struct {
	Address  string
	From, To uint64
}

// Node is a scripted chain.Client. Logs are generated deterministically
// from the per-address block->count map.
type Node struct {
	mu sync.Mutex

	Tip      uint64
	TipErr   error
	Logs     map[string]map[uint64]int // lowercase address -> block -> count
	MaxRange uint64                    // wider windows fail with a range error
	FailAddr map[string]error          // GetLogs for these addresses always fails

	calls []LogCall
	name  string
}

var _ chain.Client = (*Node)(nil)

// NewNode returns a node at tip with no logs.
func NewNode(tip uint64) *Node {
	return &Node{Tip: tip, Logs: map[string]map[uint64]int{}, FailAddr: map[string]error{}}
}

// AddLogs registers count logs for address at block.
func (n *Node) AddLogs(address string, block uint64, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := strings.ToLower(address)
	if n.Logs[key] == nil {
		n.Logs[key] = map[uint64]int{}
	}
	n.Logs[key][block] += count
}

// Calls returns GetLogs requests seen so far.
func (n *Node) Calls() []LogCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]LogCall(nil), n.calls...)
}

// CallsFor returns GetLogs requests for one address.
func (n *Node) CallsFor(address string) []LogCall {
	var out []LogCall
	for _, c := range n.Calls() {
		if strings.EqualFold(c.Address, address) {
			out = append(out, c)
		}
	}
	return out
}

func (n *Node) BlockNumber(context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.TipErr != nil {
		return 0, n.TipErr
	}
	return n.Tip, nil
}

func (n *Node) GetLogs(_ context.Context, address string, from, to uint64) ([]domain.RawLog, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, LogCall{Address: address, From: from, To: to})
	key := strings.ToLower(address)
	if err := n.FailAddr[key]; err != nil {
		return nil, err
	}
	if n.MaxRange > 0 && to-from+1 > n.MaxRange {
		return nil, fmt.Errorf("block range too large: max %d", n.MaxRange)
	}

	var out []domain.RawLog
	for b := from; b <= to; b++ {
		for i := 0; i < n.Logs[key][b]; i++ {
			out = append(out, Log(address, b, i))
		}
	}
	return out, nil
}

func (n *Node) Endpoint() string { return n.name }

func (n *Node) Close() error { return nil }

// Log builds a complete log entry.
func Log(address string, block uint64, idx int) domain.RawLog {
	bn := hexutil.Uint64(block)
	ti := hexutil.Uint(idx)
	li := hexutil.Uint(idx)
	tx := common.BigToHash(new(big.Int).SetUint64(block<<16 | uint64(idx)))
	addr := common.HexToAddress(address)
	return domain.RawLog{
		Address:          &addr,
		Topics:           []common.Hash{common.HexToHash("0xca52e62c367d81bb2e328eb795f7c7ba24afb478408a26c0e201d155c449bc4a")},
		Data:             hexutil.Bytes{byte(idx)},
		BlockNumber:      &bn,
		TransactionHash:  &tx,
		TransactionIndex: &ti,
		LogIndex:         &li,
	}
}

// ErrUnreachable is returned by Network for unknown endpoints.
var ErrUnreachable = errors.New("endpoint unreachable")

// Network maps endpoint URLs to nodes and records dial order.
type Network struct {
	mu     sync.Mutex
	nodes  map[string]*Node
	dialed []string
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{nodes: map[string]*Node{}}
}

// Add registers node under endpoint.
func (w *Network) Add(endpoint string, node *Node) *Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	node.name = endpoint
	w.nodes[endpoint] = node
	return node
}

// Dialed returns endpoints in dial order.
func (w *Network) Dialed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.dialed...)
}

// Dialer returns a chain.Dialer over the registered nodes.
func (w *Network) Dialer() chain.Dialer {
	return func(_ context.Context, _ domain.ChainTarget, endpoint string) (chain.Client, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.dialed = append(w.dialed, endpoint)
		node, ok := w.nodes[endpoint]
		if !ok {
			return nil, fmt.Errorf("%s: %w", endpoint, ErrUnreachable)
		}
		return node, nil
	}
}
