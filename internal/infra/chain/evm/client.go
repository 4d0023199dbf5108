package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/archiver/internal/core/domain"
	"github.com/vietddude/archiver/internal/indexing/metrics"
	"github.com/vietddude/archiver/internal/infra/chain"
	"github.com/vietddude/archiver/internal/infra/rpc/provider"
)

// Client reads chain heads and logs from one EVM JSON-RPC endpoint.
type Client struct {
	chain string
	rpc   provider.Provider
}

var _ chain.Client = (*Client)(nil)

// NewClient wraps an existing provider. chainLabel tags metrics.
func NewClient(chainLabel string, rpc provider.Provider) *Client {
	return &Client{chain: chainLabel, rpc: rpc}
}

// ValidateURL rejects endpoints that are not absolute http(s) URLs.
func ValidateURL(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid rpc url %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid rpc url %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid rpc url %q: missing host", endpoint)
	}
	return nil
}

// Dial validates endpoint and returns a client backed by an HTTPProvider.
func Dial(chainLabel, endpoint string, opts provider.HTTPOptions) (*Client, error) {
	if err := ValidateURL(endpoint); err != nil {
		return nil, err
	}
	return NewClient(chainLabel, provider.NewHTTPProvider(endpoint, endpoint, opts)), nil
}

// NewDialer returns a chain.Dialer producing HTTP clients. maxRPS maps a
// chain ID to its configured pacing; missing entries are unpaced.
func NewDialer(timeout time.Duration, maxRPS map[uint64]float64) chain.Dialer {
	return func(_ context.Context, target domain.ChainTarget, endpoint string) (chain.Client, error) {
		return Dial(target.Key(), endpoint, provider.HTTPOptions{
			Timeout: timeout,
			MaxRPS:  maxRPS[target.ChainID],
		})
	}
}

// Endpoint returns the provider name, which is its URL for dialed clients.
func (c *Client) Endpoint() string {
	return c.rpc.GetName()
}

// Health exposes the underlying provider health.
func (c *Client) Health() provider.HealthStatus {
	return c.rpc.GetHealth()
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	var n hexutil.Uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("invalid block number response: %w", err)
	}
	return uint64(n), nil
}

// GetLogs returns every log emitted by address in [from, to].
func (c *Client) GetLogs(ctx context.Context, address string, from, to uint64) ([]domain.RawLog, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}

	filter := map[string]any{
		"address":   common.HexToAddress(address),
		"fromBlock": hexutil.EncodeUint64(from),
		"toBlock":   hexutil.EncodeUint64(to),
	}

	raw, err := c.call(ctx, "eth_getLogs", []any{filter})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs [%d, %d]: %w", from, to, err)
	}

	var logs []domain.RawLog
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, fmt.Errorf("invalid eth_getLogs response: %w", err)
	}
	return logs, nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	start := time.Now()
	metrics.RPCRequests.WithLabelValues(c.chain, method).Inc()

	raw, err := c.rpc.Call(ctx, method, params)
	metrics.RPCLatency.WithLabelValues(c.chain, method).Observe(time.Since(start).Seconds())
	return raw, err
}
