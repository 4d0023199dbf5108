package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCRequests tracks RPC calls per chain and method
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_rpc_requests_total",
			Help: "Total number of RPC calls",
		},
		[]string{"chain", "method"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archiver_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	// RPCErrors tracks classified eth_getLogs failures
	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_rpc_errors_total",
			Help: "Total number of classified RPC errors",
		},
		[]string{"chain", "kind"},
	)

	// BatchSize tracks the current block-range window per contract
	BatchSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "archiver_batch_size",
			Help: "Current eth_getLogs block-range window",
		},
		[]string{"chain", "contract"},
	)

	// EventsWritten tracks rows persisted per contract
	EventsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_events_written_total",
			Help: "Total number of event rows persisted",
		},
		[]string{"chain", "contract"},
	)

	// ChainTip tracks the latest block height seen on the chain
	ChainTip = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "archiver_chain_tip",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)

	// CursorBlock tracks the last fully archived block
	CursorBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "archiver_cursor_block",
			Help: "Last block archived for every monitored contract",
		},
		[]string{"chain"},
	)

	// EndpointFallbacks counts chain attempts that moved to the next endpoint
	EndpointFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_endpoint_fallbacks_total",
			Help: "Total number of failed chain attempts per endpoint pool",
		},
		[]string{"chain"},
	)

	// ChainsSynced is the number of chains that succeeded in the last run
	ChainsSynced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archiver_chains_synced",
		Help: "Chains synced successfully in the last run",
	})

	// ChainsFailed is the number of chains that failed in the last run
	ChainsFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archiver_chains_failed",
		Help: "Chains that failed in the last run",
	})

	// PublishErrors counts failed post-sync publishers
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_publish_errors_total",
			Help: "Total number of failed dataset publications",
		},
		[]string{"publisher"},
	)

	// SyncDuration tracks wall time per chain sync
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archiver_chain_sync_seconds",
			Help:    "Chain sync duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"chain", "result"},
	)
)

// WriteTextfile dumps the default registry in the node_exporter textfile
// format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
