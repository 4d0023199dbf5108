// Package health reports sync progress and serves Prometheus metrics
// while a run is in flight.
package health

import "time"

// SystemStatus represents the overall health state of the run or a chain.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ChainState is where a chain is in the current run.
type ChainState string

const (
	StatePending ChainState = "pending"
	StateRunning ChainState = "running"
	StateSynced  ChainState = "synced"
	StateFailed  ChainState = "failed"
)

// ChainHealth describes one chain of the current run.
type ChainHealth struct {
	ChainID   uint64       `json:"chain_id"`
	Name      string       `json:"name"`
	State     ChainState   `json:"state"`
	Status    SystemStatus `json:"status"`
	Endpoint  string       `json:"rpc,omitempty"`
	Tip       uint64       `json:"tip,omitempty"`
	Added     int          `json:"added"`
	Error     string       `json:"error,omitempty"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	Elapsed   string       `json:"elapsed,omitempty"`
}

// HealthReport contains the full run report.
type HealthReport struct {
	RunID        string                 `json:"run_id"`
	SystemStatus SystemStatus           `json:"system_status"`
	Chains       map[string]ChainHealth `json:"chains"`
}
