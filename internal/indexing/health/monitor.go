package health

import (
	"strconv"
	"sync"
	"time"

	"github.com/vietddude/archiver/internal/core/domain"
)

// Monitor tracks per-chain progress of a run. It is fed by the
// orchestrator and read by the HTTP server.
type Monitor struct {
	runID  string
	chains map[uint64]*ChainHealth
	now    func() time.Time
	mu     sync.RWMutex
}

// NewMonitor registers every chain of the run as pending.
func NewMonitor(runID string, targets []domain.ChainTarget) *Monitor {
	m := &Monitor{
		runID:  runID,
		chains: make(map[uint64]*ChainHealth, len(targets)),
		now:    time.Now,
	}
	for _, t := range targets {
		m.chains[t.ChainID] = &ChainHealth{
			ChainID: t.ChainID,
			Name:    t.Name,
			State:   StatePending,
			Status:  StatusHealthy,
		}
	}
	return m
}

func (m *Monitor) entry(chainID uint64) *ChainHealth {
	h, ok := m.chains[chainID]
	if !ok {
		h = &ChainHealth{ChainID: chainID, Status: StatusHealthy}
		m.chains[chainID] = h
	}
	return h
}

// ChainStarted marks a chain as running.
func (m *Monitor) ChainStarted(chainID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.entry(chainID)
	started := m.now()
	h.State = StateRunning
	h.StartedAt = &started
}

// ChainFinished records the chain's outcome.
func (m *Monitor) ChainFinished(chainID uint64, out *domain.SyncOutcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.entry(chainID)
	if h.StartedAt != nil {
		h.Elapsed = m.now().Sub(*h.StartedAt).Round(time.Millisecond).String()
	}
	if err != nil {
		h.State = StateFailed
		h.Status = StatusCritical
		h.Error = err.Error()
		return
	}
	h.State = StateSynced
	h.Status = StatusHealthy
	if out != nil {
		h.Endpoint = out.Endpoint
		h.Tip = out.Tip
		h.Added = out.Added()
	}
}

// CheckHealth returns a snapshot of the run. The run is critical once
// every chain has failed, degraded when some have.
func (m *Monitor) CheckHealth() HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := HealthReport{
		RunID:        m.runID,
		SystemStatus: StatusHealthy,
		Chains:       make(map[string]ChainHealth, len(m.chains)),
	}

	failed := 0
	for id, h := range m.chains {
		report.Chains[strconv.FormatUint(id, 10)] = *h
		if h.State == StateFailed {
			failed++
		}
	}

	switch {
	case failed > 0 && failed == len(m.chains):
		report.SystemStatus = StatusCritical
	case failed > 0:
		report.SystemStatus = StatusDegraded
	}
	return report
}
