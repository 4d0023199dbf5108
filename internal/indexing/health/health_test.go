package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/archiver/internal/core/domain"
)

func newMonitor() *Monitor {
	m := NewMonitor("run-1", []domain.ChainTarget{
		{ChainID: 1, Name: "Ethereum"},
		{ChainID: 8453, Name: "Base"},
	})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return m
}

func TestMonitor_Lifecycle(t *testing.T) {
	m := newMonitor()

	report := m.CheckHealth()
	assert.Equal(t, StatusHealthy, report.SystemStatus)
	assert.Equal(t, StatePending, report.Chains["1"].State)

	m.ChainStarted(1)
	assert.Equal(t, StateRunning, m.CheckHealth().Chains["1"].State)

	m.ChainFinished(1, &domain.SyncOutcome{
		Endpoint: "https://rpc",
		Tip:      100,
		Datasets: []domain.DatasetOutcome{{Added: 3}, {Added: 4}},
	}, nil)

	got := m.CheckHealth().Chains["1"]
	assert.Equal(t, StateSynced, got.State)
	assert.Equal(t, 7, got.Added)
	assert.Equal(t, uint64(100), got.Tip)
	assert.Equal(t, "1s", got.Elapsed)
}

func TestMonitor_Status(t *testing.T) {
	m := newMonitor()

	m.ChainStarted(1)
	m.ChainFinished(1, nil, errors.New("all endpoints down"))
	report := m.CheckHealth()
	assert.Equal(t, StatusDegraded, report.SystemStatus)
	assert.Equal(t, "all endpoints down", report.Chains["1"].Error)

	m.ChainStarted(8453)
	m.ChainFinished(8453, nil, errors.New("locked"))
	assert.Equal(t, StatusCritical, m.CheckHealth().SystemStatus)
}

func TestServer_Endpoints(t *testing.T) {
	m := newMonitor()
	srv := httptest.NewServer(NewServer(m, ":0").Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	m.ChainFinished(1, nil, errors.New("x"))
	m.ChainFinished(8453, nil, errors.New("y"))

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/detailed")
	require.NoError(t, err)
	defer resp.Body.Close()
	var report HealthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Len(t, report.Chains, 2)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
