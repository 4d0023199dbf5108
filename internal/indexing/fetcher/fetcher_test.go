package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/archiver/internal/core/domain"
	"github.com/vietddude/archiver/internal/indexing/throttle"
	"github.com/vietddude/archiver/internal/infra/chain/evm"
	"github.com/vietddude/archiver/internal/infra/rpc/provider"
	"github.com/vietddude/archiver/internal/infra/rpc/routing"
)

const testAddress = "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432"

func validLog(block uint64, idx int) domain.RawLog {
	bn := hexutil.Uint64(block)
	ti := hexutil.Uint(0)
	li := hexutil.Uint(idx)
	tx := common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(idx)))
	addr := common.HexToAddress(testAddress)
	return domain.RawLog{
		Address:          &addr,
		Topics:           []common.Hash{common.HexToHash("0x01")},
		BlockNumber:      &bn,
		TransactionHash:  &tx,
		TransactionIndex: &ti,
		LogIndex:         &li,
	}
}

// scriptedSource serves logs from a block->count map. Scripted failures are
// returned first, one per call; maxRange rejects wider windows.
type scriptedSource struct {
	mu       sync.Mutex
	logs     map[uint64]int
	maxRange uint64
	failures []error
	failFrom int // calls after the first failFrom fail (0 = never)
	calls    [][2]uint64
	served   [][2]uint64
}

func (s *scriptedSource) GetLogs(_ context.Context, _ string, from, to uint64) ([]domain.RawLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, [2]uint64{from, to})
	if s.failFrom > 0 && len(s.calls) > s.failFrom {
		return nil, errors.New("connection reset by peer")
	}
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	if s.maxRange > 0 && to-from+1 > s.maxRange {
		return nil, fmt.Errorf("rpc error -32000: block range too large, max %d", s.maxRange)
	}

	s.served = append(s.served, [2]uint64{from, to})
	var out []domain.RawLog
	for b := from; b <= to; b++ {
		for i := 0; i < s.logs[b]; i++ {
			out = append(out, validLog(b, i))
		}
	}
	return out, nil
}

type recorder struct {
	sleeps []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return nil
}

func (r *recorder) total() time.Duration {
	var sum time.Duration
	for _, d := range r.sleeps {
		sum += d
	}
	return sum
}

type memorySink struct {
	batches []domain.Batch
	err     error
}

func (m *memorySink) Append(b domain.Batch) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, b)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchDelay = 0
	cfg.RequestTimeout = time.Second
	return cfg
}

func newTestEngine(cfg Config, rec *recorder) *Engine {
	return New(cfg,
		WithSleeper(rec.sleep),
		WithJitter(func(int64) int64 { return 0 }),
	)
}

func request(from, to uint64) Request {
	return Request{Chain: "1", Contract: domain.RoleIdentity, Address: testAddress, From: from, To: to}
}

// assertCoverage checks served windows are increasing, contiguous and
// exactly cover [from, to].
func assertCoverage(t *testing.T, served [][2]uint64, from, to uint64) {
	t.Helper()
	next := from
	for _, c := range served {
		require.Equal(t, next, c[0], "gap or overlap at %v", c)
		require.LessOrEqual(t, c[0], c[1])
		next = c[1] + 1
	}
	require.Equal(t, to+1, next)
}

func TestFetch_FullRange(t *testing.T) {
	src := &scriptedSource{logs: map[uint64]int{100: 2, 150: 1, 200: 3}}
	sink := &memorySink{}
	rec := &recorder{}

	res, err := newTestEngine(testConfig(), rec).Fetch(context.Background(), src, sink, request(100, 200))
	require.NoError(t, err)

	assert.Equal(t, 6, res.Rows)
	assert.Equal(t, 6, res.Fetched)
	assert.Equal(t, 1, res.Requests)
	require.Len(t, sink.batches, 1)
	assert.Equal(t, [][2]uint64{{100, 200}}, src.calls)
	assert.Empty(t, rec.sleeps)
}

func TestFetch_EmptyRange(t *testing.T) {
	src := &scriptedSource{}
	res, err := newTestEngine(testConfig(), &recorder{}).Fetch(
		context.Background(), src, &memorySink{}, request(201, 200))
	require.NoError(t, err)
	assert.Zero(t, res.Requests)
	assert.Empty(t, src.calls)
}

func TestFetch_GrowsWindow(t *testing.T) {
	cfg := testConfig()
	cfg.BatchDelay = 100 * time.Millisecond
	src := &scriptedSource{}
	rec := &recorder{}

	res, err := newTestEngine(cfg, rec).Fetch(context.Background(), src, &memorySink{}, request(0, 3499))
	require.NoError(t, err)

	// 500, 1000, 2000 (clamped to the remaining 2000)
	assert.Equal(t, [][2]uint64{{0, 499}, {500, 1499}, {1500, 3499}}, src.calls)
	assert.Equal(t, 3, res.Requests)
	// No delay after the final request
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, rec.sleeps)
}

func TestFetch_RangeLimitConverges(t *testing.T) {
	logs := map[uint64]int{}
	for b := uint64(100); b <= 200; b += 7 {
		logs[b] = 1
	}
	src := &scriptedSource{logs: logs, maxRange: 50}
	sink := &memorySink{}
	rec := &recorder{}

	res, err := newTestEngine(testConfig(), rec).Fetch(context.Background(), src, sink, request(100, 200))
	require.NoError(t, err)

	assert.LessOrEqual(t, res.Batcher.Ceiling, uint64(50))
	assert.Greater(t, len(src.calls), 2)
	assert.Equal(t, len(logs), res.Rows)
	assertCoverage(t, src.served, 100, 200)

	// First failure drops the ceiling to 250
	assert.Equal(t, [2]uint64{100, 200}, src.calls[1])
	for _, d := range rec.sleeps {
		assert.Equal(t, 200*time.Millisecond, d)
	}
}

func TestFetch_RateLimitedTwice(t *testing.T) {
	rateErr := errors.New("rate limited (429), retry after: ")
	src := &scriptedSource{failures: []error{rateErr, rateErr}}
	rec := &recorder{}

	res, err := newTestEngine(testConfig(), rec).Fetch(
		context.Background(), src, &memorySink{}, request(0, 999))
	require.NoError(t, err)

	// The same window was retried with its size untouched
	require.GreaterOrEqual(t, len(src.calls), 3)
	assert.Equal(t, src.calls[0], src.calls[1])
	assert.Equal(t, src.calls[1], src.calls[2])
	assert.Equal(t, [2]uint64{0, 499}, src.calls[2])

	b := routing.DefaultBackoff
	noJitter := func(int64) int64 { return 0 }
	assert.Equal(t, b.Delay(1, noJitter)+b.Delay(2, noJitter), rec.total())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.sleeps)
	assert.Equal(t, 2, res.Requests)
}

func TestFetch_ThrottledEndpointBacksOff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"request rate limit exceeded"}}`))
	}))
	defer srv.Close()

	client, err := evm.Dial("8453", srv.URL, provider.HTTPOptions{Timeout: time.Second})
	require.NoError(t, err)

	rec := &recorder{}
	cfg := testConfig()
	res, err := newTestEngine(cfg, rec).Fetch(
		context.Background(), client, &memorySink{}, request(100, 5000))

	require.ErrorIs(t, err, ErrTooManyErrors)
	assert.NotErrorIs(t, err, ErrRangeFloor)

	// The window and its ceiling are untouched; only backoff grows
	assert.Equal(t, throttle.DefaultConfig().Initial, res.Batcher.Size)
	assert.Equal(t, throttle.DefaultConfig().Max, res.Batcher.Ceiling)
	require.Len(t, rec.sleeps, cfg.MaxErrors-1)
	for _, d := range rec.sleeps {
		assert.GreaterOrEqual(t, d, time.Second)
	}
	assert.Equal(t, time.Second, rec.sleeps[0])
	assert.Equal(t, 2*time.Second, rec.sleeps[1])
	assert.LessOrEqual(t, int(calls.Load()), cfg.MaxErrors)
}

func TestFetch_TransientHalvesWindow(t *testing.T) {
	src := &scriptedSource{failures: []error{errors.New("connection reset by peer")}}
	rec := &recorder{}

	res, err := newTestEngine(testConfig(), rec).Fetch(
		context.Background(), src, &memorySink{}, request(0, 999))
	require.NoError(t, err)

	assert.Equal(t, [2]uint64{0, 499}, src.calls[0])
	assert.Equal(t, [2]uint64{0, 249}, src.calls[1])
	assert.Equal(t, uint64(50_000), res.Batcher.Ceiling)
	assert.Equal(t, []time.Duration{time.Second}, rec.sleeps)
}

func TestFetch_RangeFloorIsFatal(t *testing.T) {
	src := &scriptedSource{maxRange: 5}
	_, err := newTestEngine(testConfig(), &recorder{}).Fetch(
		context.Background(), src, &memorySink{}, request(100, 200))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRangeFloor)
	assert.Contains(t, err.Error(), "block range too large")
}

func TestFetch_ErrorBudgetFlushesPending(t *testing.T) {
	cfg := testConfig()
	cfg.Batch = throttle.BatchConfig{Initial: 10, Max: 10, Min: 10}

	logs := map[uint64]int{}
	for b := uint64(0); b < 100; b++ {
		logs[b] = 1
	}
	src := &scriptedSource{logs: logs, failFrom: 3}
	sink := &memorySink{}

	res, err := newTestEngine(cfg, &recorder{}).Fetch(context.Background(), src, sink, request(0, 99))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyErrors)

	// Three successful windows were flushed before giving up
	assert.Equal(t, 30, res.Rows)
	assert.Equal(t, 30, domain.Rows(sink.batches))
	assert.Len(t, src.calls, 3+cfg.MaxErrors)
}

func TestFetch_SharedErrorCounter(t *testing.T) {
	cfg := testConfig()
	cfg.MaxErrors = 4

	src := &scriptedSource{failures: []error{
		errors.New("block range too large"),
		errors.New("429"),
		errors.New("connection reset"),
		errors.New("429"),
		errors.New("429"),
	}}

	_, err := newTestEngine(cfg, &recorder{}).Fetch(context.Background(), src, &memorySink{}, request(0, 999))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyErrors)
	assert.Len(t, src.calls, 4)
}

func TestFetch_SuccessResetsCounter(t *testing.T) {
	cfg := testConfig()
	cfg.MaxErrors = 3
	cfg.Batch = throttle.BatchConfig{Initial: 100, Max: 100, Min: 10}

	// Two failures, success, two failures, success ...
	var failures []error
	for i := 0; i < 5; i++ {
		failures = append(failures, errors.New("429"), errors.New("429"))
		failures = append(failures, nil)
	}
	src := &alternatingSource{script: failures}

	_, err := newTestEngine(cfg, &recorder{}).Fetch(context.Background(), src, &memorySink{}, request(0, 299))
	require.NoError(t, err)
}

type alternatingSource struct {
	script []error
	i      int
}

func (a *alternatingSource) GetLogs(context.Context, string, uint64, uint64) ([]domain.RawLog, error) {
	var err error
	if a.i < len(a.script) {
		err = a.script[a.i]
	}
	a.i++
	return nil, err
}

func TestFetch_FlushThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.FlushThreshold = 3
	cfg.Batch = throttle.BatchConfig{Initial: 10, Max: 10, Min: 10}

	logs := map[uint64]int{}
	for b := uint64(0); b < 40; b++ {
		logs[b] = 1
	}
	src := &scriptedSource{logs: logs}
	sink := &memorySink{}

	res, err := newTestEngine(cfg, &recorder{}).Fetch(context.Background(), src, sink, request(0, 39))
	require.NoError(t, err)
	assert.Equal(t, 40, res.Rows)
	assert.Len(t, sink.batches, 4)
}

func TestFetch_SinkErrorPropagates(t *testing.T) {
	src := &scriptedSource{logs: map[uint64]int{5: 1}}
	sink := &memorySink{err: errors.New("disk full")}

	_, err := newTestEngine(testConfig(), &recorder{}).Fetch(context.Background(), src, sink, request(0, 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

type blockingSource struct{ calls int }

func (b *blockingSource) GetLogs(ctx context.Context, _ string, _, _ uint64) ([]domain.RawLog, error) {
	b.calls++
	<-ctx.Done()
	return nil, fmt.Errorf("eth_getLogs: %w", ctx.Err())
}

func TestFetch_RequestTimeoutIsTransient(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 10 * time.Millisecond
	cfg.MaxErrors = 3
	src := &blockingSource{}
	rec := &recorder{}

	_, err := newTestEngine(cfg, rec).Fetch(context.Background(), src, &memorySink{}, request(0, 999))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyErrors)
	assert.Equal(t, 3, src.calls)
	// Two transient backoffs before the budget ran out
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.sleeps)
}

func TestFetch_CustomClassifier(t *testing.T) {
	src := &scriptedSource{failures: []error{errors.New("result window is too large")}}
	classifier := routing.WithPhrases(routing.Classify, routing.KindRangeTooLarge, "result window")
	rec := &recorder{}

	e := New(testConfig(), WithSleeper(rec.sleep), WithClassifier(classifier))
	res, err := e.Fetch(context.Background(), src, &memorySink{}, request(0, 999))
	require.NoError(t, err)
	assert.Equal(t, uint64(250), res.Batcher.Ceiling)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, rec.sleeps)
}
