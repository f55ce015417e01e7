package cache

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(cfg Config) *Manager {
	return NewManager(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "trend:keyword:kw-1", TrendKey("kw-1"))
	assert.Equal(t, "ranking:user:u-1", RankingKey("u-1"))
	assert.Equal(t, "summary:user:u-1", SummaryKey("u-1"))
	assert.Equal(t, "trend_history:keyword:kw-1", HistoryKey("kw-1"))

	// Comparison keys are order-independent.
	assert.Equal(t, CompareKey([]string{"b", "a", "c"}), CompareKey([]string{"c", "a", "b"}))
	assert.Equal(t, "compare:keywords:a,b,c", CompareKey([]string{"b", "a", "c"}))
}

func TestGetSetRoundTrip(t *testing.T) {
	m := testManager(DefaultConfig())

	_, ok := m.Get(TrendKey("kw-1"))
	assert.False(t, ok)

	m.Set(TrendKey("kw-1"), []byte(`{"keyword_id":"kw-1"}`), TierL1)

	value, ok := m.Get(TrendKey("kw-1"))
	require.True(t, ok)
	assert.Equal(t, []byte(`{"keyword_id":"kw-1"}`), value)
}

func TestTTLExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.L1TTL = 30 * time.Millisecond
	m := testManager(cfg)

	m.Set(TrendKey("kw-1"), []byte("v"), TierL1)
	_, ok := m.Get(TrendKey("kw-1"))
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	_, ok = m.Get(TrendKey("kw-1"))
	assert.False(t, ok, "expired entry must read as a miss")
}

func TestInvalidate(t *testing.T) {
	m := testManager(DefaultConfig())

	m.Set(TrendKey("kw-1"), []byte("v"), TierL1)
	assert.True(t, m.Invalidate(TrendKey("kw-1")))
	assert.False(t, m.Invalidate(TrendKey("kw-1")), "second invalidation finds nothing")

	_, ok := m.Get(TrendKey("kw-1"))
	assert.False(t, ok)
}

func TestInvalidateByPrefix(t *testing.T) {
	m := testManager(DefaultConfig())

	m.Set(TrendKey("kw-1"), []byte("t1"), TierL1)
	m.Set(TrendKey("kw-2"), []byte("t2"), TierL1)
	m.Set(RankingKey("u-1"), []byte("r"), TierL2)
	m.Set(HistoryKey("kw-1"), []byte("h"), TierL3)

	removed := m.InvalidateByPrefix("trend:keyword:")
	assert.Equal(t, 2, removed)

	_, ok := m.Get(TrendKey("kw-1"))
	assert.False(t, ok)
	_, ok = m.Get(TrendKey("kw-2"))
	assert.False(t, ok)

	// Other namespaces survive; "trend:" must not swallow
	// "trend_history:".
	_, ok = m.Get(RankingKey("u-1"))
	assert.True(t, ok)
	_, ok = m.Get(HistoryKey("kw-1"))
	assert.True(t, ok)
}

func TestInvalidateByPrefixNoMatches(t *testing.T) {
	m := testManager(DefaultConfig())
	m.Set(RankingKey("u-1"), []byte("r"), TierL2)
	assert.Zero(t, m.InvalidateByPrefix("compare:keywords:"))
}

func TestGetOrComputeCachesResult(t *testing.T) {
	m := testManager(DefaultConfig())

	calls := 0
	compute := func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	value, err := m.GetOrCompute(RankingKey("u-1"), TierL2, compute)
	require.NoError(t, err)
	assert.Equal(t, []byte("computed"), value)

	value, err = m.GetOrCompute(RankingKey("u-1"), TierL2, compute)
	require.NoError(t, err)
	assert.Equal(t, []byte("computed"), value)
	assert.Equal(t, 1, calls, "second read must be served from cache")
}

func TestGetOrComputeError(t *testing.T) {
	m := testManager(DefaultConfig())

	wantErr := errors.New("upstream unavailable")
	_, err := m.GetOrCompute(RankingKey("u-1"), TierL2, func() ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, ok := m.Get(RankingKey("u-1"))
	assert.False(t, ok, "failed computations must not be cached")
}

func TestGetOrComputeCoalescesConcurrentCallers(t *testing.T) {
	m := testManager(DefaultConfig())

	var mu sync.Mutex
	calls := 0
	gate := make(chan struct{})
	compute := func() ([]byte, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-gate
		return []byte("once"), nil
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([][]byte, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.GetOrCompute(RankingKey("u-1"), TierL2, compute)
		}(i)
	}

	// Give every goroutine a chance to pile onto the flight, then
	// release the single computation.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "concurrent callers must share one computation")
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("once"), results[i])
	}
}

func TestStats(t *testing.T) {
	m := testManager(DefaultConfig())

	m.Set(TrendKey("kw-1"), []byte("v"), TierL1)
	m.Get(TrendKey("kw-1"))   // hit
	m.Get(TrendKey("kw-2"))   // miss, L1 namespace
	m.Get(HistoryKey("kw-1")) // miss, L3 namespace

	s := m.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(2), s.Misses)
	assert.InDelta(t, 1.0/3.0, s.HitRate, 1e-9)

	assert.Equal(t, 1, s.PerTier["L1"].Entries)
	assert.Equal(t, int64(1), s.PerTier["L1"].Hits)
	assert.Equal(t, int64(1), s.PerTier["L1"].Misses)
	assert.Equal(t, int64(1), s.PerTier["L3"].Misses)
	assert.Zero(t, s.PerTier["L2"].Hits)
}

func TestStatsEmpty(t *testing.T) {
	s := testManager(DefaultConfig()).Stats()
	assert.Zero(t, s.Hits)
	assert.Zero(t, s.Misses)
	assert.Zero(t, s.HitRate)
}
