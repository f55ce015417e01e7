package trends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendpulse/internal/cache"
	"trendpulse/internal/domain/task"
	"trendpulse/internal/domain/trend"
	"trendpulse/internal/service/scoring"
	"trendpulse/internal/service/tasks"
)

type fakeReader struct {
	mu       sync.Mutex
	posts    map[string][]trend.Post
	owners   map[string]string
	keywords map[string][]string

	listErr   error
	listCalls int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		posts:    make(map[string][]trend.Post),
		owners:   make(map[string]string),
		keywords: make(map[string][]string),
	}
}

func (f *fakeReader) ListPosts(ctx context.Context, keywordID string) ([]trend.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.posts[keywordID], nil
}

func (f *fakeReader) KeywordExists(ctx context.Context, keywordID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.owners[keywordID]
	return ok, nil
}

func (f *fakeReader) OwnerOf(ctx context.Context, keywordID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.owners[keywordID]
	if !ok {
		return "", trend.ErrInvalidKeyword
	}
	return owner, nil
}

func (f *fakeReader) ActiveKeywords(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keywords[userID], nil
}

func (f *fakeReader) addKeyword(userID, keywordID string, posts []trend.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[keywordID] = userID
	f.keywords[userID] = append(f.keywords[userID], keywordID)
	f.posts[keywordID] = posts
}

type fakeStore struct {
	mu     sync.Mutex
	saved  map[string]trend.TrendMetrics
	loaded map[string]*trend.TrendMetrics

	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved:  make(map[string]trend.TrendMetrics),
		loaded: make(map[string]*trend.TrendMetrics),
	}
}

func (f *fakeStore) SaveMetrics(ctx context.Context, m trend.TrendMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[m.KeywordID] = m
	return nil
}

func (f *fakeStore) LoadLatest(ctx context.Context, keywordID string) (*trend.TrendMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.loaded[keywordID]; ok {
		return m, nil
	}
	if m, ok := f.saved[keywordID]; ok {
		snapshot := m
		return &snapshot, nil
	}
	return nil, nil
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func corpus(keywordID string, n int) []trend.Post {
	posts := make([]trend.Post, n)
	for i := range posts {
		posts[i] = trend.Post{
			ID:           fmt.Sprintf("%s-p%d", keywordID, i),
			KeywordID:    keywordID,
			Title:        fmt.Sprintf("discussion thread %d", i),
			Body:         "steady engagement across the board",
			Score:        10 + i*5,
			CommentCount: 2 + i,
			CreatedAt:    time.Now().Add(-time.Duration(n-i) * time.Hour),
		}
	}
	return posts
}

func newTestEngine(t *testing.T, reader CorpusReader, store MetricsStore) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	taskCfg := tasks.DefaultConfig()
	taskCfg.Workers = 2
	taskCfg.BackoffBase = time.Millisecond
	taskCfg.BackoffCap = 5 * time.Millisecond
	taskCfg.ComputeTimeout = 2 * time.Second

	e := NewEngine(
		reader,
		store,
		scoring.NewCalculator(scoring.DefaultCalculatorConfig()),
		scoring.NewRanker(scoring.DefaultRankerConfig()),
		cache.NewManager(cache.DefaultConfig(), logger),
		nil,
		logger,
		DefaultConfig(),
		taskCfg,
	)
	e.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return e
}

func TestGetTrendDataUnknownKeyword(t *testing.T) {
	e := newTestEngine(t, newFakeReader(), newFakeStore())

	_, err := e.GetTrendData(context.Background(), "no-such-keyword", false)
	assert.ErrorIs(t, err, trend.ErrInvalidKeyword)
}

func TestGetTrendDataComputesOnMiss(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-1", corpus("kw-1", 8))
	store := newFakeStore()
	e := newTestEngine(t, reader, store)

	result, err := e.GetTrendData(context.Background(), "kw-1", false)
	require.NoError(t, err)
	require.NotNil(t, result.Metrics)
	assert.False(t, result.Pending)
	assert.Equal(t, "kw-1", result.Metrics.KeywordID)
	assert.Equal(t, 8, result.Metrics.PostCount)

	// Computed once, then served from cache.
	again, err := e.GetTrendData(context.Background(), "kw-1", false)
	require.NoError(t, err)
	require.NotNil(t, again.Metrics)

	reader.mu.Lock()
	calls := reader.listCalls
	reader.mu.Unlock()
	assert.Equal(t, 1, calls)

	// Recompute persisted the snapshot.
	assert.Equal(t, 1, store.savedCount())
}

func TestGetTrendDataFallsBackToStore(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-1", corpus("kw-1", 3))
	store := newFakeStore()
	persisted := trend.TrendMetrics{
		KeywordID:    "kw-1",
		Engagement:   0.4,
		Direction:    trend.DirectionStable,
		PostCount:    3,
		CalculatedAt: time.Now().Add(-time.Hour),
	}
	store.loaded["kw-1"] = &persisted
	e := newTestEngine(t, reader, store)

	result, err := e.GetTrendData(context.Background(), "kw-1", false)
	require.NoError(t, err)
	require.NotNil(t, result.Metrics)
	assert.False(t, result.Pending)
	assert.Equal(t, persisted.CalculatedAt.Unix(), result.Metrics.CalculatedAt.Unix())

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Zero(t, reader.listCalls, "a persisted snapshot avoids recomputation")
}

func TestGetTrendDataPendingOnSlowComputation(t *testing.T) {
	inner := newFakeReader()
	inner.addKeyword("user-1", "kw-1", corpus("kw-1", 3))
	gate := make(chan struct{})
	reader := &slowReader{fakeReader: inner, gate: gate}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := DefaultConfig()
	cfg.PendingWait = 10 * time.Millisecond
	taskCfg := tasks.DefaultConfig()
	taskCfg.Workers = 1

	e := NewEngine(
		reader,
		newFakeStore(),
		scoring.NewCalculator(scoring.DefaultCalculatorConfig()),
		scoring.NewRanker(scoring.DefaultRankerConfig()),
		cache.NewManager(cache.DefaultConfig(), logger),
		nil,
		logger,
		cfg,
		taskCfg,
	)
	e.Start()
	t.Cleanup(func() {
		close(gate)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})

	result, err := e.GetTrendData(context.Background(), "kw-1", false)
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.NotEmpty(t, result.TaskID)
	assert.Nil(t, result.Metrics)

	// The pending task is pollable.
	snapshot, ok := e.GetTaskStatus(result.TaskID)
	require.True(t, ok)
	assert.False(t, snapshot.State.IsTerminal())
}

// slowReader blocks corpus reads until its gate opens.
type slowReader struct {
	*fakeReader
	gate chan struct{}
}

func (s *slowReader) ListPosts(ctx context.Context, keywordID string) ([]trend.Post, error) {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.fakeReader.ListPosts(ctx, keywordID)
}

func TestGetTrendDataFailureKeepsErrorIdentity(t *testing.T) {
	inner := newFakeReader()
	inner.addKeyword("user-1", "kw-1", corpus("kw-1", 3))
	gate := make(chan struct{})
	reader := &slowReader{fakeReader: inner, gate: gate}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	taskCfg := tasks.DefaultConfig()
	taskCfg.Workers = 1
	taskCfg.ComputeTimeout = 20 * time.Millisecond

	e := NewEngine(
		reader,
		newFakeStore(),
		scoring.NewCalculator(scoring.DefaultCalculatorConfig()),
		scoring.NewRanker(scoring.DefaultRankerConfig()),
		cache.NewManager(cache.DefaultConfig(), logger),
		nil,
		logger,
		DefaultConfig(),
		taskCfg,
	)
	e.Start()
	t.Cleanup(func() {
		close(gate)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})

	result, err := e.GetTrendData(context.Background(), "kw-1", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, trend.ErrComputeTimeout, "the terminal cause must survive to the caller")
	assert.False(t, result.Pending)
	assert.NotEmpty(t, result.TaskID)
}

func TestGetTrendDataEmptyCorpusAnswersNoData(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-empty", nil)
	store := newFakeStore()
	e := newTestEngine(t, reader, store)

	result, err := e.GetTrendData(context.Background(), "kw-empty", false)
	require.NoError(t, err, "an empty corpus is an answer, not a failure")
	assert.True(t, result.NoData)
	assert.False(t, result.Pending)
	assert.Nil(t, result.Metrics)
	require.NotEmpty(t, result.TaskID)

	// The computation itself is terminal and leaves no snapshot behind.
	snapshot, ok := e.GetTaskStatus(result.TaskID)
	require.True(t, ok)
	assert.Equal(t, task.StateFailed, snapshot.State)
	_, cached := e.cache.Get(cache.TrendKey("kw-empty"))
	assert.False(t, cached)
	assert.Zero(t, store.savedCount())
}

func TestGetTrendDataForceRefreshRecomputes(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-1", corpus("kw-1", 4))
	e := newTestEngine(t, reader, newFakeStore())

	_, err := e.GetTrendData(context.Background(), "kw-1", false)
	require.NoError(t, err)
	_, err = e.GetTrendData(context.Background(), "kw-1", true)
	require.NoError(t, err)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Equal(t, 2, reader.listCalls)
}

func TestGetTrendDataServesStoreWhenL1Evicted(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-1", corpus("kw-1", 4))
	store := newFakeStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// A 100ns L1 TTL makes every freshly written trend entry read
	// back as evicted, the worst case between a task's cache write and
	// the waiter's re-read. It must stay >= 100ns: expirable.NewLRU
	// spawns a cleanup ticker at ttl/100, and a zero interval panics.
	cacheCfg := cache.DefaultConfig()
	cacheCfg.L1TTL = 100 * time.Nanosecond
	taskCfg := tasks.DefaultConfig()
	taskCfg.Workers = 2

	e := NewEngine(
		reader,
		store,
		scoring.NewCalculator(scoring.DefaultCalculatorConfig()),
		scoring.NewRanker(scoring.DefaultRankerConfig()),
		cache.NewManager(cacheCfg, logger),
		nil,
		logger,
		DefaultConfig(),
		taskCfg,
	)
	e.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})

	result, err := e.GetTrendData(context.Background(), "kw-1", false)
	require.NoError(t, err)
	assert.False(t, result.Pending, "a finished computation must not report pending")
	require.NotNil(t, result.Metrics, "the persisted snapshot backs an evicted L1 entry")
	assert.Equal(t, "kw-1", result.Metrics.KeywordID)
}

func TestGetRankingSkipsUncomputedKeywords(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-a", corpus("kw-a", 6))
	reader.addKeyword("user-1", "kw-b", corpus("kw-b", 4))
	reader.addKeyword("user-1", "kw-cold", corpus("kw-cold", 2))
	e := newTestEngine(t, reader, newFakeStore())

	// Compute two of three keywords.
	for _, id := range []string{"kw-a", "kw-b"} {
		_, err := e.GetTrendData(context.Background(), id, false)
		require.NoError(t, err)
	}

	ranking, err := e.GetRanking(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.Len(t, ranking.Entries, 2)
	assert.Equal(t, []string{"kw-cold"}, ranking.Skipped)
	assert.Equal(t, 1, ranking.Entries[0].Rank)
	assert.Equal(t, 2, ranking.Entries[1].Rank)
}

func TestGetRankingCachedUntilInvalidated(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-a", corpus("kw-a", 6))
	e := newTestEngine(t, reader, newFakeStore())

	_, err := e.GetTrendData(context.Background(), "kw-a", false)
	require.NoError(t, err)

	first, err := e.GetRanking(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.Len(t, first.Entries, 1)

	_, ok := e.cache.Get(cache.RankingKey("user-1"))
	assert.True(t, ok, "ranking must be cached in L2")

	require.NoError(t, e.InvalidateKeyword(context.Background(), "kw-a"))
	_, ok = e.cache.Get(cache.RankingKey("user-1"))
	assert.False(t, ok, "keyword invalidation must drop the owner's ranking")
}

func TestGetSummary(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-a", corpus("kw-a", 6))
	reader.addKeyword("user-1", "kw-b", corpus("kw-b", 4))
	e := newTestEngine(t, reader, newFakeStore())

	for _, id := range []string{"kw-a", "kw-b"} {
		_, err := e.GetTrendData(context.Background(), id, false)
		require.NoError(t, err)
	}

	summary, err := e.GetSummary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", summary.UserID)
	assert.Equal(t, 2, summary.KeywordCount)
	assert.Equal(t, 10, summary.TotalPosts)
	assert.NotEmpty(t, summary.TopKeywordID)
}

func TestCompareKeywords(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-a", corpus("kw-a", 6))
	reader.addKeyword("user-1", "kw-b", corpus("kw-b", 4))
	e := newTestEngine(t, reader, newFakeStore())

	for _, id := range []string{"kw-a", "kw-b"} {
		_, err := e.GetTrendData(context.Background(), id, false)
		require.NoError(t, err)
	}

	result, err := e.CompareKeywords(context.Background(), []string{"kw-b", "kw-a", "kw-unknown"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, []string{"kw-unknown"}, result.Skipped)

	_, err = e.CompareKeywords(context.Background(), nil)
	assert.Error(t, err)
}

func TestHistoryAccumulatesAcrossRecomputes(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-1", corpus("kw-1", 4))
	e := newTestEngine(t, reader, newFakeStore())

	for i := 0; i < 3; i++ {
		_, err := e.GetTrendData(context.Background(), "kw-1", true)
		require.NoError(t, err)
	}

	history, err := e.GetHistory("kw-1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestTransientStorageFailureRetries(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-1", corpus("kw-1", 4))
	reader.listErr = errors.New("connection reset")
	e := newTestEngine(t, reader, newFakeStore())

	_, err := e.GetTrendData(context.Background(), "kw-1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Equal(t, 3, reader.listCalls, "storage failures are retried before giving up")
}

func TestInvalidateUser(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-a", corpus("kw-a", 6))
	reader.addKeyword("user-1", "kw-b", corpus("kw-b", 4))
	// A user id that has the invalidated one as a string prefix.
	reader.addKeyword("user-12", "kw-c", corpus("kw-c", 3))
	e := newTestEngine(t, reader, newFakeStore())

	for _, id := range []string{"kw-a", "kw-b", "kw-c"} {
		_, err := e.GetTrendData(context.Background(), id, false)
		require.NoError(t, err)
	}
	for _, userID := range []string{"user-1", "user-12"} {
		_, err := e.GetRanking(context.Background(), userID, false)
		require.NoError(t, err)
		_, err = e.GetSummary(context.Background(), userID)
		require.NoError(t, err)
	}

	require.NoError(t, e.InvalidateUser(context.Background(), "user-1"))

	for _, key := range []string{
		cache.TrendKey("kw-a"),
		cache.TrendKey("kw-b"),
		cache.RankingKey("user-1"),
		cache.SummaryKey("user-1"),
	} {
		_, ok := e.cache.Get(key)
		assert.False(t, ok, "key %s must be gone", key)
	}

	// Other users keep their entries, including ids the invalidated
	// one is a prefix of.
	for _, key := range []string{
		cache.TrendKey("kw-c"),
		cache.RankingKey("user-12"),
		cache.SummaryKey("user-12"),
	} {
		_, ok := e.cache.Get(key)
		assert.True(t, ok, "key %s must survive", key)
	}

	// History survives user-level invalidation.
	history, err := e.GetHistory("kw-a")
	require.NoError(t, err)
	assert.NotEmpty(t, history)
}

func TestWarmupPopulatesCaches(t *testing.T) {
	reader := newFakeReader()
	reader.addKeyword("user-1", "kw-a", corpus("kw-a", 6))
	reader.addKeyword("user-1", "kw-b", corpus("kw-b", 4))
	e := newTestEngine(t, reader, newFakeStore())

	require.NoError(t, e.Warmup(context.Background(), "user-1"))

	for _, id := range []string{"kw-a", "kw-b"} {
		_, ok := e.cache.Get(cache.TrendKey(id))
		assert.True(t, ok, "keyword %s must be warm", id)
	}
	_, ok := e.cache.Get(cache.RankingKey("user-1"))
	assert.True(t, ok)
	_, ok = e.cache.Get(cache.SummaryKey("user-1"))
	assert.True(t, ok)
}
