// Package trends exposes the public surface of the trend scoring
// engine: cached reads, asynchronous recomputation, rankings,
// comparisons, and cache administration.
package trends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"trendpulse/internal/cache"
	"trendpulse/internal/domain/task"
	"trendpulse/internal/domain/trend"
	"trendpulse/internal/service/scoring"
	"trendpulse/internal/service/tasks"
)

// CorpusReader is the narrow interface the engine needs from post
// storage. Pure reads; must be safe for concurrent use.
type CorpusReader interface {
	ListPosts(ctx context.Context, keywordID string) ([]trend.Post, error)
	KeywordExists(ctx context.Context, keywordID string) (bool, error)
	OwnerOf(ctx context.Context, keywordID string) (string, error)
	ActiveKeywords(ctx context.Context, userID string) ([]string, error)
}

// MetricsStore is the optional durability layer behind the cache.
type MetricsStore interface {
	SaveMetrics(ctx context.Context, m trend.TrendMetrics) error
	LoadLatest(ctx context.Context, keywordID string) (*trend.TrendMetrics, error)
}

// Config contains engine tuning.
type Config struct {
	// PendingWait bounds how long a read blocks on an in-flight
	// computation before falling back to the pending signal.
	PendingWait time.Duration

	// WarmupConcurrency bounds parallel keyword computations during
	// cache warm-up.
	WarmupConcurrency int

	// WarmupWait bounds how long warm-up waits per keyword.
	WarmupWait time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PendingWait:       2 * time.Second,
		WarmupConcurrency: 4,
		WarmupWait:        30 * time.Second,
	}
}

// TrendDataResult is the answer to a trend read: a snapshot, a pending
// signal with the task handle to poll, or an explicit no-data answer
// for a keyword whose corpus is empty.
type TrendDataResult struct {
	Metrics *trend.TrendMetrics `json:"metrics,omitempty"`
	Pending bool                `json:"pending"`
	NoData  bool                `json:"no_data,omitempty"`
	TaskID  string              `json:"task_id,omitempty"`
}

// RankingResult carries a ranking plus the keywords that had no
// computed metrics and were therefore excluded rather than zero-filled.
type RankingResult struct {
	Entries []trend.RankingEntry `json:"entries"`
	Skipped []string             `json:"skipped_keywords,omitempty"`
}

// ComparisonResult is the side-by-side projection for a keyword set.
type ComparisonResult struct {
	Rows    []trend.ComparisonRow `json:"rows"`
	Skipped []string              `json:"skipped_keywords,omitempty"`
}

// Engine is the trend scoring and caching core. Reads go through the
// tiered cache; the expensive computation path runs only inside the
// task orchestrator, one flight per keyword.
type Engine struct {
	reader CorpusReader
	store  MetricsStore

	calc   *scoring.Calculator
	ranker *scoring.Ranker
	cache  *cache.Manager
	orch   *tasks.Orchestrator

	logger *slog.Logger
	cfg    Config
}

// NewEngine wires the engine and its orchestrator. eventBus may be
// nil (no lifecycle events published).
func NewEngine(
	reader CorpusReader,
	store MetricsStore,
	calc *scoring.Calculator,
	ranker *scoring.Ranker,
	cacheMgr *cache.Manager,
	eventBus *nats.Conn,
	logger *slog.Logger,
	cfg Config,
	taskCfg tasks.Config,
) *Engine {
	e := &Engine{
		reader: reader,
		store:  store,
		calc:   calc,
		ranker: ranker,
		cache:  cacheMgr,
		logger: logger,
		cfg:    cfg,
	}
	e.orch = tasks.NewOrchestrator(e.recompute, eventBus, logger, taskCfg)
	return e
}

// Start launches the orchestrator's worker pool.
func (e *Engine) Start() {
	e.orch.Start()
}

// Stop drains the orchestrator.
func (e *Engine) Stop(ctx context.Context) error {
	return e.orch.Stop(ctx)
}

// Orchestrator exposes the task orchestrator for transition observers.
func (e *Engine) Orchestrator() *tasks.Orchestrator {
	return e.orch
}

// GetTrendData returns a keyword's trend snapshot. A cache miss (or a
// forced refresh) enqueues recomputation and waits briefly for the
// in-flight task; if it does not finish in time the caller gets a
// pending signal with the task id to poll.
func (e *Engine) GetTrendData(ctx context.Context, keywordID string, forceRefresh bool) (TrendDataResult, error) {
	if err := e.validateKeyword(ctx, keywordID); err != nil {
		return TrendDataResult{}, err
	}

	if !forceRefresh {
		if m, ok := e.cachedMetrics(keywordID); ok {
			return TrendDataResult{Metrics: m}, nil
		}
		// Cold cache: the database may still hold the last snapshot.
		m, err := e.store.LoadLatest(ctx, keywordID)
		if err != nil {
			return TrendDataResult{}, fmt.Errorf("error loading persisted metrics: %w", err)
		}
		if m != nil {
			e.cacheMetrics(*m)
			return TrendDataResult{Metrics: m}, nil
		}
	}

	taskID, err := e.orch.Submit(keywordID)
	if err != nil {
		return TrendDataResult{}, fmt.Errorf("error submitting task: %w", err)
	}

	t, finished := e.orch.Await(taskID, e.cfg.PendingWait)
	if finished && t.State == task.StateSuccess {
		if m, ok := e.cachedMetrics(keywordID); ok {
			return TrendDataResult{Metrics: m}, nil
		}
		// The snapshot was persisted before the task went terminal, so
		// an L1 eviction between that write and this read must not
		// masquerade as a still-pending computation.
		m, err := e.store.LoadLatest(ctx, keywordID)
		if err != nil {
			return TrendDataResult{}, fmt.Errorf("error loading persisted metrics: %w", err)
		}
		if m != nil {
			e.cacheMetrics(*m)
			return TrendDataResult{Metrics: m}, nil
		}
	}
	if finished && t.State == task.StateFailed {
		if errors.Is(t.Cause, trend.ErrInsufficientData) {
			// An empty corpus is an answer, not an outage.
			return TrendDataResult{NoData: true, TaskID: taskID}, nil
		}
		return TrendDataResult{TaskID: taskID}, fmt.Errorf("computation failed: %w", t.Cause)
	}
	return TrendDataResult{Pending: true, TaskID: taskID}, nil
}

// GetRanking returns a user's keyword importance ranking, computing it
// from cached per-keyword metrics on a miss. Concurrent misses share
// one computation.
func (e *Engine) GetRanking(ctx context.Context, userID string, forceRefresh bool) (RankingResult, error) {
	key := cache.RankingKey(userID)
	if forceRefresh {
		e.cache.Invalidate(key)
	}

	payload, err := e.cache.GetOrCompute(key, cache.TierL2, func() ([]byte, error) {
		result, err := e.buildRanking(ctx, userID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})
	if err != nil {
		return RankingResult{}, err
	}

	var result RankingResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return RankingResult{}, fmt.Errorf("error unmarshaling ranking: %w", err)
	}
	return result, nil
}

func (e *Engine) buildRanking(ctx context.Context, userID string) (RankingResult, error) {
	ids, err := e.reader.ActiveKeywords(ctx, userID)
	if err != nil {
		return RankingResult{}, fmt.Errorf("error listing keywords: %w", err)
	}
	metrics := e.metricsForKeywords(ctx, ids)
	entries, skipped := e.ranker.Rank(ids, metrics)
	return RankingResult{Entries: entries, Skipped: skipped}, nil
}

// GetSummary returns aggregate statistics over a user's keywords.
func (e *Engine) GetSummary(ctx context.Context, userID string) (trend.Summary, error) {
	payload, err := e.cache.GetOrCompute(cache.SummaryKey(userID), cache.TierL2, func() ([]byte, error) {
		ids, err := e.reader.ActiveKeywords(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("error listing keywords: %w", err)
		}
		summary := e.ranker.Summarize(userID, ids, e.metricsForKeywords(ctx, ids))
		return json.Marshal(summary)
	})
	if err != nil {
		return trend.Summary{}, err
	}

	var summary trend.Summary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return trend.Summary{}, fmt.Errorf("error unmarshaling summary: %w", err)
	}
	return summary, nil
}

// CompareKeywords projects metrics side-by-side for a keyword set.
// No new computation happens; keywords without metrics are skipped.
func (e *Engine) CompareKeywords(ctx context.Context, keywordIDs []string) (ComparisonResult, error) {
	if len(keywordIDs) == 0 {
		return ComparisonResult{}, fmt.Errorf("no keywords to compare")
	}

	payload, err := e.cache.GetOrCompute(cache.CompareKey(keywordIDs), cache.TierL2, func() ([]byte, error) {
		rows, skipped := e.ranker.Compare(keywordIDs, e.metricsForKeywords(ctx, keywordIDs))
		return json.Marshal(ComparisonResult{Rows: rows, Skipped: skipped})
	})
	if err != nil {
		return ComparisonResult{}, err
	}

	var result ComparisonResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return ComparisonResult{}, fmt.Errorf("error unmarshaling comparison: %w", err)
	}
	return result, nil
}

// GetHistory returns a keyword's trend history, oldest first.
func (e *Engine) GetHistory(keywordID string) ([]trend.TrendMetrics, error) {
	return e.cache.History(keywordID)
}

// InvalidateKeyword drops a keyword's cached snapshot and every
// derived entry that depends on it. History is untouched.
func (e *Engine) InvalidateKeyword(ctx context.Context, keywordID string) error {
	e.cache.Invalidate(cache.TrendKey(keywordID))
	e.cache.InvalidateByPrefix("compare:keywords:")

	owner, err := e.reader.OwnerOf(ctx, keywordID)
	if err != nil {
		return err
	}
	e.cache.Invalidate(cache.RankingKey(owner))
	e.cache.Invalidate(cache.SummaryKey(owner))
	return nil
}

// InvalidateUser drops all of a user's cached trend data: every
// keyword snapshot plus the derived ranking and summary entries.
func (e *Engine) InvalidateUser(ctx context.Context, userID string) error {
	ids, err := e.reader.ActiveKeywords(ctx, userID)
	if err != nil {
		return fmt.Errorf("error listing keywords: %w", err)
	}
	for _, id := range ids {
		e.cache.Invalidate(cache.TrendKey(id))
	}
	e.cache.Invalidate(cache.RankingKey(userID))
	e.cache.Invalidate(cache.SummaryKey(userID))
	e.cache.InvalidateByPrefix("compare:keywords:")
	return nil
}

// Warmup precomputes and populates L1/L2 for a user's active keywords.
// Meant for process start or bulk keyword activation, never the hot
// read path.
func (e *Engine) Warmup(ctx context.Context, userID string) error {
	ids, err := e.reader.ActiveKeywords(ctx, userID)
	if err != nil {
		return fmt.Errorf("error listing keywords: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.WarmupConcurrency)
	for _, id := range ids {
		keywordID := id
		g.Go(func() error {
			if _, ok := e.cachedMetrics(keywordID); ok {
				return nil
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			taskID, err := e.orch.Submit(keywordID)
			if err != nil {
				return err
			}
			if t, finished := e.orch.Await(taskID, e.cfg.WarmupWait); finished && t.State == task.StateFailed {
				e.logger.Warn("warmup computation failed", "keyword_id", keywordID, "last_error", t.LastError)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Prime the derived L2 shapes now that L1 is populated.
	if _, err := e.GetRanking(ctx, userID, true); err != nil {
		return err
	}
	_, err = e.GetSummary(ctx, userID)
	return err
}

// GetCacheStats reports cache hit/miss statistics.
func (e *Engine) GetCacheStats() cache.Stats {
	return e.cache.Stats()
}

// GetTaskStatus returns a task snapshot by id.
func (e *Engine) GetTaskStatus(taskID string) (task.Task, bool) {
	return e.orch.Status(taskID)
}

// recompute is the orchestrator's compute function: the only path that
// runs the expensive calculation and the only writer of a keyword's L1
// entry. Storage hiccups are marked transient so the orchestrator
// retries them; an empty corpus is terminal and writes nothing, so any
// previous snapshot stays valid.
func (e *Engine) recompute(ctx context.Context, keywordID string) error {
	posts, err := e.reader.ListPosts(ctx, keywordID)
	if err != nil {
		return trend.Transient(fmt.Errorf("error reading corpus: %w", err))
	}

	m, err := e.calc.Compute(keywordID, posts)
	if err != nil {
		return err
	}

	e.cacheMetrics(m)
	if err := e.cache.AppendHistory(keywordID, m); err != nil {
		e.logger.Error("error appending history", "keyword_id", keywordID, "error", err)
	}
	if err := e.store.SaveMetrics(ctx, m); err != nil {
		return trend.Transient(fmt.Errorf("error persisting metrics: %w", err))
	}

	// New L1 data invalidates the derived shapes built on it.
	if owner, err := e.reader.OwnerOf(ctx, keywordID); err == nil {
		e.cache.Invalidate(cache.RankingKey(owner))
		e.cache.Invalidate(cache.SummaryKey(owner))
	}
	e.cache.InvalidateByPrefix("compare:keywords:")

	return nil
}

func (e *Engine) validateKeyword(ctx context.Context, keywordID string) error {
	exists, err := e.reader.KeywordExists(ctx, keywordID)
	if err != nil {
		return fmt.Errorf("error validating keyword: %w", err)
	}
	if !exists {
		return trend.ErrInvalidKeyword
	}
	return nil
}

func (e *Engine) cachedMetrics(keywordID string) (*trend.TrendMetrics, bool) {
	payload, ok := e.cache.Get(cache.TrendKey(keywordID))
	if !ok {
		return nil, false
	}
	var m trend.TrendMetrics
	if err := json.Unmarshal(payload, &m); err != nil {
		e.logger.Error("error unmarshaling cached metrics", "keyword_id", keywordID, "error", err)
		return nil, false
	}
	return &m, true
}

func (e *Engine) cacheMetrics(m trend.TrendMetrics) {
	payload, err := json.Marshal(m)
	if err != nil {
		e.logger.Error("error marshaling metrics", "keyword_id", m.KeywordID, "error", err)
		return
	}
	e.cache.Set(cache.TrendKey(m.KeywordID), payload, cache.TierL1)
}

// metricsForKeywords resolves metrics for a keyword set from the cache
// with a database fallback. Keywords with neither are simply absent
// from the map; rankers report them as skipped.
func (e *Engine) metricsForKeywords(ctx context.Context, keywordIDs []string) map[string]trend.TrendMetrics {
	out := make(map[string]trend.TrendMetrics, len(keywordIDs))
	for _, id := range keywordIDs {
		if m, ok := e.cachedMetrics(id); ok {
			out[id] = *m
			continue
		}
		m, err := e.store.LoadLatest(ctx, id)
		if err != nil {
			e.logger.Warn("error loading persisted metrics", "keyword_id", id, "error", err)
			continue
		}
		if m != nil {
			e.cacheMetrics(*m)
			out[id] = *m
		}
	}
	return out
}
