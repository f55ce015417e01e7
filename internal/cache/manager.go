// Package cache implements the tiered result cache for the trend
// engine. Three tiers with TTLs matched to data volatility back the
// read path; all cached values pass through this manager, nothing else
// touches the underlying stores.
package cache

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"trendpulse/internal/metrics"
)

// Tier identifies a cache class. TTLs are a property of the data
// shape stored in each tier, not of the caller.
type Tier string

const (
	// TierL1 holds single-keyword trend snapshots; invalidated
	// whenever new posts arrive.
	TierL1 Tier = "L1"

	// TierL2 holds rankings, summaries, and comparisons; cheap to
	// recompute but dependent on many L1 entries.
	TierL2 Tier = "L2"

	// TierL3 holds append-mostly trend history.
	TierL3 Tier = "L3"
)

// Config holds per-tier TTLs and capacities.
type Config struct {
	L1TTL time.Duration
	L2TTL time.Duration
	L3TTL time.Duration

	L1Size int
	L2Size int
	L3Size int

	// HistoryLimit caps the per-keyword history ring buffer.
	HistoryLimit int
}

// DefaultConfig returns the production tier layout.
func DefaultConfig() Config {
	return Config{
		L1TTL:        5 * time.Minute,
		L2TTL:        30 * time.Minute,
		L3TTL:        2 * time.Hour,
		L1Size:       4096,
		L2Size:       1024,
		L3Size:       4096,
		HistoryLimit: 30,
	}
}

// Key builders. Namespacing is {entity}:{scope}:{id} so a prefix scan
// over the key registry can invalidate an entity class in bulk.

// TrendKey is the L1 key for a keyword's trend snapshot.
func TrendKey(keywordID string) string {
	return fmt.Sprintf("trend:keyword:%s", keywordID)
}

// RankingKey is the L2 key for a user's importance ranking.
func RankingKey(userID string) string {
	return fmt.Sprintf("ranking:user:%s", userID)
}

// SummaryKey is the L2 key for a user's summary.
func SummaryKey(userID string) string {
	return fmt.Sprintf("summary:user:%s", userID)
}

// CompareKey is the L2 key for a cross-keyword comparison. The id set
// is sorted so the key is independent of request order.
func CompareKey(keywordIDs []string) string {
	ids := append([]string{}, keywordIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("compare:keywords:%s", strings.Join(ids, ","))
}

// HistoryKey is the L3 key for a keyword's trend history.
func HistoryKey(keywordID string) string {
	return fmt.Sprintf("trend_history:keyword:%s", keywordID)
}

// TierStats is the per-tier slice of Stats.
type TierStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64                `json:"hits"`
	Misses  int64                `json:"misses"`
	HitRate float64              `json:"hit_rate"`
	PerTier map[string]TierStats `json:"per_tier"`
}

type tierCounters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// Manager is the tiered cache. Values are opaque serialized payloads;
// callers own the encoding. Expiry is lazy: an expired entry simply
// reads as a miss and the read path enqueues recomputation.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	tiers    map[Tier]*expirable.LRU[string, []byte]
	counters map[Tier]*tierCounters

	// keys is the secondary index mapping every live key to its tier,
	// enabling prefix-scoped bulk invalidation without native prefix
	// scans on the backing stores.
	mu   sync.RWMutex
	keys map[string]Tier

	flight singleflight.Group

	// historyMu serializes history read-modify-write cycles for this
	// manager instance.
	historyMu sync.Mutex

	hits   atomic.Int64
	misses atomic.Int64
}

// NewManager creates the three tiers with their configured TTLs.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		tiers:    make(map[Tier]*expirable.LRU[string, []byte], 3),
		counters: make(map[Tier]*tierCounters, 3),
		keys:     make(map[string]Tier),
	}
	for _, t := range []struct {
		tier Tier
		size int
		ttl  time.Duration
	}{
		{TierL1, cfg.L1Size, cfg.L1TTL},
		{TierL2, cfg.L2Size, cfg.L2TTL},
		{TierL3, cfg.L3Size, cfg.L3TTL},
	} {
		tier := t.tier
		onEvict := func(key string, _ []byte) {
			m.mu.Lock()
			delete(m.keys, key)
			m.mu.Unlock()
		}
		m.tiers[tier] = expirable.NewLRU[string, []byte](t.size, onEvict, t.ttl)
		m.counters[tier] = &tierCounters{}
	}
	return m
}

// Get returns the cached payload for key, if present and unexpired.
func (m *Manager) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	tier, ok := m.keys[key]
	m.mu.RUnlock()
	if !ok {
		m.miss(tierForKey(key))
		return nil, false
	}

	value, ok := m.tiers[tier].Get(key)
	if !ok {
		// Expired between registry lookup and read.
		m.miss(tier)
		return nil, false
	}
	m.hit(tier)
	return value, true
}

// Set stores payload under key in the given tier, refreshing the
// entry's TTL.
func (m *Manager) Set(key string, value []byte, tier Tier) {
	m.tiers[tier].Add(key, value)
	m.mu.Lock()
	m.keys[key] = tier
	m.mu.Unlock()
}

// GetOrCompute returns the cached payload or computes and stores it.
// Concurrent callers for the same key are coalesced into a single
// computation. The slow trend path must not be computed here — the
// task orchestrator owns that; this is for cheap derived shapes
// (rankings, comparisons) only.
func (m *Manager) GetOrCompute(key string, tier Tier, compute func() ([]byte, error)) ([]byte, error) {
	if value, ok := m.Get(key); ok {
		return value, nil
	}
	value, err, _ := m.flight.Do(key, func() (interface{}, error) {
		if value, ok := m.Get(key); ok {
			return value, nil
		}
		value, err := compute()
		if err != nil {
			return nil, err
		}
		m.Set(key, value, tier)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

// Invalidate removes a single key.
func (m *Manager) Invalidate(key string) bool {
	m.mu.RLock()
	tier, ok := m.keys[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return m.tiers[tier].Remove(key)
}

// InvalidateByPrefix removes every key sharing the given namespace
// prefix and returns how many were dropped. The key registry serves as
// the secondary index, so no tier is enumerated.
func (m *Manager) InvalidateByPrefix(prefix string) int {
	m.mu.RLock()
	matched := make(map[string]Tier)
	for key, tier := range m.keys {
		if strings.HasPrefix(key, prefix) {
			matched[key] = tier
		}
	}
	m.mu.RUnlock()

	for key, tier := range matched {
		m.tiers[tier].Remove(key)
	}
	if len(matched) > 0 {
		m.logger.Debug("cache bulk invalidation", "prefix", prefix, "removed", len(matched))
	}
	return len(matched)
}

// Stats reports hit/miss counters and per-tier entry counts.
func (m *Manager) Stats() Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()
	s := Stats{
		Hits:    hits,
		Misses:  misses,
		PerTier: make(map[string]TierStats, 3),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	for tier, lru := range m.tiers {
		c := m.counters[tier]
		s.PerTier[string(tier)] = TierStats{
			Entries: lru.Len(),
			Hits:    c.hits.Load(),
			Misses:  c.misses.Load(),
		}
	}
	return s
}

func (m *Manager) hit(tier Tier) {
	m.hits.Add(1)
	m.counters[tier].hits.Add(1)
	metrics.CacheHitsTotal.WithLabelValues(string(tier)).Inc()
}

func (m *Manager) miss(tier Tier) {
	m.misses.Add(1)
	m.counters[tier].misses.Add(1)
	metrics.CacheMissesTotal.WithLabelValues(string(tier)).Inc()
}

// tierForKey attributes misses for unknown keys to the tier their
// namespace belongs in, keeping per-tier miss counts meaningful.
func tierForKey(key string) Tier {
	switch {
	case strings.HasPrefix(key, "trend_history:"):
		return TierL3
	case strings.HasPrefix(key, "trend:"):
		return TierL1
	default:
		return TierL2
	}
}
