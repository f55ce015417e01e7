package scoring

import (
	"math"
	"sort"
	"time"

	"trendpulse/internal/domain/trend"
)

// RankerConfig holds the importance blend weights. Tunable defaults,
// same posture as CalculatorConfig.
type RankerConfig struct {
	TFIDFWeight      float64
	EngagementWeight float64
	VelocityWeight   float64
}

// DefaultRankerConfig returns the tuned importance weights.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		TFIDFWeight:      0.4,
		EngagementWeight: 0.4,
		VelocityWeight:   0.2,
	}
}

// Ranker combines per-keyword metrics into a deterministic importance
// ranking. Pure projection over already-computed metrics; it never
// triggers recomputation itself.
type Ranker struct {
	cfg RankerConfig
}

// NewRanker creates a ranker with the given weights.
func NewRanker(cfg RankerConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// Importance is the weighted blend of lexical relevance, engagement,
// and momentum. Velocity is clamped to [-1,1] by dividing by 100 and
// contributes by magnitude: a sharp fall is as notable as a sharp rise.
func (r *Ranker) Importance(m trend.TrendMetrics) float64 {
	v := m.Velocity / 100
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return r.cfg.TFIDFWeight*m.TFIDFAggregate() +
		r.cfg.EngagementWeight*m.Engagement +
		r.cfg.VelocityWeight*math.Abs(v)
}

// Rank orders the given keywords by importance, descending, with ties
// broken by keyword id ascending so identical inputs always produce
// identical output. Keywords absent from metrics are reported in
// skipped rather than zero-filled.
func (r *Ranker) Rank(keywordIDs []string, metrics map[string]trend.TrendMetrics) (entries []trend.RankingEntry, skipped []string) {
	for _, id := range keywordIDs {
		m, ok := metrics[id]
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		entries = append(entries, trend.RankingEntry{
			KeywordID:     id,
			Importance:    r.Importance(m),
			PostCount:     m.PostCount,
			AvgEngagement: m.Engagement,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Importance != entries[j].Importance {
			return entries[i].Importance > entries[j].Importance
		}
		return entries[i].KeywordID < entries[j].KeywordID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	sort.Strings(skipped)
	return entries, skipped
}

// Compare projects the same metrics side-by-side for a set of
// keywords. RankDelta is the keyword's position relative to the middle
// of the compared set: negative means above the midpoint.
func (r *Ranker) Compare(keywordIDs []string, metrics map[string]trend.TrendMetrics) (rows []trend.ComparisonRow, skipped []string) {
	entries, skipped := r.Rank(keywordIDs, metrics)
	mid := (len(entries) + 1) / 2
	for _, e := range entries {
		m := metrics[e.KeywordID]
		rows = append(rows, trend.ComparisonRow{
			KeywordID:  e.KeywordID,
			Importance: e.Importance,
			Engagement: m.Engagement,
			Velocity:   m.Velocity,
			Sentiment:  m.Sentiment,
			Virality:   m.Virality,
			Direction:  m.Direction,
			Rank:       e.Rank,
			RankDelta:  e.Rank - mid,
		})
	}
	return rows, skipped
}

// Summarize aggregates a user's keyword metrics into dashboard-level
// statistics on top of the ranking.
func (r *Ranker) Summarize(userID string, keywordIDs []string, metrics map[string]trend.TrendMetrics) trend.Summary {
	entries, skipped := r.Rank(keywordIDs, metrics)

	s := trend.Summary{
		UserID:          userID,
		KeywordCount:    len(entries),
		DirectionCounts: make(map[string]int),
		Ranking:         entries,
		SkippedKeywords: skipped,
		GeneratedAt:     time.Now(),
	}
	if len(entries) == 0 {
		return s
	}

	var engagement, confidence float64
	for _, e := range entries {
		m := metrics[e.KeywordID]
		s.TotalPosts += m.PostCount
		engagement += m.Engagement
		confidence += m.Confidence
		s.DirectionCounts[string(m.Direction)]++
	}
	s.AvgEngagement = engagement / float64(len(entries))
	s.AvgConfidence = confidence / float64(len(entries))
	s.TopKeywordID = entries[0].KeywordID
	return s
}
