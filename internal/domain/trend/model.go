package trend

import (
	"time"
)

// Post is a single social-media post associated with a tracked keyword.
// Posts are read-only inputs owned by the corpus reader; the engine
// never mutates them.
type Post struct {
	ID           string    `json:"id"`
	KeywordID    string    `json:"keyword_id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Score        int       `json:"score"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// TermScore is a single TF-IDF term with its normalized weight.
type TermScore struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// Direction classifies the movement of a keyword's engagement.
type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionFalling Direction = "falling"
	DirectionStable  Direction = "stable"
)

// Velocity thresholds for direction classification, in the same
// percentage units as TrendMetrics.Velocity.
const (
	RisingThreshold  = 5.0
	FallingThreshold = -5.0
)

// DirectionForVelocity maps a trend velocity to a direction. The
// mapping is pure and total: every velocity yields exactly one
// direction.
func DirectionForVelocity(velocity float64) Direction {
	switch {
	case velocity > RisingThreshold:
		return DirectionRising
	case velocity < FallingThreshold:
		return DirectionFalling
	default:
		return DirectionStable
	}
}

// TrendMetrics is the computed per-keyword trend snapshot.
type TrendMetrics struct {
	KeywordID    string      `json:"keyword_id"`
	TopTerms     []TermScore `json:"tfidf_top_terms"`
	Engagement   float64     `json:"engagement_score"`
	Velocity     float64     `json:"trend_velocity"`
	Sentiment    float64     `json:"sentiment_score"`
	Virality     float64     `json:"virality_score"`
	Direction    Direction   `json:"trend_direction"`
	Confidence   float64     `json:"confidence"`
	PostCount    int         `json:"post_count"`
	CalculatedAt time.Time   `json:"calculated_at"`
}

// TFIDFAggregate is the mean score of the top-5 TF-IDF terms, used as
// the lexical component of the importance blend.
func (m TrendMetrics) TFIDFAggregate() float64 {
	n := len(m.TopTerms)
	if n == 0 {
		return 0
	}
	if n > 5 {
		n = 5
	}
	var sum float64
	for _, ts := range m.TopTerms[:n] {
		sum += ts.Score
	}
	return sum / float64(n)
}

// RankingEntry is one row of a user's keyword importance ranking.
// Rank positions are 1-based; ties are broken by keyword id ascending.
type RankingEntry struct {
	KeywordID     string  `json:"keyword_id"`
	Importance    float64 `json:"importance_score"`
	PostCount     int     `json:"post_count"`
	AvgEngagement float64 `json:"avg_engagement"`
	Rank          int     `json:"rank"`
}

// ComparisonRow exposes one keyword's metrics side-by-side with its
// relative rank within the compared set.
type ComparisonRow struct {
	KeywordID  string    `json:"keyword_id"`
	Importance float64   `json:"importance_score"`
	Engagement float64   `json:"engagement_score"`
	Velocity   float64   `json:"trend_velocity"`
	Sentiment  float64   `json:"sentiment_score"`
	Virality   float64   `json:"virality_score"`
	Direction  Direction `json:"trend_direction"`
	Rank       int       `json:"rank"`
	RankDelta  int       `json:"rank_delta"`
}

// Summary aggregates a user's keyword metrics for dashboard overviews.
type Summary struct {
	UserID          string         `json:"user_id"`
	KeywordCount    int            `json:"keyword_count"`
	TotalPosts      int            `json:"total_posts"`
	AvgEngagement   float64        `json:"avg_engagement"`
	AvgConfidence   float64        `json:"avg_confidence"`
	DirectionCounts map[string]int `json:"direction_counts"`
	TopKeywordID    string         `json:"top_keyword_id"`
	Ranking         []RankingEntry `json:"ranking"`
	SkippedKeywords []string       `json:"skipped_keywords,omitempty"`
	GeneratedAt     time.Time      `json:"generated_at"`
}
