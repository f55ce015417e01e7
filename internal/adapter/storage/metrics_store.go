package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trendpulse/internal/domain/trend"
)

// MetricsStore persists computed trend snapshots so a cold cache does
// not imply zero history. The cache is always consulted first; this is
// the second tier of the read path.
type MetricsStore struct {
	db *pgxpool.Pool
}

// NewMetricsStore creates a new metrics store.
func NewMetricsStore(db *pgxpool.Pool) *MetricsStore {
	return &MetricsStore{db: db}
}

// SaveMetrics upserts the latest snapshot for a keyword.
func (s *MetricsStore) SaveMetrics(ctx context.Context, m trend.TrendMetrics) error {
	query := `
		INSERT INTO trend_metrics (
			keyword_id, top_terms, engagement_score, trend_velocity,
			sentiment_score, virality_score, trend_direction,
			confidence, post_count, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (keyword_id) DO UPDATE
		SET
			top_terms = $2,
			engagement_score = $3,
			trend_velocity = $4,
			sentiment_score = $5,
			virality_score = $6,
			trend_direction = $7,
			confidence = $8,
			post_count = $9,
			calculated_at = $10
	`

	topTermsJSON, err := json.Marshal(m.TopTerms)
	if err != nil {
		return fmt.Errorf("error marshaling top terms: %w", err)
	}

	_, err = s.db.Exec(
		ctx,
		query,
		m.KeywordID,
		topTermsJSON,
		m.Engagement,
		m.Velocity,
		m.Sentiment,
		m.Virality,
		string(m.Direction),
		m.Confidence,
		m.PostCount,
		m.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("error executing query: %w", err)
	}

	return nil
}

// LoadLatest returns the last persisted snapshot for a keyword, or nil
// when none exists.
func (s *MetricsStore) LoadLatest(ctx context.Context, keywordID string) (*trend.TrendMetrics, error) {
	query := `
		SELECT keyword_id, top_terms, engagement_score, trend_velocity,
			sentiment_score, virality_score, trend_direction,
			confidence, post_count, calculated_at
		FROM trend_metrics
		WHERE keyword_id = $1
	`

	var (
		m            trend.TrendMetrics
		topTermsJSON []byte
		direction    string
	)
	err := s.db.QueryRow(ctx, query, keywordID).Scan(
		&m.KeywordID,
		&topTermsJSON,
		&m.Engagement,
		&m.Velocity,
		&m.Sentiment,
		&m.Virality,
		&direction,
		&m.Confidence,
		&m.PostCount,
		&m.CalculatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying metrics: %w", err)
	}

	if err := json.Unmarshal(topTermsJSON, &m.TopTerms); err != nil {
		return nil, fmt.Errorf("error unmarshaling top terms: %w", err)
	}
	m.Direction = trend.Direction(direction)

	return &m, nil
}
