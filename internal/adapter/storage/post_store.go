package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trendpulse/internal/domain/trend"
)

// PostStore is the corpus reader: read-only access to the posts the
// crawler has associated with each tracked keyword. Safe for
// concurrent use; reads reflect an eventually-consistent snapshot.
type PostStore struct {
	db *pgxpool.Pool
}

// NewPostStore creates a new post store.
func NewPostStore(db *pgxpool.Pool) *PostStore {
	return &PostStore{db: db}
}

// ListPosts returns all posts for a keyword, newest first.
func (s *PostStore) ListPosts(ctx context.Context, keywordID string) ([]trend.Post, error) {
	query := `
		SELECT id, keyword_id, title, body, score, comment_count, created_at
		FROM posts
		WHERE keyword_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(ctx, query, keywordID)
	if err != nil {
		return nil, fmt.Errorf("error querying posts: %w", err)
	}
	defer rows.Close()

	var posts []trend.Post
	for rows.Next() {
		var p trend.Post
		if err := rows.Scan(&p.ID, &p.KeywordID, &p.Title, &p.Body, &p.Score, &p.CommentCount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	return posts, nil
}

// KeywordExists reports whether a keyword id is known.
func (s *PostStore) KeywordExists(ctx context.Context, keywordID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM keywords WHERE id = $1)`,
		keywordID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking keyword: %w", err)
	}
	return exists, nil
}

// OwnerOf returns the id of the user tracking a keyword.
func (s *PostStore) OwnerOf(ctx context.Context, keywordID string) (string, error) {
	var userID string
	err := s.db.QueryRow(ctx,
		`SELECT user_id FROM keywords WHERE id = $1`,
		keywordID,
	).Scan(&userID)
	if err == pgx.ErrNoRows {
		return "", trend.ErrInvalidKeyword
	}
	if err != nil {
		return "", fmt.Errorf("error querying keyword owner: %w", err)
	}
	return userID, nil
}

// ActiveKeywords returns the ids of a user's active keywords.
func (s *PostStore) ActiveKeywords(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT id FROM keywords
		WHERE user_id = $1 AND active
		ORDER BY id
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying keywords: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning keyword id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keywords: %w", err)
	}

	return ids, nil
}
