package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ryakosh/brain-box/internal/note"
)

// ReplaceTopics swaps the cached topic tree for the list the server just
// returned. The cache is read-only reference data; nothing local ever
// survives a refresh.
func (s *Store) ReplaceTopics(ctx context.Context, topics []note.Topic) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM topics"); err != nil {
			return fmt.Errorf("failed to clear topic cache: %w", err)
		}
		for _, t := range topics {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("invalid topic %d: %w", t.ID, err)
			}
			var parent sql.NullInt64
			if t.ParentID != nil {
				parent = sql.NullInt64{Int64: *t.ParentID, Valid: true}
			}
			if _, err := tx.Exec(
				"INSERT INTO topics (id, name, parent_id, fetched_at) VALUES (?, ?, ?, ?)",
				t.ID, t.Name, parent, now); err != nil {
				return fmt.Errorf("failed to cache topic %d: %w", t.ID, err)
			}
		}
		return nil
	})
}

// GetTopic retrieves a cached topic by id.
func (s *Store) GetTopic(ctx context.Context, id int64) (*note.Topic, error) {
	var t note.Topic
	var parent sql.NullInt64
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, name, parent_id FROM topics WHERE id = ?", id).
		Scan(&t.ID, &t.Name, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTopic, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load topic: %w", err)
	}
	if parent.Valid {
		t.ParentID = &parent.Int64
	}
	return &t, nil
}

// ListTopics returns all cached topics ordered by parent then name, so
// siblings group together when rendering the tree.
func (s *Store) ListTopics(ctx context.Context) ([]note.Topic, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, name, parent_id FROM topics ORDER BY parent_id IS NOT NULL, parent_id, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []note.Topic
	for rows.Next() {
		var t note.Topic
		var parent sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Name, &parent); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		if parent.Valid {
			t.ParentID = &parent.Int64
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// TopicCount returns the number of cached topics.
func (s *Store) TopicCount(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM topics").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count topics: %w", err)
	}
	return n, nil
}
