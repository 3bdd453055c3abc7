package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/parleyhq/parley/internal/errors"
)

// Metadata is one recording's structured record as persisted.
type Metadata struct {
	ID              string
	Topic           *string
	Kind            string
	Format          string
	DurationSeconds int
	SizeBytes       int64
	CreatedAt       string
}

// PutMetadata stores a metadata record, overwriting any existing record
// with the same id.
func (s *Store) PutMetadata(ctx context.Context, m Metadata) error {
	if m.ID == "" {
		return errors.NewInvalidRequest("metadata id must not be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (id, topic, kind, format, duration_seconds, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  topic = excluded.topic,
		  kind = excluded.kind,
		  format = excluded.format,
		  duration_seconds = excluded.duration_seconds,
		  size_bytes = excluded.size_bytes,
		  created_at = excluded.created_at
	`, m.ID, m.Topic, m.Kind, m.Format, m.DurationSeconds, m.SizeBytes, m.CreatedAt)
	if err != nil {
		return errors.NewStorage("put_metadata", err)
	}
	return nil
}

// GetMetadata returns the record stored under id, or found=false.
func (s *Store) GetMetadata(ctx context.Context, id string) (m Metadata, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, topic, kind, format, duration_seconds, size_bytes, created_at
		FROM recordings WHERE id = ?
	`, id)

	if err := row.Scan(&m.ID, &m.Topic, &m.Kind, &m.Format, &m.DurationSeconds, &m.SizeBytes, &m.CreatedAt); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, errors.NewStorage("get_metadata", err)
	}
	return m, true, nil
}

// DeleteMetadata removes the record stored under id. Absent is not an error.
func (s *Store) DeleteMetadata(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id); err != nil {
		return errors.NewStorage("delete_metadata", err)
	}
	return nil
}

// ListMetadata returns records newest-first straight from the created_at
// index; the caller never sorts. ULID ids share creation order with
// created_at, so id breaks timestamp ties deterministically.
// limit < 0 returns everything.
func (s *Store) ListMetadata(ctx context.Context, limit, offset int) ([]Metadata, error) {
	if limit == 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, kind, format, duration_seconds, size_bytes, created_at
		FROM recordings
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, errors.NewStorage("list_metadata", err)
	}
	defer rows.Close()

	var items []Metadata
	for rows.Next() {
		var m Metadata
		if err := rows.Scan(&m.ID, &m.Topic, &m.Kind, &m.Format, &m.DurationSeconds, &m.SizeBytes, &m.CreatedAt); err != nil {
			return nil, errors.NewStorage("list_metadata", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("list_metadata", err)
	}
	return items, nil
}

// CountMetadata returns the number of stored records.
func (s *Store) CountMetadata(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings`).Scan(&n); err != nil {
		return 0, errors.NewStorage("count_metadata", err)
	}
	return n, nil
}

// SumDurationSeconds returns total spoken seconds across all recordings.
func (s *Store) SumDurationSeconds(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(duration_seconds), 0) FROM recordings`).Scan(&n); err != nil {
		return 0, errors.NewStorage("sum_duration", err)
	}
	return n, nil
}
