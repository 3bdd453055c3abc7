package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/parleyhq/parley/internal/errors"
)

// Blob is a stored binary payload with its media-type tag. The tag is
// recorded at write time from what the encoder reported; it is never
// re-derived from the payload bytes.
type Blob struct {
	ID        string
	MediaType string
	Payload   []byte
}

// PutBlob stores payload under id, overwriting any existing payload
// (idempotent by id).
//
// The payload is copied into a stable buffer before any statement runs.
// The write must never depend on a caller-owned buffer staying untouched
// while the transaction is in flight; all byte materialization happens
// up front, outside the transactional window.
func (s *Store) PutBlob(ctx context.Context, id, mediaType string, payload []byte) error {
	if id == "" {
		return errors.NewInvalidRequest("blob id must not be empty")
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (id, media_type, payload) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET media_type = excluded.media_type, payload = excluded.payload
	`, id, mediaType, buf)
	if err != nil {
		return errors.NewStorage("put_blob", err)
	}
	return nil
}

// GetBlob returns the payload stored under id, reconstructing the typed
// binary object with its original media-type tag. found is false when no
// blob exists for id; that is not an error (a concurrent delete is normal).
func (s *Store) GetBlob(ctx context.Context, id string) (blob Blob, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, media_type, payload FROM blobs WHERE id = ?
	`, id)

	if err := row.Scan(&blob.ID, &blob.MediaType, &blob.Payload); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return Blob{}, false, nil
		}
		return Blob{}, false, errors.NewStorage("get_blob", err)
	}
	return blob, true, nil
}

// DeleteBlob removes the payload stored under id. Deleting an absent blob
// succeeds (idempotent delete).
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id); err != nil {
		return errors.NewStorage("delete_blob", err)
	}
	return nil
}
