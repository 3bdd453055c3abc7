package recording

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/internal/errors"
	"github.com/parleyhq/parley/internal/store"
)

// Store is the persistence surface the Repository writes through.
// *store.Store satisfies it; tests wrap it to inject write failures.
type Store interface {
	PutBlob(ctx context.Context, id, mediaType string, payload []byte) error
	GetBlob(ctx context.Context, id string) (store.Blob, bool, error)
	DeleteBlob(ctx context.Context, id string) error
	PutMetadata(ctx context.Context, m store.Metadata) error
	GetMetadata(ctx context.Context, id string) (store.Metadata, bool, error)
	DeleteMetadata(ctx context.Context, id string) error
	ListMetadata(ctx context.Context, limit, offset int) ([]store.Metadata, error)
	CountMetadata(ctx context.Context) (int, error)
	SumDurationSeconds(ctx context.Context) (int, error)
}

// Repository presents the Recording entity as one atomic unit over the blob
// and metadata collections. It is the sole writer of both; readers elsewhere
// go through it.
type Repository struct {
	store Store
	log   *logrus.Logger
}

// NewRepository creates a Repository over an opened store.
func NewRepository(s Store, log *logrus.Logger) *Repository {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Repository{store: s, log: log}
}

// AddInput contains parameters for Add. The payload and negotiated format
// come from the capture controller's finalize result; the topic comes from
// the caller's own state.
type AddInput struct {
	Kind            Kind
	Format          Format
	Topic           *string
	DurationSeconds int
	Payload         []byte
}

// Add allocates a time-ordered id and persists the blob, then the metadata.
// The write order is strict: if the blob write fails, no metadata is
// written, so a Recording can never be listed without its payload. If the
// metadata write fails after the blob landed, the orphaned blob is reclaimed
// best-effort and the add reports failure either way.
func (r *Repository) Add(ctx context.Context, input AddInput) (*Recording, error) {
	if _, err := ParseKind(string(input.Kind)); err != nil {
		return nil, err
	}
	if _, err := ParseFormat(string(input.Format)); err != nil {
		return nil, err
	}
	if len(input.Payload) == 0 {
		return nil, errors.NewInvalidRequest("payload must not be empty")
	}
	if input.DurationSeconds < 0 {
		return nil, errors.NewInvalidRequest("duration_seconds must not be negative")
	}
	if input.Topic != nil && strings.TrimSpace(*input.Topic) == "" {
		input.Topic = nil
	}

	rec := &Recording{
		ID:              NewID(),
		Topic:           input.Topic,
		Kind:            input.Kind,
		Format:          input.Format,
		DurationSeconds: input.DurationSeconds,
		SizeBytes:       int64(len(input.Payload)),
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	}

	mediaType := rec.Format.MIMEType(rec.Kind)
	if err := r.store.PutBlob(ctx, rec.ID, mediaType, input.Payload); err != nil {
		return nil, err
	}

	meta := store.Metadata{
		ID:              rec.ID,
		Topic:           rec.Topic,
		Kind:            string(rec.Kind),
		Format:          string(rec.Format),
		DurationSeconds: rec.DurationSeconds,
		SizeBytes:       rec.SizeBytes,
		CreatedAt:       rec.CreatedAt,
	}
	if err := r.store.PutMetadata(ctx, meta); err != nil {
		// Reclaim the orphaned blob; if this fails too it is storage
		// garbage, not a correctness problem, since nothing lists it.
		if delErr := r.store.DeleteBlob(ctx, rec.ID); delErr != nil {
			r.log.WithField("id", rec.ID).WithError(delErr).Warn("failed to reclaim orphaned blob")
		}
		return nil, err
	}

	return rec, nil
}

// Get returns one recording's metadata.
func (r *Repository) Get(ctx context.Context, id string) (*Recording, error) {
	meta, found, err := r.store.GetMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NewNotFound(id)
	}
	rec := fromMetadata(meta)
	return &rec, nil
}

// List returns recordings newest-first. limit <= 0 returns everything.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Recording, error) {
	items, err := r.store.ListMetadata(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	recs := make([]Recording, 0, len(items))
	for _, m := range items {
		recs = append(recs, fromMetadata(m))
	}
	return recs, nil
}

// Remove deletes the blob, then the metadata. Removing an absent id
// succeeds. A partial failure never resurrects the entity: failures are
// logged and the caller proceeds to treat the recording as gone.
func (r *Repository) Remove(ctx context.Context, id string) error {
	if id == "" {
		return errors.NewInvalidRequest("id must not be empty")
	}

	if err := r.store.DeleteBlob(ctx, id); err != nil {
		r.log.WithField("id", id).WithError(err).Warn("blob delete failed during remove")
	}
	if err := r.store.DeleteMetadata(ctx, id); err != nil {
		r.log.WithField("id", id).WithError(err).Warn("metadata delete failed during remove")
	}
	return nil
}

// Payload returns the stored binary payload and its media type.
// found=false after a concurrent delete is normal, not an error.
func (r *Repository) Payload(ctx context.Context, id string) (data []byte, mediaType string, found bool, err error) {
	blob, found, err := r.store.GetBlob(ctx, id)
	if err != nil || !found {
		return nil, "", found, err
	}
	return blob.Payload, blob.MediaType, true, nil
}

// PlaybackFile materializes the blob into a temp file with the correct
// extension and returns its path, the Go analog of a transient object URL.
// The caller owns the release func and must call it when the file is no
// longer displayed.
func (r *Repository) PlaybackFile(ctx context.Context, id string) (path string, release func(), err error) {
	meta, found, err := r.store.GetMetadata(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if !found {
		return "", nil, errors.NewNotFound(id)
	}
	blob, found, err := r.store.GetBlob(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if !found {
		return "", nil, errors.NewNotFound(id)
	}

	ext := Format(meta.Format).Ext(Kind(meta.Kind))
	f, err := os.CreateTemp("", "parley-*"+ext)
	if err != nil {
		return "", nil, errors.NewInternal(err)
	}
	if _, err := f.Write(blob.Payload); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, errors.NewInternal(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, errors.NewInternal(err)
	}

	name := f.Name()
	return name, func() { _ = os.Remove(name) }, nil
}

// Stats aggregates practice totals across all recordings.
type Stats struct {
	Recordings         int `json:"recordings"`
	TotalSpokenSeconds int `json:"total_spoken_seconds"`
}

// PracticeStats returns aggregate practice totals.
func (r *Repository) PracticeStats(ctx context.Context) (*Stats, error) {
	n, err := r.store.CountMetadata(ctx)
	if err != nil {
		return nil, err
	}
	total, err := r.store.SumDurationSeconds(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Recordings: n, TotalSpokenSeconds: total}, nil
}

func fromMetadata(m store.Metadata) Recording {
	return Recording{
		ID:              m.ID,
		Topic:           m.Topic,
		Kind:            Kind(m.Kind),
		Format:          Format(m.Format),
		DurationSeconds: m.DurationSeconds,
		SizeBytes:       m.SizeBytes,
		CreatedAt:       m.CreatedAt,
	}
}
