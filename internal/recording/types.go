package recording

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/parleyhq/parley/internal/errors"
)

// Kind distinguishes audio-only from video+audio recordings.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAudio, KindVideo:
		return Kind(s), nil
	}
	return "", errors.NewInvalidRequest("kind must be one of: audio, video")
}

// Format is the container family the platform encoder negotiated at record
// time. Playback, share, and download all derive MIME type and file
// extension from this tag, never from the payload bytes.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
)

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatMP4, FormatWebM:
		return Format(s), nil
	}
	return "", errors.NewInvalidRequest("format must be one of: mp4, webm")
}

// MIMEType returns the media type for this format/kind pair.
func (f Format) MIMEType(kind Kind) string {
	switch f {
	case FormatMP4:
		if kind == KindVideo {
			return "video/mp4"
		}
		return "audio/mp4"
	default:
		if kind == KindVideo {
			return "video/webm"
		}
		return "audio/webm"
	}
}

// Ext returns the file extension (with dot) for this format/kind pair.
func (f Format) Ext(kind Kind) string {
	switch f {
	case FormatMP4:
		if kind == KindVideo {
			return ".mp4"
		}
		return ".m4a"
	default:
		return ".webm"
	}
}

// Recording is the logical entity materialized as a metadata + blob pair
// sharing one id. Recordings are immutable after creation.
type Recording struct {
	ID              string  `json:"id"`
	Topic           *string `json:"topic"`
	Kind            Kind    `json:"kind"`
	Format          Format  `json:"format"`
	DurationSeconds int     `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	CreatedAt       string  `json:"created_at"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID allocates a fresh recording id. ULIDs carry a millisecond timestamp
// prefix with monotonic entropy, so lexical order equals creation order and
// ids are globally unique.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
