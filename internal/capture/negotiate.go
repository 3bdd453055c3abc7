package capture

import (
	"github.com/parleyhq/parley/internal/errors"
	"github.com/parleyhq/parley/internal/recording"
)

// candidate pairs an encoder identifier with the container family it
// produces. Candidates are queried in order; first supported wins, and the
// chosen pair is carried explicitly from then on (never re-derived from
// file contents).
type candidate struct {
	EncoderID string
	Format    recording.Format
}

// The MP4 family leads both lists for broadest compatibility with the major
// mobile platform that cannot play WebM; WebM is the fallback elsewhere.
var (
	audioCandidates = []candidate{
		{EncoderID: "aac", Format: recording.FormatMP4},
		{EncoderID: "libopus", Format: recording.FormatWebM},
	}
	videoCandidates = []candidate{
		{EncoderID: "libx264", Format: recording.FormatMP4},
		{EncoderID: "libvpx", Format: recording.FormatWebM},
	}
)

// negotiate picks the first candidate the probe supports for kind.
// The answer is deterministic for a given probe, so repeated negotiation on
// one platform always lands on the same pair.
func negotiate(probe EncoderProbe, kind recording.Kind) (candidate, error) {
	candidates := audioCandidates
	if kind == recording.KindVideo {
		candidates = videoCandidates
	}
	for _, c := range candidates {
		if probe.Supports(c.EncoderID) {
			return c, nil
		}
	}
	return candidate{}, errors.NewEncodingUnavailable(string(kind))
}
