package capture

import (
	"context"
	"io"

	"github.com/parleyhq/parley/internal/recording"
)

// DeviceHints narrows device selection when opening a media source.
// Empty fields mean platform defaults.
type DeviceHints struct {
	AudioDevice string
	VideoDevice string
}

// OpenRequest describes one capture session to a MediaSource.
type OpenRequest struct {
	Kind      recording.Kind
	EncoderID string
	Hints     DeviceHints
}

// MediaSession is one live encoder session. Read delivers encoded container
// bytes incrementally, in temporal order, from a single source. Read returns
// io.EOF once the device stops delivering, whether because Stop was called
// or because the device went away.
type MediaSession interface {
	io.Reader
	Stop() error
}

// Pauser is optionally implemented by sessions whose encoder can suspend
// emission at the source. Sessions without it have their chunks dropped by
// the controller while paused.
type Pauser interface {
	Pause() error
	Resume() error
}

// TrackSwapper is optionally implemented by video sessions that can swap the
// active video source without restarting the encoder.
type TrackSwapper interface {
	SwapVideoTrack(device string) error
}

// MediaSource creates live capture sessions. Open fails synchronously on
// permission denial, missing devices, or encoder construction failure.
type MediaSource interface {
	Open(ctx context.Context, req OpenRequest) (MediaSession, error)
}

// EncoderProbe answers whether the platform can produce a given encoder.
type EncoderProbe interface {
	Supports(encoderID string) bool
}

// EventSink receives controller lifecycle events. Implementations must not
// block. A nil sink is allowed.
type EventSink interface {
	StateChanged(state State)
	Completed(res *Result)
}

type noopSink struct{}

func (noopSink) StateChanged(State) {}
func (noopSink) Completed(*Result) {}
