package capture

import (
	"context"
	stderrors "errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleyhq/parley/internal/errors"
	"github.com/parleyhq/parley/internal/recording"
)

// State models the capture lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

// Result is the finalized capture payload handed to the repository.
// DurationSeconds counts wall-clock time spent recording only; paused
// intervals are excluded.
type Result struct {
	Payload         []byte
	Kind            recording.Kind
	Format          recording.Format
	DurationSeconds int
}

// Config controls capture behavior.
type Config struct {
	// ChunkSize is the read increment for buffering encoder output.
	// Values under 256 fall back to 32 KiB.
	ChunkSize int
}

// Controller wraps live media capture in a state machine. One controller
// owns at most one session at a time; the device handle is exclusively its
// for the session's lifetime.
type Controller struct {
	source MediaSource
	probe  EncoderProbe
	events EventSink
	log    *logrus.Logger
	cfg    Config
	clock  func() time.Time

	mu         sync.Mutex
	state      State
	session    *captureSession
	result     *Result
	negotiated map[recording.Kind]candidate
}

type captureSession struct {
	media     MediaSession
	cancel    context.CancelFunc
	kind      recording.Kind
	format    recording.Format
	encoderID string

	// Guarded by Controller.mu.
	chunks        [][]byte
	elapsed       time.Duration
	resumedAt     time.Time
	paused        bool
	frozen        bool
	stopRequested bool

	pumpDone chan struct{}
}

// NewController creates an idle controller. events may be nil.
func NewController(source MediaSource, probe EncoderProbe, events EventSink, log *logrus.Logger, cfg Config) *Controller {
	if events == nil {
		events = noopSink{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 32 << 10
	}
	return &Controller{
		source:     source,
		probe:      probe,
		events:     events,
		log:        log,
		cfg:        cfg,
		clock:      time.Now,
		state:      StateIdle,
		negotiated: make(map[recording.Kind]candidate),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the finalized payload after a stop. It stays addressable
// until Reset, so a failed save can be retried without re-recording.
func (c *Controller) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Start begins capture for kind. It fails synchronously, leaving the
// controller idle, when no encoder is negotiable or the device cannot be
// opened. The negotiated format is fixed for the session and stable across
// repeated starts on the same platform.
func (c *Controller) Start(ctx context.Context, kind recording.Kind, hints DeviceHints) error {
	if _, err := recording.ParseKind(string(kind)); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return errors.NewConflict("capture session already active")
	}
	cand, seen := c.negotiated[kind]
	c.mu.Unlock()

	if !seen {
		var err error
		cand, err = negotiate(c.probe, kind)
		if err != nil {
			return err
		}
	}

	sessCtx, cancel := context.WithCancel(ctx)
	media, err := c.source.Open(sessCtx, OpenRequest{Kind: kind, EncoderID: cand.EncoderID, Hints: hints})
	if err != nil {
		cancel()
		var pErr *errors.ParleyError
		if stderrors.As(err, &pErr) {
			return err
		}
		return errors.NewDeviceAccess("failed to open capture device: "+err.Error(), err)
	}

	sess := &captureSession{
		media:     media,
		cancel:    cancel,
		kind:      kind,
		format:    cand.Format,
		encoderID: cand.EncoderID,
		resumedAt: c.clock(),
		pumpDone:  make(chan struct{}),
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		cancel()
		_ = media.Stop()
		return errors.NewConflict("capture session already active")
	}
	c.negotiated[kind] = cand
	c.session = sess
	c.result = nil
	c.state = StateRecording
	c.mu.Unlock()

	go c.pump(sess)
	c.events.StateChanged(StateRecording)
	return nil
}

// Pause freezes the elapsed clock and suspends chunk accumulation.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return errors.NewConflict("can only pause while recording")
	}
	sess := c.session
	sess.elapsed += c.clock().Sub(sess.resumedAt)
	sess.paused = true
	c.state = StatePaused
	media := sess.media
	c.mu.Unlock()

	if p, ok := media.(Pauser); ok {
		if err := p.Pause(); err != nil {
			c.log.WithError(err).Warn("encoder pause failed; chunks will be dropped instead")
		}
	}
	c.events.StateChanged(StatePaused)
	return nil
}

// Resume restarts the elapsed clock from its frozen value.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused {
		c.mu.Unlock()
		return errors.NewConflict("can only resume while paused")
	}
	sess := c.session
	sess.resumedAt = c.clock()
	sess.paused = false
	c.state = StateRecording
	media := sess.media
	c.mu.Unlock()

	if p, ok := media.(Pauser); ok {
		if err := p.Resume(); err != nil {
			c.log.WithError(err).Warn("encoder resume failed")
		}
	}
	c.events.StateChanged(StateRecording)
	return nil
}

// Stop finalizes the session: the elapsed value is captured before device
// teardown, the device is released, and all buffered chunks are assembled
// into one contiguous payload. A session the stall path already finalized
// counts as stopped; calling Stop then returns the existing Result so the
// take is not lost when the device dies before the user stops.
func (c *Controller) Stop() (*Result, error) {
	c.mu.Lock()
	if c.state == StateStopped && c.result != nil {
		res := c.result
		c.mu.Unlock()
		return res, nil
	}
	if c.state != StateRecording && c.state != StatePaused {
		c.mu.Unlock()
		return nil, errors.NewConflict("no active capture to stop")
	}
	sess := c.session
	c.freezeClockLocked(sess)
	sess.stopRequested = true
	c.mu.Unlock()

	if err := sess.media.Stop(); err != nil {
		c.log.WithError(err).Warn("media source did not stop cleanly")
	}
	<-sess.pumpDone
	sess.cancel()

	c.mu.Lock()
	if c.result == nil {
		c.result = c.assembleLocked(sess)
	}
	c.state = StateStopped
	res := c.result
	c.mu.Unlock()

	c.events.StateChanged(StateStopped)
	c.events.Completed(res)
	return res, nil
}

// Reset releases the finalized payload and returns to idle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return errors.NewConflict("can only reset a stopped session")
	}
	c.session = nil
	c.result = nil
	c.state = StateIdle
	c.mu.Unlock()

	c.events.StateChanged(StateIdle)
	return nil
}

// Close forcibly releases all device handles from any state and emits no
// further events. It is a safety net for consumer teardown, independent of
// the normal transitions, and is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	sess := c.session
	if sess != nil {
		sess.stopRequested = true
	}
	c.session = nil
	c.result = nil
	c.state = StateIdle
	c.mu.Unlock()

	if sess != nil {
		sess.cancel()
		_ = sess.media.Stop()
		<-sess.pumpDone
	}
}

// SwapVideoTrack hot-swaps the active video source on a live session when
// the platform supports it. Buffered audio chunks and the elapsed clock are
// untouched.
func (c *Controller) SwapVideoTrack(device string) error {
	c.mu.Lock()
	if c.state != StateRecording && c.state != StatePaused {
		c.mu.Unlock()
		return errors.NewConflict("no active capture session")
	}
	sess := c.session
	c.mu.Unlock()

	if sess.kind != recording.KindVideo {
		return errors.NewInvalidRequest("track swap requires a video session")
	}
	swapper, ok := sess.media.(TrackSwapper)
	if !ok {
		return errors.NewInvalidRequest("this platform cannot swap tracks mid-session")
	}
	return swapper.SwapVideoTrack(device)
}

// pump buffers encoder increments in acquisition order. Increments always
// arrive in temporal order from a single source, so finalize-time assembly
// is a single concatenation with no reordering.
func (c *Controller) pump(sess *captureSession) {
	defer close(sess.pumpDone)

	buf := make([]byte, c.cfg.ChunkSize)
	for {
		n, err := sess.media.Read(buf)
		if n > 0 {
			c.mu.Lock()
			if !sess.paused {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				sess.chunks = append(sess.chunks, chunk)
			}
			c.mu.Unlock()
		}
		if err != nil {
			if !stderrors.Is(err, io.EOF) {
				c.log.WithError(err).Warn("capture read error")
			}
			break
		}
	}

	// The source stopped delivering without a stop request: a stall
	// (unplugged device, dead encoder). Treat it as the user pressing
	// stop and finalize whatever was buffered rather than losing it.
	c.mu.Lock()
	if !sess.stopRequested && (c.state == StateRecording || c.state == StatePaused) {
		c.freezeClockLocked(sess)
		c.result = c.assembleLocked(sess)
		c.state = StateStopped
		res := c.result
		c.mu.Unlock()

		c.log.Warn("media source stalled; finalized buffered capture")
		c.events.StateChanged(StateStopped)
		c.events.Completed(res)
		return
	}
	c.mu.Unlock()
}

// freezeClockLocked captures the final elapsed value exactly once.
func (c *Controller) freezeClockLocked(sess *captureSession) {
	if sess.frozen {
		return
	}
	if !sess.paused {
		sess.elapsed += c.clock().Sub(sess.resumedAt)
	}
	sess.frozen = true
}

func (c *Controller) assembleLocked(sess *captureSession) *Result {
	total := 0
	for _, chunk := range sess.chunks {
		total += len(chunk)
	}
	payload := make([]byte, 0, total)
	for _, chunk := range sess.chunks {
		payload = append(payload, chunk...)
	}
	return &Result{
		Payload:         payload,
		Kind:            sess.kind,
		Format:          sess.format,
		DurationSeconds: int(math.Round(sess.elapsed.Seconds())),
	}
}
