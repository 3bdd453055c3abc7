package capture

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/parleyhq/parley/internal/errors"
	"github.com/parleyhq/parley/internal/logging"
	"github.com/parleyhq/parley/internal/recording"
)

type fakeProbe struct {
	supported map[string]bool
}

func (p *fakeProbe) Supports(id string) bool { return p.supported[id] }

func allEncoders() *fakeProbe {
	return &fakeProbe{supported: map[string]bool{
		"aac": true, "libopus": true, "libx264": true, "libvpx": true,
	}}
}

type fakeSession struct {
	ch       chan []byte
	pending  []byte
	stopOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{ch: make(chan []byte)}
}

// Emit blocks until the controller's pump has read the chunk.
func (s *fakeSession) Emit(chunk []byte) { s.ch <- chunk }

func (s *fakeSession) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		chunk, ok := <-s.ch
		if !ok {
			return 0, io.EOF
		}
		s.pending = chunk
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *fakeSession) Stop() error {
	s.stopOnce.Do(func() { close(s.ch) })
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	sessions []MediaSession
	openErr  error
	requests []OpenRequest
}

func (f *fakeSource) Open(_ context.Context, req OpenRequest) (MediaSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.openErr != nil {
		return nil, f.openErr
	}
	if len(f.sessions) == 0 {
		sess := newFakeSession()
		return sess, nil
	}
	sess := f.sessions[0]
	f.sessions = f.sessions[1:]
	return sess, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSink struct {
	mu     sync.Mutex
	states []State
}

func (s *fakeSink) StateChanged(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *fakeSink) Completed(*Result) {}

func (s *fakeSink) snapshot() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.states...)
}

func newTestController(source MediaSource, probe EncoderProbe, sink EventSink) (*Controller, *fakeClock) {
	c := NewController(source, probe, sink, logging.Discard(), Config{ChunkSize: 512})
	clock := newFakeClock()
	c.clock = clock.Now
	return c, clock
}

func TestStartStop_AssemblesChunksInOrder(t *testing.T) {
	sess := newFakeSession()
	source := &fakeSource{sessions: []MediaSession{sess}}
	sink := &fakeSink{}
	c, clock := newTestController(source, allEncoders(), sink)

	if err := c.Start(context.Background(), recording.KindAudio, DeviceHints{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c.State() != StateRecording {
		t.Fatalf("state = %s, want recording", c.State())
	}

	sess.Emit([]byte("abc"))
	sess.Emit([]byte("def"))
	clock.Advance(3 * time.Second)

	res, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if string(res.Payload) != "abcdef" {
		t.Errorf("payload = %q, want abcdef", res.Payload)
	}
	if res.DurationSeconds != 3 {
		t.Errorf("DurationSeconds = %d, want 3", res.DurationSeconds)
	}
	if res.Format != recording.FormatMP4 {
		t.Errorf("Format = %s, want mp4", res.Format)
	}
	if res.Kind != recording.KindAudio {
		t.Errorf("Kind = %s, want audio", res.Kind)
	}
	if c.State() != StateStopped {
		t.Errorf("state = %s, want stopped", c.State())
	}

	// The payload stays addressable until reset.
	if c.Result() != res {
		t.Error("Result() does not return the finalized payload")
	}

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle after reset", c.State())
	}
	if c.Result() != nil {
		t.Error("Result() non-nil after reset")
	}

	states := sink.snapshot()
	want := []State{StateRecording, StateStopped, StateIdle}
	if len(states) != len(want) {
		t.Fatalf("state events = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestElapsedExcludesPausedIntervals(t *testing.T) {
	sess := newFakeSession()
	source := &fakeSource{sessions: []MediaSession{sess}}
	c, clock := newTestController(source, allEncoders(), nil)

	if err := c.Start(context.Background(), recording.KindAudio, DeviceHints{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	clock.Advance(3 * time.Second)
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if c.State() != StatePaused {
		t.Fatalf("state = %s, want paused", c.State())
	}

	clock.Advance(5 * time.Second)
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	clock.Advance(2 * time.Second)
	res, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if res.DurationSeconds != 5 {
		t.Errorf("DurationSeconds = %d, want 5 (3s + 2s recording, 5s paused)", res.DurationSeconds)
	}
}

func TestLongRecordingWithTwoPauses(t *testing.T) {
	sess := newFakeSession()
	source := &fakeSource{sessions: []MediaSession{sess}}
	c, clock := newTestController(source, allEncoders(), nil)

	if err := c.Start(context.Background(), recording.KindAudio, DeviceHints{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 40 minutes of wall clock with 5 minutes paused in two stretches.
	clock.Advance(10 * time.Minute)
	_ = c.Pause()
	clock.Advance(2 * time.Minute)
	_ = c.Resume()
	clock.Advance(20 * time.Minute)
	_ = c.Pause()
	clock.Advance(3 * time.Minute)
	_ = c.Resume()
	clock.Advance(5 * time.Minute)

	res, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if res.DurationSeconds != 35*60 {
		t.Errorf("DurationSeconds = %d, want %d", res.DurationSeconds, 35*60)
	}
}

func TestChunksDroppedWhilePaused(t *testing.T) {
	sess := newFakeSession()
	source := &fakeSource{sessions: []MediaSession{sess}}
	c, _ := newTestController(source, allEncoders(), nil)

	if err := c.Start(context.Background(), recording.KindAudio, DeviceHints{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sess.Emit([]byte("a"))
	time.Sleep(20 * time.Millisecond)
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	sess.Emit([]byte("b"))
	time.Sleep(20 * time.Millisecond)
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	sess.Emit([]byte("c"))
	time.Sleep(20 * time.Millisecond)

	res, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if string(res.Payload) != "ac" {
		t.Errorf("payload = %q, want ac (paused chunk dropped)", res.Payload)
	}
}

func TestSourceStallFinalizesBufferedCapture(t *testing.T) {
	sess := newFakeSession()
	source := &fakeSource{sessions: []MediaSession{sess}}
	c, clock := newTestController(source, allEncoders(), nil)

	if err := c.Start(context.Background(), recording.KindAudio, DeviceHints{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sess.Emit([]byte("partial"))
	clock.Advance(7 * time.Second)

	// Device disappears: the source stops delivering without a stop call.
	_ = sess.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateStopped {
		if time.Now().After(deadline) {
			t.Fatal("controller never finalized after source stall")
		}
		time.Sleep(5 * time.Millisecond)
	}

	res := c.Result()
	if res == nil {
		t.Fatal("Result() nil after stall finalize")
	}
	if string(res.Payload) != "partial" {
		t.Errorf("payload = %q, want partial", res.Payload)
	}
	if res.DurationSeconds != 7 {
		t.Errorf("DurationSeconds = %d, want 7", res.DurationSeconds)
	}

	// A consumer that stops after the stall finalize still gets the take.
	stopped, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop after stall finalize = %v, want existing result", err)
	}
	if stopped != res {
		t.Error("Stop after stall finalize returned a different result")
	}
	if err := c.Reset(); err != nil {
		t.Errorf("Reset after stall finalize failed: %v", err)
	}
	if _, err := c.Stop(); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("Stop after reset = %v, want CONFLICT", err)
	}
}

func TestStart_DeviceDeniedStaysIdle(t *testing.T) {
	source := &fakeSource{openErr: io.ErrUnexpectedEOF}
	c, _ := newTestController(source, allEncoders(), nil)

	err := c.Start(context.Background(), recording.KindVideo, DeviceHints{})
	if !errors.Is(err, errors.ErrDeviceAccess) {
		t.Fatalf("Start = %v, want DEVICE_ACCESS", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}

	// Retry after the user grants access succeeds.
	source.mu.Lock()
	source.openErr = nil
	source.mu.Unlock()
	if err := c.Start(context.Background(), recording.KindVideo, DeviceHints{}); err != nil {
		t.Errorf("retry Start failed: %v", err)
	}
	c.Close()
}

func TestStart_NoEncoderNegotiable(t *testing.T) {
	source := &fakeSource{}
	c, _ := newTestController(source, &fakeProbe{supported: map[string]bool{}}, nil)

	err := c.Start(context.Background(), recording.KindAudio, DeviceHints{})
	if !errors.Is(err, errors.ErrEncodingUnavailable) {
		t.Fatalf("Start = %v, want ENCODING_UNAVAILABLE", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
	if len(source.requests) != 0 {
		t.Error("source opened despite failed negotiation")
	}
}

func TestNegotiation_FallbackAndStability(t *testing.T) {
	// Platform without the MP4-family encoder falls back to WebM.
	opusOnly := &fakeProbe{supported: map[string]bool{"libopus": true}}
	source := &fakeSource{}
	c, _ := newTestController(source, opusOnly, nil)

	for i := 0; i < 3; i++ {
		if err := c.Start(context.Background(), recording.KindAudio, DeviceHints{}); err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		res, err := c.Stop()
		if err != nil {
			t.Fatalf("Stop %d failed: %v", i, err)
		}
		if res.Format != recording.FormatWebM {
			t.Errorf("run %d: Format = %s, want webm", i, res.Format)
		}
		if err := c.Reset(); err != nil {
			t.Fatalf("Reset %d failed: %v", i, err)
		}
	}

	for _, req := range source.requests {
		if req.EncoderID != "libopus" {
			t.Errorf("EncoderID = %s, want libopus every time", req.EncoderID)
		}
	}
}

func TestTransitionGuards(t *testing.T) {
	source := &fakeSource{}
	c, _ := newTestController(source, allEncoders(), nil)

	if err := c.Pause(); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("Pause in idle = %v, want CONFLICT", err)
	}
	if err := c.Resume(); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("Resume in idle = %v, want CONFLICT", err)
	}
	if _, err := c.Stop(); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("Stop in idle = %v, want CONFLICT", err)
	}
	if err := c.Reset(); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("Reset in idle = %v, want CONFLICT", err)
	}

	if err := c.Start(context.Background(), recording.KindAudio, DeviceHints{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Start(context.Background(), recording.KindAudio, DeviceHints{}); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("second Start = %v, want CONFLICT", err)
	}
	if err := c.Resume(); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("Resume while recording = %v, want CONFLICT", err)
	}
	c.Close()
}

func TestClose_SafetyNetFromAnyState(t *testing.T) {
	sess := newFakeSession()
	source := &fakeSource{sessions: []MediaSession{sess}}
	sink := &fakeSink{}
	c, _ := newTestController(source, allEncoders(), sink)

	if err := c.Start(context.Background(), recording.KindAudio, DeviceHints{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before := len(sink.snapshot())

	c.Close()
	c.Close() // idempotent

	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle after close", c.State())
	}
	if c.Result() != nil {
		t.Error("Result() non-nil after close")
	}
	if _, err := c.Stop(); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("Stop after close = %v, want CONFLICT", err)
	}
	// No events after teardown.
	if got := len(sink.snapshot()); got != before {
		t.Errorf("events emitted after close: %d -> %d", before, got)
	}
}

type swappableSession struct {
	*fakeSession
	mu      sync.Mutex
	swapped []string
}

func (s *swappableSession) SwapVideoTrack(device string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swapped = append(s.swapped, device)
	return nil
}

func TestSwapVideoTrack(t *testing.T) {
	audioSess := newFakeSession()
	videoSess := &swappableSession{fakeSession: newFakeSession()}
	source := &fakeSource{sessions: []MediaSession{audioSess, videoSess}}
	c, clock := newTestController(source, allEncoders(), nil)

	// Audio session cannot swap.
	if err := c.Start(context.Background(), recording.KindAudio, DeviceHints{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.SwapVideoTrack("/dev/video1"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("SwapVideoTrack on audio = %v, want INVALID_REQUEST", err)
	}
	c.Close()

	// Video session with swap support: chunks and clock untouched.
	if err := c.Start(context.Background(), recording.KindVideo, DeviceHints{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	videoSess.Emit([]byte("vid"))
	clock.Advance(4 * time.Second)

	if err := c.SwapVideoTrack("/dev/video1"); err != nil {
		t.Fatalf("SwapVideoTrack failed: %v", err)
	}
	videoSess.mu.Lock()
	swaps := len(videoSess.swapped)
	videoSess.mu.Unlock()
	if swaps != 1 {
		t.Errorf("swaps = %d, want 1", swaps)
	}

	clock.Advance(2 * time.Second)
	res, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if string(res.Payload) != "vid" {
		t.Errorf("payload = %q, want vid", res.Payload)
	}
	if res.DurationSeconds != 6 {
		t.Errorf("DurationSeconds = %d, want 6", res.DurationSeconds)
	}
}
