package prefs

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Backend is the durable substrate for the preference document.
// *store.Store satisfies it.
type Backend interface {
	GetPrefs(ctx context.Context) (map[string]json.RawMessage, error)
	SetPref(ctx context.Context, key string, value json.RawMessage) error
}

// Store is a last-write-wins key/value preference store with an in-memory
// mirror for synchronous reads and asynchronous durable writes.
//
// The mirror is not authoritative until the first durable read completes
// after process start: reads before that point return the caller-supplied
// default, never stale cross-session data. Values set during the current
// session are visible immediately.
type Store struct {
	backend Backend
	log     *logrus.Logger

	mu     sync.Mutex
	mirror map[string]json.RawMessage

	hydrated chan struct{}
	writes   chan pendingWrite
	pending  sync.WaitGroup
}

type pendingWrite struct {
	key   string
	value json.RawMessage
}

// New creates a Store and begins hydrating the mirror in the background.
func New(backend Backend, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{
		backend:  backend,
		log:      log,
		mirror:   make(map[string]json.RawMessage),
		hydrated: make(chan struct{}),
		writes:   make(chan pendingWrite, 64),
	}
	go s.hydrate()
	go s.writer()
	return s
}

// Hydrated is closed once the first durable read has populated the mirror.
func (s *Store) Hydrated() <-chan struct{} {
	return s.hydrated
}

// WaitHydrated blocks until hydration finishes or ctx expires.
func (s *Store) WaitHydrated(ctx context.Context) error {
	select {
	case <-s.hydrated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) hydrate() {
	defer close(s.hydrated)

	persisted, err := s.backend.GetPrefs(context.Background())
	if err != nil {
		s.log.WithError(err).Warn("preference hydration failed; keeping defaults")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range persisted {
		// Session-local sets win over persisted values.
		if _, ok := s.mirror[key]; !ok {
			s.mirror[key] = value
		}
	}
}

func (s *Store) writer() {
	for w := range s.writes {
		if err := s.backend.SetPref(context.Background(), w.key, w.value); err != nil {
			s.log.WithField("key", w.key).WithError(err).Warn("preference write failed")
		}
		s.pending.Done()
	}
}

// Set updates the mirror immediately and queues a fire-and-forget durable
// write. Last write wins.
func (s *Store) Set(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.WithField("key", key).WithError(err).Warn("preference value not serializable")
		return
	}

	s.mu.Lock()
	s.mirror[key] = raw
	s.mu.Unlock()

	s.pending.Add(1)
	s.writes <- pendingWrite{key: key, value: raw}
}

// Flush blocks until all queued durable writes have completed.
func (s *Store) Flush() {
	s.pending.Wait()
}

func (s *Store) lookup(key string, out any) bool {
	s.mu.Lock()
	raw, ok := s.mirror[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.log.WithField("key", key).WithError(err).Warn("preference value malformed")
		return false
	}
	return true
}

// Snapshot returns a copy of the current mirror. Callers that need the
// persisted state should wait on Hydrated first.
func (s *Store) Snapshot() map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]json.RawMessage, len(s.mirror))
	for k, v := range s.mirror {
		out[k] = v
	}
	return out
}

// GetString returns the stored string for key, or def.
func (s *Store) GetString(key, def string) string {
	var v string
	if s.lookup(key, &v) {
		return v
	}
	return def
}

// GetInt returns the stored int for key, or def.
func (s *Store) GetInt(key string, def int) int {
	var v int
	if s.lookup(key, &v) {
		return v
	}
	return def
}

// GetBool returns the stored bool for key, or def.
func (s *Store) GetBool(key string, def bool) bool {
	var v bool
	if s.lookup(key, &v) {
		return v
	}
	return def
}
