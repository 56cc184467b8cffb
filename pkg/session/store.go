package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var storageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_session_storage_errors_total",
	Help: "Session storage failures swallowed by the store, by operation",
}, []string{"operation"})

// Listener is called synchronously after a notifying mutation.
type Listener func(Session)

// Store is the single source of truth for the current session. The
// in-memory mirror is seeded from Storage once, at construction.
type Store struct {
	storage Storage
	logger  zerolog.Logger

	// mu guards current and orders storage writes with it, so storage
	// never holds fields the mirror has already dropped.
	mu      sync.RWMutex
	current Session

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewStore builds a Store over storage and restores any persisted session.
// A nil storage falls back to MemoryStorage.
func NewStore(ctx context.Context, storage Storage, logger zerolog.Logger) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}

	s := &Store{
		storage:   storage,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
	s.current = s.restore(ctx)
	return s
}

func (s *Store) restore(ctx context.Context) Session {
	var sess Session

	token := s.read(ctx, KeyToken)
	rawType := s.read(ctx, KeyUserType)
	if token != "" {
		userType, err := ParseUserType(rawType)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Persisted session has no valid user type, ignoring token")
		} else {
			sess.Token = token
			sess.UserType = userType
		}
	}

	if raw := s.read(ctx, KeyProfile); raw != "" {
		p, err := decodeProfile(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Persisted profile is not valid JSON, ignoring")
		} else {
			sess.Profile = p
		}
	}

	if sess.Active() {
		s.logger.Debug().Str("user_type", string(sess.UserType)).Msg("Session restored from storage")
	}
	return sess
}

// SetSession stores a fresh session. profile may be nil, in which case the
// previously held profile is kept.
func (s *Store) SetSession(ctx context.Context, token string, userType UserType, profile Profile) error {
	if token == "" {
		return errors.New("token is required")
	}
	if !userType.Valid() {
		return fmt.Errorf("unknown user type %q", userType)
	}

	s.mu.Lock()
	s.write(ctx, KeyToken, token)
	s.write(ctx, KeyUserType, string(userType))
	if profile != nil {
		s.writeProfile(ctx, profile)
	}
	s.current.Token = token
	s.current.UserType = userType
	if profile != nil {
		s.current.Profile = profile.Clone()
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info().Str("user_type", string(userType)).Msg("Session set")
	s.notify(snapshot)
	return nil
}

// MergeProfile shallow-merges partial into the held profile. It does
// nothing when no profile is held.
func (s *Store) MergeProfile(ctx context.Context, partial Profile) {
	s.mu.Lock()
	if s.current.Profile == nil {
		s.mu.Unlock()
		return
	}
	merged := s.current.Profile.Clone()
	for k, v := range partial {
		merged[k] = v
	}
	s.writeProfile(ctx, merged)
	s.current.Profile = merged
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// Clear removes every session field from storage and memory. Subscribers
// are not notified; use ClearAndNotify when they must react.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.remove(ctx, KeyToken)
	s.remove(ctx, KeyUserType)
	s.remove(ctx, KeyProfile)
	s.current = Session{}
	s.mu.Unlock()

	s.logger.Info().Msg("Session cleared")
}

// ClearAndNotify is Clear followed by a notification with the empty session.
func (s *Store) ClearAndNotify(ctx context.Context) {
	s.Clear(ctx)
	s.notify(Session{})
}

// ExpireCredentials drops the token and user type but keeps the profile.
// It is used when the backend rejects the token and does not notify.
func (s *Store) ExpireCredentials(ctx context.Context) {
	s.mu.Lock()
	s.remove(ctx, KeyToken)
	s.remove(ctx, KeyUserType)
	s.current.Token = ""
	s.current.UserType = ""
	s.mu.Unlock()
}

// Current returns a copy of the in-memory session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Token returns the current token, or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}

// HasActiveSession reports whether a non-empty token is held.
func (s *Store) HasActiveSession() bool {
	return s.Token() != ""
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

func (s *Store) notify(snapshot Session) {
	s.lmu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, s.listeners[id])
	}
	s.lmu.Unlock()

	for _, l := range ls {
		l(snapshot)
	}
}

func (s *Store) snapshotLocked() Session {
	return Session{
		Token:    s.current.Token,
		UserType: s.current.UserType,
		Profile:  s.current.Profile.Clone(),
	}
}

func (s *Store) writeProfile(ctx context.Context, p Profile) {
	data, err := json.Marshal(p)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Profile is not serializable, keeping it in memory only")
		storageErrors.WithLabelValues("set").Inc()
		return
	}
	s.write(ctx, KeyProfile, string(data))
}

// read, write and remove swallow storage failures.

func (s *Store) read(ctx context.Context, key string) string {
	v, err := s.storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			storageErrors.WithLabelValues("get").Inc()
			s.logger.Warn().Err(err).Str("key", key).Msg("Session storage read failed")
		}
		return ""
	}
	return v
}

func (s *Store) write(ctx context.Context, key, value string) {
	if err := s.storage.Set(ctx, key, value); err != nil {
		storageErrors.WithLabelValues("set").Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("Session storage write failed")
	}
}

func (s *Store) remove(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		storageErrors.WithLabelValues("delete").Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("Session storage delete failed")
	}
}
