package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrCacheMiss indicates the key has no fresh entry.
var ErrCacheMiss = errors.New("cache miss")

// Fetcher performs the network call for a key and returns the normalized
// JSON payload.
type Fetcher func(ctx context.Context) ([]byte, error)

// Manager is the request cache and in-flight registry. Create one per
// process (or per test) with NewManager; the zero value is not usable.
type Manager struct {
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*Entry

	group    singleflight.Group
	inflight atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  zerolog.Nop(),
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured time-to-live.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Do runs fetch for key through the cache.
//
// For GET it returns a fresh cached payload, joins an identical in-flight
// call, or starts one. For POST, PUT, PATCH and DELETE it first evicts every
// entry whose key contains path and then calls fetch directly. Other methods
// are passed through untouched.
//
// The shared network call is detached from the cancellation of whichever
// caller started it; a caller whose ctx ends stops waiting and gets
// ctx.Err() while the others still receive the result.
func (m *Manager) Do(ctx context.Context, key Key, path string, fetch Fetcher) (json.RawMessage, error) {
	if !key.Cacheable() {
		if IsMutating(key.Method) {
			m.InvalidatePath(path)
		}
		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return clonePayload(payload), nil
	}

	k := key.String()
	if payload, ok := m.lookup(k); ok {
		CacheHits.Inc()
		m.logger.Debug().Str("cache_key", k).Msg("Cache hit")
		return payload, nil
	}

	ch := m.group.DoChan(k, func() (any, error) {
		// A call for k may have settled between the lookup above and this
		// registration.
		if payload, ok := m.lookup(k); ok {
			CacheHits.Inc()
			return []byte(payload), nil
		}
		CacheMisses.Inc()

		m.inflight.Add(1)
		InFlight.Inc()
		defer func() {
			m.inflight.Add(-1)
			InFlight.Dec()
		}()

		m.logger.Debug().Str("cache_key", k).Msg("Cache miss, fetching")
		payload, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		m.store(k, payload)
		return payload, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			SharedRequests.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return clonePayload(res.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns a copy of the fresh entry for key, or ErrCacheMiss.
func (m *Manager) Get(key Key) (*Entry, error) {
	k := key.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[k]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.Fresh(m.now(), m.ttl) {
		m.deleteLocked(k)
		return nil, ErrCacheMiss
	}
	return &Entry{Payload: clonePayload(e.Payload), StoredAt: e.StoredAt}, nil
}

// Set stores payload for key. Only GET keys are stored; others are ignored.
func (m *Manager) Set(key Key, payload []byte) {
	if !key.Cacheable() {
		return
	}
	m.store(key.String(), payload)
}

// InvalidatePath evicts every entry whose key contains path and returns the
// number of evicted entries. An empty path evicts nothing.
func (m *Manager) InvalidatePath(path string) int {
	if path == "" {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.entries {
		if strings.Contains(k, path) {
			m.deleteLocked(k)
			n++
		}
	}
	if n > 0 {
		Invalidations.Add(float64(n))
		m.logger.Debug().Str("path", path).Int("evicted", n).Msg("Cache entries invalidated")
	}
	return n
}

// Purge removes every entry.
func (m *Manager) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	Entries.Sub(float64(len(m.entries)))
	m.entries = make(map[string]*Entry)
}

// Prune removes stale entries and returns how many were removed.
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, e := range m.entries {
		if !e.Fresh(now, m.ttl) {
			m.deleteLocked(k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, fresh or not.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// InFlight returns the number of GETs currently on the network.
func (m *Manager) InFlight() int {
	return int(m.inflight.Load())
}

func (m *Manager) lookup(k string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[k]
	if !ok {
		return nil, false
	}
	if !e.Fresh(m.now(), m.ttl) {
		m.deleteLocked(k)
		return nil, false
	}
	return clonePayload(e.Payload), true
}

func (m *Manager) store(k string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[k]; !ok {
		Entries.Inc()
	}
	m.entries[k] = &Entry{Payload: clonePayload(payload), StoredAt: m.now()}
}

func (m *Manager) deleteLocked(k string) {
	if _, ok := m.entries[k]; ok {
		delete(m.entries, k)
		Entries.Dec()
	}
}
