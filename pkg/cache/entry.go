package cache

import (
	"encoding/json"
	"time"
)

// DefaultTTL is how long a GET result is served from memory.
const DefaultTTL = 30 * time.Second

// Entry is a cached GET result.
type Entry struct {
	// Payload is the normalized JSON response body.
	Payload json.RawMessage `json:"payload"`

	// StoredAt is when the response was stored.
	StoredAt time.Time `json:"stored_at"`
}

// Age returns how long ago the entry was stored, relative to now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Fresh reports whether the entry is still valid for ttl at now.
// An entry is valid while its age is strictly below ttl.
func (e *Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return e.Age(now) < ttl
}

func clonePayload(p []byte) json.RawMessage {
	if p == nil {
		return nil
	}
	out := make(json.RawMessage, len(p))
	copy(out, p)
	return out
}
