// Package session holds the authenticated user's session (token, user type,
// profile) and persists it through a pluggable Storage backend.
//
// Storage failures never reach callers: they are logged and the Store keeps
// working from its in-memory mirror.
package session

import (
	"encoding/json"
	"fmt"
)

// Storage keys for the persisted session fields.
const (
	KeyToken    = "auth_token"
	KeyUserType = "user_type"
	KeyProfile  = "user_data"
)

// UserType is the role returned by the backend on login.
type UserType string

const (
	UserTypeAdmin    UserType = "admin"
	UserTypeReseller UserType = "reseller"
	UserTypeClient   UserType = "client"
)

// Valid reports whether t is one of the known roles.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeAdmin, UserTypeReseller, UserTypeClient:
		return true
	}
	return false
}

// ParseUserType converts a raw role string.
func ParseUserType(s string) (UserType, error) {
	t := UserType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown user type %q", s)
	}
	return t, nil
}

// Profile is the opaque user object returned by the backend.
type Profile map[string]any

// Clone returns a shallow copy.
func (p Profile) Clone() Profile {
	if p == nil {
		return nil
	}
	out := make(Profile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns a string field of the profile, or "".
func (p Profile) String(field string) string {
	s, _ := p[field].(string)
	return s
}

// Session is a snapshot of the current session. Token and UserType are
// either both set or both empty; Profile may be nil while a token is held.
type Session struct {
	Token    string   `json:"token,omitempty"`
	UserType UserType `json:"user_type,omitempty"`
	Profile  Profile  `json:"profile,omitempty"`
}

// Active reports whether the snapshot carries a token.
func (s Session) Active() bool {
	return s.Token != ""
}

func decodeProfile(raw string) (Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return p, nil
}
