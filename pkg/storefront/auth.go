package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/session"
)

// Auth endpoints.
const (
	EndpointLogin   = "/auth/login"
	EndpointDiscord = "/auth/discord"
	EndpointGoogle  = "/auth/google"
	EndpointMe      = "/auth/me"
	EndpointProfile = "/users/me"
)

// ErrMissingToken is returned when a login response carries no token.
var ErrMissingToken = errors.New("login response did not include a token")

// Auth runs the login flows and keeps the session store current.
type Auth struct {
	client *client.Client
}

// Login exchanges credentials for a session and stores it.
func (a *Auth) Login(ctx context.Context, email, password string) (session.Session, error) {
	payload, err := a.client.Post(ctx, EndpointLogin, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return session.Session{}, err
	}
	return a.store(ctx, payload)
}

// ExchangeDiscord trades an OAuth code from Discord for a session.
func (a *Auth) ExchangeDiscord(ctx context.Context, code string) (session.Session, error) {
	return a.exchange(ctx, EndpointDiscord, code)
}

// ExchangeGoogle trades an OAuth code from Google for a session.
func (a *Auth) ExchangeGoogle(ctx context.Context, code string) (session.Session, error) {
	return a.exchange(ctx, EndpointGoogle, code)
}

func (a *Auth) exchange(ctx context.Context, endpoint, code string) (session.Session, error) {
	if code == "" {
		return session.Session{}, errors.New("authorization code is required")
	}
	payload, err := a.client.Post(ctx, endpoint, map[string]string{"code": code})
	if err != nil {
		return session.Session{}, err
	}
	return a.store(ctx, payload)
}

// Logout clears the stored session and notifies subscribers. Cached
// responses belong to the old identity and are dropped too.
func (a *Auth) Logout(ctx context.Context) {
	a.client.Session().ClearAndNotify(ctx)
	a.client.Cache().Purge()
}

// Me returns the profile of the authenticated user.
func (a *Auth) Me(ctx context.Context) (session.Profile, error) {
	payload, err := a.client.Get(ctx, EndpointMe)
	if err != nil {
		return nil, err
	}
	return client.Decode[session.Profile](payload)
}

// UpdateProfile sends patch to the backend and merges the accepted fields
// into the held profile.
func (a *Auth) UpdateProfile(ctx context.Context, patch session.Profile) (session.Profile, error) {
	payload, err := a.client.Put(ctx, EndpointProfile, patch)
	if err != nil {
		return nil, err
	}

	updated := patch
	if gjson.ParseBytes(payload).IsObject() {
		if decoded, err := client.Decode[session.Profile](payload); err == nil {
			updated = decoded
		}
	}
	a.client.Session().MergeProfile(ctx, updated)
	return updated, nil
}

// store reads token, role and user object from a login response. Both
// {"access_token":..} and {"token":..} shapes are accepted, and the role
// may sit at the top level or on the user object.
func (a *Auth) store(ctx context.Context, payload json.RawMessage) (session.Session, error) {
	token := firstString(payload, "access_token", "token")
	if token == "" {
		return session.Session{}, ErrMissingToken
	}

	userType, err := session.ParseUserType(firstString(payload, "user_type", "user.user_type", "user.role"))
	if err != nil {
		return session.Session{}, fmt.Errorf("login response: %w", err)
	}

	var profile session.Profile
	if user := gjson.GetBytes(payload, "user"); user.IsObject() {
		profile, err = client.Decode[session.Profile](json.RawMessage(user.Raw))
		if err != nil {
			return session.Session{}, err
		}
	}

	if err := a.client.Session().SetSession(ctx, token, userType, profile); err != nil {
		return session.Session{}, err
	}
	return a.client.Session().Current(), nil
}

func firstString(payload []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(payload, p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
