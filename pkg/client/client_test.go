package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/storefront-client/internal/testutil"
	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/Sternrassler/storefront-client/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	backend *testutil.MockBackend
	store   *session.Store
	clock   *testClock
	nav     *RouteTracker
	client  *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := testutil.NewMockBackend()
	t.Cleanup(backend.Close)

	store := session.NewStore(context.Background(), session.NewMemoryStorage(), zerolog.Nop())
	clock := &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	nav := NewRouteTracker("/dashboard")

	c, err := New(Config{
		BaseURL:   backend.URL(),
		UserAgent: "storefront-test/1.0",
		Session:   store,
		Cache:     cache.NewManager(cache.WithClock(clock.Now)),
		Navigator: nav,
	})
	require.NoError(t, err)

	return &fixture{backend: backend, store: store, clock: clock, nav: nav, client: c}
}

func (f *fixture) login(t *testing.T, token string) {
	t.Helper()
	require.NoError(t, f.store.SetSession(context.Background(), token, session.UserTypeClient, session.Profile{"name": "Ada"}))
}

func TestNew_Validation(t *testing.T) {
	store := session.NewStore(context.Background(), nil, zerolog.Nop())

	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://api.example.com", store),
		},
		{
			name:     "missing base url",
			config:   Config{Session: store},
			errorMsg: "base URL is required",
		},
		{
			name:     "non http base url",
			config:   Config{BaseURL: "ftp://example.com", Session: store},
			errorMsg: `base URL must be http(s) (got "ftp://example.com")`,
		},
		{
			name:     "missing session",
			config:   Config{BaseURL: "https://api.example.com"},
			errorMsg: "session store is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.errorMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c.Cache())
			assert.Equal(t, RouteHome, c.Navigator().CurrentRoute())
			assert.Equal(t, "https://api.example.com/api", c.apiBase)
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"licenses":        "/licenses",
		"/licenses":       "/licenses",
		"//licenses":      "/licenses",
		"":                "/",
		"products?page=2": "/products?page=2",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeEndpoint(in), in)
	}
}

func TestClient_ComposesURL(t *testing.T) {
	f := newFixture(t)
	f.backend.Respond(http.MethodGet, "/api/products", testutil.JSON(`[]`))

	_, err := f.client.Get(context.Background(), "products?page=2")
	require.NoError(t, err)

	last, ok := f.backend.Last()
	require.True(t, ok)
	assert.Equal(t, "/api/products", last.Path)
	assert.Equal(t, "page=2", last.Query)
	assert.Equal(t, "application/json", last.Header.Get("Content-Type"))
	assert.Equal(t, "storefront-test/1.0", last.Header.Get("User-Agent"))
}

func TestClient_AuthHeaders(t *testing.T) {
	f := newFixture(t)
	f.backend.Respond(http.MethodGet, "/api/me", testutil.JSON(`{}`))
	f.backend.Respond(http.MethodPost, "/api/me", testutil.JSON(`{}`))

	_, err := f.client.Get(context.Background(), "/me")
	require.NoError(t, err)

	last, _ := f.backend.Last()
	assert.Empty(t, last.Header.Get("Authorization"))
	assert.Empty(t, last.Header.Get(HeaderEmeriteToken))
	assert.Empty(t, last.Header.Get(HeaderFaerionToken))

	f.login(t, "tok123")
	_, err = f.client.Post(context.Background(), "/me", map[string]int{"n": 1})
	require.NoError(t, err)

	last, _ = f.backend.Last()
	assert.Equal(t, "Bearer tok123", last.Header.Get("Authorization"))
	assert.Equal(t, "tok123", last.Header.Get(HeaderEmeriteToken))
	assert.Equal(t, "tok123", last.Header.Get(HeaderFaerionToken))
	assert.JSONEq(t, `{"n":1}`, last.Body)
}

func TestClient_CallerHeadersOverride(t *testing.T) {
	f := newFixture(t)
	f.login(t, "tok123")
	f.backend.Respond(http.MethodPut, "/api/uploads", testutil.JSON(`{}`))

	_, err := f.client.Do(context.Background(), "/uploads", RequestOptions{
		Method:  "put",
		Body:    "plain text",
		Headers: map[string]string{"Content-Type": "text/plain", "X-Trace": "abc"},
	})
	require.NoError(t, err)

	last, _ := f.backend.Last()
	assert.Equal(t, http.MethodPut, last.Method)
	assert.Equal(t, "text/plain", last.Header.Get("Content-Type"))
	assert.Equal(t, "abc", last.Header.Get("X-Trace"))
	assert.Equal(t, "Bearer tok123", last.Header.Get("Authorization"))
	assert.Equal(t, "plain text", last.Body)
}

func TestClient_LicensesScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.Respond(http.MethodGet, "/api/licenses", testutil.JSON(`{"license_key":"ABC-123"}`))
	f.backend.Respond(http.MethodPost, "/api/licenses", testutil.JSONStatus(http.StatusCreated, `{"license_key":"DEF-456"}`))

	first, err := f.client.Get(ctx, "/licenses")
	require.NoError(t, err)
	assert.JSONEq(t, `{"license_key":"ABC-123"}`, string(first))

	f.clock.Advance(5 * time.Second)
	second, err := f.client.Get(ctx, "/licenses")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 1, f.backend.Count(http.MethodGet, "/api/licenses"))

	created, err := f.client.Post(ctx, "/licenses", map[string]int{"app_id": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"license_key":"DEF-456"}`, string(created))

	_, err = f.client.Get(ctx, "/licenses")
	require.NoError(t, err)
	assert.Equal(t, 2, f.backend.Count(http.MethodGet, "/api/licenses"))
}

func TestClient_TTLExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.Respond(http.MethodGet, "/api/status", testutil.JSON(`{"ok":true}`))

	_, err := f.client.Get(ctx, "/status")
	require.NoError(t, err)
	f.clock.Advance(29 * time.Second)
	_, err = f.client.Get(ctx, "/status")
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.Count(http.MethodGet, "/api/status"))

	f.clock.Advance(2 * time.Second)
	_, err = f.client.Get(ctx, "/status")
	require.NoError(t, err)
	assert.Equal(t, 2, f.backend.Count(http.MethodGet, "/api/status"))
}

func TestClient_ConcurrentGETsShareOneRequest(t *testing.T) {
	f := newFixture(t)
	resp := testutil.JSON(`[{"id":1}]`)
	resp.Delay = 100 * time.Millisecond
	f.backend.Respond(http.MethodGet, "/api/products", resp)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.client.Get(context.Background(), "/products")
			assert.NoError(t, err)
			assert.JSONEq(t, `[{"id":1}]`, string(p))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.backend.Count(http.MethodGet, "/api/products"))
}

func TestClient_RawTextResponse(t *testing.T) {
	f := newFixture(t)
	f.backend.Respond(http.MethodGet, "/api/health", testutil.Text(http.StatusOK, "pong <ok>"))

	payload, err := f.client.Get(context.Background(), "/health")
	require.NoError(t, err)

	got, err := Decode[map[string]string](payload)
	require.NoError(t, err)
	assert.Equal(t, "pong <ok>", got["raw"])
}

func TestClient_InvalidJSON(t *testing.T) {
	f := newFixture(t)
	f.backend.Respond(http.MethodGet, "/api/broken", testutil.JSON(`{"unterminated":`))

	_, err := f.client.Get(context.Background(), "/broken")
	require.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, "Invalid response format from server (expected JSON)", err.Error())
	assert.Equal(t, 0, f.client.Cache().Len())
}

func TestClient_ErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		resp     testutil.MockResponse
		status   int
		expected string
		class    ErrorClass
	}{
		{
			name:     "detail wins",
			resp:     testutil.JSONStatus(400, `{"message":"m","error":"e","detail":"Invalid coupon"}`),
			status:   400,
			expected: "Invalid coupon",
			class:    ErrorClassClient,
		},
		{
			name:     "error before message",
			resp:     testutil.JSONStatus(409, `{"message":"m","error":"Already owned"}`),
			status:   409,
			expected: "Already owned",
			class:    ErrorClassClient,
		},
		{
			name:     "message",
			resp:     testutil.JSONStatus(500, `{"message":"Database unavailable"}`),
			status:   500,
			expected: "Database unavailable",
			class:    ErrorClassServer,
		},
		{
			name:     "raw text body",
			resp:     testutil.Text(502, "Bad Gateway"),
			status:   502,
			expected: "Bad Gateway",
			class:    ErrorClassServer,
		},
		{
			name:     "empty detail falls through",
			resp:     testutil.JSONStatus(404, `{"detail":"","error":{"code":1}}`),
			status:   404,
			expected: "HTTP 404",
			class:    ErrorClassClient,
		},
		{
			name:     "array body",
			resp:     testutil.JSONStatus(422, `[1,2]`),
			status:   422,
			expected: "HTTP 422",
			class:    ErrorClassClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.Respond(http.MethodGet, "/api/thing", tt.resp)

			_, err := f.client.Get(context.Background(), "/thing")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.expected, apiErr.Error())
			assert.Equal(t, tt.class, apiErr.ErrorClass)
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestClient_NetworkFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.Close()

	_, err := f.client.Get(context.Background(), "/products")
	require.ErrorIs(t, err, ErrConnection)
	assert.True(t, strings.HasPrefix(err.Error(), "Server connection failed: "), err.Error())
	assert.Equal(t, 0, f.client.Cache().Len())
	assert.Equal(t, 0, f.client.Cache().InFlight())
}

func TestClient_UnauthorizedExpiresSessionAndNavigates(t *testing.T) {
	f := newFixture(t)
	f.login(t, "stale")
	f.backend.Respond(http.MethodGet, "/api/orders", testutil.JSONStatus(401, `{"detail":"Not authenticated"}`))

	_, err := f.client.Get(context.Background(), "/orders")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "Not authenticated", err.Error())

	sess := f.store.Current()
	assert.Empty(t, sess.Token)
	assert.Empty(t, sess.UserType)
	assert.Equal(t, "Ada", sess.Profile.String("name"), "profile is not part of the forced clear")
	assert.Equal(t, []string{RouteHome}, f.nav.History())
}

func TestClient_TokenExpiredMessage(t *testing.T) {
	f := newFixture(t)
	f.login(t, "stale")
	f.backend.Respond(http.MethodGet, "/api/resellers", testutil.JSONStatus(403, `{"error":"JWT Token Expired"}`))

	_, err := f.client.Get(context.Background(), "/resellers")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.False(t, f.store.HasActiveSession())
	assert.Equal(t, RouteHome, f.nav.CurrentRoute())
}

func TestClient_UnauthorizedOnHomeOrLoginDoesNotNavigate(t *testing.T) {
	for _, route := range []string{RouteHome, RouteLogin} {
		t.Run(route, func(t *testing.T) {
			f := newFixture(t)
			f.nav = NewRouteTracker(route)
			f.client.navigator = f.nav
			f.login(t, "stale")
			f.backend.Respond(http.MethodGet, "/api/cart", testutil.JSONStatus(401, `{}`))

			_, err := f.client.Get(context.Background(), "/cart")
			require.Error(t, err)
			assert.Equal(t, "HTTP 401", err.Error())
			assert.False(t, f.store.HasActiveSession())
			assert.Empty(t, f.nav.History())
		})
	}
}

func TestClient_LoginEndpointsExempt(t *testing.T) {
	for _, endpoint := range []string{"/auth/login", "/auth/discord", "/auth/google/callback"} {
		t.Run(endpoint, func(t *testing.T) {
			f := newFixture(t)
			f.login(t, "still-valid")
			f.backend.Respond(http.MethodPost, "/api"+endpoint, testutil.JSONStatus(401, `{"detail":"Invalid credentials"}`))

			_, err := f.client.Post(context.Background(), endpoint, map[string]string{"email": "a@b.c"})
			require.Error(t, err)
			assert.Equal(t, "Invalid credentials", err.Error())

			assert.True(t, f.store.HasActiveSession())
			assert.Empty(t, f.nav.History())
		})
	}
}

func TestClient_MutationInvalidatesSubpaths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.Respond(http.MethodGet, "/api/products", testutil.JSON(`[]`))
	f.backend.Respond(http.MethodGet, "/api/products/3", testutil.JSON(`{}`))
	f.backend.Respond(http.MethodGet, "/api/orders", testutil.JSON(`[]`))
	f.backend.Respond(http.MethodDelete, "/api/products", testutil.JSONStatus(500, `{"detail":"boom"}`))

	for _, ep := range []string{"/products", "/products/3", "/orders"} {
		_, err := f.client.Get(ctx, ep)
		require.NoError(t, err)
	}
	require.Equal(t, 3, f.client.Cache().Len())

	_, err := f.client.Delete(ctx, "/products?force=1")
	require.Error(t, err)
	assert.Equal(t, 1, f.client.Cache().Len(), "failed mutations still invalidate")
}

func TestDecode(t *testing.T) {
	type license struct {
		Key string `json:"license_key"`
	}
	got, err := Decode[license]([]byte(`{"license_key":"ABC-123"}`))
	require.NoError(t, err)
	assert.Equal(t, "ABC-123", got.Key)

	_, err = Decode[license]([]byte(`[`))
	assert.Error(t, err)
}
