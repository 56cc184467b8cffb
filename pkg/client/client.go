// Package client provides the storefront API client: URL composition, auth
// header injection, response normalization, request caching and central
// handling of rejected sessions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/Sternrassler/storefront-client/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_api_requests_total",
		Help: "Total network requests to the storefront API by method and status",
	}, []string{"method", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_api_request_duration_seconds",
		Help:    "Storefront API request duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_api_errors_total",
		Help: "Total storefront API errors by class",
	}, []string{"class"})

	sessionRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_api_session_rejections_total",
		Help: "Total responses that invalidated the stored session",
	})
)

const (
	// APIPrefix is prepended to every endpoint.
	APIPrefix = "/api"

	// Vendor headers carrying the same token as Authorization.
	HeaderEmeriteToken = "x-emerite-token"
	HeaderFaerionToken = "x-faerion-token"
)

// Endpoints whose 401 responses do not expire the session or navigate.
var authExemptSegments = []string{"/login", "/discord", "/google"}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the backend origin, e.g. "https://api.emerite.store".
	BaseURL string

	// UserAgent is sent on every request.
	UserAgent string

	// Timeout bounds a single network call. Ignored when HTTPClient is set.
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	// Session is read on every call for the token. Required.
	Session *session.Store

	// Cache deduplicates and caches GETs. A fresh Manager is created when nil.
	Cache *cache.Manager

	// Navigator receives forced navigations. Defaults to a RouteTracker.
	Navigator Navigator
}

// DefaultConfig returns a configuration with a 30s timeout.
func DefaultConfig(baseURL string, store *session.Store) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "storefront-client/0.1.0",
		Timeout:   30 * time.Second,
		Session:   store,
	}
}

// Client is the storefront API client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	apiBase    string
	userAgent  string
	session    *session.Store
	cache      *cache.Manager
	navigator  Navigator
	logger     zerolog.Logger
}

// New validates cfg and creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base URL must be http(s) (got %q)", cfg.BaseURL)
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("session store is required")
	}

	logger := log.With().Str("component", "api-client").Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := cfg.Cache
	if c == nil {
		c = cache.NewManager(cache.WithLogger(logger))
	}

	nav := cfg.Navigator
	if nav == nil {
		nav = NewRouteTracker(RouteHome)
	}

	return &Client{
		httpClient: httpClient,
		apiBase:    strings.TrimRight(cfg.BaseURL, "/") + APIPrefix,
		userAgent:  cfg.UserAgent,
		session:    cfg.Session,
		cache:      c,
		navigator:  nav,
		logger:     logger,
	}, nil
}

// RequestOptions describes one call.
type RequestOptions struct {
	// Method defaults to GET.
	Method string

	// Body is sent as JSON. []byte, json.RawMessage and string values are
	// sent verbatim; anything else is marshaled.
	Body any

	// Headers extend or override the defaults.
	Headers map[string]string
}

// Do sends a request to endpoint (relative to the /api prefix) and returns
// the normalized JSON payload. Non-JSON responses are wrapped as
// {"raw": "<text>"}.
func (c *Client) Do(ctx context.Context, endpoint string, opts RequestOptions) (json.RawMessage, error) {
	endpoint = NormalizeEndpoint(endpoint)

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}

	url := c.apiBase + endpoint
	key := cache.Key{Method: method, URL: url, Body: body}
	path := APIPrefix + pathOf(endpoint)

	return c.cache.Do(ctx, key, path, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, method, url, endpoint, body, opts.Headers)
	})
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return c.Do(ctx, endpoint, RequestOptions{Method: http.MethodGet})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (json.RawMessage, error) {
	return c.Do(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body any) (json.RawMessage, error) {
	return c.Do(ctx, endpoint, RequestOptions{Method: http.MethodPut, Body: body})
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, endpoint string, body any) (json.RawMessage, error) {
	return c.Do(ctx, endpoint, RequestOptions{Method: http.MethodPatch, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return c.Do(ctx, endpoint, RequestOptions{Method: http.MethodDelete})
}

// Decode unmarshals a payload returned by the client.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}

// Session returns the store the client reads tokens from.
func (c *Client) Session() *session.Store {
	return c.session
}

// Cache returns the request cache.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// Navigator returns the navigator used for forced navigation.
func (c *Client) Navigator() Navigator {
	return c.navigator
}

// send performs the network call. Everything that must happen before the
// caller observes the result (session expiry, navigation) happens here.
func (c *Client) send(ctx context.Context, method, url, endpoint, body string, extra map[string]string) ([]byte, error) {
	start := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.applyHeaders(req, extra)

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Msg("Sending API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		apiRequestsTotal.WithLabelValues(method, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("API request failed")
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	apiRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	payload, err := normalizeBody(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassFormat)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("API response is not valid JSON")
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, payload)
		apiErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Str("message", apiErr.Message).
			Msg("API request error")

		if apiErr.Unauthorized() {
			c.rejectSession(ctx, endpoint)
		}
		return nil, apiErr
	}

	return payload, nil
}

func (c *Client) applyHeaders(req *http.Request, extra map[string]string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(HeaderEmeriteToken, token)
		req.Header.Set(HeaderFaerionToken, token)
	}

	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

// rejectSession expires the stored credentials and sends the user home,
// except for login flows where a 401 just means bad credentials.
func (c *Client) rejectSession(ctx context.Context, endpoint string) {
	if isAuthExempt(endpoint) {
		return
	}
	sessionRejectionsTotal.Inc()
	c.session.ExpireCredentials(ctx)

	route := c.navigator.CurrentRoute()
	if route == RouteHome || route == RouteLogin {
		return
	}
	c.logger.Warn().
		Str("endpoint", endpoint).
		Str("route", route).
		Msg("Session rejected, navigating home")
	c.navigator.Navigate(RouteHome)
}

// NormalizeEndpoint ensures exactly one leading slash.
func NormalizeEndpoint(endpoint string) string {
	return "/" + strings.TrimLeft(endpoint, "/")
}

func pathOf(endpoint string) string {
	if i := strings.IndexAny(endpoint, "?#"); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

func isAuthExempt(endpoint string) bool {
	for _, seg := range authExemptSegments {
		if strings.Contains(endpoint, seg) {
			return true
		}
	}
	return false
}

func encodeBody(body any) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case string:
		return b, nil
	case []byte:
		return string(b), nil
	case json.RawMessage:
		return string(b), nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("encode request body: %w", err)
		}
		return string(data), nil
	}
}

// normalizeBody validates JSON bodies and wraps anything else as {"raw": text}.
func normalizeBody(contentType string, raw []byte) ([]byte, error) {
	if strings.Contains(strings.ToLower(contentType), "application/json") {
		trimmed := bytes.TrimSpace(raw)
		if !json.Valid(trimmed) {
			return nil, ErrInvalidResponse
		}
		return trimmed, nil
	}

	wrapped, err := json.Marshal(map[string]string{"raw": string(raw)})
	if err != nil {
		return nil, errors.Join(ErrInvalidResponse, err)
	}
	return wrapped, nil
}
