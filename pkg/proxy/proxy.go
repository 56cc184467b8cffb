// Package proxy forwards /api/proxy?endpoint=<path> calls to the storefront
// backend for browsers that cannot call it cross-origin.
package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_proxy_requests_total",
		Help: "Total proxied requests by method and relayed status",
	}, []string{"method", "status"})

	proxyUpstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_proxy_upstream_duration_seconds",
		Help:    "Upstream round trip duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

const (
	HeaderRequestID    = "X-Request-ID"
	HeaderFaerionToken = "x-faerion-token"
	HeaderEmeriteToken = "x-emerite-token"
)

// CORS values sent on every response.
const (
	AllowOrigin  = "*"
	AllowMethods = "GET, POST, PUT, DELETE, PATCH, OPTIONS"
	AllowHeaders = "Content-Type, Authorization, X-Requested-With, x-faerion-token, x-emerite-token"
)

var errInvalidUpstreamJSON = errors.New("upstream returned invalid JSON")

// Handler is the proxy endpoint. It keeps no state between requests.
type Handler struct {
	upstream   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New returns a Handler forwarding to upstream + "/api/". A nil httpClient
// uses one with a 30s timeout.
func New(upstream string, httpClient *http.Client, logger zerolog.Logger) *Handler {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Handler{
		upstream:   strings.TrimRight(upstream, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		h.writeError(w, r.Method, http.StatusBadRequest, "Missing endpoint parameter")
		return
	}

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, requestID)

	target := h.Target(endpoint)
	logger := h.logger.With().
		Str("request_id", requestID).
		Str("method", r.Method).
		Str("endpoint", endpoint).
		Logger()

	status, body, err := h.forward(r, target, requestID)
	if err != nil {
		logger.Error().Err(err).Str("target", target).Msg("Proxy request failed")
		h.writeError(w, r.Method, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info().Int("status", status).Msg("Proxied request")
	proxyRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// Target returns the upstream URL for endpoint. One leading slash is
// dropped before joining.
func (h *Handler) Target(endpoint string) string {
	return h.upstream + "/api/" + strings.TrimPrefix(endpoint, "/")
}

func (h *Handler) forward(r *http.Request, target, requestID string) (int, []byte, error) {
	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("read request body: %w", err)
		}
		if len(data) > 0 {
			body = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if token := ExtractToken(r.Header); token != "" {
		req.Header.Set("Authorization", BearerValue(token))
	}

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	proxyUpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read upstream body: %w", err)
	}
	if !json.Valid(data) {
		return 0, nil, errInvalidUpstreamJSON
	}
	return resp.StatusCode, data, nil
}

func (h *Handler) writeError(w http.ResponseWriter, method string, status int, msg string) {
	proxyRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ExtractToken returns the first token found in x-faerion-token,
// x-emerite-token or Authorization.
func ExtractToken(h http.Header) string {
	for _, name := range []string{HeaderFaerionToken, HeaderEmeriteToken, "Authorization"} {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// BearerValue adds the "Bearer " prefix unless token already has it.
func BearerValue(token string) string {
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", AllowOrigin)
	h.Set("Access-Control-Allow-Methods", AllowMethods)
	h.Set("Access-Control-Allow-Headers", AllowHeaders)
}
