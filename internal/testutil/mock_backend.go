// Package testutil provides a scriptable storefront backend for tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse is a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is what the backend saw.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// MockBackend is an httptest server that records requests and dispatches
// them to per-route handlers keyed by "METHOD /path".
type MockBackend struct {
	server *httptest.Server

	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewMockBackend starts the server. Call Close when done.
func NewMockBackend() *MockBackend {
	m := &MockBackend{handlers: make(map[string]http.HandlerFunc)}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		handler, ok := m.handlers[r.Method+" "+r.URL.Path]
		if !ok {
			handler, ok = m.handlers["* "+r.URL.Path]
		}
		m.mu.Unlock()

		if ok {
			handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Not found"}`))
	}))

	return m
}

// URL returns the server origin.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Handle registers handler for method and path. Method "*" matches any.
func (m *MockBackend) Handle(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = handler
}

// Respond registers a canned response for method and path.
func (m *MockBackend) Respond(method, path string, resp MockResponse) {
	m.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// Requests returns a copy of every recorded request.
func (m *MockBackend) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// Count returns how many requests hit method and path.
func (m *MockBackend) Count(method, path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Last returns the most recent request, or false when none arrived.
func (m *MockBackend) Last() (RecordedRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Reset forgets recorded requests.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// JSON returns a 200 application/json response.
func JSON(body string) MockResponse {
	return JSONStatus(http.StatusOK, body)
}

// JSONStatus returns an application/json response with status.
func JSONStatus(status int, body string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// Text returns a text/plain response with status.
func Text(status int, body string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
	}
}
