package client

import "sync"

// Routes the client cares about when a session is invalidated.
const (
	RouteHome  = "/"
	RouteLogin = "/login"
)

// Navigator exposes the consumer's current location and lets the client
// force a hard navigation.
type Navigator interface {
	CurrentRoute() string
	Navigate(route string)
}

// RouteTracker is an in-memory Navigator for consumers without a router.
type RouteTracker struct {
	mu      sync.Mutex
	route   string
	history []string
}

// NewRouteTracker starts at route, or RouteHome when empty.
func NewRouteTracker(route string) *RouteTracker {
	if route == "" {
		route = RouteHome
	}
	return &RouteTracker{route: route}
}

func (r *RouteTracker) CurrentRoute() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.route
}

func (r *RouteTracker) Navigate(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, route)
	r.route = route
}

// History returns every route passed to Navigate, oldest first.
func (r *RouteTracker) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history...)
}
