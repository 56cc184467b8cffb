package cache

import (
	"net/http"
	"strings"
)

// Key identifies a request for caching and de-duplication.
type Key struct {
	// Method is the HTTP method, upper case.
	Method string

	// URL is the fully qualified request URL including query string.
	URL string

	// Body is the serialized request body, empty when there is none.
	Body string
}

// String renders the key as METHOD:URL:BODY.
//
// Example:
//
//	GET:https://api.emerite.store/api/licenses:
func (k Key) String() string {
	return strings.ToUpper(k.Method) + ":" + k.URL + ":" + k.Body
}

// Cacheable reports whether results for this key may be stored.
func (k Key) Cacheable() bool {
	return strings.EqualFold(k.Method, http.MethodGet)
}

// IsMutating reports whether method invalidates cached reads.
func IsMutating(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
