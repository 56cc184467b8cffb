package client

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		expected string
	}{
		{"detail", `{"detail":"d","error":"e"}`, 400, "d"},
		{"error", `{"error":"e","message":"m"}`, 400, "e"},
		{"message", `{"message":"m","raw":"r"}`, 400, "m"},
		{"raw", `{"raw":"r"}`, 400, "r"},
		{"non string detail skipped", `{"detail":[{"loc":"body"}],"message":"m"}`, 422, "m"},
		{"nothing usable", `{"code":7}`, 503, "HTTP 503"},
		{"not json", `oops`, 500, "HTTP 500"},
		{"empty", ``, 401, "HTTP 401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errorMessage([]byte(tt.body), tt.status))
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		msg      string
		expected ErrorClass
	}{
		{401, "HTTP 401", ErrorClassAuth},
		{403, "token expired", ErrorClassAuth},
		{500, "Access TOKEN EXPIRED, please log in", ErrorClassAuth},
		{403, "Forbidden", ErrorClassClient},
		{404, "HTTP 404", ErrorClassClient},
		{500, "HTTP 500", ErrorClassServer},
		{503, "maintenance", ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %s", tt.status, tt.msg), func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyStatus(tt.status, tt.msg))
		})
	}
}

func TestAPIError_Wrapped(t *testing.T) {
	err := fmt.Errorf("load orders: %w", newAPIError(401, []byte(`{"detail":"expired"}`)))

	assert.True(t, IsUnauthorized(err), "IsUnauthorized should see through wrapping")
	assert.Equal(t, 401, StatusCode(err))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
	assert.False(t, IsUnauthorized(nil))
}

func TestRouteTracker(t *testing.T) {
	r := NewRouteTracker("")
	assert.Equal(t, RouteHome, r.CurrentRoute())

	r.Navigate("/admin")
	r.Navigate(RouteHome)

	h := r.History()
	assert.Equal(t, []string{"/admin", RouteHome}, h)
	h[0] = "mutated"
	assert.Equal(t, "/admin", r.History()[0], "History must return a copy")
}
