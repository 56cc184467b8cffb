package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Error strings below are shown to end users verbatim and keep the
// backend's capitalization.
var (
	// ErrConnection wraps transport failures: the request never reached the
	// server or no response came back.
	ErrConnection = errors.New("Server connection failed")

	// ErrInvalidResponse is returned when a JSON-typed response body does not
	// parse.
	ErrInvalidResponse = errors.New("Invalid response format from server (expected JSON)")
)

// ErrorClass classifies a failed call.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses other than 401.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassAuth represents 401 responses and expired-token messages.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNetwork represents transport failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassFormat represents unparseable response bodies.
	ErrorClassFormat ErrorClass = "format"
)

// messageFields are looked up in order in an error body; the first
// non-empty string wins.
var messageFields = []string{"detail", "error", "message", "raw"}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Body       json.RawMessage
}

// Error returns the backend-provided message.
func (e *APIError) Error() string {
	return e.Message
}

// Unauthorized reports whether the error invalidates the session.
func (e *APIError) Unauthorized() bool {
	return e.ErrorClass == ErrorClassAuth
}

// IsUnauthorized reports whether err is an APIError that invalidated the
// session.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func newAPIError(status int, body json.RawMessage) *APIError {
	msg := errorMessage(body, status)
	return &APIError{
		StatusCode: status,
		ErrorClass: classifyStatus(status, msg),
		Message:    msg,
		Body:       body,
	}
}

// errorMessage picks the most specific message from an error body.
func errorMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		for _, field := range messageFields {
			r := gjson.GetBytes(body, field)
			if r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}

func classifyStatus(status int, msg string) ErrorClass {
	switch {
	case status == http.StatusUnauthorized, isExpiredToken(msg):
		return ErrorClassAuth
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

func isExpiredToken(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "token expired")
}
