package apiclient

import (
	"fmt"
	"net/http"
)

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.Code == "UNAUTHORIZED" || e.Code == "FORBIDDEN" ||
		e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound returns true if this is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.Code == "NOT_FOUND" || e.StatusCode == http.StatusNotFound
}

// IsSessionExpired returns true if the server no longer knows the session.
func (e *APIError) IsSessionExpired() bool {
	return e.Code == "SESSION_EXPIRED"
}

// IsTimeout returns true if the server or a gateway gave up waiting.
func (e *APIError) IsTimeout() bool {
	return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusGatewayTimeout
}
