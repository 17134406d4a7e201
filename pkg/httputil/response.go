package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/guildboard/guildboard/pkg/identity"
	"github.com/guildboard/guildboard/pkg/ratelimit"
)

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Error string `json:"error"`
	// Code is a stable machine-readable code when one exists, e.g. the
	// identity error codes
	Code string `json:"code,omitempty"`
	// RetryAfterSeconds accompanies rate limit rejections
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 response with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a 204 response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteBadRequest writes a 400 error
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes a 401 error
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a 403 error
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a 404 error
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 error without leaking the cause
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// WriteAuthError maps a normalized identity error onto an HTTP status,
// preserving the stable code for API clients
func WriteAuthError(w http.ResponseWriter, err *identity.AuthError) {
	status := http.StatusUnauthorized
	switch err.Code {
	case identity.CodeUserExists:
		status = http.StatusConflict
	case identity.CodeWeakPassword:
		status = http.StatusBadRequest
	case identity.CodeProviderUnreachable:
		status = http.StatusServiceUnavailable
	case identity.CodeProviderError:
		status = http.StatusBadGateway
	}
	WriteJSON(w, status, ErrorResponse{Error: err.Message, Code: err.Code})
}

// WriteRateLimited writes a 429 with the Retry-After header and a payload
// countdown so clients can render "try again in N minutes"
func WriteRateLimited(w http.ResponseWriter, err *ratelimit.LimitError) {
	seconds := int(err.RetryAfter.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:             err.Error(),
		Code:              "rate_limited",
		RetryAfterSeconds: seconds,
	})
}
