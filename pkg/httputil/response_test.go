package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildboard/guildboard/pkg/identity"
	"github.com/guildboard/guildboard/pkg/ratelimit"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteAuthErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{identity.CodeInvalidCredentials, http.StatusUnauthorized},
		{identity.CodeEmailNotConfirmed, http.StatusUnauthorized},
		{identity.CodeUserExists, http.StatusConflict},
		{identity.CodeWeakPassword, http.StatusBadRequest},
		{identity.CodeProviderUnreachable, http.StatusServiceUnavailable},
		{identity.CodeProviderError, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteAuthError(rec, &identity.AuthError{Code: tt.code, Message: "nope"})

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code, "the stable code must survive to the client")
			assert.Equal(t, "nope", resp.Error)
		})
	}
}

func TestWriteRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRateLimited(rec, &ratelimit.LimitError{RetryAfter: 90 * time.Second})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	resp := decodeError(t, rec)
	assert.Equal(t, 90, resp.RetryAfterSeconds)
	assert.Equal(t, "rate_limited", resp.Code)
}

func TestWriteRateLimitedRoundsUpToOneSecond(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRateLimited(rec, &ratelimit.LimitError{RetryAfter: 100 * time.Millisecond})

	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWriteInternalErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteInternalError(rec)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "internal server error", resp.Error)
}
