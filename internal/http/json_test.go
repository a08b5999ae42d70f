package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/uninbox/authd/internal/errors"
)

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantField   string
	}{
		{
			name:        "validation keeps field",
			err:         fmt.Errorf("register: %w", apperrors.ValidationField("username", "username is required")),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "validation",
			wantMessage: "username is required",
			wantField:   "username",
		},
		{
			name:        "verification invalid",
			err:         apperrors.VerificationInvalid("verification token is invalid or has expired"),
			wantStatus:  http.StatusForbidden,
			wantCode:    "verification_invalid",
			wantMessage: "verification token is invalid or has expired",
		},
		{
			name:        "store unavailable hides cause",
			err:         apperrors.StoreUnavailable(errors.New("dial tcp 10.0.0.1:6379"), "cache get"),
			wantStatus:  http.StatusServiceUnavailable,
			wantCode:    "store_unavailable",
			wantMessage: "Service Unavailable",
		},
		{
			name:        "plain error is internal",
			err:         errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal",
			wantMessage: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, tt.wantMessage, body.Message)
			assert.Equal(t, tt.wantField, body.Field)
		})
	}
}

func TestDeviceFromRequest(t *testing.T) {
	tests := []struct {
		ua, device, os string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/126.0 Safari/537.36 Edg/126.0", "Edge", "Windows"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 Version/17.5 Safari/605.1.15", "Safari", "macOS"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) CriOS/126.0 Mobile Safari/604.1", "Chrome", "iOS"},
		{"Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 Chrome/126.0 Mobile Safari/537.36", "Chrome", "Android"},
		{"curl/8.5.0", "Unknown", "Unknown"},
		{"", "Unknown", "Unknown"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("User-Agent", tt.ua)
		d := deviceFromRequest(r)
		assert.Equal(t, tt.device, d.Device, tt.ua)
		assert.Equal(t, tt.os, d.OS, tt.ua)
	}
}
