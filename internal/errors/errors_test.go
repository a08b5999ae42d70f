package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "resource not found"},
			want: "resource not found",
		},
		{
			name: "error with cause",
			err:  &AppError{Code: ErrCodeInternal, Message: "failed to process", Cause: errors.New("underlying error")},
			want: "failed to process: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_UnwrapThroughFmt(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("validate session: %w", StoreUnavailable(cause, "session cache unavailable"))

	assert.True(t, IsStoreUnavailable(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsNotFound(err))
}

func TestStoreUnavailable_NilCause(t *testing.T) {
	assert.Nil(t, StoreUnavailable(nil, "x"))
}

func TestAuthConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		code  ErrorCode
	}{
		{"not authenticated", NotAuthenticated("login required"), IsNotAuthenticated, ErrCodeNotAuthenticated},
		{"not authorized", NotAuthorized("forbidden"), IsNotAuthorized, ErrCodeNotAuthorized},
		{"verification invalid", VerificationInvalid("expired"), IsVerificationInvalid, ErrCodeVerificationInvalid},
		{"conflicting factor", ConflictingFactor("last factor"), IsConflictingFactor, ErrCodeConflictingFactor},
		{"conflict", Conflictf("dup %s", "x"), IsConflict, ErrCodeConflict},
		{"validation", ValidationField("password", "too short"), IsValidation, ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.check(tt.err))
			assert.Equal(t, tt.code, GetCode(tt.err))
		})
	}
	assert.Equal(t, "password", GetField(ValidationField("password", "too short")))
	assert.Empty(t, GetCode(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotAuthenticated("x"), http.StatusUnauthorized},
		{NotAuthorized("x"), http.StatusForbidden},
		{VerificationInvalid("x"), http.StatusForbidden},
		{ConflictingFactor("x"), http.StatusConflict},
		{Conflict("x"), http.StatusConflict},
		{Validation("x"), http.StatusBadRequest},
		{NotFound("x"), http.StatusNotFound},
		{StoreUnavailable(errors.New("down"), "x"), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
