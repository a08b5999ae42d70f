package data

import (
	"errors"
	"fmt"

	apperrors "github.com/uninbox/authd/internal/errors"
)

// mapErr translates a database error for op. Recognized Postgres conditions
// keep their AppError code; anything else is reported as the store being
// unavailable so callers never mistake it for "not found".
func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	mapped := apperrors.MapDBError(err)
	var appErr *apperrors.AppError
	if errors.As(mapped, &appErr) {
		return fmt.Errorf("%s: %w", op, mapped)
	}
	return apperrors.StoreUnavailable(err, op)
}

// notFound maps pgx.ErrNoRows to a NotFound with a domain message and any
// other error through mapErr.
func notFound(err error, op, message string) error {
	if err == nil {
		return nil
	}
	mapped := mapErr(err, op)
	if apperrors.IsNotFound(mapped) {
		return apperrors.NotFound(message)
	}
	return mapped
}
