package errors

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// reKeyField extracts the column from "Key (field)=(value) already exists.".
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// reReferencedFrom detects parent deletion: "... is still referenced from table ...".
	reReferencedFrom = regexp.MustCompile(`is still referenced from table "?([^"]+)"?`)
	// reNotPresent detects a missing parent: "... is not present in table ...".
	reNotPresent = regexp.MustCompile(`is not present in table "?([^"]+)"?`)
)

// tableDomains maps tables to the names shown in user-facing messages.
var tableDomains = map[string]string{
	"accounts":       "Account",
	"sessions":       "Session",
	"authenticators": "Passkey",
	"orgs":           "Organization",
	"org_members":    "Organization member",
}

// MapDBError maps database errors to AppError instances:
//   - pgx.ErrNoRows → NotFound
//   - unique violations (token, credential id, shortcode) → Conflict
//   - foreign key violations → ForeignKey
//   - check / NOT NULL violations → Validation
//   - connection failures and Postgres availability classes → StoreUnavailable
//   - context deadline / cancellation → Timeout / Canceled
//
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "Request timed out. Please try again.", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: err}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	if isConnectionError(err) {
		return StoreUnavailable(err, "database unavailable")
	}
	return err
}

func isConnectionError(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return mapUniqueViolation(pgErr)
	case pgErr.Code == pgerrcode.ForeignKeyViolation:
		return mapForeignKeyViolation(pgErr)
	case pgErr.Code == pgerrcode.CheckViolation:
		return validationFromColumn(pgErr, "This field has an invalid value.", "Invalid data. Please check your input.")
	case pgErr.Code == pgerrcode.NotNullViolation:
		return validationFromColumn(pgErr, "This field is required.", "Required field is missing. Please check your input.")
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code),
		pgErr.Code == pgerrcode.AdminShutdown,
		pgErr.Code == pgerrcode.CannotConnectNow:
		return StoreUnavailable(pgErr, "database unavailable")
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "A database error occurred. Please try again.",
			Cause:   pgErr,
		}
	}
}

func mapUniqueViolation(pgErr *pgconn.PgError) error {
	field := pgErr.ColumnName
	if field == "" && pgErr.Detail != "" {
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			field = m[1]
		}
	}
	if field == "" {
		field = inferFieldFromConstraint(pgErr.ConstraintName)
	}
	return &AppError{
		Code:    ErrCodeConflict,
		Message: "This value already exists. Please choose a different one.",
		Field:   field,
		Cause:   pgErr,
	}
}

func mapForeignKeyViolation(pgErr *pgconn.PgError) error {
	var message string
	if m := reReferencedFrom.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		message = "Cannot delete because this item is in use by " + mapTableToDomain(m[1]) + "."
	} else if m := reNotPresent.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		message = "Cannot complete operation because the referenced " + mapTableToDomain(m[1]) + " does not exist."
	}
	if message == "" && pgErr.TableName != "" {
		message = "Cannot complete operation because this item is in use by " + mapTableToDomain(pgErr.TableName) + "."
	}
	if message == "" {
		message = "Cannot complete operation because this item is in use."
	}
	return &AppError{Code: ErrCodeForeignKey, Message: message, Cause: pgErr}
}

func validationFromColumn(pgErr *pgconn.PgError, fieldMsg, genericMsg string) error {
	if pgErr.ColumnName != "" {
		return &AppError{Code: ErrCodeValidation, Message: fieldMsg, Field: pgErr.ColumnName, Cause: pgErr}
	}
	return &AppError{Code: ErrCodeValidation, Message: genericMsg, Cause: pgErr}
}

// inferFieldFromConstraint infers a column from constraint names shaped like
// "table_field_key". Multi-column and expression constraints yield "".
func inferFieldFromConstraint(constraintName string) string {
	parts := strings.Split(constraintName, "_")
	if len(parts) != 3 {
		return ""
	}
	switch candidate := parts[1]; candidate {
	case "lower", "upper", "trim", "md5":
		return ""
	default:
		return candidate
	}
}

func mapTableToDomain(tableName string) string {
	tableName = strings.ToLower(strings.TrimSpace(tableName))
	if name, ok := tableDomains[tableName]; ok {
		return name
	}
	words := strings.Split(strings.ReplaceAll(tableName, "_", " "), " ")
	for i, w := range words {
		if w != "" && w[0] >= 'a' && w[0] <= 'z' {
			words[i] = string(w[0]-32) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
