package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapDBError_NilError(t *testing.T) {
	assert.NoError(t, MapDBError(nil))
}

func TestMapDBError_ContextErrors(t *testing.T) {
	assert.True(t, IsTimeout(MapDBError(fmt.Errorf("q: %w", context.DeadlineExceeded))))
	assert.True(t, IsCanceled(MapDBError(context.Canceled)))
}

func TestMapDBError_NoRows(t *testing.T) {
	err := MapDBError(pgx.ErrNoRows)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name:      "column name metadata",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "token"},
			wantField: "token",
		},
		{
			name: "detail parsing",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: "Key (credential_id)=(abc) already exists.",
			},
			wantField: "credential_id",
		},
		{
			name:      "constraint inference",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "orgs_shortcode_key"},
			wantField: "shortcode",
		},
		{
			name:      "ambiguous constraint",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "org_members_org_id_account_id_key"},
			wantField: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			assert.True(t, IsConflict(err))
			assert.Equal(t, tt.wantField, GetField(err))
		})
	}
}

func TestMapDBError_ForeignKeyViolation(t *testing.T) {
	err := MapDBError(&pgconn.PgError{
		Code:   pgerrcode.ForeignKeyViolation,
		Detail: `Key (id)=(1) is still referenced from table "authenticators".`,
	})
	assert.True(t, IsForeignKey(err))
	assert.Contains(t, err.Error(), "Passkey")

	err = MapDBError(&pgconn.PgError{
		Code:   pgerrcode.ForeignKeyViolation,
		Detail: `Key (account_id)=(9) is not present in table "accounts".`,
	})
	assert.Contains(t, err.Error(), "referenced Account does not exist")
}

func TestMapDBError_Validation(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "token"})
	assert.True(t, IsValidation(err))
	assert.Equal(t, "token", GetField(err))

	err = MapDBError(&pgconn.PgError{Code: pgerrcode.CheckViolation})
	assert.True(t, IsValidation(err))
	assert.Empty(t, GetField(err))
}

func TestMapDBError_Unavailable(t *testing.T) {
	assert.True(t, IsStoreUnavailable(MapDBError(&pgconn.PgError{Code: pgerrcode.AdminShutdown})))
	assert.True(t, IsStoreUnavailable(MapDBError(&pgconn.PgError{Code: pgerrcode.ConnectionFailure})))
}

func TestMapDBError_UnknownAndPlain(t *testing.T) {
	assert.True(t, IsInternal(MapDBError(&pgconn.PgError{Code: pgerrcode.DivisionByZero})))

	plain := errors.New("plain")
	assert.Equal(t, plain, MapDBError(plain))
}

func TestMapTableToDomain(t *testing.T) {
	assert.Equal(t, "Organization member", mapTableToDomain("org_members"))
	assert.Equal(t, "Audit Log", mapTableToDomain("audit_log"))
}
