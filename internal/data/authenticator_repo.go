package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/uninbox/authd/internal/data/pgxutil"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
)

const authenticatorColumns = `id, account_id, credential_id, public_key, counter, device_type, backed_up, transports, nickname, created_at`

type authenticatorRow struct {
	ID           int64     `db:"id"`
	AccountID    int64     `db:"account_id"`
	CredentialID string    `db:"credential_id"`
	PublicKey    []byte    `db:"public_key"`
	Counter      int64     `db:"counter"`
	DeviceType   string    `db:"device_type"`
	BackedUp     bool      `db:"backed_up"`
	Transports   []string  `db:"transports"`
	Nickname     string    `db:"nickname"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r authenticatorRow) toDomain() domainauth.Authenticator {
	return domainauth.Authenticator{
		ID:           r.ID,
		AccountID:    r.AccountID,
		CredentialID: r.CredentialID,
		PublicKey:    r.PublicKey,
		Counter:      uint32(r.Counter), // #nosec G115 - column holds uint32 values written by this repo
		DeviceType:   domainauth.DeviceType(r.DeviceType),
		BackedUp:     r.BackedUp,
		Transports:   r.Transports,
		Nickname:     r.Nickname,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

// AuthenticatorRepo is the PostgreSQL passkey store.
type AuthenticatorRepo struct {
	DB *sql.DB
}

// NewAuthenticatorRepo creates a new AuthenticatorRepo.
func NewAuthenticatorRepo(db *sql.DB) *AuthenticatorRepo {
	return &AuthenticatorRepo{DB: db}
}

func (r *AuthenticatorRepo) query(ctx context.Context, sqlText string, args ...any) ([]authenticatorRow, error) {
	var list []authenticatorRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		list, err = pgx.CollectRows(rows, pgx.RowToStructByName[authenticatorRow])
		return err
	})
	return list, err
}

// Insert stores a passkey. A duplicate credential id is a Conflict.
func (r *AuthenticatorRepo) Insert(ctx context.Context, a domainauth.Authenticator) (*domainauth.Authenticator, error) {
	transports := a.Transports
	if transports == nil {
		transports = []string{}
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	list, err := r.query(ctx, `
		INSERT INTO authenticators (account_id, credential_id, public_key, counter, device_type, backed_up, transports, nickname, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+authenticatorColumns,
		a.AccountID, a.CredentialID, a.PublicKey, int64(a.Counter), string(a.DeviceType), a.BackedUp, transports, a.Nickname, createdAt,
	)
	if err != nil {
		return nil, mapErr(err, "insert authenticator")
	}
	if len(list) != 1 {
		return nil, apperrors.Internal("insert authenticator returned no row")
	}
	out := list[0].toDomain()
	return &out, nil
}

// FindByCredentialID returns the passkey with the given credential id.
func (r *AuthenticatorRepo) FindByCredentialID(ctx context.Context, credentialID string) (*domainauth.Authenticator, error) {
	list, err := r.query(ctx, `SELECT `+authenticatorColumns+` FROM authenticators WHERE credential_id = $1`, credentialID)
	if err != nil {
		return nil, mapErr(err, "find authenticator")
	}
	if len(list) == 0 {
		return nil, apperrors.NotFound("authenticator not found")
	}
	out := list[0].toDomain()
	return &out, nil
}

// ListByAccount returns the account's passkeys, oldest first.
func (r *AuthenticatorRepo) ListByAccount(ctx context.Context, accountID int64) ([]domainauth.Authenticator, error) {
	list, err := r.query(ctx, `SELECT `+authenticatorColumns+` FROM authenticators WHERE account_id = $1 ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, mapErr(err, "list authenticators")
	}
	out := make([]domainauth.Authenticator, len(list))
	for i, row := range list {
		out[i] = row.toDomain()
	}
	return out, nil
}

// UpdateCounter raises the stored signature counter. The write only lands when
// it moves the counter forward, so concurrent assertions cannot lower it.
func (r *AuthenticatorRepo) UpdateCounter(ctx context.Context, credentialID string, counter uint32) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE authenticators SET counter = $2 WHERE credential_id = $1 AND counter < $2`,
		credentialID, int64(counter))
	if err != nil {
		return false, mapErr(err, "update authenticator counter")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err, "update authenticator counter")
	}
	return n > 0, nil
}

// Delete removes the passkey only when it belongs to accountID.
func (r *AuthenticatorRepo) Delete(ctx context.Context, accountID int64, credentialID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM authenticators WHERE account_id = $1 AND credential_id = $2`, accountID, credentialID)
	if err != nil {
		return false, mapErr(err, "delete authenticator")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err, "delete authenticator")
	}
	return n > 0, nil
}
