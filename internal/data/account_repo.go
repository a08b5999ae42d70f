package data

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/uninbox/authd/internal/data/cryptoutil"
	"github.com/uninbox/authd/internal/data/pgxutil"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
)

const accountSelect = `SELECT id, public_id, username, last_login_at FROM accounts`

type accountRow struct {
	ID          int64      `db:"id"`
	PublicID    string     `db:"public_id"`
	Username    string     `db:"username"`
	LastLoginAt *time.Time `db:"last_login_at"`
}

func (r accountRow) toDomain() *domainauth.Account {
	return &domainauth.Account{
		ID:          r.ID,
		PublicID:    r.PublicID,
		Username:    r.Username,
		LastLoginAt: r.LastLoginAt,
	}
}

type credentialsRow struct {
	AccountID        int64  `db:"account_id"`
	PasswordHash     string `db:"password_hash"`
	TwoFactorSecret  string `db:"two_factor_secret"`
	TwoFactorEnabled bool   `db:"two_factor_enabled"`
	RecoveryCodeHash string `db:"recovery_code_hash"`
}

// AccountRepo is the PostgreSQL account store.
type AccountRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	secrets      secretCodec
}

// NewAccountRepo creates a new AccountRepo with real time provider.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// WithSecretEncryptor seals TOTP secrets at rest with enc. A nil enc stores them as given.
func (r *AccountRepo) WithSecretEncryptor(enc cryptoutil.Encryptor) *AccountRepo {
	r.secrets = secretCodec{enc: enc}
	return r
}

func (r *AccountRepo) findOne(ctx context.Context, where string, arg any) (*domainauth.Account, error) {
	var row accountRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, accountSelect+" WHERE "+where, arg)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[accountRow])
		return err
	})
	if err != nil {
		return nil, notFound(err, "find account", "account not found")
	}
	return row.toDomain(), nil
}

// FindByID returns the account with id.
func (r *AccountRepo) FindByID(ctx context.Context, id int64) (*domainauth.Account, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByUsername matches usernames case-insensitively.
func (r *AccountRepo) FindByUsername(ctx context.Context, username string) (*domainauth.Account, error) {
	return r.findOne(ctx, "lower(username) = lower($1)", strings.TrimSpace(username))
}

// FindByPublicID returns the account with publicID.
func (r *AccountRepo) FindByPublicID(ctx context.Context, publicID string) (*domainauth.Account, error) {
	return r.findOne(ctx, "public_id = $1", publicID)
}

// Create inserts an account. passwordHash may be empty for passkey-only accounts.
func (r *AccountRepo) Create(ctx context.Context, username, passwordHash string) (*domainauth.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperrors.ValidationField("username", "username is required")
	}

	var row accountRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO accounts (public_id, username, password_hash, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, public_id, username, last_login_at`,
			uuid.NewString(), username, passwordHash, r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[accountRow])
		return err
	})
	if err != nil {
		mapped := mapErr(err, "create account")
		if apperrors.IsConflict(mapped) {
			return nil, &apperrors.AppError{
				Code:    apperrors.ErrCodeConflict,
				Message: "This username is already taken.",
				Field:   "username",
				Cause:   err,
			}
		}
		return nil, mapped
	}
	return row.toDomain(), nil
}

// FindCredentials returns the secrets attached to the account.
func (r *AccountRepo) FindCredentials(ctx context.Context, accountID int64) (*domainauth.Credentials, error) {
	var row credentialsRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id AS account_id, password_hash, two_factor_secret, two_factor_enabled, recovery_code_hash
			FROM accounts WHERE id = $1`, accountID)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[credentialsRow])
		return err
	})
	if err != nil {
		return nil, notFound(err, "find credentials", "account not found")
	}
	secret, err := r.secrets.open(row.TwoFactorSecret)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "find credentials")
	}
	return &domainauth.Credentials{
		AccountID:        row.AccountID,
		PasswordHash:     row.PasswordHash,
		TwoFactorSecret:  secret,
		TwoFactorEnabled: row.TwoFactorEnabled,
		RecoveryCodeHash: row.RecoveryCodeHash,
	}, nil
}

// UpdateCredentials applies a partial update. Nil fields keep their value.
func (r *AccountRepo) UpdateCredentials(ctx context.Context, accountID int64, u domainauth.CredentialsUpdate) error {
	if u.IsEmpty() {
		return nil
	}
	if u.TwoFactorSecret != nil {
		sealed, err := r.secrets.seal(*u.TwoFactorSecret)
		if err != nil {
			return apperrors.StoreUnavailable(err, "update credentials")
		}
		u.TwoFactorSecret = &sealed
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE accounts SET
			password_hash      = COALESCE($2, password_hash),
			two_factor_secret  = COALESCE($3, two_factor_secret),
			two_factor_enabled = COALESCE($4, two_factor_enabled),
			recovery_code_hash = COALESCE($5, recovery_code_hash),
			last_login_at      = COALESCE($6, last_login_at)
		WHERE id = $1`,
		accountID, u.PasswordHash, u.TwoFactorSecret, u.TwoFactorEnabled, u.RecoveryCodeHash, u.LastLoginAt,
	)
	if err != nil {
		return mapErr(err, "update credentials")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err, "update credentials")
	}
	if n == 0 {
		return apperrors.NotFound("account not found")
	}
	return nil
}

// SpendRecoveryCode clears the recovery code hash only while it still holds
// hash, so one code signs in at most once.
func (r *AccountRepo) SpendRecoveryCode(ctx context.Context, accountID int64, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE accounts SET recovery_code_hash = '' WHERE id = $1 AND recovery_code_hash = $2`,
		accountID, hash)
	if err != nil {
		return false, mapErr(err, "spend recovery code")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err, "spend recovery code")
	}
	return n > 0, nil
}
