package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/uninbox/authd/internal/data/pgxutil"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
)

const sessionSelect = `
	SELECT s.token, s.public_id, s.account_id, s.device, s.os, s.expires_at, s.created_at,
	       a.public_id AS account_public_id, a.username
	FROM sessions s
	JOIN accounts a ON a.id = s.account_id`

// sessionRow is the joined session + account row.
type sessionRow struct {
	Token           string    `db:"token"`
	PublicID        string    `db:"public_id"`
	AccountID       int64     `db:"account_id"`
	Device          string    `db:"device"`
	OS              string    `db:"os"`
	ExpiresAt       time.Time `db:"expires_at"`
	CreatedAt       time.Time `db:"created_at"`
	AccountPublicID string    `db:"account_public_id"`
	Username        string    `db:"username"`
}

func (r sessionRow) toDomain() domainauth.Session {
	return domainauth.Session{
		Token:     r.Token,
		PublicID:  r.PublicID,
		AccountID: r.AccountID,
		Device:    r.Device,
		OS:        r.OS,
		ExpiresAt: r.ExpiresAt.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
		Account: domainauth.SessionPayload{
			Version:   domainauth.SessionPayloadVersion,
			AccountID: r.AccountID,
			PublicID:  r.AccountPublicID,
			Username:  r.Username,
		},
	}
}

// SessionRepo is the PostgreSQL session store.
type SessionRepo struct {
	DB *sql.DB
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db}
}

// Insert stores a new session row.
func (r *SessionRepo) Insert(ctx context.Context, sess domainauth.Session) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO sessions (token, public_id, account_id, device, os, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.Token, sess.PublicID, sess.AccountID, sess.Device, sess.OS, sess.ExpiresAt, sess.CreatedAt,
	)
	return mapErr(err, "insert session")
}

// FindByToken returns the session joined with its account.
func (r *SessionRepo) FindByToken(ctx context.Context, token string) (*domainauth.Session, error) {
	var row sessionRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, sessionSelect+` WHERE s.token = $1`, token)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[sessionRow])
		return err
	})
	if err != nil {
		return nil, notFound(err, "find session", "session not found")
	}
	sess := row.toDomain()
	return &sess, nil
}

// ListByAccount returns every session of the account, newest first.
func (r *SessionRepo) ListByAccount(ctx context.Context, accountID int64) ([]domainauth.Session, error) {
	var list []sessionRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, sessionSelect+` WHERE s.account_id = $1 ORDER BY s.created_at DESC`, accountID)
		if err != nil {
			return err
		}
		list, err = pgx.CollectRows(rows, pgx.RowToStructByName[sessionRow])
		return err
	})
	if err != nil {
		return nil, mapErr(err, "list sessions")
	}
	out := make([]domainauth.Session, len(list))
	for i, row := range list {
		out[i] = row.toDomain()
	}
	return out, nil
}

// DeleteByToken reports whether a row was removed.
func (r *SessionRepo) DeleteByToken(ctx context.Context, token string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return false, mapErr(err, "delete session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err, "delete session")
	}
	return n > 0, nil
}

// DeleteByTokens bulk-deletes sessions and returns the number removed.
func (r *SessionRepo) DeleteByTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	var n int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE token = ANY($1)`, tokens)
		n = tag.RowsAffected()
		return err
	})
	if err != nil {
		return 0, mapErr(err, "delete sessions")
	}
	return n, nil
}

// UpdateExpiry reports whether the session existed.
func (r *SessionRepo) UpdateExpiry(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE sessions SET expires_at = $2 WHERE token = $1`, token, expiresAt)
	if err != nil {
		return false, mapErr(err, "update session expiry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err, "update session expiry")
	}
	return n > 0, nil
}

// DeleteExpired removes up to batchSize sessions that expired at or before
// now and returns their tokens. SKIP LOCKED lets concurrent sweepers split
// the work instead of blocking on each other.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var tokens []string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			DELETE FROM sessions
			WHERE token IN (
				SELECT token FROM sessions
				WHERE expires_at <= $1
				ORDER BY expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING token`, now, batchSize)
		if err != nil {
			return err
		}
		tokens, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, mapErr(err, "delete expired sessions")
	}
	return tokens, nil
}
