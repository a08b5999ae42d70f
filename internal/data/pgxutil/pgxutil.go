// Package pgxutil bridges database/sql pools to native pgx connections so
// repositories can use pgx row scanning and transactions on a shared *sql.DB.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// TxConfig groups parameters for WithPgxTx.
type TxConfig struct {
	// Opts selects isolation and access mode; nil uses the server defaults.
	Opts *sql.TxOptions
	Fn   func(pgx.Tx) error
}

// txOptions converts sql.TxOptions to pgx.TxOptions.
func txOptions(opts *sql.TxOptions) pgx.TxOptions {
	var out pgx.TxOptions
	if opts == nil {
		return out
	}
	switch opts.Isolation {
	case sql.LevelSerializable, sql.LevelLinearizable:
		out.IsoLevel = pgx.Serializable
	case sql.LevelRepeatableRead, sql.LevelSnapshot:
		out.IsoLevel = pgx.RepeatableRead
	case sql.LevelReadCommitted, sql.LevelWriteCommitted:
		out.IsoLevel = pgx.ReadCommitted
	case sql.LevelReadUncommitted:
		out.IsoLevel = pgx.ReadUncommitted
	}
	if opts.ReadOnly {
		out.AccessMode = pgx.ReadOnly
	}
	return out
}

// WithPgxConn acquires a *pgx.Conn via the stdlib bridge and executes fn with it.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		return fn(std.Conn())
	})
}

// WithPgxTx runs cfg.Fn inside a pgx transaction. The transaction commits
// when Fn returns nil and rolls back otherwise; Fn's error is returned as is.
func WithPgxTx(ctx context.Context, db *sql.DB, cfg TxConfig) error {
	return WithPgxConn(ctx, db, func(pgxConn *pgx.Conn) error {
		tx, err := pgxConn.BeginTx(ctx, txOptions(cfg.Opts))
		if err != nil {
			return fmt.Errorf("begin pgx tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := cfg.Fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit pgx tx: %w", err)
		}
		return nil
	})
}
