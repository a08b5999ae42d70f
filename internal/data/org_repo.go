package data

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/uninbox/authd/internal/data/pgxutil"
	"github.com/uninbox/authd/internal/domain/org"
	apperrors "github.com/uninbox/authd/internal/errors"
)

const (
	orgSelect    = `SELECT id, public_id, shortcode, name, created_at FROM orgs`
	memberFields = `id, account_id, role, status`
)

// OrgRepo is the PostgreSQL store for organizations and memberships.
type OrgRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewOrgRepo creates a new OrgRepo with real time provider.
func NewOrgRepo(db *sql.DB) *OrgRepo {
	return &OrgRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

func (r *OrgRepo) findOne(ctx context.Context, where string, arg any) (*org.Org, error) {
	var out org.Org
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, orgSelect+" WHERE "+where, arg)
		if err != nil {
			return err
		}
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[org.Org])
		return err
	})
	if err != nil {
		return nil, notFound(err, "find organization", "organization not found")
	}
	return &out, nil
}

// FindByShortcode returns the organization with shortcode.
func (r *OrgRepo) FindByShortcode(ctx context.Context, shortcode string) (*org.Org, error) {
	return r.findOne(ctx, "shortcode = $1", shortcode)
}

// FindByID returns the organization with id.
func (r *OrgRepo) FindByID(ctx context.Context, id int64) (*org.Org, error) {
	return r.findOne(ctx, "id = $1", id)
}

// ListMembers returns every membership row of the organization ordered by id.
func (r *OrgRepo) ListMembers(ctx context.Context, orgID int64) ([]org.Member, error) {
	var members []org.Member
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+memberFields+` FROM org_members WHERE org_id = $1 ORDER BY id`, orgID)
		if err != nil {
			return err
		}
		members, err = pgx.CollectRows(rows, pgx.RowToStructByName[org.Member])
		return err
	})
	if err != nil {
		return nil, mapErr(err, "list members")
	}
	return members, nil
}

// CreateWithAdmin inserts an organization and its first active admin in one
// transaction. A taken shortcode is a Conflict and nothing is written.
func (r *OrgRepo) CreateWithAdmin(ctx context.Context, shortcode, name string, adminID int64) (*org.Org, *org.Member, error) {
	var (
		o org.Org
		m org.Member
	)
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			INSERT INTO orgs (public_id, shortcode, name, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, public_id, shortcode, name, created_at`,
			uuid.NewString(), shortcode, name, r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return err
		}
		o, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[org.Org])
		if err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `
			INSERT INTO org_members (org_id, account_id, role, status)
			VALUES ($1, $2, $3, $4)
			RETURNING `+memberFields,
			o.ID, adminID, string(org.RoleAdmin), string(org.StatusActive),
		)
		if err != nil {
			return err
		}
		m, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[org.Member])
		return err
	}})
	if err != nil {
		return nil, nil, mapErr(err, "create organization")
	}
	return &o, &m, nil
}

// AddMember inserts a membership or re-activates a removed one. An existing
// invited or active row is a Conflict.
func (r *OrgRepo) AddMember(
	ctx context.Context,
	orgID, accountID int64,
	role org.Role,
	status org.MemberStatus,
) (*org.Member, error) {
	var out org.Member
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO org_members (org_id, account_id, role, status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (org_id, account_id) DO UPDATE
				SET role = EXCLUDED.role, status = EXCLUDED.status, updated_at = now()
				WHERE org_members.status = 'removed'
			RETURNING `+memberFields,
			orgID, accountID, string(role), string(status),
		)
		if err != nil {
			return err
		}
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[org.Member])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Conflict("account is already a member")
	}
	if err != nil {
		return nil, mapErr(err, "add member")
	}
	return &out, nil
}

func (r *OrgRepo) execAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, mapErr(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err, op)
	}
	return n > 0, nil
}

type lockedMember struct {
	OrgID int64 `db:"org_id"`
	org.Member
}

var errLastAdmin = apperrors.Conflict("an organization needs at least one admin")

// guardedMemberUpdate locks the member's organization row, hands the member
// to apply and commits what apply wrote. Writes that could drop the last
// admin go through here so they serialize per organization.
func (r *OrgRepo) guardedMemberUpdate(
	ctx context.Context,
	op string,
	memberID int64,
	apply func(tx pgx.Tx, m lockedMember) (bool, error),
) (bool, error) {
	var changed bool
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT m.org_id, m.id, m.account_id, m.role, m.status
			FROM org_members m JOIN orgs o ON o.id = m.org_id
			WHERE m.id = $1
			FOR UPDATE OF o, m`, memberID)
		if err != nil {
			return err
		}
		m, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[lockedMember])
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		changed, err = apply(tx, m)
		return err
	}})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return false, err
		}
		return false, mapErr(err, op)
	}
	return changed, nil
}

// otherActiveAdmins counts active admins of orgID besides memberID. The
// caller must hold the organization lock.
func otherActiveAdmins(ctx context.Context, tx pgx.Tx, orgID, memberID int64) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM org_members
		WHERE org_id = $1 AND id <> $2 AND role = 'admin' AND status = 'active'`,
		orgID, memberID).Scan(&n)
	return n, err
}

// UpdateMemberStatus moves a member from one status to another. The status
// predicate makes concurrent transitions race in the database; at most one
// reports true. Removing the last active admin is a Conflict.
func (r *OrgRepo) UpdateMemberStatus(ctx context.Context, memberID int64, from, to org.MemberStatus) (bool, error) {
	if to != org.StatusRemoved {
		return r.execAffected(ctx, "update member status",
			`UPDATE org_members SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
			memberID, string(from), string(to))
	}
	return r.guardedMemberUpdate(ctx, "remove member", memberID, func(tx pgx.Tx, m lockedMember) (bool, error) {
		if m.Status != from {
			return false, nil
		}
		if m.IsActiveAdmin() {
			others, err := otherActiveAdmins(ctx, tx, m.OrgID, m.ID)
			if err != nil {
				return false, err
			}
			if others == 0 {
				return false, errLastAdmin
			}
		}
		_, err := tx.Exec(ctx, `UPDATE org_members SET status = $2, updated_at = now() WHERE id = $1`, m.ID, string(to))
		return err == nil, err
	})
}

// UpdateMemberRole sets a member's role. Demoting the last active admin is a
// Conflict; the check and the write share the organization lock.
func (r *OrgRepo) UpdateMemberRole(ctx context.Context, memberID int64, role org.Role) (bool, error) {
	return r.guardedMemberUpdate(ctx, "update member role", memberID, func(tx pgx.Tx, m lockedMember) (bool, error) {
		if m.Status == org.StatusRemoved {
			return false, nil
		}
		if m.IsActiveAdmin() && role != org.RoleAdmin {
			others, err := otherActiveAdmins(ctx, tx, m.OrgID, m.ID)
			if err != nil {
				return false, err
			}
			if others == 0 {
				return false, errLastAdmin
			}
		}
		_, err := tx.Exec(ctx, `UPDATE org_members SET role = $2, updated_at = now() WHERE id = $1`, m.ID, string(role))
		return err == nil, err
	})
}

// UpdateShortcode renames the organization.
func (r *OrgRepo) UpdateShortcode(ctx context.Context, orgID int64, shortcode string) error {
	found, err := r.execAffected(ctx, "rename organization",
		`UPDATE orgs SET shortcode = $2 WHERE id = $1`, orgID, shortcode)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.NotFound("organization not found")
	}
	return nil
}
