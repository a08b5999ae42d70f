package core

import (
	"context"
	"time"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/domain/org"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.
//
// Lookups that find nothing return an errors.ErrCodeNotFound AppError; infrastructure
// failures return errors.ErrCodeStoreUnavailable. Callers must never treat the latter
// as "not found".

// SessionRepository is the durable session store.
type SessionRepository interface {
	Insert(ctx context.Context, sess domainauth.Session) error

	// FindByToken joins the session with its account and returns the full
	// session, including the account snapshot. Expired rows are returned as-is;
	// expiry is the caller's decision.
	FindByToken(ctx context.Context, token string) (*domainauth.Session, error)

	// ListByAccount returns every session of the account, newest first.
	ListByAccount(ctx context.Context, accountID int64) ([]domainauth.Session, error)

	// DeleteByToken reports whether a row was removed.
	DeleteByToken(ctx context.Context, token string) (bool, error)

	// DeleteByTokens bulk-deletes and returns the number of rows removed.
	DeleteByTokens(ctx context.Context, tokens []string) (int64, error)

	// UpdateExpiry reports whether the session existed.
	UpdateExpiry(ctx context.Context, token string, expiresAt time.Time) (bool, error)

	// DeleteExpired removes up to batchSize sessions that expired before now
	// and returns their tokens so mirrored cache entries can be dropped.
	DeleteExpired(ctx context.Context, now time.Time, batchSize int) ([]string, error)
}

// AccountRepository reads and updates accounts and their credentials.
type AccountRepository interface {
	FindByID(ctx context.Context, id int64) (*domainauth.Account, error)
	FindByUsername(ctx context.Context, username string) (*domainauth.Account, error)
	FindByPublicID(ctx context.Context, publicID string) (*domainauth.Account, error)

	// Create inserts an account with an optional password hash (empty means none).
	Create(ctx context.Context, username, passwordHash string) (*domainauth.Account, error)

	FindCredentials(ctx context.Context, accountID int64) (*domainauth.Credentials, error)
	UpdateCredentials(ctx context.Context, accountID int64, update domainauth.CredentialsUpdate) error

	// SpendRecoveryCode clears the recovery code only while it still equals
	// hash. Of several concurrent spends at most one reports true.
	SpendRecoveryCode(ctx context.Context, accountID int64, hash string) (bool, error)
}

// AuthenticatorRepository persists registered passkeys.
type AuthenticatorRepository interface {
	// Insert fails with a Conflict AppError when the credential id already exists.
	Insert(ctx context.Context, a domainauth.Authenticator) (*domainauth.Authenticator, error)
	FindByCredentialID(ctx context.Context, credentialID string) (*domainauth.Authenticator, error)
	ListByAccount(ctx context.Context, accountID int64) ([]domainauth.Authenticator, error)

	// UpdateCounter raises the stored counter to counter. It reports false when
	// the stored value is already equal or higher, or the credential is gone.
	UpdateCounter(ctx context.Context, credentialID string, counter uint32) (bool, error)

	// Delete removes the authenticator only when it belongs to accountID.
	Delete(ctx context.Context, accountID int64, credentialID string) (bool, error)
}

// OrgRepository is the source of truth for organizations and memberships.
type OrgRepository interface {
	FindByShortcode(ctx context.Context, shortcode string) (*org.Org, error)
	FindByID(ctx context.Context, id int64) (*org.Org, error)

	// ListMembers returns members ordered by id, including invited and removed rows.
	ListMembers(ctx context.Context, orgID int64) ([]org.Member, error)

	// CreateWithAdmin inserts an organization and its first active admin
	// atomically. A taken shortcode is a Conflict and leaves nothing behind.
	CreateWithAdmin(ctx context.Context, shortcode, name string, adminID int64) (*org.Org, *org.Member, error)

	// AddMember inserts or re-activates a membership row with the given status.
	AddMember(ctx context.Context, orgID, accountID int64, role org.Role, status org.MemberStatus) (*org.Member, error)

	// UpdateMemberStatus transitions a member from one status to another. It
	// reports false when the row was not in the expected status, so at most one
	// of several concurrent transitions wins. Removing the last active admin
	// fails with a Conflict.
	UpdateMemberStatus(ctx context.Context, memberID int64, from, to org.MemberStatus) (bool, error)

	// UpdateMemberRole sets a member's role. Demoting the last active admin
	// fails with a Conflict, checked atomically with the write.
	UpdateMemberRole(ctx context.Context, memberID int64, role org.Role) (bool, error)

	// UpdateShortcode fails with a Conflict AppError when the shortcode is taken.
	UpdateShortcode(ctx context.Context, orgID int64, shortcode string) error
}
