// Package devseed creates a predictable development account and organization.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uninbox/authd/internal/adapters/password"
	"github.com/uninbox/authd/internal/core"
	"github.com/uninbox/authd/internal/data"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/domain/org"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/ports"
	"github.com/uninbox/authd/internal/service"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	Accounts    core.AccountRepository
	Orgs        core.OrgRepository
	Hasher      ports.PasswordHasher
	Memberships *service.MembershipService
}

// NewServices constructs all required services for seeding using the provided
// DB and cache. Membership changes refresh the cached org context, so the
// cache must be the one the server reads.
func NewServices(db *sql.DB, cache core.CacheRepository, bcryptCost int) Services {
	orgs := data.NewOrgRepo(db)
	return Services{
		Accounts: data.NewAccountRepo(db),
		Orgs:     orgs,
		Hasher:   password.NewBcryptHasher(bcryptCost),
		Memberships: service.NewMembershipService(service.MembershipServiceOptions{
			Orgs: orgs,
			Contexts: service.NewOrgContextCache(service.OrgContextCacheOptions{
				Orgs:  orgs,
				Cache: cache,
			}),
		}),
	}
}

// Options names the seeded records.
type Options struct {
	Username     string
	Password     string
	OrgShortcode string
	OrgName      string
}

// DefaultOptions returns the development defaults.
func DefaultOptions() Options {
	return Options{
		Username:     "dev",
		Password:     "dev-password-123",
		OrgShortcode: "dev",
		OrgName:      "Development",
	}
}

// Result reports what Run created or found.
type Result struct {
	Account        *domainauth.Account
	AccountCreated bool
	Org            *org.Org
	OrgCreated     bool
}

// Run creates the dev account and org when missing. It is idempotent.
func Run(ctx context.Context, svcs Services, opts Options, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Username == "" || opts.Password == "" || opts.OrgShortcode == "" {
		return nil, errors.New("username, password and org shortcode are required")
	}

	account, created, err := ensureAccount(ctx, svcs, opts)
	if err != nil {
		return nil, err
	}
	if created {
		logger.InfoContext(ctx, "created dev account", "username", account.Username, "public_id", account.PublicID)
	} else {
		logger.InfoContext(ctx, "dev account already exists", "username", account.Username)
	}

	o, orgCreated, err := ensureOrg(ctx, svcs, opts, account.ID)
	if err != nil {
		return nil, err
	}
	if orgCreated {
		logger.InfoContext(ctx, "created dev org", "shortcode", o.Shortcode, "admin", account.Username)
	} else {
		logger.InfoContext(ctx, "dev org already exists", "shortcode", o.Shortcode)
	}

	return &Result{Account: account, AccountCreated: created, Org: o, OrgCreated: orgCreated}, nil
}

func ensureAccount(ctx context.Context, svcs Services, opts Options) (*domainauth.Account, bool, error) {
	existing, err := svcs.Accounts.FindByUsername(ctx, opts.Username)
	if err == nil {
		return existing, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, fmt.Errorf("find dev account: %w", err)
	}

	hash, err := svcs.Hasher.Hash(opts.Password)
	if err != nil {
		return nil, false, fmt.Errorf("hash dev password: %w", err)
	}
	account, err := svcs.Accounts.Create(ctx, opts.Username, hash)
	if err != nil {
		return nil, false, fmt.Errorf("create dev account: %w", err)
	}
	return account, true, nil
}

func ensureOrg(ctx context.Context, svcs Services, opts Options, adminID int64) (*org.Org, bool, error) {
	existing, err := svcs.Orgs.FindByShortcode(ctx, org.NormalizeShortcode(opts.OrgShortcode))
	if err == nil {
		return existing, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, fmt.Errorf("find dev org: %w", err)
	}

	oc, err := svcs.Memberships.CreateOrg(ctx, adminID, opts.OrgShortcode, opts.OrgName)
	if err != nil {
		return nil, false, fmt.Errorf("create dev org: %w", err)
	}
	return &org.Org{ID: oc.ID, PublicID: oc.PublicID, Shortcode: oc.Shortcode, Name: oc.Name}, true, nil
}
