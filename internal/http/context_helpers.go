package httpx

import (
	"context"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/domain/org"
)

// Unexported context key types avoid collisions across packages.
type (
	sessionKey struct{}
	orgKey     struct{}
	memberKey  struct{}
)

// SetSessionInContext returns a child context that carries the given session.
// If session is nil, the original ctx is returned unchanged.
func SetSessionInContext(ctx context.Context, session *domainauth.Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// GetSessionFromContext returns the session from context and a boolean indicating presence.
func GetSessionFromContext(ctx context.Context) (*domainauth.Session, bool) {
	if session, ok := ctx.Value(sessionKey{}).(*domainauth.Session); ok && session != nil {
		return session, true
	}
	return nil, false
}

// SetOrgInContext returns a child context carrying the resolved organization
// and the caller's membership in it.
func SetOrgInContext(ctx context.Context, oc *org.Context, member org.Member) context.Context {
	if oc == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, orgKey{}, oc)
	return context.WithValue(ctx, memberKey{}, member)
}

// GetOrgFromContext returns the organization resolved by RequireOrgMember.
func GetOrgFromContext(ctx context.Context) (*org.Context, org.Member, bool) {
	oc, ok := ctx.Value(orgKey{}).(*org.Context)
	if !ok || oc == nil {
		return nil, org.Member{}, false
	}
	m, _ := ctx.Value(memberKey{}).(org.Member)
	return oc, m, true
}

// accountFromSession rebuilds the account identity carried in the session payload.
func accountFromSession(s *domainauth.Session) domainauth.Account {
	return domainauth.Account{
		ID:       s.AccountID,
		PublicID: s.Account.PublicID,
		Username: s.Account.Username,
	}
}
