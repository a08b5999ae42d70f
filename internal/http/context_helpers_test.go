package httpx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/domain/org"
)

func TestGetSessionFromContext(t *testing.T) {
	// No session
	if s, ok := GetSessionFromContext(context.Background()); assert.False(t, ok) {
		assert.Nil(t, s)
	}
	assert.Equal(t, context.Background(), SetSessionInContext(context.Background(), nil))

	// With session
	sess := &domainauth.Session{Token: "abc", AccountID: 7}
	ctx := SetSessionInContext(context.Background(), sess)
	s, ok := GetSessionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, sess, s)
}

func TestGetOrgFromContext(t *testing.T) {
	_, _, ok := GetOrgFromContext(context.Background())
	assert.False(t, ok)

	oc := &org.Context{ID: 3, Shortcode: "acme"}
	m := org.Member{ID: 9, AccountID: 7, Role: org.RoleAdmin, Status: org.StatusActive}
	got, member, ok := GetOrgFromContext(SetOrgInContext(context.Background(), oc, m))
	assert.True(t, ok)
	assert.Equal(t, oc, got)
	assert.Equal(t, m, member)
}

func TestAccountFromSession(t *testing.T) {
	sess := &domainauth.Session{
		AccountID: 7,
		Account:   domainauth.SessionPayload{AccountID: 7, PublicID: "pub-7", Username: "alice"},
	}
	assert.Equal(t, domainauth.Account{ID: 7, PublicID: "pub-7", Username: "alice"}, accountFromSession(sess))
}
