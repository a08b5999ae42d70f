package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uninbox/authd/internal/core"
	"github.com/uninbox/authd/internal/domain/org"
	apperrors "github.com/uninbox/authd/internal/errors"
	mockauth "github.com/uninbox/authd/internal/mocks/auth"
	"github.com/uninbox/authd/internal/observability/notify"
)

const (
	adminID  int64 = 100
	memberID int64 = 200
	guestID  int64 = 300
)

type membershipFixture struct {
	orgs     *mockauth.MemoryOrgRepo
	cache    *mockauth.MemoryCache
	contexts *OrgContextCache
	events   *recordingSink
	svc      *MembershipService
	acme     org.Context
}

func newMembershipFixture(t *testing.T) *membershipFixture {
	t.Helper()
	f := &membershipFixture{
		orgs:   mockauth.NewMemoryOrgRepo(),
		cache:  mockauth.NewMemoryCache(),
		events: &recordingSink{},
	}
	f.contexts = NewOrgContextCache(OrgContextCacheOptions{Orgs: f.orgs, Cache: f.cache})
	f.svc = NewMembershipService(MembershipServiceOptions{
		Orgs:     f.orgs,
		Contexts: f.contexts,
		Notifier: f.events,
	})

	oc, err := f.svc.CreateOrg(context.Background(), adminID, "Acme", "Acme Inc")
	require.NoError(t, err)
	f.acme = *oc
	return f
}

// join invites accountID and accepts on their behalf.
func (f *membershipFixture) join(t *testing.T, accountID int64, role org.Role) org.Member {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.AddMember(ctx, adminID, f.acme.ID, accountID, role)
	require.NoError(t, err)
	m, err := f.svc.AcceptInvite(ctx, accountID, f.acme.ID)
	require.NoError(t, err)
	return *m
}

func (f *membershipFixture) resolve(t *testing.T) *org.Context {
	t.Helper()
	oc, err := f.contexts.Resolve(context.Background(), f.acme.Shortcode)
	require.NoError(t, err)
	require.NotNil(t, oc)
	return oc
}

func TestMembershipService_CreateOrg(t *testing.T) {
	f := newMembershipFixture(t)

	assert.Equal(t, "acme", f.acme.Shortcode)
	m, ok := f.resolve(t).ActiveMember(adminID)
	require.True(t, ok)
	assert.True(t, m.IsActiveAdmin())
	assert.Equal(t, []notify.EventType{notify.EventMembershipChanged}, f.events.Types())

	_, err := f.svc.CreateOrg(context.Background(), adminID, "-", "")
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.svc.CreateOrg(context.Background(), guestID, "acme", "")
	assert.True(t, apperrors.IsConflict(err))
}

func TestMembershipService_FailedCreateLeavesShortcodeFree(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	f.orgs.Fail["CreateWithAdmin"] = errors.New("pg: connection reset")
	_, err := f.svc.CreateOrg(ctx, guestID, "globex", "Globex")
	require.Error(t, err)

	_, err = f.orgs.FindByShortcode(ctx, "globex")
	assert.True(t, apperrors.IsNotFound(err))

	delete(f.orgs.Fail, "CreateWithAdmin")
	oc, err := f.svc.CreateOrg(ctx, guestID, "globex", "Globex")
	require.NoError(t, err)
	m, ok := oc.ActiveMember(guestID)
	require.True(t, ok)
	assert.True(t, m.IsActiveAdmin())
}

func TestMembershipService_InviteAndAccept(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	inv, err := f.svc.AddMember(ctx, adminID, f.acme.ID, memberID, org.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, org.StatusInvited, inv.Status)

	// The cached context is refreshed on every mutation.
	cached, ok := f.resolve(t).FindMember(memberID)
	require.True(t, ok)
	assert.Equal(t, org.StatusInvited, cached.Status)

	m, err := f.svc.AcceptInvite(ctx, memberID, f.acme.ID)
	require.NoError(t, err)
	assert.Equal(t, org.StatusActive, m.Status)

	_, ok = f.resolve(t).ActiveMember(memberID)
	assert.True(t, ok)

	_, err = f.svc.AcceptInvite(ctx, memberID, f.acme.ID)
	assert.True(t, apperrors.IsConflict(err), "already accepted")

	_, err = f.svc.AcceptInvite(ctx, guestID, f.acme.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMembershipService_ConcurrentAcceptHasOneWinner(t *testing.T) {
	f := newMembershipFixture(t)
	_, err := f.svc.AddMember(context.Background(), adminID, f.acme.ID, memberID, org.RoleMember)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AcceptInvite(context.Background(), memberID, f.acme.ID)
			switch {
			case err == nil:
				wins.Add(1)
			case apperrors.IsConflict(err):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(7), conflicts.Load())
}

func TestMembershipService_OnlyActiveAdminsMutate(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()
	member := f.join(t, memberID, org.RoleMember)

	_, err := f.svc.AddMember(ctx, memberID, f.acme.ID, guestID, org.RoleMember)
	assert.True(t, apperrors.IsNotAuthorized(err))
	_, err = f.svc.AddMember(ctx, guestID, f.acme.ID, guestID, org.RoleAdmin)
	assert.True(t, apperrors.IsNotAuthorized(err))
	_, err = f.svc.ChangeRole(ctx, memberID, f.acme.ID, member.ID, org.RoleAdmin)
	assert.True(t, apperrors.IsNotAuthorized(err))

	// An invited admin has no rights until accepting.
	_, err = f.svc.AddMember(ctx, adminID, f.acme.ID, guestID, org.RoleAdmin)
	require.NoError(t, err)
	err = f.svc.RemoveMember(ctx, guestID, f.acme.ID, member.ID)
	assert.True(t, apperrors.IsNotAuthorized(err))
}

func TestMembershipService_RemoveAndChangeRole(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()
	member := f.join(t, memberID, org.RoleMember)
	admin, ok := f.acme.FindMember(adminID)
	require.True(t, ok)

	err := f.svc.RemoveMember(ctx, adminID, f.acme.ID, admin.ID)
	assert.True(t, apperrors.IsConflict(err), "last admin")
	_, err = f.svc.ChangeRole(ctx, adminID, f.acme.ID, admin.ID, org.RoleMember)
	assert.True(t, apperrors.IsConflict(err), "last admin")

	promoted, err := f.svc.ChangeRole(ctx, adminID, f.acme.ID, member.ID, org.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, org.RoleAdmin, promoted.Role)
	cached, _ := f.resolve(t).ActiveMember(memberID)
	assert.True(t, cached.IsActiveAdmin())

	require.NoError(t, f.svc.RemoveMember(ctx, memberID, f.acme.ID, admin.ID))
	_, ok = f.resolve(t).ActiveMember(adminID)
	assert.False(t, ok)

	err = f.svc.RemoveMember(ctx, memberID, f.acme.ID, admin.ID)
	assert.True(t, apperrors.IsNotFound(err), "already removed")

	_, err = f.svc.ChangeRole(ctx, memberID, f.acme.ID, member.ID, org.Role("owner"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestMembershipService_ConcurrentDemotionsKeepAnAdmin(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()
	other := f.join(t, memberID, org.RoleAdmin)
	first, ok := f.resolve(t).ActiveMember(adminID)
	require.True(t, ok)

	var wins atomic.Int32
	var wg sync.WaitGroup
	demote := func(actor, target int64) {
		defer wg.Done()
		if _, err := f.svc.ChangeRole(ctx, actor, f.acme.ID, target, org.RoleMember); err == nil {
			wins.Add(1)
		}
	}
	wg.Add(2)
	go demote(adminID, other.ID)
	go demote(memberID, first.ID)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	members, err := f.orgs.ListMembers(ctx, f.acme.ID)
	require.NoError(t, err)
	admins := 0
	for _, m := range members {
		if m.IsActiveAdmin() {
			admins++
		}
	}
	assert.Equal(t, 1, admins)
}

func TestMembershipService_StoreRefusesToDropLastAdmin(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()
	admin, ok := f.resolve(t).ActiveMember(adminID)
	require.True(t, ok)

	_, err := f.orgs.UpdateMemberRole(ctx, admin.ID, org.RoleMember)
	assert.True(t, apperrors.IsConflict(err))
	_, err = f.orgs.UpdateMemberStatus(ctx, admin.ID, org.StatusActive, org.StatusRemoved)
	assert.True(t, apperrors.IsConflict(err))
}

func TestMembershipService_RenameShortcode(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()
	f.resolve(t)

	oc, err := f.svc.RenameShortcode(ctx, adminID, f.acme.ID, "Acme-Corp")
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", oc.Shortcode)
	assert.Equal(t, []string{core.OrgContextKey("acme-corp")}, f.cache.Keys())

	gone, err := f.contexts.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, gone)

	other, err := f.svc.CreateOrg(ctx, guestID, "globex", "Globex")
	require.NoError(t, err)
	_, err = f.svc.RenameShortcode(ctx, guestID, other.ID, "acme-corp")
	assert.True(t, apperrors.IsConflict(err))

	_, err = f.svc.RenameShortcode(ctx, memberID, f.acme.ID, "initech")
	assert.True(t, apperrors.IsNotAuthorized(err))
}

func TestMembershipService_RefreshFailureDoesNotFailMutation(t *testing.T) {
	f := newMembershipFixture(t)
	f.cache.Err = assert.AnError

	_, err := f.svc.AddMember(context.Background(), adminID, f.acme.ID, memberID, org.RoleMember)
	require.NoError(t, err)
	assert.Contains(t, f.events.Types(), notify.EventMembershipChanged)
}
