package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/uninbox/authd/internal/core"
	"github.com/uninbox/authd/internal/domain/org"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/observability/notify"
)

// MembershipServiceOptions groups dependencies for MembershipService.
type MembershipServiceOptions struct {
	Orgs     core.OrgRepository
	Contexts *OrgContextCache
	Notifier notify.Sink
	Logger   *slog.Logger
	Now      func() time.Time
}

// MembershipService mutates organizations and their member lists. Every
// mutation refreshes the cached organization context.
type MembershipService struct {
	orgs     core.OrgRepository
	contexts *OrgContextCache
	notifier notify.Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(opts MembershipServiceOptions) *MembershipService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &MembershipService{
		orgs:     opts.Orgs,
		contexts: opts.Contexts,
		notifier: opts.Notifier,
		logger:   logger.With("component", "membership"),
		now:      now,
	}
}

// snapshot reads the organization and its members from the store. Mutations
// authorize against this rather than the cache.
func (s *MembershipService) snapshot(ctx context.Context, orgID int64) (org.Context, error) {
	o, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		return org.Context{}, fmt.Errorf("find organization: %w", err)
	}
	members, err := s.orgs.ListMembers(ctx, orgID)
	if err != nil {
		return org.Context{}, fmt.Errorf("list members: %w", err)
	}
	return org.NewContext(*o, members), nil
}

func (s *MembershipService) authorizeAdmin(ctx context.Context, orgID, actorID int64) (org.Context, error) {
	oc, err := s.snapshot(ctx, orgID)
	if err != nil {
		return org.Context{}, err
	}
	m, ok := oc.ActiveMember(actorID)
	if !ok || !m.IsActiveAdmin() {
		return org.Context{}, apperrors.NotAuthorized("only organization admins may manage members")
	}
	return oc, nil
}

func (s *MembershipService) changed(ctx context.Context, orgID, actorID int64, action string, member org.Member) {
	if _, err := s.contexts.Invalidate(ctx, orgID); err != nil {
		// The entry expires on its TTL; the mutation itself already committed.
		s.logger.ErrorContext(ctx, "org context refresh failed", "org_id", orgID, "error", err)
	}
	notify.Emit(ctx, s.notifier, s.logger, notify.Event{
		Type:       notify.EventMembershipChanged,
		AccountID:  actorID,
		OrgID:      orgID,
		Summary:    fmt.Sprintf("Membership %s", action),
		OccurredAt: s.now().UTC(),
		Metadata: map[string]string{
			"action":            action,
			"member_id":         strconv.FormatInt(member.ID, 10),
			"member_account_id": strconv.FormatInt(member.AccountID, 10),
			"role":              string(member.Role),
			"status":            string(member.Status),
		},
	})
}

// CreateOrg creates an organization with the creator as its active admin.
func (s *MembershipService) CreateOrg(ctx context.Context, creatorID int64, shortcode, name string) (*org.Context, error) {
	sc := org.NormalizeShortcode(shortcode)
	if !org.ValidShortcode(sc) {
		return nil, apperrors.ValidationField("shortcode", "shortcode must be 2-32 characters of a-z, 0-9 and '-'")
	}
	if name == "" {
		name = sc
	}
	o, m, err := s.orgs.CreateWithAdmin(ctx, sc, name, creatorID)
	if err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	s.changed(ctx, o.ID, creatorID, "created", *m)
	oc := org.NewContext(*o, []org.Member{*m})
	return &oc, nil
}

// AddMember invites accountID with role. The invitation becomes a membership
// once the account calls AcceptInvite.
func (s *MembershipService) AddMember(
	ctx context.Context,
	actorID, orgID, accountID int64,
	role org.Role,
) (*org.Member, error) {
	if !role.Valid() {
		return nil, apperrors.ValidationField("role", "unknown role")
	}
	if accountID <= 0 {
		return nil, apperrors.ValidationField("account_id", "account id is required")
	}
	if _, err := s.authorizeAdmin(ctx, orgID, actorID); err != nil {
		return nil, err
	}

	m, err := s.orgs.AddMember(ctx, orgID, accountID, role, org.StatusInvited)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	s.changed(ctx, orgID, actorID, "invited", *m)
	return m, nil
}

// AcceptInvite activates the caller's pending invitation. Of several
// concurrent calls exactly one succeeds; the rest get Conflict.
func (s *MembershipService) AcceptInvite(ctx context.Context, accountID, orgID int64) (*org.Member, error) {
	oc, err := s.snapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	m, ok := oc.FindMember(accountID)
	if !ok || m.Status == org.StatusRemoved {
		return nil, apperrors.NotFound("no invitation found")
	}

	won, err := s.orgs.UpdateMemberStatus(ctx, m.ID, org.StatusInvited, org.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	if !won {
		return nil, apperrors.Conflict("invitation is no longer pending")
	}
	m.Status = org.StatusActive
	s.changed(ctx, orgID, accountID, "joined", m)
	return &m, nil
}

// lastAdmin reports whether m is the only active admin of oc. The store
// re-checks this under a lock; this check only spares a write.
func lastAdmin(oc org.Context, m org.Member) bool {
	return m.IsActiveAdmin() && !org.LeavesAdmin(oc.Members, m.ID, org.RoleMember, m.Status)
}

func memberByID(oc org.Context, memberID int64) (org.Member, bool) {
	for _, m := range oc.Members {
		if m.ID == memberID {
			return m, true
		}
	}
	return org.Member{}, false
}

// RemoveMember marks a member removed. The last active admin cannot be removed.
func (s *MembershipService) RemoveMember(ctx context.Context, actorID, orgID, memberID int64) error {
	oc, err := s.authorizeAdmin(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	m, ok := memberByID(oc, memberID)
	if !ok || m.Status == org.StatusRemoved {
		return apperrors.NotFound("member not found")
	}
	if lastAdmin(oc, m) {
		return apperrors.Conflict("an organization needs at least one admin")
	}

	won, err := s.orgs.UpdateMemberStatus(ctx, memberID, m.Status, org.StatusRemoved)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if !won {
		return apperrors.Conflict("member changed concurrently; retry")
	}
	m.Status = org.StatusRemoved
	s.changed(ctx, orgID, actorID, "removed", m)
	return nil
}

// ChangeRole sets a member's role. Demoting the last active admin fails.
func (s *MembershipService) ChangeRole(
	ctx context.Context,
	actorID, orgID, memberID int64,
	role org.Role,
) (*org.Member, error) {
	if !role.Valid() {
		return nil, apperrors.ValidationField("role", "unknown role")
	}
	oc, err := s.authorizeAdmin(ctx, orgID, actorID)
	if err != nil {
		return nil, err
	}
	m, ok := memberByID(oc, memberID)
	if !ok || m.Status == org.StatusRemoved {
		return nil, apperrors.NotFound("member not found")
	}
	if m.Role == role {
		return &m, nil
	}
	if role != org.RoleAdmin && lastAdmin(oc, m) {
		return nil, apperrors.Conflict("an organization needs at least one admin")
	}

	found, err := s.orgs.UpdateMemberRole(ctx, memberID, role)
	if err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}
	if !found {
		return nil, apperrors.NotFound("member not found")
	}
	m.Role = role
	s.changed(ctx, orgID, actorID, "role_changed", m)
	return &m, nil
}

// RenameShortcode moves the organization to a new shortcode. The cache entry
// under the old shortcode is dropped and one under the new shortcode written.
func (s *MembershipService) RenameShortcode(ctx context.Context, actorID, orgID int64, shortcode string) (*org.Context, error) {
	sc := org.NormalizeShortcode(shortcode)
	if !org.ValidShortcode(sc) {
		return nil, apperrors.ValidationField("shortcode", "shortcode must be 2-32 characters of a-z, 0-9 and '-'")
	}
	oc, err := s.authorizeAdmin(ctx, orgID, actorID)
	if err != nil {
		return nil, err
	}
	if oc.Shortcode == sc {
		return &oc, nil
	}

	if err := s.orgs.UpdateShortcode(ctx, orgID, sc); err != nil {
		return nil, fmt.Errorf("rename organization: %w", err)
	}
	fresh, err := s.contexts.InvalidateRenamed(ctx, orgID, oc.Shortcode)
	if err != nil {
		return nil, err
	}
	notify.Emit(ctx, s.notifier, s.logger, notify.Event{
		Type:       notify.EventMembershipChanged,
		AccountID:  actorID,
		OrgID:      orgID,
		Summary:    fmt.Sprintf("Organization renamed from %s to %s", oc.Shortcode, sc),
		OccurredAt: s.now().UTC(),
		Metadata:   map[string]string{"action": "renamed", "old_shortcode": oc.Shortcode, "shortcode": sc},
	})
	return fresh, nil
}
