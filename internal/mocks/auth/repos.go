package auth

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/uninbox/authd/internal/core"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/domain/org"
	apperrors "github.com/uninbox/authd/internal/errors"
)

// Ensure compile-time conformance to the storage contracts.
var (
	_ core.SessionRepository       = (*MemorySessionRepo)(nil)
	_ core.AccountRepository       = (*MemoryAccountRepo)(nil)
	_ core.AuthenticatorRepository = (*MemoryAuthenticatorRepo)(nil)
	_ core.OrgRepository           = (*MemoryOrgRepo)(nil)
)

// failures maps method names to injected errors.
type failures map[string]error

func (f failures) get(method string) error {
	if f == nil {
		return nil
	}
	return f[method]
}

// MemorySessionRepo is an in-memory durable session store.
type MemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session

	// Fail injects errors by method name, e.g. Fail["DeleteByTokens"].
	Fail failures
	// Calls records method names in call order.
	Calls []string
}

// NewMemorySessionRepo creates an empty session store.
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{sessions: make(map[string]domainauth.Session), Fail: failures{}}
}

func (m *MemorySessionRepo) record(method string) error {
	m.Calls = append(m.Calls, method)
	return m.Fail.get(method)
}

func (m *MemorySessionRepo) Insert(_ context.Context, sess domainauth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Insert"); err != nil {
		return err
	}
	if _, ok := m.sessions[sess.Token]; ok {
		return apperrors.Conflict("session token already exists")
	}
	m.sessions[sess.Token] = sess
	return nil
}

func (m *MemorySessionRepo) FindByToken(_ context.Context, token string) (*domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FindByToken"); err != nil {
		return nil, err
	}
	sess, ok := m.sessions[token]
	if !ok {
		return nil, apperrors.NotFound("session not found")
	}
	return &sess, nil
}

func (m *MemorySessionRepo) ListByAccount(_ context.Context, accountID int64) ([]domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ListByAccount"); err != nil {
		return nil, err
	}
	var out []domainauth.Session
	for _, s := range m.sessions {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemorySessionRepo) DeleteByToken(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteByToken"); err != nil {
		return false, err
	}
	_, ok := m.sessions[token]
	delete(m.sessions, token)
	return ok, nil
}

func (m *MemorySessionRepo) DeleteByTokens(_ context.Context, tokens []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteByTokens"); err != nil {
		return 0, err
	}
	var n int64
	for _, t := range tokens {
		if _, ok := m.sessions[t]; ok {
			delete(m.sessions, t)
			n++
		}
	}
	return n, nil
}

func (m *MemorySessionRepo) UpdateExpiry(_ context.Context, token string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdateExpiry"); err != nil {
		return false, err
	}
	s, ok := m.sessions[token]
	if !ok {
		return false, nil
	}
	s.ExpiresAt = expiresAt
	m.sessions[token] = s
	return true, nil
}

func (m *MemorySessionRepo) DeleteExpired(_ context.Context, now time.Time, batchSize int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteExpired"); err != nil {
		return nil, err
	}
	var tokens []string
	for tok, s := range m.sessions {
		if len(tokens) >= batchSize {
			break
		}
		if s.ExpiresAt.Before(now) {
			tokens = append(tokens, tok)
			delete(m.sessions, tok)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// MemoryAccountRepo is an in-memory account and credential store.
type MemoryAccountRepo struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]domainauth.Account
	creds    map[int64]domainauth.Credentials

	Fail failures
}

// NewMemoryAccountRepo creates an empty account store.
func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{
		accounts: make(map[int64]domainauth.Account),
		creds:    make(map[int64]domainauth.Credentials),
		Fail:     failures{},
	}
}

func (m *MemoryAccountRepo) Create(_ context.Context, username, passwordHash string) (*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("Create"); err != nil {
		return nil, err
	}
	for _, a := range m.accounts {
		if strings.EqualFold(a.Username, username) {
			return nil, &apperrors.AppError{Code: apperrors.ErrCodeConflict, Message: "username taken", Field: "username"}
		}
	}
	m.nextID++
	a := domainauth.Account{
		ID:       m.nextID,
		PublicID: "acct-" + strings.ToLower(username),
		Username: username,
	}
	m.accounts[a.ID] = a
	m.creds[a.ID] = domainauth.Credentials{AccountID: a.ID, PasswordHash: passwordHash}
	return &a, nil
}

func (m *MemoryAccountRepo) FindByID(_ context.Context, id int64) (*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("FindByID"); err != nil {
		return nil, err
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account not found")
	}
	return &a, nil
}

func (m *MemoryAccountRepo) find(pred func(domainauth.Account) bool) (*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if pred(a) {
			return &a, nil
		}
	}
	return nil, apperrors.NotFound("account not found")
}

func (m *MemoryAccountRepo) FindByUsername(_ context.Context, username string) (*domainauth.Account, error) {
	if err := m.Fail.get("FindByUsername"); err != nil {
		return nil, err
	}
	return m.find(func(a domainauth.Account) bool { return strings.EqualFold(a.Username, username) })
}

func (m *MemoryAccountRepo) FindByPublicID(_ context.Context, publicID string) (*domainauth.Account, error) {
	if err := m.Fail.get("FindByPublicID"); err != nil {
		return nil, err
	}
	return m.find(func(a domainauth.Account) bool { return a.PublicID == publicID })
}

func (m *MemoryAccountRepo) FindCredentials(_ context.Context, accountID int64) (*domainauth.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("FindCredentials"); err != nil {
		return nil, err
	}
	c, ok := m.creds[accountID]
	if !ok {
		return nil, apperrors.NotFound("account not found")
	}
	return &c, nil
}

func (m *MemoryAccountRepo) UpdateCredentials(_ context.Context, accountID int64, u domainauth.CredentialsUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("UpdateCredentials"); err != nil {
		return err
	}
	c, ok := m.creds[accountID]
	if !ok {
		return apperrors.NotFound("account not found")
	}
	if u.PasswordHash != nil {
		c.PasswordHash = *u.PasswordHash
	}
	if u.TwoFactorSecret != nil {
		c.TwoFactorSecret = *u.TwoFactorSecret
	}
	if u.TwoFactorEnabled != nil {
		c.TwoFactorEnabled = *u.TwoFactorEnabled
	}
	if u.RecoveryCodeHash != nil {
		c.RecoveryCodeHash = *u.RecoveryCodeHash
	}
	if u.LastLoginAt != nil {
		a := m.accounts[accountID]
		t := *u.LastLoginAt
		a.LastLoginAt = &t
		m.accounts[accountID] = a
	}
	m.creds[accountID] = c
	return nil
}

func (m *MemoryAccountRepo) SpendRecoveryCode(_ context.Context, accountID int64, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("SpendRecoveryCode"); err != nil {
		return false, err
	}
	c, ok := m.creds[accountID]
	if !ok || hash == "" || c.RecoveryCodeHash != hash {
		return false, nil
	}
	c.RecoveryCodeHash = ""
	m.creds[accountID] = c
	return true, nil
}

// MemoryAuthenticatorRepo is an in-memory passkey store.
type MemoryAuthenticatorRepo struct {
	mu     sync.Mutex
	nextID int64
	byCred map[string]domainauth.Authenticator

	Fail failures
}

// NewMemoryAuthenticatorRepo creates an empty passkey store.
func NewMemoryAuthenticatorRepo() *MemoryAuthenticatorRepo {
	return &MemoryAuthenticatorRepo{byCred: make(map[string]domainauth.Authenticator), Fail: failures{}}
}

func (m *MemoryAuthenticatorRepo) Insert(_ context.Context, a domainauth.Authenticator) (*domainauth.Authenticator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("Insert"); err != nil {
		return nil, err
	}
	if _, ok := m.byCred[a.CredentialID]; ok {
		return nil, &apperrors.AppError{
			Code:    apperrors.ErrCodeConflict,
			Message: "This value already exists. Please choose a different one.",
			Field:   "credential_id",
		}
	}
	m.nextID++
	a.ID = m.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.byCred[a.CredentialID] = a
	return &a, nil
}

func (m *MemoryAuthenticatorRepo) FindByCredentialID(_ context.Context, credentialID string) (*domainauth.Authenticator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("FindByCredentialID"); err != nil {
		return nil, err
	}
	a, ok := m.byCred[credentialID]
	if !ok {
		return nil, apperrors.NotFound("authenticator not found")
	}
	return &a, nil
}

func (m *MemoryAuthenticatorRepo) ListByAccount(_ context.Context, accountID int64) ([]domainauth.Authenticator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("ListByAccount"); err != nil {
		return nil, err
	}
	var out []domainauth.Authenticator
	for _, a := range m.byCred {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryAuthenticatorRepo) UpdateCounter(_ context.Context, credentialID string, counter uint32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("UpdateCounter"); err != nil {
		return false, err
	}
	a, ok := m.byCred[credentialID]
	if !ok || a.Counter >= counter {
		return false, nil
	}
	a.Counter = counter
	m.byCred[credentialID] = a
	return true, nil
}

func (m *MemoryAuthenticatorRepo) Delete(_ context.Context, accountID int64, credentialID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("Delete"); err != nil {
		return false, err
	}
	a, ok := m.byCred[credentialID]
	if !ok || a.AccountID != accountID {
		return false, nil
	}
	delete(m.byCred, credentialID)
	return true, nil
}

// MemoryOrgRepo is an in-memory organization store.
type MemoryOrgRepo struct {
	mu      sync.Mutex
	nextID  int64
	orgs    map[int64]org.Org
	members map[int64][]org.Member

	Fail failures
	// ListMembersCalls counts ListMembers invocations.
	ListMembersCalls int
	// ListMembersHook, when set, runs before ListMembers returns (outside the lock).
	ListMembersHook func()
}

// NewMemoryOrgRepo creates an empty organization store.
func NewMemoryOrgRepo() *MemoryOrgRepo {
	return &MemoryOrgRepo{
		orgs:    make(map[int64]org.Org),
		members: make(map[int64][]org.Member),
		Fail:    failures{},
	}
}

// Create inserts an organization without members. Tests use it to stage orgs
// directly; services go through CreateWithAdmin.
func (m *MemoryOrgRepo) Create(_ context.Context, shortcode, name string) (*org.Org, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(shortcode, name)
}

func (m *MemoryOrgRepo) createLocked(shortcode, name string) (*org.Org, error) {
	for _, o := range m.orgs {
		if o.Shortcode == shortcode {
			return nil, &apperrors.AppError{Code: apperrors.ErrCodeConflict, Message: "shortcode taken", Field: "shortcode"}
		}
	}
	m.nextID++
	o := org.Org{ID: m.nextID, PublicID: "org-" + shortcode, Shortcode: shortcode, Name: name, CreatedAt: time.Now()}
	m.orgs[o.ID] = o
	return &o, nil
}

// CreateWithAdmin inserts the organization and its admin together; an
// injected failure leaves nothing behind.
func (m *MemoryOrgRepo) CreateWithAdmin(_ context.Context, shortcode, name string, adminID int64) (*org.Org, *org.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("CreateWithAdmin"); err != nil {
		return nil, nil, err
	}
	o, err := m.createLocked(shortcode, name)
	if err != nil {
		return nil, nil, err
	}
	m.nextID++
	mem := org.Member{ID: m.nextID, AccountID: adminID, Role: org.RoleAdmin, Status: org.StatusActive}
	m.members[o.ID] = []org.Member{mem}
	return o, &mem, nil
}

func (m *MemoryOrgRepo) FindByShortcode(_ context.Context, shortcode string) (*org.Org, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("FindByShortcode"); err != nil {
		return nil, err
	}
	for _, o := range m.orgs {
		if o.Shortcode == shortcode {
			return &o, nil
		}
	}
	return nil, apperrors.NotFound("organization not found")
}

func (m *MemoryOrgRepo) FindByID(_ context.Context, id int64) (*org.Org, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("FindByID"); err != nil {
		return nil, err
	}
	o, ok := m.orgs[id]
	if !ok {
		return nil, apperrors.NotFound("organization not found")
	}
	return &o, nil
}

func (m *MemoryOrgRepo) ListMembers(_ context.Context, orgID int64) ([]org.Member, error) {
	m.mu.Lock()
	m.ListMembersCalls++
	err := m.Fail.get("ListMembers")
	out := slices.Clone(m.members[orgID])
	hook := m.ListMembersHook
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MemoryOrgRepo) AddMember(
	_ context.Context,
	orgID, accountID int64,
	role org.Role,
	status org.MemberStatus,
) (*org.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[orgID]; !ok {
		return nil, apperrors.ForeignKey("organization does not exist")
	}
	list := m.members[orgID]
	for i := range list {
		if list[i].AccountID == accountID {
			if list[i].Status != org.StatusRemoved {
				return nil, apperrors.Conflict("account is already a member")
			}
			list[i].Role, list[i].Status = role, status
			mem := list[i]
			return &mem, nil
		}
	}
	m.nextID++
	mem := org.Member{ID: m.nextID, AccountID: accountID, Role: role, Status: status}
	m.members[orgID] = append(list, mem)
	return &mem, nil
}

// updateMember applies fn to the member with memberID. fn sees the member's
// whole list so it can enforce the last-admin rule under the same lock.
func (m *MemoryOrgRepo) updateMember(memberID int64, fn func(list []org.Member, mem *org.Member) (bool, error)) (bool, error) {
	for orgID, list := range m.members {
		for i := range list {
			if list[i].ID == memberID {
				ok, err := fn(list, &list[i])
				m.members[orgID] = list
				return ok, err
			}
		}
	}
	return false, nil
}

func (m *MemoryOrgRepo) UpdateMemberStatus(_ context.Context, memberID int64, from, to org.MemberStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("UpdateMemberStatus"); err != nil {
		return false, err
	}
	return m.updateMember(memberID, func(list []org.Member, mem *org.Member) (bool, error) {
		if mem.Status != from {
			return false, nil
		}
		if mem.IsActiveAdmin() && !org.LeavesAdmin(list, mem.ID, mem.Role, to) {
			return false, apperrors.Conflict("an organization needs at least one admin")
		}
		mem.Status = to
		return true, nil
	})
}

func (m *MemoryOrgRepo) UpdateMemberRole(_ context.Context, memberID int64, role org.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail.get("UpdateMemberRole"); err != nil {
		return false, err
	}
	return m.updateMember(memberID, func(list []org.Member, mem *org.Member) (bool, error) {
		if mem.Status == org.StatusRemoved {
			return false, nil
		}
		if mem.IsActiveAdmin() && !org.LeavesAdmin(list, mem.ID, role, mem.Status) {
			return false, apperrors.Conflict("an organization needs at least one admin")
		}
		mem.Role = role
		return true, nil
	})
}

func (m *MemoryOrgRepo) UpdateShortcode(_ context.Context, orgID int64, shortcode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.orgs {
		if o.Shortcode == shortcode && id != orgID {
			return &apperrors.AppError{Code: apperrors.ErrCodeConflict, Message: "shortcode taken", Field: "shortcode"}
		}
	}
	o, ok := m.orgs[orgID]
	if !ok {
		return apperrors.NotFound("organization not found")
	}
	o.Shortcode = shortcode
	m.orgs[orgID] = o
	return nil
}
