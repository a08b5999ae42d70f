package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	mockauth "github.com/uninbox/authd/internal/mocks/auth"
	"github.com/uninbox/authd/internal/observability/notify"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingSink collects notification events.
type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSink) Send(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// authFixture wires the in-memory doubles behind every auth service.
type authFixture struct {
	clock    *fakeClock
	cache    *mockauth.MemoryCache
	sessions *mockauth.MemorySessionRepo
	accounts *mockauth.MemoryAccountRepo
	passkeys *mockauth.MemoryAuthenticatorRepo
	totp     *mockauth.StaticTOTP
	ceremony *mockauth.FakeCeremony
	events   *recordingSink

	manager  *SessionManager
	verifier *VerificationService
	passkey  *PasskeyService
	accountS *AccountService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{
		clock:    newFakeClock(),
		cache:    mockauth.NewMemoryCache(),
		sessions: mockauth.NewMemorySessionRepo(),
		accounts: mockauth.NewMemoryAccountRepo(),
		passkeys: mockauth.NewMemoryAuthenticatorRepo(),
		totp:     mockauth.NewStaticTOTP(),
		ceremony: &mockauth.FakeCeremony{},
		events:   &recordingSink{},
	}
	f.cache.Now = f.clock.Now

	f.manager = NewSessionManager(SessionManagerOptions{
		Sessions: f.sessions,
		Accounts: f.accounts,
		Cache:    f.cache,
		Lifetime: 4 * 7 * 24 * time.Hour,
		Now:      f.clock.Now,
	})
	f.passkey = NewPasskeyService(PasskeyServiceOptions{
		Accounts:       f.accounts,
		Authenticators: f.passkeys,
		Cache:          f.cache,
		Ceremony:       f.ceremony,
		ClonePolicy:    domainauth.ClonePolicyReject,
		Notifier:       f.events,
		Now:            f.clock.Now,
	})
	f.verifier = NewVerificationService(VerificationServiceOptions{
		Accounts: f.accounts,
		Cache:    f.cache,
		Hasher:   mockauth.PlainHasher{},
		TOTP:     f.totp,
		Passkeys: f.passkey,
		Now:      f.clock.Now,
	})
	f.accountS = NewAccountService(AccountServiceOptions{
		Accounts:       f.accounts,
		Authenticators: f.passkeys,
		Sessions:       f.manager,
		Verification:   f.verifier,
		Passkeys:       f.passkey,
		Cache:          f.cache,
		Hasher:         mockauth.PlainHasher{},
		TOTP:           f.totp,
		Notifier:       f.events,
		Now:            f.clock.Now,
	})
	return f
}

// newAccount creates an account with the given password ("" for none).
func (f *authFixture) newAccount(t *testing.T, username, password string) domainauth.Account {
	t.Helper()
	hash := ""
	if password != "" {
		hash = "plain:" + password
	}
	a, err := f.accounts.Create(context.Background(), username, hash)
	require.NoError(t, err)
	return *a
}

// enableTOTP turns on 2FA for the account and returns the valid code.
func (f *authFixture) enableTOTP(t *testing.T, a domainauth.Account) string {
	t.Helper()
	key, err := f.totp.Generate(a.Username)
	require.NoError(t, err)
	enabled := true
	require.NoError(t, f.accounts.UpdateCredentials(context.Background(), a.ID, domainauth.CredentialsUpdate{
		TwoFactorSecret:  &key.Secret,
		TwoFactorEnabled: &enabled,
	}))
	return f.totp.Codes[key.Secret]
}

// registerPasskey stores an authenticator for the account directly.
func (f *authFixture) registerPasskey(t *testing.T, a domainauth.Account, credID string, counter uint32) {
	t.Helper()
	_, err := f.passkeys.Insert(context.Background(), domainauth.Authenticator{
		AccountID:    a.ID,
		CredentialID: credID,
		PublicKey:    []byte("pk-" + credID),
		Counter:      counter,
		DeviceType:   domainauth.DeviceSingle,
	})
	require.NoError(t, err)
}
