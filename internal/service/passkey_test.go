package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
	mockauth "github.com/uninbox/authd/internal/mocks/auth"
	"github.com/uninbox/authd/internal/observability/notify"
)

func challengeOf(t *testing.T, options json.RawMessage) string {
	t.Helper()
	var opts struct {
		Challenge string `json:"challenge"`
	}
	require.NoError(t, json.Unmarshal(options, &opts))
	require.NotEmpty(t, opts.Challenge)
	return opts.Challenge
}

func registrationInput(a domainauth.Account) RegistrationInput {
	return RegistrationInput{AccountID: a.ID, PublicID: a.PublicID, Username: a.Username}
}

func TestPasskeyService_RegistrationRoundTrip(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	in := registrationInput(alice)

	opts, err := f.passkey.BeginRegistration(ctx, in)
	require.NoError(t, err)

	reg, err := f.passkey.FinishRegistration(ctx, in, mockauth.FakeAttestation(challengeOf(t, opts), "cred-A"))
	require.NoError(t, err)
	assert.Equal(t, "cred-A", reg.CredentialID)
	assert.Equal(t, domainauth.DeviceSingle, reg.DeviceType)
	assert.Empty(t, f.cache.Keys(), "challenge must be consumed")
}

func TestPasskeyService_FinishRegistrationWithoutChallenge(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.newAccount(t, "alice", "pw")

	_, err := f.passkey.FinishRegistration(context.Background(), registrationInput(alice), mockauth.FakeAttestation("x", "cred-A"))
	assert.True(t, apperrors.IsVerificationInvalid(err))
}

func TestPasskeyService_FailedRegistrationConsumesChallenge(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	in := registrationInput(alice)

	opts, err := f.passkey.BeginRegistration(ctx, in)
	require.NoError(t, err)
	challenge := challengeOf(t, opts)

	_, err = f.passkey.FinishRegistration(ctx, in, mockauth.FakeAttestation("forged", "cred-A"))
	assert.True(t, apperrors.IsVerificationInvalid(err))

	_, err = f.passkey.FinishRegistration(ctx, in, mockauth.FakeAttestation(challenge, "cred-A"))
	assert.True(t, apperrors.IsVerificationInvalid(err), "a challenge is good for one attempt only")
}

func TestPasskeyService_RegistrationExcludesExistingCredentials(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	f.registerPasskey(t, alice, "cred-A", 0)
	in := registrationInput(alice)

	opts, err := f.passkey.BeginRegistration(ctx, in)
	require.NoError(t, err)

	var parsed struct {
		Exclude []string `json:"excludeCredentials"`
	}
	require.NoError(t, json.Unmarshal(opts, &parsed))
	assert.Equal(t, []string{"cred-A"}, parsed.Exclude)

	_, err = f.passkey.FinishRegistration(ctx, in, mockauth.FakeAttestation(challengeOf(t, opts), "cred-A"))
	assert.True(t, apperrors.IsVerificationInvalid(err))
}

func TestPasskeyService_AbandonedRegistrationDoesNotBlockRetry(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	in := registrationInput(alice)

	stale, err := f.passkey.BeginRegistration(ctx, in)
	require.NoError(t, err)
	f.clock.Advance(6 * time.Minute)

	_, err = f.passkey.FinishRegistration(ctx, in, mockauth.FakeAttestation(challengeOf(t, stale), "cred-A"))
	assert.True(t, apperrors.IsVerificationInvalid(err), "expired challenge")

	fresh, err := f.passkey.BeginRegistration(ctx, in)
	require.NoError(t, err)
	_, err = f.passkey.FinishRegistration(ctx, in, mockauth.FakeAttestation(challengeOf(t, fresh), "cred-A"))
	require.NoError(t, err)
}

func TestPasskeyService_RegistrationValidatesInput(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.newAccount(t, "alice", "pw")
	in := registrationInput(alice)
	in.Attachment = "usb"

	_, err := f.passkey.BeginRegistration(context.Background(), in)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "attachment", apperrors.GetField(err))
}

func TestPasskeyService_DiscoverableAuthentication(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	f.registerPasskey(t, alice, "cred-A", 5)

	opts, err := f.passkey.BeginAuthentication(ctx, "cookie-1", nil)
	require.NoError(t, err)

	out, err := f.passkey.Authenticate(ctx, "cookie-1", mockauth.FakeAssertion(challengeOf(t, opts), "cred-A", 6))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, out.Account.ID)
	assert.Equal(t, domainauth.CounterAdvanced, out.CounterStatus)

	stored, err := f.passkeys.FindByCredentialID(ctx, "cred-A")
	require.NoError(t, err)
	assert.Equal(t, uint32(6), stored.Counter)
	assert.Empty(t, f.cache.Keys())
}

func TestPasskeyService_FinishAuthenticationDoesNotPersistCounter(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	f.registerPasskey(t, alice, "cred-A", 5)

	opts, err := f.passkey.BeginAuthentication(ctx, "cookie-1", nil)
	require.NoError(t, err)

	out, err := f.passkey.FinishAuthentication(ctx, "cookie-1", mockauth.FakeAssertion(challengeOf(t, opts), "cred-A", 9))
	require.NoError(t, err)
	assert.Equal(t, uint32(9), out.NewCounter)

	stored, err := f.passkeys.FindByCredentialID(ctx, "cred-A")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), stored.Counter)
}

func TestPasskeyService_UnknownAuthenticatorVersusMissingChallenge(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	f.registerPasskey(t, alice, "cred-A", 0)

	opts, err := f.passkey.BeginAuthentication(ctx, "cookie-1", nil)
	require.NoError(t, err)
	_, err = f.passkey.FinishAuthentication(ctx, "cookie-1", mockauth.FakeAssertion(challengeOf(t, opts), "deleted", 1))
	require.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "authenticator not found")

	_, err = f.passkey.FinishAuthentication(ctx, "cookie-2", mockauth.FakeAssertion("whatever", "cred-A", 1))
	assert.True(t, apperrors.IsVerificationInvalid(err))
}

func TestPasskeyService_RegistrationChallengeCannotAuthenticate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	f.registerPasskey(t, alice, "cred-A", 0)

	opts, err := f.passkey.BeginRegistration(ctx, registrationInput(alice))
	require.NoError(t, err)

	_, err = f.passkey.FinishAuthentication(ctx, alice.PublicID, mockauth.FakeAssertion(challengeOf(t, opts), "cred-A", 1))
	assert.True(t, apperrors.IsVerificationInvalid(err))
}

func TestPasskeyService_AuthenticationRestrictedToKnownAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	bob := f.newAccount(t, "bob", "pw")
	f.registerPasskey(t, alice, "cred-A", 0)
	f.registerPasskey(t, bob, "cred-B", 0)

	opts, err := f.passkey.BeginAuthentication(ctx, "cookie-1", &bob)
	require.NoError(t, err)

	var parsed struct {
		Allow []string `json:"allowCredentials"`
	}
	require.NoError(t, json.Unmarshal(opts, &parsed))
	assert.Equal(t, []string{"cred-B"}, parsed.Allow)

	_, err = f.passkey.FinishAuthentication(ctx, "cookie-1", mockauth.FakeAssertion(challengeOf(t, opts), "cred-A", 1))
	assert.True(t, apperrors.IsVerificationInvalid(err))
}

func TestPasskeyService_ClonePolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  domainauth.ClonePolicy
		wantErr bool
	}{
		{name: "reject", policy: domainauth.ClonePolicyReject, wantErr: true},
		{name: "flag", policy: domainauth.ClonePolicyFlag, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			ctx := context.Background()
			f.passkey = NewPasskeyService(PasskeyServiceOptions{
				Accounts:       f.accounts,
				Authenticators: f.passkeys,
				Cache:          f.cache,
				Ceremony:       f.ceremony,
				ClonePolicy:    tt.policy,
				Notifier:       f.events,
				Now:            f.clock.Now,
			})
			alice := f.newAccount(t, "alice", "pw")
			f.registerPasskey(t, alice, "cred-A", 10)

			opts, err := f.passkey.BeginAuthentication(ctx, "cookie-1", nil)
			require.NoError(t, err)
			_, err = f.passkey.Authenticate(ctx, "cookie-1", mockauth.FakeAssertion(challengeOf(t, opts), "cred-A", 10))
			if tt.wantErr {
				assert.True(t, apperrors.IsVerificationInvalid(err))
			} else {
				require.NoError(t, err)
			}

			stored, err := f.passkeys.FindByCredentialID(ctx, "cred-A")
			require.NoError(t, err)
			assert.Equal(t, uint32(10), stored.Counter, "a regressed counter is never stored")

			require.Len(t, f.events.events, 1)
			assert.Equal(t, notify.EventPasskeyCloneSuspected, f.events.events[0].Type)
			assert.Equal(t, notify.SeverityCritical, f.events.events[0].Severity)
		})
	}
}

func TestPasskeyService_CounterUnsupported(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	f.registerPasskey(t, alice, "cred-A", 0)

	opts, err := f.passkey.BeginAuthentication(ctx, "cookie-1", nil)
	require.NoError(t, err)
	out, err := f.passkey.Authenticate(ctx, "cookie-1", mockauth.FakeAssertion(challengeOf(t, opts), "cred-A", 0))
	require.NoError(t, err)
	assert.Equal(t, domainauth.CounterUnsupported, out.CounterStatus)
	assert.Empty(t, f.events.events)
}

func TestPasskeyService_OutOfOrderAssertionsNeverLowerCounter(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	f.registerPasskey(t, alice, "cred-A", 5)

	opts1, err := f.passkey.BeginAuthentication(ctx, "cookie-1", nil)
	require.NoError(t, err)
	opts2, err := f.passkey.BeginAuthentication(ctx, "cookie-2", nil)
	require.NoError(t, err)

	// Both assertions are checked against the stored counter of 5.
	first, err := f.passkey.FinishAuthentication(ctx, "cookie-1", mockauth.FakeAssertion(challengeOf(t, opts1), "cred-A", 9))
	require.NoError(t, err)
	second, err := f.passkey.FinishAuthentication(ctx, "cookie-2", mockauth.FakeAssertion(challengeOf(t, opts2), "cred-A", 6))
	require.NoError(t, err)
	assert.Equal(t, domainauth.CounterAdvanced, second.CounterStatus)

	require.NoError(t, f.passkey.RecordAssertion(ctx, first))
	err = f.passkey.RecordAssertion(ctx, second)
	assert.True(t, apperrors.IsVerificationInvalid(err))
	assert.Equal(t, domainauth.CounterRegressed, second.CounterStatus)

	stored, err := f.passkeys.FindByCredentialID(ctx, "cred-A")
	require.NoError(t, err)
	assert.Equal(t, uint32(9), stored.Counter)
	assert.Equal(t, []notify.EventType{notify.EventPasskeyCloneSuspected}, f.events.Types())
}
