package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uninbox/authd/internal/core"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
	mockauth "github.com/uninbox/authd/internal/mocks/auth"
)

func TestVerificationService_PasswordRoundTrip(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "hunter22")

	tok, err := f.verifier.Issue(ctx, alice, VerificationRequest{
		Purpose:  domainauth.PurposePassword,
		Password: "hunter22",
	})
	require.NoError(t, err)
	assert.Equal(t, alice.PublicID, tok.PublicID)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), tok.ExpiresAt)

	ttl, ok := f.cache.TTL(core.TokenKey(domainauth.PurposePassword, alice.PublicID))
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, ttl)

	require.NoError(t, f.verifier.Consume(ctx, alice, domainauth.PurposePassword, tok.Token))

	err = f.verifier.Consume(ctx, alice, domainauth.PurposePassword, tok.Token)
	assert.True(t, apperrors.IsVerificationInvalid(err), "tokens are single use")
}

func TestVerificationService_TwoFactor(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
	}{
		{name: "missing code", code: "", wantMsg: "two-factor code is required"},
		{name: "wrong code", code: "999999", wantMsg: "incorrect two-factor code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			alice := f.newAccount(t, "alice", "pw")
			f.enableTOTP(t, alice)

			_, err := f.verifier.Issue(context.Background(), alice, VerificationRequest{
				Purpose:       domainauth.PurposePassword,
				Password:      "pw",
				TwoFactorCode: tt.code,
			})
			require.True(t, apperrors.IsNotAuthorized(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Empty(t, f.cache.Keys(), "no token is minted")
		})
	}

	t.Run("correct code", func(t *testing.T) {
		f := newAuthFixture(t)
		ctx := context.Background()
		alice := f.newAccount(t, "alice", "pw")
		code := f.enableTOTP(t, alice)

		tok, err := f.verifier.Issue(ctx, alice, VerificationRequest{
			Purpose:       domainauth.PurposePassword,
			Password:      "pw",
			TwoFactorCode: code,
		})
		require.NoError(t, err)
		require.NoError(t, f.verifier.Consume(ctx, alice, domainauth.PurposePassword, tok.Token))
		assert.True(t, apperrors.IsVerificationInvalid(f.verifier.Consume(ctx, alice, domainauth.PurposePassword, tok.Token)))
	})
}

func TestVerificationService_WrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.newAccount(t, "alice", "pw")
	code := f.enableTOTP(t, alice)

	_, err := f.verifier.Issue(context.Background(), alice, VerificationRequest{
		Purpose:       domainauth.PurposeTwoFactor,
		Password:      "nope",
		TwoFactorCode: code,
	})
	require.True(t, apperrors.IsNotAuthorized(err))
	assert.Contains(t, err.Error(), "incorrect password")
}

func TestVerificationService_PasswordlessAccount(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.newAccount(t, "alice", "")

	_, err := f.verifier.Issue(context.Background(), alice, VerificationRequest{
		Purpose:  domainauth.PurposePasskey,
		Password: "anything",
	})
	assert.True(t, apperrors.IsNotAuthorized(err))
}

func TestVerificationService_RejectsBadRequestsBeforeStoreAccess(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.newAccount(t, "alice", "pw")
	f.accounts.Fail = map[string]error{"FindCredentials": assert.AnError}

	tests := []struct {
		name string
		req  VerificationRequest
	}{
		{name: "unknown purpose", req: VerificationRequest{Purpose: "email", Password: "pw"}},
		{name: "no factor", req: VerificationRequest{Purpose: domainauth.PurposePassword}},
		{name: "both factors", req: VerificationRequest{Purpose: domainauth.PurposePassword, Password: "pw", PasskeyResponse: []byte("{}"), ChallengeID: "c"}},
		{name: "passkey without challenge", req: VerificationRequest{Purpose: domainauth.PurposePassword, PasskeyResponse: []byte("{}")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.verifier.Issue(context.Background(), alice, tt.req)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestVerificationService_ConsumeFailures(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	bob := f.newAccount(t, "bob", "pw")

	tok, err := f.verifier.Issue(ctx, alice, VerificationRequest{Purpose: domainauth.PurposePassword, Password: "pw"})
	require.NoError(t, err)

	invalid := []struct {
		name      string
		account   domainauth.Account
		purpose   domainauth.VerificationPurpose
		presented string
	}{
		{name: "wrong token", account: alice, purpose: domainauth.PurposePassword, presented: "guess"},
		{name: "empty token", account: alice, purpose: domainauth.PurposePassword, presented: ""},
		{name: "other purpose", account: alice, purpose: domainauth.PurposeTwoFactor, presented: tok.Token},
		{name: "other account", account: bob, purpose: domainauth.PurposePassword, presented: tok.Token},
	}
	for _, tt := range invalid {
		err := f.verifier.Consume(ctx, tt.account, tt.purpose, tt.presented)
		assert.True(t, apperrors.IsVerificationInvalid(err), tt.name)
	}

	// None of the failed attempts spent the real token.
	require.NoError(t, f.verifier.Consume(ctx, alice, domainauth.PurposePassword, tok.Token))
}

func TestVerificationService_TokenExpires(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")

	tok, err := f.verifier.Issue(ctx, alice, VerificationRequest{Purpose: domainauth.PurposeSession, Password: "pw"})
	require.NoError(t, err)

	f.clock.Advance(5*time.Minute + time.Second)
	err = f.verifier.Consume(ctx, alice, domainauth.PurposeSession, tok.Token)
	assert.True(t, apperrors.IsVerificationInvalid(err))
}

func TestVerificationService_ReissueReplacesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	req := VerificationRequest{Purpose: domainauth.PurposePassword, Password: "pw"}

	first, err := f.verifier.Issue(ctx, alice, req)
	require.NoError(t, err)
	second, err := f.verifier.Issue(ctx, alice, req)
	require.NoError(t, err)

	assert.True(t, apperrors.IsVerificationInvalid(f.verifier.Consume(ctx, alice, req.Purpose, first.Token)))
	require.NoError(t, f.verifier.Consume(ctx, alice, req.Purpose, second.Token))
}

func TestVerificationService_Passkey(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "")
	f.registerPasskey(t, alice, "cred-A", 1)

	opts, err := f.passkey.BeginAuthentication(ctx, "cookie-1", &alice)
	require.NoError(t, err)

	tok, err := f.verifier.Issue(ctx, alice, VerificationRequest{
		Purpose:         domainauth.PurposePasskey,
		PasskeyResponse: mockauth.FakeAssertion(challengeOf(t, opts), "cred-A", 2),
		ChallengeID:     "cookie-1",
	})
	require.NoError(t, err)
	require.NoError(t, f.verifier.Consume(ctx, alice, domainauth.PurposePasskey, tok.Token))

	stored, err := f.passkeys.FindByCredentialID(ctx, "cred-A")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), stored.Counter)
}

func TestVerificationService_PasskeyOfAnotherAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.newAccount(t, "alice", "pw")
	bob := f.newAccount(t, "bob", "pw")
	f.registerPasskey(t, bob, "cred-B", 1)

	opts, err := f.passkey.BeginAuthentication(ctx, "cookie-1", nil)
	require.NoError(t, err)

	_, err = f.verifier.Issue(ctx, alice, VerificationRequest{
		Purpose:         domainauth.PurposePasskey,
		PasskeyResponse: mockauth.FakeAssertion(challengeOf(t, opts), "cred-B", 2),
		ChallengeID:     "cookie-1",
	})
	assert.True(t, apperrors.IsNotAuthorized(err))

	stored, err := f.passkeys.FindByCredentialID(ctx, "cred-B")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), stored.Counter)
}
