package testutil

import (
	"time"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
)

// SessionBuilder provides a fluent interface for building sessions in tests.
type SessionBuilder struct {
	sess domainauth.Session
}

// NewSession creates a SessionBuilder for token with sensible defaults: a
// desktop Firefox session created now and valid for an hour.
func NewSession(token string) *SessionBuilder {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &SessionBuilder{
		sess: domainauth.Session{
			Token:     token,
			PublicID:  "pub-" + token,
			Device:    "Firefox",
			OS:        "Linux",
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		},
	}
}

// ForAccount attaches the session to account and fills its payload.
func (b *SessionBuilder) ForAccount(account domainauth.Account) *SessionBuilder {
	b.sess.AccountID = account.ID
	b.sess.Account = account.Payload()
	return b
}

// WithDevice sets the device and OS labels.
func (b *SessionBuilder) WithDevice(device, os string) *SessionBuilder {
	b.sess.Device = device
	b.sess.OS = os
	return b
}

// CreatedAt sets the creation time.
func (b *SessionBuilder) CreatedAt(t time.Time) *SessionBuilder {
	b.sess.CreatedAt = t
	return b
}

// ExpiresAt sets the expiry.
func (b *SessionBuilder) ExpiresAt(t time.Time) *SessionBuilder {
	b.sess.ExpiresAt = t
	return b
}

// Expired moves the session window entirely into the past.
func (b *SessionBuilder) Expired() *SessionBuilder {
	now := time.Now().UTC().Truncate(time.Millisecond)
	b.sess.CreatedAt = now.Add(-2 * time.Hour)
	b.sess.ExpiresAt = now.Add(-time.Hour)
	return b
}

// Build returns the session.
func (b *SessionBuilder) Build() domainauth.Session {
	return b.sess
}

// AuthenticatorBuilder provides a fluent interface for building passkey credentials.
type AuthenticatorBuilder struct {
	auth domainauth.Authenticator
}

// NewAuthenticator creates an AuthenticatorBuilder for credentialID.
func NewAuthenticator(credentialID string) *AuthenticatorBuilder {
	return &AuthenticatorBuilder{
		auth: domainauth.Authenticator{
			CredentialID: credentialID,
			PublicKey:    []byte{1, 2, 3},
			DeviceType:   domainauth.DeviceSingle,
		},
	}
}

// ForAccount sets the owning account.
func (b *AuthenticatorBuilder) ForAccount(accountID int64) *AuthenticatorBuilder {
	b.auth.AccountID = accountID
	return b
}

// Synced marks the credential as a backed-up multi-device passkey.
func (b *AuthenticatorBuilder) Synced() *AuthenticatorBuilder {
	b.auth.DeviceType = domainauth.DeviceMulti
	b.auth.BackedUp = true
	return b
}

// WithNickname sets the display nickname.
func (b *AuthenticatorBuilder) WithNickname(name string) *AuthenticatorBuilder {
	b.auth.Nickname = name
	return b
}

// WithCounter sets the signature counter.
func (b *AuthenticatorBuilder) WithCounter(n uint32) *AuthenticatorBuilder {
	b.auth.Counter = n
	return b
}

// Build returns the authenticator.
func (b *AuthenticatorBuilder) Build() domainauth.Authenticator {
	return b.auth
}
