package auth

// Package auth contains domain-level types for accounts, sessions, verification
// tokens and passkeys. It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// SessionPayloadVersion is bumped whenever the cached session shape changes.
// Entries carrying another version are treated as cache misses.
const SessionPayloadVersion = 1

// SessionPayload is the account snapshot attached to a session.
type SessionPayload struct {
	Version   int    `json:"v"`
	AccountID int64  `json:"account_id"`
	PublicID  string `json:"public_id"`
	Username  string `json:"username"`
}

// Session is the server-side record for an authenticated account.
// Token is the opaque cookie value and the primary lookup key; PublicID is
// safe to show to the owner (e.g. in a session list) without leaking the token.
type Session struct {
	Token     string         `json:"token"`
	PublicID  string         `json:"public_id"`
	AccountID int64          `json:"account_id"`
	Device    string         `json:"device"`
	OS        string         `json:"os"`
	ExpiresAt time.Time      `json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
	Account   SessionPayload `json:"account"`
}

// Expired reports whether the session has expired as of now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionAttributes are the caller-supplied inputs to session creation.
type SessionAttributes struct {
	Account SessionPayload
	Device  string
	OS      string
}

// Account is the identity snapshot used to build sessions.
type Account struct {
	ID          int64
	PublicID    string
	Username    string
	LastLoginAt *time.Time
}

// Payload builds the session snapshot for this account.
func (a Account) Payload() SessionPayload {
	return SessionPayload{
		Version:   SessionPayloadVersion,
		AccountID: a.ID,
		PublicID:  a.PublicID,
		Username:  a.Username,
	}
}

// Credentials holds the secrets attached to an account.
// Empty strings mean "not configured".
type Credentials struct {
	AccountID        int64
	PasswordHash     string
	TwoFactorSecret  string
	TwoFactorEnabled bool
	RecoveryCodeHash string
}

// HasPassword reports whether a password is configured.
func (c Credentials) HasPassword() bool { return c.PasswordHash != "" }

// HasTwoFactor reports whether TOTP is enabled and has a secret.
func (c Credentials) HasTwoFactor() bool { return c.TwoFactorEnabled && c.TwoFactorSecret != "" }

// CredentialsUpdate carries a partial credential update; nil fields are left unchanged.
type CredentialsUpdate struct {
	PasswordHash     *string
	TwoFactorSecret  *string
	TwoFactorEnabled *bool
	RecoveryCodeHash *string
	LastLoginAt      *time.Time
}

// IsEmpty reports whether the update changes nothing.
func (u CredentialsUpdate) IsEmpty() bool {
	return u.PasswordHash == nil && u.TwoFactorSecret == nil && u.TwoFactorEnabled == nil &&
		u.RecoveryCodeHash == nil && u.LastLoginAt == nil
}

// VerificationPurpose scopes a verification token to a family of sensitive actions.
type VerificationPurpose string

const (
	PurposePassword  VerificationPurpose = "password"
	PurposeTwoFactor VerificationPurpose = "2fa"
	PurposePasskey   VerificationPurpose = "passkey"
	PurposeSession   VerificationPurpose = "session"
)

// Valid reports whether p is a known purpose.
func (p VerificationPurpose) Valid() bool {
	switch p {
	case PurposePassword, PurposeTwoFactor, PurposePasskey, PurposeSession:
		return true
	default:
		return false
	}
}

// ParseVerificationPurpose normalizes raw input into a purpose.
func ParseVerificationPurpose(raw string) (VerificationPurpose, bool) {
	p := VerificationPurpose(strings.ToLower(strings.TrimSpace(raw)))
	return p, p.Valid()
}

// VerificationToken is a short-lived proof of recent re-authentication.
type VerificationToken struct {
	Token     string              `json:"token"`
	Purpose   VerificationPurpose `json:"purpose"`
	PublicID  string              `json:"public_id"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// ChallengeType tags a stored passkey challenge with its ceremony phase.
type ChallengeType string

const (
	ChallengeRegistration   ChallengeType = "registration"
	ChallengeAuthentication ChallengeType = "authentication"
)

// PasskeyChallenge is the stored state of an in-flight WebAuthn ceremony.
// Ceremony holds the serialized ceremony state of the WebAuthn library.
type PasskeyChallenge struct {
	Type      ChallengeType `json:"type"`
	Challenge string        `json:"challenge"`
	Ceremony  []byte        `json:"ceremony"`
	AccountID int64         `json:"account_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// DeviceType mirrors the WebAuthn backup eligibility of a credential.
type DeviceType string

const (
	DeviceSingle DeviceType = "singleDevice"
	DeviceMulti  DeviceType = "multiDevice"
)

// Authenticator is a registered passkey.
// CredentialID is the base64url (unpadded) encoding of the raw credential id.
type Authenticator struct {
	ID           int64
	AccountID    int64
	CredentialID string
	PublicKey    []byte
	Counter      uint32
	DeviceType   DeviceType
	BackedUp     bool
	Transports   []string
	Nickname     string
	CreatedAt    time.Time
}

// CounterStatus is the outcome of comparing a reported signature counter
// against the stored one.
type CounterStatus int

const (
	// CounterAdvanced means the counter increased as expected.
	CounterAdvanced CounterStatus = iota
	// CounterUnsupported means both counters are zero; the authenticator does not count.
	CounterUnsupported
	// CounterRegressed means the counter did not increase: a possible cloned authenticator.
	CounterRegressed
)

// CheckCounter compares a reported signature counter to the stored value.
func CheckCounter(stored, reported uint32) CounterStatus {
	if stored == 0 && reported == 0 {
		return CounterUnsupported
	}
	if reported <= stored {
		return CounterRegressed
	}
	return CounterAdvanced
}

// ClonePolicy decides what happens when CheckCounter reports CounterRegressed.
type ClonePolicy string

const (
	ClonePolicyReject ClonePolicy = "reject"
	ClonePolicyFlag   ClonePolicy = "flag"
)
