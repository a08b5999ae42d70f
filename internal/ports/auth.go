package ports

// Package ports defines interfaces (hexagonal ports) for credential primitives.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"encoding/json"
	"errors"
	"time"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
)

// ErrPasswordMismatch is returned by PasswordHasher.Compare when the password is wrong.
var ErrPasswordMismatch = errors.New("password mismatch")

// PasswordHasher hashes and verifies passwords and recovery codes.
type PasswordHasher interface {
	Hash(secret string) (string, error)

	// Compare returns nil on match, ErrPasswordMismatch on mismatch, and any
	// other error for malformed hashes.
	Compare(hash, secret string) error
}

// TOTPKey is a freshly generated TOTP secret and its provisioning URI.
type TOTPKey struct {
	Secret string
	URI    string
}

// TOTP generates and validates time-based one-time passwords.
type TOTP interface {
	Generate(accountName string) (TOTPKey, error)
	Validate(code, secret string, at time.Time) bool
}

// PasskeyUser is the account view a WebAuthn ceremony needs.
type PasskeyUser struct {
	AccountID   int64
	PublicID    string
	Username    string
	Credentials []domainauth.Authenticator
}

// CeremonyStart is the outcome of beginning a WebAuthn ceremony.
type CeremonyStart struct {
	// Options is the JSON sent to the browser (navigator.credentials.create/get).
	Options json.RawMessage
	// Challenge is the base64url challenge embedded in Options.
	Challenge string
	// State is the opaque ceremony state that must be stored until verification.
	State []byte
}

// RegisteredCredential is a verified attestation ready to persist.
type RegisteredCredential struct {
	CredentialID string
	PublicKey    []byte
	Counter      uint32
	DeviceType   domainauth.DeviceType
	BackedUp     bool
	Transports   []string
}

// AssertionResult is a verified assertion. Counter is the value reported by the
// authenticator; persisting it is the caller's job.
type AssertionResult struct {
	CredentialID string
	Counter      uint32
	BackedUp     bool
}

// PasskeyCeremony runs the cryptographic half of WebAuthn ceremonies.
type PasskeyCeremony interface {
	// BeginRegistration excludes user.Credentials. attachment is "", "platform"
	// or "cross-platform".
	BeginRegistration(user PasskeyUser, attachment string) (*CeremonyStart, error)
	FinishRegistration(user PasskeyUser, state []byte, response []byte) (*RegisteredCredential, error)

	// BeginAuthentication restricts allowed credentials to user's when user is
	// non-nil; otherwise any discoverable credential may answer.
	BeginAuthentication(user *PasskeyUser) (*CeremonyStart, error)

	// AssertionCredentialID extracts the base64url credential id from a raw
	// assertion without verifying it.
	AssertionCredentialID(response []byte) (string, error)

	FinishAuthentication(user PasskeyUser, state []byte, response []byte) (*AssertionResult, error)
}
