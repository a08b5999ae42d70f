// Package passkey implements ports.PasskeyCeremony with go-webauthn.
package passkey

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/uninbox/authd/config"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/ports"
)

// Ceremony runs WebAuthn registration and authentication for a single relying party.
type Ceremony struct {
	wa *webauthn.WebAuthn
}

var _ ports.PasskeyCeremony = (*Ceremony)(nil)

// New builds a Ceremony from the relying-party configuration.
func New(cfg config.WebAuthnConfig) (*Ceremony, error) {
	if cfg.RPID == "" {
		return nil, errors.New("webauthn: relying party id is required")
	}
	if len(cfg.RPOrigins) == 0 {
		return nil, errors.New("webauthn: at least one origin is required")
	}
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: %w", err)
	}
	return &Ceremony{wa: wa}, nil
}

// encodeID is the canonical credential id encoding stored by the repositories.
func encodeID(raw []byte) string { return base64.RawURLEncoding.EncodeToString(raw) }

// user adapts ports.PasskeyUser to webauthn.User. The WebAuthn user handle is
// the account public id so discoverable logins can be matched back.
type user struct {
	ports.PasskeyUser
}

func (u user) WebAuthnID() []byte          { return []byte(u.PublicID) }
func (u user) WebAuthnName() string        { return u.Username }
func (u user) WebAuthnDisplayName() string { return u.Username }

func (u user) WebAuthnCredentials() []webauthn.Credential {
	out := make([]webauthn.Credential, 0, len(u.Credentials))
	for _, a := range u.Credentials {
		id, err := base64.RawURLEncoding.DecodeString(a.CredentialID)
		if err != nil {
			continue
		}
		transports := make([]protocol.AuthenticatorTransport, len(a.Transports))
		for i, t := range a.Transports {
			transports[i] = protocol.AuthenticatorTransport(t)
		}
		out = append(out, webauthn.Credential{
			ID:        id,
			PublicKey: a.PublicKey,
			Transport: transports,
			Flags: webauthn.CredentialFlags{
				BackupEligible: a.DeviceType == domainauth.DeviceMulti,
				BackupState:    a.BackedUp,
			},
			Authenticator: webauthn.Authenticator{SignCount: a.Counter},
		})
	}
	return out
}

func (u user) descriptors() []protocol.CredentialDescriptor {
	creds := u.WebAuthnCredentials()
	out := make([]protocol.CredentialDescriptor, len(creds))
	for i, c := range creds {
		out[i] = c.Descriptor()
	}
	return out
}

func start(options any, session *webauthn.SessionData) (*ports.CeremonyStart, error) {
	opts, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("encode ceremony options: %w", err)
	}
	state, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encode ceremony state: %w", err)
	}
	return &ports.CeremonyStart{Options: opts, Challenge: session.Challenge, State: state}, nil
}

func decodeState(state []byte) (webauthn.SessionData, error) {
	var session webauthn.SessionData
	if err := json.Unmarshal(state, &session); err != nil {
		return session, apperrors.Wrap(err, apperrors.ErrCodeVerificationInvalid, "passkey challenge is corrupt")
	}
	return session, nil
}

// invalid reports a failed verification without echoing library internals to clients.
func invalid(err error, what string) error {
	return apperrors.Wrap(err, apperrors.ErrCodeVerificationInvalid, what)
}

// BeginRegistration creates options that exclude the account's existing passkeys.
func (c *Ceremony) BeginRegistration(u ports.PasskeyUser, attachment string) (*ports.CeremonyStart, error) {
	wu := user{u}
	selection := protocol.AuthenticatorSelection{
		ResidentKey:      protocol.ResidentKeyRequirementPreferred,
		UserVerification: protocol.VerificationPreferred,
	}
	switch attachment {
	case "":
	case string(protocol.Platform), string(protocol.CrossPlatform):
		selection.AuthenticatorAttachment = protocol.AuthenticatorAttachment(attachment)
	default:
		return nil, apperrors.ValidationField("attachment", "attachment must be platform or cross-platform")
	}

	options, session, err := c.wa.BeginRegistration(wu,
		webauthn.WithExclusions(wu.descriptors()),
		webauthn.WithAuthenticatorSelection(selection),
	)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	return start(options, session)
}

// FinishRegistration verifies an attestation response against the stored state.
func (c *Ceremony) FinishRegistration(u ports.PasskeyUser, state, response []byte) (*ports.RegisteredCredential, error) {
	session, err := decodeState(state)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, invalid(err, "passkey registration response is malformed")
	}
	cred, err := c.wa.CreateCredential(user{u}, session, parsed)
	if err != nil {
		return nil, invalid(err, "passkey registration could not be verified")
	}

	deviceType := domainauth.DeviceSingle
	if cred.Flags.BackupEligible {
		deviceType = domainauth.DeviceMulti
	}
	transports := make([]string, len(cred.Transport))
	for i, t := range cred.Transport {
		transports[i] = string(t)
	}
	return &ports.RegisteredCredential{
		CredentialID: encodeID(cred.ID),
		PublicKey:    cred.PublicKey,
		Counter:      cred.Authenticator.SignCount,
		DeviceType:   deviceType,
		BackedUp:     cred.Flags.BackupState,
		Transports:   transports,
	}, nil
}

// BeginAuthentication starts a login. A nil user starts a discoverable login.
func (c *Ceremony) BeginAuthentication(u *ports.PasskeyUser) (*ports.CeremonyStart, error) {
	var (
		options *protocol.CredentialAssertion
		session *webauthn.SessionData
		err     error
	)
	if u == nil {
		options, session, err = c.wa.BeginDiscoverableLogin()
	} else {
		options, session, err = c.wa.BeginLogin(user{*u})
	}
	if err != nil {
		return nil, fmt.Errorf("begin authentication: %w", err)
	}
	return start(options, session)
}

// AssertionCredentialID extracts the credential id of an unverified assertion.
func (c *Ceremony) AssertionCredentialID(response []byte) (string, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return "", invalid(err, "passkey response is malformed")
	}
	return encodeID(parsed.RawID), nil
}

// FinishAuthentication verifies an assertion. Counter is the value the
// authenticator reported, not the library's adjusted count.
func (c *Ceremony) FinishAuthentication(u ports.PasskeyUser, state, response []byte) (*ports.AssertionResult, error) {
	session, err := decodeState(state)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, invalid(err, "passkey response is malformed")
	}

	wu := user{u}
	var cred *webauthn.Credential
	if len(session.UserID) == 0 {
		cred, err = c.wa.ValidateDiscoverableLogin(func(_, userHandle []byte) (webauthn.User, error) {
			if !bytes.Equal(userHandle, wu.WebAuthnID()) {
				return nil, errors.New("user handle does not match credential owner")
			}
			return wu, nil
		}, session, parsed)
	} else {
		cred, err = c.wa.ValidateLogin(wu, session, parsed)
	}
	if err != nil {
		return nil, invalid(err, "passkey assertion could not be verified")
	}
	return &ports.AssertionResult{
		CredentialID: encodeID(cred.ID),
		Counter:      parsed.Response.AuthenticatorData.Counter,
		BackedUp:     parsed.Response.AuthenticatorData.Flags.HasBackupState(),
	}, nil
}
