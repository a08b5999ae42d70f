package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/ports"
)

// PlainHasher "hashes" by prefixing, keeping tests fast and deterministic.
type PlainHasher struct{}

func (PlainHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty secret")
	}
	return "plain:" + secret, nil
}

func (PlainHasher) Compare(hash, secret string) error {
	if !strings.HasPrefix(hash, "plain:") {
		return errors.New("malformed hash")
	}
	if hash != "plain:"+secret {
		return ports.ErrPasswordMismatch
	}
	return nil
}

// StaticTOTP accepts exactly one code per secret, configured via Codes.
type StaticTOTP struct {
	// Codes maps secret → currently valid code.
	Codes map[string]string
	next  int
}

// NewStaticTOTP creates a StaticTOTP with no secrets.
func NewStaticTOTP() *StaticTOTP { return &StaticTOTP{Codes: map[string]string{}} }

func (s *StaticTOTP) Generate(accountName string) (ports.TOTPKey, error) {
	s.next++
	secret := fmt.Sprintf("SECRET%d", s.next)
	s.Codes[secret] = fmt.Sprintf("%06d", s.next)
	return ports.TOTPKey{
		Secret: secret,
		URI:    "otpauth://totp/test:" + accountName + "?secret=" + secret,
	}, nil
}

func (s *StaticTOTP) Validate(code, secret string, _ time.Time) bool {
	want, ok := s.Codes[secret]
	return ok && code != "" && code == want
}

// ErrCeremonyFailed is returned by FakeCeremony when a response does not verify.
var ErrCeremonyFailed = errors.New("webauthn verification failed")

type fakeState struct {
	Challenge string   `json:"challenge"`
	PublicID  string   `json:"public_id,omitempty"`
	Allowed   []string `json:"allowed,omitempty"`
}

type fakeResponse struct {
	Challenge    string `json:"challenge"`
	CredentialID string `json:"credential_id"`
	Counter      uint32 `json:"counter"`
	BackedUp     bool   `json:"backed_up"`
}

// FakeCeremony is a deterministic PasskeyCeremony. Responses are the JSON
// produced by FakeAttestation and FakeAssertion; verification only checks that
// the echoed challenge matches the stored state and the credential is allowed.
type FakeCeremony struct {
	mu sync.Mutex
	n  int
}

func (f *FakeCeremony) challenge(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("%s-%d", prefix, f.n)
}

func start(st fakeState, opts any) (*ports.CeremonyStart, error) {
	state, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	return &ports.CeremonyStart{Options: raw, Challenge: st.Challenge, State: state}, nil
}

func credentialIDs(creds []domainauth.Authenticator) []string {
	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.CredentialID)
	}
	return ids
}

func (f *FakeCeremony) BeginRegistration(user ports.PasskeyUser, attachment string) (*ports.CeremonyStart, error) {
	st := fakeState{Challenge: f.challenge("reg"), PublicID: user.PublicID, Allowed: credentialIDs(user.Credentials)}
	return start(st, map[string]any{
		"challenge":          st.Challenge,
		"excludeCredentials": st.Allowed,
		"attachment":         attachment,
	})
}

func decode(state, response []byte) (fakeState, fakeResponse, error) {
	var st fakeState
	var resp fakeResponse
	if err := json.Unmarshal(state, &st); err != nil {
		return st, resp, fmt.Errorf("decode state: %w", err)
	}
	if err := json.Unmarshal(response, &resp); err != nil {
		return st, resp, fmt.Errorf("decode response: %w", err)
	}
	if resp.Challenge != st.Challenge {
		return st, resp, ErrCeremonyFailed
	}
	return st, resp, nil
}

func (f *FakeCeremony) FinishRegistration(
	user ports.PasskeyUser,
	state, response []byte,
) (*ports.RegisteredCredential, error) {
	st, resp, err := decode(state, response)
	if err != nil {
		return nil, err
	}
	if st.PublicID != user.PublicID || slices.Contains(st.Allowed, resp.CredentialID) {
		return nil, ErrCeremonyFailed
	}
	dt := domainauth.DeviceSingle
	if resp.BackedUp {
		dt = domainauth.DeviceMulti
	}
	return &ports.RegisteredCredential{
		CredentialID: resp.CredentialID,
		PublicKey:    []byte("pk-" + resp.CredentialID),
		Counter:      resp.Counter,
		DeviceType:   dt,
		BackedUp:     resp.BackedUp,
		Transports:   []string{"internal"},
	}, nil
}

func (f *FakeCeremony) BeginAuthentication(user *ports.PasskeyUser) (*ports.CeremonyStart, error) {
	st := fakeState{Challenge: f.challenge("auth")}
	if user != nil {
		st.PublicID = user.PublicID
		st.Allowed = credentialIDs(user.Credentials)
	}
	return start(st, map[string]any{"challenge": st.Challenge, "allowCredentials": st.Allowed})
}

func (f *FakeCeremony) AssertionCredentialID(response []byte) (string, error) {
	var resp fakeResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.CredentialID == "" {
		return "", errors.New("missing credential id")
	}
	return resp.CredentialID, nil
}

func (f *FakeCeremony) FinishAuthentication(
	user ports.PasskeyUser,
	state, response []byte,
) (*ports.AssertionResult, error) {
	st, resp, err := decode(state, response)
	if err != nil {
		return nil, err
	}
	if st.PublicID != "" && st.PublicID != user.PublicID {
		return nil, ErrCeremonyFailed
	}
	if len(st.Allowed) > 0 && !slices.Contains(st.Allowed, resp.CredentialID) {
		return nil, ErrCeremonyFailed
	}
	if !slices.Contains(credentialIDs(user.Credentials), resp.CredentialID) {
		return nil, ErrCeremonyFailed
	}
	return &ports.AssertionResult{CredentialID: resp.CredentialID, Counter: resp.Counter, BackedUp: resp.BackedUp}, nil
}

// FakeAttestation builds a registration response accepted by FakeCeremony.
func FakeAttestation(challenge, credentialID string) []byte {
	b, _ := json.Marshal(fakeResponse{Challenge: challenge, CredentialID: credentialID})
	return b
}

// FakeAssertion builds an authentication response accepted by FakeCeremony.
func FakeAssertion(challenge, credentialID string, counter uint32) []byte {
	b, _ := json.Marshal(fakeResponse{Challenge: challenge, CredentialID: credentialID, Counter: counter})
	return b
}
