package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/uninbox/authd/internal/core"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/observability/metrics"
	"github.com/uninbox/authd/internal/observability/notify"
	"github.com/uninbox/authd/internal/observability/statsd"
	"github.com/uninbox/authd/internal/ports"
)

const defaultChallengeTTL = 5 * time.Minute

// PasskeyServiceOptions groups dependencies for PasskeyService.
type PasskeyServiceOptions struct {
	Accounts       core.AccountRepository
	Authenticators core.AuthenticatorRepository
	Cache          core.CacheRepository
	Ceremony       ports.PasskeyCeremony

	ChallengeTTL time.Duration
	ClonePolicy  domainauth.ClonePolicy

	Notifier notify.Sink
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Now      func() time.Time
}

// PasskeyService runs WebAuthn registration and authentication ceremonies and
// keeps their challenges in the cache between the two round trips.
type PasskeyService struct {
	accounts       core.AccountRepository
	authenticators core.AuthenticatorRepository
	challenges     *core.ChallengeCache
	ceremony       ports.PasskeyCeremony

	challengeTTL time.Duration
	clonePolicy  domainauth.ClonePolicy

	notifier notify.Sink
	logger   *slog.Logger
	metrics  statsd.Sink
	now      func() time.Time
}

// NewPasskeyService constructs a PasskeyService.
func NewPasskeyService(opts PasskeyServiceOptions) *PasskeyService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.ChallengeTTL
	if ttl <= 0 {
		ttl = defaultChallengeTTL
	}
	policy := opts.ClonePolicy
	if policy == "" {
		policy = domainauth.ClonePolicyReject
	}
	return &PasskeyService{
		accounts:       opts.Accounts,
		authenticators: opts.Authenticators,
		challenges:     core.NewChallengeCache(opts.Cache),
		ceremony:       opts.Ceremony,
		challengeTTL:   ttl,
		clonePolicy:    policy,
		notifier:       opts.Notifier,
		logger:         logger.With("component", "passkey"),
		metrics:        opts.Metrics,
		now:            now,
	}
}

// RegistrationInput identifies the account registering a passkey.
type RegistrationInput struct {
	AccountID  int64
	PublicID   string
	Username   string
	Attachment string
}

func (in RegistrationInput) validate() error {
	if in.AccountID <= 0 {
		return apperrors.ValidationField("account_id", "account id is required")
	}
	if strings.TrimSpace(in.PublicID) == "" {
		return apperrors.ValidationField("public_id", "account public id is required")
	}
	switch in.Attachment {
	case "", "platform", "cross-platform":
		return nil
	default:
		return apperrors.ValidationField("attachment", "attachment must be platform or cross-platform")
	}
}

func (s *PasskeyService) passkeyUser(ctx context.Context, accountID int64, publicID, username string) (ports.PasskeyUser, error) {
	creds, err := s.authenticators.ListByAccount(ctx, accountID)
	if err != nil {
		return ports.PasskeyUser{}, fmt.Errorf("list passkeys: %w", err)
	}
	return ports.PasskeyUser{AccountID: accountID, PublicID: publicID, Username: username, Credentials: creds}, nil
}

// BeginRegistration returns creation options that exclude the account's
// existing credentials. A pending ceremony for the same account is replaced.
func (s *PasskeyService) BeginRegistration(ctx context.Context, in RegistrationInput) (json.RawMessage, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	user, err := s.passkeyUser(ctx, in.AccountID, in.PublicID, in.Username)
	if err != nil {
		return nil, err
	}

	start, err := s.ceremony.BeginRegistration(user, in.Attachment)
	if err != nil {
		return nil, fmt.Errorf("begin passkey registration: %w", err)
	}

	err = s.challenges.Put(ctx, in.PublicID, domainauth.PasskeyChallenge{
		Type:      domainauth.ChallengeRegistration,
		Challenge: start.Challenge,
		Ceremony:  start.State,
		AccountID: in.AccountID,
		CreatedAt: s.now().UTC(),
	}, s.challengeTTL)
	if err != nil {
		return nil, err
	}
	return start.Options, nil
}

// FinishRegistration verifies an attestation against the pending challenge.
// The challenge is consumed whether or not verification succeeds.
func (s *PasskeyService) FinishRegistration(
	ctx context.Context,
	in RegistrationInput,
	response []byte,
) (*ports.RegisteredCredential, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if len(response) == 0 {
		return nil, apperrors.ValidationField("response", "registration response is required")
	}

	ch, err := s.challenges.Take(ctx, in.PublicID)
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.Type != domainauth.ChallengeRegistration || ch.AccountID != in.AccountID {
		return nil, apperrors.VerificationInvalid("no registration challenge found or it has expired")
	}

	user, err := s.passkeyUser(ctx, in.AccountID, in.PublicID, in.Username)
	if err != nil {
		return nil, err
	}

	reg, err := s.ceremony.FinishRegistration(user, ch.Ceremony, response)
	if err != nil {
		metrics.EmitAuthOp(s.metrics, metrics.AuthMetric{Op: "passkey.register", Result: metrics.ResultDenied})
		return nil, apperrors.Wrap(err, apperrors.ErrCodeVerificationInvalid, "passkey registration could not be verified")
	}

	metrics.EmitAuthOp(s.metrics, metrics.AuthMetric{Op: "passkey.register", Result: metrics.ResultSuccess})
	return reg, nil
}

// BeginAuthentication stores an authentication challenge under challengeID.
// With a known account the allowed credentials are restricted to its
// passkeys; with nil any discoverable credential may answer.
func (s *PasskeyService) BeginAuthentication(
	ctx context.Context,
	challengeID string,
	account *domainauth.Account,
) (json.RawMessage, error) {
	if strings.TrimSpace(challengeID) == "" {
		return nil, apperrors.ValidationField("challenge_id", "challenge id is required")
	}

	var user *ports.PasskeyUser
	ch := domainauth.PasskeyChallenge{Type: domainauth.ChallengeAuthentication, CreatedAt: s.now().UTC()}
	if account != nil {
		u, err := s.passkeyUser(ctx, account.ID, account.PublicID, account.Username)
		if err != nil {
			return nil, err
		}
		user = &u
		ch.AccountID = account.ID
	}

	start, err := s.ceremony.BeginAuthentication(user)
	if err != nil {
		return nil, fmt.Errorf("begin passkey authentication: %w", err)
	}
	ch.Challenge = start.Challenge
	ch.Ceremony = start.State

	if err := s.challenges.Put(ctx, challengeID, ch, s.challengeTTL); err != nil {
		return nil, err
	}
	return start.Options, nil
}

// AssertionOutcome is a verified assertion. NewCounter is not yet persisted;
// RecordAssertion applies the clone policy and writes it.
type AssertionOutcome struct {
	Account       domainauth.Account
	Authenticator domainauth.Authenticator
	NewCounter    uint32
	CounterStatus domainauth.CounterStatus
}

// CloneSuspected reports whether the counter failed to advance.
func (o AssertionOutcome) CloneSuspected() bool {
	return o.CounterStatus == domainauth.CounterRegressed
}

// FinishAuthentication verifies an assertion against the challenge stored
// under challengeID. The authenticator is resolved from the credential id in
// the response; an unknown credential is reported as not found, separately
// from a missing challenge. The challenge is consumed in every case.
func (s *PasskeyService) FinishAuthentication(
	ctx context.Context,
	challengeID string,
	response []byte,
) (*AssertionOutcome, error) {
	if strings.TrimSpace(challengeID) == "" {
		return nil, apperrors.ValidationField("challenge_id", "challenge id is required")
	}
	credentialID, err := s.ceremony.AssertionCredentialID(response)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed passkey assertion")
	}

	ch, err := s.challenges.Take(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	authn, err := s.authenticators.FindByCredentialID(ctx, credentialID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("authenticator not found")
		}
		return nil, fmt.Errorf("find passkey: %w", err)
	}

	if ch == nil || ch.Type != domainauth.ChallengeAuthentication {
		return nil, apperrors.VerificationInvalid("no authentication challenge found or it has expired")
	}
	if ch.AccountID != 0 && ch.AccountID != authn.AccountID {
		return nil, apperrors.VerificationInvalid("passkey does not belong to this account")
	}

	account, err := s.accounts.FindByID(ctx, authn.AccountID)
	if err != nil {
		return nil, fmt.Errorf("find passkey owner: %w", err)
	}
	user, err := s.passkeyUser(ctx, account.ID, account.PublicID, account.Username)
	if err != nil {
		return nil, err
	}

	res, err := s.ceremony.FinishAuthentication(user, ch.Ceremony, response)
	if err != nil {
		metrics.EmitAuthOp(s.metrics, metrics.AuthMetric{Op: "passkey.authenticate", Result: metrics.ResultDenied})
		return nil, apperrors.Wrap(err, apperrors.ErrCodeVerificationInvalid, "passkey assertion could not be verified")
	}

	return &AssertionOutcome{
		Account:       *account,
		Authenticator: *authn,
		NewCounter:    res.Counter,
		CounterStatus: domainauth.CheckCounter(authn.Counter, res.Counter),
	}, nil
}

// RecordAssertion persists the counter of a verified assertion. A counter that
// did not advance raises a critical notification; under the reject policy the
// assertion is refused and the stored counter is left untouched. An assertion
// that lost the race to a concurrent one with an equal or higher counter is
// treated as a regression.
func (s *PasskeyService) RecordAssertion(ctx context.Context, out *AssertionOutcome) error {
	if out.CounterStatus == domainauth.CounterAdvanced {
		advanced, err := s.authenticators.UpdateCounter(ctx, out.Authenticator.CredentialID, out.NewCounter)
		if err != nil {
			return fmt.Errorf("update passkey counter: %w", err)
		}
		if !advanced {
			out.CounterStatus = domainauth.CounterRegressed
		}
	}

	if out.CounterStatus == domainauth.CounterRegressed {
		s.logger.WarnContext(ctx, "passkey counter did not advance",
			"account_id", out.Account.ID,
			"credential_id", out.Authenticator.CredentialID,
			"stored", out.Authenticator.Counter,
			"reported", out.NewCounter,
			"policy", s.clonePolicy,
		)
		notify.Emit(ctx, s.notifier, s.logger, notify.Event{
			Type:            notify.EventPasskeyCloneSuspected,
			Severity:        notify.SeverityCritical,
			AccountID:       out.Account.ID,
			AccountPublicID: out.Account.PublicID,
			Summary:         "Passkey signature counter did not advance; the authenticator may be cloned",
			OccurredAt:      s.now().UTC(),
			Metadata: map[string]string{
				"credential_id": out.Authenticator.CredentialID,
				"policy":        string(s.clonePolicy),
			},
		})
		if s.clonePolicy == domainauth.ClonePolicyReject {
			metrics.EmitAuthOp(s.metrics, metrics.AuthMetric{Op: "passkey.authenticate", Result: metrics.ResultDenied})
			return apperrors.VerificationInvalid("passkey rejected: signature counter did not advance")
		}
	}
	metrics.EmitAuthOp(s.metrics, metrics.AuthMetric{Op: "passkey.authenticate", Result: metrics.ResultSuccess})
	return nil
}

// Authenticate runs FinishAuthentication followed by RecordAssertion.
func (s *PasskeyService) Authenticate(ctx context.Context, challengeID string, response []byte) (*AssertionOutcome, error) {
	out, err := s.FinishAuthentication(ctx, challengeID, response)
	if err != nil {
		return nil, err
	}
	if err := s.RecordAssertion(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}
