package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uninbox/authd/internal/core"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/observability/metrics"
	"github.com/uninbox/authd/internal/observability/statsd"
	"github.com/uninbox/authd/internal/ports"
)

const defaultVerificationTokenTTL = 5 * time.Minute

// VerificationServiceOptions groups dependencies for VerificationService.
type VerificationServiceOptions struct {
	Accounts core.AccountRepository
	Cache    core.CacheRepository
	Hasher   ports.PasswordHasher
	TOTP     ports.TOTP
	Passkeys *PasskeyService

	TokenTTL time.Duration

	Logger  *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// VerificationService issues and consumes short-lived verification tokens
// that gate sensitive account mutations behind a fresh identity check.
type VerificationService struct {
	accounts core.AccountRepository
	tokens   *core.TokenCache
	hasher   ports.PasswordHasher
	totp     ports.TOTP
	passkeys *PasskeyService
	ttl      time.Duration

	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(opts VerificationServiceOptions) *VerificationService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultVerificationTokenTTL
	}
	return &VerificationService{
		accounts: opts.Accounts,
		tokens:   core.NewTokenCache(opts.Cache),
		hasher:   opts.Hasher,
		totp:     opts.TOTP,
		passkeys: opts.Passkeys,
		ttl:      ttl,
		logger:   logger.With("component", "verification"),
		metrics:  opts.Metrics,
		now:      now,
	}
}

// VerificationRequest proves the caller's identity either with a password
// (plus a TOTP code when 2FA is enabled) or with a passkey assertion answering
// the challenge stored under ChallengeID.
type VerificationRequest struct {
	Purpose domainauth.VerificationPurpose

	Password      string
	TwoFactorCode string

	PasskeyResponse []byte
	ChallengeID     string
}

func (r VerificationRequest) validate() error {
	if !r.Purpose.Valid() {
		return apperrors.ValidationField("purpose", "unknown verification purpose")
	}
	hasPasskey := len(r.PasskeyResponse) > 0
	switch {
	case hasPasskey && r.Password != "":
		return apperrors.Validation("provide either a password or a passkey assertion, not both")
	case hasPasskey && r.ChallengeID == "":
		return apperrors.ValidationField("challenge_id", "passkey verification requires a challenge")
	case !hasPasskey && r.Password == "":
		return apperrors.ValidationField("password", "password or passkey assertion is required")
	}
	return nil
}

// Issue re-verifies account and mints a token for req.Purpose. A previously
// minted token for the same purpose is replaced.
func (s *VerificationService) Issue(
	ctx context.Context,
	account domainauth.Account,
	req VerificationRequest,
) (*domainauth.VerificationToken, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var err error
	if len(req.PasskeyResponse) > 0 {
		err = s.verifyPasskey(ctx, account, req)
	} else {
		err = s.verifyPassword(ctx, account, req)
	}
	if err != nil {
		metrics.EmitAuthOp(s.metrics, metrics.AuthMetric{Op: "verification.issue", Result: resultFor(err), Err: err})
		return nil, err
	}

	tok := domainauth.VerificationToken{
		Token:     rand.Text(),
		Purpose:   req.Purpose,
		PublicID:  account.PublicID,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}
	if err := s.tokens.Put(ctx, tok.Purpose, tok.PublicID, tok.Token, s.ttl); err != nil {
		return nil, err
	}

	metrics.EmitAuthOp(s.metrics, metrics.AuthMetric{Op: "verification.issue", Result: metrics.ResultSuccess})
	return &tok, nil
}

// verifyPassword checks the password and, when 2FA is enabled, the TOTP code.
// Both checks run whenever both factors are configured.
func (s *VerificationService) verifyPassword(
	ctx context.Context,
	account domainauth.Account,
	req VerificationRequest,
) error {
	creds, err := s.accounts.FindCredentials(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if !creds.HasPassword() {
		return apperrors.NotAuthorized("no password is set for this account")
	}

	if err := s.hasher.Compare(creds.PasswordHash, req.Password); err != nil {
		if errors.Is(err, ports.ErrPasswordMismatch) {
			return apperrors.NotAuthorized("incorrect password")
		}
		return fmt.Errorf("compare password: %w", err)
	}

	if creds.HasTwoFactor() {
		if req.TwoFactorCode == "" {
			return apperrors.NotAuthorized("two-factor code is required")
		}
		if !s.totp.Validate(req.TwoFactorCode, creds.TwoFactorSecret, s.now()) {
			return apperrors.NotAuthorized("incorrect two-factor code")
		}
	}
	return nil
}

func (s *VerificationService) verifyPasskey(
	ctx context.Context,
	account domainauth.Account,
	req VerificationRequest,
) error {
	if s.passkeys == nil {
		return apperrors.NotAuthorized("passkey verification is not available")
	}
	out, err := s.passkeys.FinishAuthentication(ctx, req.ChallengeID, req.PasskeyResponse)
	if err != nil {
		return err
	}
	if out.Account.ID != account.ID {
		return apperrors.NotAuthorized("passkey does not belong to this account")
	}
	return s.passkeys.RecordAssertion(ctx, out)
}

// Consume spends a token for purpose. A token verifies at most once; a
// missing, expired, mismatched or already spent token is VerificationInvalid.
func (s *VerificationService) Consume(
	ctx context.Context,
	account domainauth.Account,
	purpose domainauth.VerificationPurpose,
	presented string,
) error {
	ok, err := s.tokens.Consume(ctx, purpose, account.PublicID, presented)
	if err != nil {
		return err
	}
	if !ok {
		metrics.EmitAuthOp(s.metrics, metrics.AuthMetric{Op: "verification.consume", Result: metrics.ResultDenied})
		return apperrors.VerificationInvalid("verification token is invalid or has expired")
	}
	return nil
}

func resultFor(err error) string {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNotAuthorized, apperrors.ErrCodeVerificationInvalid, apperrors.ErrCodeNotAuthenticated:
		return metrics.ResultDenied
	default:
		return metrics.ResultError
	}
}
