package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/uninbox/authd/internal/core"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/observability/notify"
	"github.com/uninbox/authd/internal/ports"
)

const (
	defaultTOTPSetupTTL      = 10 * time.Minute
	defaultMinPasswordLength = 10
)

// errInvalidLogin is the single answer to every failed login check: it must
// not reveal whether the account exists or which factor was wrong.
var errInvalidLogin = apperrors.NotAuthenticated("invalid credentials")

// AccountServiceOptions groups dependencies for AccountService.
type AccountServiceOptions struct {
	Accounts       core.AccountRepository
	Authenticators core.AuthenticatorRepository
	Sessions       *SessionManager
	Verification   *VerificationService
	Passkeys       *PasskeyService
	Cache          core.CacheRepository
	Hasher         ports.PasswordHasher
	TOTP           ports.TOTP

	TOTPSetupTTL      time.Duration
	MinPasswordLength int

	Notifier notify.Sink
	Logger   *slog.Logger
	Now      func() time.Time
}

// AccountService implements the account security flows: login, factor
// management and session management. Sensitive mutations require a
// verification token from VerificationService.
type AccountService struct {
	accounts       core.AccountRepository
	authenticators core.AuthenticatorRepository
	sessions       *SessionManager
	verification   *VerificationService
	passkeys       *PasskeyService
	totpSetup      *core.TOTPSetupCache
	hasher         ports.PasswordHasher
	totp           ports.TOTP
	dummyHash      func() (string, error)

	totpSetupTTL time.Duration
	minPassword  int

	notifier notify.Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewAccountService constructs an AccountService.
func NewAccountService(opts AccountServiceOptions) *AccountService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	setupTTL := opts.TOTPSetupTTL
	if setupTTL <= 0 {
		setupTTL = defaultTOTPSetupTTL
	}
	minPassword := opts.MinPasswordLength
	if minPassword <= 0 {
		minPassword = defaultMinPasswordLength
	}
	hasher := opts.Hasher
	return &AccountService{
		accounts:       opts.Accounts,
		authenticators: opts.Authenticators,
		sessions:       opts.Sessions,
		verification:   opts.Verification,
		passkeys:       opts.Passkeys,
		totpSetup:      core.NewTOTPSetupCache(opts.Cache),
		hasher:         opts.Hasher,
		totp:           opts.TOTP,
		totpSetupTTL:   setupTTL,
		minPassword:    minPassword,
		notifier:       opts.Notifier,
		logger:         logger.With("component", "account"),
		now:            now,
		dummyHash: sync.OnceValues(func() (string, error) {
			return hasher.Hash(rand.Text())
		}),
	}
}

func (s *AccountService) emit(ctx context.Context, typ notify.EventType, account domainauth.Account, summary string) {
	notify.Emit(ctx, s.notifier, s.logger, notify.Event{
		Type:            typ,
		Severity:        notify.SeverityInfo,
		AccountID:       account.ID,
		AccountPublicID: account.PublicID,
		Summary:         summary,
		OccurredAt:      s.now().UTC(),
	})
}

// Device describes the client a session is created for.
type Device struct {
	Device string
	OS     string
}

func (s *AccountService) startSession(ctx context.Context, account domainauth.Account, dev Device) (*domainauth.Session, error) {
	return s.sessions.Create(ctx, account.ID, domainauth.SessionAttributes{
		Account: account.Payload(),
		Device:  dev.Device,
		OS:      dev.OS,
	})
}

func (s *AccountService) checkPassword(password string) error {
	if len(password) < s.minPassword {
		return apperrors.ValidationField("password", fmt.Sprintf("password must be at least %d characters", s.minPassword))
	}
	return nil
}

// Register creates an account with a password and signs it in.
func (s *AccountService) Register(
	ctx context.Context,
	username, password string,
	dev Device,
) (*domainauth.Account, *domainauth.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil, apperrors.ValidationField("username", "username is required")
	}
	if err := s.checkPassword(password); err != nil {
		return nil, nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	account, err := s.accounts.Create(ctx, username, hash)
	if err != nil {
		return nil, nil, fmt.Errorf("create account: %w", err)
	}

	sess, err := s.startSession(ctx, *account, dev)
	if err != nil {
		return nil, nil, err
	}
	return account, sess, nil
}

// LoginInput carries password login credentials. When the account has 2FA
// enabled, either TOTPCode or RecoveryCode must be supplied.
type LoginInput struct {
	Username     string
	Password     string
	TOTPCode     string
	RecoveryCode string
	Device       Device
}

// LoginWithPassword authenticates with username and password (plus a second
// factor when enabled) and creates a session. A recovery code is spent on use.
func (s *AccountService) LoginWithPassword(ctx context.Context, in LoginInput) (*domainauth.Session, error) {
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		return nil, apperrors.Validation("username and password are required")
	}

	account, err := s.accounts.FindByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.equalizeTiming(in.Password)
			return nil, errInvalidLogin
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	creds, err := s.accounts.FindCredentials(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if !creds.HasPassword() {
		s.equalizeTiming(in.Password)
		return nil, errInvalidLogin
	}
	if err := s.hasher.Compare(creds.PasswordHash, in.Password); err != nil {
		if errors.Is(err, ports.ErrPasswordMismatch) {
			return nil, errInvalidLogin
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}

	if creds.HasTwoFactor() {
		if err := s.checkSecondFactor(ctx, *account, *creds, in); err != nil {
			return nil, err
		}
	}

	sess, err := s.startSession(ctx, *account, in.Device)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notify.EventLogin, *account, "Signed in with password")
	return sess, nil
}

// equalizeTiming runs a hash comparison that cannot succeed, so a login for
// an unknown account costs as much as one with a wrong password.
func (s *AccountService) equalizeTiming(password string) {
	hash, err := s.dummyHash()
	if err != nil {
		s.logger.Warn("dummy password hash unavailable", "error", err)
		return
	}
	_ = s.hasher.Compare(hash, password)
}

func (s *AccountService) checkSecondFactor(
	ctx context.Context,
	account domainauth.Account,
	creds domainauth.Credentials,
	in LoginInput,
) error {
	switch {
	case in.TOTPCode != "":
		if !s.totp.Validate(in.TOTPCode, creds.TwoFactorSecret, s.now()) {
			return errInvalidLogin
		}
		return nil
	case in.RecoveryCode != "":
		if creds.RecoveryCodeHash == "" {
			return errInvalidLogin
		}
		if err := s.hasher.Compare(creds.RecoveryCodeHash, normalizeRecoveryCode(in.RecoveryCode)); err != nil {
			if errors.Is(err, ports.ErrPasswordMismatch) {
				return errInvalidLogin
			}
			return fmt.Errorf("compare recovery code: %w", err)
		}
		spent, err := s.accounts.SpendRecoveryCode(ctx, account.ID, creds.RecoveryCodeHash)
		if err != nil {
			return fmt.Errorf("spend recovery code: %w", err)
		}
		if !spent {
			// A concurrent login spent or replaced the code first.
			return errInvalidLogin
		}
		s.emit(ctx, notify.EventRecoveryCodeUsed, account, "Signed in with a recovery code")
		return nil
	default:
		return apperrors.NotAuthenticated("two-factor code is required")
	}
}

// BeginPasskeyLogin starts a pre-login passkey ceremony under challengeID.
func (s *AccountService) BeginPasskeyLogin(ctx context.Context, challengeID string) (json.RawMessage, error) {
	return s.passkeys.BeginAuthentication(ctx, challengeID, nil)
}

// FinishPasskeyLogin verifies the assertion, persists the counter and
// creates a session for the credential's owner.
func (s *AccountService) FinishPasskeyLogin(
	ctx context.Context,
	challengeID string,
	response []byte,
	dev Device,
) (*domainauth.Session, error) {
	out, err := s.passkeys.Authenticate(ctx, challengeID, response)
	if err != nil {
		if apperrors.IsNotFound(err) || apperrors.IsVerificationInvalid(err) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeNotAuthenticated, "passkey sign-in failed")
		}
		return nil, err
	}

	sess, err := s.startSession(ctx, out.Account, dev)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notify.EventLogin, out.Account, "Signed in with a passkey")
	return sess, nil
}

// BeginPasskeyVerification starts a passkey ceremony restricted to the
// account's own passkeys; the assertion is then passed to
// RequestVerificationToken with the same challengeID.
func (s *AccountService) BeginPasskeyVerification(
	ctx context.Context,
	account domainauth.Account,
	challengeID string,
) (json.RawMessage, error) {
	return s.passkeys.BeginAuthentication(ctx, challengeID, &account)
}

// RequestVerificationToken re-verifies the caller and mints a token.
func (s *AccountService) RequestVerificationToken(
	ctx context.Context,
	account domainauth.Account,
	req VerificationRequest,
) (*domainauth.VerificationToken, error) {
	tok, err := s.verification.Issue(ctx, account, req)
	if err != nil {
		return nil, err
	}
	notify.Emit(ctx, s.notifier, s.logger, notify.Event{
		Type:            notify.EventVerificationIssued,
		AccountID:       account.ID,
		AccountPublicID: account.PublicID,
		Summary:         "Identity re-verified",
		OccurredAt:      s.now().UTC(),
		Metadata:        map[string]string{"purpose": string(req.Purpose)},
	})
	return tok, nil
}

// ResetPassword sets a new password, signs out every session of the account
// and returns a fresh session for the caller.
func (s *AccountService) ResetPassword(
	ctx context.Context,
	account domainauth.Account,
	token, newPassword string,
	dev Device,
) (*domainauth.Session, error) {
	if err := s.checkPassword(newPassword); err != nil {
		return nil, err
	}
	if err := s.verification.Consume(ctx, account, domainauth.PurposePassword, token); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdateCredentials(ctx, account.ID, domainauth.CredentialsUpdate{PasswordHash: &hash}); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	if _, err := s.sessions.InvalidateAll(ctx, account.ID); err != nil {
		return nil, err
	}

	sess, err := s.startSession(ctx, account, dev)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, notify.EventPasswordReset, account, "Password changed; all other sessions signed out")
	return sess, nil
}

// BeginTOTPSetup generates a pending TOTP secret. It fails with
// ConflictingFactor when 2FA is already enabled.
func (s *AccountService) BeginTOTPSetup(ctx context.Context, account domainauth.Account) (*ports.TOTPKey, error) {
	creds, err := s.accounts.FindCredentials(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if creds.HasTwoFactor() {
		return nil, apperrors.ConflictingFactor("two-factor authentication is already enabled")
	}

	key, err := s.totp.Generate(account.Username)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	if err := s.totpSetup.Put(ctx, account.PublicID, key.Secret, s.totpSetupTTL); err != nil {
		return nil, err
	}
	return &key, nil
}

// CompleteTOTPSetup confirms the pending secret with a code, enables 2FA and
// returns a new recovery code. The code is shown once; only its hash is kept.
func (s *AccountService) CompleteTOTPSetup(ctx context.Context, account domainauth.Account, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", apperrors.ValidationField("code", "two-factor code is required")
	}
	secret, err := s.totpSetup.Get(ctx, account.PublicID)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", apperrors.VerificationInvalid("no two-factor setup is pending or it has expired")
	}
	if !s.totp.Validate(strings.TrimSpace(code), secret, s.now()) {
		return "", apperrors.NotAuthorized("incorrect two-factor code")
	}

	recovery, recoveryHash, err := s.newRecoveryCode()
	if err != nil {
		return "", err
	}
	enabled := true
	err = s.accounts.UpdateCredentials(ctx, account.ID, domainauth.CredentialsUpdate{
		TwoFactorSecret:  &secret,
		TwoFactorEnabled: &enabled,
		RecoveryCodeHash: &recoveryHash,
	})
	if err != nil {
		return "", fmt.Errorf("enable two-factor: %w", err)
	}
	if err := s.totpSetup.Delete(ctx, account.PublicID); err != nil {
		s.logger.WarnContext(ctx, "failed to drop pending totp secret", "account_id", account.ID, "error", err)
	}

	s.emit(ctx, notify.EventTOTPEnabled, account, "Two-factor authentication enabled")
	return recovery, nil
}

// DisableTOTP turns 2FA off and drops the recovery code.
func (s *AccountService) DisableTOTP(ctx context.Context, account domainauth.Account, token string) error {
	if err := s.verification.Consume(ctx, account, domainauth.PurposeTwoFactor, token); err != nil {
		return err
	}
	creds, err := s.accounts.FindCredentials(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if !creds.HasTwoFactor() {
		return apperrors.ConflictingFactor("two-factor authentication is not enabled")
	}

	empty, disabled := "", false
	err = s.accounts.UpdateCredentials(ctx, account.ID, domainauth.CredentialsUpdate{
		TwoFactorSecret:  &empty,
		TwoFactorEnabled: &disabled,
		RecoveryCodeHash: &empty,
	})
	if err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	s.emit(ctx, notify.EventTOTPDisabled, account, "Two-factor authentication disabled")
	return nil
}

// RegenerateRecoveryCode replaces the recovery code and returns the new one.
func (s *AccountService) RegenerateRecoveryCode(ctx context.Context, account domainauth.Account, token string) (string, error) {
	if err := s.verification.Consume(ctx, account, domainauth.PurposeTwoFactor, token); err != nil {
		return "", err
	}
	creds, err := s.accounts.FindCredentials(ctx, account.ID)
	if err != nil {
		return "", fmt.Errorf("load credentials: %w", err)
	}
	if !creds.HasTwoFactor() {
		return "", apperrors.ConflictingFactor("two-factor authentication is not enabled")
	}

	recovery, recoveryHash, err := s.newRecoveryCode()
	if err != nil {
		return "", err
	}
	if err := s.accounts.UpdateCredentials(ctx, account.ID, domainauth.CredentialsUpdate{RecoveryCodeHash: &recoveryHash}); err != nil {
		return "", fmt.Errorf("store recovery code: %w", err)
	}
	s.emit(ctx, notify.EventRecoveryCodeRegenerated, account, "Recovery code regenerated")
	return recovery, nil
}

func (s *AccountService) newRecoveryCode() (string, string, error) {
	code := rand.Text()
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return "", "", fmt.Errorf("hash recovery code: %w", err)
	}
	return code, hash, nil
}

func normalizeRecoveryCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

// BeginPasskeyRegistration returns WebAuthn creation options for account.
func (s *AccountService) BeginPasskeyRegistration(
	ctx context.Context,
	account domainauth.Account,
	attachment string,
) (json.RawMessage, error) {
	return s.passkeys.BeginRegistration(ctx, RegistrationInput{
		AccountID:  account.ID,
		PublicID:   account.PublicID,
		Username:   account.Username,
		Attachment: attachment,
	})
}

// FinishPasskeyRegistration verifies the attestation and stores the passkey.
// Registering an already known credential id fails with Conflict.
func (s *AccountService) FinishPasskeyRegistration(
	ctx context.Context,
	account domainauth.Account,
	response []byte,
	nickname string,
) (*domainauth.Authenticator, error) {
	reg, err := s.passkeys.FinishRegistration(ctx, RegistrationInput{
		AccountID: account.ID,
		PublicID:  account.PublicID,
		Username:  account.Username,
	}, response)
	if err != nil {
		return nil, err
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = "Passkey"
	}
	authn, err := s.authenticators.Insert(ctx, domainauth.Authenticator{
		AccountID:    account.ID,
		CredentialID: reg.CredentialID,
		PublicKey:    reg.PublicKey,
		Counter:      reg.Counter,
		DeviceType:   reg.DeviceType,
		BackedUp:     reg.BackedUp,
		Transports:   reg.Transports,
		Nickname:     nickname,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("store passkey: %w", err)
	}
	s.emit(ctx, notify.EventPasskeyAdded, account, "Passkey added: "+nickname)
	return authn, nil
}

// ListPasskeys returns the account's registered passkeys.
func (s *AccountService) ListPasskeys(ctx context.Context, account domainauth.Account) ([]domainauth.Authenticator, error) {
	list, err := s.authenticators.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("list passkeys: %w", err)
	}
	return list, nil
}

// DeletePasskey removes a passkey. The account must keep a way to sign in:
// a password or another passkey.
func (s *AccountService) DeletePasskey(
	ctx context.Context,
	account domainauth.Account,
	token, credentialID string,
) error {
	if strings.TrimSpace(credentialID) == "" {
		return apperrors.ValidationField("credential_id", "credential id is required")
	}
	if err := s.verification.Consume(ctx, account, domainauth.PurposePasskey, token); err != nil {
		return err
	}

	creds, err := s.accounts.FindCredentials(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	passkeys, err := s.authenticators.ListByAccount(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("list passkeys: %w", err)
	}

	others := 0
	owned := false
	for _, p := range passkeys {
		if p.CredentialID == credentialID {
			owned = true
			continue
		}
		others++
	}
	if !owned {
		return apperrors.NotFound("passkey not found")
	}
	if !creds.HasPassword() && others == 0 {
		return apperrors.ConflictingFactor("cannot remove the last sign-in method; set a password or add another passkey first")
	}

	deleted, err := s.authenticators.Delete(ctx, account.ID, credentialID)
	if err != nil {
		return fmt.Errorf("delete passkey: %w", err)
	}
	if !deleted {
		return apperrors.NotFound("passkey not found")
	}
	s.emit(ctx, notify.EventPasskeyRemoved, account, "Passkey removed")
	return nil
}

// ListSessions returns the account's live sessions.
func (s *AccountService) ListSessions(ctx context.Context, account domainauth.Account) ([]domainauth.Session, error) {
	return s.sessions.ListForAccount(ctx, account.ID)
}

// RevokeSession signs out one session of the account, identified by its
// public id.
func (s *AccountService) RevokeSession(
	ctx context.Context,
	account domainauth.Account,
	token, sessionPublicID string,
) error {
	if err := s.verification.Consume(ctx, account, domainauth.PurposeSession, token); err != nil {
		return err
	}
	list, err := s.sessions.ListForAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	for _, sess := range list {
		if sess.PublicID == sessionPublicID {
			if err := s.sessions.Invalidate(ctx, sess.Token); err != nil {
				return err
			}
			s.emit(ctx, notify.EventSessionRevoked, account, "Session revoked: "+sess.Device)
			return nil
		}
	}
	return apperrors.NotFound("session not found")
}

// LogoutAll signs out every session of the account.
func (s *AccountService) LogoutAll(ctx context.Context, account domainauth.Account) (int64, error) {
	n, err := s.sessions.InvalidateAll(ctx, account.ID)
	if err != nil {
		return 0, err
	}
	s.emit(ctx, notify.EventSessionsRevoked, account, fmt.Sprintf("Signed out of %d sessions", n))
	return n, nil
}

// Logout signs out the session identified by token.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	return s.sessions.Invalidate(ctx, token)
}
