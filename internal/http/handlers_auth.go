package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/ports"
	"github.com/uninbox/authd/internal/service"
)

// AccountServiceInterface is the account surface the handlers call.
type AccountServiceInterface interface {
	Register(ctx context.Context, username, password string, dev service.Device) (*domainauth.Account, *domainauth.Session, error)
	LoginWithPassword(ctx context.Context, in service.LoginInput) (*domainauth.Session, error)
	BeginPasskeyLogin(ctx context.Context, challengeID string) (json.RawMessage, error)
	FinishPasskeyLogin(ctx context.Context, challengeID string, response []byte, dev service.Device) (*domainauth.Session, error)
	Logout(ctx context.Context, token string) error
	LogoutAll(ctx context.Context, account domainauth.Account) (int64, error)

	BeginPasskeyVerification(ctx context.Context, account domainauth.Account, challengeID string) (json.RawMessage, error)
	RequestVerificationToken(
		ctx context.Context, account domainauth.Account, req service.VerificationRequest,
	) (*domainauth.VerificationToken, error)
	ResetPassword(ctx context.Context, account domainauth.Account, token, newPassword string, dev service.Device) (*domainauth.Session, error)

	BeginTOTPSetup(ctx context.Context, account domainauth.Account) (*ports.TOTPKey, error)
	CompleteTOTPSetup(ctx context.Context, account domainauth.Account, code string) (string, error)
	DisableTOTP(ctx context.Context, account domainauth.Account, token string) error
	RegenerateRecoveryCode(ctx context.Context, account domainauth.Account, token string) (string, error)

	BeginPasskeyRegistration(ctx context.Context, account domainauth.Account, attachment string) (json.RawMessage, error)
	FinishPasskeyRegistration(
		ctx context.Context, account domainauth.Account, response []byte, nickname string,
	) (*domainauth.Authenticator, error)
	ListPasskeys(ctx context.Context, account domainauth.Account) ([]domainauth.Authenticator, error)
	DeletePasskey(ctx context.Context, account domainauth.Account, token, credentialID string) error

	ListSessions(ctx context.Context, account domainauth.Account) ([]domainauth.Session, error)
	RevokeSession(ctx context.Context, account domainauth.Account, token, sessionPublicID string) error
}

var _ AccountServiceInterface = (*service.AccountService)(nil)

// AuthHandlers serves sign-up, sign-in and sign-out.
type AuthHandlers struct {
	Svc     AccountServiceInterface
	Cookies Cookies
	Logger  *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type accountView struct {
	PublicID string `json:"public_id"`
	Username string `json:"username"`
}

type sessionView struct {
	PublicID  string    `json:"public_id"`
	Device    string    `json:"device"`
	OS        string    `json:"os"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current,omitempty"`
}

func newSessionView(s domainauth.Session, currentToken string) sessionView {
	return sessionView{
		PublicID:  s.PublicID,
		Device:    s.Device,
		OS:        s.OS,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		Current:   currentToken != "" && s.Token == currentToken,
	}
}

type signedInResponse struct {
	Account accountView `json:"account"`
	Session sessionView `json:"session"`
}

func (h *AuthHandlers) signedIn(w http.ResponseWriter, code int, sess *domainauth.Session) {
	h.Cookies.SetSession(w, sess)
	WriteJSON(w, code, signedInResponse{
		Account: accountView{PublicID: sess.Account.PublicID, Username: sess.Account.Username},
		Session: newSessionView(*sess, sess.Token),
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	_, sess, err := h.Svc.Register(r.Context(), req.Username, req.Password, deviceFromRequest(r))
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	h.signedIn(w, http.StatusCreated, sess)
}

type loginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	TOTPCode     string `json:"totp_code,omitempty"`
	RecoveryCode string `json:"recovery_code,omitempty"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	sess, err := h.Svc.LoginWithPassword(r.Context(), service.LoginInput{
		Username:     req.Username,
		Password:     req.Password,
		TOTPCode:     req.TOTPCode,
		RecoveryCode: req.RecoveryCode,
		Device:       deviceFromRequest(r),
	})
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	h.signedIn(w, http.StatusOK, sess)
}

// BeginPasskeyLogin handles POST /api/auth/passkey/begin. The challenge id
// travels in a short-lived cookie.
func (h *AuthHandlers) BeginPasskeyLogin(w http.ResponseWriter, r *http.Request) {
	challengeID := h.Cookies.NewChallenge(w)
	opts, err := h.Svc.BeginPasskeyLogin(r.Context(), challengeID)
	if err != nil {
		h.Cookies.ClearChallenge(w)
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, opts)
}

type passkeyResponseRequest struct {
	Response json.RawMessage `json:"response"`
}

var errChallengeMissing = apperrors.NotAuthenticated("passkey challenge is missing or expired")

// FinishPasskeyLogin handles POST /api/auth/passkey/finish.
func (h *AuthHandlers) FinishPasskeyLogin(w http.ResponseWriter, r *http.Request) {
	var req passkeyResponseRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	challengeID := h.Cookies.Challenge(r)
	if challengeID == "" {
		WriteAppError(w, r, h.logger(), errChallengeMissing)
		return
	}
	h.Cookies.ClearChallenge(w)

	sess, err := h.Svc.FinishPasskeyLogin(r.Context(), challengeID, req.Response, deviceFromRequest(r))
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	h.signedIn(w, http.StatusOK, sess)
}

// Logout handles POST /api/auth/logout. It succeeds even without a session.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.Cookies.SessionToken(r); token != "" {
		if err := h.Svc.Logout(r.Context(), token); err != nil {
			WriteAppError(w, r, h.logger(), err)
			return
		}
	}
	h.Cookies.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll handles POST /api/auth/logout-all.
func (h *AuthHandlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSessionInHandler(w, r, h.logger())
	if !ok {
		return
	}
	n, err := h.Svc.LogoutAll(r.Context(), accountFromSession(sess))
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	h.Cookies.ClearSession(w)
	WriteJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

// Me handles GET /api/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSessionInHandler(w, r, h.logger())
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, signedInResponse{
		Account: accountView{PublicID: sess.Account.PublicID, Username: sess.Account.Username},
		Session: newSessionView(*sess, sess.Token),
	})
}
