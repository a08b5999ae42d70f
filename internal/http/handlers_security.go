package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/service"
)

// VerificationHeader carries the verification token on sensitive mutations.
const VerificationHeader = "X-Verification-Token"

// SecurityHandlers serve the signed-in account's security settings.
type SecurityHandlers struct {
	Svc     AccountServiceInterface
	Cookies Cookies
	Logger  *slog.Logger
}

func (h *SecurityHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// account returns the caller's identity; false means a response was written.
func (h *SecurityHandlers) account(w http.ResponseWriter, r *http.Request) (*domainauth.Session, domainauth.Account, bool) {
	sess, ok := requireSessionInHandler(w, r, h.logger())
	if !ok {
		return nil, domainauth.Account{}, false
	}
	return sess, accountFromSession(sess), true
}

func verificationToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(VerificationHeader))
}

// BeginPasskeyVerification handles POST /api/me/verification/passkey/begin.
func (h *SecurityHandlers) BeginPasskeyVerification(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	challengeID := h.Cookies.NewChallenge(w)
	opts, err := h.Svc.BeginPasskeyVerification(r.Context(), account, challengeID)
	if err != nil {
		h.Cookies.ClearChallenge(w)
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, opts)
}

type verificationRequest struct {
	Purpose         string          `json:"purpose"`
	Password        string          `json:"password,omitempty"`
	TwoFactorCode   string          `json:"two_factor_code,omitempty"`
	PasskeyResponse json.RawMessage `json:"passkey_response,omitempty"`
}

// RequestVerification handles POST /api/me/verification.
func (h *SecurityHandlers) RequestVerification(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req verificationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	purpose, valid := domainauth.ParseVerificationPurpose(req.Purpose)
	if !valid {
		WriteAppError(w, r, h.logger(), apperrors.ValidationField("purpose", "unknown verification purpose"))
		return
	}

	in := service.VerificationRequest{
		Purpose:       purpose,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
	}
	if len(req.PasskeyResponse) > 0 {
		in.PasskeyResponse = req.PasskeyResponse
		in.ChallengeID = h.Cookies.Challenge(r)
		h.Cookies.ClearChallenge(w)
	}

	tok, err := h.Svc.RequestVerificationToken(r.Context(), account, in)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusCreated, tok)
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// ResetPassword handles POST /api/me/password. Every session is revoked and
// the caller receives a fresh one.
func (h *SecurityHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req resetPasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	sess, err := h.Svc.ResetPassword(r.Context(), account, verificationToken(r), req.NewPassword, deviceFromRequest(r))
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	h.Cookies.SetSession(w, sess)
	WriteJSON(w, http.StatusOK, newSessionView(*sess, sess.Token))
}

type totpSetupResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// BeginTOTPSetup handles POST /api/me/totp/begin.
func (h *SecurityHandlers) BeginTOTPSetup(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	key, err := h.Svc.BeginTOTPSetup(r.Context(), account)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, totpSetupResponse{Secret: key.Secret, URI: key.URI})
}

type codeRequest struct {
	Code string `json:"code"`
}

type recoveryCodeResponse struct {
	RecoveryCode string `json:"recovery_code"`
}

// CompleteTOTPSetup handles POST /api/me/totp/complete.
func (h *SecurityHandlers) CompleteTOTPSetup(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	code, err := h.Svc.CompleteTOTPSetup(r.Context(), account, req.Code)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, recoveryCodeResponse{RecoveryCode: code})
}

// DisableTOTP handles DELETE /api/me/totp.
func (h *SecurityHandlers) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	if err := h.Svc.DisableTOTP(r.Context(), account, verificationToken(r)); err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateRecoveryCode handles POST /api/me/recovery-code.
func (h *SecurityHandlers) RegenerateRecoveryCode(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	code, err := h.Svc.RegenerateRecoveryCode(r.Context(), account, verificationToken(r))
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, recoveryCodeResponse{RecoveryCode: code})
}

type passkeyView struct {
	CredentialID string    `json:"credential_id"`
	Nickname     string    `json:"nickname"`
	DeviceType   string    `json:"device_type"`
	BackedUp     bool      `json:"backed_up"`
	Transports   []string  `json:"transports"`
	CreatedAt    time.Time `json:"created_at"`
}

func newPasskeyView(a domainauth.Authenticator) passkeyView {
	transports := a.Transports
	if transports == nil {
		transports = []string{}
	}
	return passkeyView{
		CredentialID: a.CredentialID,
		Nickname:     a.Nickname,
		DeviceType:   string(a.DeviceType),
		BackedUp:     a.BackedUp,
		Transports:   transports,
		CreatedAt:    a.CreatedAt,
	}
}

// ListPasskeys handles GET /api/me/passkeys.
func (h *SecurityHandlers) ListPasskeys(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	list, err := h.Svc.ListPasskeys(r.Context(), account)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	out := make([]passkeyView, len(list))
	for i, a := range list {
		out[i] = newPasskeyView(a)
	}
	WriteJSON(w, http.StatusOK, out)
}

type beginPasskeyRegistrationRequest struct {
	Attachment string `json:"attachment,omitempty"`
}

// BeginPasskeyRegistration handles POST /api/me/passkeys/begin.
func (h *SecurityHandlers) BeginPasskeyRegistration(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req beginPasskeyRegistrationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	opts, err := h.Svc.BeginPasskeyRegistration(r.Context(), account, req.Attachment)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, opts)
}

type finishPasskeyRegistrationRequest struct {
	Response json.RawMessage `json:"response"`
	Nickname string          `json:"nickname,omitempty"`
}

// FinishPasskeyRegistration handles POST /api/me/passkeys/finish.
func (h *SecurityHandlers) FinishPasskeyRegistration(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req finishPasskeyRegistrationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	authn, err := h.Svc.FinishPasskeyRegistration(r.Context(), account, req.Response, req.Nickname)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusCreated, newPasskeyView(*authn))
}

// DeletePasskey handles DELETE /api/me/passkeys/{credentialID}.
func (h *SecurityHandlers) DeletePasskey(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	err := h.Svc.DeletePasskey(r.Context(), account, verificationToken(r), r.PathValue("credentialID"))
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions handles GET /api/me/sessions. Tokens are never returned; the
// caller's own session is flagged as current.
func (h *SecurityHandlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sess, account, ok := h.account(w, r)
	if !ok {
		return
	}
	list, err := h.Svc.ListSessions(r.Context(), account)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	out := make([]sessionView, len(list))
	for i, s := range list {
		out[i] = newSessionView(s, sess.Token)
	}
	WriteJSON(w, http.StatusOK, out)
}

// RevokeSession handles DELETE /api/me/sessions/{publicID}.
func (h *SecurityHandlers) RevokeSession(w http.ResponseWriter, r *http.Request) {
	_, account, ok := h.account(w, r)
	if !ok {
		return
	}
	err := h.Svc.RevokeSession(r.Context(), account, verificationToken(r), r.PathValue("publicID"))
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
