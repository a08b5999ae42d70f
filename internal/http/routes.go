package httpx

import (
	"log/slog"
	"net/http"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Accounts    AccountServiceInterface
	Memberships MembershipServiceInterface
	Sessions    SessionValidator
	Orgs        OrgResolver
	Cookies     Cookies
	// Readiness checks keyed by dependency name (e.g. "postgres", "redis").
	Health map[string]HealthChecker
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router. Transport middleware
// (recovery, logging, compression) is applied by the caller.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{Svc: services.Accounts, Cookies: services.Cookies, Logger: logger}
	securityHandlers := &SecurityHandlers{Svc: services.Accounts, Cookies: services.Cookies, Logger: logger}
	orgHandlers := &OrgHandlers{Svc: services.Memberships, Orgs: services.Orgs, Logger: logger}

	authed := RequireSession(services.Sessions, services.Cookies, logger)
	member := RequireOrgMember(services.Orgs, logger)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Health, logger))

	registerAuthRoutes(mux, authHandlers, authed)
	registerSecurityRoutes(mux, securityHandlers, authed)
	if services.Memberships != nil && services.Orgs != nil {
		registerOrgRoutes(mux, orgHandlers, authed, member)
	}

	return mux
}

type middleware = func(http.Handler) http.Handler

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, authed middleware) {
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/passkey/begin", h.BeginPasskeyLogin)
	mux.HandleFunc("POST /api/auth/passkey/finish", h.FinishPasskeyLogin)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.Handle("POST /api/auth/logout-all", authed(http.HandlerFunc(h.LogoutAll)))
	mux.Handle("GET /api/me", authed(http.HandlerFunc(h.Me)))
}

func registerSecurityRoutes(mux *http.ServeMux, h *SecurityHandlers, authed middleware) {
	routes := map[string]http.HandlerFunc{
		"POST /api/me/verification/passkey/begin": h.BeginPasskeyVerification,
		"POST /api/me/verification":               h.RequestVerification,
		"POST /api/me/password":                   h.ResetPassword,
		"POST /api/me/totp/begin":                 h.BeginTOTPSetup,
		"POST /api/me/totp/complete":              h.CompleteTOTPSetup,
		"DELETE /api/me/totp":                     h.DisableTOTP,
		"POST /api/me/recovery-code":              h.RegenerateRecoveryCode,
		"GET /api/me/passkeys":                    h.ListPasskeys,
		"POST /api/me/passkeys/begin":             h.BeginPasskeyRegistration,
		"POST /api/me/passkeys/finish":            h.FinishPasskeyRegistration,
		"DELETE /api/me/passkeys/{credentialID}":  h.DeletePasskey,
		"GET /api/me/sessions":                    h.ListSessions,
		"DELETE /api/me/sessions/{publicID}":      h.RevokeSession,
	}
	for pattern, fn := range routes {
		mux.Handle(pattern, authed(fn))
	}
}

func registerOrgRoutes(mux *http.ServeMux, h *OrgHandlers, authed, member middleware) {
	mux.Handle("POST /api/orgs", authed(http.HandlerFunc(h.Create)))
	mux.Handle("POST /api/orgs/{shortcode}/accept", authed(http.HandlerFunc(h.Accept)))

	scoped := map[string]http.HandlerFunc{
		"GET /api/orgs/{shortcode}":                       h.Get,
		"PATCH /api/orgs/{shortcode}":                     h.Rename,
		"POST /api/orgs/{shortcode}/members":              h.AddMember,
		"PATCH /api/orgs/{shortcode}/members/{memberID}":  h.ChangeRole,
		"DELETE /api/orgs/{shortcode}/members/{memberID}": h.RemoveMember,
	}
	for pattern, fn := range scoped {
		mux.Handle(pattern, Chain(fn, authed, member))
	}
}
