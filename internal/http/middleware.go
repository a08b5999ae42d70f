package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/domain/org"
	apperrors "github.com/uninbox/authd/internal/errors"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteJSON(w, http.StatusInternalServerError,
						errorBody{Error: string(apperrors.ErrCodeInternal), Message: http.StatusText(http.StatusInternalServerError)})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionValidator resolves a session token; nil without error means unknown or expired.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*domainauth.Session, error)
}

// OrgResolver resolves an organization by shortcode; nil without error means unknown.
type OrgResolver interface {
	Resolve(ctx context.Context, shortcode string) (*org.Context, error)
}

var errAuthRequired = apperrors.NotAuthenticated("authentication required")

// RequireSession returns a middleware that requires a valid session cookie.
// A stale cookie is cleared. A store failure is a 503, never a 401.
func RequireSession(sessions SessionValidator, cookies Cookies, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookies.SessionToken(r)
			if token == "" {
				WriteAppError(w, r, logger, errAuthRequired)
				return
			}

			session, err := sessions.Validate(r.Context(), token)
			if err != nil {
				WriteAppError(w, r, logger, err)
				return
			}
			if session == nil {
				cookies.ClearSession(w)
				WriteAppError(w, r, logger, errAuthRequired)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), session)))
		})
	}
}

// RequireOrgMember returns a middleware that resolves the {shortcode} path
// value and requires the session's account to be an active member. It must
// run inside RequireSession.
func RequireOrgMember(orgs OrgResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSessionFromContext(r.Context())
			if !ok {
				WriteAppError(w, r, logger, errAuthRequired)
				return
			}

			shortcode := org.NormalizeShortcode(r.PathValue("shortcode"))
			oc, err := orgs.Resolve(r.Context(), shortcode)
			if err != nil {
				WriteAppError(w, r, logger, err)
				return
			}
			if oc == nil {
				WriteAppError(w, r, logger, apperrors.NotFound("organization not found"))
				return
			}

			member, ok := oc.ActiveMember(session.AccountID)
			if !ok {
				WriteAppError(w, r, logger, apperrors.NotAuthorized("not a member of this organization"))
				return
			}

			next.ServeHTTP(w, r.WithContext(SetOrgInContext(r.Context(), oc, member)))
		})
	}
}

// Chain applies middlewares so that the first one listed runs outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// requireSessionInHandler is the handler-side guard for routes wrapped by RequireSession.
func requireSessionInHandler(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*domainauth.Session, bool) {
	session, ok := GetSessionFromContext(r.Context())
	if !ok {
		WriteAppError(w, r, logger, errAuthRequired)
		return nil, false
	}
	return session, true
}
