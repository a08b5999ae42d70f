package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// HealthChecker is a dependency that can report its health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthCheckFunc adapts a function (e.g. (*sql.DB).PingContext) to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// Health calls f.
func (f HealthCheckFunc) Health(ctx context.Context) error { return f(ctx) }

const readyTimeout = 2 * time.Second

// readyHandler checks every dependency; any failure is a 503 naming it.
func readyHandler(checks map[string]HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		status := map[string]string{}
		code := http.StatusOK
		for name, c := range checks {
			if err := c.Health(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
				status[name] = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		WriteJSON(w, code, status)
	}
}
