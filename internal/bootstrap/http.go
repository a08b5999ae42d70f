package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/uninbox/authd/config"
	httpx "github.com/uninbox/authd/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: routerServices(appCfg, cfg.Services, cfg.DB, logger),
		HTTP:     appCfg.HTTP,
	})

	return startServer(logger, handler, appCfg.HTTP.Addr)
}

func routerServices(appCfg *config.AppConfig, svcs ServiceContainer, db *sql.DB, logger *slog.Logger) httpx.RouterServices {
	health := make(map[string]httpx.HealthChecker, 2)
	if db != nil {
		health["postgres"] = httpx.HealthCheckFunc(db.PingContext)
	}
	if svcs.Cache != nil {
		health["redis"] = svcs.Cache
	}

	services := httpx.RouterServices{
		Cookies: httpx.Cookies{
			SessionName:   appCfg.HTTP.SessionCookieName,
			ChallengeName: appCfg.HTTP.ChallengeCookieName,
			Domain:        appCfg.HTTP.CookieDomain,
			Secure:        appCfg.SecureCookies(),
			ChallengeTTL:  appCfg.Auth.ChallengeTTL,
		},
		Health: health,
		Logger: logger,
	}
	// Interfaces are only assigned when the concrete service exists.
	if svcs.Accounts != nil {
		services.Accounts = svcs.Accounts
	}
	if svcs.Sessions != nil {
		services.Sessions = svcs.Sessions
	}
	if svcs.Memberships != nil {
		services.Memberships = svcs.Memberships
	}
	if svcs.OrgContexts != nil {
		services.Orgs = svcs.OrgContexts
	}
	return services
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
	HTTP     config.HTTPConfig
}

func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	router := httpx.NewRouter(cfg.Services)

	// Compression is innermost so logging captures compressed sizes.
	// Order: Recover -> Logging -> Compression -> Router
	h := router
	if cfg.HTTP.CompressionEnabled {
		cfg.Logger.Info("HTTP compression enabled", "level", cfg.HTTP.CompressionLevel)
		h = httpx.Compression(httpx.CompressionConfig{Level: cfg.HTTP.CompressionLevel, Logger: cfg.Logger})(h)
	}

	h = httpx.Logging(cfg.Logger)(h)
	h = httpx.Recover(cfg.Logger)(h)

	return h
}

func startServer(logger *slog.Logger, handler http.Handler, addr string) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
