package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uninbox/authd/config"
	"github.com/uninbox/authd/internal/adapters/passkey"
	"github.com/uninbox/authd/internal/adapters/password"
	redisadapter "github.com/uninbox/authd/internal/adapters/redis"
	"github.com/uninbox/authd/internal/adapters/totp"
	"github.com/uninbox/authd/internal/data"
	"github.com/uninbox/authd/internal/data/cryptoutil"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/observability/notify"
	"github.com/uninbox/authd/internal/observability/notify/pagerduty"
	"github.com/uninbox/authd/internal/observability/notify/slack"
	"github.com/uninbox/authd/internal/observability/statsd"
	"github.com/uninbox/authd/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Sessions     *service.SessionManager
	Passkeys     *service.PasskeyService
	Verification *service.VerificationService
	Accounts     *service.AccountService
	OrgContexts  *service.OrgContextCache
	Memberships  *service.MembershipService

	Cache         *data.RedisCacheRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink    *statsd.Client
	MetricsConfig  config.ObservabilityMetricsConfig
	Notifier       notify.Sink
	Events         *redisadapter.EventPublisher
	NotifierConfig config.ObservabilityNotificationsConfig
}

// metricsSink returns the statsd client as a Sink, or nil when metrics are
// disabled. A typed nil must not leak into the interface.
func (o ObservabilityContainer) metricsSink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Accounts       *data.AccountRepo
	Sessions       *data.SessionRepo
	Authenticators *data.AuthenticatorRepo
	Orgs           *data.OrgRepo
	Cache          *data.RedisCacheRepo
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, client redis.UniversalClient, secrets cryptoutil.Encryptor) *serviceRepositories {
	return &serviceRepositories{
		Accounts:       data.NewAccountRepo(db).WithSecretEncryptor(secrets),
		Sessions:       data.NewSessionRepo(db),
		Authenticators: data.NewAuthenticatorRepo(db),
		Orgs:           data.NewOrgRepo(db),
		Cache:          data.NewRedisCacheRepo(client),
	}
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, cacheCfg config.CacheConfig, client redis.UniversalClient) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		c, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "authd",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = c
		}
	}

	var events *redisadapter.EventPublisher
	if client != nil {
		pub, err := redisadapter.NewEventPublisher(client, cacheCfg.EventChannel)
		if err != nil {
			obsLogger.Error("failed to initialise event publisher", "error", err)
		} else {
			events = pub
		}
	}

	return ObservabilityContainer{
		MetricsSink:    metricsSink,
		MetricsConfig:  cfg.Metrics,
		Notifier:       buildNotifier(obsLogger, cfg.Notifications, events),
		Events:         events,
		NotifierConfig: cfg.Notifications,
	}
}

// buildNotifier fans security events out to Slack (all severities),
// PagerDuty (critical only) and the Redis event channel. Delivery runs in the
// background so auth flows never wait on a webhook.
func buildNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig, events *redisadapter.EventPublisher) notify.Sink {
	sinks := make([]notify.Sink, 0, 3)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:       cfg.Slack.WebhookURL,
			Channel:          cfg.Slack.Channel,
			Username:         cfg.Slack.Username,
			Timeout:          cfg.Timeout,
			RetryLimit:       cfg.RetryLimit,
			AccountURLPrefix: cfg.Slack.AccountURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, client)
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, notify.MinSeverity(client, notify.SeverityCritical))
		}
	}

	if events != nil {
		sinks = append(sinks, events)
	}

	if len(sinks) == 0 {
		return nil
	}

	timeout := cfg.Timeout * time.Duration(cfg.RetryLimit+1)
	return notify.Async(notify.Multi(sinks...), notify.AsyncOptions{
		Timeout: timeout,
		Logger:  logger.With("component", "notifier"),
	})
}

func clonePolicy(p config.ClonePolicy) domainauth.ClonePolicy {
	if p == config.ClonePolicyFlag {
		return domainauth.ClonePolicyFlag
	}
	return domainauth.ClonePolicyReject
}

// DomainServicesOptions groups dependencies for buildDomainServices.
type DomainServicesOptions struct {
	Repos         *serviceRepositories
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

// buildDomainServices wires business services using repositories and observability adapters.
func buildDomainServices(opts *DomainServicesOptions) (ServiceContainer, error) {
	if opts == nil || opts.Repos == nil {
		return ServiceContainer{}, errors.New("repositories are required")
	}
	svcLogger := opts.Logger
	if svcLogger == nil {
		svcLogger = slog.Default()
	}
	appCfg := opts.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	repos := opts.Repos
	obs := opts.Observability
	metrics := obs.metricsSink()

	ceremony, err := passkey.New(appCfg.WebAuthn)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("configure webauthn: %w", err)
	}
	hasher := password.NewBcryptHasher(appCfg.Auth.BcryptCost)
	authenticator := totp.New(appCfg.Auth.TOTPIssuer)

	sessions := service.NewSessionManager(service.SessionManagerOptions{
		Sessions:   repos.Sessions,
		Accounts:   repos.Accounts,
		Cache:      repos.Cache,
		Lifetime:   appCfg.Auth.SessionLifetime,
		CacheFloor: appCfg.Auth.SessionCacheFloor,
		Logger:     svcLogger,
		Metrics:    metrics,
	})

	passkeys := service.NewPasskeyService(service.PasskeyServiceOptions{
		Accounts:       repos.Accounts,
		Authenticators: repos.Authenticators,
		Cache:          repos.Cache,
		Ceremony:       ceremony,
		ChallengeTTL:   appCfg.Auth.ChallengeTTL,
		ClonePolicy:    clonePolicy(appCfg.Auth.ClonePolicy),
		Notifier:       obs.Notifier,
		Logger:         svcLogger,
		Metrics:        metrics,
	})

	verification := service.NewVerificationService(service.VerificationServiceOptions{
		Accounts: repos.Accounts,
		Cache:    repos.Cache,
		Hasher:   hasher,
		TOTP:     authenticator,
		Passkeys: passkeys,
		TokenTTL: appCfg.Auth.VerificationTokenTTL,
		Logger:   svcLogger,
		Metrics:  metrics,
	})

	accounts := service.NewAccountService(service.AccountServiceOptions{
		Accounts:          repos.Accounts,
		Authenticators:    repos.Authenticators,
		Sessions:          sessions,
		Verification:      verification,
		Passkeys:          passkeys,
		Cache:             repos.Cache,
		Hasher:            hasher,
		TOTP:              authenticator,
		TOTPSetupTTL:      appCfg.Auth.TOTPSetupTTL,
		MinPasswordLength: appCfg.Auth.MinPasswordLength,
		Notifier:          obs.Notifier,
		Logger:            svcLogger,
	})

	contexts := service.NewOrgContextCache(service.OrgContextCacheOptions{
		Orgs:    repos.Orgs,
		Cache:   repos.Cache,
		TTL:     appCfg.Cache.OrgContextTTL,
		Logger:  svcLogger,
		Metrics: metrics,
	})

	memberships := service.NewMembershipService(service.MembershipServiceOptions{
		Orgs:     repos.Orgs,
		Contexts: contexts,
		Notifier: obs.Notifier,
		Logger:   svcLogger,
	})

	return ServiceContainer{
		Sessions:      sessions,
		Passkeys:      passkeys,
		Verification:  verification,
		Accounts:      accounts,
		OrgContexts:   contexts,
		Memberships:   memberships,
		Cache:         repos.Cache,
		Observability: obs,
	}, nil
}

// NewServices builds the service container from live connections.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	if deps.DB == nil || deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("database and redis connections are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := deps.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	observability := buildObservability(logger, appCfg.Observability, appCfg.Cache, deps.RedisClient)
	secrets, err := CreateSecretEncryptor(appCfg.Auth.SecretKey, appCfg.IsDev, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	repos := buildRepositories(deps.DB, deps.RedisClient, secrets)
	return buildDomainServices(&DomainServicesOptions{
		Repos:         repos,
		Observability: observability,
		Config:        appCfg,
		Logger:        logger,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		DB:       deps.cfg.DB,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newSweeperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeSweeper,
		name: "session sweeper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var sweeperCfg config.SweeperConfig
			if deps.cfg.Config != nil {
				sweeperCfg = deps.cfg.Config.Sweeper
			}
			return RunSweeper(ctx, SweeperConfig{
				DB:       deps.cfg.DB,
				Cache:    deps.cfg.Services.Cache,
				Sessions: deps.cfg.Services.Sessions,
				Logger:   deps.logger,
				Config:   sweeperCfg,
				Metrics:  deps.cfg.Services.Observability.metricsSink(),
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newSweeperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		// The service context is already cancelled; in-flight requests get
		// their own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cfg.ctx), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
