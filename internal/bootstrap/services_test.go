package bootstrap

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uninbox/authd/config"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "http and sweeper",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeSweeper},
			want:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
			if got := errorChannelBufferSize(enabled); got != tt.want+1 {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want+1)
			}
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "sweeper, http"}
	assert.Equal(t, []string{"http", "sweeper"}, GetEnabledServices(cfg))
	require.NoError(t, ValidateServiceConfig(cfg))

	bad := &config.AppConfig{Services: "scheduler"}
	assert.Empty(t, GetEnabledServices(bad))
	require.Error(t, ValidateServiceConfig(bad))
	require.Error(t, ValidateServiceConfig(nil))
}

func TestClonePolicy(t *testing.T) {
	assert.Equal(t, domainauth.ClonePolicyFlag, clonePolicy(config.ClonePolicyFlag))
	assert.Equal(t, domainauth.ClonePolicyReject, clonePolicy(config.ClonePolicyReject))
	assert.Equal(t, domainauth.ClonePolicyReject, clonePolicy(""))
}

func TestBuildNotifier(t *testing.T) {
	logger := discardLogger()

	assert.Nil(t, buildNotifier(logger, config.ObservabilityNotificationsConfig{}, nil))

	sink := buildNotifier(logger, config.ObservabilityNotificationsConfig{
		Enabled: true,
		Timeout: time.Second,
		Slack: config.SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.invalid/services/x",
		},
	}, nil)
	assert.NotNil(t, sink)
}

func testAppConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		Services: "http",
		HTTP:     config.HTTPConfig{BaseURL: "https://auth.example.com"},
	}
	cfg.Sanitize()
	return cfg
}

func TestBuildDomainServices(t *testing.T) {
	cfg := testAppConfig()
	require.Equal(t, "auth.example.com", cfg.WebAuthn.RPID)

	svcs, err := buildDomainServices(&DomainServicesOptions{
		Repos:  buildRepositories(nil, nil, nil),
		Config: cfg,
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	assert.NotNil(t, svcs.Sessions)
	assert.NotNil(t, svcs.Passkeys)
	assert.NotNil(t, svcs.Verification)
	assert.NotNil(t, svcs.Accounts)
	assert.NotNil(t, svcs.OrgContexts)
	assert.NotNil(t, svcs.Memberships)
	assert.Equal(t, cfg.Auth.SessionLifetime, svcs.Sessions.Lifetime())
}

func TestBuildDomainServicesRequiresRelyingParty(t *testing.T) {
	_, err := buildDomainServices(&DomainServicesOptions{
		Repos:  buildRepositories(nil, nil, nil),
		Config: &config.AppConfig{},
		Logger: discardLogger(),
	})
	require.Error(t, err)

	_, err = buildDomainServices(nil)
	require.Error(t, err)
}

func TestNewServicesRequiresConnections(t *testing.T) {
	_, err := NewServices(&ServiceDeps{Config: testAppConfig()})
	require.Error(t, err)
}

func TestRouterServicesCookies(t *testing.T) {
	cfg := testAppConfig()
	cfg.HTTP.CookieDomain = "example.com"

	svcs, err := buildDomainServices(&DomainServicesOptions{
		Repos:  buildRepositories(nil, nil, nil),
		Config: cfg,
		Logger: discardLogger(),
	})
	require.NoError(t, err)

	rs := routerServices(cfg, svcs, nil, discardLogger())
	assert.Equal(t, config.DefaultSessionCookie, rs.Cookies.SessionName)
	assert.Equal(t, config.DefaultChallengeCookie, rs.Cookies.ChallengeName)
	assert.Equal(t, "example.com", rs.Cookies.Domain)
	assert.True(t, rs.Cookies.Secure)
	assert.Equal(t, cfg.Auth.ChallengeTTL, rs.Cookies.ChallengeTTL)
	assert.NotNil(t, rs.Accounts)
	assert.NotNil(t, rs.Orgs)
	assert.Contains(t, rs.Health, "redis")
	assert.NotContains(t, rs.Health, "postgres")
}

func TestShutdownHTTPServerNil(t *testing.T) {
	require.NoError(t, ShutdownHTTPServer(ShutdownConfig{}))

	srv := &http.Server{Addr: "127.0.0.1:0"}
	require.NoError(t, ShutdownHTTPServer(ShutdownConfig{Context: t.Context(), Server: srv}))
}
