package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "http and sweeper with spaces",
			input:    " http , sweeper ",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeSweeper: true},
		},
		{
			name:     "duplicate services",
			input:    "sweeper,sweeper",
			expected: map[ServiceMode]bool{ServiceModeSweeper: true},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only spaces and commas", input: " , , ", expectError: true},
		{name: "invalid service name", input: "http,scheduler", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestAppConfig_ServiceEnabledMethods(t *testing.T) {
	cfg := AppConfig{Services: "sweeper"}
	assert.False(t, cfg.IsHTTPServerEnabled())
	assert.True(t, cfg.IsSweeperEnabled())

	cfg.Services = "bogus"
	assert.False(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsSweeperEnabled())
}

func TestAppConfig_ParseEnvDefaults(t *testing.T) {
	t.Setenv("NODE_ENV", "production")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.False(t, cfg.IsDev)
	assert.True(t, cfg.SecureCookies())
	assert.Equal(t, 28*24*time.Hour, cfg.Auth.SessionLifetime)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionCacheFloor)
	assert.Equal(t, 5*time.Minute, cfg.Auth.VerificationTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.Auth.ChallengeTTL)
	assert.Equal(t, ClonePolicyReject, cfg.Auth.ClonePolicy)
	assert.Equal(t, 12*time.Hour, cfg.Cache.OrgContextTTL)
	assert.Equal(t, "unsession", cfg.HTTP.SessionCookieName)
	assert.Equal(t, "unauth-challenge", cfg.HTTP.ChallengeCookieName)
	assert.Equal(t, "localhost", cfg.WebAuthn.RPID)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.WebAuthn.RPOrigins)
}

func TestAppConfig_DevMode(t *testing.T) {
	t.Setenv("NODE_ENV", "development")
	t.Setenv("AUTH_CLONE_POLICY", "FLAG")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.True(t, cfg.IsDev)
	assert.False(t, cfg.SecureCookies())
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionLifetime)
	assert.Equal(t, ClonePolicyFlag, cfg.Auth.ClonePolicy)
}

func TestAppConfig_InvalidClonePolicy(t *testing.T) {
	t.Setenv("AUTH_CLONE_POLICY", "ignore")

	var cfg AppConfig
	assert.Error(t, env.Parse(&cfg))
}

func TestAuthConfig_Sanitize(t *testing.T) {
	cfg := AuthConfig{
		SessionLifetime: 2 * time.Hour,
		BcryptCost:      99,
		TOTPIssuer:      "  ",
	}
	cfg.Sanitize(false)

	assert.Equal(t, 2*time.Hour, cfg.SessionLifetime, "explicit lifetime wins")
	assert.Equal(t, 31, cfg.BcryptCost)
	assert.Equal(t, "authd", cfg.TOTPIssuer)
	assert.Equal(t, 8, cfg.MinPasswordLength)
}

func TestWebAuthnConfig_Sanitize(t *testing.T) {
	cfg := WebAuthnConfig{RPOrigins: []string{" https://app.example.com/ ", ""}}
	cfg.Sanitize("https://app.example.com:8443/")

	assert.Equal(t, "app.example.com", cfg.RPID)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.RPOrigins)
	assert.Equal(t, "authd", cfg.RPDisplayName)
}

func TestSweeperConfig_Sanitize(t *testing.T) {
	cfg := SweeperConfig{Interval: time.Second, BatchSize: 50000}
	cfg.Sanitize()
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 10000, cfg.BatchSize)
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	cfg := HTTPConfig{CompressionLevel: 42, CookieDomain: " example.com "}
	cfg.Sanitize()
	assert.Equal(t, 9, cfg.CompressionLevel)
	assert.Equal(t, "example.com", cfg.CookieDomain)
	assert.Equal(t, DefaultSessionCookie, cfg.SessionCookieName)
	assert.Equal(t, DefaultChallengeCookie, cfg.ChallengeCookieName)
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " "}
	cfg.Sanitize()
	assert.False(t, cfg.Enabled, "empty address disables metrics")

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " statsd:1234 "}
	cfg.Sanitize()
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "statsd:1234", cfg.StatsdAddress)
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		RetryLimit: -1,
		Slack:      SlackNotificationConfig{Enabled: true, WebhookURL: " "},
		PagerDuty:  PagerDutyNotificationConfig{Enabled: true, RoutingKey: " "},
	}
	cfg.Sanitize()

	assert.Positive(t, cfg.Timeout)
	assert.Zero(t, cfg.RetryLimit)
	assert.False(t, cfg.Slack.Enabled)
	assert.False(t, cfg.PagerDuty.Enabled)
	assert.Equal(t, "authd", cfg.PagerDuty.Source)
	assert.Equal(t, "authd", cfg.Slack.Username)

	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack:   SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/services/test"},
	}
	cfg.Sanitize()
	assert.False(t, cfg.Slack.Enabled, "disabled top-level disables child sinks")
}
