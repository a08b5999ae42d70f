package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: sessions, verification tokens, passkeys and TOTP
//   - database.go: Postgres, Redis and cache TTLs
//   - http.go: HTTP server and cookie configuration
//   - services.go: service modes and the session sweeper
type AppConfig struct {
	// IsDev controls development mode behavior (short sessions, insecure cookies).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth     AuthConfig
	WebAuthn WebAuthnConfig `envPrefix:"WEBAUTHN_"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled services (http, sweeper).
	Services string `env:"SERVICES" envDefault:"http"`

	Sweeper SweeperConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectDevMode()

	c.Auth.Sanitize(c.IsDev)
	c.WebAuthn.Sanitize(c.HTTP.BaseURL)
	c.Cache.Sanitize()
	c.HTTP.Sanitize()
	c.Sweeper.Sanitize()
	c.Observability.Sanitize()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.serviceEnabled(ServiceModeHTTP) }

// IsSweeperEnabled returns true if the expired-session sweeper is enabled.
func (c *AppConfig) IsSweeperEnabled() bool { return c.serviceEnabled(ServiceModeSweeper) }

// SecureCookies reports whether cookies must carry the Secure attribute.
// Only trusted local development turns it off.
func (c *AppConfig) SecureCookies() bool { return !c.IsDev }
