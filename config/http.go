package config

import "strings"

const (
	// DefaultSessionCookie is the name of the session cookie.
	DefaultSessionCookie = "unsession"
	// DefaultChallengeCookie is the name of the pre-login passkey challenge cookie.
	DefaultChallengeCookie = "unauth-challenge"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the public URL of the application (e.g., "https://app.example.com").
	// Used as the default WebAuthn origin.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	SessionCookieName   string `env:"HTTP_SESSION_COOKIE"   envDefault:"unsession"`
	ChallengeCookieName string `env:"HTTP_CHALLENGE_COOKIE" envDefault:"unauth-challenge"`

	// CompressionEnabled enables gzip compression of JSON responses.
	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`

	// CompressionLevel is the gzip compression level (1-9).
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.CompressionLevel < 1 {
		h.CompressionLevel = 1
	}
	if h.CompressionLevel > 9 {
		h.CompressionLevel = 9
	}
	h.CookieDomain = strings.TrimSpace(h.CookieDomain)
	if strings.TrimSpace(h.SessionCookieName) == "" {
		h.SessionCookieName = DefaultSessionCookie
	}
	if strings.TrimSpace(h.ChallengeCookieName) == "" {
		h.ChallengeCookieName = DefaultChallengeCookie
	}
}
