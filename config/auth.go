package config

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ClonePolicy controls how a passkey assertion whose signature counter did not
// increase is handled.
type ClonePolicy string

const (
	// ClonePolicyReject fails the assertion.
	ClonePolicyReject ClonePolicy = "reject"
	// ClonePolicyFlag accepts the assertion and emits a critical security notification.
	ClonePolicyFlag ClonePolicy = "flag"
)

// UnmarshalText implements encoding.TextUnmarshaler for ClonePolicy.
func (p *ClonePolicy) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "reject", "flag":
		*p = ClonePolicy(v)
		return nil
	default:
		return fmt.Errorf("invalid ClonePolicy: %q (valid options: reject, flag)", v)
	}
}

const (
	devSessionLifetime  = 24 * time.Hour
	prodSessionLifetime = 28 * 24 * time.Hour
)

// AuthConfig groups session, verification and second-factor configuration.
type AuthConfig struct {
	// SessionLifetime overrides the durable session lifetime. Zero selects the
	// mode default: 1 day in development, 4 weeks otherwise.
	SessionLifetime time.Duration `env:"AUTH_SESSION_LIFETIME"`

	// SessionCacheFloor is the minimum TTL of a mirrored session cache entry.
	SessionCacheFloor time.Duration `env:"AUTH_SESSION_CACHE_FLOOR" envDefault:"24h"`

	// VerificationTokenTTL bounds how long a re-authentication proof stays usable.
	VerificationTokenTTL time.Duration `env:"AUTH_VERIFICATION_TOKEN_TTL" envDefault:"5m"`

	// ChallengeTTL bounds an in-flight passkey ceremony and its challenge cookie.
	ChallengeTTL time.Duration `env:"AUTH_CHALLENGE_TTL" envDefault:"5m"`

	// TOTPSetupTTL bounds how long a pending TOTP secret waits for confirmation.
	TOTPSetupTTL time.Duration `env:"AUTH_TOTP_SETUP_TTL" envDefault:"10m"`

	// TOTPIssuer is the issuer label embedded in otpauth URIs.
	TOTPIssuer string `env:"AUTH_TOTP_ISSUER" envDefault:"authd"`

	// BcryptCost is clamped to bcrypt's supported range.
	BcryptCost int `env:"AUTH_BCRYPT_COST" envDefault:"12"`

	// MinPasswordLength applies to password resets.
	MinPasswordLength int `env:"AUTH_MIN_PASSWORD_LENGTH" envDefault:"10"`

	ClonePolicy ClonePolicy `env:"AUTH_CLONE_POLICY" envDefault:"reject"`

	// SecretKey encrypts TOTP secrets at rest. Empty stores them unencrypted.
	SecretKey string `env:"AUTH_SECRET_KEY"`
}

// Sanitize fills mode-dependent defaults and clamps values.
func (a *AuthConfig) Sanitize(isDev bool) {
	if a.SessionLifetime <= 0 {
		a.SessionLifetime = prodSessionLifetime
		if isDev {
			a.SessionLifetime = devSessionLifetime
		}
	}
	if a.SessionCacheFloor <= 0 {
		a.SessionCacheFloor = 24 * time.Hour
	}
	if a.VerificationTokenTTL <= 0 {
		a.VerificationTokenTTL = 5 * time.Minute
	}
	if a.ChallengeTTL <= 0 {
		a.ChallengeTTL = 5 * time.Minute
	}
	if a.TOTPSetupTTL <= 0 {
		a.TOTPSetupTTL = 10 * time.Minute
	}
	if a.TOTPIssuer = strings.TrimSpace(a.TOTPIssuer); a.TOTPIssuer == "" {
		a.TOTPIssuer = "authd"
	}
	if a.BcryptCost < bcrypt.MinCost {
		a.BcryptCost = bcrypt.MinCost
	}
	if a.BcryptCost > bcrypt.MaxCost {
		a.BcryptCost = bcrypt.MaxCost
	}
	if a.MinPasswordLength < 8 {
		a.MinPasswordLength = 8
	}
	if a.ClonePolicy == "" {
		a.ClonePolicy = ClonePolicyReject
	}
}

// WebAuthnConfig identifies the relying party for passkey ceremonies.
type WebAuthnConfig struct {
	RPID          string   `env:"RP_ID"`
	RPDisplayName string   `env:"RP_DISPLAY_NAME" envDefault:"authd"`
	RPOrigins     []string `env:"RP_ORIGINS"      envSeparator:","`
}

// Sanitize derives the relying party id and origin from baseURL when unset.
func (w *WebAuthnConfig) Sanitize(baseURL string) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if w.RPID = strings.TrimSpace(w.RPID); w.RPID == "" {
		host := baseURL
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		if i := strings.IndexAny(host, ":/"); i >= 0 {
			host = host[:i]
		}
		w.RPID = host
	}
	origins := w.RPOrigins[:0]
	for _, o := range w.RPOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 && baseURL != "" {
		origins = append(origins, baseURL)
	}
	w.RPOrigins = origins
	if strings.TrimSpace(w.RPDisplayName) == "" {
		w.RPDisplayName = "authd"
	}
}
