// Package totp implements ports.TOTP with RFC 6238 codes from pquerna/otp.
package totp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/uninbox/authd/internal/ports"
)

const period = 30

// Authenticator generates and validates six-digit SHA1 codes, the profile every
// mainstream authenticator app supports.
type Authenticator struct {
	issuer string
	skew   uint
}

var _ ports.TOTP = (*Authenticator)(nil)

// New returns an Authenticator that labels secrets with issuer and accepts
// codes one step either side of the current one.
func New(issuer string) *Authenticator {
	return &Authenticator{issuer: issuer, skew: 1}
}

// Generate creates a fresh secret and its otpauth:// provisioning URI.
func (a *Authenticator) Generate(accountName string) (ports.TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.issuer,
		AccountName: accountName,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return ports.TOTPKey{}, fmt.Errorf("generate totp secret: %w", err)
	}
	return ports.TOTPKey{Secret: key.Secret(), URI: key.URL()}, nil
}

// Validate reports whether code is valid for secret at the given time.
func (a *Authenticator) Validate(code, secret string, at time.Time) bool {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    period,
		Skew:      a.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
