package httpx

import (
	"crypto/rand"
	"net/http"
	"time"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
)

const (
	defaultSessionCookie   = "unsession"
	defaultChallengeCookie = "unauth-challenge"
	defaultChallengeMaxAge = 5 * time.Minute
)

// Cookies issues and reads the session and passkey-challenge cookies.
type Cookies struct {
	SessionName   string
	ChallengeName string
	Domain        string
	Secure        bool
	ChallengeTTL  time.Duration
}

func (c Cookies) sessionName() string {
	if c.SessionName == "" {
		return defaultSessionCookie
	}
	return c.SessionName
}

func (c Cookies) challengeName() string {
	if c.ChallengeName == "" {
		return defaultChallengeCookie
	}
	return c.ChallengeName
}

func (c Cookies) challengeTTL() time.Duration {
	if c.ChallengeTTL <= 0 {
		return defaultChallengeMaxAge
	}
	return c.ChallengeTTL
}

func (c Cookies) base(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
	}
}

// SessionToken returns the session token presented by the request, or "".
func (c Cookies) SessionToken(r *http.Request) string {
	ck, err := r.Cookie(c.sessionName())
	if err != nil {
		return ""
	}
	return ck.Value
}

// SetSession writes the session cookie; it expires with the session.
func (c Cookies) SetSession(w http.ResponseWriter, s *domainauth.Session) {
	ck := c.base(c.sessionName(), s.Token)
	ck.Expires = s.ExpiresAt.UTC()
	http.SetCookie(w, ck)
}

// ClearSession expires the session cookie.
func (c Cookies) ClearSession(w http.ResponseWriter) {
	ck := c.base(c.sessionName(), "")
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	http.SetCookie(w, ck)
}

// NewChallenge mints a challenge id and stores it in the challenge cookie.
func (c Cookies) NewChallenge(w http.ResponseWriter) string {
	id := rand.Text()
	ck := c.base(c.challengeName(), id)
	ck.MaxAge = int(c.challengeTTL().Seconds())
	http.SetCookie(w, ck)
	return id
}

// Challenge returns the challenge id presented by the request, or "".
func (c Cookies) Challenge(r *http.Request) string {
	ck, err := r.Cookie(c.challengeName())
	if err != nil {
		return ""
	}
	return ck.Value
}

// ClearChallenge expires the challenge cookie.
func (c Cookies) ClearChallenge(w http.ResponseWriter) {
	ck := c.base(c.challengeName(), "")
	ck.MaxAge = -1
	http.SetCookie(w, ck)
}
