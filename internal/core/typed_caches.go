package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/domain/org"
	apperrors "github.com/uninbox/authd/internal/errors"
)

// ---------- Key Prefixes ----------

const (
	sessionKeyPrefix    = "session:"
	tokenKeyPrefix      = "reset-token:"
	challengeKeyPrefix  = "passkey-challenge:"
	totpSetupKeyPrefix  = "totp-setup:"
	orgContextKeyPrefix = "org-context:"
)

// bulkDeleteConcurrency bounds parallel DELs; single-key DELs keep cluster
// deployments free of CROSSSLOT errors.
const bulkDeleteConcurrency = 8

// SessionKey returns the cache key of a mirrored session.
func SessionKey(token string) string { return sessionKeyPrefix + token }

// TokenKey returns the cache key of a verification token: reset-token:<purpose>:<publicId>.
func TokenKey(purpose domainauth.VerificationPurpose, publicID string) string {
	return tokenKeyPrefix + string(purpose) + ":" + publicID
}

// ChallengeKey returns the cache key of a passkey challenge. Registration challenges
// are keyed by account public id, authentication challenges by the cookie challenge id;
// both share the namespace so the stored type tag decides which phase may consume it.
func ChallengeKey(id string) string { return challengeKeyPrefix + id }

// TOTPSetupKey returns the cache key of a pending TOTP secret.
func TOTPSetupKey(publicID string) string { return totpSetupKeyPrefix + publicID }

// OrgContextKey returns the cache key of an organization context.
func OrgContextKey(shortcode string) string { return orgContextKeyPrefix + shortcode }

// ---------- Common helpers ----------

func unavailable(err error, op string) error {
	return apperrors.StoreUnavailable(err, "cache "+op)
}

func putJSON(ctx context.Context, c CacheRepository, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.Set(ctx, key, b, ttl); err != nil {
		return unavailable(err, "set")
	}
	return nil
}

// decodeEntry decodes a cached JSON value. Undecodable entries are reported as
// misses so the caller falls back to the source of truth.
func decodeEntry[T any](b []byte) (*T, bool) {
	if b == nil {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return &v, true
}

func deleteKey(ctx context.Context, c CacheRepository, key string) error {
	if _, err := c.Delete(ctx, key); err != nil {
		return unavailable(err, "delete")
	}
	return nil
}

// ---------- Session Cache ----------

// SessionCache mirrors durable sessions for the fast validation path.
type SessionCache struct {
	cache CacheRepository
}

// NewSessionCache wraps a CacheRepository for session entries.
func NewSessionCache(cache CacheRepository) *SessionCache {
	return &SessionCache{cache: cache}
}

// Get returns the mirrored session or nil on a miss. Entries written with another
// payload version count as misses.
func (c *SessionCache) Get(ctx context.Context, token string) (*domainauth.Session, error) {
	b, err := c.cache.Get(ctx, SessionKey(token))
	if err != nil {
		return nil, unavailable(err, "get")
	}
	sess, ok := decodeEntry[domainauth.Session](b)
	if !ok || sess.Account.Version != domainauth.SessionPayloadVersion {
		return nil, nil
	}
	return sess, nil
}

// Put writes the session unconditionally.
func (c *SessionCache) Put(ctx context.Context, sess domainauth.Session, ttl time.Duration) error {
	return putJSON(ctx, c.cache, SessionKey(sess.Token), sess, ttl)
}

// Replace overwrites the session only when an entry is still present, so an
// evicted entry is never resurrected. Reports whether the entry was replaced.
func (c *SessionCache) Replace(ctx context.Context, sess domainauth.Session, ttl time.Duration) (bool, error) {
	b, err := json.Marshal(sess)
	if err != nil {
		return false, fmt.Errorf("encode session: %w", err)
	}
	ok, err := c.cache.SetIfExists(ctx, SessionKey(sess.Token), b, ttl)
	if err != nil {
		return false, unavailable(err, "set")
	}
	return ok, nil
}

// Delete drops a mirrored session.
func (c *SessionCache) Delete(ctx context.Context, token string) error {
	return deleteKey(ctx, c.cache, SessionKey(token))
}

// DeleteMany drops several mirrored sessions in parallel.
func (c *SessionCache) DeleteMany(ctx context.Context, tokens []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkDeleteConcurrency)
	for _, tok := range tokens {
		g.Go(func() error {
			return c.Delete(gctx, tok)
		})
	}
	return g.Wait()
}

// ---------- Verification Token Cache ----------

// TokenCache stores verification tokens scoped by purpose and account public id.
type TokenCache struct {
	cache CacheRepository
}

// NewTokenCache wraps a CacheRepository for verification tokens.
func NewTokenCache(cache CacheRepository) *TokenCache {
	return &TokenCache{cache: cache}
}

// Put stores token, replacing any previous token for the same purpose and account.
func (c *TokenCache) Put(
	ctx context.Context,
	purpose domainauth.VerificationPurpose,
	publicID, token string,
	ttl time.Duration,
) error {
	if err := c.cache.Set(ctx, TokenKey(purpose, publicID), []byte(token), ttl); err != nil {
		return unavailable(err, "set")
	}
	return nil
}

// Consume deletes the stored token only when it equals presented. A true
// result can be observed at most once per minted token.
func (c *TokenCache) Consume(
	ctx context.Context,
	purpose domainauth.VerificationPurpose,
	publicID, presented string,
) (bool, error) {
	if presented == "" {
		return false, nil
	}
	ok, err := c.cache.CompareAndDelete(ctx, TokenKey(purpose, publicID), []byte(presented))
	if err != nil {
		return false, unavailable(err, "compare-and-delete")
	}
	return ok, nil
}

// ---------- Passkey Challenge Cache ----------

// ChallengeCache stores in-flight WebAuthn ceremonies.
type ChallengeCache struct {
	cache CacheRepository
}

// NewChallengeCache wraps a CacheRepository for passkey challenges.
func NewChallengeCache(cache CacheRepository) *ChallengeCache {
	return &ChallengeCache{cache: cache}
}

// Put stores a challenge, replacing an abandoned ceremony under the same id.
func (c *ChallengeCache) Put(ctx context.Context, id string, ch domainauth.PasskeyChallenge, ttl time.Duration) error {
	return putJSON(ctx, c.cache, ChallengeKey(id), ch, ttl)
}

// Take atomically reads and removes a challenge; nil means none was pending.
func (c *ChallengeCache) Take(ctx context.Context, id string) (*domainauth.PasskeyChallenge, error) {
	b, err := c.cache.GetAndDelete(ctx, ChallengeKey(id))
	if err != nil {
		return nil, unavailable(err, "getdel")
	}
	ch, _ := decodeEntry[domainauth.PasskeyChallenge](b)
	return ch, nil
}

// ---------- Pending TOTP Setup Cache ----------

// TOTPSetupCache holds a generated TOTP secret until the user confirms a code.
type TOTPSetupCache struct {
	cache CacheRepository
}

// NewTOTPSetupCache wraps a CacheRepository for pending TOTP secrets.
func NewTOTPSetupCache(cache CacheRepository) *TOTPSetupCache {
	return &TOTPSetupCache{cache: cache}
}

// Put stores the pending secret.
func (c *TOTPSetupCache) Put(ctx context.Context, publicID, secret string, ttl time.Duration) error {
	if err := c.cache.Set(ctx, TOTPSetupKey(publicID), []byte(secret), ttl); err != nil {
		return unavailable(err, "set")
	}
	return nil
}

// Get returns the pending secret or "" when none is pending.
func (c *TOTPSetupCache) Get(ctx context.Context, publicID string) (string, error) {
	b, err := c.cache.Get(ctx, TOTPSetupKey(publicID))
	if err != nil {
		return "", unavailable(err, "get")
	}
	return string(b), nil
}

// Delete drops the pending secret.
func (c *TOTPSetupCache) Delete(ctx context.Context, publicID string) error {
	return deleteKey(ctx, c.cache, TOTPSetupKey(publicID))
}

// ---------- Organization Context Cache ----------

// OrgCache stores resolved organization contexts by shortcode. Each write
// replaces the whole snapshot under one key.
type OrgCache struct {
	cache CacheRepository
}

// NewOrgCache wraps a CacheRepository for organization contexts.
func NewOrgCache(cache CacheRepository) *OrgCache {
	return &OrgCache{cache: cache}
}

// Get returns the cached context or nil on a miss.
func (c *OrgCache) Get(ctx context.Context, shortcode string) (*org.Context, error) {
	b, err := c.cache.Get(ctx, OrgContextKey(shortcode))
	if err != nil {
		return nil, unavailable(err, "get")
	}
	oc, _ := decodeEntry[org.Context](b)
	return oc, nil
}

// Put overwrites the entry for oc.Shortcode.
func (c *OrgCache) Put(ctx context.Context, oc org.Context, ttl time.Duration) error {
	return putJSON(ctx, c.cache, OrgContextKey(oc.Shortcode), oc, ttl)
}

// Fill stores oc only when no entry exists. It reports false when another
// writer got there first.
func (c *OrgCache) Fill(ctx context.Context, oc org.Context, ttl time.Duration) (bool, error) {
	b, err := json.Marshal(oc)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", OrgContextKey(oc.Shortcode), err)
	}
	ok, err := c.cache.SetIfNotExists(ctx, OrgContextKey(oc.Shortcode), b, ttl)
	if err != nil {
		return false, unavailable(err, "set")
	}
	return ok, nil
}

// Delete drops the entry for shortcode.
func (c *OrgCache) Delete(ctx context.Context, shortcode string) error {
	return deleteKey(ctx, c.cache, OrgContextKey(shortcode))
}
