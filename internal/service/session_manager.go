package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/uninbox/authd/internal/core"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/observability/metrics"
	"github.com/uninbox/authd/internal/observability/statsd"
)

const (
	defaultSessionLifetime   = 4 * 7 * 24 * time.Hour
	defaultSessionCacheFloor = 24 * time.Hour
)

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Sessions core.SessionRepository
	Accounts core.AccountRepository
	Cache    core.CacheRepository

	// Lifetime is the durable session lifetime (default 4 weeks).
	Lifetime time.Duration
	// CacheFloor is the minimum TTL of a mirrored entry (default 24h).
	CacheFloor time.Duration

	Logger  *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// SessionManager is the authority on whether a session token is valid.
// Sessions live durably in SessionRepository and are mirrored into the cache
// for the fast path.
type SessionManager struct {
	sessions core.SessionRepository
	accounts core.AccountRepository
	cache    *core.SessionCache

	lifetime   time.Duration
	cacheFloor time.Duration

	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	lifetime := opts.Lifetime
	if lifetime <= 0 {
		lifetime = defaultSessionLifetime
	}
	floor := opts.CacheFloor
	if floor <= 0 {
		floor = defaultSessionCacheFloor
	}
	return &SessionManager{
		sessions:   opts.Sessions,
		accounts:   opts.Accounts,
		cache:      core.NewSessionCache(opts.Cache),
		lifetime:   lifetime,
		cacheFloor: floor,
		logger:     logger.With("component", "session_manager"),
		metrics:    opts.Metrics,
		now:        now,
	}
}

// Lifetime returns the lifetime applied to new sessions.
func (m *SessionManager) Lifetime() time.Duration { return m.lifetime }

// cacheTTL derives the mirrored TTL from the remaining lifetime, floored.
func (m *SessionManager) cacheTTL(expiresAt time.Time) time.Duration {
	return max(expiresAt.Sub(m.now()), m.cacheFloor)
}

// Create issues a new session for accountID, persists it, mirrors it into the
// cache and records the login time on the account.
func (m *SessionManager) Create(
	ctx context.Context,
	accountID int64,
	attrs domainauth.SessionAttributes,
) (*domainauth.Session, error) {
	if accountID <= 0 {
		return nil, apperrors.ValidationField("account_id", "account id is required")
	}

	now := m.now().UTC()
	payload := attrs.Account
	payload.Version = domainauth.SessionPayloadVersion
	payload.AccountID = accountID

	sess := domainauth.Session{
		Token:     rand.Text(),
		PublicID:  uuid.NewString(),
		AccountID: accountID,
		Device:    attrs.Device,
		OS:        attrs.OS,
		ExpiresAt: now.Add(m.lifetime),
		CreatedAt: now,
		Account:   payload,
	}

	if err := m.sessions.Insert(ctx, sess); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := m.cache.Put(ctx, sess, m.cacheTTL(sess.ExpiresAt)); err != nil {
		// The token is never handed out; drop the orphaned row.
		if _, delErr := m.sessions.DeleteByToken(ctx, sess.Token); delErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback session: %w", delErr))
		}
		return nil, fmt.Errorf("mirror session: %w", err)
	}

	if err := m.accounts.UpdateCredentials(ctx, accountID, domainauth.CredentialsUpdate{LastLoginAt: &now}); err != nil {
		m.logger.WarnContext(ctx, "failed to record last login", "account_id", accountID, "error", err)
	}

	metrics.EmitAuthOp(m.metrics, metrics.AuthMetric{Op: "session.create", Result: metrics.ResultSuccess})
	return &sess, nil
}

// Validate returns the live session for token, or nil when the token is
// unknown or expired. Store and cache failures are returned as errors and
// never reported as a missing session.
func (m *SessionManager) Validate(ctx context.Context, token string) (*domainauth.Session, error) {
	if token == "" {
		return nil, nil
	}

	cached, err := m.cache.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		metrics.EmitCacheLookup(m.metrics, "session", metrics.CacheHit)
		if cached.Expired(m.now()) {
			return nil, m.purge(ctx, token)
		}
		return cached, nil
	}
	metrics.EmitCacheLookup(m.metrics, "session", metrics.CacheMiss)

	sess, err := m.findDurable(ctx, token)
	if err != nil || sess == nil {
		return nil, err
	}
	if sess.Expired(m.now()) {
		return nil, m.purge(ctx, token)
	}
	return m.rehydrate(ctx, *sess)
}

func (m *SessionManager) findDurable(ctx context.Context, token string) (*domainauth.Session, error) {
	sess, err := m.sessions.FindByToken(ctx, token)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

// rehydrate mirrors a durable session back into the cache. The row is read
// again after the write: if a concurrent Invalidate removed it in between,
// the freshly written entry is dropped instead of outliving the session.
func (m *SessionManager) rehydrate(ctx context.Context, sess domainauth.Session) (*domainauth.Session, error) {
	sess.Account.Version = domainauth.SessionPayloadVersion
	if err := m.cache.Put(ctx, sess, m.cacheTTL(sess.ExpiresAt)); err != nil {
		return nil, err
	}

	still, err := m.findDurable(ctx, sess.Token)
	if err != nil {
		return nil, err
	}
	if still == nil {
		if err := m.cache.Delete(ctx, sess.Token); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &sess, nil
}

// purge drops an expired session from the store and then the cache.
func (m *SessionManager) purge(ctx context.Context, token string) error {
	if _, err := m.sessions.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("purge expired session: %w", err)
	}
	return m.cache.Delete(ctx, token)
}

// Invalidate removes a session. Deleting an unknown token is not an error.
func (m *SessionManager) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := m.sessions.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := m.cache.Delete(ctx, token); err != nil {
		return err
	}
	metrics.EmitAuthOp(m.metrics, metrics.AuthMetric{Op: "session.invalidate", Result: metrics.ResultSuccess})
	return nil
}

// InvalidateAll removes every session of accountID and returns how many
// durable rows were deleted. Mirrored entries are dropped only after the
// durable delete succeeded.
func (m *SessionManager) InvalidateAll(ctx context.Context, accountID int64) (int64, error) {
	list, err := m.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	if len(list) == 0 {
		return 0, nil
	}

	tokens := make([]string, 0, len(list))
	for _, s := range list {
		tokens = append(tokens, s.Token)
	}

	n, err := m.sessions.DeleteByTokens(ctx, tokens)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	if err := m.cache.DeleteMany(ctx, tokens); err != nil {
		return n, err
	}

	m.logger.InfoContext(ctx, "sessions invalidated", "account_id", accountID, "count", n)
	return n, nil
}

// UpdateExpiry moves the expiry of a session. An evicted mirror is left
// evicted; the next Validate repopulates it from the store.
func (m *SessionManager) UpdateExpiry(ctx context.Context, token string, expiresAt time.Time) error {
	ok, err := m.sessions.UpdateExpiry(ctx, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update session expiry: %w", err)
	}
	if !ok {
		return apperrors.NotFound("session not found")
	}

	cached, err := m.cache.Get(ctx, token)
	if err != nil || cached == nil {
		return err
	}
	cached.ExpiresAt = expiresAt
	_, err = m.cache.Replace(ctx, *cached, m.cacheTTL(expiresAt))
	return err
}

// ListForAccount returns the unexpired sessions of accountID, newest first.
func (m *SessionManager) ListForAccount(ctx context.Context, accountID int64) ([]domainauth.Session, error) {
	list, err := m.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := m.now()
	out := make([]domainauth.Session, 0, len(list))
	for _, s := range list {
		if !s.Expired(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

// PurgeExpired deletes up to batchSize expired sessions and their mirrors.
func (m *SessionManager) PurgeExpired(ctx context.Context, batchSize int) (int, error) {
	tokens, err := m.sessions.DeleteExpired(ctx, m.now(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}
	if err := m.cache.DeleteMany(ctx, tokens); err != nil {
		return len(tokens), err
	}
	return len(tokens), nil
}
