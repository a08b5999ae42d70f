package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/uninbox/authd/internal/core"
	"github.com/uninbox/authd/internal/domain/org"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/observability/metrics"
	"github.com/uninbox/authd/internal/observability/statsd"
)

const defaultOrgContextTTL = 12 * time.Hour

// OrgContextCacheOptions groups dependencies for OrgContextCache.
type OrgContextCacheOptions struct {
	Orgs  core.OrgRepository
	Cache core.CacheRepository
	// TTL is the backstop expiry of cached contexts (default 12h).
	TTL time.Duration

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// OrgContextCache resolves shortcodes to organization contexts cache-aside.
// Membership mutations call Invalidate, which overwrites the entry with a
// fresh snapshot instead of deleting it.
type OrgContextCache struct {
	orgs  core.OrgRepository
	cache *core.OrgCache
	ttl   time.Duration
	group singleflight.Group

	logger  *slog.Logger
	metrics statsd.Sink
}

// NewOrgContextCache constructs an OrgContextCache.
func NewOrgContextCache(opts OrgContextCacheOptions) *OrgContextCache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultOrgContextTTL
	}
	return &OrgContextCache{
		orgs:    opts.Orgs,
		cache:   core.NewOrgCache(opts.Cache),
		ttl:     ttl,
		logger:  logger.With("component", "org_context"),
		metrics: opts.Metrics,
	}
}

// Resolve returns the context for shortcode, or nil when no such organization
// exists. Hits are served without consulting the store; concurrent misses for
// the same shortcode share one store read. A miss only fills an empty entry,
// so a snapshot written by Invalidate during the read is never replaced.
func (c *OrgContextCache) Resolve(ctx context.Context, shortcode string) (*org.Context, error) {
	sc := org.NormalizeShortcode(shortcode)
	if !org.ValidShortcode(sc) {
		return nil, nil
	}

	cached, err := c.cache.Get(ctx, sc)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		metrics.EmitCacheLookup(c.metrics, "org_context", metrics.CacheHit)
		return cached, nil
	}
	metrics.EmitCacheLookup(c.metrics, "org_context", metrics.CacheMiss)

	// The shared load outlives any single caller.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(sc, func() (any, error) {
		o, err := c.orgs.FindByShortcode(loadCtx, sc)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return (*org.Context)(nil), nil
			}
			return nil, fmt.Errorf("find organization: %w", err)
		}
		return c.fill(loadCtx, *o)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*org.Context), nil
	}
}

// fill loads the members of o and stores the snapshot if the entry is still
// empty. When it is not, the entry already there wins.
func (c *OrgContextCache) fill(ctx context.Context, o org.Org) (*org.Context, error) {
	members, err := c.orgs.ListMembers(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	oc := org.NewContext(o, members)
	stored, err := c.cache.Fill(ctx, oc, c.ttl)
	if err != nil {
		return nil, err
	}
	if stored {
		return &oc, nil
	}
	current, err := c.cache.Get(ctx, oc.Shortcode)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return &oc, nil
	}
	return current, nil
}

// refresh loads the members of o and overwrites its cache entry.
func (c *OrgContextCache) refresh(ctx context.Context, o org.Org) (*org.Context, error) {
	members, err := c.orgs.ListMembers(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	oc := org.NewContext(o, members)
	if err := c.cache.Put(ctx, oc, c.ttl); err != nil {
		return nil, err
	}
	return &oc, nil
}

// Invalidate re-reads the organization and overwrites the cache entry under
// its current shortcode. It returns the fresh snapshot.
func (c *OrgContextCache) Invalidate(ctx context.Context, orgID int64) (*org.Context, error) {
	o, err := c.orgs.FindByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("find organization: %w", err)
	}
	oc, err := c.refresh(ctx, *o)
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "org context refreshed", "org_id", orgID, "shortcode", oc.Shortcode)
	return oc, nil
}

// InvalidateRenamed refreshes the entry under the organization's new
// shortcode and drops the entry under oldShortcode.
func (c *OrgContextCache) InvalidateRenamed(ctx context.Context, orgID int64, oldShortcode string) (*org.Context, error) {
	oc, err := c.Invalidate(ctx, orgID)
	if err != nil {
		return nil, err
	}
	old := org.NormalizeShortcode(oldShortcode)
	if old == oc.Shortcode {
		return oc, nil
	}
	if err := c.cache.Delete(ctx, old); err != nil {
		return nil, err
	}
	return oc, nil
}
