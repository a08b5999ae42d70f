package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uninbox/authd/config"
	obserrors "github.com/uninbox/authd/internal/observability/errors"
	"github.com/uninbox/authd/internal/observability/metrics"
	"github.com/uninbox/authd/internal/observability/statsd"
)

// ExpiredSessionPurger deletes one batch of expired sessions. SessionManager
// implements it.
type ExpiredSessionPurger interface {
	PurgeExpired(ctx context.Context, batchSize int) (int, error)
}

// SessionSweeperServiceOptions groups dependencies for SessionSweeperService.
type SessionSweeperServiceOptions struct {
	Sessions ExpiredSessionPurger // Required
	Config   config.SweeperConfig // Required: interval and batch size
	Logger   *slog.Logger         // Optional
	Metrics  statsd.Sink          // Optional
}

// SessionSweeperService periodically removes expired sessions from the store
// and their mirrors from the cache. Validation already ignores expired
// sessions; the sweeper keeps the table from growing without bound.
type SessionSweeperService struct {
	sessions ExpiredSessionPurger
	config   config.SweeperConfig
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewSessionSweeperService constructs a SessionSweeperService.
func NewSessionSweeperService(opts SessionSweeperServiceOptions) (*SessionSweeperService, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session purger is required")
	}
	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session_sweeper")
	logger.Debug("SessionSweeperService initialized", "interval", cfg.Interval, "batch_size", cfg.BatchSize)

	return &SessionSweeperService{
		sessions: opts.Sessions,
		config:   cfg,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Run sweeps once after a startup jitter and then on every tick until ctx
// is cancelled. Returns nil on graceful shutdown.
func (s *SessionSweeperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting session sweeper", "interval", s.config.Interval)

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil {
		s.logSweepError(ctx, err, "initial sweep")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "session sweeper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logSweepError(ctx, err, "sweep")
			}
		}
	}
}

// waitWithJitter delays up to 10% of the interval so replicas started
// together do not sweep in lockstep.
func (s *SessionSweeperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// Sweep deletes expired sessions batch by batch until a batch comes back
// short, and returns the total removed.
func (s *SessionSweeperService) Sweep(ctx context.Context) (int64, error) {
	start := time.Now()
	var total int64
	var err error
	for {
		var n int
		n, err = s.sessions.PurgeExpired(ctx, s.config.BatchSize)
		total += int64(n)
		if err != nil || n < s.config.BatchSize {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}
	}
	elapsed := time.Since(start)

	s.emitSweepMetrics(total, elapsed, err)
	if err != nil {
		return total, fmt.Errorf("sweep expired sessions: %w", err)
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "swept expired sessions", "count", total, "elapsed", elapsed)
	}
	return total, nil
}

func (s *SessionSweeperService) emitSweepMetrics(removed int64, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	metrics.EmitSweep(s.metrics, removed, elapsed)

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case removed == 0:
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}
	if err != nil && !isContextCancellation(err) {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	s.metrics.Count("sessions.sweep", 1, tags)

	if err == nil {
		s.metrics.Gauge("sessions.sweep.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *SessionSweeperService) logSweepError(ctx context.Context, err error, label string) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
