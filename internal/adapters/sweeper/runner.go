// Package sweeper provides adapters for running the expired-session sweeper.
package sweeper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uninbox/authd/config"
	"github.com/uninbox/authd/internal/core"
	"github.com/uninbox/authd/internal/data"
	"github.com/uninbox/authd/internal/observability/statsd"
	"github.com/uninbox/authd/internal/service"
)

// Runner provides a simple adapter to run the sweeper loop.
// It constructs the sweeper service and runs the cleanup loop.
type Runner struct {
	sweeper *service.SessionSweeperService
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Cache  core.CacheRepository
	Config config.SweeperConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Sessions service.ExpiredSessionPurger
	Metrics  statsd.Sink
}

// NewRunner creates a new sweeper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	sweeper, err := service.NewSessionSweeperService(service.SessionSweeperServiceOptions{
		Sessions: purger(opts),
		Config:   opts.Config,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire sweeper service: %w", err)
	}

	return &Runner{sweeper: sweeper, logger: opts.Logger}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Sessions == nil && (opts.DB == nil || opts.Cache == nil) {
		return errors.New("database connection and cache are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func purger(opts RunnerOptions) service.ExpiredSessionPurger {
	if opts.Sessions != nil {
		return opts.Sessions
	}
	return service.NewSessionManager(service.SessionManagerOptions{
		Sessions: data.NewSessionRepo(opts.DB),
		Accounts: data.NewAccountRepo(opts.DB),
		Cache:    opts.Cache,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
}

// Run starts the sweeper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting session sweeper")
	return r.sweeper.Run(ctx)
}

// SweepOnce runs a single sweep and returns the number of sessions removed.
func (r *Runner) SweepOnce(ctx context.Context) (int64, error) {
	return r.sweeper.Sweep(ctx)
}
