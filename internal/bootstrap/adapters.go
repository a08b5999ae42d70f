package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/uninbox/authd/config"
	"github.com/uninbox/authd/internal/adapters/sweeper"
	"github.com/uninbox/authd/internal/core"
	"github.com/uninbox/authd/internal/observability/statsd"
	"github.com/uninbox/authd/internal/service"
)

// SweeperConfig contains configuration for the expired-session sweeper.
type SweeperConfig struct {
	DB     *sql.DB
	Cache  core.CacheRepository
	Logger *slog.Logger
	Config config.SweeperConfig

	// Sessions reuses an already wired session manager when set.
	Sessions *service.SessionManager
	Metrics  statsd.Sink
}

func newSweeperRunner(cfg SweeperConfig) (*sweeper.Runner, error) {
	opts := sweeper.RunnerOptions{
		DB:      cfg.DB,
		Logger:  cfg.Logger,
		Config:  cfg.Config,
		Metrics: cfg.Metrics,
	}
	// Assign only non-nil values so the interfaces stay nil otherwise.
	if cfg.Cache != nil {
		opts.Cache = cfg.Cache
	}
	if cfg.Sessions != nil {
		opts.Sessions = cfg.Sessions
	}
	runner, err := sweeper.NewRunner(opts)
	if err != nil {
		return nil, fmt.Errorf("create sweeper runner: %w", err)
	}
	return runner, nil
}

// RunSweeper starts the expired-session sweeper and blocks until ctx is done.
func RunSweeper(ctx context.Context, cfg SweeperConfig) error {
	runner, err := newSweeperRunner(cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// SweepOnce runs a single sweep and returns the number of sessions removed.
func SweepOnce(ctx context.Context, cfg SweeperConfig) (int64, error) {
	runner, err := newSweeperRunner(cfg)
	if err != nil {
		return 0, err
	}
	return runner.SweepOnce(ctx)
}
