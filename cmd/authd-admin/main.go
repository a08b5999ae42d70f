package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uninbox/authd/config"
	"github.com/uninbox/authd/internal/bootstrap"
	"github.com/uninbox/authd/internal/data"
	"github.com/uninbox/authd/internal/devseed"
	domainauth "github.com/uninbox/authd/internal/domain/auth"
	"github.com/uninbox/authd/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations (--status lists them instead)",
			run:         runMigrations,
		},
		"seed-dev": {
			name:        "seed-dev",
			description: "Run migrations and create the development account and org",
			run:         runSeedDev,
		},
		"sweep-sessions": {
			name:        "sweep-sessions",
			description: "Delete expired sessions once and exit",
			run:         runSweepSessions,
		},
		"revoke-sessions": {
			name:        "revoke-sessions",
			description: "Revoke every session of an account (numeric id or public id)",
			run:         runRevokeSessions,
		},
		"org-cache-refresh": {
			name:        "org-cache-refresh",
			description: "Rebuild the cached context of an organization from the database",
			run:         runOrgCacheRefresh,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: authd-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, name := range sortedCommandNames() {
		c := commands()[name]
		if err := writef(os.Stdout, "  %-20s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

type seedOptions struct {
	Timeout     time.Duration
	AllowRemote bool
	Seed        devseed.Options
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		if opts.Status {
			return printMigrationStatus(ctx, db)
		}

		cmdCtx.Logger.Info("running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func printMigrationStatus(ctx context.Context, db *sql.DB) error {
	status, err := bootstrap.MigrationStatus(ctx, db)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writef(tw, "VERSION\tAPPLIED\n"); err != nil {
		return err
	}
	for _, m := range status {
		if err := writef(tw, "%s\t%t\n", m.Version, m.Applied); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runSeedDev(cmdCtx *commandContext, args []string) error {
	opts, err := parseSeedFlags(args)
	if err != nil {
		return err
	}

	if _, guardErr := guardRemoteHost(cmdCtx, opts.AllowRemote, "seed development data on the configured database"); guardErr != nil {
		return guardErr
	}

	return withInfra(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB, client redis.UniversalClient) error {
		cmdCtx.Logger.Info("ensuring database migrations are current")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}

		svcs := devseed.NewServices(db, data.NewRedisCacheRepo(client), cmdCtx.Config.Auth.BcryptCost)
		res, seedErr := devseed.Run(ctx, svcs, opts.Seed, cmdCtx.Logger)
		if seedErr != nil {
			return fmt.Errorf("seed data: %w", seedErr)
		}

		return writef(os.Stdout, "account %q (%s)\norg %q (%s)\n",
			res.Account.Username, res.Account.PublicID, res.Org.Shortcode, res.Org.PublicID)
	})
}

func runSweepSessions(cmdCtx *commandContext, args []string) error {
	timeout, err := parseTimeoutFlags("sweep-sessions", args, defaultCommandTimeout)
	if err != nil {
		return err
	}

	return withInfra(cmdCtx, timeout, func(ctx context.Context, db *sql.DB, client redis.UniversalClient) error {
		removed, sweepErr := bootstrap.SweepOnce(ctx, bootstrap.SweeperConfig{
			DB:     db,
			Cache:  data.NewRedisCacheRepo(client),
			Logger: cmdCtx.Logger,
			Config: cmdCtx.Config.Sweeper,
		})
		if sweepErr != nil {
			return sweepErr
		}
		return writef(os.Stdout, "Removed %d expired sessions\n", removed)
	})
}

func runRevokeSessions(cmdCtx *commandContext, args []string) error {
	ref, timeout, err := parseRefArgs("revoke-sessions", "account-id", args)
	if err != nil {
		return err
	}

	return withInfra(cmdCtx, timeout, func(ctx context.Context, db *sql.DB, client redis.UniversalClient) error {
		accounts := data.NewAccountRepo(db)
		account, findErr := findAccount(ctx, accounts, ref)
		if findErr != nil {
			return findErr
		}

		sessions := service.NewSessionManager(service.SessionManagerOptions{
			Sessions: data.NewSessionRepo(db),
			Accounts: accounts,
			Cache:    data.NewRedisCacheRepo(client),
			Logger:   cmdCtx.Logger,
		})
		n, revokeErr := sessions.InvalidateAll(ctx, account.ID)
		if revokeErr != nil {
			return fmt.Errorf("revoke sessions: %w", revokeErr)
		}
		cmdCtx.Logger.InfoContext(ctx, "revoked sessions", "account_id", account.ID, "count", n)
		return writef(os.Stdout, "Revoked %d sessions of %q\n", n, account.Username)
	})
}

type accountFinder interface {
	FindByID(ctx context.Context, id int64) (*domainauth.Account, error)
	FindByPublicID(ctx context.Context, publicID string) (*domainauth.Account, error)
}

// findAccount accepts either the numeric account id or its public id.
func findAccount(ctx context.Context, accounts accountFinder, ref string) (*domainauth.Account, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		account, findErr := accounts.FindByID(ctx, id)
		if findErr != nil {
			return nil, fmt.Errorf("find account %d: %w", id, findErr)
		}
		return account, nil
	}
	account, err := accounts.FindByPublicID(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("find account %q: %w", ref, err)
	}
	return account, nil
}

func runOrgCacheRefresh(cmdCtx *commandContext, args []string) error {
	ref, timeout, err := parseRefArgs("org-cache-refresh", "org-id", args)
	if err != nil {
		return err
	}
	orgID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || orgID <= 0 {
		return fmt.Errorf("invalid org id %q", ref)
	}

	return withInfra(cmdCtx, timeout, func(ctx context.Context, db *sql.DB, client redis.UniversalClient) error {
		contexts := service.NewOrgContextCache(service.OrgContextCacheOptions{
			Orgs:   data.NewOrgRepo(db),
			Cache:  data.NewRedisCacheRepo(client),
			TTL:    cmdCtx.Config.Cache.OrgContextTTL,
			Logger: cmdCtx.Logger,
		})
		oc, refreshErr := contexts.Invalidate(ctx, orgID)
		if refreshErr != nil {
			return fmt.Errorf("refresh org context: %w", refreshErr)
		}
		return writef(os.Stdout, "Refreshed %q (%d members)\n", oc.Shortcode, len(oc.Members))
	})
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)
	fs.BoolVar(&opts.Status, "status", false, "List migrations and whether they are applied")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseSeedFlags(args []string) (seedOptions, error) {
	fs := flag.NewFlagSet("seed-dev", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	defaults := devseed.DefaultOptions()
	opts := seedOptions{Timeout: defaultMigrationTimeout}

	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for seeding to complete")
	fs.BoolVar(
		&opts.AllowRemote,
		"allow-remote",
		false,
		"Permit running against database hosts that do not look local",
	)
	fs.StringVar(&opts.Seed.Username, "username", defaults.Username, "Dev account username")
	fs.StringVar(&opts.Seed.Password, "password", defaults.Password, "Dev account password")
	fs.StringVar(&opts.Seed.OrgShortcode, "org", defaults.OrgShortcode, "Dev org shortcode")
	fs.StringVar(&opts.Seed.OrgName, "org-name", defaults.OrgName, "Dev org display name")

	if err := fs.Parse(args); err != nil {
		return seedOptions{}, err
	}

	if opts.Timeout <= 0 {
		return seedOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseTimeoutFlags(name string, args []string, def time.Duration) (time.Duration, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	timeout := def
	fs.DurationVar(&timeout, "timeout", def, "Maximum duration of the command")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if timeout <= 0 {
		return 0, errors.New("--timeout must be greater than zero")
	}
	if fs.NArg() > 0 {
		return 0, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return timeout, nil
}

// parseRefArgs parses "[--timeout d] <ref>" for commands that take one identifier.
func parseRefArgs(name, refName string, args []string) (string, time.Duration, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	timeout := defaultCommandTimeout
	fs.DurationVar(&timeout, "timeout", defaultCommandTimeout, "Maximum duration of the command")
	if err := fs.Parse(args); err != nil {
		return "", 0, err
	}
	if timeout <= 0 {
		return "", 0, errors.New("--timeout must be greater than zero")
	}
	if fs.NArg() != 1 {
		return "", 0, fmt.Errorf("usage: authd-admin %s [--timeout d] <%s>", name, refName)
	}
	ref := strings.TrimSpace(fs.Arg(0))
	if ref == "" {
		return "", 0, fmt.Errorf("%s is required", refName)
	}
	return ref, timeout, nil
}

func commandContextWithTimeout(cmdCtx *commandContext, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, cancel := commandContextWithTimeout(cmdCtx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func withInfra(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB, redis.UniversalClient) error,
) error {
	ctx, cancel := commandContextWithTimeout(cmdCtx, timeout)
	defer cancel()

	db, client, err := connectInfra(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, client); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	return f(ctx, db, client)
}
