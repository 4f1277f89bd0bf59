package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/geostore/internal/boundary"
	"github.com/roach88/geostore/internal/cache"
	"github.com/roach88/geostore/internal/config"
	"github.com/roach88/geostore/internal/featureserv"
	"github.com/roach88/geostore/internal/geostore"
	"github.com/roach88/geostore/internal/logger"
	"github.com/roach88/geostore/internal/metrics"
	"github.com/roach88/geostore/internal/redirect"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/store/postgres"
)

// app is the set of collaborators one command invocation works with.
type app struct {
	cfg       *config.Config
	repo      geostore.Repository
	svc       *geostore.Service
	redirects *redirect.Table
	fs        *featureserv.Client // nil without featureserv.url
	logger    *slog.Logger
	closers   []func() error
}

// catalog returns the boundary catalog, which needs a feature server.
func (a *app) catalog() (*boundary.Catalog, error) {
	if a.fs == nil {
		return nil, NewExitError(ExitCommandError, "featureserv.url is not configured")
	}
	return boundary.New(a.repo, a.svc, a.fs, boundary.WithLogger(a.logger)), nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// openApp loads configuration and wires storage, cache, feature server and
// service.
func openApp(ctx context.Context, opts *RootOptions, logOut io.Writer, traceID string) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = opts.Database
	}

	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	log := logger.SetupWriter(logOut, level, cfg.Log.Format).With("trace_id", traceID)

	a := &app{cfg: cfg, logger: log}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		log.Debug("database_open", "driver", cfg.Database.Driver)
		pg, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		a.repo = pg
		a.closers = append(a.closers, pg.Close)
	default:
		log.Debug("database_open", "driver", cfg.Database.Driver, "path", cfg.Database.Path)
		st, err := store.Open(cfg.Database.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		a.repo = st
		a.closers = append(a.closers, st.Close)
	}

	if cfg.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rc.Close)
		a.repo = cache.New(a.repo, rc, cache.WithTTL(cfg.CacheTTL()), cache.WithLogger(log))
		log.Debug("redis_cache_enabled", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	}

	svcOpts := []geostore.ServiceOption{
		geostore.WithMaxFoundByID(cfg.Limits.MaxGeostoresFoundByID),
		geostore.WithLogger(log),
	}
	if cfg.FeatureServ.URL != "" {
		a.fs = featureserv.New(cfg.FeatureServ.URL,
			featureserv.WithTimeout(cfg.Timeout()),
			featureserv.WithBoundariesTable(cfg.FeatureServ.BoundariesTable),
			featureserv.WithLogger(log),
		)
		if cfg.Repair.Enabled {
			svcOpts = append(svcOpts, geostore.WithRepairer(a.fs))
		}
	}

	a.redirects = redirect.New(a.repo, redirect.WithLogger(log))
	svcOpts = append(svcOpts, geostore.WithRedirects(a.redirects))
	a.svc = geostore.New(a.repo, svcOpts...)
	return a, nil
}

// commandFunc does the work of one command and returns its output payload.
type commandFunc func(ctx context.Context, a *app) (any, error)

// run wraps a command: trace id, app lifecycle, output envelope, exit code
// and metrics textfile.
func run(cmd *cobra.Command, opts *RootOptions, fn commandFunc) error {
	gen := opts.TraceIDs
	if gen == nil {
		gen = UUIDv7TraceIDs{}
	}
	traceID := gen.Generate()

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
		TraceID:   traceID,
	}

	err := execute(cmd, opts, traceID, fn, out)

	if opts.MetricsFile != "" {
		if mErr := metrics.WriteTextfile(opts.MetricsFile); mErr != nil {
			out.VerboseLog("failed to write metrics to %s: %v", opts.MetricsFile, mErr)
		}
	}
	return err
}

func execute(cmd *cobra.Command, opts *RootOptions, traceID string, fn commandFunc, out *OutputFormatter) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, opts, cmd.ErrOrStderr(), traceID)
	if err != nil {
		return out.Fail(err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.logger.Error("error closing app", "error", closeErr)
		}
	}()

	data, err := fn(ctx, a)
	if err != nil {
		a.logger.Debug("command_failed", "command", cmd.CommandPath(), "err", err)
		return out.Fail(err)
	}
	return out.Success(data)
}

// readPayload reads a GeoJSON argument: a file path, or "-" for stdin.
func readPayload(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", arg), err)
	}
	return data, nil
}
