package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"distline/internal/config"
	"distline/internal/db"
	"distline/internal/engine"
	"distline/internal/logger"
	"distline/internal/metrics"
	"distline/internal/migrate"
	"distline/internal/repo"
	"distline/internal/sequence"
)

// ResolveConfig returns the workspace config stored in the DB. When none is
// stored yet it seeds one from distline.yml in the workspace, or from the
// defaults.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	if seed == nil {
		seed = config.Default()
	}
	if err := r.UpsertConfig(ctx, nil, seed); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return seed, nil
}

type Options struct {
	Workspace string
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

// App is an opened workspace: database, effective config and an engine
// wired to both.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine

	closers []func() error
}

// Open opens the workspace database, applies migrations, resolves the
// config and builds the production allocator it names.
func Open(ctx context.Context, opts Options) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &App{DB: conn, closers: []func() error{conn.Close}}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	cfg, err := ResolveConfig(ctx, opts.Workspace, r)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Config = cfg

	eng := engine.New(conn, cfg)
	if opts.Logger != nil {
		eng.Log = opts.Logger
	}
	eng.Metrics = opts.Metrics
	alloc, err := buildAllocator(ctx, conn, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closer, ok := alloc.(interface{ Close() error }); ok {
		a.closers = append([]func() error{closer.Close}, a.closers...)
	}
	eng.Allocator = alloc
	a.Engine = eng
	return a, nil
}

func buildAllocator(ctx context.Context, conn *sql.DB, cfg *config.Config) (sequence.Allocator, error) {
	name := cfg.Production.SequenceName
	if cfg.Production.Allocator != config.AllocatorRedis {
		return sequence.SQLAllocator{Name: name}, nil
	}
	alloc, err := sequence.NewRedisAllocator(ctx, cfg.Production.RedisURL, name)
	if err != nil {
		return nil, err
	}
	floor, err := sequence.Floor(ctx, conn, name)
	if err != nil {
		alloc.Close()
		return nil, err
	}
	if err := alloc.Seed(ctx, floor); err != nil {
		alloc.Close()
		return nil, err
	}
	return alloc, nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
