// Package app assembles the engine's collaborators from configuration. The
// API server and the operator CLI share it.
package app

import (
	"context"
	"fmt"

	"propdesk/internal/auth"
	"propdesk/internal/challenges"
	"propdesk/internal/config"
	"propdesk/internal/db"
	"propdesk/internal/events"
	"propdesk/internal/plans"
	"propdesk/internal/store"
	"propdesk/internal/store/memory"
	"propdesk/internal/store/postgres"
	"propdesk/internal/store/sqlite"

	"go.uber.org/zap"
)

type App struct {
	Config     config.Config
	Log        *zap.Logger
	Store      store.Store
	Plans      *plans.Catalog
	Bus        *events.Bus
	Auth       *auth.Service
	Challenges *challenges.Service
}

func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	catalog, err := plans.Load(cfg.PlansFile)
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}
	st, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	bus := events.NewBus()
	return &App{
		Config:     cfg,
		Log:        log,
		Store:      st,
		Plans:      catalog,
		Bus:        bus,
		Auth:       auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL),
		Challenges: challenges.NewService(st, catalog, bus, log.Named("challenges")),
	}, nil
}

// OpenStore connects the configured backend. Postgres migrations are applied
// on the way.
func OpenStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info("migrations applied", zap.Strings("files", applied))
		}
		return postgres.New(pool), nil
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return st, nil
	case config.DriverMemory:
		log.Warn("using in-memory store, state is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (a *App) Close() error {
	return a.Store.Close()
}
