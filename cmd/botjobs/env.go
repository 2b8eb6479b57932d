package main

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"botjobs/internal/config"
	"botjobs/internal/database"
	"botjobs/internal/jobs"
	"botjobs/internal/jobs/builtin"
	"botjobs/internal/jobs/usecases"
	"botjobs/internal/logger"
)

// appCore holds the components shared by every subcommand: configuration,
// logging, database access, and the job registry with its service pool.
type appCore struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *sqlx.DB
	store    database.Store
	registry *jobs.Registry
}

// buildCore loads configuration, opens the database, and assembles the job
// registry. Callers must invoke close when done.
func buildCore() (*appCore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := database.NewStore(db, cfg.Telegram.BotID, log)

	pool := jobs.NewServicePool()
	pool.MustRegister("store", store)
	pool.MustRegister("logger", log)
	pool.MustRegister("config", cfg)

	registry := jobs.NewRegistry(pool)
	if err := builtin.Register(registry, builtin.Deps{Logger: log, Store: store, Config: cfg}); err != nil {
		database.CloseDB(db)
		return nil, fmt.Errorf("failed to register builtin jobs: %w", err)
	}
	if err := usecases.RegisterAll(registry); err != nil {
		database.CloseDB(db)
		return nil, fmt.Errorf("failed to register use cases: %w", err)
	}

	return &appCore{
		cfg:      cfg,
		log:      log,
		db:       db,
		store:    store,
		registry: registry,
	}, nil
}

func (c *appCore) close() {
	database.CloseDB(c.db)
}
