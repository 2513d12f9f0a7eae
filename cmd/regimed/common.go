package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/breadthlab/regimed/internal/calendar"
	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/persistence"
	"github.com/breadthlab/regimed/internal/persistence/postgres"
)

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func openSession(cfg *config.Config) (*calendar.Session, error) {
	session, err := calendar.NewSession(cfg.Session.Open, cfg.Session.Close, cfg.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	return session, nil
}

func openRepository(ctx context.Context, cfg *config.Config) (persistence.Repository, *sqlx.DB, error) {
	db, err := postgres.Connect(cfg.Postgres)
	if err != nil {
		return persistence.Repository{}, nil, err
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := postgres.EnsureSchema(schemaCtx, db); err != nil {
		db.Close()
		return persistence.Repository{}, nil, err
	}

	return postgres.NewRepository(db, cfg.Postgres, cfg.Retention.Window()), db, nil
}
