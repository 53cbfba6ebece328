package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/story-api/internal/config"
	"github.com/phrazzld/story-api/internal/platform/postgres"
	"github.com/phrazzld/story-api/internal/platform/sqlite"
	"github.com/phrazzld/story-api/internal/store"
)

// openDatabase connects to the configured database and verifies the
// connection.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	if cfg.Driver == "sqlite" {
		db, err := sqlite.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		logger.Info("database connection established", "driver", cfg.Driver)
		return db, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established", "driver", cfg.Driver)
	return db, nil
}

// newStoryStore returns the store implementation for driver.
func newStoryStore(driver string, db *sql.DB, logger *slog.Logger) store.StoryStore {
	if driver == "sqlite" {
		return sqlite.NewSQLiteStoryStore(db, logger)
	}
	return postgres.NewPostgresStoryStore(db, logger)
}
