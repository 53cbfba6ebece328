package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/story-api/internal/config"
	"github.com/phrazzld/story-api/internal/llm"
	"github.com/phrazzld/story-api/internal/platform/metrics"
	"github.com/phrazzld/story-api/internal/platform/migrations"
	"github.com/phrazzld/story-api/internal/service"
	"github.com/phrazzld/story-api/internal/task"
)

// application holds the dependencies shared by the serve and worker
// commands and releases them on shutdown.
type application struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	metrics *metrics.Collector
	tr      *transport
	local   bool

	stories *service.StoryService
	catalog *llm.Catalog
}

// newApplication opens the database and the task transport. In local mode
// the schema is migrated on start because the SQLite file may be new.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, local bool, name string) (*application, error) {
	app := &application{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(),
		local:   local,
	}

	var err error
	app.db, err = openDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if local {
		if err := migrateUp(ctx, app.db, cfg.Database.Driver, logger); err != nil {
			app.cleanup()
			return nil, err
		}
		app.tr = newLocalTransport(cfg, logger)
	} else {
		app.tr, err = newNATSTransport(ctx, cfg, name, logger)
		if err != nil {
			app.cleanup()
			return nil, err
		}
	}

	app.stories, err = service.NewStoryService(app.db, newStoryStore(cfg.Database.Driver, app.db, logger), logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create story service: %w", err)
	}

	app.catalog, err = llm.NewCatalog(cfg.LLM)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create model catalog: %w", err)
	}

	return app, nil
}

// retryPolicy builds the worker retry policy from configuration.
func (app *application) retryPolicy() task.RetryPolicy {
	return task.RetryPolicy{
		Delay:           app.cfg.Tasks.RetryDelay,
		StoryMaxRetries: app.cfg.Tasks.StoryMaxRetries,
		LLMMaxRetries:   app.cfg.Tasks.LLMMaxRetries,
		RetryTerminal:   app.cfg.Tasks.RetryTerminal,
	}
}

func migrateUp(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger) error {
	m, err := migrations.New(db, driver, logger)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}

// cleanup releases the transport and the database.
func (app *application) cleanup() {
	if app.tr != nil {
		app.tr.close()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
