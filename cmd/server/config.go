package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/story-api/internal/config"
	"github.com/phrazzld/story-api/internal/platform/logger"
)

// loadConfig reads configuration and installs the process logger. Local
// mode forces the SQLite driver so no external database is needed.
func loadConfig(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	var overrides map[string]any
	if opts.local {
		overrides = map[string]any{
			"database.driver": "sqlite",
			"database.url":    opts.localDB,
		}
	}

	cfg, err := config.LoadWith(opts.configFile, overrides)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"local", opts.local)
	log.Debug("llm configuration",
		"default_model", cfg.LLM.DefaultModel,
		"api_key_present", cfg.LLM.GeminiAPIKey != "")

	return cfg, log, nil
}
