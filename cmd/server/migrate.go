package main

import (
	"fmt"

	"github.com/phrazzld/story-api/internal/platform/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	for _, c := range []struct {
		name, short string
	}{
		{migrations.CommandUp, "Apply all pending migrations"},
		{migrations.CommandDown, "Roll back the latest migration"},
		{migrations.CommandStatus, "Show the status of every migration"},
		{migrations.CommandVersion, "Show the current schema version"},
	} {
		command := c.name
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigration(cmd, opts, command)
			},
		})
	}
	return cmd
}

func runMigration(cmd *cobra.Command, opts *rootOptions, command string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("error closing database connection", "error", cerr)
		}
	}()

	m, err := migrations.New(db, cfg.Database.Driver, logger)
	if err != nil {
		return err
	}
	if err := m.Run(ctx, command); err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	logger.Info("migration command completed", "command", command)
	return nil
}
