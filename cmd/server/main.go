// Package main is the story-api binary. It runs the HTTP API, the task
// workers and the schema migrations.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configFile string
	local      bool
	localDB    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "story-api",
		Short: "Story CRUD and LLM operations served through a task queue",
		Long: `story-api exposes an HTTP API for stories and LLM text operations.
Every mutation and model call is queued on NATS JetStream and executed by
worker processes; clients poll /api/v1/tasks for the outcome.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default ./config.yaml or ./configs/config.yaml)")
	flags.BoolVar(&opts.local, "local", false, "use SQLite and an in-process task queue; serve also runs a worker")
	flags.StringVar(&opts.localDB, "local-db", "data/stories.db", "SQLite database path used with --local")

	root.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}
