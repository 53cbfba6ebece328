package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/story-api/internal/task"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. With --local the API uses SQLite and an in-process
queue, and runs a worker in the same process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			app, err := newApplication(ctx, cfg, logger, opts.local, "story-api")
			if err != nil {
				return err
			}
			defer app.cleanup()

			return app.serve(ctx)
		},
	}
}

// serve runs the HTTP server, plus a worker in local mode, until ctx ends.
func (app *application) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.startHTTPServer(gctx, app.setupRouter())
	})
	if app.local {
		g.Go(func() error {
			return app.runWorker(gctx, task.Queues(), false)
		})
	}
	return g.Wait()
}
