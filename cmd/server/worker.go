package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/phrazzld/story-api/internal/llm"
	"github.com/phrazzld/story-api/internal/platform/gemini"
	"github.com/phrazzld/story-api/internal/service"
	"github.com/phrazzld/story-api/internal/task"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	var queues []string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a task worker",
		Long: `Run a worker that consumes tasks from the named queues and records
their results. Each worker also answers ping, inspect and revoke commands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.local {
				return fmt.Errorf("the in-process queue cannot be shared; use serve --local instead")
			}
			for _, q := range queues {
				if !isQueue(q) {
					return fmt.Errorf("unknown queue %q (want one of %s)", q, strings.Join(task.Queues(), ", "))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			app, err := newApplication(ctx, cfg, logger, false, "story-worker")
			if err != nil {
				return err
			}
			defer app.cleanup()

			return app.runWorker(ctx, queues, true)
		},
	}

	cmd.Flags().StringSliceVarP(&queues, "queues", "Q", task.Queues(), "queues to consume")
	return cmd
}

func isQueue(name string) bool {
	for _, q := range task.Queues() {
		if q == name {
			return true
		}
	}
	return false
}

// runWorker registers every task handler and consumes queues until ctx
// ends. A standalone worker also serves its own metrics endpoint.
func (app *application) runWorker(ctx context.Context, queues []string, standalone bool) error {
	log := app.logger.With("component", "worker_command")

	prompts, err := llm.DefaultPrompts()
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	llmService := llm.NewService(
		gemini.NewFactory(app.cfg.LLM, app.logger),
		app.catalog,
		prompts,
		app.logger,
		llm.WithRecorder(app.metrics),
		llm.WithDefaults(llm.Defaults{
			Temperature: app.cfg.LLM.Temperature,
			MaxTokens:   app.cfg.LLM.MaxTokens,
		}),
	)
	if app.cfg.LLM.GeminiAPIKey == "" {
		log.Warn("no Gemini API key configured; llm tasks will fail")
	}

	registry := task.NewRegistry()
	if err := service.RegisterHandlers(registry, app.stories, llmService); err != nil {
		return fmt.Errorf("failed to register task handlers: %w", err)
	}

	source, err := app.tr.source(ctx, queues)
	if err != nil {
		return fmt.Errorf("failed to open task source: %w", err)
	}

	worker := task.NewWorker(task.WorkerConfig{
		Hostname:    app.cfg.Tasks.Hostname,
		Concurrency: app.cfg.Tasks.Concurrency,
		Policy:      app.retryPolicy(),
		ExtraStats: func() map[string]any {
			return map[string]any{llm.UsageStatsKey: llmService.Usage()}
		},
	}, source, registry, app.tr.results, app.metrics, app.logger)

	log.Info("starting worker",
		"worker", worker.Hostname(),
		"queues", queues,
		"concurrency", app.cfg.Tasks.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return app.tr.serveControl(gctx, worker.Hostname(), worker.HandleControl)
	})
	if standalone && app.cfg.Metrics.Enabled {
		g.Go(func() error {
			return app.metrics.Serve(gctx, app.cfg.Metrics.Port, app.logger)
		})
	}
	return g.Wait()
}
