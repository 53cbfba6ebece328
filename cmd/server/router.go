package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/story-api/internal/api"
	apiMiddleware "github.com/phrazzld/story-api/internal/api/middleware"
	"github.com/phrazzld/story-api/internal/api/shared"
	"github.com/phrazzld/story-api/internal/task"
)

// setupRouter builds the HTTP routes and their dependencies.
func (app *application) setupRouter() http.Handler {
	dispatcher := task.NewDispatcher(app.tr.broker, app.metrics, app.logger)
	observatory := task.NewObservatory(app.tr.results, app.tr.control, app.cfg.Tasks.PollInterval, app.logger)

	storyHandler := api.NewStoryHandler(dispatcher, app.stories, app.logger)
	llmHandler := api.NewLLMHandler(dispatcher, app.catalog, observatory, app.logger)
	taskHandler := api.NewTaskHandler(observatory, app.cfg.Tasks.MaxResultWait, app.logger)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(middleware.Recoverer)
	if app.cfg.Metrics.Enabled {
		r.Use(app.metrics.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
	})
	if app.cfg.Metrics.Enabled {
		r.Handle("/metrics", app.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/stories", storyHandler.Routes())
		r.Mount("/llm", llmHandler.Routes())
		r.Mount("/tasks", taskHandler.Routes())
	})

	return r
}
