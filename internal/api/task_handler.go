package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/story-api/internal/api/shared"
	"github.com/phrazzld/story-api/internal/platform/logger"
	"github.com/phrazzld/story-api/internal/redact"
	"github.com/phrazzld/story-api/internal/task"
)

// defaultResultWait bounds GET /tasks/{id}/result when no timeout is given,
// so the request makes a single check instead of blocking.
const defaultResultWait = 100 * time.Millisecond

// TaskObserver reads task state and fleet state.
type TaskObserver interface {
	Status(ctx context.Context, taskID string) (*task.Status, error)
	Result(ctx context.Context, taskID string, timeout time.Duration) (json.RawMessage, error)
	Cancel(ctx context.Context, taskID string) (bool, error)
	ListActive(ctx context.Context) (*task.ActiveTasks, error)
	WorkerStats(ctx context.Context) (*task.FleetStats, error)
}

// TaskHandler serves /tasks.
type TaskHandler struct {
	observer TaskObserver
	maxWait  time.Duration
	logger   *slog.Logger
}

// NewTaskHandler creates a TaskHandler. maxWait caps the timeout a caller
// may request from the result endpoint.
func NewTaskHandler(observer TaskObserver, maxWait time.Duration, logger *slog.Logger) *TaskHandler {
	if observer == nil || logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("observer and logger are required for TaskHandler")
	}
	if maxWait <= 0 {
		maxWait = defaultResultWait
	}
	return &TaskHandler{
		observer: observer,
		maxWait:  maxWait,
		logger:   logger.With(slog.String("component", "task_handler")),
	}
}

// Routes returns the /tasks routes. Static paths are registered before
// the task ID pattern.
func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/active", h.ListActive)
	r.Get("/workers/stats", h.WorkerStats)
	r.Get("/health", h.Health)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/result", h.GetResult)
		r.Delete("/", h.Cancel)
	})
	return r
}

// GetStatus handles GET /tasks/{taskID}/status.
func (h *TaskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := getPathTaskID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	status, err := h.observer.Status(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, status)
}

// GetResult handles GET /tasks/{taskID}/result?timeout=<seconds>. The wait
// is always bounded: without a timeout it checks once, and a supplied
// timeout is capped at maxWait.
func (h *TaskHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	taskID, err := getPathTaskID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	wait, ok, err := queryTimeout(r, "timeout")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	switch {
	case !ok || wait <= 0:
		wait = defaultResultWait
	case wait > h.maxWait:
		log.Debug("result timeout capped",
			slog.Duration("requested", wait),
			slog.Duration("max", h.maxWait))
		wait = h.maxWait
	}

	result, err := h.observer.Result(r.Context(), taskID, wait)
	if err != nil {
		HandleAPIError(w, r, err, fmt.Sprintf("Failed to get result for task %s", taskID))
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskResultResponse{
		TaskID:  taskID,
		Result:  result,
		Success: true,
	})
}

// Cancel handles DELETE /tasks/{taskID}. Cancellation is best effort: a
// task that already committed its effects keeps them.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	taskID, err := getPathTaskID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	cancelled, err := h.observer.Cancel(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to cancel task")
		return
	}

	message := "Failed to cancel task"
	if cancelled {
		message = "Task cancelled successfully"
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskCancelResponse{
		TaskID:    taskID,
		Cancelled: cancelled,
		Message:   message,
	})
}

// ListActive handles GET /tasks/active.
func (h *TaskHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	active, err := h.observer.ListActive(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list active tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, active)
}

// WorkerStats handles GET /tasks/workers/stats.
func (h *TaskHandler) WorkerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.observer.WorkerStats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get worker statistics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// Health handles GET /tasks/health. The fleet is healthy when at least one
// worker answered ping.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.observer.WorkerStats(r.Context())
	if err != nil {
		logger.FromContextOrDefault(r.Context(), h.logger).Error("task fleet health check failed", "error", redact.Error(err))
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, map[string]any{
			"status":           "unhealthy",
			"active_workers":   0,
			"message":          "Task queue unavailable",
			"broker_available": false,
		})
		return
	}

	active := 0
	for _, reply := range stats.Ping {
		if reply.OK == "pong" {
			active++
		}
	}

	status := "healthy"
	if active == 0 {
		status = "degraded"
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"status":           status,
		"active_workers":   active,
		"message":          fmt.Sprintf("%d worker(s) available", active),
		"broker_available": true,
	})
}
