package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/story-api/internal/api/shared"
	"github.com/phrazzld/story-api/internal/domain"
	"github.com/phrazzld/story-api/internal/platform/logger"
	"github.com/phrazzld/story-api/internal/service"
	"github.com/phrazzld/story-api/internal/store"
	"github.com/phrazzld/story-api/internal/task"
)

// StoryDispatcher queues story mutations.
type StoryDispatcher interface {
	CreateStory(ctx context.Context, p task.CreateStoryParams) (string, error)
	UpdateStory(ctx context.Context, storyID int64, patch domain.StoryPatch, noRetry bool) (string, error)
	DeleteStory(ctx context.Context, storyID int64, noRetry bool) (string, error)
	PatchStory(ctx context.Context, storyID int64, patch domain.StoryPatch) (string, error)
}

// StoryReader serves synchronous story reads.
type StoryReader interface {
	Get(ctx context.Context, id int64) (*service.StorySnapshot, error)
	List(ctx context.Context, filter store.StoryFilter) ([]*service.StorySnapshot, error)
}

// StoryHandler serves /stories. Reads are answered directly; every mutation
// is queued and answered with a task handle.
type StoryHandler struct {
	dispatcher StoryDispatcher
	reader     StoryReader
	logger     *slog.Logger
}

// NewStoryHandler creates a StoryHandler.
func NewStoryHandler(dispatcher StoryDispatcher, reader StoryReader, logger *slog.Logger) *StoryHandler {
	if dispatcher == nil || reader == nil || logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("dispatcher, reader and logger are required for StoryHandler")
	}
	return &StoryHandler{
		dispatcher: dispatcher,
		reader:     reader,
		logger:     logger.With(slog.String("component", "story_handler")),
	}
}

// Routes returns the /stories routes.
func (h *StoryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateStory)
	r.Get("/", h.ListStories)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetStory)
		r.Put("/", h.UpdateStory)
		r.Delete("/", h.DeleteStory)
		r.Patch("/publish", h.PublishStory)
		r.Patch("/unpublish", h.UnpublishStory)
	})
	return r
}

// CreateStory handles POST /stories/.
func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	var req CreateStoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	taskID, err := h.dispatcher.CreateStory(r.Context(), req.params())
	h.respondSubmitted(w, r, taskID, err, "Story creation task submitted successfully", estimateCreate)
}

// ListStories handles GET /stories/.
func (h *StoryHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStoryFilter(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	stories, err := h.reader.List(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list stories")
		return
	}
	if stories == nil {
		stories = []*service.StorySnapshot{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stories)
}

// GetStory handles GET /stories/{id}.
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	id, err := getPathID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	story, err := h.reader.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get story")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, story)
}

// UpdateStory handles PUT /stories/{id}.
func (h *StoryHandler) UpdateStory(w http.ResponseWriter, r *http.Request) {
	id, noRetry, ok := h.mutationTarget(w, r)
	if !ok {
		return
	}

	var req UpdateStoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	taskID, err := h.dispatcher.UpdateStory(r.Context(), id, req.patch(), noRetry)
	h.respondSubmitted(w, r, taskID, err, "Story update task submitted successfully", estimateUpdate)
}

// DeleteStory handles DELETE /stories/{id}.
func (h *StoryHandler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	id, noRetry, ok := h.mutationTarget(w, r)
	if !ok {
		return
	}

	taskID, err := h.dispatcher.DeleteStory(r.Context(), id, noRetry)
	h.respondSubmitted(w, r, taskID, err, "Story deletion task submitted successfully", estimateDelete)
}

// PublishStory handles PATCH /stories/{id}/publish.
func (h *StoryHandler) PublishStory(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, true)
}

// UnpublishStory handles PATCH /stories/{id}/unpublish.
func (h *StoryHandler) UnpublishStory(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, false)
}

func (h *StoryHandler) setPublished(w http.ResponseWriter, r *http.Request, published bool) {
	id, err := getPathID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	message := "Story unpublish task submitted successfully"
	if published {
		message = "Story publish task submitted successfully"
	}

	taskID, err := h.dispatcher.PatchStory(r.Context(), id, domain.PublishPatch(published))
	h.respondSubmitted(w, r, taskID, err, message, estimatePublish)
}

// mutationTarget reads the story ID and the no_retry query flag, which lets
// callers that expect a missing story fail fast instead of retrying.
func (h *StoryHandler) mutationTarget(w http.ResponseWriter, r *http.Request) (int64, bool, bool) {
	id, err := getPathID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return 0, false, false
	}
	noRetry, err := queryBool(r, "no_retry")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return 0, false, false
	}
	return id, noRetry, true
}

func (h *StoryHandler) respondSubmitted(w http.ResponseWriter, r *http.Request, taskID string, err error, message string, estimate int) {
	respondSubmitted(w, r, logger.FromContextOrDefault(r.Context(), h.logger), taskID, err, message, estimate)
}

// respondSubmitted writes the task handle for a dispatched task, or the
// dispatch failure.
func respondSubmitted(w http.ResponseWriter, r *http.Request, log *slog.Logger, taskID string, err error, message string, estimate int) {
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}

	log.Debug("task submitted", slog.String("task_id", taskID), slog.String("path", r.URL.Path))
	shared.RespondWithJSON(w, r, http.StatusOK, TaskSubmitResponse{
		TaskID:        taskID,
		Status:        task.StatePending,
		Message:       message,
		EstimatedTime: estimate,
	})
}
