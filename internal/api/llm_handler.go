package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/story-api/internal/api/shared"
	"github.com/phrazzld/story-api/internal/llm"
	"github.com/phrazzld/story-api/internal/platform/logger"
	"github.com/phrazzld/story-api/internal/task"
)

// LLMDispatcher queues model operations.
type LLMDispatcher interface {
	GenerateStory(ctx context.Context, p task.GenerateStoryParams) (string, error)
	AnalyzeStory(ctx context.Context, p task.AnalyzeStoryParams) (string, error)
	SummarizeStory(ctx context.Context, p task.SummarizeStoryParams) (string, error)
	ImproveStory(ctx context.Context, p task.ImproveStoryParams) (string, error)
}

// ModelCatalog lists the configured models.
type ModelCatalog interface {
	Available() map[string]bool
}

// FleetInspector gathers statistics from running workers.
type FleetInspector interface {
	WorkerStats(ctx context.Context) (*task.FleetStats, error)
}

// LLMHandler serves /llm.
type LLMHandler struct {
	dispatcher LLMDispatcher
	catalog    ModelCatalog
	fleet      FleetInspector
	logger     *slog.Logger
}

// NewLLMHandler creates an LLMHandler.
func NewLLMHandler(dispatcher LLMDispatcher, catalog ModelCatalog, fleet FleetInspector, logger *slog.Logger) *LLMHandler {
	if dispatcher == nil || catalog == nil || fleet == nil || logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("dispatcher, catalog, fleet and logger are required for LLMHandler")
	}
	return &LLMHandler{
		dispatcher: dispatcher,
		catalog:    catalog,
		fleet:      fleet,
		logger:     logger.With(slog.String("component", "llm_handler")),
	}
}

// Routes returns the /llm routes.
func (h *LLMHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/generate", h.Generate)
	r.Post("/analyze", h.Analyze)
	r.Post("/summarize", h.Summarize)
	r.Post("/improve", h.Improve)
	r.Get("/models", h.Models)
	r.Get("/stats", h.Stats)
	r.Get("/health", h.Health)
	return r
}

// Generate handles POST /llm/generate.
func (h *LLMHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	p := req.params()
	taskID, err := h.dispatcher.GenerateStory(r.Context(), p)
	h.respondSubmitted(w, r, taskID, err, "Story generation task submitted successfully", generateEstimate(p.Length))
}

// Analyze handles POST /llm/analyze.
func (h *LLMHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	taskID, err := h.dispatcher.AnalyzeStory(r.Context(), req.params())
	h.respondSubmitted(w, r, taskID, err, "Story analysis task submitted successfully", estimateAnalyze)
}

// Summarize handles POST /llm/summarize.
func (h *LLMHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	taskID, err := h.dispatcher.SummarizeStory(r.Context(), req.params())
	h.respondSubmitted(w, r, taskID, err, "Story summarization task submitted successfully", estimateSummarize)
}

// Improve handles POST /llm/improve.
func (h *LLMHandler) Improve(w http.ResponseWriter, r *http.Request) {
	var req ImproveRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	taskID, err := h.dispatcher.ImproveStory(r.Context(), req.params())
	h.respondSubmitted(w, r, taskID, err, "Story improvement task submitted successfully", estimateImprove)
}

// Models handles GET /llm/models.
func (h *LLMHandler) Models(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"models": h.catalog.Available(),
	})
}

// UsageResponse is the body of GET /llm/stats.
type UsageResponse struct {
	Stats   llm.UsageStats            `json:"stats"`
	Workers map[string]llm.UsageStats `json:"workers"`
}

// Stats handles GET /llm/stats. Model calls happen in workers, so usage is
// summed over the workers that answer inspect.
func (h *LLMHandler) Stats(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	fleet, err := h.fleet.WorkerStats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get LLM statistics")
		return
	}

	resp := UsageResponse{Workers: make(map[string]llm.UsageStats, len(fleet.Stats))}
	for worker, stats := range fleet.Stats {
		usage, ok := usageFrom(stats)
		if !ok {
			log.Debug("worker reported no llm usage", slog.String("worker", worker))
			continue
		}
		resp.Workers[worker] = usage
		resp.Stats.Add(usage)
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// usageFrom extracts usage from worker stats. Replies that crossed the
// broker carry it as decoded JSON, so it is re-encoded into UsageStats.
func usageFrom(stats task.WorkerStats) (llm.UsageStats, bool) {
	raw, ok := stats.Extra[llm.UsageStatsKey]
	if !ok {
		return llm.UsageStats{}, false
	}
	if usage, ok := raw.(llm.UsageStats); ok {
		return usage, true
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return llm.UsageStats{}, false
	}
	var usage llm.UsageStats
	if err := json.Unmarshal(b, &usage); err != nil {
		return llm.UsageStats{}, false
	}
	return usage, true
}

// Health handles GET /llm/health.
func (h *LLMHandler) Health(w http.ResponseWriter, r *http.Request) {
	models := h.catalog.Available()

	available := 0
	for _, ok := range models {
		if ok {
			available++
		}
	}

	status := "healthy"
	if available == 0 {
		status = "degraded"
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"status":           status,
		"available_models": available,
		"total_models":     len(models),
		"models":           models,
	})
}

func (h *LLMHandler) respondSubmitted(w http.ResponseWriter, r *http.Request, taskID string, err error, message string, estimate int) {
	respondSubmitted(w, r, logger.FromContextOrDefault(r.Context(), h.logger), taskID, err, message, estimate)
}
