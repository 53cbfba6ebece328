package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/story-api/internal/api/shared"
	"github.com/phrazzld/story-api/internal/store"
)

// getPathID parses a positive integer path parameter.
func getPathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errInvalidPath, name)
	}
	return id, nil
}

// getPathTaskID returns the task ID path parameter.
func getPathTaskID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "taskID")
	if id == "" {
		return "", fmt.Errorf("%w: task_id is required", errInvalidPath)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errInvalidPath, name)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", errInvalidPath, name)
	}
	return v, nil
}

// queryTimeout parses a timeout given in seconds, which may be fractional.
// It reports false when the parameter is absent.
func queryTimeout(r *http.Request, name string) (time.Duration, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return 0, false, fmt.Errorf("%w: %s must be a non-negative number of seconds", errInvalidPath, name)
	}
	return time.Duration(secs * float64(time.Second)), true, nil
}

// parseStoryFilter reads the list filters of GET /stories/.
func parseStoryFilter(r *http.Request) (store.StoryFilter, error) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		return store.StoryFilter{}, err
	}
	if skip < 0 {
		return store.StoryFilter{}, fmt.Errorf("%w: skip must be >= 0", errInvalidPath)
	}

	limit, err := queryInt(r, "limit", store.DefaultListLimit)
	if err != nil {
		return store.StoryFilter{}, err
	}
	if limit < 1 || limit > store.MaxListLimit {
		return store.StoryFilter{}, fmt.Errorf("%w: limit must be between 1 and %d", errInvalidPath, store.MaxListLimit)
	}

	published, err := queryBool(r, "published_only")
	if err != nil {
		return store.StoryFilter{}, err
	}

	q := r.URL.Query()
	return store.StoryFilter{
		Skip:          skip,
		Limit:         limit,
		Genre:         q.Get("genre"),
		Author:        q.Get("author"),
		PublishedOnly: published,
	}, nil
}

// decodeAndValidate decodes the body into req and validates it. It writes
// the error response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := shared.DecodeJSON(w, r, req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, err, "")
		return false
	}
	return true
}
