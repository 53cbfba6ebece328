package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/story-api/internal/task"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_TaskLifecycle(t *testing.T) {
	t.Parallel()
	c := NewCollector()

	c.TaskDispatched(task.KindCreateStory, nil)
	c.TaskDispatched(task.KindCreateStory, nil)
	c.TaskDispatched(task.KindCreateStory, errors.New("broker down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.tasksDispatched.WithLabelValues("stories.create_story", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksDispatched.WithLabelValues("stories.create_story", "error")))

	c.TaskStarted(task.KindGenerateStory)
	c.TaskStarted(task.KindGenerateStory)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.tasksInFlight))

	c.TaskRetried(task.KindGenerateStory, task.ClassTransient)
	c.TaskFinished(task.KindGenerateStory, task.StateSuccess, 3*time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.tasksInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksRetried.WithLabelValues("llm.generate_story", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksFinished.WithLabelValues("llm.generate_story", "SUCCESS")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.taskDuration))

	// Revoked before start: counted, no duration, gauge untouched.
	c.TaskFinished(task.KindDeleteStory, task.StateRevoked, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.tasksInFlight))
}

func TestCollector_LLMRequest(t *testing.T) {
	t.Parallel()
	c := NewCollector()

	c.LLMRequest("gemini-2.0-flash", 120, nil)
	c.LLMRequest("gemini-2.0-flash", 0, errors.New("quota"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequests.WithLabelValues("gemini-2.0-flash", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequests.WithLabelValues("gemini-2.0-flash", "error")))
	assert.Equal(t, 120.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("gemini-2.0-flash")))
}

func TestCollector_MiddlewareAndHandler(t *testing.T) {
	t.Parallel()
	c := NewCollector()

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/stories/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", c.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stories/7", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/stories/{id}", "404")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "story_http_requests_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestNewCollector_IndependentRegistries(t *testing.T) {
	t.Parallel()
	a, b := NewCollector(), NewCollector()
	a.TaskStarted(task.KindPatchStory)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.tasksInFlight))
}
