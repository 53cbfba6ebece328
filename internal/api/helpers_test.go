package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/story-api/internal/domain"
	"github.com/phrazzld/story-api/internal/service"
	"github.com/phrazzld/story-api/internal/store"
	"github.com/phrazzld/story-api/internal/task"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// mockDispatcher records every submitted Params. SubmitFn overrides the
// returned task ID and error.
type mockDispatcher struct {
	mu        sync.Mutex
	submitted []task.Params
	noRetry   []bool
	SubmitFn  func(p task.Params) (string, error)
}

func (m *mockDispatcher) submit(p task.Params, noRetry bool) (string, error) {
	m.mu.Lock()
	m.submitted = append(m.submitted, p)
	m.noRetry = append(m.noRetry, noRetry)
	m.mu.Unlock()

	if m.SubmitFn != nil {
		return m.SubmitFn(p)
	}
	return "task-1", nil
}

func (m *mockDispatcher) last() task.Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.submitted) == 0 {
		return nil
	}
	return m.submitted[len(m.submitted)-1]
}

func (m *mockDispatcher) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted)
}

func (m *mockDispatcher) CreateStory(_ context.Context, p task.CreateStoryParams) (string, error) {
	return m.submit(p, false)
}

func (m *mockDispatcher) UpdateStory(_ context.Context, id int64, patch domain.StoryPatch, noRetry bool) (string, error) {
	return m.submit(task.UpdateStoryParams{StoryID: id, Patch: patch, NoRetry: noRetry}, noRetry)
}

func (m *mockDispatcher) DeleteStory(_ context.Context, id int64, noRetry bool) (string, error) {
	return m.submit(task.DeleteStoryParams{StoryID: id, NoRetry: noRetry}, noRetry)
}

func (m *mockDispatcher) PatchStory(_ context.Context, id int64, patch domain.StoryPatch) (string, error) {
	return m.submit(task.PatchStoryParams{StoryID: id, Patch: patch}, false)
}

func (m *mockDispatcher) GenerateStory(_ context.Context, p task.GenerateStoryParams) (string, error) {
	return m.submit(p, false)
}

func (m *mockDispatcher) AnalyzeStory(_ context.Context, p task.AnalyzeStoryParams) (string, error) {
	return m.submit(p, false)
}

func (m *mockDispatcher) SummarizeStory(_ context.Context, p task.SummarizeStoryParams) (string, error) {
	return m.submit(p, false)
}

func (m *mockDispatcher) ImproveStory(_ context.Context, p task.ImproveStoryParams) (string, error) {
	return m.submit(p, false)
}

type mockReader struct {
	GetFn  func(ctx context.Context, id int64) (*service.StorySnapshot, error)
	ListFn func(ctx context.Context, filter store.StoryFilter) ([]*service.StorySnapshot, error)
}

func (m *mockReader) Get(ctx context.Context, id int64) (*service.StorySnapshot, error) {
	return m.GetFn(ctx, id)
}

func (m *mockReader) List(ctx context.Context, filter store.StoryFilter) ([]*service.StorySnapshot, error) {
	return m.ListFn(ctx, filter)
}

type mockObserver struct {
	StatusFn      func(ctx context.Context, taskID string) (*task.Status, error)
	ResultFn      func(ctx context.Context, taskID string, timeout time.Duration) (json.RawMessage, error)
	CancelFn      func(ctx context.Context, taskID string) (bool, error)
	ListActiveFn  func(ctx context.Context) (*task.ActiveTasks, error)
	WorkerStatsFn func(ctx context.Context) (*task.FleetStats, error)
}

func (m *mockObserver) Status(ctx context.Context, taskID string) (*task.Status, error) {
	return m.StatusFn(ctx, taskID)
}

func (m *mockObserver) Result(ctx context.Context, taskID string, timeout time.Duration) (json.RawMessage, error) {
	return m.ResultFn(ctx, taskID, timeout)
}

func (m *mockObserver) Cancel(ctx context.Context, taskID string) (bool, error) {
	return m.CancelFn(ctx, taskID)
}

func (m *mockObserver) ListActive(ctx context.Context) (*task.ActiveTasks, error) {
	return m.ListActiveFn(ctx)
}

func (m *mockObserver) WorkerStats(ctx context.Context) (*task.FleetStats, error) {
	return m.WorkerStatsFn(ctx)
}

type mockCatalog struct {
	available map[string]bool
}

func (m *mockCatalog) Available() map[string]bool { return m.available }

// do serves one request through a handler Routes tree so URL params
// resolve.
func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
