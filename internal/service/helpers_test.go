package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/story-api/internal/platform/migrations"
	"github.com/phrazzld/story-api/internal/platform/sqlite"
	"github.com/phrazzld/story-api/internal/task"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*StoryService, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := migrations.New(db, sqlite.DriverName, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up(ctx))

	svc, err := NewStoryService(db, sqlite.NewSQLiteStoryStore(db, testLogger()), testLogger())
	require.NoError(t, err)
	return svc, db
}

func strPtr(s string) *string { return &s }

func createStory(t *testing.T, svc *StoryService, title string) *StorySnapshot {
	t.Helper()
	snap, err := svc.Create(context.Background(), task.CreateStoryParams{
		Title:   title,
		Content: "It was a dark and stormy night.",
		Author:  "Ada",
		Genre:   strPtr("mystery"),
	})
	require.NoError(t, err)
	return snap
}

// pipeline runs a worker with the story handlers on in-memory infrastructure.
type pipeline struct {
	dispatcher *task.Dispatcher
	observe    *task.Observatory
	results    *task.MemoryResults
}

func newPipeline(t *testing.T, svc *StoryService, ops LLMOperations) *pipeline {
	t.Helper()
	log := testLogger()

	broker := task.NewMemoryBroker(32, log)
	results := task.NewMemoryResults(time.Hour, nil)
	control := task.NewMemoryControlPlane(200 * time.Millisecond)
	registry := task.NewRegistry()
	require.NoError(t, RegisterHandlers(registry, svc, ops))

	policy := task.RetryPolicy{Delay: 5 * time.Millisecond, StoryMaxRetries: 3, LLMMaxRetries: 2, RetryTerminal: true}
	worker := task.NewWorker(task.WorkerConfig{Hostname: "worker@test", Concurrency: 1, Policy: policy},
		broker, registry, results, task.NopRecorder{}, log)
	unregister := control.Register(worker.Hostname(), worker.HandleControl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		unregister()
		<-done
		broker.Close()
	})

	return &pipeline{
		dispatcher: task.NewDispatcher(broker, task.NopRecorder{}, log),
		observe:    task.NewObservatory(results, control, 5*time.Millisecond, log),
		results:    results,
	}
}
