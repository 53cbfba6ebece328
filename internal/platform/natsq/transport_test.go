package natsq

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/story-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fleet runs a dispatcher, an observatory and one worker over a single
// embedded server.
type fleet struct {
	dispatcher  *task.Dispatcher
	observatory *task.Observatory
	results     *Results
}

func startFleet(t *testing.T, policy task.RetryPolicy, register func(*task.Registry)) *fleet {
	t.Helper()
	ctx := context.Background()
	log := testLogger()

	url := startServer(t)
	nc := connect(t, url)
	js := newJetStream(t, nc)

	broker, err := NewBroker(ctx, js, testBrokerConfig(), log)
	require.NoError(t, err)
	results, err := NewResults(ctx, js, "story_results", time.Hour)
	require.NoError(t, err)
	src, err := broker.Source(ctx, task.Queues())
	require.NoError(t, err)

	registry := task.NewRegistry()
	register(registry)

	worker := task.NewWorker(task.WorkerConfig{Hostname: "worker@nats", Concurrency: 1, Policy: policy},
		src, registry, results, nil, log)
	control := NewControl(nc, "story", 200*time.Millisecond, log)

	runCtx, cancel := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	serveDone := make(chan error, 1)
	go func() { runDone <- worker.Run(runCtx) }()
	go func() { serveDone <- control.Serve(runCtx, worker.HandleControl) }()
	t.Cleanup(func() {
		cancel()
		for _, done := range []chan error{runDone, serveDone} {
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Error("worker did not stop")
			}
		}
	})

	return &fleet{
		dispatcher:  task.NewDispatcher(broker, nil, log),
		observatory: task.NewObservatory(results, control, 10*time.Millisecond, log),
		results:     results,
	}
}

func natsPolicy() task.RetryPolicy {
	return task.RetryPolicy{Delay: 20 * time.Millisecond, StoryMaxRetries: 2, LLMMaxRetries: 1, RetryTerminal: true}
}

func TestTransport_TaskSucceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := startFleet(t, natsPolicy(), func(reg *task.Registry) {
		require.NoError(t, task.Register(reg, func(_ context.Context, p task.CreateStoryParams) (any, error) {
			return map[string]any{"id": 1, "title": p.Title}, nil
		}))
	})

	id, err := f.dispatcher.CreateStory(ctx, task.CreateStoryParams{Title: "Tides", Content: "c", Author: "a"})
	require.NoError(t, err)

	got, err := f.observatory.Result(ctx, id, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"title":"Tides"}`, string(got))

	st, err := f.observatory.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StateSuccess, st.Status)
}

func TestTransport_RetriesExhaustIntoFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var calls atomic.Int32
	f := startFleet(t, natsPolicy(), func(reg *task.Registry) {
		require.NoError(t, task.Register(reg, func(context.Context, task.DeleteStoryParams) (any, error) {
			calls.Add(1)
			return nil, task.Transient(errors.New("database is locked"))
		}))
	})

	id, err := f.dispatcher.DeleteStory(ctx, 3, false)
	require.NoError(t, err)

	_, err = f.observatory.Result(ctx, id, 5*time.Second)
	var remote *task.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, task.ClassTransient, remote.Class)
	assert.Equal(t, "database is locked", remote.Message)
	assert.Equal(t, int32(3), calls.Load(), "one run plus two retries")

	rec, err := f.results.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StateFailure, rec.State)
	assert.Equal(t, 2, rec.Retries)

	st, err := f.observatory.Status(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, st.Traceback)
	assert.Contains(t, *st.Traceback, "database is locked")
}

func TestTransport_NoRetryFailsOnFirstAttempt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var calls atomic.Int32
	f := startFleet(t, natsPolicy(), func(reg *task.Registry) {
		require.NoError(t, task.Register(reg, func(context.Context, task.DeleteStoryParams) (any, error) {
			calls.Add(1)
			return nil, task.Transient(errors.New("database is locked"))
		}))
	})

	id, err := f.dispatcher.DeleteStory(ctx, 3, true)
	require.NoError(t, err)

	_, err = f.observatory.Result(ctx, id, 5*time.Second)
	var remote *task.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransport_WorkerAnswersHealthChecks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := startFleet(t, natsPolicy(), func(*task.Registry) {})

	require.Eventually(t, func() bool {
		stats, err := f.observatory.WorkerStats(ctx)
		return err == nil && stats.Ping["worker@nats"].OK == "pong"
	}, 5*time.Second, 20*time.Millisecond)

	active, err := f.observatory.ListActive(ctx)
	require.NoError(t, err)
	raw, err := json.Marshal(active)
	require.NoError(t, err)
	assert.JSONEq(t, `{"active":{"worker@nats":[]},"scheduled":{"worker@nats":[]},"reserved":{"worker@nats":[]}}`, string(raw))
}
