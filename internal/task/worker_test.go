package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/story-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitResult(t *testing.T, h *harness, id string) (json.RawMessage, error) {
	t.Helper()
	return h.observe.Result(context.Background(), id, 3*time.Second)
}

func TestWorker_Success(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fastPolicy())
	require.NoError(t, Register(h.registry, func(_ context.Context, p CreateStoryParams) (any, error) {
		return map[string]any{"id": 1, "title": p.Title}, nil
	}))
	h.start(t)

	id, err := h.dispatcher.CreateStory(context.Background(), CreateStoryParams{Title: "Hello", Content: "c", Author: "a"})
	require.NoError(t, err)

	got, err := waitResult(t, h, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"title":"Hello"}`, string(got))

	st, err := h.observe.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, st.Status)
	assert.True(t, *st.Successful)
	assert.Equal(t, 1, h.recorder.Finished(StateSuccess))
}

func TestWorker_TransientRetriedThenSucceeds(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fastPolicy())
	var calls atomic.Int32
	require.NoError(t, Register(h.registry, func(context.Context, DeleteStoryParams) (any, error) {
		if calls.Add(1) < 3 {
			return nil, Transient(errors.New("database is locked"))
		}
		return "deleted", nil
	}))
	h.start(t)

	id, err := h.dispatcher.DeleteStory(context.Background(), 1, false)
	require.NoError(t, err)

	got, err := waitResult(t, h, id)
	require.NoError(t, err)
	assert.JSONEq(t, `"deleted"`, string(got))
	assert.Equal(t, int32(3), calls.Load())

	rec, err := h.results.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Retries)
}

func TestWorker_RetriesExhausted(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fastPolicy())
	var calls atomic.Int32
	require.NoError(t, Register(h.registry, func(context.Context, GenerateStoryParams) (any, error) {
		calls.Add(1)
		return nil, errors.New("model overloaded")
	}))
	h.start(t)

	id, err := h.dispatcher.GenerateStory(context.Background(), GenerateStoryParams{Prompt: "dragons"})
	require.NoError(t, err)

	_, err = waitResult(t, h, id)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, ClassTransient, remote.Class)
	assert.Equal(t, "model overloaded", remote.Message)
	// One run plus LLMMaxRetries retries.
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorker_ValidationNeverRetried(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fastPolicy())
	var calls atomic.Int32
	require.NoError(t, Register(h.registry, func(context.Context, AnalyzeStoryParams) (any, error) {
		calls.Add(1)
		return nil, Invalid(errors.New("invalid analysis_type"))
	}))
	h.start(t)

	id, err := h.dispatcher.AnalyzeStory(context.Background(), AnalyzeStoryParams{AnalysisType: "mood"})
	require.NoError(t, err)

	_, err = waitResult(t, h, id)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, ClassValidation, remote.Class)
	assert.Equal(t, "ValidationError", remote.Type)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWorker_NoRetryFailsImmediately(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fastPolicy())
	var calls atomic.Int32
	require.NoError(t, Register(h.registry, func(context.Context, UpdateStoryParams) (any, error) {
		calls.Add(1)
		return nil, Terminal(errors.New("Story with id 99 not found"))
	}))
	h.start(t)

	id, err := h.dispatcher.UpdateStory(context.Background(), 99, domain.PublishPatch(true), true)
	require.NoError(t, err)

	_, err = waitResult(t, h, id)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, ClassTerminal, remote.Class)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWorker_FailureRecordsErrorChain(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fastPolicy())
	notFound := errors.New("story not found")
	require.NoError(t, Register(h.registry, func(context.Context, DeleteStoryParams) (any, error) {
		return nil, Terminal(fmt.Errorf("lookup of story 7 failed: %w", notFound))
	}))
	h.start(t)

	id, err := h.dispatcher.DeleteStory(context.Background(), 7, true)
	require.NoError(t, err)

	_, err = waitResult(t, h, id)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)

	st, err := h.observe.Status(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, st.Traceback)
	assert.Equal(t,
		"*task.Error: lookup of story 7 failed: story not found\n"+
			"  *fmt.wrapError: lookup of story 7 failed: story not found\n"+
			"    *errors.errorString: story not found",
		*st.Traceback)
}

func TestErrorTrace(t *testing.T) {
	t.Parallel()

	joined := errors.Join(errors.New("first"), Transient(errors.New("second")))
	assert.Equal(t,
		"*errors.joinError: first\nsecond\n"+
			"  *errors.errorString: first\n"+
			"  *task.Error: second\n"+
			"    *errors.errorString: second",
		errorTrace(joined))

	assert.Equal(t,
		"*errors.errorString: connect [REDACTED_CREDENTIAL]db/stories",
		errorTrace(errors.New("connect postgres://admin:hunter2@db/stories")))

	assert.Empty(t, errorTrace(nil))
}

func TestWorker_PanicIsRecovered(t *testing.T) {
	t.Parallel()
	policy := fastPolicy()
	policy.StoryMaxRetries = 0
	h := newHarness(t, policy)
	require.NoError(t, Register(h.registry, func(context.Context, PatchStoryParams) (any, error) {
		panic("nil map write")
	}))
	h.start(t)

	id, err := h.dispatcher.PatchStory(context.Background(), 1, domain.PublishPatch(true))
	require.NoError(t, err)

	_, err = waitResult(t, h, id)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "nil map write")

	st, err := h.observe.Status(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, st.Traceback)
	assert.NotEmpty(t, *st.Traceback)
}

func TestWorker_UnregisteredKindFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fastPolicy())
	h.start(t)

	id, err := h.dispatcher.SummarizeStory(context.Background(), SummarizeStoryParams{})
	require.NoError(t, err)

	_, err = waitResult(t, h, id)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, ClassValidation, remote.Class)
}

func TestWorker_RevokedBeforeStart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, fastPolicy())
	executed := atomic.Bool{}
	require.NoError(t, Register(h.registry, func(context.Context, DeleteStoryParams) (any, error) {
		executed.Store(true)
		return nil, nil
	}))

	id, err := h.dispatcher.DeleteStory(ctx, 1, false)
	require.NoError(t, err)
	ok, err := h.observe.Cancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	h.start(t)
	_, err = waitResult(t, h, id)
	assert.ErrorIs(t, err, ErrRevoked)
	assert.False(t, executed.Load())
}

func TestWorker_RevokeRunningTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, fastPolicy())
	started := make(chan struct{})
	require.NoError(t, Register(h.registry, func(ctx context.Context, _ ImproveStoryParams) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	h.start(t)

	id, err := h.dispatcher.ImproveStory(ctx, ImproveStoryParams{Content: "c"})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not start")
	}

	active, err := h.observe.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active.Active["worker@test"], 1)
	assert.Equal(t, id, active.Active["worker@test"][0].ID)

	ok, err := h.observe.Cancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = waitResult(t, h, id)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestWorker_ScheduledRetryVisible(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	policy := fastPolicy()
	policy.Delay = time.Hour
	h := newHarness(t, policy)
	require.NoError(t, Register(h.registry, func(context.Context, CreateStoryParams) (any, error) {
		return nil, errors.New("db down")
	}))
	h.start(t)

	id, err := h.dispatcher.CreateStory(ctx, CreateStoryParams{Title: "t"})
	require.NoError(t, err)

	var scheduled []TaskInfo
	require.Eventually(t, func() bool {
		active, err := h.observe.ListActive(ctx)
		if err != nil {
			return false
		}
		scheduled = active.Scheduled["worker@test"]
		return len(scheduled) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, id, scheduled[0].ID)
	assert.NotNil(t, scheduled[0].ETA)

	st, err := h.observe.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateRetry, st.Status)
	assert.Nil(t, st.Successful)

	stats, err := h.observe.WorkerStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Stats["worker@test"].Retried)
}

func TestWorker_HandleControl(t *testing.T) {
	t.Parallel()
	w := NewWorker(WorkerConfig{
		Hostname:   "w1",
		ExtraStats: func() map[string]any { return map[string]any{"llm": "ok"} },
	}, NewMemoryBroker(1, testLogger()), NewRegistry(), NewMemoryResults(time.Hour, nil), nil, testLogger())

	reply, err := w.HandleControl(context.Background(), Command{Name: CommandPing})
	require.NoError(t, err)
	assert.Equal(t, "w1", reply.Worker)
	assert.JSONEq(t, `{"ok":"pong"}`, string(reply.Body))

	reply, err = w.HandleControl(context.Background(), Command{Name: CommandInspect})
	require.NoError(t, err)
	var inspect InspectReply
	require.NoError(t, json.Unmarshal(reply.Body, &inspect))
	assert.Equal(t, 1, inspect.Stats.Concurrency)
	assert.Equal(t, "ok", inspect.Stats.Extra["llm"])

	reply, err = w.HandleControl(context.Background(), Command{Name: CommandRevoke, TaskID: "missing"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"task_id":"missing","terminated":false}`, string(reply.Body))

	_, err = w.HandleControl(context.Background(), Command{Name: "shutdown"})
	assert.Error(t, err)
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	fn := func(context.Context, CreateStoryParams) (any, error) { return nil, nil }

	require.NoError(t, Register(reg, fn))
	assert.ErrorIs(t, Register(reg, fn), ErrDuplicateHandler)
	assert.Equal(t, []Kind{KindCreateStory}, reg.Kinds())
}
