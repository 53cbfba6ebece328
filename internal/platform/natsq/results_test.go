package natsq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/phrazzld/story-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResults(t *testing.T, ttl time.Duration) *Results {
	t.Helper()
	js := newJetStream(t, connect(t, startServer(t)))
	r, err := NewResults(context.Background(), js, "story_results", ttl)
	require.NoError(t, err)
	return r
}

func TestResults_PutGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newTestResults(t, time.Hour)

	_, err := r.Get(ctx, "8d7c2f4e-0000-4000-8000-000000000001")
	require.ErrorIs(t, err, task.ErrRecordNotFound)

	rec := &task.Record{
		TaskID: "8d7c2f4e-0000-4000-8000-000000000001",
		Kind:   task.KindCreateStory,
		State:  task.StateSuccess,
		Result: json.RawMessage(`{"id":1}`),
	}
	require.NoError(t, r.Put(ctx, rec))

	got, err := r.Get(ctx, rec.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StateSuccess, got.State)
	assert.JSONEq(t, `{"id":1}`, string(got.Result))

	rec.State = task.StateFailure
	rec.Result = nil
	require.NoError(t, r.Put(ctx, rec))
	got, err = r.Get(ctx, rec.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StateFailure, got.State)
}

func TestResults_Revocation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newTestResults(t, time.Hour)
	id := "8d7c2f4e-0000-4000-8000-000000000002"

	revoked, err := r.Revoked(ctx, id)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, id))
	revoked, err = r.Revoked(ctx, id)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = r.Get(ctx, id)
	assert.ErrorIs(t, err, task.ErrRecordNotFound, "a revocation marker is not a record")
}

func TestResults_IDsThatAreNotKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newTestResults(t, time.Hour)
	observatory := task.NewObservatory(r, task.NewMemoryControlPlane(10*time.Millisecond), 5*time.Millisecond, testLogger())

	for _, id := range []string{"abc:def", "trailing.", "not%20a%20uuid", "with space", "does-not-exist"} {
		t.Run(id, func(t *testing.T) {
			_, err := r.Get(ctx, id)
			assert.ErrorIs(t, err, task.ErrRecordNotFound)

			revoked, err := r.Revoked(ctx, id)
			require.NoError(t, err)
			assert.False(t, revoked)

			st, err := observatory.Status(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, task.StatePending, st.Status)
			assert.Equal(t, id, st.TaskID)

			ok, err := observatory.Cancel(ctx, id)
			require.NoError(t, err)
			assert.True(t, ok)

			_, err = observatory.Result(ctx, id, 20*time.Millisecond)
			assert.ErrorIs(t, err, task.ErrTimeout)
		})
	}
}

func TestResults_RecordsExpire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newTestResults(t, 500*time.Millisecond)
	id := "8d7c2f4e-0000-4000-8000-000000000003"

	require.NoError(t, r.Put(ctx, &task.Record{TaskID: id, State: task.StateSuccess}))
	_, err := r.Get(ctx, id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := r.Get(ctx, id)
		return errors.Is(err, task.ErrRecordNotFound)
	}, 10*time.Second, 100*time.Millisecond)
}
