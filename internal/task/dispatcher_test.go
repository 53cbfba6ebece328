package task

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/story-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_Submit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	broker := &mockBroker{}
	rec := newMockRecorder()
	d := NewDispatcher(broker, rec, testLogger())

	id, err := d.CreateStory(ctx, CreateStoryParams{Title: "T", Content: "C", Author: "A"})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	published := broker.Published()
	require.Len(t, published, 1)
	assert.Equal(t, id, published[0].ID.String())
	assert.Equal(t, KindCreateStory, published[0].Kind)
	assert.Equal(t, 1, rec.dispatched[KindCreateStory])
}

func TestDispatcher_Wrappers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	broker := &mockBroker{}
	d := NewDispatcher(broker, nil, testLogger())

	calls := []struct {
		kind   Kind
		submit func() (string, error)
	}{
		{KindUpdateStory, func() (string, error) { return d.UpdateStory(ctx, 1, domain.StoryPatch{}, true) }},
		{KindDeleteStory, func() (string, error) { return d.DeleteStory(ctx, 1, false) }},
		{KindPatchStory, func() (string, error) { return d.PatchStory(ctx, 1, domain.PublishPatch(true)) }},
		{KindGenerateStory, func() (string, error) { return d.GenerateStory(ctx, GenerateStoryParams{Prompt: "p"}) }},
		{KindAnalyzeStory, func() (string, error) { return d.AnalyzeStory(ctx, AnalyzeStoryParams{}) }},
		{KindSummarizeStory, func() (string, error) { return d.SummarizeStory(ctx, SummarizeStoryParams{}) }},
		{KindImproveStory, func() (string, error) { return d.ImproveStory(ctx, ImproveStoryParams{}) }},
	}

	for i, c := range calls {
		_, err := c.submit()
		require.NoError(t, err)
		assert.Equal(t, c.kind, broker.Published()[i].Kind)
	}
	assert.True(t, broker.Published()[0].NoRetry)
	assert.False(t, broker.Published()[1].NoRetry)
}

func TestDispatcher_BrokerFailure(t *testing.T) {
	t.Parallel()
	brokerErr := errors.New("connection refused")
	broker := &mockBroker{PublishFn: func(context.Context, *Envelope) error { return brokerErr }}
	rec := newMockRecorder()
	d := NewDispatcher(broker, rec, testLogger())

	id, err := d.DeleteStory(context.Background(), 5, false)
	assert.Empty(t, id)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, KindDeleteStory, dispatchErr.Kind)
	assert.ErrorIs(t, err, brokerErr)
	assert.Equal(t, 1, rec.failed[KindDeleteStory])
}

func TestDispatcher_NilParams(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(&mockBroker{}, nil, testLogger())

	_, err := d.Submit(context.Background(), nil)
	var dispatchErr *DispatchError
	assert.ErrorAs(t, err, &dispatchErr)
}

func TestDispatcher_NeverExecutes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, fastPolicy())
	executed := false
	require.NoError(t, Register(h.registry, func(context.Context, DeleteStoryParams) (any, error) {
		executed = true
		return nil, nil
	}))

	id, err := h.dispatcher.DeleteStory(ctx, 1, false)
	require.NoError(t, err)
	assert.False(t, executed)
	assert.Equal(t, 1, h.broker.Len())

	st, err := h.observe.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatePending, st.Status)
}
