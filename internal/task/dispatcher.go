package task

import (
	"context"
	"log/slog"

	"github.com/phrazzld/story-api/internal/domain"
	"github.com/phrazzld/story-api/internal/platform/logger"
)

// Dispatcher submits tasks to the broker. It never runs domain logic.
type Dispatcher struct {
	broker   Broker
	recorder Recorder
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil recorder disables metrics.
func NewDispatcher(broker Broker, recorder Recorder, logger *slog.Logger) *Dispatcher {
	if broker == nil {
		panic("broker cannot be nil")
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		broker:   broker,
		recorder: recorder,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Submit publishes p and returns the new task's ID. Any failure is reported
// as a *DispatchError.
func (d *Dispatcher) Submit(ctx context.Context, p Params) (string, error) {
	log := logger.FromContextOrDefault(ctx, d.logger)

	env, err := NewEnvelope(p)
	if err != nil {
		var kind Kind
		if p != nil {
			kind = p.Kind()
		}
		d.recorder.TaskDispatched(kind, err)
		return "", &DispatchError{Kind: kind, Err: err}
	}

	if err := d.broker.Publish(ctx, env); err != nil {
		d.recorder.TaskDispatched(env.Kind, err)
		log.Error("failed to dispatch task",
			"task_id", env.ID,
			"task_kind", env.Kind,
			"error", err)
		return "", &DispatchError{Kind: env.Kind, Err: err}
	}

	d.recorder.TaskDispatched(env.Kind, nil)
	log.Info("task dispatched",
		"task_id", env.ID,
		"task_kind", env.Kind,
		"queue", env.Queue())
	return env.ID.String(), nil
}

// CreateStory submits a story creation task.
func (d *Dispatcher) CreateStory(ctx context.Context, p CreateStoryParams) (string, error) {
	return d.Submit(ctx, p)
}

// UpdateStory submits a task applying patch to a story. With noRetry the
// task fails on its first error.
func (d *Dispatcher) UpdateStory(ctx context.Context, storyID int64, patch domain.StoryPatch, noRetry bool) (string, error) {
	return d.Submit(ctx, UpdateStoryParams{StoryID: storyID, Patch: patch, NoRetry: noRetry})
}

// DeleteStory submits a story deletion task. With noRetry the task fails on
// its first error.
func (d *Dispatcher) DeleteStory(ctx context.Context, storyID int64, noRetry bool) (string, error) {
	return d.Submit(ctx, DeleteStoryParams{StoryID: storyID, NoRetry: noRetry})
}

// PatchStory submits a partial update such as a publish flag change.
func (d *Dispatcher) PatchStory(ctx context.Context, storyID int64, patch domain.StoryPatch) (string, error) {
	return d.Submit(ctx, PatchStoryParams{StoryID: storyID, Patch: patch})
}

// GenerateStory submits a story generation task.
func (d *Dispatcher) GenerateStory(ctx context.Context, p GenerateStoryParams) (string, error) {
	return d.Submit(ctx, p)
}

// AnalyzeStory submits a story analysis task.
func (d *Dispatcher) AnalyzeStory(ctx context.Context, p AnalyzeStoryParams) (string, error) {
	return d.Submit(ctx, p)
}

// SummarizeStory submits a summarization task.
func (d *Dispatcher) SummarizeStory(ctx context.Context, p SummarizeStoryParams) (string, error) {
	return d.Submit(ctx, p)
}

// ImproveStory submits a story improvement task.
func (d *Dispatcher) ImproveStory(ctx context.Context, p ImproveStoryParams) (string, error) {
	return d.Submit(ctx, p)
}
