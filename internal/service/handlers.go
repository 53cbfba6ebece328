package service

import (
	"context"
	"errors"

	"github.com/phrazzld/story-api/internal/domain"
	"github.com/phrazzld/story-api/internal/llm"
	"github.com/phrazzld/story-api/internal/store"
	"github.com/phrazzld/story-api/internal/task"
)

// LLMOperations is the part of llm.Service the task handlers use.
type LLMOperations interface {
	Generate(ctx context.Context, p task.GenerateStoryParams) (*llm.GenerateResult, error)
	Analyze(ctx context.Context, p task.AnalyzeStoryParams) (*llm.AnalyzeResult, error)
	Summarize(ctx context.Context, p task.SummarizeStoryParams) (*llm.SummarizeResult, error)
	Improve(ctx context.Context, p task.ImproveStoryParams) (*llm.ImproveResult, error)
}

// RegisterHandlers binds every task kind to its implementation. Either
// dependency may be nil, in which case its kinds stay unregistered and are
// failed by the worker.
func RegisterHandlers(reg *task.Registry, stories *StoryService, ops LLMOperations) error {
	var errs []error
	if stories != nil {
		errs = append(errs,
			task.Register(reg, wrap(stories.Create)),
			task.Register(reg, wrap(stories.Update)),
			task.Register(reg, wrap(stories.Delete)),
			task.Register(reg, wrap(stories.Patch)),
		)
	}
	if ops != nil {
		errs = append(errs,
			task.Register(reg, wrap(ops.Generate)),
			task.Register(reg, wrap(ops.Analyze)),
			task.Register(reg, wrap(ops.Summarize)),
			task.Register(reg, wrap(ops.Improve)),
		)
	}
	return errors.Join(errs...)
}

// wrap adapts a typed operation to a task handler and classifies its error.
func wrap[P task.Params, R any](fn func(context.Context, P) (*R, error)) func(context.Context, P) (any, error) {
	return func(ctx context.Context, p P) (any, error) {
		result, err := fn(ctx, p)
		if err != nil {
			return nil, Classify(err)
		}
		return result, nil
	}
}

// Classify assigns a retry class to an operation error. Bad input is a
// validation error. Missing stories, blocked content and provider
// rejections are terminal. Everything else is transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var classified *task.Error
	if errors.As(err, &classified) {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, llm.ErrInvalidParameter):
		return task.Invalid(err)
	case errors.Is(err, store.ErrStoryNotFound),
		errors.Is(err, llm.ErrContentBlocked),
		errors.Is(err, llm.ErrInvalidResponse),
		errors.Is(err, llm.ErrInvalidConfig),
		errors.Is(err, llm.ErrRequestRejected):
		return task.Terminal(err)
	default:
		return task.Transient(err)
	}
}
