package llm

import "context"

// Request is a single text completion request.
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completion is the model's answer to a Request.
type Completion struct {
	Text        string
	Model       string
	TotalTokens int
}

// Completer sends prompts to a language model. Implementations return errors
// wrapping ErrTransientFailure, ErrContentBlocked, ErrInvalidResponse or
// ErrInvalidConfig so callers can decide whether to retry.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// ClientFactory opens a model client. The service calls it once per
// operation so that no client state is shared between tasks.
type ClientFactory func(ctx context.Context) (Completer, error)
