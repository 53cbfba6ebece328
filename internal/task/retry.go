package task

import "time"

// RetryPolicy decides whether a failed attempt is scheduled again.
type RetryPolicy struct {
	// Delay before a retried task is delivered again.
	Delay time.Duration
	// StoryMaxRetries bounds retries for the stories queue and the default queue.
	StoryMaxRetries int
	// LLMMaxRetries bounds retries for the llm queue.
	LLMMaxRetries int
	// RetryTerminal makes terminal-class errors retryable within the budget.
	RetryTerminal bool
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delay:           60 * time.Second,
		StoryMaxRetries: 3,
		LLMMaxRetries:   2,
		RetryTerminal:   true,
	}
}

// MaxRetries returns the retry budget for kind.
func (p RetryPolicy) MaxRetries(kind Kind) int {
	if kind.Queue() == QueueLLM {
		return p.LLMMaxRetries
	}
	return p.StoryMaxRetries
}

// Decision is the outcome of RetryPolicy.Decide.
type Decision struct {
	Retry  bool
	Delay  time.Duration
	Reason string
}

// Decide applies the policy to an attempt that failed with err. attempt counts
// earlier executions, so the first run is attempt 0.
func (p RetryPolicy) Decide(kind Kind, attempt int, noRetry bool, err error) Decision {
	class := ClassOf(err)

	switch {
	case class == ClassValidation:
		return Decision{Reason: "validation errors are not retried"}
	case noRetry:
		return Decision{Reason: "retries disabled for this task"}
	case class == ClassTerminal && !p.RetryTerminal:
		return Decision{Reason: "terminal errors are not retried"}
	case attempt >= p.MaxRetries(kind):
		return Decision{Reason: "retries exhausted"}
	}

	return Decision{Retry: true, Delay: p.Delay, Reason: string(class) + " error"}
}
