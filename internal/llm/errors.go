package llm

import "errors"

var (
	// ErrInvalidParameter is returned when an operation parameter is outside
	// its allowed set. It is raised before any model call.
	ErrInvalidParameter = errors.New("invalid llm parameter")

	// ErrInvalidConfig is returned when a model client cannot be created from
	// the current configuration, for example without an API key.
	ErrInvalidConfig = errors.New("invalid llm configuration")

	// ErrInvalidResponse is returned when the model response is empty or
	// malformed.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the provider refuses the content.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrRequestRejected is returned when the provider rejects the request
	// itself, for example a bad model name or an invalid API key.
	ErrRequestRejected = errors.New("request rejected by language model provider")

	// ErrTransientFailure is returned for provider errors that may succeed
	// when retried: rate limits, server errors and timeouts.
	ErrTransientFailure = errors.New("transient language model failure")
)
