package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/story-api/internal/domain"
	"github.com/phrazzld/story-api/internal/store"
)

// ServiceError wraps unexpected failures of a service operation with context.
type ServiceError struct {
	// Operation is the operation that failed, e.g. "update_story".
	Operation string
	// Message is a human-readable description of the failure.
	Message string
	// Err is the underlying error.
	Err error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("story service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("story service %s failed: %s", e.Operation, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err with operation context. Not-found and
// validation errors are returned unchanged so callers can match them
// directly.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrStoryNotFound) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	return &ServiceError{Operation: operation, Message: message, Err: err}
}
