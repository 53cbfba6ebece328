package task

import (
	"errors"
	"fmt"
)

// ErrorClass decides how the retry policy treats a handler error.
type ErrorClass string

// Error classes.
const (
	// ClassTransient errors are expected to succeed on a later attempt.
	ClassTransient ErrorClass = "transient"
	// ClassTerminal errors will fail the same way on every attempt.
	ClassTerminal ErrorClass = "terminal"
	// ClassValidation errors come from bad input and are never retried.
	ClassValidation ErrorClass = "validation"
)

// Common task errors.
var (
	ErrUnknownKind      = errors.New("unknown task kind")
	ErrNoHandler        = errors.New("no handler registered for task kind")
	ErrDuplicateHandler = errors.New("handler already registered for task kind")
	ErrRecordNotFound   = errors.New("task record not found")
	ErrTimeout          = errors.New("timed out waiting for task result")
	ErrRevoked          = errors.New("task was revoked")
	ErrQueueClosed      = errors.New("task queue is closed")
	ErrQueueFull        = errors.New("task queue is full")
	ErrNoDelivery       = errors.New("no task available")
)

// Error attaches an ErrorClass to an error returned by a handler.
type Error struct {
	Class ErrorClass
	Err   error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func classify(class ErrorClass, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Err: err}
}

// Transient marks err as worth retrying.
func Transient(err error) error { return classify(ClassTransient, err) }

// Terminal marks err as certain to recur.
func Terminal(err error) error { return classify(ClassTerminal, err) }

// Invalid marks err as caused by invalid input.
func Invalid(err error) error { return classify(ClassValidation, err) }

// ClassOf returns the class of err. Unclassified errors are transient.
func ClassOf(err error) ErrorClass {
	var te *Error
	if errors.As(err, &te) {
		return te.Class
	}
	return ClassTransient
}

// TypeName returns the name reported for errors of the class.
func (c ErrorClass) TypeName() string {
	switch c {
	case ClassTerminal:
		return "TerminalError"
	case ClassValidation:
		return "ValidationError"
	default:
		return "TransientError"
	}
}

// DispatchError reports that a task could not be handed to the broker.
type DispatchError struct {
	Kind Kind
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to dispatch %s: %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// RemoteError is the failure a worker recorded for a task.
type RemoteError struct {
	TaskID  string
	Class   ErrorClass
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func remoteErrorFrom(rec *Record) *RemoteError {
	re := &RemoteError{TaskID: rec.TaskID, Class: ClassTransient, Type: ClassTransient.TypeName()}
	if rec.Error != nil {
		re.Class = rec.Error.Class
		re.Type = rec.Error.Type
		re.Message = rec.Error.Message
	}
	return re
}
