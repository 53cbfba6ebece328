package task

import "time"

// Recorder receives task lifecycle events for metrics.
type Recorder interface {
	TaskDispatched(kind Kind, err error)
	TaskStarted(kind Kind)
	TaskFinished(kind Kind, state State, elapsed time.Duration)
	TaskRetried(kind Kind, class ErrorClass)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) TaskDispatched(Kind, error)              {}
func (NopRecorder) TaskStarted(Kind)                        {}
func (NopRecorder) TaskFinished(Kind, State, time.Duration) {}
func (NopRecorder) TaskRetried(Kind, ErrorClass)            {}
