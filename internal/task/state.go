package task

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of a task.
type State string

// Task states.
const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
	StateRetry   State = "RETRY"
	StateRevoked State = "REVOKED"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateRevoked
}

// ErrorInfo describes the error that moved a task to RETRY or FAILURE.
type ErrorInfo struct {
	Class     ErrorClass `json:"class"`
	Type      string     `json:"type"`
	Message   string     `json:"message"`
	Traceback string     `json:"traceback,omitempty"`
}

// Record is the stored state of one task. Workers write a new record on every
// transition; the latest write wins.
type Record struct {
	TaskID    string          `json:"task_id"`
	Kind      Kind            `json:"kind"`
	State     State           `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
	Retries   int             `json:"retries"`
	Worker    string          `json:"worker,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Status is the client-facing view of a task.
type Status struct {
	TaskID     string          `json:"task_id"`
	Status     State           `json:"status"`
	Result     json.RawMessage `json:"result"`
	Info       any             `json:"info"`
	Traceback  *string         `json:"traceback"`
	Successful *bool           `json:"successful"`
	Failed     *bool           `json:"failed"`
}

// PendingStatus is the status of a task with no stored record.
func PendingStatus(taskID string) *Status {
	return &Status{TaskID: taskID, Status: StatePending}
}

// StatusFromRecord derives the client view of a stored record.
func StatusFromRecord(rec *Record) *Status {
	st := &Status{TaskID: rec.TaskID, Status: rec.State}

	switch rec.State {
	case StateStarted:
		st.Info = map[string]any{"worker": rec.Worker, "retries": rec.Retries}
	case StateRetry, StateFailure:
		st.Info = rec.Error
		if rec.Error != nil && rec.Error.Traceback != "" {
			tb := rec.Error.Traceback
			st.Traceback = &tb
		}
	case StateSuccess:
		st.Result = rec.Result
		st.Info = rec.Result
	case StateRevoked:
		st.Info = map[string]any{"message": "task revoked"}
	}

	if rec.State.Terminal() {
		successful := rec.State == StateSuccess
		failed := rec.State == StateFailure
		st.Successful = &successful
		st.Failed = &failed
	}
	return st
}
