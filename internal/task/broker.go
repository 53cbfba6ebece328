package task

import (
	"context"
	"encoding/json"
	"time"
)

// Broker accepts envelopes for delivery to workers.
type Broker interface {
	Publish(ctx context.Context, env *Envelope) error
}

// Source hands deliveries to a worker one at a time. Next blocks until a
// delivery is available, returns ErrNoDelivery when a poll window passes
// without one, and returns ErrQueueClosed once the source is shut down.
type Source interface {
	Next(ctx context.Context) (Delivery, error)
}

// Delivery is one received envelope awaiting acknowledgement.
type Delivery interface {
	Envelope() *Envelope
	// Attempt is the number of earlier executions of this envelope.
	Attempt() int
	// Ack removes the envelope from the queue.
	Ack(ctx context.Context) error
	// Retry returns the envelope to the queue for redelivery after delay.
	Retry(ctx context.Context, delay time.Duration) error
}

// ResultBackend stores task records and revocation markers. Records and
// markers expire after the backend's retention period; an expired entry is
// indistinguishable from one that was never written.
type ResultBackend interface {
	// Get returns ErrRecordNotFound when no live record exists.
	Get(ctx context.Context, taskID string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Revoke(ctx context.Context, taskID string) error
	Revoked(ctx context.Context, taskID string) (bool, error)
}

// Control command names.
const (
	CommandPing    = "ping"
	CommandInspect = "inspect"
	CommandRevoke  = "revoke"
)

// Command is broadcast to every worker on the control plane.
type Command struct {
	Name   string `json:"name"`
	TaskID string `json:"task_id,omitempty"`
}

// Reply is one worker's answer to a Command. Body is decoded by the caller
// according to the command.
type Reply struct {
	Worker string          `json:"worker"`
	Body   json.RawMessage `json:"body"`
}

// ControlPlane broadcasts a command to all workers and gathers the replies
// that arrive before the plane's deadline.
type ControlPlane interface {
	Broadcast(ctx context.Context, cmd Command) ([]Reply, error)
}

// ControlHandler answers control commands on behalf of one worker.
type ControlHandler func(ctx context.Context, cmd Command) (Reply, error)

// PingReply is the body of a ping reply.
type PingReply struct {
	OK string `json:"ok"`
}

// RevokeReply is the body of a revoke reply.
type RevokeReply struct {
	TaskID     string `json:"task_id"`
	Terminated bool   `json:"terminated"`
}

// TaskInfo describes a task held by a worker.
type TaskInfo struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"name"`
	Params    json.RawMessage `json:"args"`
	Attempt   int             `json:"retries"`
	Worker    string          `json:"hostname"`
	TimeStart *time.Time      `json:"time_start,omitempty"`
	ETA       *time.Time      `json:"eta,omitempty"`
}

// WorkerStats are the counters a worker reports through inspect.
type WorkerStats struct {
	Total       map[Kind]int64 `json:"total"`
	Processed   int64          `json:"processed"`
	Succeeded   int64          `json:"succeeded"`
	Failed      int64          `json:"failed"`
	Retried     int64          `json:"retried"`
	Revoked     int64          `json:"revoked"`
	Concurrency int            `json:"concurrency"`
	PID         int            `json:"pid"`
	Uptime      float64        `json:"uptime_seconds"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// InspectReply is the body of an inspect reply.
type InspectReply struct {
	Active     []TaskInfo  `json:"active"`
	Scheduled  []TaskInfo  `json:"scheduled"`
	Reserved   []TaskInfo  `json:"reserved"`
	Stats      WorkerStats `json:"stats"`
	Registered []Kind      `json:"registered"`
}
