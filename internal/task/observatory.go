package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is how often Result re-reads the backend.
const DefaultPollInterval = 500 * time.Millisecond

// Observatory reads task state for the API. Its only write is the
// revocation marker set by Cancel.
type Observatory struct {
	results      ResultBackend
	control      ControlPlane
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewObservatory creates an Observatory. A non-positive pollInterval uses
// DefaultPollInterval.
func NewObservatory(results ResultBackend, control ControlPlane, pollInterval time.Duration, logger *slog.Logger) *Observatory {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Observatory{
		results:      results,
		control:      control,
		pollInterval: pollInterval,
		logger:       logger.With("component", "observatory"),
	}
}

// Status returns the current view of a task. A task with no live record,
// whether never written or expired past retention, is reported as PENDING.
func (o *Observatory) Status(ctx context.Context, taskID string) (*Status, error) {
	rec, err := o.results.Get(ctx, taskID)
	if errors.Is(err, ErrRecordNotFound) {
		return PendingStatus(taskID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task %s: %w", taskID, err)
	}
	return StatusFromRecord(rec), nil
}

// Result waits for the task to reach a terminal state and returns its result.
// A non-positive timeout waits until ctx ends. It returns ErrTimeout when the
// timeout passes first, a *RemoteError when the task failed and ErrRevoked
// when it was revoked.
func (o *Observatory) Result(ctx context.Context, taskID string, timeout time.Duration) (json.RawMessage, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		rec, err := o.results.Get(ctx, taskID)
		switch {
		case errors.Is(err, ErrRecordNotFound):
		case err != nil:
			if ctx.Err() == nil {
				return nil, fmt.Errorf("failed to read task %s: %w", taskID, err)
			}
		default:
			switch rec.State {
			case StateSuccess:
				return rec.Result, nil
			case StateFailure:
				return nil, remoteErrorFrom(rec)
			case StateRevoked:
				return nil, ErrRevoked
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel marks the task revoked and asks every worker to abort it if it is
// running. It returns true once the revocation is recorded. A task that has
// already committed its effects keeps them.
func (o *Observatory) Cancel(ctx context.Context, taskID string) (bool, error) {
	if err := o.results.Revoke(ctx, taskID); err != nil {
		return false, fmt.Errorf("failed to revoke task %s: %w", taskID, err)
	}

	replies, err := o.control.Broadcast(ctx, Command{Name: CommandRevoke, TaskID: taskID})
	if err != nil {
		o.logger.Warn("revoke broadcast failed; workers will skip the task on receipt",
			"task_id", taskID,
			"error", err)
		return true, nil
	}

	for _, r := range replies {
		var body RevokeReply
		if err := json.Unmarshal(r.Body, &body); err == nil && body.Terminated {
			o.logger.Info("running task terminated", "task_id", taskID, "worker", r.Worker)
		}
	}
	return true, nil
}

// ActiveTasks lists the tasks each worker holds, keyed by worker hostname.
type ActiveTasks struct {
	Active    map[string][]TaskInfo `json:"active"`
	Scheduled map[string][]TaskInfo `json:"scheduled"`
	Reserved  map[string][]TaskInfo `json:"reserved"`
}

// ListActive gathers active, scheduled and reserved tasks from every worker
// that answers before the control plane deadline.
func (o *Observatory) ListActive(ctx context.Context) (*ActiveTasks, error) {
	inspected, err := o.inspect(ctx)
	if err != nil {
		return nil, err
	}

	out := &ActiveTasks{
		Active:    make(map[string][]TaskInfo, len(inspected)),
		Scheduled: make(map[string][]TaskInfo, len(inspected)),
		Reserved:  make(map[string][]TaskInfo, len(inspected)),
	}
	for worker, r := range inspected {
		out.Active[worker] = nonNil(r.Active)
		out.Scheduled[worker] = nonNil(r.Scheduled)
		out.Reserved[worker] = nonNil(r.Reserved)
	}
	return out, nil
}

// FleetStats reports worker statistics keyed by worker hostname.
type FleetStats struct {
	Stats      map[string]WorkerStats `json:"stats"`
	Ping       map[string]PingReply   `json:"ping"`
	Registered map[string][]Kind      `json:"registered"`
}

// WorkerStats gathers statistics, ping replies and registered kinds from
// every worker that answers before the control plane deadline.
func (o *Observatory) WorkerStats(ctx context.Context) (*FleetStats, error) {
	var (
		inspected map[string]InspectReply
		pings     map[string]PingReply
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inspected, err = o.inspect(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		pings, err = o.ping(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &FleetStats{
		Stats:      make(map[string]WorkerStats, len(inspected)),
		Ping:       pings,
		Registered: make(map[string][]Kind, len(inspected)),
	}
	for worker, r := range inspected {
		out.Stats[worker] = r.Stats
		out.Registered[worker] = nonNil(r.Registered)
	}
	return out, nil
}

func (o *Observatory) inspect(ctx context.Context) (map[string]InspectReply, error) {
	return gather[InspectReply](ctx, o, CommandInspect)
}

func (o *Observatory) ping(ctx context.Context) (map[string]PingReply, error) {
	return gather[PingReply](ctx, o, CommandPing)
}

// gather broadcasts a command and decodes each reply body as T. Malformed
// replies are logged and skipped.
func gather[T any](ctx context.Context, o *Observatory, name string) (map[string]T, error) {
	replies, err := o.control.Broadcast(ctx, Command{Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to broadcast %s: %w", name, err)
	}

	out := make(map[string]T, len(replies))
	for _, r := range replies {
		var body T
		if r.Worker == "" {
			o.logger.Warn("skipping control reply without worker name", "command", name)
			continue
		}
		if err := json.Unmarshal(r.Body, &body); err != nil {
			o.logger.Warn("skipping malformed control reply",
				"command", name,
				"worker", r.Worker,
				"error", err)
			continue
		}
		out[r.Worker] = body
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
