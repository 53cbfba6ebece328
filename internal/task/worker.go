package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/story-api/internal/platform/logger"
	"github.com/phrazzld/story-api/internal/redact"
	"golang.org/x/sync/errgroup"
)

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// Hostname identifies the worker on the control plane. Defaults to
	// "worker@<os hostname>".
	Hostname string
	// Concurrency is the number of deliveries processed in parallel.
	Concurrency int
	Policy      RetryPolicy
	// ExtraStats adds values to the stats reported through inspect.
	ExtraStats func() map[string]any
}

// Worker consumes deliveries from a Source and executes registered handlers.
type Worker struct {
	cfg      WorkerConfig
	source   Source
	registry *Registry
	results  ResultBackend
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	started  time.Time

	mu        sync.Mutex
	active    map[string]*runningTask
	reserved  map[string]TaskInfo
	scheduled map[string]TaskInfo
	stats     WorkerStats
}

type runningTask struct {
	info    TaskInfo
	cancel  context.CancelFunc
	revoked bool
}

// NewWorker creates a Worker. A nil recorder disables metrics.
func NewWorker(
	cfg WorkerConfig,
	source Source,
	registry *Registry,
	results ResultBackend,
	recorder Recorder,
	logger *slog.Logger,
) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Hostname == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		cfg.Hostname = "worker@" + host
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		cfg:       cfg,
		source:    source,
		registry:  registry,
		results:   results,
		recorder:  recorder,
		logger:    logger.With("component", "worker", "worker", cfg.Hostname),
		now:       time.Now,
		started:   time.Now(),
		active:    make(map[string]*runningTask),
		reserved:  make(map[string]TaskInfo),
		scheduled: make(map[string]TaskInfo),
		stats: WorkerStats{
			Total:       make(map[Kind]int64),
			Concurrency: cfg.Concurrency,
			PID:         os.Getpid(),
		},
	}
}

// Hostname returns the name the worker answers to on the control plane.
func (w *Worker) Hostname() string {
	return w.cfg.Hostname
}

// Run processes deliveries until ctx is cancelled or the source closes.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"concurrency", w.cfg.Concurrency,
		"registered", w.registry.Kinds())

	g, gctx := errgroup.WithContext(ctx)
	for slot := 0; slot < w.cfg.Concurrency; slot++ {
		g.Go(func() error {
			return w.consume(gctx, slot)
		})
	}
	err := g.Wait()

	w.logger.Info("worker stopped")
	return err
}

func (w *Worker) consume(ctx context.Context, slot int) error {
	log := w.logger.With("slot", slot)

	for {
		d, err := w.source.Next(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrQueueClosed):
			log.Info("task source closed")
			return nil
		case errors.Is(err, ErrNoDelivery):
			continue
		case err != nil:
			log.Error("failed to receive task", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		w.process(ctx, d)
	}
}

// process executes one delivery. The delivery is acknowledged only after
// its final record is written.
func (w *Worker) process(ctx context.Context, d Delivery) {
	env := d.Envelope()
	attempt := d.Attempt()
	id := env.ID.String()
	log := w.logger.With("task_id", id, "task_kind", env.Kind, "attempt", attempt)

	info := TaskInfo{ID: id, Kind: env.Kind, Params: env.Params, Attempt: attempt, Worker: w.cfg.Hostname}
	w.reserve(info)
	defer w.release(id)

	// Records and acks must land even when the worker is shutting down.
	finishCtx := context.WithoutCancel(ctx)

	revoked, err := w.results.Revoked(ctx, id)
	if err != nil {
		log.Warn("failed to check revocation marker", "error", err)
	}
	if revoked {
		log.Info("skipping revoked task")
		w.finish(finishCtx, d, log, &Record{State: StateRevoked, Retries: attempt}, 0)
		return
	}

	params, err := env.Decode()
	if err != nil {
		w.fail(finishCtx, d, log, attempt, err, "", 0)
		return
	}
	handler, ok := w.registry.Lookup(env.Kind)
	if !ok {
		w.fail(finishCtx, d, log, attempt, Invalid(fmt.Errorf("%w: %s", ErrNoHandler, env.Kind)), "", 0)
		return
	}

	w.put(finishCtx, log, &Record{TaskID: id, Kind: env.Kind, State: StateStarted, Retries: attempt})
	w.recorder.TaskStarted(env.Kind)
	log.Info("task started")

	runCtx, cancel := context.WithCancel(ctx)
	running := w.markActive(info, cancel)
	start := w.now()

	result, traceback, err := invoke(logger.WithLogger(runCtx, log), handler, params)

	cancel()
	wasRevoked := w.unmarkActive(id, running)
	elapsed := w.now().Sub(start)

	switch {
	case err == nil:
		payload, merr := json.Marshal(result)
		if merr != nil {
			w.fail(finishCtx, d, log, attempt, Terminal(fmt.Errorf("failed to encode result: %w", merr)), "", elapsed)
			return
		}
		log.Info("task succeeded", "duration_ms", elapsed.Milliseconds())
		w.finish(finishCtx, d, log, &Record{State: StateSuccess, Result: payload, Retries: attempt}, elapsed)

	case wasRevoked:
		log.Info("running task revoked", "error", err)
		w.finish(finishCtx, d, log, &Record{State: StateRevoked, Retries: attempt}, elapsed)

	case ctx.Err() != nil:
		log.Warn("worker stopping, returning task to queue", "error", err)
		if rerr := d.Retry(finishCtx, 0); rerr != nil {
			log.Error("failed to return task to queue", "error", rerr)
		}

	default:
		decision := w.cfg.Policy.Decide(env.Kind, attempt, env.NoRetry, err)
		if !decision.Retry {
			log.Warn("task failed", "error", err, "reason", decision.Reason)
			w.fail(finishCtx, d, log, attempt, err, traceback, elapsed)
			return
		}
		w.retry(finishCtx, d, log, info, err, decision)
	}
}

// invoke runs the handler, converting a panic into a transient error.
func invoke(ctx context.Context, h Handler, p Params) (result any, traceback string, err error) {
	defer func() {
		if r := recover(); r != nil {
			traceback = string(debug.Stack())
			err = Transient(fmt.Errorf("task panicked: %v", r))
		}
	}()
	result, err = h(ctx, p)
	return result, "", err
}

// errorInfo describes err for a task record. Without a panic stack the
// traceback is the error chain.
func errorInfo(err error, traceback string) *ErrorInfo {
	if traceback == "" {
		traceback = errorTrace(err)
	}
	class := ClassOf(err)
	return &ErrorInfo{
		Class:     class,
		Type:      class.TypeName(),
		Message:   redact.Error(err),
		Traceback: traceback,
	}
}

// maxTraceDepth bounds errorTrace on pathological wrapping.
const maxTraceDepth = 16

// errorTrace renders the chain of err with one wrapped error per line,
// innermost last. Messages are redacted.
func errorTrace(err error) string {
	var b strings.Builder
	writeTrace(&b, err, 0)
	return strings.TrimSuffix(b.String(), "\n")
}

func writeTrace(b *strings.Builder, err error, depth int) {
	if err == nil || depth >= maxTraceDepth {
		return
	}
	fmt.Fprintf(b, "%s%T: %s\n", strings.Repeat("  ", depth), err, redact.Error(err))

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			writeTrace(b, inner, depth+1)
		}
	case interface{ Unwrap() error }:
		writeTrace(b, u.Unwrap(), depth+1)
	}
}

func (w *Worker) retry(ctx context.Context, d Delivery, log *slog.Logger, info TaskInfo, err error, decision Decision) {
	env := d.Envelope()
	log.Warn("task failed, retry scheduled",
		"error", err,
		"class", ClassOf(err),
		"delay", decision.Delay)

	w.put(ctx, log, &Record{
		TaskID:  info.ID,
		Kind:    env.Kind,
		State:   StateRetry,
		Error:   errorInfo(err, ""),
		Retries: info.Attempt + 1,
	})

	if rerr := d.Retry(ctx, decision.Delay); rerr != nil {
		log.Error("failed to schedule retry", "error", rerr)
		return
	}

	eta := w.now().Add(decision.Delay)
	info.ETA = &eta
	w.mu.Lock()
	w.scheduled[info.ID] = info
	w.stats.Retried++
	w.mu.Unlock()
	w.recorder.TaskRetried(env.Kind, ClassOf(err))
}

func (w *Worker) fail(ctx context.Context, d Delivery, log *slog.Logger, attempt int, err error, traceback string, elapsed time.Duration) {
	if traceback != "" {
		log.Error("task panicked", "error", err)
	}
	w.finish(ctx, d, log, &Record{State: StateFailure, Error: errorInfo(err, traceback), Retries: attempt}, elapsed)
}

// finish writes a terminal record, acks the delivery and updates counters.
func (w *Worker) finish(ctx context.Context, d Delivery, log *slog.Logger, rec *Record, elapsed time.Duration) {
	env := d.Envelope()
	rec.TaskID = env.ID.String()
	rec.Kind = env.Kind
	w.put(ctx, log, rec)

	if err := d.Ack(ctx); err != nil {
		log.Error("failed to acknowledge task", "error", err)
	}
	w.recorder.TaskFinished(env.Kind, rec.State, elapsed)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Processed++
	w.stats.Total[env.Kind]++
	switch rec.State {
	case StateSuccess:
		w.stats.Succeeded++
	case StateFailure:
		w.stats.Failed++
	case StateRevoked:
		w.stats.Revoked++
	}
}

func (w *Worker) put(ctx context.Context, log *slog.Logger, rec *Record) {
	rec.Worker = w.cfg.Hostname
	rec.UpdatedAt = w.now().UTC()
	if err := w.results.Put(ctx, rec); err != nil {
		log.Error("failed to write task record", "state", rec.State, "error", err)
	}
}

func (w *Worker) reserve(info TaskInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.scheduled, info.ID)
	w.reserved[info.ID] = info
}

func (w *Worker) release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.reserved, id)
}

func (w *Worker) markActive(info TaskInfo, cancel context.CancelFunc) *runningTask {
	started := w.now().UTC()
	info.TimeStart = &started
	rt := &runningTask{info: info, cancel: cancel}

	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.reserved, info.ID)
	w.active[info.ID] = rt
	return rt
}

func (w *Worker) unmarkActive(id string, rt *runningTask) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, id)
	return rt.revoked
}

// Revoke cancels the context of a running task. It reports whether the task
// was running on this worker.
func (w *Worker) Revoke(taskID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	rt, ok := w.active[taskID]
	if !ok {
		return false
	}
	rt.revoked = true
	rt.cancel()
	return true
}

// Inspect returns a snapshot of the worker's tasks and counters.
func (w *Worker) Inspect() InspectReply {
	now := w.now()

	w.mu.Lock()
	active := make([]TaskInfo, 0, len(w.active))
	for _, rt := range w.active {
		active = append(active, rt.info)
	}
	reserved := make([]TaskInfo, 0, len(w.reserved))
	for _, info := range w.reserved {
		reserved = append(reserved, info)
	}
	scheduled := make([]TaskInfo, 0, len(w.scheduled))
	for id, info := range w.scheduled {
		if info.ETA != nil && now.After(*info.ETA) {
			delete(w.scheduled, id)
			continue
		}
		scheduled = append(scheduled, info)
	}
	stats := w.stats
	stats.Total = make(map[Kind]int64, len(w.stats.Total))
	for k, v := range w.stats.Total {
		stats.Total[k] = v
	}
	w.mu.Unlock()

	stats.Uptime = now.Sub(w.started).Seconds()
	if w.cfg.ExtraStats != nil {
		stats.Extra = w.cfg.ExtraStats()
	}

	for _, list := range [][]TaskInfo{active, reserved, scheduled} {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}

	return InspectReply{
		Active:     active,
		Scheduled:  scheduled,
		Reserved:   reserved,
		Stats:      stats,
		Registered: w.registry.Kinds(),
	}
}

// HandleControl answers a control command. It satisfies ControlHandler.
func (w *Worker) HandleControl(_ context.Context, cmd Command) (Reply, error) {
	var body any
	switch cmd.Name {
	case CommandPing:
		body = PingReply{OK: "pong"}
	case CommandInspect:
		body = w.Inspect()
	case CommandRevoke:
		terminated := w.Revoke(cmd.TaskID)
		if terminated {
			w.logger.Info("revoke received for running task", "task_id", cmd.TaskID)
		}
		body = RevokeReply{TaskID: cmd.TaskID, Terminated: terminated}
	default:
		return Reply{}, fmt.Errorf("unknown control command %q", cmd.Name)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to encode %s reply: %w", cmd.Name, err)
	}
	return Reply{Worker: w.cfg.Hostname, Body: raw}, nil
}
