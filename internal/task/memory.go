package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker and Source backed by a buffered
// channel. Retried deliveries are re-enqueued after their delay.
type MemoryBroker struct {
	mu     sync.RWMutex
	queue  chan memoryMessage
	done   chan struct{}
	closed bool
	timers map[*time.Timer]struct{}
	logger *slog.Logger
}

type memoryMessage struct {
	env     *Envelope
	attempt int
}

var (
	_ Broker = (*MemoryBroker)(nil)
	_ Source = (*MemoryBroker)(nil)
)

// NewMemoryBroker creates a broker holding at most size queued envelopes.
func NewMemoryBroker(size int, logger *slog.Logger) *MemoryBroker {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBroker{
		queue:  make(chan memoryMessage, size),
		done:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
		logger: logger.With("component", "memory_broker"),
	}
}

// Publish enqueues env. It fails fast when the queue is full or closed.
func (b *MemoryBroker) Publish(_ context.Context, env *Envelope) error {
	return b.enqueue(memoryMessage{env: env})
}

func (b *MemoryBroker) enqueue(msg memoryMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrQueueClosed
	}

	select {
	case b.queue <- msg:
		b.logger.Debug("task enqueued",
			"task_id", msg.env.ID,
			"task_kind", msg.env.Kind,
			"attempt", msg.attempt,
			"queue_len", len(b.queue),
			"queue_cap", cap(b.queue))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(b.queue))
	}
}

// Next blocks until an envelope is available, ctx ends or the broker closes.
func (b *MemoryBroker) Next(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrQueueClosed
	case msg := <-b.queue:
		return &memoryDelivery{broker: b, msg: msg}, nil
	}
}

// Len returns the number of queued envelopes.
func (b *MemoryBroker) Len() int {
	return len(b.queue)
}

// Close stops the broker. Pending delayed retries are dropped.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for t := range b.timers {
		t.Stop()
	}
	b.timers = nil
	b.logger.Info("task queue closed")
}

func (b *MemoryBroker) redeliverAfter(msg memoryMessage, delay time.Duration) error {
	if delay <= 0 {
		return b.enqueue(msg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrQueueClosed
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		if b.timers != nil {
			delete(b.timers, timer)
		}
		b.mu.Unlock()

		if err := b.enqueue(msg); err != nil {
			b.logger.Error("failed to redeliver task",
				"task_id", msg.env.ID,
				"error", err)
		}
	})
	b.timers[timer] = struct{}{}
	return nil
}

type memoryDelivery struct {
	broker *MemoryBroker
	msg    memoryMessage
}

func (d *memoryDelivery) Envelope() *Envelope { return d.msg.env }

func (d *memoryDelivery) Attempt() int { return d.msg.attempt }

func (d *memoryDelivery) Ack(context.Context) error { return nil }

func (d *memoryDelivery) Retry(_ context.Context, delay time.Duration) error {
	return d.broker.redeliverAfter(memoryMessage{env: d.msg.env, attempt: d.msg.attempt + 1}, delay)
}

// MemoryResults is an in-process ResultBackend with TTL expiry.
type MemoryResults struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]memoryEntry[*Record]
	revoked map[string]memoryEntry[struct{}]
}

type memoryEntry[T any] struct {
	value   T
	expires time.Time
}

var _ ResultBackend = (*MemoryResults)(nil)

// NewMemoryResults creates a result store that forgets entries after ttl.
// A nil clock uses time.Now.
func NewMemoryResults(ttl time.Duration, clock func() time.Time) *MemoryResults {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryResults{
		ttl:     ttl,
		now:     clock,
		records: make(map[string]memoryEntry[*Record]),
		revoked: make(map[string]memoryEntry[struct{}]),
	}
}

// Get returns a copy of the live record for taskID, dropping it once expired.
func (r *MemoryResults) Get(_ context.Context, taskID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.records[taskID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if !r.now().Before(entry.expires) {
		delete(r.records, taskID)
		return nil, ErrRecordNotFound
	}
	rec := *entry.value
	return &rec, nil
}

// Put stores a copy of rec and restarts its retention period.
func (r *MemoryResults) Put(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *rec
	r.records[rec.TaskID] = memoryEntry[*Record]{value: &stored, expires: r.now().Add(r.ttl)}
	return nil
}

// Revoke records a revocation marker that expires with the retention period.
func (r *MemoryResults) Revoke(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.revoked[taskID] = memoryEntry[struct{}]{expires: r.now().Add(r.ttl)}
	return nil
}

// Revoked reports whether a live revocation marker exists for taskID.
func (r *MemoryResults) Revoked(_ context.Context, taskID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.revoked[taskID]
	if !ok {
		return false, nil
	}
	if !r.now().Before(entry.expires) {
		delete(r.revoked, taskID)
		return false, nil
	}
	return true, nil
}

// MemoryControlPlane delivers commands to handlers registered in the same
// process. A handler that misses the deadline contributes no reply.
type MemoryControlPlane struct {
	mu       sync.RWMutex
	timeout  time.Duration
	handlers map[string]ControlHandler
}

var _ ControlPlane = (*MemoryControlPlane)(nil)

// NewMemoryControlPlane creates a control plane that waits up to timeout for
// replies.
func NewMemoryControlPlane(timeout time.Duration) *MemoryControlPlane {
	return &MemoryControlPlane{
		timeout:  timeout,
		handlers: make(map[string]ControlHandler),
	}
}

// Register adds a worker's handler and returns a function removing it.
func (p *MemoryControlPlane) Register(worker string, h ControlHandler) func() {
	p.mu.Lock()
	p.handlers[worker] = h
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.handlers, worker)
		p.mu.Unlock()
	}
}

// Broadcast calls every registered handler concurrently and returns the
// replies that arrive before the timeout. Handler errors are dropped.
func (p *MemoryControlPlane) Broadcast(ctx context.Context, cmd Command) ([]Reply, error) {
	p.mu.RLock()
	handlers := make([]ControlHandler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		reply Reply
		ok    bool
	}
	// Buffered so late handlers never block after the deadline.
	results := make(chan result, len(handlers))
	for _, h := range handlers {
		go func(h ControlHandler) {
			reply, err := h(ctx, cmd)
			results <- result{reply: reply, ok: err == nil}
		}(h)
	}

	out := make([]Reply, 0, len(handlers))
	for range handlers {
		select {
		case r := <-results:
			if r.ok {
				out = append(out, r.reply)
			}
		case <-ctx.Done():
			return out, nil
		}
	}
	return out, nil
}
