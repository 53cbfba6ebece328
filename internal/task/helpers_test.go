package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockBroker records published envelopes.
type mockBroker struct {
	mu        sync.Mutex
	PublishFn func(ctx context.Context, env *Envelope) error
	published []*Envelope
}

func (m *mockBroker) Publish(ctx context.Context, env *Envelope) error {
	m.mu.Lock()
	m.published = append(m.published, env)
	m.mu.Unlock()
	if m.PublishFn != nil {
		return m.PublishFn(ctx, env)
	}
	return nil
}

func (m *mockBroker) Published() []*Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Envelope(nil), m.published...)
}

// mockRecorder counts recorder events.
type mockRecorder struct {
	mu         sync.Mutex
	dispatched map[Kind]int
	failed     map[Kind]int
	finished   map[State]int
	retried    int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		dispatched: make(map[Kind]int),
		failed:     make(map[Kind]int),
		finished:   make(map[State]int),
	}
}

func (m *mockRecorder) TaskDispatched(kind Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed[kind]++
		return
	}
	m.dispatched[kind]++
}

func (m *mockRecorder) TaskStarted(Kind) {}

func (m *mockRecorder) TaskFinished(_ Kind, state State, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[state]++
}

func (m *mockRecorder) TaskRetried(Kind, ErrorClass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retried++
}

func (m *mockRecorder) Finished(state State) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished[state]
}

// harness wires a worker to in-memory infrastructure.
type harness struct {
	broker     *MemoryBroker
	results    *MemoryResults
	control    *MemoryControlPlane
	registry   *Registry
	recorder   *mockRecorder
	dispatcher *Dispatcher
	observe    *Observatory
	worker     *Worker
}

func newHarness(t *testing.T, policy RetryPolicy) *harness {
	t.Helper()
	log := testLogger()

	h := &harness{
		broker:   NewMemoryBroker(16, log),
		results:  NewMemoryResults(time.Hour, nil),
		control:  NewMemoryControlPlane(200 * time.Millisecond),
		registry: NewRegistry(),
		recorder: newMockRecorder(),
	}
	h.dispatcher = NewDispatcher(h.broker, h.recorder, log)
	h.observe = NewObservatory(h.results, h.control, 5*time.Millisecond, log)
	h.worker = NewWorker(WorkerConfig{Hostname: "worker@test", Concurrency: 2, Policy: policy},
		h.broker, h.registry, h.results, h.recorder, log)
	t.Cleanup(h.broker.Close)
	return h
}

// start runs the worker until the test ends.
func (h *harness) start(t *testing.T) {
	t.Helper()
	unregister := h.control.Register(h.worker.Hostname(), h.worker.HandleControl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		unregister()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("worker did not stop")
		}
	})
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{Delay: 10 * time.Millisecond, StoryMaxRetries: 3, LLMMaxRetries: 2, RetryTerminal: true}
}
