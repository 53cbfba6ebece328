// Package metrics exposes Prometheus metrics for task dispatch, task
// execution, model calls and HTTP requests. Each Collector owns its registry
// so the API and worker processes, and tests, never share global state.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/story-api/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "story"

// Collector records metrics into its own registry.
type Collector struct {
	registry *prometheus.Registry

	tasksDispatched *prometheus.CounterVec
	tasksStarted    *prometheus.CounterVec
	tasksFinished   *prometheus.CounterVec
	tasksRetried    *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	tasksInFlight   prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ task.Recorder = (*Collector)(nil)

// NewCollector creates a Collector with Go runtime and process collectors
// already registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tasksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dispatched_total",
			Help:      "Tasks submitted to the broker, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		tasksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_started_total",
			Help:      "Task executions started by workers.",
		}, []string{"kind"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal state, by kind and state.",
		}, []string{"kind", "state"}),
		tasksRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_retried_total",
			Help:      "Retries scheduled, by kind and error class.",
		}, []string{"kind", "class"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Handler execution time for finished tasks.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Tasks currently executing on this worker.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Model calls, by model and outcome.",
		}, []string{"model", "outcome"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by model calls.",
		}, []string{"model"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.tasksDispatched,
		c.tasksStarted,
		c.tasksFinished,
		c.tasksRetried,
		c.taskDuration,
		c.tasksInFlight,
		c.llmRequests,
		c.llmTokens,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Registry returns the registry metrics are recorded into.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// TaskDispatched counts a submission by kind and outcome.
func (c *Collector) TaskDispatched(kind task.Kind, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.tasksDispatched.WithLabelValues(string(kind), outcome).Inc()
}

// TaskStarted marks a task as running.
func (c *Collector) TaskStarted(kind task.Kind) {
	c.tasksStarted.WithLabelValues(string(kind)).Inc()
	c.tasksInFlight.Inc()
}

// TaskFinished records a terminal state. Tasks revoked before they started
// report zero elapsed time and never entered the in-flight gauge.
func (c *Collector) TaskFinished(kind task.Kind, state task.State, elapsed time.Duration) {
	c.tasksFinished.WithLabelValues(string(kind), string(state)).Inc()
	if elapsed > 0 {
		c.taskDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
		c.tasksInFlight.Dec()
	}
}

// TaskRetried counts a scheduled retry by kind and error class.
func (c *Collector) TaskRetried(kind task.Kind, class task.ErrorClass) {
	c.tasksRetried.WithLabelValues(string(kind), string(class)).Inc()
	c.tasksInFlight.Dec()
}

// LLMRequest records one model call.
func (c *Collector) LLMRequest(model string, tokens int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.llmRequests.WithLabelValues(model, outcome).Inc()
	if tokens > 0 {
		c.llmTokens.WithLabelValues(model).Add(float64(tokens))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware records request counts and latency by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Serve exposes /metrics on port until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
