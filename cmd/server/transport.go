package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/phrazzld/story-api/internal/config"
	"github.com/phrazzld/story-api/internal/platform/natsq"
	"github.com/phrazzld/story-api/internal/task"
)

// localQueueSize bounds the in-process queue used in local mode.
const localQueueSize = 1024

// transport bundles the broker, result store and control plane of one
// deployment mode.
type transport struct {
	broker  task.Broker
	results task.ResultBackend
	control task.ControlPlane

	// source opens a delivery source for the named queues.
	source func(ctx context.Context, queues []string) (task.Source, error)
	// serveControl answers control commands for a worker until ctx ends.
	serveControl func(ctx context.Context, worker string, h task.ControlHandler) error
	close        func()
}

// newNATSTransport connects to NATS and sets up the JetStream stream, the
// result bucket and the control subjects.
func newNATSTransport(ctx context.Context, cfg *config.Config, name string, logger *slog.Logger) (*transport, error) {
	nc, err := natsq.Connect(ctx, cfg.Broker.URL, name, cfg.Broker.ConnectAttempts, logger)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	broker, err := natsq.NewBroker(ctx, js, natsq.BrokerConfig{
		SubjectPrefix: cfg.Broker.SubjectPrefix,
		Stream:        cfg.Broker.Stream,
		AckWait:       cfg.Broker.AckWait,
	}, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}

	results, err := natsq.NewResults(ctx, js, cfg.Broker.Bucket, cfg.Tasks.ResultTTL)
	if err != nil {
		nc.Close()
		return nil, err
	}

	control := natsq.NewControl(nc, cfg.Broker.SubjectPrefix, cfg.Broker.InspectTimeout, logger)

	return &transport{
		broker:  broker,
		results: results,
		control: control,
		source: func(ctx context.Context, queues []string) (task.Source, error) {
			return broker.Source(ctx, queues)
		},
		serveControl: func(ctx context.Context, _ string, h task.ControlHandler) error {
			return control.Serve(ctx, h)
		},
		close: func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("failed to drain nats connection", "error", err)
			}
		},
	}, nil
}

// newLocalTransport keeps the queue, results and control plane in memory.
// The API and the worker must share one process.
func newLocalTransport(cfg *config.Config, logger *slog.Logger) *transport {
	broker := task.NewMemoryBroker(localQueueSize, logger)
	control := task.NewMemoryControlPlane(cfg.Broker.InspectTimeout)

	return &transport{
		broker:  broker,
		results: task.NewMemoryResults(cfg.Tasks.ResultTTL, nil),
		control: control,
		source: func(context.Context, []string) (task.Source, error) {
			return broker, nil
		},
		serveControl: func(ctx context.Context, worker string, h task.ControlHandler) error {
			unregister := control.Register(worker, h)
			defer unregister()
			<-ctx.Done()
			return nil
		},
		close: broker.Close,
	}
}
