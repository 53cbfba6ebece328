package natsq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/phrazzld/story-api/internal/task"
)

// BrokerConfig configures the task stream.
type BrokerConfig struct {
	SubjectPrefix string
	Stream        string
	// AckWait is how long a delivery may stay unacknowledged before
	// JetStream redelivers it. Running tasks extend it with progress acks.
	AckWait time.Duration
	// PollWait bounds each pull request made by Source.Next.
	PollWait time.Duration
}

// Broker publishes task envelopes to the JetStream work queue.
type Broker struct {
	js     jetstream.JetStream
	cfg    BrokerConfig
	logger *slog.Logger
}

var _ task.Broker = (*Broker)(nil)

// NewBroker creates the task stream if needed and returns a Broker.
func NewBroker(ctx context.Context, js jetstream.JetStream, cfg BrokerConfig, logger *slog.Logger) (*Broker, error) {
	if cfg.AckWait <= 0 {
		cfg.AckWait = 10 * time.Minute
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "story-api task queue",
		Subjects:    streamSubjects(cfg.SubjectPrefix),
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
	}

	return &Broker{
		js:     js,
		cfg:    cfg,
		logger: logger.With("component", "nats_broker"),
	}, nil
}

// Publish sends env to its queue subject. The task ID is the message ID, so
// a repeated publish of the same envelope is dropped by the server.
func (b *Broker) Publish(ctx context.Context, env *task.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}

	subject := taskSubject(b.cfg.SubjectPrefix, env)
	ack, err := b.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.ID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	b.logger.Debug("task published",
		"task_id", env.ID,
		"subject", subject,
		"sequence", ack.Sequence,
		"duplicate", ack.Duplicate)
	return nil
}

// Source returns a task.Source pulling from the given queues. Each queue has
// a durable consumer shared by every worker that serves it.
func (b *Broker) Source(ctx context.Context, queues []string) (*Source, error) {
	if len(queues) == 0 {
		return nil, errors.New("at least one queue is required")
	}

	consumers := make([]queueConsumer, 0, len(queues))
	for _, q := range queues {
		cons, err := b.js.CreateOrUpdateConsumer(ctx, b.cfg.Stream, jetstream.ConsumerConfig{
			Durable:       consumerName(b.cfg.SubjectPrefix, q),
			FilterSubject: queueFilter(b.cfg.SubjectPrefix, q),
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       b.cfg.AckWait,
			MaxDeliver:    -1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer for queue %s: %w", q, err)
		}
		consumers = append(consumers, queueConsumer{queue: q, consumer: cons})
	}

	return &Source{
		consumers: consumers,
		pollWait:  b.cfg.PollWait,
		ackWait:   b.cfg.AckWait,
		logger:    b.logger,
	}, nil
}

type queueConsumer struct {
	queue    string
	consumer jetstream.Consumer
}

// Source pulls one message at a time, rotating across its queues.
type Source struct {
	consumers []queueConsumer
	next      atomic.Uint64
	pollWait  time.Duration
	ackWait   time.Duration
	logger    *slog.Logger
}

var _ task.Source = (*Source)(nil)

// Next polls the next queue in rotation for up to the poll wait. It returns
// task.ErrNoDelivery when that queue is empty.
func (s *Source) Next(ctx context.Context) (task.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qc := s.consumers[(s.next.Add(1)-1)%uint64(len(s.consumers))]
	msg, err := qc.consumer.Next(jetstream.FetchMaxWait(s.pollWait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, jetstream.ErrNoMessages) {
			return nil, task.ErrNoDelivery
		}
		if errors.Is(err, nats.ErrConnectionClosed) {
			return nil, task.ErrQueueClosed
		}
		return nil, fmt.Errorf("failed to fetch from queue %s: %w", qc.queue, err)
	}

	env, err := task.UnmarshalEnvelope(msg.Data())
	if err != nil {
		s.logger.Error("discarding malformed task message",
			"queue", qc.queue,
			"subject", msg.Subject(),
			"error", err)
		if termErr := msg.Term(); termErr != nil {
			s.logger.Error("failed to terminate malformed message", "error", termErr)
		}
		return nil, task.ErrNoDelivery
	}

	attempt := 0
	if meta, err := msg.Metadata(); err == nil {
		attempt = attemptFromDeliveries(meta.NumDelivered)
	}

	d := &delivery{msg: msg, env: env, attempt: attempt, stop: make(chan struct{})}
	go d.keepAlive(s.ackWait/2, s.logger)
	return d, nil
}

// delivery wraps a JetStream message. Until it is settled, it sends progress
// acks so long-running tasks are not redelivered to another worker.
type delivery struct {
	msg     jetstream.Msg
	env     *task.Envelope
	attempt int
	stop    chan struct{}
	once    sync.Once
}

func (d *delivery) Envelope() *task.Envelope { return d.env }

func (d *delivery) Attempt() int { return d.attempt }

func (d *delivery) Ack(ctx context.Context) error {
	d.settle()
	return d.msg.DoubleAck(ctx)
}

func (d *delivery) Retry(_ context.Context, delay time.Duration) error {
	d.settle()
	if delay <= 0 {
		return d.msg.Nak()
	}
	return d.msg.NakWithDelay(delay)
}

func (d *delivery) settle() {
	d.once.Do(func() { close(d.stop) })
}

func (d *delivery) keepAlive(interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			if err := d.msg.InProgress(); err != nil {
				logger.Warn("failed to extend ack deadline", "task_id", d.env.ID, "error", err)
			}
		}
	}
}
