package natsq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sethvargo/go-retry"
)

// Connect dials the NATS server at url, retrying with exponential backoff up
// to attempts times. The returned connection reconnects on its own after
// the first successful dial.
func Connect(ctx context.Context, url, name string, attempts uint64, logger *slog.Logger) (*nats.Conn, error) {
	if attempts == 0 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "nats")

	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
		}),
	}

	var nc *nats.Conn
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		nc, err = nats.Connect(url, opts...)
		if err != nil {
			log.Warn("nats connection attempt failed", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats after %d attempts: %w", attempts, err)
	}

	log.Info("connected to nats", "url", nc.ConnectedUrlRedacted())
	return nc, nil
}
