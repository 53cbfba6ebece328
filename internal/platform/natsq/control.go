package natsq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/phrazzld/story-api/internal/task"
)

// Control is the worker control plane over core NATS.
type Control struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

var _ task.ControlPlane = (*Control)(nil)

// NewControl creates a control plane that gathers replies for up to timeout.
func NewControl(nc *nats.Conn, prefix string, timeout time.Duration, logger *slog.Logger) *Control {
	if logger == nil {
		logger = slog.Default()
	}
	return &Control{
		nc:      nc,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger.With("component", "nats_control"),
	}
}

// Broadcast publishes cmd to every worker and collects replies on a private
// inbox until the timeout. Undecodable replies are skipped.
func (c *Control) Broadcast(ctx context.Context, cmd task.Command) ([]task.Reply, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}

	inbox := c.nc.NewInbox()
	sub, err := c.nc.SubscribeSync(inbox)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to reply inbox: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := c.nc.PublishRequest(controlSubject(c.prefix, cmd.Name), inbox, data); err != nil {
		return nil, fmt.Errorf("failed to publish %s command: %w", cmd.Name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var replies []task.Reply
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return replies, nil
			}
			return replies, fmt.Errorf("failed to read %s replies: %w", cmd.Name, err)
		}

		var reply task.Reply
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			c.logger.Warn("skipping malformed control reply", "command", cmd.Name, "error", err)
			continue
		}
		replies = append(replies, reply)
	}
}

// Serve answers control commands with handler until ctx is cancelled.
func (c *Control) Serve(ctx context.Context, handler task.ControlHandler) error {
	sub, err := c.nc.Subscribe(controlWildcard(c.prefix), func(msg *nats.Msg) {
		var cmd task.Command
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			c.logger.Warn("ignoring malformed control command", "subject", msg.Subject, "error", err)
			return
		}
		if cmd.Name == "" {
			cmd.Name = msg.Subject[strings.LastIndex(msg.Subject, ".")+1:]
		}

		reply, err := handler(ctx, cmd)
		if err != nil {
			c.logger.Warn("control command failed", "command", cmd.Name, "error", err)
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			c.logger.Error("failed to encode control reply", "command", cmd.Name, "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			c.logger.Warn("failed to send control reply", "command", cmd.Name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to control subjects: %w", err)
	}

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("failed to unsubscribe from control subjects: %w", err)
	}
	return nil
}
