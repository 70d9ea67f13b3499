package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/models"
)

// Publisher emits friend request events on a NATS subject
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
	now     func() time.Time
}

// Connect dials the NATS servers at url and returns a publisher for subject
func Connect(url, subject string, logger *zap.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("socialbook"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS connection established", zap.String("subject", subject))
	return NewPublisher(conn, subject, logger), nil
}

// NewPublisher creates a publisher on an existing connection
func NewPublisher(conn *nats.Conn, subject string, logger *zap.Logger) *Publisher {
	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FriendRequested publishes the event. Delivery is at most once.
func (p *Publisher) FriendRequested(ctx context.Context, from, to *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(NewFriendRequestEvent(from, to, p.now()))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish friend request: %w", err)
	}

	p.logger.Debug("Friend request published",
		zap.String("subject", p.subject),
		zap.Int64("from", from.ID),
		zap.Int64("to", to.ID))
	return nil
}

// Close flushes pending messages and closes the connection
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("Failed to drain NATS connection", zap.Error(err))
	}
}
