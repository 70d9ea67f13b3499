package feed

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/internal/relationship"
	"github.com/fromzero/socialbook/pkg/telemetry"
)

// Publisher writes feed entries for new root posts
type Publisher struct {
	store    Store
	graph    Graph
	cache    TimelineCache
	workers  int
	logger   *zap.Logger
	entries  metric.Int64Counter
	failures metric.Int64Counter
}

// NewPublisher creates a new publisher. cache may be nil.
func NewPublisher(store Store, graph Graph, cache TimelineCache, workers int, logger *zap.Logger) *Publisher {
	if cache == nil {
		cache = noCache{}
	}
	if workers <= 0 {
		workers = 1
	}
	return &Publisher{
		store:    store,
		graph:    graph,
		cache:    cache,
		workers:  workers,
		logger:   logger,
		entries:  telemetry.Counter("feed.fanout.entries", "Feed entries written by fan-out"),
		failures: telemetry.Counter("feed.fanout.failures", "Feed entries fan-out failed to write"),
	}
}

// Publish puts msg on the poster's timeline and on the timeline of every
// approved friend that is not blocked either way. Comments and likes are
// ignored. Only the poster's own entry is required to succeed; a failed
// friend entry is logged and dropped.
func (p *Publisher) Publish(ctx context.Context, msg *models.Message) error {
	if !msg.IsRoot() {
		p.logger.Debug("Skipping fan-out for non-root message",
			zap.Int64("message_id", msg.ID),
			zap.String("type", models.MessageTypeName(msg.Type)))
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "feed.publish")
	defer span.End()

	if err := p.deliver(ctx, msg, msg.FromUserID); err != nil {
		return fmt.Errorf("failed to write poster feed entry: %w", err)
	}

	recipients, skipped := p.recipients(ctx, msg)

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, userID := range recipients {
		userID := userID
		g.Go(func() error {
			if err := p.deliver(ctx, msg, userID); err != nil {
				failed.Add(1)
				p.failures.Add(ctx, 1)
				p.logger.Warn("Failed to write feed entry",
					zap.Int64("message_id", msg.ID),
					zap.Int64("user_id", userID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("feed.recipients", len(recipients)),
		attribute.Int("feed.skipped", skipped),
		attribute.Int64("feed.failed", failed.Load()),
	)

	p.logger.Debug("Published message",
		zap.Int64("message_id", msg.ID),
		zap.Int64("from", msg.FromUserID),
		zap.Int("recipients", len(recipients)),
		zap.Int("skipped", skipped),
		zap.Int64("failed", failed.Load()))

	return nil
}

// recipients lists the friends that should receive msg. Lookup errors count
// as skips so fan-out keeps going.
func (p *Publisher) recipients(ctx context.Context, msg *models.Message) ([]int64, int) {
	friends, err := p.graph.Friends(ctx, msg.FromUserID)
	if err != nil {
		p.logger.Warn("Failed to list friends for fan-out",
			zap.Int64("message_id", msg.ID),
			zap.Int64("from", msg.FromUserID),
			zap.Error(err))
		return nil, 0
	}

	recipients := make([]int64, 0, len(friends))
	skipped := 0
	for _, friend := range friends {
		ok, err := p.qualifies(ctx, msg, friend.ToUserID)
		if err != nil {
			p.logger.Warn("Failed to check fan-out recipient",
				zap.Int64("message_id", msg.ID),
				zap.Int64("user_id", friend.ToUserID),
				zap.Error(err))
		}
		if !ok {
			skipped++
			continue
		}
		recipients = append(recipients, friend.ToUserID)
	}
	return recipients, skipped
}

func (p *Publisher) qualifies(ctx context.Context, msg *models.Message, userID int64) (bool, error) {
	if userID == msg.FromUserID {
		return false, nil
	}

	blocked, err := blockedEitherWay(ctx, p.graph, msg.FromUserID, userID)
	if err != nil || blocked {
		return false, err
	}

	// Wall posts stay off the timelines of friends who block the wall owner.
	if msg.ToUserID.Valid && msg.ToUserID.Int64 != userID {
		label, err := p.graph.Resolve(ctx, userID, msg.ToUserID.Int64)
		if err != nil {
			return false, err
		}
		if label == relationship.Blocked {
			return false, nil
		}
	}
	return true, nil
}

func (p *Publisher) deliver(ctx context.Context, msg *models.Message, userID int64) error {
	entry := &models.FeedEntry{
		UserID:    userID,
		MessageID: msg.ID,
		CreatedAt: msg.CreatedAt,
	}
	if err := p.store.AddFeedEntry(ctx, entry); err != nil {
		return err
	}
	p.entries.Add(ctx, 1)
	p.cache.Invalidate(ctx, userID)
	return nil
}
