package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/pkg/telemetry"
)

// Options configures timeline paging
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Service creates messages and reads timelines
type Service struct {
	store     Store
	users     Users
	graph     Graph
	publisher *Publisher
	cache     TimelineCache
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new feed service. cache may be nil.
func NewService(store Store, users Users, graph Graph, publisher *Publisher, cache TimelineCache, opts Options, logger *zap.Logger) *Service {
	if cache == nil {
		cache = noCache{}
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.DefaultPageSize <= 0 || opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = 10
	}
	return &Service{
		store:     store,
		users:     users,
		graph:     graph,
		publisher: publisher,
		cache:     cache,
		opts:      opts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Post saves a root post from actor and publishes it. toID names the wall
// owner; nil or the actor's own id makes it a self post.
func (s *Service) Post(ctx context.Context, actorID int64, toID *int64, text string, images []string) (*models.Message, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.post")
	defer span.End()

	text = strings.TrimSpace(text)
	if err := validateText(text, len(images) > 0); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, actorID); err != nil {
		return nil, err
	}
	if toID != nil && *toID != actorID {
		if err := s.requireUser(ctx, *toID); err != nil {
			return nil, err
		}
		if err := s.requireNotBlocked(ctx, actorID, *toID); err != nil {
			return nil, err
		}
	}

	msg := models.NewPost(actorID, toID, text, images, s.now())
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save post: %w", err)
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		// nothing was fanned out yet; drop the post so a retry does not
		// leave a duplicate behind
		if derr := s.store.DeleteMessage(ctx, msg.ID); derr != nil {
			s.logger.Error("Failed to drop unpublished post",
				zap.Int64("message_id", msg.ID),
				zap.Error(derr))
		}
		return nil, err
	}
	return msg, nil
}

// Comment saves a comment on a post. Comments are not fanned out.
func (s *Service) Comment(ctx context.Context, actorID, postID int64, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if err := validateText(text, false); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, actorID); err != nil {
		return nil, err
	}
	post, err := s.rootPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.requireNotBlocked(ctx, actorID, post.FromUserID); err != nil {
		return nil, err
	}

	msg := models.NewComment(actorID, post.ID, text, s.now())
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save comment: %w", err)
	}
	return msg, nil
}

// Like records actor's like of a post. Liking twice returns the first like.
func (s *Service) Like(ctx context.Context, actorID, postID int64) (*models.Message, error) {
	if err := s.requireUser(ctx, actorID); err != nil {
		return nil, err
	}
	post, err := s.rootPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.requireNotBlocked(ctx, actorID, post.FromUserID); err != nil {
		return nil, err
	}

	existing, err := s.store.FindLike(ctx, actorID, post.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check like: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	msg := models.NewLike(actorID, post.ID, s.now())
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			// lost a race with a concurrent like from the same user
			return s.store.FindLike(ctx, actorID, post.ID)
		}
		return nil, fmt.Errorf("failed to save like: %w", err)
	}
	return msg, nil
}

// Replies returns the comments and likes on a post, oldest first
func (s *Service) Replies(ctx context.Context, postID int64) ([]*models.Message, error) {
	post, err := s.rootPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return s.store.ListReplies(ctx, post.ID)
}

// Delete removes a message written by actor, or posted on actor's wall.
// Its replies and feed entries go with it.
func (s *Service) Delete(ctx context.Context, actorID, messageID int64) error {
	msg, err := s.message(ctx, messageID)
	if err != nil {
		return err
	}
	owner := msg.FromUserID == actorID || (msg.ToUserID.Valid && msg.ToUserID.Int64 == actorID)
	if !owner {
		return fmt.Errorf("message %d: %w", messageID, ErrForbidden)
	}
	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	s.cache.Invalidate(ctx, actorID)
	return nil
}

// Timeline returns a page of the user's feed, newest first. Entries whose
// message has disappeared are skipped.
func (s *Service) Timeline(ctx context.Context, userID int64, page, pageSize int) ([]*models.Message, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.timeline")
	defer span.End()

	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	page, pageSize = s.normalizePage(page, pageSize)

	ids, version, ok := s.cache.GetPage(ctx, userID, page, pageSize)
	if !ok {
		var err error
		ids, err = s.store.ListTimeline(ctx, userID, (page-1)*pageSize, pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list timeline: %w", err)
		}
		s.cache.SetPage(ctx, userID, version, page, pageSize, ids)
	}
	if len(ids) == 0 {
		return []*models.Message{}, nil
	}

	found, err := s.store.GetMessages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline messages: %w", err)
	}
	byID := make(map[int64]*models.Message, len(found))
	for _, msg := range found {
		byID[msg.ID] = msg
	}

	messages := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := byID[id]; ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (s *Service) normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.opts.DefaultPageSize
	}
	if pageSize > s.opts.MaxPageSize {
		pageSize = s.opts.MaxPageSize
	}
	return page, pageSize
}

func (s *Service) rootPost(ctx context.Context, postID int64) (*models.Message, error) {
	msg, err := s.message(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !msg.IsRoot() {
		return nil, fmt.Errorf("message %d is not a post: %w", postID, ErrInvalid)
	}
	return msg, nil
}

func (s *Service) message(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load message %d: %w", id, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return msg, nil
}

func (s *Service) requireUser(ctx context.Context, id int64) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", id, err)
	}
	if user == nil {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Service) requireNotBlocked(ctx context.Context, a, b int64) error {
	if a == b {
		return nil
	}
	blocked, err := blockedEitherWay(ctx, s.graph, a, b)
	if err != nil {
		return fmt.Errorf("failed to check block: %w", err)
	}
	if blocked {
		return fmt.Errorf("users %d and %d: %w", a, b, ErrForbidden)
	}
	return nil
}

func validateText(text string, hasImages bool) error {
	if text == "" && !hasImages {
		return fmt.Errorf("empty message: %w", ErrInvalid)
	}
	if utf8.RuneCountInString(text) > models.MaxMessageText {
		return fmt.Errorf("message longer than %d characters: %w", models.MaxMessageText, ErrInvalid)
	}
	return nil
}
