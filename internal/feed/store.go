// Package feed stores posts, comments and likes and fans new posts out to
// the timelines of the poster's friends.
package feed

import (
	"context"
	"errors"

	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/internal/relationship"
)

var (
	// ErrNotFound is returned for a missing user or message
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for a malformed message
	ErrInvalid = errors.New("invalid message")
	// ErrForbidden is returned when a block or ownership rule rejects the actor
	ErrForbidden = errors.New("forbidden")
)

// Store persists messages and feed entries. Single-row getters return
// (nil, nil) when the row is missing.
type Store interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	// GetMessages returns the messages that still exist, in any order.
	GetMessages(ctx context.Context, ids []int64) ([]*models.Message, error)
	// DeleteMessage removes a message with its replies and feed entries.
	DeleteMessage(ctx context.Context, id int64) error
	ListReplies(ctx context.Context, parentID int64) ([]*models.Message, error)
	FindLike(ctx context.Context, userID, parentID int64) (*models.Message, error)
	// AddFeedEntry is a no-op when the user already has the message.
	AddFeedEntry(ctx context.Context, entry *models.FeedEntry) error
	// ListTimeline returns message ids, newest entry first.
	ListTimeline(ctx context.Context, userID int64, offset, limit int) ([]int64, error)
}

// Users looks up user identities. GetByID returns (nil, nil) for a missing user.
type Users interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Graph answers relationship questions during fan-out
type Graph interface {
	Friends(ctx context.Context, userID int64) ([]*models.Relationship, error)
	Resolve(ctx context.Context, viewerID, otherID int64) (relationship.Label, error)
}

// TimelineCache caches timeline pages as message id lists
type TimelineCache interface {
	// GetPage also returns the cache version it read; a page rebuilt after
	// a miss is handed back to SetPage with that version.
	GetPage(ctx context.Context, userID int64, page, pageSize int) ([]int64, string, bool)
	SetPage(ctx context.Context, userID int64, version string, page, pageSize int, ids []int64)
	Invalidate(ctx context.Context, userID int64)
}

type noCache struct{}

func (noCache) GetPage(context.Context, int64, int, int) ([]int64, string, bool) {
	return nil, "", false
}
func (noCache) SetPage(context.Context, int64, string, int, int, []int64) {}
func (noCache) Invalidate(context.Context, int64)                         {}

// blockedEitherWay reports whether a or b blocks the other
func blockedEitherWay(ctx context.Context, graph Graph, a, b int64) (bool, error) {
	label, err := graph.Resolve(ctx, a, b)
	if err != nil {
		return false, err
	}
	if label.IsBlocked() {
		return true, nil
	}
	label, err = graph.Resolve(ctx, b, a)
	if err != nil {
		return false, err
	}
	return label.IsBlocked(), nil
}
