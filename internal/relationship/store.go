package relationship

import (
	"context"
	"errors"
	"time"

	"github.com/fromzero/socialbook/internal/models"
)

var (
	// ErrNotFound is returned when the actor or target user does not exist
	ErrNotFound = errors.New("user not found")
)

// Store persists relationship edges. Get returns (nil, nil) for a missing edge.
type Store interface {
	Get(ctx context.Context, fromID, toID int64) (*models.Relationship, error)
	// Create inserts rel unless an edge for the pair exists; it reports
	// whether a row was written.
	Create(ctx context.Context, rel *models.Relationship) (bool, error)
	// Upsert inserts rel or replaces the pair's existing edge.
	Upsert(ctx context.Context, rel *models.Relationship) error
	// Approve marks the pair's friend edge approved; false if there is none.
	Approve(ctx context.Context, fromID, toID int64, at time.Time) (bool, error)
	// Downgrade turns the pair's approved friend edge back into a pending
	// request; false if the edge is anything else.
	Downgrade(ctx context.Context, fromID, toID int64) (bool, error)
	// Delete removes the pair's edge if it has the given type.
	Delete(ctx context.Context, fromID, toID int64, relType int16) error
	ListFriends(ctx context.Context, userID int64) ([]*models.Relationship, error)
	ListPendingRequests(ctx context.Context, userID int64) ([]*models.Relationship, error)
	// ScanFriends pages through every friend edge with the given status ordered
	// by (from_user_id, to_user_id), starting after the given pair.
	ScanFriends(ctx context.Context, status int16, afterFromID, afterToID int64, limit int) ([]*models.Relationship, error)
	// Tx runs fn with a store bound to a single transaction. Edges read through
	// the bound store stay locked until fn returns.
	Tx(ctx context.Context, fn func(Store) error) error
}

// Users looks up user identities. GetByID returns (nil, nil) for a missing user.
type Users interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Notifier is told about new friend requests
type Notifier interface {
	FriendRequested(ctx context.Context, from, to *models.User) error
}
