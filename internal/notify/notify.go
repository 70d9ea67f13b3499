// Package notify delivers friend request notifications. The recorder writes
// notification rows, the NATS publisher emits events for out-of-process
// consumers such as the email worker, and Multi fans a request out to both.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/internal/relationship"
)

// FriendRequestEvent is the payload published and recorded for a new request
type FriendRequestEvent struct {
	Type         string    `json:"type"`
	FromUserID   int64     `json:"from_user_id"`
	FromUsername string    `json:"from_username"`
	ToUserID     int64     `json:"to_user_id"`
	ToUsername   string    `json:"to_username"`
	ToEmail      string    `json:"to_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventTypeFriendRequest is the Type of a FriendRequestEvent
const EventTypeFriendRequest = "friend_request"

// NewFriendRequestEvent builds the event for from asking to befriend to
func NewFriendRequestEvent(from, to *models.User, at time.Time) FriendRequestEvent {
	return FriendRequestEvent{
		Type:         EventTypeFriendRequest,
		FromUserID:   from.ID,
		FromUsername: from.Username,
		ToUserID:     to.ID,
		ToUsername:   to.Username,
		ToEmail:      to.Email,
		CreatedAt:    at,
	}
}

// Multi dispatches to every notifier and joins their errors
type Multi []relationship.Notifier

// FriendRequested calls every notifier, even after a failure
func (m Multi) FriendRequested(ctx context.Context, from, to *models.User) error {
	var errs []error
	for _, n := range m {
		if err := n.FriendRequested(ctx, from, to); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
