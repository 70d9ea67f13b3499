// Package social exposes users, the relationship graph and feeds as
// JSON-RPC methods. Every call names its actor by username.
package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/fromzero/socialbook/internal/api/params"
	"github.com/fromzero/socialbook/internal/models"
)

// ErrNotFound is returned when a named user does not exist
var ErrNotFound = errors.New("not found")

// UserStore persists user accounts. Getters return (nil, nil) for a missing user.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*models.User, error)
	Delete(ctx context.Context, id int64) error
}

// NotificationStore lists notifications addressed to a user
type NotificationStore interface {
	ListByRecipient(ctx context.Context, userID int64, limit int) ([]*models.Notification, error)
}

func lookupUser(ctx context.Context, users UserStore, username string) (*models.User, error) {
	user, err := users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %q: %w", username, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return user, nil
}

// userParam loads the user named by a required string param
func userParam(ctx context.Context, users UserStore, p params.Map, key string) (*models.User, error) {
	name, err := p.RequireString(key)
	if err != nil {
		return nil, err
	}
	return lookupUser(ctx, users, name)
}
