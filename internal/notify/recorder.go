package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fromzero/socialbook/internal/models"
)

// NotificationStore persists notification rows
type NotificationStore interface {
	Create(ctx context.Context, notif *models.Notification) error
}

// Recorder stores friend requests as notification rows
type Recorder struct {
	store NotificationStore
	now   func() time.Time
}

// NewRecorder creates a new recorder
func NewRecorder(store NotificationStore) *Recorder {
	return &Recorder{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// FriendRequested records a notification addressed to to
func (r *Recorder) FriendRequested(ctx context.Context, from, to *models.User) error {
	now := r.now()
	payload, err := json.Marshal(NewFriendRequestEvent(from, to, now))
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	notif := &models.Notification{
		Type:      models.NotifyTypeFriendRequest,
		CreatedAt: now,
		SrcID:     sql.NullInt64{Int64: from.ID, Valid: true},
		DstID:     to.ID,
		Payload:   sql.NullString{String: string(payload), Valid: true},
	}
	if err := r.store.Create(ctx, notif); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}
