package memstore

import (
	"context"

	"github.com/fromzero/socialbook/internal/models"
)

// Notifications is the in-memory notification table
type Notifications struct {
	db *DB
}

// Create inserts a notification, assigning its id
func (n *Notifications) Create(ctx context.Context, notif *models.Notification) error {
	n.db.mu.Lock()
	defer n.db.mu.Unlock()

	n.db.nextNotifyID++
	notif.ID = n.db.nextNotifyID
	c := *notif
	c.Src, c.Dst = nil, nil
	n.db.notifications = append(n.db.notifications, &c)
	return nil
}

// ListByRecipient returns notifications addressed to userID, newest first
func (n *Notifications) ListByRecipient(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	n.db.mu.Lock()
	defer n.db.mu.Unlock()

	result := make([]*models.Notification, 0)
	for i := len(n.db.notifications) - 1; i >= 0; i-- {
		notif := n.db.notifications[i]
		if notif.DstID != userID {
			continue
		}
		c := *notif
		result = append(result, &c)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
