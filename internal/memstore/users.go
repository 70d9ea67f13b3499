package memstore

import (
	"context"
	"time"

	"github.com/fromzero/socialbook/internal/models"
)

// Users is the in-memory user table
type Users struct {
	db *DB
}

// Create inserts a user, assigning its id
func (u *Users) Create(ctx context.Context, user *models.User) error {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	user.Normalize()
	if _, ok := u.db.usernames[user.Username]; ok {
		return models.ErrDuplicate
	}
	if _, ok := u.db.emails[user.Email]; ok {
		return models.ErrDuplicate
	}

	u.db.nextUserID++
	user.ID = u.db.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	u.db.users[user.ID] = copyUser(user)
	u.db.usernames[user.Username] = user.ID
	u.db.emails[user.Email] = user.ID
	return nil
}

// GetByID retrieves a user by ID
func (u *Users) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	if user, ok := u.db.users[id]; ok {
		return copyUser(user), nil
	}
	return nil, nil
}

// GetByUsername retrieves a user by username, case-insensitively
func (u *Users) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	if id, ok := u.db.usernames[models.NormalizeUsername(username)]; ok {
		return copyUser(u.db.users[id]), nil
	}
	return nil, nil
}

// GetByIDs retrieves the users that exist among ids
func (u *Users) GetByIDs(ctx context.Context, ids []int64) ([]*models.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := u.db.users[id]; ok {
			users = append(users, copyUser(user))
		}
	}
	return users, nil
}

// Delete removes a user and everything that references it
func (u *Users) Delete(ctx context.Context, id int64) error {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	user, ok := u.db.users[id]
	if !ok {
		return nil
	}
	delete(u.db.users, id)
	delete(u.db.usernames, user.Username)
	delete(u.db.emails, user.Email)

	for key := range u.db.relationships {
		if key.a == id || key.b == id {
			delete(u.db.relationships, key)
		}
	}
	for msgID, msg := range u.db.messages {
		if msg.FromUserID == id || (msg.ToUserID.Valid && msg.ToUserID.Int64 == id) {
			u.db.deleteMessageLocked(msgID)
		}
	}
	for entryID, entry := range u.db.entries {
		if entry.UserID == id {
			delete(u.db.entries, entryID)
			delete(u.db.entryKeys, pairKey{entry.UserID, entry.MessageID})
		}
	}
	kept := u.db.notifications[:0]
	for _, n := range u.db.notifications {
		if n.DstID != id && !(n.SrcID.Valid && n.SrcID.Int64 == id) {
			kept = append(kept, n)
		}
	}
	u.db.notifications = kept
	return nil
}
