package memstore

import (
	"context"
	"sort"

	"github.com/fromzero/socialbook/internal/feed"
	"github.com/fromzero/socialbook/internal/models"
)

// Feed is the in-memory message and feed entry table
type Feed struct {
	db *DB
}

var _ feed.Store = (*Feed)(nil)

// CreateMessage inserts a message, assigning its id
func (f *Feed) CreateMessage(ctx context.Context, msg *models.Message) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	if msg.Type == models.MessageTypeLike && msg.ParentID.Valid {
		for _, m := range f.db.messages {
			if m.Type == models.MessageTypeLike && m.FromUserID == msg.FromUserID && m.ParentID == msg.ParentID {
				return models.ErrDuplicate
			}
		}
	}

	f.db.nextMessageID++
	msg.ID = f.db.nextMessageID
	f.db.messages[msg.ID] = copyMessage(msg)
	return nil
}

// GetMessage retrieves a message by ID
func (f *Feed) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	if msg, ok := f.db.messages[id]; ok {
		return copyMessage(msg), nil
	}
	return nil, nil
}

// GetMessages retrieves the messages that exist among ids
func (f *Feed) GetMessages(ctx context.Context, ids []int64) ([]*models.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	messages := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := f.db.messages[id]; ok {
			messages = append(messages, copyMessage(msg))
		}
	}
	return messages, nil
}

// DeleteMessage removes a message with its replies and feed entries
func (f *Feed) DeleteMessage(ctx context.Context, id int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	f.db.deleteMessageLocked(id)
	return nil
}

// ListReplies returns the messages whose parent is parentID, oldest first
func (f *Feed) ListReplies(ctx context.Context, parentID int64) ([]*models.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	replies := make([]*models.Message, 0)
	for _, msg := range f.db.messages {
		if msg.ParentID.Valid && msg.ParentID.Int64 == parentID {
			replies = append(replies, copyMessage(msg))
		}
	}
	sort.Slice(replies, func(i, j int) bool {
		if !replies[i].CreatedAt.Equal(replies[j].CreatedAt) {
			return replies[i].CreatedAt.Before(replies[j].CreatedAt)
		}
		return replies[i].ID < replies[j].ID
	})
	return replies, nil
}

// FindLike returns userID's like of parentID, if any
func (f *Feed) FindLike(ctx context.Context, userID, parentID int64) (*models.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	for _, msg := range f.db.messages {
		if msg.Type == models.MessageTypeLike && msg.FromUserID == userID &&
			msg.ParentID.Valid && msg.ParentID.Int64 == parentID {
			return copyMessage(msg), nil
		}
	}
	return nil, nil
}

// AddFeedEntry inserts entry unless the user already has the message
func (f *Feed) AddFeedEntry(ctx context.Context, entry *models.FeedEntry) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	key := pairKey{entry.UserID, entry.MessageID}
	if id, ok := f.db.entryKeys[key]; ok {
		entry.ID = id
		return nil
	}
	f.db.nextEntryID++
	entry.ID = f.db.nextEntryID
	c := *entry
	c.User, c.Message = nil, nil
	f.db.entries[entry.ID] = &c
	f.db.entryKeys[key] = entry.ID
	return nil
}

// ListTimeline returns the message ids on userID's timeline, newest first
func (f *Feed) ListTimeline(ctx context.Context, userID int64, offset, limit int) ([]int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	entries := make([]*models.FeedEntry, 0)
	for _, entry := range f.db.entries {
		if entry.UserID == userID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})

	if offset >= len(entries) {
		return []int64{}, nil
	}
	entries = entries[offset:]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.MessageID
	}
	return ids, nil
}

// FeedOwners returns the users holding a feed entry for messageID
func (f *Feed) FeedOwners(messageID int64) []int64 {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()

	owners := make([]int64, 0)
	for _, entry := range f.db.entries {
		if entry.MessageID == messageID {
			owners = append(owners, entry.UserID)
		}
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners
}
