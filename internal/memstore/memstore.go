// Package memstore keeps users, relationships, messages and feed entries in
// process memory. It follows the same key and cascade rules as the SQL schema
// and backs the server when database_url is memory://.
package memstore

import (
	"sync"

	"github.com/fromzero/socialbook/internal/models"
)

type pairKey struct {
	a, b int64
}

// DB holds every table behind one lock
type DB struct {
	mu sync.Mutex

	nextUserID    int64
	nextMessageID int64
	nextEntryID   int64
	nextNotifyID  int64

	users         map[int64]*models.User
	usernames     map[string]int64
	emails        map[string]int64
	relationships map[pairKey]*models.Relationship
	messages      map[int64]*models.Message
	entries       map[int64]*models.FeedEntry
	entryKeys     map[pairKey]int64
	notifications []*models.Notification
}

// New creates an empty in-memory database
func New() *DB {
	return &DB{
		users:         make(map[int64]*models.User),
		usernames:     make(map[string]int64),
		emails:        make(map[string]int64),
		relationships: make(map[pairKey]*models.Relationship),
		messages:      make(map[int64]*models.Message),
		entries:       make(map[int64]*models.FeedEntry),
		entryKeys:     make(map[pairKey]int64),
	}
}

// Users returns the user table
func (d *DB) Users() *Users {
	return &Users{db: d}
}

// Relationships returns the relationship table
func (d *DB) Relationships() *Relationships {
	return &Relationships{db: d}
}

// Feed returns the message and feed entry tables
func (d *DB) Feed() *Feed {
	return &Feed{db: d}
}

// Notifications returns the notification table
func (d *DB) Notifications() *Notifications {
	return &Notifications{db: d}
}

// deleteMessageLocked removes a message, its replies and every feed entry
// pointing at any of them
func (d *DB) deleteMessageLocked(id int64) {
	if _, ok := d.messages[id]; !ok {
		return
	}
	delete(d.messages, id)
	for entryID, entry := range d.entries {
		if entry.MessageID == id {
			delete(d.entries, entryID)
			delete(d.entryKeys, pairKey{entry.UserID, entry.MessageID})
		}
	}
	for childID, child := range d.messages {
		if child.ParentID.Valid && child.ParentID.Int64 == id {
			d.deleteMessageLocked(childID)
		}
	}
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyRelationship(r *models.Relationship) *models.Relationship {
	c := *r
	c.FromUser, c.ToUser = nil, nil
	return &c
}

func copyMessage(m *models.Message) *models.Message {
	c := *m
	c.FromUser, c.ToUser, c.Parent = nil, nil, nil
	if m.Images != nil {
		c.Images = append(c.Images[:0:0], m.Images...)
	}
	return &c
}
