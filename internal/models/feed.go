package models

import (
	"time"
)

// FeedEntry is a denormalized pointer from a user's timeline to a message
type FeedEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	UserID    int64     `gorm:"not null;uniqueIndex:feed_entries_ux1,priority:1;index:feed_entries_timeline_ix,priority:1;column:user_id"`
	MessageID int64     `gorm:"not null;uniqueIndex:feed_entries_ux1,priority:2;column:message_id"`
	CreatedAt time.Time `gorm:"not null;index:feed_entries_timeline_ix,priority:2,sort:desc;column:created_at"`

	// Relationships
	User    *User    `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
	Message *Message `gorm:"foreignKey:MessageID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for FeedEntry
func (FeedEntry) TableName() string {
	return "feed_entries"
}
