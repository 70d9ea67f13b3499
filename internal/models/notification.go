package models

import (
	"database/sql"
	"errors"
	"time"
)

// Notification records an event addressed to a user
type Notification struct {
	ID        int64          `gorm:"primaryKey;autoIncrement;column:id"`
	Type      int16          `gorm:"type:smallint;not null;column:type_id"`
	CreatedAt time.Time      `gorm:"not null;column:created_at"`
	SrcID     sql.NullInt64  `gorm:"column:src_user_id"`
	DstID     int64          `gorm:"not null;index:notifications_dst_ix;column:dst_user_id"`
	Payload   sql.NullString `gorm:"type:text;column:payload"`

	// Relationships
	Src *User `gorm:"foreignKey:SrcID;references:ID;constraint:OnDelete:CASCADE"`
	Dst *User `gorm:"foreignKey:DstID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// Notification type constants
const (
	NotifyTypeFriendRequest int16 = 1
)

// All lists every table-backed model in migration order
func All() []interface{} {
	return []interface{}{
		&User{},
		&Relationship{},
		&Message{},
		&FeedEntry{},
		&Notification{},
	}
}

// ErrDuplicate is returned by stores when a unique key is already taken
var ErrDuplicate = errors.New("duplicate record")
