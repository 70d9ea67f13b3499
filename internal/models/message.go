package models

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// MaxMessageText is the longest text a message may carry
const MaxMessageText = 1024

// Message type constants
const (
	MessageTypePost    int16 = 1
	MessageTypeComment int16 = 2
	MessageTypeLike    int16 = 3
)

// Message is a post, a comment on a post or a like of a post. Comments and
// likes point at their post through ParentID and are never feed roots.
type Message struct {
	ID         int64                       `gorm:"primaryKey;autoIncrement;column:id"`
	FromUserID int64                       `gorm:"not null;index:messages_from_ix;uniqueIndex:messages_like_ux,priority:1,where:message_type = 3;column:from_user_id"`
	ToUserID   sql.NullInt64               `gorm:"index:messages_to_ix;column:to_user_id"`
	Text       string                      `gorm:"type:varchar(1024);not null;default:'';column:text"`
	Images     datatypes.JSONSlice[string] `gorm:"column:images"`
	Type       int16                       `gorm:"type:smallint;not null;default:1;column:message_type"`
	ParentID   sql.NullInt64               `gorm:"index:messages_parent_ix;uniqueIndex:messages_like_ux,priority:2,where:message_type = 3;column:parent_id"`
	Live       bool                        `gorm:"not null;default:true;column:live"`
	CreatedAt  time.Time                   `gorm:"not null;index:messages_created_ix,sort:desc;column:created_at"`

	// Relationships
	FromUser *User    `gorm:"foreignKey:FromUserID;references:ID;constraint:OnDelete:CASCADE"`
	ToUser   *User    `gorm:"foreignKey:ToUserID;references:ID;constraint:OnDelete:CASCADE"`
	Parent   *Message `gorm:"foreignKey:ParentID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "messages"
}

// IsRoot reports whether the message can head a feed entry
func (m *Message) IsRoot() bool {
	return m.Type == MessageTypePost && !m.ParentID.Valid
}

// NewPost builds a root post. Posting to yourself is a self post.
func NewPost(from int64, to *int64, text string, images []string, at time.Time) *Message {
	m := &Message{
		FromUserID: from,
		Text:       text,
		Images:     datatypes.JSONSlice[string](images),
		Type:       MessageTypePost,
		Live:       true,
		CreatedAt:  at,
	}
	if to != nil && *to != from {
		m.ToUserID = sql.NullInt64{Int64: *to, Valid: true}
	}
	return m
}

// NewComment builds a comment on a post
func NewComment(from, parent int64, text string, at time.Time) *Message {
	return &Message{
		FromUserID: from,
		Text:       text,
		Type:       MessageTypeComment,
		ParentID:   sql.NullInt64{Int64: parent, Valid: true},
		Live:       true,
		CreatedAt:  at,
	}
}

// NewLike builds a like of a post; likes carry no text
func NewLike(from, parent int64, at time.Time) *Message {
	return &Message{
		FromUserID: from,
		Type:       MessageTypeLike,
		ParentID:   sql.NullInt64{Int64: parent, Valid: true},
		Live:       true,
		CreatedAt:  at,
	}
}

// MessageTypeName returns the wire name of a message type
func MessageTypeName(t int16) string {
	switch t {
	case MessageTypePost:
		return "post"
	case MessageTypeComment:
		return "comment"
	case MessageTypeLike:
		return "like"
	default:
		return "unknown"
	}
}
