package models

import (
	"database/sql"
	"time"
)

// Relationship is a directed edge between two users. The composite primary
// key allows at most one edge per ordered pair.
type Relationship struct {
	FromUserID int64        `gorm:"primaryKey;autoIncrement:false;index:relationships_lookup_ix,priority:1;column:from_user_id"`
	ToUserID   int64        `gorm:"primaryKey;autoIncrement:false;index:relationships_to_ix;column:to_user_id"`
	Type       int16        `gorm:"type:smallint;not null;index:relationships_lookup_ix,priority:2;column:rel_type"`
	Status     int16        `gorm:"type:smallint;not null;default:0;index:relationships_lookup_ix,priority:3;column:status"`
	CreatedAt  time.Time    `gorm:"not null;column:created_at"`
	ApprovedAt sql.NullTime `gorm:"column:approved_at"`

	// Relationships
	FromUser *User `gorm:"foreignKey:FromUserID;references:ID;constraint:OnDelete:CASCADE"`
	ToUser   *User `gorm:"foreignKey:ToUserID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Relationship
func (Relationship) TableName() string {
	return "relationships"
}

// Relationship type constants
const (
	RelTypeFriend int16 = 1
	RelTypeBlock  int16 = -1
)

// Relationship status constants
const (
	RelStatusPending  int16 = 0
	RelStatusApproved int16 = 1
)

// IsFriend reports whether the edge is a friend edge
func (r *Relationship) IsFriend() bool {
	return r != nil && r.Type == RelTypeFriend
}

// IsBlock reports whether the edge is a block edge
func (r *Relationship) IsBlock() bool {
	return r != nil && r.Type == RelTypeBlock
}

// IsApproved reports whether the edge is approved
func (r *Relationship) IsApproved() bool {
	return r != nil && r.Status == RelStatusApproved
}

// NewFriendRequest builds a pending friend edge
func NewFriendRequest(from, to int64, at time.Time) *Relationship {
	return &Relationship{
		FromUserID: from,
		ToUserID:   to,
		Type:       RelTypeFriend,
		Status:     RelStatusPending,
		CreatedAt:  at,
	}
}

// NewApprovedFriend builds an approved friend edge
func NewApprovedFriend(from, to int64, at time.Time) *Relationship {
	return &Relationship{
		FromUserID: from,
		ToUserID:   to,
		Type:       RelTypeFriend,
		Status:     RelStatusApproved,
		CreatedAt:  at,
		ApprovedAt: sql.NullTime{Time: at, Valid: true},
	}
}

// NewBlock builds a block edge; blocks are approved on creation
func NewBlock(from, to int64, at time.Time) *Relationship {
	return &Relationship{
		FromUserID: from,
		ToUserID:   to,
		Type:       RelTypeBlock,
		Status:     RelStatusApproved,
		CreatedAt:  at,
		ApprovedAt: sql.NullTime{Time: at, Valid: true},
	}
}
