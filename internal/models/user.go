package models

import (
	"database/sql"
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is a registered account. Username and email are stored lowercased.
type User struct {
	ID        int64          `gorm:"primaryKey;autoIncrement;column:id"`
	Username  string         `gorm:"type:varchar(32);not null;uniqueIndex:users_username_ux;column:username"`
	Email     string         `gorm:"type:varchar(254);not null;uniqueIndex:users_email_ux;column:email"`
	FirstName sql.NullString `gorm:"type:varchar(50);column:first_name"`
	LastName  sql.NullString `gorm:"type:varchar(50);column:last_name"`
	Bio       sql.NullString `gorm:"type:varchar(160);column:bio"`
	CreatedAt time.Time      `gorm:"not null;index:users_created_ix,sort:desc;column:created_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// Normalize lowercases the unique identity fields
func (u *User) Normalize() {
	u.Username = NormalizeUsername(u.Username)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
}

// BeforeSave keeps username and email lowercased on every write
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Normalize()
	return nil
}

// NormalizeUsername returns the canonical form used for lookups
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
