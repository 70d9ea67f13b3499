// Package objects renders models as API response objects
package objects

import (
	"context"
	"fmt"
	"time"

	"github.com/fromzero/socialbook/internal/models"
)

// UserSource loads users in bulk
type UserSource interface {
	GetByIDs(ctx context.Context, ids []int64) ([]*models.User, error)
}

// Loader builds message and relationship objects with usernames filled in
type Loader struct {
	users UserSource
}

// NewLoader creates a new loader
func NewLoader(users UserSource) *Loader {
	return &Loader{users: users}
}

// User renders a user profile
func User(u *models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":         u.ID,
		"username":   u.Username,
		"first_name": u.FirstName.String,
		"last_name":  u.LastName.String,
		"bio":        u.Bio.String,
		"created":    formatTime(u.CreatedAt),
	}
}

// Messages renders messages in the given order
func (l *Loader) Messages(ctx context.Context, msgs []*models.Message) ([]map[string]interface{}, error) {
	if len(msgs) == 0 {
		return []map[string]interface{}{}, nil
	}

	ids := make([]int64, 0, len(msgs)*2)
	for _, msg := range msgs {
		ids = append(ids, msg.FromUserID)
		if msg.ToUserID.Valid {
			ids = append(ids, msg.ToUserID.Int64)
		}
	}
	names, err := l.usernames(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]map[string]interface{}, len(msgs))
	for i, msg := range msgs {
		result[i] = renderMessage(msg, names)
	}
	return result, nil
}

// Message renders one message
func (l *Loader) Message(ctx context.Context, msg *models.Message) (map[string]interface{}, error) {
	result, err := l.Messages(ctx, []*models.Message{msg})
	if err != nil {
		return nil, err
	}
	return result[0], nil
}

// Relationships renders edges as the profile of the user on the other end,
// with the edge's timestamps
func (l *Loader) Relationships(ctx context.Context, rels []*models.Relationship, other func(*models.Relationship) int64) ([]map[string]interface{}, error) {
	if len(rels) == 0 {
		return []map[string]interface{}{}, nil
	}

	ids := make([]int64, len(rels))
	for i, rel := range rels {
		ids[i] = other(rel)
	}
	users, err := l.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	byID := make(map[int64]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	result := make([]map[string]interface{}, 0, len(rels))
	for _, rel := range rels {
		u, ok := byID[other(rel)]
		if !ok {
			continue
		}
		obj := User(u)
		obj["requested"] = formatTime(rel.CreatedAt)
		if rel.ApprovedAt.Valid {
			obj["approved"] = formatTime(rel.ApprovedAt.Time)
		}
		result = append(result, obj)
	}
	return result, nil
}

func (l *Loader) usernames(ctx context.Context, ids []int64) (map[int64]string, error) {
	users, err := l.users.GetByIDs(ctx, unique(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}

func renderMessage(msg *models.Message, names map[int64]string) map[string]interface{} {
	images := []string(msg.Images)
	if images == nil {
		images = []string{}
	}

	obj := map[string]interface{}{
		"id":      msg.ID,
		"type":    models.MessageTypeName(msg.Type),
		"author":  names[msg.FromUserID],
		"text":    msg.Text,
		"images":  images,
		"live":    msg.Live,
		"created": formatTime(msg.CreatedAt),
	}
	if msg.ToUserID.Valid {
		obj["to"] = names[msg.ToUserID.Int64]
	}
	if msg.ParentID.Valid {
		obj["parent_id"] = msg.ParentID.Int64
	}
	return obj
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}
