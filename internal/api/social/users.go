package social

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/fromzero/socialbook/internal/api/objects"
	"github.com/fromzero/socialbook/internal/api/params"
	"github.com/fromzero/socialbook/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.-]{1,32}$`)

// UserAPI provides account methods
type UserAPI struct {
	users         UserStore
	notifications NotificationStore
}

// NewUserAPI creates a new user API. notifications may be nil.
func NewUserAPI(users UserStore, notifications NotificationStore) *UserAPI {
	return &UserAPI{users: users, notifications: notifications}
}

// Create handles user.create
func (u *UserAPI) Create(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	username, err := p.RequireString("username")
	if err != nil {
		return nil, err
	}
	email, err := p.RequireString("email")
	if err != nil {
		return nil, err
	}

	user := &models.User{Username: username, Email: email}
	user.Normalize()

	if !usernamePattern.MatchString(user.Username) {
		return nil, fmt.Errorf("%w: username must be 1-32 characters of a-z, 0-9, '_', '.', '-'", params.ErrInvalid)
	}
	if !strings.Contains(user.Email, "@") || len(user.Email) > 254 {
		return nil, fmt.Errorf("%w: invalid email", params.ErrInvalid)
	}

	fields := []struct {
		key    string
		max    int
		target *sql.NullString
	}{
		{"first_name", 50, &user.FirstName},
		{"last_name", 50, &user.LastName},
		{"bio", 160, &user.Bio},
	}
	for _, f := range fields {
		v, err := p.String(f.key)
		if err != nil {
			return nil, err
		}
		v = strings.TrimSpace(v)
		if utf8.RuneCountInString(v) > f.max {
			return nil, fmt.Errorf("%w: %s is longer than %d characters", params.ErrInvalid, f.key, f.max)
		}
		if v != "" {
			*f.target = sql.NullString{String: v, Valid: true}
		}
	}

	if err := u.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, fmt.Errorf("username or email already registered: %w", err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return objects.User(user), nil
}

// Get handles user.get
func (u *UserAPI) Get(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	user, err := userParam(c.Request.Context(), u.users, p, "username")
	if err != nil {
		return nil, err
	}
	return objects.User(user), nil
}

// Delete handles user.delete. The actor deletes their own account.
func (u *UserAPI) Delete(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	actor, err := userParam(ctx, u.users, p, "actor")
	if err != nil {
		return nil, err
	}
	if err := u.users.Delete(ctx, actor.ID); err != nil {
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}
	return map[string]interface{}{"deleted": true}, nil
}

// Notifications handles user.notifications
func (u *UserAPI) Notifications(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	limit, err := p.Int("limit", 50)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 100 {
		return nil, fmt.Errorf("%w: limit must be between 1 and 100", params.ErrInvalid)
	}

	ctx := c.Request.Context()
	actor, err := userParam(ctx, u.users, p, "actor")
	if err != nil {
		return nil, err
	}
	if u.notifications == nil {
		return []interface{}{}, nil
	}

	notifs, err := u.notifications.ListByRecipient(ctx, actor.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}

	result := make([]interface{}, 0, len(notifs))
	for _, n := range notifs {
		var payload interface{}
		if n.Payload.Valid {
			if err := json.Unmarshal([]byte(n.Payload.String), &payload); err != nil {
				payload = n.Payload.String
			}
		}
		result = append(result, map[string]interface{}{
			"id":      n.ID,
			"type":    n.Type,
			"created": n.CreatedAt.UTC().Format("2006-01-02T15:04:05"),
			"payload": payload,
		})
	}
	return result, nil
}
