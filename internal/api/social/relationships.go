package social

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/fromzero/socialbook/internal/api/objects"
	"github.com/fromzero/socialbook/internal/api/params"
	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/internal/relationship"
)

// RelationshipAPI provides friend and block methods
type RelationshipAPI struct {
	users   UserStore
	service *relationship.Service
	loader  *objects.Loader
}

// NewRelationshipAPI creates a new relationship API
func NewRelationshipAPI(users UserStore, service *relationship.Service) *RelationshipAPI {
	return &RelationshipAPI{
		users:   users,
		service: service,
		loader:  objects.NewLoader(users),
	}
}

type command func(ctx context.Context, actorID, targetID int64) (relationship.Label, error)

// Get handles relationship.get
func (r *RelationshipAPI) Get(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return r.run(c, raw, r.service.ResolveUsers)
}

// AddFriend handles relationship.add_friend
func (r *RelationshipAPI) AddFriend(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return r.run(c, raw, r.service.AddFriend)
}

// RemoveFriend handles relationship.remove_friend
func (r *RelationshipAPI) RemoveFriend(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return r.run(c, raw, r.service.RemoveFriend)
}

// Block handles relationship.block
func (r *RelationshipAPI) Block(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return r.run(c, raw, r.service.Block)
}

// Unblock handles relationship.unblock
func (r *RelationshipAPI) Unblock(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	return r.run(c, raw, r.service.Unblock)
}

// ListFriends handles relationship.list_friends
func (r *RelationshipAPI) ListFriends(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	actor, err := userParam(ctx, r.users, p, "actor")
	if err != nil {
		return nil, err
	}
	rels, err := r.service.Friends(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return r.loader.Relationships(ctx, rels, func(rel *models.Relationship) int64 { return rel.ToUserID })
}

// ListRequests handles relationship.list_requests
func (r *RelationshipAPI) ListRequests(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	actor, err := userParam(ctx, r.users, p, "actor")
	if err != nil {
		return nil, err
	}
	rels, err := r.service.PendingRequests(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return r.loader.Relationships(ctx, rels, func(rel *models.Relationship) int64 { return rel.FromUserID })
}

func (r *RelationshipAPI) run(c *gin.Context, raw json.RawMessage, cmd command) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	actor, err := userParam(ctx, r.users, p, "actor")
	if err != nil {
		return nil, err
	}
	target, err := userParam(ctx, r.users, p, "username")
	if err != nil {
		return nil, err
	}

	label, err := cmd(ctx, actor.ID, target.ID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"actor":    actor.Username,
		"username": target.Username,
		"label":    string(label),
	}, nil
}
