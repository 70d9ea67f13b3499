package social

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/fromzero/socialbook/internal/api/objects"
	"github.com/fromzero/socialbook/internal/api/params"
	"github.com/fromzero/socialbook/internal/feed"
)

// FeedAPI provides message and timeline methods
type FeedAPI struct {
	users   UserStore
	service *feed.Service
	loader  *objects.Loader
}

// NewFeedAPI creates a new feed API
func NewFeedAPI(users UserStore, service *feed.Service) *FeedAPI {
	return &FeedAPI{
		users:   users,
		service: service,
		loader:  objects.NewLoader(users),
	}
}

// Post handles feed.post. "to" names the wall owner and defaults to the actor.
func (f *FeedAPI) Post(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	actor, err := userParam(ctx, f.users, p, "actor")
	if err != nil {
		return nil, err
	}

	var toID *int64
	toName, err := p.String("to")
	if err != nil {
		return nil, err
	}
	if toName != "" {
		to, err := lookupUser(ctx, f.users, toName)
		if err != nil {
			return nil, err
		}
		toID = &to.ID
	}

	text, err := p.String("text")
	if err != nil {
		return nil, err
	}
	images, err := p.Strings("images")
	if err != nil {
		return nil, err
	}

	msg, err := f.service.Post(ctx, actor.ID, toID, text, images)
	if err != nil {
		return nil, err
	}
	return f.loader.Message(ctx, msg)
}

// Comment handles feed.comment
func (f *FeedAPI) Comment(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	actor, err := userParam(ctx, f.users, p, "actor")
	if err != nil {
		return nil, err
	}
	postID, err := p.RequireInt64("post_id")
	if err != nil {
		return nil, err
	}
	text, err := p.String("text")
	if err != nil {
		return nil, err
	}

	msg, err := f.service.Comment(ctx, actor.ID, postID, text)
	if err != nil {
		return nil, err
	}
	return f.loader.Message(ctx, msg)
}

// Like handles feed.like
func (f *FeedAPI) Like(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	actor, err := userParam(ctx, f.users, p, "actor")
	if err != nil {
		return nil, err
	}
	postID, err := p.RequireInt64("post_id")
	if err != nil {
		return nil, err
	}

	msg, err := f.service.Like(ctx, actor.ID, postID)
	if err != nil {
		return nil, err
	}
	return f.loader.Message(ctx, msg)
}

// Replies handles feed.replies
func (f *FeedAPI) Replies(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	postID, err := p.RequireInt64("post_id")
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	msgs, err := f.service.Replies(ctx, postID)
	if err != nil {
		return nil, err
	}
	return f.loader.Messages(ctx, msgs)
}

// Delete handles feed.delete
func (f *FeedAPI) Delete(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	actor, err := userParam(ctx, f.users, p, "actor")
	if err != nil {
		return nil, err
	}
	messageID, err := p.RequireInt64("message_id")
	if err != nil {
		return nil, err
	}

	if err := f.service.Delete(ctx, actor.ID, messageID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"deleted": true}, nil
}

// Timeline handles feed.timeline
func (f *FeedAPI) Timeline(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	p, err := params.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	actor, err := userParam(ctx, f.users, p, "actor")
	if err != nil {
		return nil, err
	}
	page, err := p.Int("page", 1)
	if err != nil {
		return nil, err
	}
	pageSize, err := p.Int("page_size", 0)
	if err != nil {
		return nil, err
	}

	msgs, err := f.service.Timeline(ctx, actor.ID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return f.loader.Messages(ctx, msgs)
}
