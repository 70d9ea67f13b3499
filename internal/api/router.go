package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/api/social"
	"github.com/fromzero/socialbook/internal/feed"
	"github.com/fromzero/socialbook/internal/relationship"
	"github.com/fromzero/socialbook/pkg/logging"
	"github.com/fromzero/socialbook/pkg/telemetry"
)

// Dependencies are the services the API is built on
type Dependencies struct {
	Users         social.UserStore
	Notifications social.NotificationStore
	Relationships *relationship.Service
	Feed          *feed.Service
	// Health reports backing store health; nil means always healthy.
	Health func(ctx context.Context) error
}

// Router sets up API routes
type Router struct {
	handler *JSONRPCHandler
	deps    Dependencies
	logger  *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(deps Dependencies) *Router {
	router := &Router{
		handler: NewJSONRPCHandler(),
		deps:    deps,
		logger:  logging.WithComponent("api-router"),
	}

	router.registerMethods()

	return router
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(RequestID(), AccessLog())

	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)
	engine.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	// JSON-RPC endpoint
	engine.POST("/", r.handler.Handle)
}

// registerMethods registers all API methods
func (r *Router) registerMethods() {
	users := social.NewUserAPI(r.deps.Users, r.deps.Notifications)
	r.handler.RegisterMethod("user.create", users.Create)
	r.handler.RegisterMethod("user.get", users.Get)
	r.handler.RegisterMethod("user.delete", users.Delete)
	r.handler.RegisterMethod("user.notifications", users.Notifications)

	rels := social.NewRelationshipAPI(r.deps.Users, r.deps.Relationships)
	r.handler.RegisterMethod("relationship.get", rels.Get)
	r.handler.RegisterMethod("relationship.add_friend", rels.AddFriend)
	r.handler.RegisterMethod("relationship.remove_friend", rels.RemoveFriend)
	r.handler.RegisterMethod("relationship.block", rels.Block)
	r.handler.RegisterMethod("relationship.unblock", rels.Unblock)
	r.handler.RegisterMethod("relationship.list_friends", rels.ListFriends)
	r.handler.RegisterMethod("relationship.list_requests", rels.ListRequests)

	feeds := social.NewFeedAPI(r.deps.Users, r.deps.Feed)
	r.handler.RegisterMethod("feed.post", feeds.Post)
	r.handler.RegisterMethod("feed.comment", feeds.Comment)
	r.handler.RegisterMethod("feed.like", feeds.Like)
	r.handler.RegisterMethod("feed.replies", feeds.Replies)
	r.handler.RegisterMethod("feed.delete", feeds.Delete)
	r.handler.RegisterMethod("feed.timeline", feeds.Timeline)

	r.logger.Debug("JSON-RPC methods registered", zap.Int("count", r.handler.Methods()))
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	if r.deps.Health != nil {
		if err := r.deps.Health(c.Request.Context()); err != nil {
			r.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "UNAVAILABLE",
				"service": "socialbook-api",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "socialbook-api",
	})
}
