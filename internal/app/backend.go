// Package app wires configuration into stores and services for the binaries
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/api/social"
	"github.com/fromzero/socialbook/internal/db"
	"github.com/fromzero/socialbook/internal/feed"
	"github.com/fromzero/socialbook/internal/memstore"
	"github.com/fromzero/socialbook/internal/notify"
	"github.com/fromzero/socialbook/internal/relationship"
	"github.com/fromzero/socialbook/pkg/config"
)

// NotificationStore writes and lists notification rows
type NotificationStore interface {
	notify.NotificationStore
	social.NotificationStore
}

// Backend is one storage backend seen through every store interface
type Backend struct {
	Users         social.UserStore
	Relationships relationship.Store
	Feed          feed.Store
	Notifications NotificationStore
	Health        func(ctx context.Context) error
	Close         func() error
}

// OpenBackend connects to PostgreSQL, or builds the in-memory store when
// database_url is memory://
func OpenBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	if cfg.Database.InMemory() {
		logger.Warn("Using in-memory store; data is lost on exit")
		mem := memstore.New()
		return &Backend{
			Users:         mem.Users(),
			Relationships: mem.Relationships(),
			Feed:          mem.Feed(),
			Notifications: mem.Notifications(),
			Health:        func(context.Context) error { return nil },
			Close:         func() error { return nil },
		}, nil
	}

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}

	repo := db.NewRepository(database.DB)
	return &Backend{
		Users:         db.NewUserRepository(repo),
		Relationships: db.NewRelationshipRepository(repo),
		Feed:          db.NewMessageRepository(repo),
		Notifications: db.NewNotificationRepository(repo),
		Health:        database.Health,
		Close:         database.Close,
	}, nil
}
