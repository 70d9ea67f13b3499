package app

import (
	"github.com/fromzero/socialbook/internal/feed"
	"github.com/fromzero/socialbook/internal/relationship"
	"github.com/fromzero/socialbook/pkg/config"
	"github.com/fromzero/socialbook/pkg/logging"
)

// Services are the domain services built on a backend
type Services struct {
	Relationships *relationship.Service
	Feed          *feed.Service
}

// NewServices builds the relationship and feed services. notifier and cache
// may be nil.
func NewServices(cfg *config.Config, backend *Backend, notifier relationship.Notifier, cache feed.TimelineCache) *Services {
	rels := relationship.NewService(
		backend.Relationships,
		backend.Users,
		notifier,
		logging.WithComponent("relationship"),
	)

	publisher := feed.NewPublisher(
		backend.Feed,
		rels,
		cache,
		cfg.Feed.FanoutWorkers,
		logging.WithComponent("fanout"),
	)

	feeds := feed.NewService(
		backend.Feed,
		backend.Users,
		rels,
		publisher,
		cache,
		feed.Options{
			DefaultPageSize: cfg.Feed.DefaultPageSize,
			MaxPageSize:     cfg.Feed.MaxPageSize,
		},
		logging.WithComponent("feed"),
	)

	return &Services{Relationships: rels, Feed: feeds}
}
