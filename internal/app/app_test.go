package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/internal/relationship"
	"github.com/fromzero/socialbook/pkg/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{URL: config.MemoryDatabaseURL},
		Feed: config.FeedConfig{
			FanoutWorkers:   2,
			DefaultPageSize: 10,
			MaxPageSize:     100,
			CacheTTL:        time.Minute,
		},
	}
}

func TestOpenBackend_InMemory(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend(ctx, memoryConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("OpenBackend() error = %v", err)
	}
	defer backend.Close()

	if err := backend.Health(ctx); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}

func TestServices_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	backend, err := OpenBackend(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenBackend() error = %v", err)
	}
	svc := NewServices(cfg, backend, nil, nil)

	alice := &models.User{Username: "alice", Email: "alice@example.com"}
	bob := &models.User{Username: "bob", Email: "bob@example.com"}
	for _, u := range []*models.User{alice, bob} {
		if err := backend.Users.Create(ctx, u); err != nil {
			t.Fatalf("Create(%s) error = %v", u.Username, err)
		}
	}

	if _, err := svc.Relationships.AddFriend(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("AddFriend() error = %v", err)
	}
	label, err := svc.Relationships.AddFriend(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("AddFriend() error = %v", err)
	}
	if label != relationship.FriendsApproved {
		t.Fatalf("label = %s, want %s", label, relationship.FriendsApproved)
	}

	post, err := svc.Feed.Post(ctx, alice.ID, nil, "hello", nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	timeline, err := svc.Feed.Timeline(ctx, bob.ID, 1, 10)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(timeline) != 1 || timeline[0].ID != post.ID {
		t.Errorf("bob's timeline = %v, want the post %d", timeline, post.ID)
	}
}
