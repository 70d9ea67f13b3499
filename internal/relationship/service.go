package relationship

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/pkg/telemetry"
)

// Service runs relationship queries and commands on behalf of an actor
type Service struct {
	store    Store
	users    Users
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
	commands metric.Int64Counter
}

// NewService creates a new relationship service. notifier may be nil.
func NewService(store Store, users Users, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		users:    users,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		commands: telemetry.Counter("relationship.commands", "Relationship commands by command and resulting label"),
	}
}

// Resolve returns the label of other as seen by viewer
func (s *Service) Resolve(ctx context.Context, viewerID, otherID int64) (Label, error) {
	return resolve(ctx, s.store, viewerID, otherID)
}

// ResolveUsers is Resolve with existence checks on both users
func (s *Service) ResolveUsers(ctx context.Context, viewerID, otherID int64) (Label, error) {
	if _, _, err := s.lookupPair(ctx, viewerID, otherID); err != nil {
		return "", err
	}
	return s.Resolve(ctx, viewerID, otherID)
}

func resolve(ctx context.Context, store Store, viewerID, otherID int64) (Label, error) {
	if viewerID == otherID {
		return Same, nil
	}

	forward, err := store.Get(ctx, viewerID, otherID)
	if err != nil {
		return "", fmt.Errorf("failed to load relationship: %w", err)
	}
	if forward != nil {
		return Resolve(viewerID, otherID, forward, nil), nil
	}

	reverse, err := store.Get(ctx, otherID, viewerID)
	if err != nil {
		return "", fmt.Errorf("failed to load reverse relationship: %w", err)
	}
	return Resolve(viewerID, otherID, nil, reverse), nil
}

// AddFriend sends a friend request to target, or accepts target's pending
// request. Requests crossing each other become a friendship. Any other state
// is left untouched.
func (s *Service) AddFriend(ctx context.Context, actorID, targetID int64) (Label, error) {
	ctx, span := telemetry.StartSpan(ctx, "relationship.add_friend")
	defer span.End()

	actor, target, err := s.lookupPair(ctx, actorID, targetID)
	if err != nil {
		return "", err
	}

	label, err := s.Resolve(ctx, actorID, targetID)
	if err != nil {
		return "", err
	}

	switch label {
	case ReverseFriendsPending:
		err = s.store.Tx(ctx, func(tx Store) error {
			now := s.now()
			ok, err := tx.Approve(ctx, targetID, actorID, now)
			if err != nil {
				return fmt.Errorf("failed to approve friend request: %w", err)
			}
			if !ok {
				// the request was withdrawn or replaced by a block meanwhile
				return nil
			}
			if err := tx.Upsert(ctx, models.NewApprovedFriend(actorID, targetID, now)); err != nil {
				return fmt.Errorf("failed to create friend edge: %w", err)
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		s.logger.Debug("Friend request accepted",
			zap.Int64("actor", actorID),
			zap.Int64("target", targetID))

	case None:
		var created, matched bool
		err = s.store.Tx(ctx, func(tx Store) error {
			var err error
			created, err = tx.Create(ctx, models.NewFriendRequest(actorID, targetID, s.now()))
			if err != nil {
				return fmt.Errorf("failed to create friend request: %w", err)
			}
			// target may have sent a request of their own meanwhile
			matched, err = matchRequests(ctx, tx, actorID, targetID, s.now())
			return err
		})
		if err != nil {
			return "", err
		}
		switch {
		case matched:
			s.logger.Debug("Crossed friend requests matched",
				zap.Int64("actor", actorID),
				zap.Int64("target", targetID))
		case created:
			s.logger.Debug("Friend request sent",
				zap.Int64("actor", actorID),
				zap.Int64("target", targetID))
			s.notify(ctx, actor, target)
		}

	case FriendsPending:
		// a request from target crossing ours is an acceptance
		var matched bool
		err = s.store.Tx(ctx, func(tx Store) error {
			var err error
			matched, err = matchRequests(ctx, tx, actorID, targetID, s.now())
			return err
		})
		if err != nil {
			return "", err
		}
		if matched {
			s.logger.Debug("Crossed friend requests matched",
				zap.Int64("actor", actorID),
				zap.Int64("target", targetID))
		}
	}

	return s.finish(ctx, "add_friend", actorID, targetID)
}

// RemoveFriend withdraws a request, rejects one, or ends a friendship
func (s *Service) RemoveFriend(ctx context.Context, actorID, targetID int64) (Label, error) {
	ctx, span := telemetry.StartSpan(ctx, "relationship.remove_friend")
	defer span.End()

	if _, _, err := s.lookupPair(ctx, actorID, targetID); err != nil {
		return "", err
	}

	label, err := s.Resolve(ctx, actorID, targetID)
	if err != nil {
		return "", err
	}

	if label.IsFriendship() {
		if err := s.store.Tx(ctx, func(tx Store) error {
			return deleteFriendEdges(ctx, tx, actorID, targetID)
		}); err != nil {
			return "", err
		}
	}

	return s.finish(ctx, "remove_friend", actorID, targetID)
}

// Block drops any friendship between actor and target and records a block
// from actor to target
func (s *Service) Block(ctx context.Context, actorID, targetID int64) (Label, error) {
	ctx, span := telemetry.StartSpan(ctx, "relationship.block")
	defer span.End()

	if _, _, err := s.lookupPair(ctx, actorID, targetID); err != nil {
		return "", err
	}
	if actorID == targetID {
		return Same, nil
	}

	err := s.store.Tx(ctx, func(tx Store) error {
		if err := deleteFriendEdges(ctx, tx, actorID, targetID); err != nil {
			return err
		}
		if err := tx.Upsert(ctx, models.NewBlock(actorID, targetID, s.now())); err != nil {
			return fmt.Errorf("failed to create block: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return s.finish(ctx, "block", actorID, targetID)
}

// Unblock removes actor's block of target. A block held by target is kept.
func (s *Service) Unblock(ctx context.Context, actorID, targetID int64) (Label, error) {
	ctx, span := telemetry.StartSpan(ctx, "relationship.unblock")
	defer span.End()

	if _, _, err := s.lookupPair(ctx, actorID, targetID); err != nil {
		return "", err
	}

	label, err := s.Resolve(ctx, actorID, targetID)
	if err != nil {
		return "", err
	}

	if label == Blocked {
		if err := s.store.Delete(ctx, actorID, targetID, models.RelTypeBlock); err != nil {
			return "", fmt.Errorf("failed to delete block: %w", err)
		}
	}

	return s.finish(ctx, "unblock", actorID, targetID)
}

// Friends returns the approved outbound friend edges of a user
func (s *Service) Friends(ctx context.Context, userID int64) ([]*models.Relationship, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListFriends(ctx, userID)
}

// PendingRequests returns friend requests waiting for the user's answer
func (s *Service) PendingRequests(ctx context.Context, userID int64) ([]*models.Relationship, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListPendingRequests(ctx, userID)
}

// matchRequests approves both edges when a and b have pending friend
// requests out to each other, and reports whether it did.
func matchRequests(ctx context.Context, tx Store, a, b int64, now time.Time) (bool, error) {
	forward, err := tx.Get(ctx, a, b)
	if err != nil {
		return false, fmt.Errorf("failed to load friend request: %w", err)
	}
	if !forward.IsFriend() || forward.IsApproved() {
		return false, nil
	}
	reverse, err := tx.Get(ctx, b, a)
	if err != nil {
		return false, fmt.Errorf("failed to load reverse friend request: %w", err)
	}
	if !reverse.IsFriend() || reverse.IsApproved() {
		return false, nil
	}

	if _, err := tx.Approve(ctx, a, b, now); err != nil {
		return false, fmt.Errorf("failed to approve friend request: %w", err)
	}
	if _, err := tx.Approve(ctx, b, a, now); err != nil {
		return false, fmt.Errorf("failed to approve reverse friend request: %w", err)
	}
	return true, nil
}

func deleteFriendEdges(ctx context.Context, store Store, a, b int64) error {
	if err := store.Delete(ctx, a, b, models.RelTypeFriend); err != nil {
		return fmt.Errorf("failed to delete friend edge: %w", err)
	}
	if err := store.Delete(ctx, b, a, models.RelTypeFriend); err != nil {
		return fmt.Errorf("failed to delete reverse friend edge: %w", err)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, command string, actorID, targetID int64) (Label, error) {
	label, err := s.Resolve(ctx, actorID, targetID)
	if err != nil {
		return "", err
	}
	s.commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("label", string(label)),
	))
	return label, nil
}

func (s *Service) notify(ctx context.Context, from, to *models.User) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.FriendRequested(ctx, from, to); err != nil {
		s.logger.Warn("Friend request notification failed",
			zap.Int64("from", from.ID),
			zap.Int64("to", to.ID),
			zap.Error(err))
	}
}

func (s *Service) lookupPair(ctx context.Context, actorID, targetID int64) (*models.User, *models.User, error) {
	actor, err := s.lookup(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	if actorID == targetID {
		return actor, actor, nil
	}
	target, err := s.lookup(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}
	return actor, target, nil
}

func (s *Service) requireUser(ctx context.Context, id int64) error {
	_, err := s.lookup(ctx, id)
	return err
}

func (s *Service) lookup(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return user, nil
}
