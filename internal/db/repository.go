package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fromzero/socialbook/internal/feed"
	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/internal/relationship"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// translate maps driver errors onto the errors callers match on
func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.ErrDuplicate
	}
	return err
}

// UserRepository provides user-related database operations
type UserRepository struct {
	*Repository
}

// NewUserRepository creates a new user repository
func NewUserRepository(repo *Repository) *UserRepository {
	return &UserRepository{Repository: repo}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Where("username = ?", models.NormalizeUsername(username)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByIDs retrieves multiple users by ID
func (r *UserRepository) GetByIDs(ctx context.Context, ids []int64) ([]*models.User, error) {
	var users []*models.User
	if len(ids) == 0 {
		return users, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

// Delete removes a user; foreign keys cascade to edges, messages and entries
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, id).Error
}

// RelationshipRepository stores directed relationship edges
type RelationshipRepository struct {
	*Repository
	forUpdate bool // set inside Tx: Get locks the row it reads
}

var _ relationship.Store = (*RelationshipRepository)(nil)

// NewRelationshipRepository creates a new relationship repository
func NewRelationshipRepository(repo *Repository) *RelationshipRepository {
	return &RelationshipRepository{Repository: repo}
}

// Get retrieves the edge from fromID to toID
func (r *RelationshipRepository) Get(ctx context.Context, fromID, toID int64) (*models.Relationship, error) {
	var rel models.Relationship
	query := r.db.WithContext(ctx)
	if r.forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.
		Where("from_user_id = ? AND to_user_id = ?", fromID, toID).
		First(&rel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rel, nil
}

// Create inserts rel unless the pair already has an edge
func (r *RelationshipRepository) Create(ctx context.Context, rel *models.Relationship) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rel)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Upsert inserts rel or replaces the pair's edge
func (r *RelationshipRepository) Upsert(ctx context.Context, rel *models.Relationship) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "from_user_id"}, {Name: "to_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rel_type", "status", "created_at", "approved_at"}),
		}).
		Create(rel).Error
}

// Approve marks the pair's friend edge approved
func (r *RelationshipRepository) Approve(ctx context.Context, fromID, toID int64, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Relationship{}).
		Where("from_user_id = ? AND to_user_id = ? AND rel_type = ?", fromID, toID, models.RelTypeFriend).
		Updates(map[string]interface{}{
			"status":      models.RelStatusApproved,
			"approved_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Downgrade turns the pair's approved friend edge back into a request. Blocks
// and pending edges are left alone.
func (r *RelationshipRepository) Downgrade(ctx context.Context, fromID, toID int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Relationship{}).
		Where("from_user_id = ? AND to_user_id = ? AND rel_type = ? AND status = ?",
			fromID, toID, models.RelTypeFriend, models.RelStatusApproved).
		Updates(map[string]interface{}{
			"status":      models.RelStatusPending,
			"approved_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Delete removes the pair's edge if it has relType
func (r *RelationshipRepository) Delete(ctx context.Context, fromID, toID int64, relType int16) error {
	return r.db.WithContext(ctx).
		Where("from_user_id = ? AND to_user_id = ? AND rel_type = ?", fromID, toID, relType).
		Delete(&models.Relationship{}).Error
}

// ListFriends returns userID's approved outbound friend edges
func (r *RelationshipRepository) ListFriends(ctx context.Context, userID int64) ([]*models.Relationship, error) {
	var rels []*models.Relationship
	if err := r.db.WithContext(ctx).
		Where("from_user_id = ? AND rel_type = ? AND status = ?", userID, models.RelTypeFriend, models.RelStatusApproved).
		Order("created_at ASC, to_user_id ASC").
		Find(&rels).Error; err != nil {
		return nil, err
	}
	return rels, nil
}

// ListPendingRequests returns pending friend edges pointing at userID
func (r *RelationshipRepository) ListPendingRequests(ctx context.Context, userID int64) ([]*models.Relationship, error) {
	var rels []*models.Relationship
	if err := r.db.WithContext(ctx).
		Where("to_user_id = ? AND rel_type = ? AND status = ?", userID, models.RelTypeFriend, models.RelStatusPending).
		Order("created_at ASC, from_user_id ASC").
		Find(&rels).Error; err != nil {
		return nil, err
	}
	return rels, nil
}

// ScanFriends pages through friend edges with the given status in key order
func (r *RelationshipRepository) ScanFriends(ctx context.Context, status int16, afterFromID, afterToID int64, limit int) ([]*models.Relationship, error) {
	var rels []*models.Relationship
	if err := r.db.WithContext(ctx).
		Where("rel_type = ? AND status = ?", models.RelTypeFriend, status).
		Where("from_user_id > ? OR (from_user_id = ? AND to_user_id > ?)", afterFromID, afterFromID, afterToID).
		Order("from_user_id ASC, to_user_id ASC").
		Limit(limit).
		Find(&rels).Error; err != nil {
		return nil, err
	}
	return rels, nil
}

// Tx runs fn inside a database transaction
func (r *RelationshipRepository) Tx(ctx context.Context, fn func(relationship.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&RelationshipRepository{Repository: NewRepository(tx), forUpdate: true})
	})
}

// MessageRepository stores messages and feed entries
type MessageRepository struct {
	*Repository
}

var _ feed.Store = (*MessageRepository)(nil)

// NewMessageRepository creates a new message repository
func NewMessageRepository(repo *Repository) *MessageRepository {
	return &MessageRepository{Repository: repo}
}

// CreateMessage creates a new message
func (r *MessageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	return translate(r.db.WithContext(ctx).Create(msg).Error)
}

// GetMessage retrieves a message by ID
func (r *MessageRepository) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// GetMessages retrieves multiple messages by ID
func (r *MessageRepository) GetMessages(ctx context.Context, ids []int64) ([]*models.Message, error) {
	var messages []*models.Message
	if len(ids) == 0 {
		return messages, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteMessage removes a message; replies and feed entries cascade
func (r *MessageRepository) DeleteMessage(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.Message{}, id).Error
}

// ListReplies returns the comments and likes of a post, oldest first
func (r *MessageRepository) ListReplies(ctx context.Context, parentID int64) ([]*models.Message, error) {
	var messages []*models.Message
	if err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// FindLike returns userID's like of parentID, if any
func (r *MessageRepository) FindLike(ctx context.Context, userID, parentID int64) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).
		Where("from_user_id = ? AND parent_id = ? AND message_type = ?", userID, parentID, models.MessageTypeLike).
		First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// AddFeedEntry inserts entry unless the user already has the message
func (r *MessageRepository) AddFeedEntry(ctx context.Context, entry *models.FeedEntry) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).
		Create(entry).Error
}

// ListTimeline returns the message ids on userID's timeline, newest first
func (r *MessageRepository) ListTimeline(ctx context.Context, userID int64, offset, limit int) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&models.FeedEntry{}).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Pluck("message_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// NotificationRepository provides notification-related database operations
type NotificationRepository struct {
	*Repository
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(repo *Repository) *NotificationRepository {
	return &NotificationRepository{Repository: repo}
}

// Create creates a new notification
func (r *NotificationRepository) Create(ctx context.Context, notif *models.Notification) error {
	return r.db.WithContext(ctx).Create(notif).Error
}

// ListByRecipient returns notifications addressed to userID, newest first
func (r *NotificationRepository) ListByRecipient(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	var notifs []*models.Notification
	if err := r.db.WithContext(ctx).
		Where("dst_user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&notifs).Error; err != nil {
		return nil, err
	}
	return notifs, nil
}
