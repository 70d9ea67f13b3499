package memstore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/internal/relationship"
)

// Relationships is the in-memory relationship table. Inside Tx the lock is
// already held and locked is set.
type Relationships struct {
	db     *DB
	locked bool
}

var _ relationship.Store = (*Relationships)(nil)

func (r *Relationships) lock() func() {
	if r.locked {
		return func() {}
	}
	r.db.mu.Lock()
	return r.db.mu.Unlock
}

// Get retrieves the edge from fromID to toID
func (r *Relationships) Get(ctx context.Context, fromID, toID int64) (*models.Relationship, error) {
	defer r.lock()()

	if rel, ok := r.db.relationships[pairKey{fromID, toID}]; ok {
		return copyRelationship(rel), nil
	}
	return nil, nil
}

// Create inserts rel unless the pair already has an edge
func (r *Relationships) Create(ctx context.Context, rel *models.Relationship) (bool, error) {
	defer r.lock()()

	key := pairKey{rel.FromUserID, rel.ToUserID}
	if _, ok := r.db.relationships[key]; ok {
		return false, nil
	}
	r.db.relationships[key] = copyRelationship(rel)
	return true, nil
}

// Upsert inserts rel or replaces the pair's edge
func (r *Relationships) Upsert(ctx context.Context, rel *models.Relationship) error {
	defer r.lock()()

	r.db.relationships[pairKey{rel.FromUserID, rel.ToUserID}] = copyRelationship(rel)
	return nil
}

// Approve marks the pair's friend edge approved
func (r *Relationships) Approve(ctx context.Context, fromID, toID int64, at time.Time) (bool, error) {
	defer r.lock()()

	rel, ok := r.db.relationships[pairKey{fromID, toID}]
	if !ok || rel.Type != models.RelTypeFriend {
		return false, nil
	}
	rel.Status = models.RelStatusApproved
	rel.ApprovedAt = sql.NullTime{Time: at, Valid: true}
	return true, nil
}

// Downgrade turns the pair's approved friend edge back into a request
func (r *Relationships) Downgrade(ctx context.Context, fromID, toID int64) (bool, error) {
	defer r.lock()()

	rel, ok := r.db.relationships[pairKey{fromID, toID}]
	if !ok || rel.Type != models.RelTypeFriend || rel.Status != models.RelStatusApproved {
		return false, nil
	}
	rel.Status = models.RelStatusPending
	rel.ApprovedAt = sql.NullTime{}
	return true, nil
}

// Delete removes the pair's edge if it has relType
func (r *Relationships) Delete(ctx context.Context, fromID, toID int64, relType int16) error {
	defer r.lock()()

	key := pairKey{fromID, toID}
	if rel, ok := r.db.relationships[key]; ok && rel.Type == relType {
		delete(r.db.relationships, key)
	}
	return nil
}

// ListFriends returns userID's approved outbound friend edges
func (r *Relationships) ListFriends(ctx context.Context, userID int64) ([]*models.Relationship, error) {
	defer r.lock()()

	return r.filter(func(rel *models.Relationship) bool {
		return rel.FromUserID == userID && rel.Type == models.RelTypeFriend && rel.Status == models.RelStatusApproved
	}), nil
}

// ListPendingRequests returns pending friend edges pointing at userID
func (r *Relationships) ListPendingRequests(ctx context.Context, userID int64) ([]*models.Relationship, error) {
	defer r.lock()()

	return r.filter(func(rel *models.Relationship) bool {
		return rel.ToUserID == userID && rel.Type == models.RelTypeFriend && rel.Status == models.RelStatusPending
	}), nil
}

// ScanFriends pages through friend edges with status in key order
func (r *Relationships) ScanFriends(ctx context.Context, status int16, afterFromID, afterToID int64, limit int) ([]*models.Relationship, error) {
	defer r.lock()()

	edges := make([]*models.Relationship, 0)
	for key, rel := range r.db.relationships {
		if rel.Type != models.RelTypeFriend || rel.Status != status {
			continue
		}
		if key.a < afterFromID || (key.a == afterFromID && key.b <= afterToID) {
			continue
		}
		edges = append(edges, copyRelationship(rel))
	}
	sortByKey(edges)
	if len(edges) > limit {
		edges = edges[:limit]
	}
	return edges, nil
}

// Tx runs fn under the table lock and restores the table if fn fails
func (r *Relationships) Tx(ctx context.Context, fn func(relationship.Store) error) error {
	if r.locked {
		return fn(r)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	snapshot := make(map[pairKey]*models.Relationship, len(r.db.relationships))
	for k, v := range r.db.relationships {
		snapshot[k] = copyRelationship(v)
	}

	if err := fn(&Relationships{db: r.db, locked: true}); err != nil {
		r.db.relationships = snapshot
		return err
	}
	return nil
}

// Count returns the number of stored edges
func (r *Relationships) Count() int {
	defer r.lock()()
	return len(r.db.relationships)
}

func (r *Relationships) filter(keep func(*models.Relationship) bool) []*models.Relationship {
	edges := make([]*models.Relationship, 0)
	for _, rel := range r.db.relationships {
		if keep(rel) {
			edges = append(edges, copyRelationship(rel))
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.Before(edges[j].CreatedAt)
		}
		return less(edges[i], edges[j])
	})
	return edges
}

func sortByKey(edges []*models.Relationship) {
	sort.Slice(edges, func(i, j int) bool { return less(edges[i], edges[j]) })
}

func less(a, b *models.Relationship) bool {
	if a.FromUserID != b.FromUserID {
		return a.FromUserID < b.FromUserID
	}
	return a.ToUserID < b.ToUserID
}
