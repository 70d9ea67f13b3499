package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// TimelineCache stores timeline pages as JSON lists of message ids. Each
// user has a version counter in the page keys; Invalidate bumps it so every
// cached page of that user is skipped and left to expire.
type TimelineCache struct {
	cache  *Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewTimelineCache creates a timeline cache on top of c
func NewTimelineCache(c *Cache, ttl time.Duration, logger *zap.Logger) *TimelineCache {
	return &TimelineCache{cache: c, ttl: ttl, logger: logger}
}

// GetPage returns a cached page, or false on a miss or any cache error.
// The version it looked under is returned either way, so a page rebuilt
// after a miss is stored for that version only. An empty version means the
// page must not be stored.
func (t *TimelineCache) GetPage(ctx context.Context, userID int64, page, pageSize int) ([]int64, string, bool) {
	version, err := t.version(ctx, userID)
	if err != nil {
		return nil, "", false
	}

	raw, err := t.cache.Get(ctx, pageKey(userID, version, page, pageSize))
	if err != nil {
		if !IsMiss(err) && err != ErrCacheDisabled {
			t.logger.Debug("Timeline cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil, version, false
	}

	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		t.logger.Warn("Corrupt timeline cache entry", zap.Int64("user_id", userID), zap.Error(err))
		return nil, version, false
	}
	return ids, version, true
}

// SetPage stores a page under version. A page built before an Invalidate
// lands under the old version, where no reader looks any more.
func (t *TimelineCache) SetPage(ctx context.Context, userID int64, version string, page, pageSize int, ids []int64) {
	if version == "" {
		return
	}

	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := t.cache.Set(ctx, pageKey(userID, version, page, pageSize), raw, t.ttl); err != nil {
		t.logger.Debug("Timeline cache write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// Invalidate drops every cached page of the user
func (t *TimelineCache) Invalidate(ctx context.Context, userID int64) {
	if _, err := t.cache.Incr(ctx, versionKey(userID)); err != nil && err != ErrCacheDisabled {
		t.logger.Warn("Timeline cache invalidation failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (t *TimelineCache) version(ctx context.Context, userID int64) (string, error) {
	v, err := t.cache.Get(ctx, versionKey(userID))
	if IsMiss(err) {
		return "0", nil
	}
	return v, err
}

func versionKey(userID int64) string {
	return "timeline:v:" + strconv.FormatInt(userID, 10)
}

func pageKey(userID int64, version string, page, pageSize int) string {
	uid := strconv.FormatInt(userID, 10)
	return "timeline:" + uid + ":" + HashKey(uid, version, strconv.Itoa(page), strconv.Itoa(pageSize))
}
