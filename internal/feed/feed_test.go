package feed_test

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/feed"
	"github.com/fromzero/socialbook/internal/memstore"
	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/internal/relationship"
)

// flakyStore fails feed entry writes for selected users. afterList runs
// once, after the next timeline read and before its ids are returned.
type flakyStore struct {
	feed.Store
	failFor   map[int64]bool
	afterList func()
}

func (s *flakyStore) ListTimeline(ctx context.Context, userID int64, offset, limit int) ([]int64, error) {
	ids, err := s.Store.ListTimeline(ctx, userID, offset, limit)
	if s.afterList != nil {
		hook := s.afterList
		s.afterList = nil
		hook()
	}
	return ids, err
}

func (s *flakyStore) AddFeedEntry(ctx context.Context, entry *models.FeedEntry) error {
	if s.failFor[entry.UserID] {
		return errors.New("write failed")
	}
	return s.Store.AddFeedEntry(ctx, entry)
}

// memCache is a TimelineCache backed by a map, versioned per user like the
// redis cache
type memCache struct {
	mu          sync.Mutex
	pages       map[[4]int64][]int64
	versions    map[int64]int64
	invalidated map[int64]int
}

func newMemCache() *memCache {
	return &memCache{
		pages:       make(map[[4]int64][]int64),
		versions:    make(map[int64]int64),
		invalidated: make(map[int64]int),
	}
}

func (c *memCache) GetPage(ctx context.Context, userID int64, page, pageSize int) ([]int64, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	version := c.versions[userID]
	ids, ok := c.pages[[4]int64{userID, version, int64(page), int64(pageSize)}]
	return ids, strconv.FormatInt(version, 10), ok
}

func (c *memCache) SetPage(ctx context.Context, userID int64, version string, page, pageSize int, ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return
	}
	c.pages[[4]int64{userID, v, int64(page), int64(pageSize)}] = ids
}

func (c *memCache) Invalidate(ctx context.Context, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated[userID]++
	c.versions[userID]++
}

type fixture struct {
	ctx   context.Context
	db    *memstore.DB
	store *flakyStore
	cache *memCache
	rels  *relationship.Service
	svc   *feed.Service
	users map[string]int64
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()

	db := memstore.New()
	f := &fixture{
		ctx:   context.Background(),
		db:    db,
		store: &flakyStore{Store: db.Feed(), failFor: map[int64]bool{}},
		cache: newMemCache(),
		users: make(map[string]int64),
	}
	f.rels = relationship.NewService(db.Relationships(), db.Users(), nil, zap.NewNop())
	publisher := feed.NewPublisher(f.store, f.rels, f.cache, 4, zap.NewNop())
	f.svc = feed.NewService(f.store, db.Users(), f.rels, publisher, f.cache, feed.Options{}, zap.NewNop())

	for _, name := range names {
		u := &models.User{Username: name, Email: name + "@example.com"}
		if err := db.Users().Create(f.ctx, u); err != nil {
			t.Fatalf("failed to create user %s: %v", name, err)
		}
		f.users[name] = u.ID
	}
	return f
}

func (f *fixture) id(name string) int64 {
	return f.users[name]
}

func (f *fixture) befriend(t *testing.T, a, b string) {
	t.Helper()
	if _, err := f.rels.AddFriend(f.ctx, f.id(a), f.id(b)); err != nil {
		t.Fatalf("AddFriend(%s, %s) error = %v", a, b, err)
	}
	if _, err := f.rels.AddFriend(f.ctx, f.id(b), f.id(a)); err != nil {
		t.Fatalf("AddFriend(%s, %s) error = %v", b, a, err)
	}
}

func (f *fixture) post(t *testing.T, author, text string) *models.Message {
	t.Helper()
	msg, err := f.svc.Post(f.ctx, f.id(author), nil, text, nil)
	if err != nil {
		t.Fatalf("Post(%s) error = %v", author, err)
	}
	return msg
}

// owners returns the usernames holding a feed entry for msg
func (f *fixture) owners(msg *models.Message) []string {
	names := make(map[int64]string, len(f.users))
	for name, id := range f.users {
		names[id] = name
	}
	var owners []string
	for _, id := range f.db.Feed().FeedOwners(msg.ID) {
		owners = append(owners, names[id])
	}
	return owners
}

func expectOwners(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("feed owners = %v, want %v", got, want)
	}
}

func TestPublish_ApprovedFriendsOnly(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	f.befriend(t, "alice", "bob")
	// pending either way is not a friendship
	f.rels.AddFriend(f.ctx, f.id("alice"), f.id("carol"))
	f.rels.AddFriend(f.ctx, f.id("dave"), f.id("alice"))

	msg := f.post(t, "alice", "hello")

	expectOwners(t, f.owners(msg), "alice", "bob")
	if f.cache.invalidated[f.id("bob")] == 0 || f.cache.invalidated[f.id("alice")] == 0 {
		t.Errorf("recipient caches should be invalidated, got %v", f.cache.invalidated)
	}
	if f.cache.invalidated[f.id("carol")] != 0 {
		t.Error("non-recipient cache should be left alone")
	}
}

func TestPublish_SkipsBlockEitherWay(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	f.befriend(t, "alice", "bob")
	f.befriend(t, "alice", "carol")

	// leave alice's friend edge in place while bob blocks her
	store := f.db.Relationships()
	if err := store.Upsert(f.ctx, models.NewBlock(f.id("bob"), f.id("alice"), time.Now())); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	msg := f.post(t, "alice", "can bob see this?")
	expectOwners(t, f.owners(msg), "alice", "carol")
}

func TestPublish_UnrelatedBlockKeepsFriendship(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	f.befriend(t, "alice", "bob")
	if _, err := f.rels.Block(f.ctx, f.id("alice"), f.id("carol")); err != nil {
		t.Fatalf("Block() error = %v", err)
	}

	msg := f.post(t, "bob", "hello alice")
	expectOwners(t, f.owners(msg), "alice", "bob")

	msgs, err := f.svc.Timeline(f.ctx, f.id("alice"), 1, 10)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Errorf("alice's timeline = %v, want message %d", msgs, msg.ID)
	}

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		label, err := f.rels.Resolve(f.ctx, f.id(pair[0]), f.id(pair[1]))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if label != relationship.FriendsApproved {
			t.Errorf("%s->%s label = %s, want FRIENDS_APPROVED", pair[0], pair[1], label)
		}
	}
}

func TestPublish_WallPostSkipsFriendsBlockingOwner(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	f.befriend(t, "alice", "bob")
	f.befriend(t, "alice", "carol")
	if _, err := f.rels.Block(f.ctx, f.id("carol"), f.id("dave")); err != nil {
		t.Fatalf("Block() error = %v", err)
	}

	dave := f.id("dave")
	msg, err := f.svc.Post(f.ctx, f.id("alice"), &dave, "on dave's wall", nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if !msg.ToUserID.Valid || msg.ToUserID.Int64 != dave {
		t.Errorf("ToUserID = %v, want %d", msg.ToUserID, dave)
	}

	expectOwners(t, f.owners(msg), "alice", "bob")
}

func TestPublish_RepliesAreNotFannedOut(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.befriend(t, "alice", "bob")
	post := f.post(t, "alice", "hello")

	comment, err := f.svc.Comment(f.ctx, f.id("bob"), post.ID, "hi!")
	if err != nil {
		t.Fatalf("Comment() error = %v", err)
	}
	like, err := f.svc.Like(f.ctx, f.id("bob"), post.ID)
	if err != nil {
		t.Fatalf("Like() error = %v", err)
	}

	expectOwners(t, f.owners(comment))
	expectOwners(t, f.owners(like))
}

func TestPublish_PartialFailureIsNotReturned(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	f.befriend(t, "alice", "bob")
	f.befriend(t, "alice", "carol")
	f.store.failFor[f.id("bob")] = true

	msg := f.post(t, "alice", "hello")
	expectOwners(t, f.owners(msg), "alice", "carol")
}

func TestPublish_PosterEntryFailureIsReturned(t *testing.T) {
	f := newFixture(t, "alice")
	f.store.failFor[f.id("alice")] = true

	if _, err := f.svc.Post(f.ctx, f.id("alice"), nil, "hello", nil); err == nil {
		t.Fatal("Post() should fail when the poster's own entry cannot be written")
	}

	// the failed post is not kept, so a retry leaves exactly one message
	delete(f.store.failFor, f.id("alice"))
	msg := f.post(t, "alice", "hello")
	if dropped, err := f.db.Feed().GetMessage(f.ctx, msg.ID-1); err != nil || dropped != nil {
		t.Errorf("failed post still stored: %+v, %v", dropped, err)
	}
	msgs, err := f.svc.Timeline(f.ctx, f.id("alice"), 1, 10)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Errorf("Timeline() = %v, want only message %d", msgs, msg.ID)
	}
}

func TestPost_Validation(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		images  []string
		wantErr error
	}{
		{"plain text", "hello", nil, nil},
		{"images only", "", []string{"cat.png"}, nil},
		{"longest text", strings.Repeat("x", models.MaxMessageText), nil, nil},
		{"empty", "", nil, feed.ErrInvalid},
		{"whitespace", "   ", nil, feed.ErrInvalid},
		{"too long", strings.Repeat("x", models.MaxMessageText+1), nil, feed.ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "alice")
			_, err := f.svc.Post(f.ctx, f.id("alice"), nil, tt.text, tt.images)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Post() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPost_SelfWallIsNull(t *testing.T) {
	f := newFixture(t, "alice")
	self := f.id("alice")

	msg, err := f.svc.Post(f.ctx, self, &self, "note to self", nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if msg.ToUserID.Valid {
		t.Errorf("posting to oneself should leave ToUserID null, got %v", msg.ToUserID)
	}
}

func TestPost_Errors(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	if _, err := f.rels.Block(f.ctx, f.id("bob"), f.id("alice")); err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	bob := f.id("bob")
	ghost := int64(999)

	if _, err := f.svc.Post(f.ctx, f.id("alice"), &bob, "hi", nil); !errors.Is(err, feed.ErrForbidden) {
		t.Errorf("posting on a blocker's wall: error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Post(f.ctx, f.id("alice"), &ghost, "hi", nil); !errors.Is(err, feed.ErrNotFound) {
		t.Errorf("posting on a missing wall: error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Post(f.ctx, ghost, nil, "hi", nil); !errors.Is(err, feed.ErrNotFound) {
		t.Errorf("posting as a missing user: error = %v, want ErrNotFound", err)
	}
}

func TestComment_Errors(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	post := f.post(t, "alice", "hello")
	comment, err := f.svc.Comment(f.ctx, f.id("bob"), post.ID, "first")
	if err != nil {
		t.Fatalf("Comment() error = %v", err)
	}

	if _, err := f.svc.Comment(f.ctx, f.id("bob"), comment.ID, "nested"); !errors.Is(err, feed.ErrInvalid) {
		t.Errorf("commenting on a comment: error = %v, want ErrInvalid", err)
	}
	if _, err := f.svc.Comment(f.ctx, f.id("bob"), 999, "lost"); !errors.Is(err, feed.ErrNotFound) {
		t.Errorf("commenting on a missing post: error = %v, want ErrNotFound", err)
	}

	if _, err := f.rels.Block(f.ctx, f.id("alice"), f.id("bob")); err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	if _, err := f.svc.Comment(f.ctx, f.id("bob"), post.ID, "again"); !errors.Is(err, feed.ErrForbidden) {
		t.Errorf("commenting across a block: error = %v, want ErrForbidden", err)
	}
}

func TestLike_Idempotent(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	post := f.post(t, "alice", "hello")

	first, err := f.svc.Like(f.ctx, f.id("bob"), post.ID)
	if err != nil {
		t.Fatalf("Like() error = %v", err)
	}
	second, err := f.svc.Like(f.ctx, f.id("bob"), post.ID)
	if err != nil {
		t.Fatalf("second Like() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("liking twice created two likes: %d and %d", first.ID, second.ID)
	}
	if first.Text != "" || first.Type != models.MessageTypeLike {
		t.Errorf("unexpected like: %+v", first)
	}

	replies, err := f.svc.Replies(f.ctx, post.ID)
	if err != nil {
		t.Fatalf("Replies() error = %v", err)
	}
	if len(replies) != 1 {
		t.Errorf("expected 1 reply, got %d", len(replies))
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	f.befriend(t, "alice", "bob")
	post := f.post(t, "alice", "hello")
	if _, err := f.svc.Comment(f.ctx, f.id("bob"), post.ID, "hi"); err != nil {
		t.Fatalf("Comment() error = %v", err)
	}

	if err := f.svc.Delete(f.ctx, f.id("carol"), post.ID); !errors.Is(err, feed.ErrForbidden) {
		t.Errorf("stranger Delete() error = %v, want ErrForbidden", err)
	}
	if err := f.svc.Delete(f.ctx, f.id("alice"), post.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	expectOwners(t, f.owners(post))
	if _, err := f.svc.Replies(f.ctx, post.ID); !errors.Is(err, feed.ErrNotFound) {
		t.Errorf("Replies() on deleted post error = %v, want ErrNotFound", err)
	}
	timeline, err := f.svc.Timeline(f.ctx, f.id("bob"), 1, 10)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(timeline) != 0 {
		t.Errorf("deleted post still on bob's timeline: %v", timeline)
	}
}

func TestDelete_WallOwner(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	bob := f.id("bob")
	msg, err := f.svc.Post(f.ctx, f.id("alice"), &bob, "on your wall", nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if err := f.svc.Delete(f.ctx, bob, msg.ID); err != nil {
		t.Errorf("wall owner Delete() error = %v", err)
	}
}

func TestTimeline_Paging(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.befriend(t, "alice", "bob")

	var posts []*models.Message
	for i := 0; i < 15; i++ {
		posts = append(posts, f.post(t, "alice", "post"))
	}

	tests := []struct {
		name      string
		page      int
		pageSize  int
		wantFirst int
		wantLen   int
	}{
		{"first page default size", 1, 0, 14, 10},
		{"second page default size", 2, 0, 4, 5},
		{"page below one", 0, 0, 14, 10},
		{"custom size", 3, 4, 6, 4},
		{"past the end", 4, 10, -1, 0},
		{"oversized page is capped", 1, 1000, 14, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := f.svc.Timeline(f.ctx, f.id("bob"), tt.page, tt.pageSize)
			if err != nil {
				t.Fatalf("Timeline() error = %v", err)
			}
			if len(msgs) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(msgs), tt.wantLen)
			}
			if tt.wantLen > 0 && msgs[0].ID != posts[tt.wantFirst].ID {
				t.Errorf("first message = %d, want %d", msgs[0].ID, posts[tt.wantFirst].ID)
			}
			for i := 1; i < len(msgs); i++ {
				if msgs[i].ID > msgs[i-1].ID {
					t.Errorf("timeline not newest first at %d", i)
				}
			}
		})
	}
}

func TestTimeline_CachedPageSkipsMissingMessages(t *testing.T) {
	f := newFixture(t, "alice")
	keep := f.post(t, "alice", "keep")

	_, version, _ := f.cache.GetPage(f.ctx, f.id("alice"), 1, 10)
	f.cache.SetPage(f.ctx, f.id("alice"), version, 1, 10, []int64{999, keep.ID})

	msgs, err := f.svc.Timeline(f.ctx, f.id("alice"), 1, 10)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != keep.ID {
		t.Errorf("Timeline() = %v, want only message %d", msgs, keep.ID)
	}
}

func TestTimeline_PageReadBeforeFanoutIsNotServedAfterIt(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.befriend(t, "alice", "bob")
	first := f.post(t, "bob", "first")

	// bob posts again after alice's page was read from the store but before
	// it is cached
	var second *models.Message
	f.store.afterList = func() { second = f.post(t, "bob", "second") }

	msgs, err := f.svc.Timeline(f.ctx, f.id("alice"), 1, 10)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != first.ID {
		t.Fatalf("first read = %v, want only message %d", msgs, first.ID)
	}

	msgs, err = f.svc.Timeline(f.ctx, f.id("alice"), 1, 10)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != second.ID {
		t.Errorf("second read = %v, want message %d first", msgs, second.ID)
	}
}

func TestTimeline_UnknownUser(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Timeline(f.ctx, 42, 1, 10); !errors.Is(err, feed.ErrNotFound) {
		t.Errorf("Timeline() error = %v, want ErrNotFound", err)
	}
}
