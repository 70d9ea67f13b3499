package relationship_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fromzero/socialbook/internal/memstore"
	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/internal/relationship"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][2]int64
	err   error
}

func (n *recordingNotifier) FriendRequested(ctx context.Context, from, to *models.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, [2]int64{from.ID, to.ID})
	return n.err
}

type fixture struct {
	ctx      context.Context
	db       *memstore.DB
	store    *memstore.Relationships
	notifier *recordingNotifier
	svc      *relationship.Service
	users    map[string]int64
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()

	db := memstore.New()
	f := &fixture{
		ctx:      context.Background(),
		db:       db,
		store:    db.Relationships(),
		notifier: &recordingNotifier{},
		users:    make(map[string]int64),
	}
	f.svc = relationship.NewService(f.store, db.Users(), f.notifier, zap.NewNop())

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

func (f *fixture) label(t *testing.T, viewer, other string) relationship.Label {
	t.Helper()
	label, err := f.svc.Resolve(f.ctx, f.id(viewer), f.id(other))
	if err != nil {
		t.Fatalf("Resolve(%s, %s) error = %v", viewer, other, err)
	}
	return label
}

func (f *fixture) edge(t *testing.T, from, to string) *models.Relationship {
	t.Helper()
	rel, err := f.store.Get(f.ctx, f.id(from), f.id(to))
	if err != nil {
		t.Fatalf("Get(%s, %s) error = %v", from, to, err)
	}
	return rel
}

func (f *fixture) must(t *testing.T, cmd func(context.Context, int64, int64) (relationship.Label, error), actor, target string) relationship.Label {
	t.Helper()
	label, err := cmd(f.ctx, f.id(actor), f.id(target))
	if err != nil {
		t.Fatalf("command(%s, %s) error = %v", actor, target, err)
	}
	return label
}

func expectLabel(t *testing.T, got, want relationship.Label) {
	t.Helper()
	if got != want {
		t.Errorf("label = %s, want %s", got, want)
	}
}

func TestAddFriend_SendsRequest(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	expectLabel(t, f.must(t, f.svc.AddFriend, "alice", "bob"), relationship.FriendsPending)
	expectLabel(t, f.label(t, "bob", "alice"), relationship.ReverseFriendsPending)

	edge := f.edge(t, "alice", "bob")
	if edge == nil || !edge.IsFriend() || edge.IsApproved() {
		t.Fatalf("expected a pending friend edge, got %+v", edge)
	}
	if f.edge(t, "bob", "alice") != nil {
		t.Error("a request must not create the reverse edge")
	}

	if len(f.notifier.calls) != 1 || f.notifier.calls[0] != [2]int64{f.id("alice"), f.id("bob")} {
		t.Errorf("notifier calls = %v, want one alice->bob", f.notifier.calls)
	}
}

func TestAddFriend_AcceptsRequest(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	f.must(t, f.svc.AddFriend, "alice", "bob")
	expectLabel(t, f.must(t, f.svc.AddFriend, "bob", "alice"), relationship.FriendsApproved)
	expectLabel(t, f.label(t, "alice", "bob"), relationship.FriendsApproved)

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		edge := f.edge(t, pair[0], pair[1])
		if edge == nil || !edge.IsApproved() || !edge.ApprovedAt.Valid {
			t.Errorf("%s->%s should be approved with approved_at, got %+v", pair[0], pair[1], edge)
		}
	}

	if len(f.notifier.calls) != 1 {
		t.Errorf("accepting must not notify, got %d calls", len(f.notifier.calls))
	}
}

func TestAddFriend_NoOpStates(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testing.T, *fixture)
		want  relationship.Label
	}{
		{
			name:  "repeat request",
			setup: func(t *testing.T, f *fixture) { f.must(t, f.svc.AddFriend, "alice", "bob") },
			want:  relationship.FriendsPending,
		},
		{
			name: "already friends",
			setup: func(t *testing.T, f *fixture) {
				f.must(t, f.svc.AddFriend, "alice", "bob")
				f.must(t, f.svc.AddFriend, "bob", "alice")
			},
			want: relationship.FriendsApproved,
		},
		{
			name:  "actor blocked target",
			setup: func(t *testing.T, f *fixture) { f.must(t, f.svc.Block, "alice", "bob") },
			want:  relationship.Blocked,
		},
		{
			name:  "target blocked actor",
			setup: func(t *testing.T, f *fixture) { f.must(t, f.svc.Block, "bob", "alice") },
			want:  relationship.ReverseBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "alice", "bob")
			tt.setup(t, f)
			before := f.store.Count()
			calls := len(f.notifier.calls)

			expectLabel(t, f.must(t, f.svc.AddFriend, "alice", "bob"), tt.want)

			if f.store.Count() != before {
				t.Errorf("edge count changed from %d to %d", before, f.store.Count())
			}
			if len(f.notifier.calls) != calls {
				t.Errorf("no-op must not notify")
			}
		})
	}
}

// hookedStore runs afterGet once, right after the first read of the given
// edge outside a transaction.
type hookedStore struct {
	relationship.Store
	from, to int64
	afterGet func()
}

func (s *hookedStore) Get(ctx context.Context, fromID, toID int64) (*models.Relationship, error) {
	rel, err := s.Store.Get(ctx, fromID, toID)
	if s.afterGet != nil && fromID == s.from && toID == s.to {
		hook := s.afterGet
		s.afterGet = nil
		hook()
	}
	return rel, err
}

func TestAddFriend_CrossedRequests(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	// bob's request lands after alice resolved NONE but before her insert
	hooked := &hookedStore{Store: f.store, from: f.id("bob"), to: f.id("alice")}
	hooked.afterGet = func() { f.must(t, f.svc.AddFriend, "bob", "alice") }
	svc := relationship.NewService(hooked, f.db.Users(), f.notifier, zap.NewNop())

	label, err := svc.AddFriend(f.ctx, f.id("alice"), f.id("bob"))
	if err != nil {
		t.Fatalf("AddFriend() error = %v", err)
	}
	expectLabel(t, label, relationship.FriendsApproved)
	expectLabel(t, f.label(t, "bob", "alice"), relationship.FriendsApproved)
}

func TestAddFriend_RetryMatchesCrossedRequests(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	now := time.Now().UTC()
	for _, rel := range []*models.Relationship{
		models.NewFriendRequest(f.id("alice"), f.id("bob"), now),
		models.NewFriendRequest(f.id("bob"), f.id("alice"), now),
	} {
		if err := f.store.Upsert(f.ctx, rel); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	expectLabel(t, f.label(t, "alice", "bob"), relationship.FriendsPending)
	expectLabel(t, f.must(t, f.svc.AddFriend, "alice", "bob"), relationship.FriendsApproved)
	expectLabel(t, f.label(t, "bob", "alice"), relationship.FriendsApproved)
	if len(f.notifier.calls) != 0 {
		t.Errorf("accepting must not notify, got %v", f.notifier.calls)
	}
}

func TestAddFriend_Self(t *testing.T) {
	f := newFixture(t, "alice")
	expectLabel(t, f.must(t, f.svc.AddFriend, "alice", "alice"), relationship.Same)
	if f.store.Count() != 0 {
		t.Error("befriending oneself must not create edges")
	}
}

func TestAddFriend_NotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.notifier.err = errors.New("smtp down")

	expectLabel(t, f.must(t, f.svc.AddFriend, "alice", "bob"), relationship.FriendsPending)
	if f.edge(t, "alice", "bob") == nil {
		t.Error("the request must be stored even if notification fails")
	}
}

func TestAddFriend_OrphanApprovedReverse(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	if err := f.store.Upsert(f.ctx, models.NewApprovedFriend(f.id("bob"), f.id("alice"), time.Now())); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	expectLabel(t, f.label(t, "alice", "bob"), relationship.ReverseFriendsPending)
	expectLabel(t, f.must(t, f.svc.AddFriend, "alice", "bob"), relationship.FriendsApproved)
	expectLabel(t, f.label(t, "bob", "alice"), relationship.FriendsApproved)
}

func TestCommands_UnknownUser(t *testing.T) {
	f := newFixture(t, "alice")
	const ghost = int64(999)

	commands := map[string]func(context.Context, int64, int64) (relationship.Label, error){
		"add_friend":    f.svc.AddFriend,
		"remove_friend": f.svc.RemoveFriend,
		"block":         f.svc.Block,
		"unblock":       f.svc.Unblock,
		"resolve":       f.svc.ResolveUsers,
	}

	for name, cmd := range commands {
		t.Run(name, func(t *testing.T) {
			if _, err := cmd(f.ctx, f.id("alice"), ghost); !errors.Is(err, relationship.ErrNotFound) {
				t.Errorf("target missing: error = %v, want ErrNotFound", err)
			}
			if _, err := cmd(f.ctx, ghost, f.id("alice")); !errors.Is(err, relationship.ErrNotFound) {
				t.Errorf("actor missing: error = %v, want ErrNotFound", err)
			}
		})
	}
	if f.store.Count() != 0 {
		t.Error("failed commands must not create edges")
	}
}

func TestRemoveFriend(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testing.T, *fixture)
	}{
		{"withdraw request", func(t *testing.T, f *fixture) { f.must(t, f.svc.AddFriend, "alice", "bob") }},
		{"reject request", func(t *testing.T, f *fixture) { f.must(t, f.svc.AddFriend, "bob", "alice") }},
		{"unfriend", func(t *testing.T, f *fixture) {
			f.must(t, f.svc.AddFriend, "alice", "bob")
			f.must(t, f.svc.AddFriend, "bob", "alice")
		}},
		{"nothing to remove", func(*testing.T, *fixture) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "alice", "bob")
			tt.setup(t, f)

			expectLabel(t, f.must(t, f.svc.RemoveFriend, "alice", "bob"), relationship.None)
			expectLabel(t, f.label(t, "bob", "alice"), relationship.None)
			if f.store.Count() != 0 {
				t.Errorf("expected no edges, got %d", f.store.Count())
			}

			// a second removal changes nothing
			expectLabel(t, f.must(t, f.svc.RemoveFriend, "alice", "bob"), relationship.None)
			if f.store.Count() != 0 {
				t.Errorf("expected no edges after second removal, got %d", f.store.Count())
			}
		})
	}
}

func TestRemoveFriend_KeepsBlocks(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.must(t, f.svc.Block, "bob", "alice")

	expectLabel(t, f.must(t, f.svc.RemoveFriend, "alice", "bob"), relationship.ReverseBlocked)
	if f.edge(t, "bob", "alice") == nil {
		t.Error("remove friend must not delete a block")
	}
}

func TestBlock(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.must(t, f.svc.AddFriend, "alice", "bob")
	f.must(t, f.svc.AddFriend, "bob", "alice")

	expectLabel(t, f.must(t, f.svc.Block, "alice", "bob"), relationship.Blocked)
	expectLabel(t, f.label(t, "bob", "alice"), relationship.ReverseBlocked)

	if f.edge(t, "bob", "alice") != nil {
		t.Error("blocking must remove the target's friend edge")
	}
	edge := f.edge(t, "alice", "bob")
	if edge == nil || !edge.IsBlock() || !edge.IsApproved() {
		t.Errorf("expected an approved block edge, got %+v", edge)
	}

	// idempotent
	expectLabel(t, f.must(t, f.svc.Block, "alice", "bob"), relationship.Blocked)
	if f.store.Count() != 1 {
		t.Errorf("expected exactly one edge, got %d", f.store.Count())
	}
}

func TestBlock_Self(t *testing.T) {
	f := newFixture(t, "alice")
	expectLabel(t, f.must(t, f.svc.Block, "alice", "alice"), relationship.Same)
	if f.store.Count() != 0 {
		t.Error("blocking oneself must not create edges")
	}
}

func TestBlock_BothWays(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.must(t, f.svc.Block, "alice", "bob")
	f.must(t, f.svc.Block, "bob", "alice")

	expectLabel(t, f.label(t, "alice", "bob"), relationship.Blocked)
	expectLabel(t, f.label(t, "bob", "alice"), relationship.Blocked)

	// unblocking one side leaves the other side's block
	expectLabel(t, f.must(t, f.svc.Unblock, "alice", "bob"), relationship.ReverseBlocked)
	expectLabel(t, f.label(t, "bob", "alice"), relationship.Blocked)
}

func TestUnblock(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testing.T, *fixture)
		want  relationship.Label
		edges int
	}{
		{"own block", func(t *testing.T, f *fixture) { f.must(t, f.svc.Block, "alice", "bob") }, relationship.None, 0},
		{"target's block", func(t *testing.T, f *fixture) { f.must(t, f.svc.Block, "bob", "alice") }, relationship.ReverseBlocked, 1},
		{"pending request", func(t *testing.T, f *fixture) { f.must(t, f.svc.AddFriend, "alice", "bob") }, relationship.FriendsPending, 1},
		{"nothing", func(*testing.T, *fixture) {}, relationship.None, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "alice", "bob")
			tt.setup(t, f)

			expectLabel(t, f.must(t, f.svc.Unblock, "alice", "bob"), tt.want)
			if f.store.Count() != tt.edges {
				t.Errorf("edges = %d, want %d", f.store.Count(), tt.edges)
			}
		})
	}
}

func TestFriendsAndPendingRequests(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	f.must(t, f.svc.AddFriend, "alice", "bob")
	f.must(t, f.svc.AddFriend, "bob", "alice")
	f.must(t, f.svc.AddFriend, "carol", "alice")
	f.must(t, f.svc.AddFriend, "alice", "dave")

	friends, err := f.svc.Friends(f.ctx, f.id("alice"))
	if err != nil {
		t.Fatalf("Friends() error = %v", err)
	}
	if len(friends) != 1 || friends[0].ToUserID != f.id("bob") {
		t.Errorf("alice's friends = %+v, want only bob", friends)
	}

	requests, err := f.svc.PendingRequests(f.ctx, f.id("alice"))
	if err != nil {
		t.Fatalf("PendingRequests() error = %v", err)
	}
	if len(requests) != 1 || requests[0].FromUserID != f.id("carol") {
		t.Errorf("alice's requests = %+v, want only carol", requests)
	}

	if _, err := f.svc.Friends(f.ctx, 999); !errors.Is(err, relationship.ErrNotFound) {
		t.Errorf("Friends(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestConcurrentAddFriendAndBlock(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, "alice", "bob")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.svc.AddFriend(f.ctx, f.id("alice"), f.id("bob"))
		}()
		go func() {
			defer wg.Done()
			f.svc.Block(f.ctx, f.id("alice"), f.id("bob"))
		}()
		wg.Wait()

		edge := f.edge(t, "alice", "bob")
		if edge == nil {
			t.Fatal("expected an edge after concurrent add and block")
		}
		if f.store.Count() != 1 {
			t.Fatalf("expected one edge per ordered pair, got %d", f.store.Count())
		}
	}
}
