// Package relationship implements the friend/block graph between users: the
// resolver that labels a pair of users and the commands that mutate edges.
package relationship

import (
	"github.com/fromzero/socialbook/internal/models"
)

// Label is the relationship between two users as seen by the first of them
type Label string

// Relationship labels
const (
	Same                  Label = "SAME"
	None                  Label = "NONE"
	FriendsPending        Label = "FRIENDS_PENDING"
	FriendsApproved       Label = "FRIENDS_APPROVED"
	Blocked               Label = "BLOCKED"
	ReverseFriendsPending Label = "REVERSE_FRIENDS_PENDING"
	ReverseBlocked        Label = "REVERSE_BLOCKED"
)

// IsFriendship reports whether the label involves a friend edge
func (l Label) IsFriendship() bool {
	return l == FriendsPending || l == FriendsApproved || l == ReverseFriendsPending
}

// IsBlocked reports whether either side blocks the other
func (l Label) IsBlocked() bool {
	return l == Blocked || l == ReverseBlocked
}

// Resolve labels the relationship between viewer and other. forward is the
// viewer→other edge and reverse the other→viewer edge; either may be nil.
// The forward edge always wins over the reverse one.
func Resolve(viewerID, otherID int64, forward, reverse *models.Relationship) Label {
	if viewerID == otherID {
		return Same
	}

	if forward != nil {
		switch {
		case forward.IsBlock():
			return Blocked
		case forward.IsFriend() && forward.IsApproved():
			return FriendsApproved
		case forward.IsFriend():
			return FriendsPending
		}
	}

	if reverse != nil {
		switch {
		case reverse.IsBlock():
			return ReverseBlocked
		case reverse.IsFriend():
			// An approved reverse edge without its forward twin is a
			// half-finished friendship; the viewer can still accept it.
			return ReverseFriendsPending
		}
	}

	return None
}
