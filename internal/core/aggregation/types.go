package aggregation

import (
	"time"

	"github.com/aevon-lab/project-tally/internal/core/content"
)

// ThingAggregate holds the vote statistics of one post or comment.
// Invariant: Score == Upvotes - Downvotes, and ControversyRank is always
// ControversyRank(Upvotes, Downvotes).
type ThingAggregate struct {
	ThingID         int64
	CreatorID       int64 // denormalized from the thing row; vote deltas roll up to it
	Score           int64
	Upvotes         int64
	Downvotes       int64
	ControversyRank float64
	Published       time.Time
	// Counted mirrors the thing's visibility. Only counted things contribute
	// their score to the creator.
	Counted bool
}

// PostAggregate extends the thing statistics with the comment rollup and the
// featured flags.
type PostAggregate struct {
	ThingAggregate
	CommunityID            int64
	InstanceID             int64
	Comments               int64
	NewestCommentTime      time.Time // monotonic: never decreases
	NewestCommentTimeNecro time.Time // monotonic, fed by the necro policy
	FeaturedCommunity      bool
	FeaturedLocal          bool
}

// CommentAggregate is the per-comment record. CommunityID is copied from the
// post when the comment is seeded, so the comment can still be routed after
// its post aggregate is gone.
type CommentAggregate struct {
	ThingAggregate
	PostID      int64
	CommunityID int64
	ChildCount  int64 // all descendants, regardless of visibility
}

// PersonAggregate totals the content a person created.
type PersonAggregate struct {
	PersonID     int64
	PostCount    int64
	PostScore    int64
	CommentCount int64
	CommentScore int64
}

// ThingScore is the summed net score of the person's things of one kind.
func (p PersonAggregate) ThingScore(kind content.Kind) int64 {
	if kind == content.KindPost {
		return p.PostScore
	}
	return p.CommentScore
}

// TotalScore sums the net scores across everything the person created.
func (p PersonAggregate) TotalScore() int64 { return p.PostScore + p.CommentScore }

// CommunityAggregate counts visible content in one community.
type CommunityAggregate struct {
	CommunityID int64
	InstanceID  int64
	Subscribers int64
	Posts       int64
	Comments    int64
	Published   time.Time
}

// SiteAggregate is the single site-wide record.
type SiteAggregate struct {
	SiteID      int64
	Users       int64
	Communities int64
	Posts       int64
	Comments    int64
}

// PostRef is the slice of a post aggregate the comment rollup needs to route
// deltas upward and to evaluate the necro policy.
type PostRef struct {
	PostID      int64
	CreatorID   int64
	CommunityID int64
	Published   time.Time
}
