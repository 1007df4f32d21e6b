package storage

import (
	"context"
	"errors"
	"time"

	"github.com/aevon-lab/project-tally/internal/core/aggregation"
	"github.com/aevon-lab/project-tally/internal/core/content"
)

var (
	// ErrConstraintViolation is returned when a write breaks a table constraint.
	// The enclosing transaction is aborted and the error is not retried.
	ErrConstraintViolation = errors.New("aggregate constraint violation")

	// ErrSerialization marks a transaction that lost a serialization or
	// deadlock race. Callers that own the transaction may run it again.
	ErrSerialization = errors.New("transaction serialization failure")

	// ErrUnknownTable is returned for a change batch naming a table the
	// dispatcher has no reaction for.
	ErrUnknownTable = errors.New("unknown change table")

	// ErrInvalidBatch is returned for a change batch whose op or row images
	// do not fit its table.
	ErrInvalidBatch = errors.New("invalid change batch")
)

// VoteDelta is the net vote change of one thing within a batch.
type VoteDelta struct {
	ThingID   int64
	Upvotes   int64
	Downvotes int64
}

// Score is the net score change the delta applies.
func (d VoteDelta) Score() int64 { return d.Upvotes - d.Downvotes }

// CreatorDelta is a signed change attributed to the creator of some things.
type CreatorDelta struct {
	CreatorID int64
	Delta     int64
}

// PostCommentDelta is the comment rollup of one post. A zero timestamp means
// the batch produced no candidate and the stored value stays as it is.
type PostCommentDelta struct {
	PostID                 int64
	Comments               int64
	NewestCommentTime      time.Time
	NewestCommentTimeNecro time.Time
}

// CommunityDelta is the net change of one community counter.
type CommunityDelta struct {
	CommunityID int64
	Delta       int64
}

// SiteDelta is the net change of the site-wide counters.
type SiteDelta struct {
	Users       int64
	Communities int64
	Posts       int64
	Comments    int64
}

func (d SiteDelta) IsZero() bool { return d == SiteDelta{} }

// ReportResolution resolves the open reports of one thing on behalf of the
// moderator that removed it.
type ReportResolution struct {
	ThingID    int64
	ResolverID int64
}

// CountedFlag is the new counted state of one thing whose visibility changed.
type CountedFlag struct {
	ThingID int64
	Counted bool
}

// ChildDelta is the net change in descendants of one comment.
type ChildDelta struct {
	CommentID int64
	Delta     int64
}

// FeaturedFlags is the featured state of one post.
type FeaturedFlags struct {
	PostID            int64
	FeaturedCommunity bool
	FeaturedLocal     bool
}

// AggregateStore is the exclusive writer of the aggregate tables. Every method
// is a single set-based write (or read) over all the keys it is given, and
// runs inside the transaction the store was opened for.
//
// Slices passed in are sorted by key by the caller.
type AggregateStore interface {
	// SeedPersons inserts zeroed person aggregates.
	SeedPersons(ctx context.Context, persons []content.Person) error

	// SeedCommunities inserts zeroed community aggregates. The community's
	// instance is kept so posts seeded later can copy it.
	SeedCommunities(ctx context.Context, communities []content.Community) error

	// SeedSite inserts the site aggregate unless one already exists.
	// Returns false when the row was already there.
	SeedSite(ctx context.Context, site content.Site) (bool, error)

	// SeedPosts inserts zeroed post aggregates, copying the community's
	// instance. Posts whose community has no aggregate are skipped. On
	// conflict only the featured flags are updated.
	SeedPosts(ctx context.Context, posts []content.Post) error

	// SeedComments inserts zeroed comment aggregates.
	SeedComments(ctx context.Context, comments []content.Comment) error

	// DropThings deletes the aggregates of hard-deleted things and returns the
	// score each creator loses with them. Things that were no longer counted
	// return a zero delta: their score already left the creator.
	DropThings(ctx context.Context, kind content.Kind, ids []int64) ([]CreatorDelta, error)

	// DropPersons deletes person aggregates.
	DropPersons(ctx context.Context, ids []int64) error

	// DropCommunities deletes community aggregates.
	DropCommunities(ctx context.Context, ids []int64) error

	// ApplyVoteDeltas adds the deltas to the thing aggregates, recomputes the
	// controversy rank from the new totals and returns, per updated thing, its
	// creator and the net score applied. Things that are not counted return a
	// zero delta. Things without an aggregate are skipped.
	ApplyVoteDeltas(ctx context.Context, kind content.Kind, deltas []VoteDelta) ([]CreatorDelta, error)

	// SetCounted flips the counted flag of thing aggregates and returns, per
	// flipped thing, the score its creator gains (restore) or loses (removal).
	// Flags that already match are skipped.
	SetCounted(ctx context.Context, kind content.Kind, flags []CountedFlag) ([]CreatorDelta, error)

	// AddPersonScores adds score deltas to the creators' thing score of kind.
	AddPersonScores(ctx context.Context, kind content.Kind, deltas []CreatorDelta) error

	// AddPersonCounts adds count deltas to the creators' thing count of kind.
	AddPersonCounts(ctx context.Context, kind content.Kind, deltas []CreatorDelta) error

	// LookupPosts reads the routing data of the given posts. Missing posts are
	// absent from the result.
	LookupPosts(ctx context.Context, ids []int64) (map[int64]aggregation.PostRef, error)

	// LookupCommentCommunities reads the community each comment aggregate was
	// seeded under. Comments without an aggregate, or seeded before their post
	// had one, are absent from the result.
	LookupCommentCommunities(ctx context.Context, ids []int64) (map[int64]int64, error)

	// AddChildCounts adds descendant deltas to comment aggregates.
	AddChildCounts(ctx context.Context, deltas []ChildDelta) error

	// ApplyPostComments applies the comment rollup to post aggregates. Both
	// newest timestamps only ever move forward.
	ApplyPostComments(ctx context.Context, deltas []PostCommentDelta) error

	// AddCommunityCounts adds deltas to the community counter of kind
	// (posts or comments).
	AddCommunityCounts(ctx context.Context, kind content.Kind, deltas []CommunityDelta) error

	// AddCommunitySubscribers adds follower deltas to community aggregates.
	AddCommunitySubscribers(ctx context.Context, deltas []CommunityDelta) error

	// AddSiteCounts adds deltas to the site aggregate.
	AddSiteCounts(ctx context.Context, delta SiteDelta) error

	// ResolveReports marks the open reports of each thing resolved. Reports
	// already resolved, or updated after now, are left alone. Returns the
	// number of reports resolved.
	ResolveReports(ctx context.Context, kind content.Kind, resolutions []ReportResolution, now time.Time) (int64, error)

	// SetPostFeatured overwrites the featured flags of existing post
	// aggregates without touching counters.
	SetPostFeatured(ctx context.Context, flags []FeaturedFlags) error
}

// TxRunner opens a transaction, hands fn a store bound to it and commits when
// fn returns nil. Any error rolls back every write made through the store.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store AggregateStore) error) error
}
