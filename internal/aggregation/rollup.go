package aggregation

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/aevon-lab/project-tally/internal/core/changeset"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
)

// counted keeps the deltas of rows that contribute to counters. The filter
// is applied per image, so an update that deletes or removes a row
// contributes only its -1 and a restore only its +1.
func counted[T content.Thing](t changeset.Transition[T]) iter.Seq[changeset.Delta[T]] {
	return changeset.Filter(t.Deltas(), func(row T) bool { return row.Counted() })
}

func creatorOf[T content.Thing](row T) int64 { return row.CreatorID() }

// rollupCreatorsAndSite applies the levels every thing kind shares: the
// creator's thing count and, when enabled, the site-wide counter.
func rollupCreatorsAndSite[T content.Thing](ctx context.Context, store storage.AggregateStore, kind content.Kind, deltas iter.Seq[changeset.Delta[T]], siteCounters bool) error {
	byCreator := changeset.CountBy(deltas, creatorOf[T])
	if err := store.AddPersonCounts(ctx, kind, creatorDeltas(byCreator)); err != nil {
		return fmt.Errorf("%s rollup: person counts: %w", kind, err)
	}

	if !siteCounters {
		return nil
	}
	local := localNet(deltas)
	if err := store.AddSiteCounts(ctx, siteDelta(kind, local)); err != nil {
		return fmt.Errorf("%s rollup: site counts: %w", kind, err)
	}
	return nil
}

// rollupPosts moves post count deltas up to the community, creator and site.
func (e *Engine) rollupPosts(ctx context.Context, store storage.AggregateStore, t changeset.Transition[content.Post]) error {
	deltas := counted(t)

	byCommunity := changeset.CountBy(deltas, func(p content.Post) int64 { return p.CommunityID })
	if err := store.AddCommunityCounts(ctx, content.KindPost, communityDeltas(byCommunity)); err != nil {
		return fmt.Errorf("post rollup: community counts: %w", err)
	}

	return rollupCreatorsAndSite(ctx, store, content.KindPost, deltas, e.siteCounters)
}

// rollupComments groups comment deltas by post, then regroups the per-post
// result by community. Newest timestamps come from counted added rows only.
func (e *Engine) rollupComments(ctx context.Context, store storage.AggregateStore, t changeset.Transition[content.Comment]) error {
	deltas := counted(t)
	postOf := func(c content.Comment) int64 { return c.PostID }
	publishedOf := func(c content.Comment) time.Time { return c.Published }

	byPost := changeset.CountBy(deltas, postOf)
	if len(byPost) == 0 {
		return nil
	}
	newest := changeset.MaxBy(deltas, postOf, publishedOf)

	postIDs := changeset.SortedKeys(byPost)
	refs, err := store.LookupPosts(ctx, postIDs)
	if err != nil {
		return fmt.Errorf("comment rollup: lookup posts: %w", err)
	}

	bumps := changeset.Filter(deltas, func(c content.Comment) bool {
		ref, ok := refs[c.PostID]
		return ok && e.necro.Bumps(ref, c.Creator, c.Published)
	})
	newestNecro := changeset.MaxBy(bumps, postOf, publishedOf)

	var (
		postDeltas []storage.PostCommentDelta
		unrouted   int
	)
	for _, id := range postIDs {
		if _, ok := refs[id]; !ok {
			unrouted++
			continue
		}
		d := storage.PostCommentDelta{
			PostID:                 id,
			Comments:               byPost[id],
			NewestCommentTime:      newest[id],
			NewestCommentTimeNecro: newestNecro[id],
		}
		if d.Comments == 0 && d.NewestCommentTime.IsZero() {
			continue
		}
		postDeltas = append(postDeltas, d)
	}
	if unrouted > 0 {
		slog.Debug("[Engine] Comment rollup skipped posts without aggregates", "posts", unrouted)
	}

	if err := store.ApplyPostComments(ctx, postDeltas); err != nil {
		return fmt.Errorf("comment rollup: post comments: %w", err)
	}

	// The community comes from the comment aggregate, not the post, so a
	// comment deleted after its post still leaves the community count.
	communities, err := store.LookupCommentCommunities(ctx, changeset.SortedKeys(changeset.CountBy(deltas, commentID)))
	if err != nil {
		return fmt.Errorf("comment rollup: lookup communities: %w", err)
	}
	routed := changeset.Filter(deltas, func(c content.Comment) bool {
		_, ok := communities[c.ID]
		return ok
	})
	byCommunity := changeset.CountBy(routed, func(c content.Comment) int64 { return communities[c.ID] })
	if err := store.AddCommunityCounts(ctx, content.KindComment, communityDeltas(byCommunity)); err != nil {
		return fmt.Errorf("comment rollup: community counts: %w", err)
	}

	return rollupCreatorsAndSite(ctx, store, content.KindComment, deltas, e.siteCounters)
}

// rollupChildCounts adds each comment's sign to every ancestor on its path.
// Visibility is ignored: child_count counts every descendant row. An update
// that moves a comment comes off the old ancestors and onto the new ones.
func rollupChildCounts(ctx context.Context, store storage.AggregateStore, t changeset.Transition[content.Comment]) error {
	sums := make(map[int64]int64)
	for d := range t.Deltas() {
		ancestors, err := d.Row.Ancestors()
		if err != nil {
			return fmt.Errorf("%w: %w", storage.ErrInvalidBatch, err)
		}
		for _, id := range ancestors {
			sums[id] += d.Sign
		}
	}

	var deltas []storage.ChildDelta
	for _, id := range changeset.SortedKeys(sums) {
		if sums[id] != 0 {
			deltas = append(deltas, storage.ChildDelta{CommentID: id, Delta: sums[id]})
		}
	}
	if err := store.AddChildCounts(ctx, deltas); err != nil {
		return fmt.Errorf("comment rollup: child counts: %w", err)
	}
	return nil
}

// localNet is the net number of local rows in the stream.
func localNet[T content.Thing](deltas iter.Seq[changeset.Delta[T]]) int64 {
	var n int64
	for d := range deltas {
		if d.Row.IsLocal() {
			n += d.Sign
		}
	}
	return n
}

// creatorDeltas flattens grouped sums in key order, dropping zero groups.
func creatorDeltas(sums map[int64]int64) []storage.CreatorDelta {
	var out []storage.CreatorDelta
	for _, id := range changeset.SortedKeys(sums) {
		if sums[id] != 0 {
			out = append(out, storage.CreatorDelta{CreatorID: id, Delta: sums[id]})
		}
	}
	return out
}

func communityDeltas(sums map[int64]int64) []storage.CommunityDelta {
	var out []storage.CommunityDelta
	for _, id := range changeset.SortedKeys(sums) {
		if sums[id] != 0 {
			out = append(out, storage.CommunityDelta{CommunityID: id, Delta: sums[id]})
		}
	}
	return out
}

func siteDelta(kind content.Kind, n int64) storage.SiteDelta {
	if kind == content.KindPost {
		return storage.SiteDelta{Posts: n}
	}
	return storage.SiteDelta{Comments: n}
}
