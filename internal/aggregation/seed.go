package aggregation

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aevon-lab/project-tally/internal/core/changeset"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
)

func sortByID[T any](rows []T, id func(T) int64) []T {
	slices.SortFunc(rows, func(a, b T) int { return cmp.Compare(id(a), id(b)) })
	return rows
}

func ids[T any](rows []T, id func(T) int64) []int64 {
	out := make([]int64, len(rows))
	for i, row := range rows {
		out[i] = id(row)
	}
	slices.Sort(out)
	return out
}

func countLocal[T any](rows []T, local func(T) bool) int64 {
	var n int64
	for _, row := range rows {
		if local(row) {
			n++
		}
	}
	return n
}

func personID(p content.Person) int64       { return p.ID }
func communityID(c content.Community) int64 { return c.ID }
func postID(p content.Post) int64           { return p.ID }
func commentID(c content.Comment) int64     { return c.ID }

// PersonsChanged seeds aggregates for new persons and drops those of deleted
// ones. Local persons feed the site user count.
func (e *Engine) PersonsChanged(ctx context.Context, store storage.AggregateStore, t changeset.Transition[content.Person]) error {
	l := changeset.Split(t, personID)

	if err := store.SeedPersons(ctx, sortByID(l.Inserted, personID)); err != nil {
		return fmt.Errorf("persons changed: seed: %w", err)
	}
	if err := store.DropPersons(ctx, ids(l.Deleted, personID)); err != nil {
		return fmt.Errorf("persons changed: drop: %w", err)
	}

	if e.siteCounters {
		isLocal := func(p content.Person) bool { return p.Local }
		users := countLocal(l.Inserted, isLocal) - countLocal(l.Deleted, isLocal)
		if err := store.AddSiteCounts(ctx, storage.SiteDelta{Users: users}); err != nil {
			return fmt.Errorf("persons changed: site users: %w", err)
		}
	}
	return nil
}

// CommunitiesChanged seeds and drops community aggregates. Local communities
// feed the site community count.
func (e *Engine) CommunitiesChanged(ctx context.Context, store storage.AggregateStore, t changeset.Transition[content.Community]) error {
	l := changeset.Split(t, communityID)

	if err := store.SeedCommunities(ctx, sortByID(l.Inserted, communityID)); err != nil {
		return fmt.Errorf("communities changed: seed: %w", err)
	}
	if err := store.DropCommunities(ctx, ids(l.Deleted, communityID)); err != nil {
		return fmt.Errorf("communities changed: drop: %w", err)
	}

	if e.siteCounters {
		isLocal := func(c content.Community) bool { return c.Local }
		n := countLocal(l.Inserted, isLocal) - countLocal(l.Deleted, isLocal)
		if err := store.AddSiteCounts(ctx, storage.SiteDelta{Communities: n}); err != nil {
			return fmt.Errorf("communities changed: site communities: %w", err)
		}
	}
	return nil
}

// SitesChanged seeds the singleton site aggregate. Inserting a second site is
// a no-op.
func (e *Engine) SitesChanged(ctx context.Context, store storage.AggregateStore, t changeset.Transition[content.Site]) error {
	l := changeset.Split(t, func(s content.Site) int64 { return s.ID })

	for _, site := range l.Inserted {
		created, err := store.SeedSite(ctx, site)
		if err != nil {
			return fmt.Errorf("sites changed: seed: %w", err)
		}
		if !created {
			slog.Info("[Engine] Site aggregate already exists, ignoring insert", "site_id", site.ID)
		}
	}
	return nil
}

// PostsChanged seeds new post aggregates, propagates featured flag changes,
// rolls counted posts up the hierarchy and drops hard-deleted posts.
func (e *Engine) PostsChanged(ctx context.Context, store storage.AggregateStore, t changeset.Transition[content.Post]) error {
	l := changeset.Split(t, postID)

	if err := store.SeedPosts(ctx, sortByID(l.Inserted, postID)); err != nil {
		return fmt.Errorf("posts changed: seed: %w", err)
	}

	if err := store.SetPostFeatured(ctx, featuredChanges(l.Updated)); err != nil {
		return fmt.Errorf("posts changed: featured: %w", err)
	}

	if err := recount(ctx, store, content.KindPost, l.Updated); err != nil {
		return fmt.Errorf("posts changed: %w", err)
	}

	if err := e.rollupPosts(ctx, store, t); err != nil {
		return fmt.Errorf("posts changed: %w", err)
	}

	if err := dropThings(ctx, store, content.KindPost, ids(l.Deleted, postID)); err != nil {
		return fmt.Errorf("posts changed: %w", err)
	}
	return nil
}

// CommentsChanged seeds new comment aggregates, rolls counted comments up to
// post, community, creator and site, maintains the ancestors' child counts and
// drops hard-deleted comments.
func (e *Engine) CommentsChanged(ctx context.Context, store storage.AggregateStore, t changeset.Transition[content.Comment]) error {
	l := changeset.Split(t, commentID)

	if err := store.SeedComments(ctx, sortByID(l.Inserted, commentID)); err != nil {
		return fmt.Errorf("comments changed: seed: %w", err)
	}

	if err := recount(ctx, store, content.KindComment, l.Updated); err != nil {
		return fmt.Errorf("comments changed: %w", err)
	}

	if err := e.rollupComments(ctx, store, t); err != nil {
		return fmt.Errorf("comments changed: %w", err)
	}

	if err := rollupChildCounts(ctx, store, t); err != nil {
		return fmt.Errorf("comments changed: %w", err)
	}

	if err := dropThings(ctx, store, content.KindComment, ids(l.Deleted, commentID)); err != nil {
		return fmt.Errorf("comments changed: %w", err)
	}
	return nil
}

// featuredChanges keeps the updates whose featured flags differ.
func featuredChanges(updated []changeset.Pair[content.Post]) []storage.FeaturedFlags {
	var flags []storage.FeaturedFlags
	for _, p := range updated {
		if p.Before.FeaturedCommunity == p.After.FeaturedCommunity && p.Before.FeaturedLocal == p.After.FeaturedLocal {
			continue
		}
		flags = append(flags, storage.FeaturedFlags{
			PostID:            p.After.ID,
			FeaturedCommunity: p.After.FeaturedCommunity,
			FeaturedLocal:     p.After.FeaturedLocal,
		})
	}
	slices.SortFunc(flags, func(a, b storage.FeaturedFlags) int { return cmp.Compare(a.PostID, b.PostID) })
	return flags
}

// recount flips the counted flag of things whose visibility changed, taking
// their score off the creator on removal and giving it back on restore.
func recount[T content.Thing](ctx context.Context, store storage.AggregateStore, kind content.Kind, updated []changeset.Pair[T]) error {
	var flags []storage.CountedFlag
	for _, p := range updated {
		if p.Before.Counted() == p.After.Counted() {
			continue
		}
		flags = append(flags, storage.CountedFlag{ThingID: p.After.ThingID(), Counted: p.After.Counted()})
	}
	if len(flags) == 0 {
		return nil
	}
	slices.SortFunc(flags, func(a, b storage.CountedFlag) int { return cmp.Compare(a.ThingID, b.ThingID) })

	flipped, err := store.SetCounted(ctx, kind, flags)
	if err != nil {
		return fmt.Errorf("recount %s: %w", kind, err)
	}
	byCreator := make(map[int64]int64, len(flipped))
	for _, d := range flipped {
		byCreator[d.CreatorID] += d.Delta
	}
	if err := store.AddPersonScores(ctx, kind, creatorDeltas(byCreator)); err != nil {
		return fmt.Errorf("recount %s: person scores: %w", kind, err)
	}
	return nil
}

// dropThings deletes thing aggregates and takes whatever score still counts
// for the creators away from them.
func dropThings(ctx context.Context, store storage.AggregateStore, kind content.Kind, thingIDs []int64) error {
	if len(thingIDs) == 0 {
		return nil
	}
	dropped, err := store.DropThings(ctx, kind, thingIDs)
	if err != nil {
		return fmt.Errorf("drop %s aggregates: %w", kind, err)
	}

	lost := make(map[int64]int64, len(dropped))
	for _, d := range dropped {
		lost[d.CreatorID] -= d.Delta
	}
	if err := store.AddPersonScores(ctx, kind, creatorDeltas(lost)); err != nil {
		return fmt.Errorf("drop %s aggregates: person scores: %w", kind, err)
	}
	return nil
}
