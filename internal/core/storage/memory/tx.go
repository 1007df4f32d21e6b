package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/aevon-lab/project-tally/internal/core/aggregation"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
)

// txStore applies writes to the private state of one transaction.
type txStore struct {
	st *state
}

var _ storage.AggregateStore = (*txStore)(nil)

func (t *txStore) SeedPersons(_ context.Context, persons []content.Person) error {
	for _, p := range persons {
		if _, exists := t.st.persons[p.ID]; exists {
			return fmt.Errorf("seed persons: person %d: %w", p.ID, storage.ErrConstraintViolation)
		}
		t.st.persons[p.ID] = aggregation.PersonAggregate{PersonID: p.ID}
	}
	return nil
}

func (t *txStore) SeedCommunities(_ context.Context, communities []content.Community) error {
	for _, c := range communities {
		if _, exists := t.st.communities[c.ID]; exists {
			return fmt.Errorf("seed communities: community %d: %w", c.ID, storage.ErrConstraintViolation)
		}
		t.st.communities[c.ID] = aggregation.CommunityAggregate{
			CommunityID: c.ID,
			InstanceID:  c.InstanceID,
			Published:   c.Published,
		}
	}
	return nil
}

func (t *txStore) SeedSite(_ context.Context, site content.Site) (bool, error) {
	if t.st.site != nil {
		return false, nil
	}
	t.st.site = &aggregation.SiteAggregate{SiteID: site.ID}
	return true, nil
}

func (t *txStore) SeedPosts(_ context.Context, posts []content.Post) error {
	for _, p := range posts {
		community, ok := t.st.communities[p.CommunityID]
		if !ok {
			continue
		}
		if existing, ok := t.st.posts[p.ID]; ok {
			existing.FeaturedCommunity = p.FeaturedCommunity
			existing.FeaturedLocal = p.FeaturedLocal
			t.st.posts[p.ID] = existing
			continue
		}
		t.st.posts[p.ID] = aggregation.PostAggregate{
			ThingAggregate: aggregation.ThingAggregate{
				ThingID:   p.ID,
				CreatorID: p.Creator,
				Published: p.Published,
				Counted:   p.Counted(),
			},
			CommunityID:            p.CommunityID,
			InstanceID:             community.InstanceID,
			NewestCommentTime:      p.Published,
			NewestCommentTimeNecro: p.Published,
			FeaturedCommunity:      p.FeaturedCommunity,
			FeaturedLocal:          p.FeaturedLocal,
		}
	}
	return nil
}

func (t *txStore) SeedComments(_ context.Context, comments []content.Comment) error {
	for _, c := range comments {
		if _, exists := t.st.comments[c.ID]; exists {
			return fmt.Errorf("seed comments: comment %d: %w", c.ID, storage.ErrConstraintViolation)
		}
		agg := aggregation.CommentAggregate{
			ThingAggregate: aggregation.ThingAggregate{
				ThingID:   c.ID,
				CreatorID: c.Creator,
				Published: c.Published,
				Counted:   c.Counted(),
			},
			PostID: c.PostID,
		}
		if post, ok := t.st.posts[c.PostID]; ok {
			agg.CommunityID = post.CommunityID
		}
		t.st.comments[c.ID] = agg
	}
	return nil
}

func (t *txStore) DropThings(_ context.Context, kind content.Kind, ids []int64) ([]storage.CreatorDelta, error) {
	var dropped []storage.CreatorDelta
	for _, id := range ids {
		agg, ok := t.thing(kind, id)
		if !ok {
			continue
		}
		if kind == content.KindPost {
			delete(t.st.posts, id)
		} else {
			delete(t.st.comments, id)
		}
		dropped = append(dropped, storage.CreatorDelta{CreatorID: agg.CreatorID, Delta: countedScore(agg, agg.Score)})
	}
	return dropped, nil
}

func (t *txStore) DropPersons(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(t.st.persons, id)
	}
	return nil
}

func (t *txStore) DropCommunities(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(t.st.communities, id)
	}
	return nil
}

func (t *txStore) ApplyVoteDeltas(_ context.Context, kind content.Kind, deltas []storage.VoteDelta) ([]storage.CreatorDelta, error) {
	var applied []storage.CreatorDelta
	for _, d := range deltas {
		agg, ok := t.thing(kind, d.ThingID)
		if !ok {
			continue
		}
		agg.Upvotes += d.Upvotes
		agg.Downvotes += d.Downvotes
		agg.Score += d.Score()
		agg.ControversyRank = aggregation.ControversyRank(agg.Upvotes, agg.Downvotes)
		t.putThing(kind, agg)
		applied = append(applied, storage.CreatorDelta{CreatorID: agg.CreatorID, Delta: countedScore(agg, d.Score())})
	}
	return applied, nil
}

func (t *txStore) SetCounted(_ context.Context, kind content.Kind, flags []storage.CountedFlag) ([]storage.CreatorDelta, error) {
	var flipped []storage.CreatorDelta
	for _, f := range flags {
		agg, ok := t.thing(kind, f.ThingID)
		if !ok || agg.Counted == f.Counted {
			continue
		}
		agg.Counted = f.Counted
		t.putThing(kind, agg)

		delta := agg.Score
		if !f.Counted {
			delta = -delta
		}
		flipped = append(flipped, storage.CreatorDelta{CreatorID: agg.CreatorID, Delta: delta})
	}
	return flipped, nil
}

func (t *txStore) AddPersonScores(_ context.Context, kind content.Kind, deltas []storage.CreatorDelta) error {
	for _, d := range deltas {
		p, ok := t.st.persons[d.CreatorID]
		if !ok {
			continue
		}
		if kind == content.KindPost {
			p.PostScore += d.Delta
		} else {
			p.CommentScore += d.Delta
		}
		t.st.persons[d.CreatorID] = p
	}
	return nil
}

func (t *txStore) AddPersonCounts(_ context.Context, kind content.Kind, deltas []storage.CreatorDelta) error {
	for _, d := range deltas {
		p, ok := t.st.persons[d.CreatorID]
		if !ok {
			continue
		}
		if kind == content.KindPost {
			p.PostCount += d.Delta
		} else {
			p.CommentCount += d.Delta
		}
		t.st.persons[d.CreatorID] = p
	}
	return nil
}

func (t *txStore) LookupPosts(_ context.Context, ids []int64) (map[int64]aggregation.PostRef, error) {
	refs := make(map[int64]aggregation.PostRef, len(ids))
	for _, id := range ids {
		p, ok := t.st.posts[id]
		if !ok {
			continue
		}
		refs[id] = aggregation.PostRef{
			PostID:      id,
			CreatorID:   p.CreatorID,
			CommunityID: p.CommunityID,
			Published:   p.Published,
		}
	}
	return refs, nil
}

func (t *txStore) LookupCommentCommunities(_ context.Context, ids []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(ids))
	for _, id := range ids {
		c, ok := t.st.comments[id]
		if !ok || c.CommunityID == 0 {
			continue
		}
		out[id] = c.CommunityID
	}
	return out, nil
}

func (t *txStore) AddChildCounts(_ context.Context, deltas []storage.ChildDelta) error {
	for _, d := range deltas {
		c, ok := t.st.comments[d.CommentID]
		if !ok {
			continue
		}
		c.ChildCount += d.Delta
		t.st.comments[d.CommentID] = c
	}
	return nil
}

func (t *txStore) ApplyPostComments(_ context.Context, deltas []storage.PostCommentDelta) error {
	for _, d := range deltas {
		p, ok := t.st.posts[d.PostID]
		if !ok {
			continue
		}
		p.Comments += d.Comments
		p.NewestCommentTime = latest(p.NewestCommentTime, d.NewestCommentTime)
		p.NewestCommentTimeNecro = latest(p.NewestCommentTimeNecro, d.NewestCommentTimeNecro)
		t.st.posts[d.PostID] = p
	}
	return nil
}

func (t *txStore) AddCommunityCounts(_ context.Context, kind content.Kind, deltas []storage.CommunityDelta) error {
	for _, d := range deltas {
		c, ok := t.st.communities[d.CommunityID]
		if !ok {
			continue
		}
		if kind == content.KindPost {
			c.Posts += d.Delta
		} else {
			c.Comments += d.Delta
		}
		t.st.communities[d.CommunityID] = c
	}
	return nil
}

func (t *txStore) AddCommunitySubscribers(_ context.Context, deltas []storage.CommunityDelta) error {
	for _, d := range deltas {
		c, ok := t.st.communities[d.CommunityID]
		if !ok {
			continue
		}
		c.Subscribers += d.Delta
		t.st.communities[d.CommunityID] = c
	}
	return nil
}

func (t *txStore) AddSiteCounts(_ context.Context, delta storage.SiteDelta) error {
	if t.st.site == nil {
		return nil
	}
	t.st.site.Users += delta.Users
	t.st.site.Communities += delta.Communities
	t.st.site.Posts += delta.Posts
	t.st.site.Comments += delta.Comments
	return nil
}

func (t *txStore) ResolveReports(_ context.Context, kind content.Kind, resolutions []storage.ReportResolution, now time.Time) (int64, error) {
	resolver := make(map[int64]int64, len(resolutions))
	for _, r := range resolutions {
		resolver[r.ThingID] = r.ResolverID
	}

	var resolved int64
	for i, r := range t.st.reports {
		mod, ok := resolver[r.ThingID]
		if !ok || r.Kind != kind || r.Resolved {
			continue
		}
		if r.Updated.After(now) {
			continue
		}
		r.Resolved = true
		r.ResolverID = mod
		r.Updated = now
		t.st.reports[i] = r
		resolved++
	}
	return resolved, nil
}

func (t *txStore) SetPostFeatured(_ context.Context, flags []storage.FeaturedFlags) error {
	for _, f := range flags {
		p, ok := t.st.posts[f.PostID]
		if !ok {
			continue
		}
		p.FeaturedCommunity = f.FeaturedCommunity
		p.FeaturedLocal = f.FeaturedLocal
		t.st.posts[f.PostID] = p
	}
	return nil
}

func (t *txStore) thing(kind content.Kind, id int64) (aggregation.ThingAggregate, bool) {
	if kind == content.KindPost {
		p, ok := t.st.posts[id]
		return p.ThingAggregate, ok
	}
	c, ok := t.st.comments[id]
	return c.ThingAggregate, ok
}

func (t *txStore) putThing(kind content.Kind, agg aggregation.ThingAggregate) {
	if kind == content.KindPost {
		p := t.st.posts[agg.ThingID]
		p.ThingAggregate = agg
		t.st.posts[agg.ThingID] = p
		return
	}
	c := t.st.comments[agg.ThingID]
	c.ThingAggregate = agg
	t.st.comments[agg.ThingID] = c
}

// countedScore is the share of score that reaches the creator.
func countedScore(agg aggregation.ThingAggregate, score int64) int64 {
	if !agg.Counted {
		return 0
	}
	return score
}

// latest is GREATEST with a zero candidate meaning no candidate.
func latest(current, candidate time.Time) time.Time {
	if candidate.After(current) {
		return candidate
	}
	return current
}
