package aggregation

import (
	"context"
	"fmt"

	"github.com/aevon-lab/project-tally/internal/core/changeset"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
)

// FollowersChanged keeps community subscriber counts in step with the
// community_follower table. Every follower row counts, pending or not.
func (e *Engine) FollowersChanged(ctx context.Context, store storage.AggregateStore, t changeset.Transition[content.CommunityFollower]) error {
	byCommunity := changeset.CountBy(t.Deltas(), func(f content.CommunityFollower) int64 { return f.CommunityID })
	if err := store.AddCommunitySubscribers(ctx, communityDeltas(byCommunity)); err != nil {
		return fmt.Errorf("followers changed: subscribers: %w", err)
	}
	return nil
}
