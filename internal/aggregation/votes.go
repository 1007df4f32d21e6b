package aggregation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/project-tally/internal/core/changeset"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
)

// VotesChanged applies a vote transition on things of one kind. Votes are
// grouped per thing into up and down deltas, the thing aggregates are updated
// in one statement, and the score that statement returns is regrouped per
// creator for one person update.
func (e *Engine) VotesChanged(ctx context.Context, store storage.AggregateStore, kind content.Kind, t changeset.Transition[content.Vote]) error {
	voteDeltas := thingVoteDeltas(t)
	if len(voteDeltas) == 0 {
		return nil
	}

	applied, err := store.ApplyVoteDeltas(ctx, kind, voteDeltas)
	if err != nil {
		return fmt.Errorf("%s votes changed: apply: %w", kind, err)
	}
	if len(applied) < len(voteDeltas) {
		slog.Debug("[Engine] Votes on things without aggregates ignored",
			"kind", kind,
			"things", len(voteDeltas)-len(applied))
	}

	byCreator := make(map[int64]int64, len(applied))
	for _, d := range applied {
		byCreator[d.CreatorID] += d.Delta
	}
	if err := store.AddPersonScores(ctx, kind, creatorDeltas(byCreator)); err != nil {
		return fmt.Errorf("%s votes changed: person scores: %w", kind, err)
	}
	return nil
}

// thingVoteDeltas groups votes by thing. A group whose up and down deltas
// both cancel out is dropped.
func thingVoteDeltas(t changeset.Transition[content.Vote]) []storage.VoteDelta {
	thingOf := func(v content.Vote) int64 { return v.ThingID }
	up := changeset.SumBy(t.Deltas(), thingOf, func(v content.Vote) int64 {
		if v.IsUpvote() {
			return 1
		}
		return 0
	})
	down := changeset.SumBy(t.Deltas(), thingOf, func(v content.Vote) int64 {
		if v.IsUpvote() {
			return 0
		}
		return 1
	})

	var deltas []storage.VoteDelta
	for _, id := range changeset.SortedKeys(up) {
		if up[id] == 0 && down[id] == 0 {
			continue
		}
		deltas = append(deltas, storage.VoteDelta{ThingID: id, Upvotes: up[id], Downvotes: down[id]})
	}
	return deltas
}
