package aggregation

import (
	"context"
	"encoding/json"
	"fmt"

	v1 "github.com/aevon-lab/project-tally/internal/api/v1"
	"github.com/aevon-lab/project-tally/internal/core/changeset"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
)

// Dispatcher routes a wire change batch to the engine reaction registered
// for its table.
type Dispatcher struct {
	routes map[string]route
}

type route func(ctx context.Context, store storage.AggregateStore, batch v1.ChangeBatch) error

// NewDispatcher registers every table the engine reacts to.
func NewDispatcher(engine *Engine) *Dispatcher {
	d := &Dispatcher{}
	d.routes = map[string]route{
		v1.TablePerson: func(ctx context.Context, store storage.AggregateStore, b v1.ChangeBatch) error {
			t, err := decodeTransition[content.Person](b)
			if err != nil {
				return err
			}
			return engine.PersonsChanged(ctx, store, t)
		},
		v1.TableCommunity: func(ctx context.Context, store storage.AggregateStore, b v1.ChangeBatch) error {
			t, err := decodeTransition[content.Community](b)
			if err != nil {
				return err
			}
			return engine.CommunitiesChanged(ctx, store, t)
		},
		v1.TableSite: func(ctx context.Context, store storage.AggregateStore, b v1.ChangeBatch) error {
			t, err := decodeTransition[content.Site](b)
			if err != nil {
				return err
			}
			return engine.SitesChanged(ctx, store, t)
		},
		v1.TablePost: func(ctx context.Context, store storage.AggregateStore, b v1.ChangeBatch) error {
			t, err := decodeTransition[content.Post](b)
			if err != nil {
				return err
			}
			return engine.PostsChanged(ctx, store, t)
		},
		v1.TableComment: func(ctx context.Context, store storage.AggregateStore, b v1.ChangeBatch) error {
			t, err := decodeTransition[content.Comment](b)
			if err != nil {
				return err
			}
			return engine.CommentsChanged(ctx, store, t)
		},
		v1.TableCommunityFollow: func(ctx context.Context, store storage.AggregateStore, b v1.ChangeBatch) error {
			t, err := decodeTransition[content.CommunityFollower](b)
			if err != nil {
				return err
			}
			return engine.FollowersChanged(ctx, store, t)
		},
		v1.TablePostLike: func(ctx context.Context, store storage.AggregateStore, b v1.ChangeBatch) error {
			t, err := decodeMapped(b, func(l v1.PostLike) content.Vote {
				return content.Vote{PersonID: l.PersonID, ThingID: l.PostID, Score: l.Score, Voted: l.Published}
			})
			if err != nil {
				return err
			}
			return engine.VotesChanged(ctx, store, content.KindPost, t)
		},
		v1.TableCommentLike: func(ctx context.Context, store storage.AggregateStore, b v1.ChangeBatch) error {
			t, err := decodeMapped(b, func(l v1.CommentLike) content.Vote {
				return content.Vote{PersonID: l.PersonID, ThingID: l.CommentID, Score: l.Score, Voted: l.Published}
			})
			if err != nil {
				return err
			}
			return engine.VotesChanged(ctx, store, content.KindComment, t)
		},
		v1.TableModRemovePost: func(ctx context.Context, store storage.AggregateStore, b v1.ChangeBatch) error {
			t, err := decodeMapped(b, func(r v1.ModRemovePost) content.Removal {
				return content.Removal{ID: r.ID, ModPersonID: r.ModPersonID, ThingID: r.PostID, Removed: r.Removed, When: r.When}
			})
			if err != nil {
				return err
			}
			return engine.RemovalsRecorded(ctx, store, content.KindPost, t)
		},
		v1.TableModRemoveComment: func(ctx context.Context, store storage.AggregateStore, b v1.ChangeBatch) error {
			t, err := decodeMapped(b, func(r v1.ModRemoveComment) content.Removal {
				return content.Removal{ID: r.ID, ModPersonID: r.ModPersonID, ThingID: r.CommentID, Removed: r.Removed, When: r.When}
			})
			if err != nil {
				return err
			}
			return engine.RemovalsRecorded(ctx, store, content.KindComment, t)
		},
	}
	return d
}

// Apply validates the batch and runs its reaction against store.
func (d *Dispatcher) Apply(ctx context.Context, store storage.AggregateStore, batch v1.ChangeBatch) error {
	r, ok := d.routes[batch.Table]
	if !ok {
		return fmt.Errorf("%w: %q", storage.ErrUnknownTable, batch.Table)
	}
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrInvalidBatch, err)
	}
	if batch.Rows() == 0 {
		return nil
	}
	if err := r(ctx, store, batch); err != nil {
		return fmt.Errorf("apply %s %s: %w", batch.Op, batch.Table, err)
	}
	return nil
}

// Handles reports whether a table has a registered reaction.
func (d *Dispatcher) Handles(table string) bool {
	_, ok := d.routes[table]
	return ok
}

func decodeTransition[T any](b v1.ChangeBatch) (changeset.Transition[T], error) {
	return decodeMapped(b, func(row T) T { return row })
}

// decodeMapped decodes the wire rows as W and converts each one to the row
// type the reaction expects.
func decodeMapped[W, T any](b v1.ChangeBatch, convert func(W) T) (changeset.Transition[T], error) {
	removed, err := decodeRows(b.Old, convert)
	if err != nil {
		return changeset.Transition[T]{}, fmt.Errorf("%w: old rows: %w", storage.ErrInvalidBatch, err)
	}
	added, err := decodeRows(b.New, convert)
	if err != nil {
		return changeset.Transition[T]{}, fmt.Errorf("%w: new rows: %w", storage.ErrInvalidBatch, err)
	}
	return changeset.Transition[T]{Removed: removed, Added: added}, nil
}

func decodeRows[W, T any](raw []json.RawMessage, convert func(W) T) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	rows := make([]T, len(raw))
	for i, msg := range raw {
		var w W
		if err := json.Unmarshal(msg, &w); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows[i] = convert(w)
	}
	return rows, nil
}
