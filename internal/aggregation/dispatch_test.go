package aggregation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	v1 "github.com/aevon-lab/project-tally/internal/api/v1"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
	"github.com/stretchr/testify/require"
)

func rawRows(t *testing.T, rows ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(rows))
	for i, row := range rows {
		b, err := json.Marshal(row)
		require.NoError(t, err)
		out[i] = b
	}
	return out
}

func TestDispatcher_HandlesEveryWireTable(t *testing.T) {
	d := NewDispatcher(NewEngine(DefaultOptions()))
	for _, table := range v1.Tables {
		require.True(t, d.Handles(table), table)
	}
	require.False(t, d.Handles("private_message"))
}

func TestDispatcher_RejectsBadBatches(t *testing.T) {
	tests := []struct {
		name    string
		batch   v1.ChangeBatch
		wantErr error
	}{
		{
			name:    "unknown table",
			batch:   v1.ChangeBatch{Table: "private_message", Op: v1.OpInsert},
			wantErr: storage.ErrUnknownTable,
		},
		{
			name:    "unknown op",
			batch:   v1.ChangeBatch{Table: v1.TablePost, Op: "merge"},
			wantErr: storage.ErrInvalidBatch,
		},
		{
			name:    "unbalanced update",
			batch:   v1.ChangeBatch{Table: v1.TablePost, Op: v1.OpUpdate, New: []json.RawMessage{json.RawMessage(`{"id":1}`)}},
			wantErr: storage.ErrInvalidBatch,
		},
		{
			name:    "row is not an object",
			batch:   v1.ChangeBatch{Table: v1.TableComment, Op: v1.OpInsert, New: []json.RawMessage{json.RawMessage(`[1,2]`)}},
			wantErr: storage.ErrInvalidBatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, DefaultOptions())
			d := NewDispatcher(f.engine)

			err := f.store.RunInTx(f.ctx, func(ctx context.Context, st storage.AggregateStore) error {
				return d.Apply(ctx, st, tc.batch)
			})
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDispatcher_RoutesWireRows(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	d := NewDispatcher(f.engine)

	apply := func(batch v1.ChangeBatch) {
		t.Helper()
		f.apply(func(ctx context.Context, st storage.AggregateStore) error {
			return d.Apply(ctx, st, batch)
		})
	}

	apply(v1.ChangeBatch{Table: v1.TablePerson, Op: v1.OpInsert, New: rawRows(t,
		content.Person{ID: creatorU, Local: true},
		content.Person{ID: replierV, Local: true},
	)})
	apply(v1.ChangeBatch{Table: v1.TableCommunity, Op: v1.OpInsert, New: rawRows(t,
		content.Community{ID: communityC, InstanceID: instanceI, Published: base},
	)})
	apply(v1.ChangeBatch{Table: v1.TablePost, Op: v1.OpInsert, New: rawRows(t, newPost(postP, creatorU))})

	comment := newComment(commentBase, replierV, base.Add(time.Hour))
	comment.Path = "0.100"
	reply := newComment(commentBase+1, creatorU, base.Add(2*time.Hour))
	reply.Path = "0.100.101"
	reply.Deleted = true
	apply(v1.ChangeBatch{Table: v1.TableComment, Op: v1.OpInsert, New: rawRows(t, comment, reply)})

	apply(v1.ChangeBatch{Table: v1.TableCommunityFollow, Op: v1.OpInsert, New: rawRows(t,
		content.CommunityFollower{ID: 1, CommunityID: communityC, PersonID: replierV, Published: base},
	)})

	like := v1.PostLike{PersonID: replierV, PostID: postP, Score: 1, Published: base}
	dislike := like
	dislike.Score = -1
	apply(v1.ChangeBatch{Table: v1.TablePostLike, Op: v1.OpInsert, New: rawRows(t, like)})
	apply(v1.ChangeBatch{Table: v1.TablePostLike, Op: v1.OpUpdate, Old: rawRows(t, like), New: rawRows(t, dislike)})

	apply(v1.ChangeBatch{Table: v1.TableCommentLike, Op: v1.OpInsert, New: rawRows(t,
		v1.CommentLike{PersonID: creatorU, CommentID: commentBase, PostID: postP, Score: 1, Published: base},
	)})

	f.store.AddReport(content.KindComment, commentBase, time.Time{})
	apply(v1.ChangeBatch{Table: v1.TableModRemoveComment, Op: v1.OpInsert, New: rawRows(t,
		v1.ModRemoveComment{ID: 1, ModPersonID: moderatorM, CommentID: commentBase, Removed: true, When: base},
	)})

	p := f.post(postP)
	require.Equal(t, int64(1), p.Comments)
	require.Equal(t, int64(-1), p.Score)
	require.Equal(t, int64(-1), f.person(creatorU).PostScore)
	require.Equal(t, int64(1), f.person(replierV).CommentScore)
	require.Equal(t, moderatorM, f.store.Reports(content.KindComment, commentBase)[0].ResolverID)
	require.Equal(t, int64(1), f.community().Subscribers)
	require.Equal(t, int64(1), f.comment(commentBase).ChildCount, "deleted replies still count as children")
}

func TestDispatcher_EmptyBatchIsNoop(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	d := NewDispatcher(f.engine)

	f.apply(func(ctx context.Context, st storage.AggregateStore) error {
		return d.Apply(ctx, st, v1.ChangeBatch{Table: v1.TableSite, Op: v1.OpInsert})
	})
	_, ok := f.store.Site()
	require.False(t, ok)
}
