package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	engine "github.com/aevon-lab/project-tally/internal/aggregation"
	"github.com/aevon-lab/project-tally/internal/core/aggregation"
	"github.com/aevon-lab/project-tally/internal/core/changeset"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAdapterFromDB(db), mock
}

func TestAdapter_RunInTxCommits(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(querySeedPersons)).
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
		return store.SeedPersons(ctx, []content.Person{{ID: 1}, {ID: 2}})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_RunInTxRollsBackOnError(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(querySeedPersons)).
		WithArgs(pq.Array([]int64{1})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
		if err := store.SeedPersons(ctx, []content.Person{{ID: 1}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ConstraintViolationAbortsTx(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(querySeedComments)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
		return store.SeedComments(ctx, []content.Comment{{ID: 5, Creator: 1, PostID: 2}})
	})
	require.ErrorIs(t, err, storage.ErrConstraintViolation)
	require.NotErrorIs(t, err, storage.ErrSerialization)

	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	require.Equal(t, pq.ErrorCode("23505"), pqErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_SerializationFailureOnCommit(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001"})

	err := adapter.RunInTx(context.Background(), func(context.Context, storage.AggregateStore) error {
		return nil
	})
	require.ErrorIs(t, err, storage.ErrSerialization)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ValidateSchema(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	for _, table := range aggregateTables[:2] {
		mock.ExpectQuery(regexp.QuoteMeta(queryTableExists)).
			WithArgs(table).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}
	mock.ExpectQuery(regexp.QuoteMeta(queryTableExists)).
		WithArgs(aggregateTables[2]).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := adapter.ValidateSchema(context.Background())
	require.ErrorContains(t, err, "site_aggregates table does not exist")
	require.NoError(t, mock.ExpectationsWereMet())
}

// A content write and the aggregate reactions it triggers share one
// transaction: when the caller rolls back, neither survives.
func TestNewTxStore_SharesCallerTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	const insertComment = `INSERT INTO comment (id, creator_id, post_id, path) VALUES ($1, $2, $3, $4)`
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertComment)).
		WithArgs(int64(5), int64(1), int64(2), "0.5").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(regexp.QuoteMeta(querySeedComments)).
		WithArgs(
			pq.Array([]int64{5}),
			pq.Array([]int64{1}),
			pq.Array([]int64{2}),
			pq.Array([]string{"2026-03-01T12:00:00Z"}),
			pq.Array([]bool{true}),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(queryLookupPosts)).
		WithArgs(pq.Array([]int64{2})).
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "creator_id", "community_id", "published"}).
			AddRow(int64(2), int64(7), int64(3), published))
	mock.ExpectExec(regexp.QuoteMeta(queryApplyPostComments)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(queryLookupCommentCommunities)).
		WithArgs(pq.Array([]int64{5})).
		WillReturnRows(sqlmock.NewRows([]string{"comment_id", "community_id"}).AddRow(int64(5), int64(3)))
	mock.ExpectExec(regexp.QuoteMeta(kindQueries[content.KindComment].addCommunityCount)).
		WithArgs(pq.Array([]int64{3}), pq.Array([]int64{1})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(kindQueries[content.KindComment].addPersonCount)).
		WithArgs(pq.Array([]int64{1}), pq.Array([]int64{1})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	comment := content.Comment{ID: 5, Creator: 1, PostID: 2, Path: "0.5", Published: published}
	_, err = tx.ExecContext(ctx, insertComment, comment.ID, comment.Creator, comment.PostID, comment.Path)
	require.NoError(t, err)

	e := engine.NewEngine(engine.DefaultOptions())
	require.NoError(t, e.CommentsChanged(ctx, NewTxStore(tx), changeset.Insert(comment)))

	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxStore_SetCounted(t *testing.T) {
	tests := []struct {
		name  string
		kind  content.Kind
		query string
	}{
		{name: "posts", kind: content.KindPost, query: kindQueries[content.KindPost].setCounted},
		{name: "comments", kind: content.KindComment, query: kindQueries[content.KindComment].setCounted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter, mock := newMockAdapter(t)

			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta(tc.query)).
				WithArgs(pq.Array([]int64{3, 4}), pq.Array([]bool{false, true})).
				WillReturnRows(sqlmock.NewRows([]string{"creator_id", "delta"}).
					AddRow(int64(10), int64(-5)).
					AddRow(int64(11), int64(2)))
			mock.ExpectCommit()

			var flipped []storage.CreatorDelta
			err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
				var err error
				flipped, err = store.SetCounted(ctx, tc.kind, []storage.CountedFlag{
					{ThingID: 3, Counted: false},
					{ThingID: 4, Counted: true},
				})
				return err
			})
			require.NoError(t, err)
			require.Equal(t, []storage.CreatorDelta{{CreatorID: 10, Delta: -5}, {CreatorID: 11, Delta: 2}}, flipped)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestKindQueries_ScoreFollowsVisibility(t *testing.T) {
	for kind, q := range kindQueries {
		t.Run(kind.String(), func(t *testing.T) {
			require.Contains(t, q.drop, "CASE WHEN counted THEN score ELSE 0 END")
			require.Contains(t, q.applyVotes, "CASE WHEN a.counted THEN d.upvotes - d.downvotes ELSE 0 END")
			require.Contains(t, q.setCounted, "a.counted <> d.counted")
			require.Contains(t, q.resolveReports, "COALESCE(r.updated <= $3, true)")
		})
	}
}

func TestTxStore_LookupCommentCommunities(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryLookupCommentCommunities)).
		WithArgs(pq.Array([]int64{5, 6})).
		WillReturnRows(sqlmock.NewRows([]string{"comment_id", "community_id"}).AddRow(int64(5), int64(3)))
	mock.ExpectCommit()

	var communities map[int64]int64
	err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
		var err error
		communities, err = store.LookupCommentCommunities(ctx, []int64{5, 6})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, map[int64]int64{5: 3}, communities)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxStore_TreeAndSubscriberCounters(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(queryAddChildCounts)).
		WithArgs(pq.Array([]int64{100, 101}), pq.Array([]int64{2, 1})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(queryAddCommunitySubscribers)).
		WithArgs(pq.Array([]int64{3}), pq.Array([]int64{-1})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
		if err := store.AddChildCounts(ctx, []storage.ChildDelta{{CommentID: 100, Delta: 2}, {CommentID: 101, Delta: 1}}); err != nil {
			return err
		}
		return store.AddCommunitySubscribers(ctx, []storage.CommunityDelta{{CommunityID: 3, Delta: -1}})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxStore_ApplyVoteDeltas(t *testing.T) {
	tests := []struct {
		name  string
		kind  content.Kind
		query string
	}{
		{name: "posts", kind: content.KindPost, query: kindQueries[content.KindPost].applyVotes},
		{name: "comments", kind: content.KindComment, query: kindQueries[content.KindComment].applyVotes},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter, mock := newMockAdapter(t)

			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta(tc.query)).
				WithArgs(pq.Array([]int64{3, 4}), pq.Array([]int64{2, 0}), pq.Array([]int64{0, 1})).
				WillReturnRows(sqlmock.NewRows([]string{"creator_id", "delta"}).
					AddRow(int64(10), int64(2)).
					AddRow(int64(11), int64(-1)))
			mock.ExpectCommit()

			var applied []storage.CreatorDelta
			err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
				var err error
				applied, err = store.ApplyVoteDeltas(ctx, tc.kind, []storage.VoteDelta{
					{ThingID: 3, Upvotes: 2},
					{ThingID: 4, Downvotes: 1},
				})
				return err
			})
			require.NoError(t, err)
			require.Equal(t, []storage.CreatorDelta{{CreatorID: 10, Delta: 2}, {CreatorID: 11, Delta: -1}}, applied)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTxStore_ApplyPostCommentsSendsInfinityForMissingCandidates(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	newest := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(queryApplyPostComments)).
		WithArgs(
			pq.Array([]int64{1, 2}),
			pq.Array([]int64{1, -1}),
			pq.Array([]string{"2026-04-01T09:30:00Z", "-infinity"}),
			pq.Array([]string{"-infinity", "-infinity"}),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
		return store.ApplyPostComments(ctx, []storage.PostCommentDelta{
			{PostID: 1, Comments: 1, NewestCommentTime: newest},
			{PostID: 2, Comments: -1},
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxStore_SeedSite(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		wantCreated bool
	}{
		{name: "first insert creates", affected: 1, wantCreated: true},
		{name: "second insert is a no-op", affected: 0, wantCreated: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter, mock := newMockAdapter(t)

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta(querySeedSite)).
				WithArgs(int64(1)).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))
			mock.ExpectCommit()

			var created bool
			err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
				var err error
				created, err = store.SeedSite(ctx, content.Site{ID: 1})
				return err
			})
			require.NoError(t, err)
			require.Equal(t, tc.wantCreated, created)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTxStore_LookupPosts(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	published := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryLookupPosts)).
		WithArgs(pq.Array([]int64{1, 2})).
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "creator_id", "community_id", "published"}).
			AddRow(int64(1), int64(7), int64(3), published))
	mock.ExpectCommit()

	var refs map[int64]aggregation.PostRef
	err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
		var err error
		refs, err = store.LookupPosts(ctx, []int64{1, 2})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, map[int64]aggregation.PostRef{
		1: {PostID: 1, CreatorID: 7, CommunityID: 3, Published: published},
	}, refs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxStore_ResolveReports(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(kindQueries[content.KindComment].resolveReports)).
		WithArgs(pq.Array([]int64{8}), pq.Array([]int64{42}), now).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	var resolved int64
	err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
		var err error
		resolved, err = store.ResolveReports(ctx, content.KindComment, []storage.ReportResolution{{ThingID: 8, ResolverID: 42}}, now)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), resolved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxStore_EmptyInputsIssueNoStatements(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
		if err := store.SeedPosts(ctx, nil); err != nil {
			return err
		}
		if _, err := store.ApplyVoteDeltas(ctx, content.KindPost, nil); err != nil {
			return err
		}
		if err := store.AddPersonScores(ctx, content.KindComment, nil); err != nil {
			return err
		}
		if err := store.AddSiteCounts(ctx, storage.SiteDelta{}); err != nil {
			return err
		}
		if _, err := store.SetCounted(ctx, content.KindPost, nil); err != nil {
			return err
		}
		if err := store.AddChildCounts(ctx, nil); err != nil {
			return err
		}
		if err := store.AddCommunitySubscribers(ctx, nil); err != nil {
			return err
		}
		refs, err := store.LookupPosts(ctx, nil)
		if err != nil {
			return err
		}
		require.Empty(t, refs)
		communities, err := store.LookupCommentCommunities(ctx, nil)
		if err != nil {
			return err
		}
		require.Empty(t, communities)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxStore_UnknownKind(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, store storage.AggregateStore) error {
		_, err := store.DropThings(ctx, content.Kind("video"), []int64{1})
		return err
	})
	require.ErrorContains(t, err, `no statements for content kind "video"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{name: "unique violation", err: &pq.Error{Code: "23505"}, sentinel: storage.ErrConstraintViolation},
		{name: "check violation", err: &pq.Error{Code: "23514"}, sentinel: storage.ErrConstraintViolation},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, sentinel: storage.ErrSerialization},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, sentinel: storage.ErrSerialization},
		{name: "syntax error", err: &pq.Error{Code: "42601"}},
		{name: "plain error", err: errors.New("connection reset")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classify("op", tc.err)
			require.ErrorIs(t, got, tc.err)
			require.Contains(t, got.Error(), "op: ")
			if tc.sentinel != nil {
				require.ErrorIs(t, got, tc.sentinel)
				return
			}
			require.NotErrorIs(t, got, storage.ErrConstraintViolation)
			require.NotErrorIs(t, got, storage.ErrSerialization)
		})
	}
}
