package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/project-tally/internal/core/aggregation"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
	"github.com/lib/pq"
)

// txStore implements storage.AggregateStore on one open transaction.
type txStore struct {
	tx *sql.Tx
}

var _ storage.AggregateStore = (*txStore)(nil)

// NewTxStore binds an aggregate store to a transaction the caller owns, so the
// reactions commit or roll back together with the content write that caused
// them. The caller is responsible for Commit and Rollback.
func NewTxStore(tx *sql.Tx) storage.AggregateStore {
	return &txStore{tx: tx}
}

func (s *txStore) exec(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	result, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return affected, nil
}

func (s *txStore) queryCreatorDeltas(ctx context.Context, op, query string, args ...interface{}) ([]storage.CreatorDelta, error) {
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var deltas []storage.CreatorDelta
	for rows.Next() {
		d, err := scanCreatorDelta(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		deltas = append(deltas, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op+": iterate rows", err)
	}
	return deltas, nil
}

func (s *txStore) SeedPersons(ctx context.Context, persons []content.Person) error {
	if len(persons) == 0 {
		return nil
	}
	ids := make([]int64, len(persons))
	for i, p := range persons {
		ids[i] = p.ID
	}
	_, err := s.exec(ctx, "seed persons", querySeedPersons, pq.Array(ids))
	return err
}

func (s *txStore) SeedCommunities(ctx context.Context, communities []content.Community) error {
	if len(communities) == 0 {
		return nil
	}
	ids := make([]int64, len(communities))
	instances := make([]int64, len(communities))
	published := make([]time.Time, len(communities))
	for i, c := range communities {
		ids[i], instances[i], published[i] = c.ID, c.InstanceID, c.Published
	}
	_, err := s.exec(ctx, "seed communities", querySeedCommunities,
		pq.Array(ids), pq.Array(instances), timestamps(published))
	return err
}

func (s *txStore) SeedSite(ctx context.Context, site content.Site) (bool, error) {
	affected, err := s.exec(ctx, "seed site", querySeedSite, site.ID)
	if err != nil {
		return false, err
	}
	if affected == 0 {
		slog.Debug("[Postgres] Site aggregate already present", "site_id", site.ID)
	}
	return affected > 0, nil
}

func (s *txStore) SeedPosts(ctx context.Context, posts []content.Post) error {
	if len(posts) == 0 {
		return nil
	}
	var (
		ids               = make([]int64, len(posts))
		creators          = make([]int64, len(posts))
		communities       = make([]int64, len(posts))
		published         = make([]time.Time, len(posts))
		featuredCommunity = make([]bool, len(posts))
		featuredLocal     = make([]bool, len(posts))
		counted           = make([]bool, len(posts))
	)
	for i, p := range posts {
		ids[i], creators[i], communities[i], published[i] = p.ID, p.Creator, p.CommunityID, p.Published
		featuredCommunity[i], featuredLocal[i], counted[i] = p.FeaturedCommunity, p.FeaturedLocal, p.Counted()
	}
	_, err := s.exec(ctx, "seed posts", querySeedPosts,
		pq.Array(ids), pq.Array(creators), pq.Array(communities), timestamps(published),
		pq.Array(featuredCommunity), pq.Array(featuredLocal), pq.Array(counted))
	return err
}

func (s *txStore) SeedComments(ctx context.Context, comments []content.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	var (
		ids       = make([]int64, len(comments))
		creators  = make([]int64, len(comments))
		posts     = make([]int64, len(comments))
		published = make([]time.Time, len(comments))
		counted   = make([]bool, len(comments))
	)
	for i, c := range comments {
		ids[i], creators[i], posts[i], published[i], counted[i] = c.ID, c.Creator, c.PostID, c.Published, c.Counted()
	}
	_, err := s.exec(ctx, "seed comments", querySeedComments,
		pq.Array(ids), pq.Array(creators), pq.Array(posts), timestamps(published), pq.Array(counted))
	return err
}

func (s *txStore) DropThings(ctx context.Context, kind content.Kind, ids []int64) ([]storage.CreatorDelta, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	return s.queryCreatorDeltas(ctx, "drop "+kind.String()+" aggregates", q.drop, pq.Array(ids))
}

func (s *txStore) DropPersons(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.exec(ctx, "drop person aggregates", queryDropPersons, pq.Array(ids))
	return err
}

func (s *txStore) DropCommunities(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.exec(ctx, "drop community aggregates", queryDropCommunities, pq.Array(ids))
	return err
}

func (s *txStore) ApplyVoteDeltas(ctx context.Context, kind content.Kind, deltas []storage.VoteDelta) ([]storage.CreatorDelta, error) {
	if len(deltas) == 0 {
		return nil, nil
	}
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	var (
		ids  = make([]int64, len(deltas))
		up   = make([]int64, len(deltas))
		down = make([]int64, len(deltas))
	)
	for i, d := range deltas {
		ids[i], up[i], down[i] = d.ThingID, d.Upvotes, d.Downvotes
	}
	return s.queryCreatorDeltas(ctx, "apply "+kind.String()+" votes", q.applyVotes,
		pq.Array(ids), pq.Array(up), pq.Array(down))
}

func (s *txStore) SetCounted(ctx context.Context, kind content.Kind, flags []storage.CountedFlag) ([]storage.CreatorDelta, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(flags))
	counted := make([]bool, len(flags))
	for i, f := range flags {
		ids[i], counted[i] = f.ThingID, f.Counted
	}
	return s.queryCreatorDeltas(ctx, "set "+kind.String()+" counted", q.setCounted, pq.Array(ids), pq.Array(counted))
}

func (s *txStore) AddPersonScores(ctx context.Context, kind content.Kind, deltas []storage.CreatorDelta) error {
	return s.addCreatorDeltas(ctx, kind, "add person "+kind.String()+" scores", deltas, func(q thingQueries) string {
		return q.addPersonScore
	})
}

func (s *txStore) AddPersonCounts(ctx context.Context, kind content.Kind, deltas []storage.CreatorDelta) error {
	return s.addCreatorDeltas(ctx, kind, "add person "+kind.String()+" counts", deltas, func(q thingQueries) string {
		return q.addPersonCount
	})
}

func (s *txStore) addCreatorDeltas(ctx context.Context, kind content.Kind, op string, deltas []storage.CreatorDelta, pick func(thingQueries) string) error {
	if len(deltas) == 0 {
		return nil
	}
	q, err := queriesFor(kind)
	if err != nil {
		return err
	}
	ids, values := creatorColumns(deltas)
	_, err = s.exec(ctx, op, pick(q), pq.Array(ids), pq.Array(values))
	return err
}

func (s *txStore) LookupPosts(ctx context.Context, ids []int64) (map[int64]aggregation.PostRef, error) {
	refs := make(map[int64]aggregation.PostRef, len(ids))
	if len(ids) == 0 {
		return refs, nil
	}

	rows, err := s.tx.QueryContext(ctx, queryLookupPosts, pq.Array(ids))
	if err != nil {
		return nil, classify("lookup posts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref aggregation.PostRef
		if err := rows.Scan(&ref.PostID, &ref.CreatorID, &ref.CommunityID, &ref.Published); err != nil {
			return nil, fmt.Errorf("lookup posts: scan row: %w", err)
		}
		refs[ref.PostID] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, classify("lookup posts: iterate rows", err)
	}
	return refs, nil
}

func (s *txStore) LookupCommentCommunities(ctx context.Context, ids []int64) (map[int64]int64, error) {
	communities := make(map[int64]int64, len(ids))
	if len(ids) == 0 {
		return communities, nil
	}

	rows, err := s.tx.QueryContext(ctx, queryLookupCommentCommunities, pq.Array(ids))
	if err != nil {
		return nil, classify("lookup comment communities", err)
	}
	defer rows.Close()

	for rows.Next() {
		var commentID, communityID int64
		if err := rows.Scan(&commentID, &communityID); err != nil {
			return nil, fmt.Errorf("lookup comment communities: scan row: %w", err)
		}
		communities[commentID] = communityID
	}
	if err := rows.Err(); err != nil {
		return nil, classify("lookup comment communities: iterate rows", err)
	}
	return communities, nil
}

func (s *txStore) AddChildCounts(ctx context.Context, deltas []storage.ChildDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	ids := make([]int64, len(deltas))
	values := make([]int64, len(deltas))
	for i, d := range deltas {
		ids[i], values[i] = d.CommentID, d.Delta
	}
	_, err := s.exec(ctx, "add comment child counts", queryAddChildCounts, pq.Array(ids), pq.Array(values))
	return err
}

func (s *txStore) ApplyPostComments(ctx context.Context, deltas []storage.PostCommentDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	var (
		ids         = make([]int64, len(deltas))
		comments    = make([]int64, len(deltas))
		newest      = make([]time.Time, len(deltas))
		newestNecro = make([]time.Time, len(deltas))
	)
	for i, d := range deltas {
		ids[i], comments[i] = d.PostID, d.Comments
		newest[i], newestNecro[i] = d.NewestCommentTime, d.NewestCommentTimeNecro
	}
	_, err := s.exec(ctx, "apply post comments", queryApplyPostComments,
		pq.Array(ids), pq.Array(comments), timestamps(newest), timestamps(newestNecro))
	return err
}

func (s *txStore) AddCommunityCounts(ctx context.Context, kind content.Kind, deltas []storage.CommunityDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	q, err := queriesFor(kind)
	if err != nil {
		return err
	}
	ids, values := communityColumns(deltas)
	_, err = s.exec(ctx, "add community "+kind.String()+" counts", q.addCommunityCount, pq.Array(ids), pq.Array(values))
	return err
}

func (s *txStore) AddCommunitySubscribers(ctx context.Context, deltas []storage.CommunityDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	ids, values := communityColumns(deltas)
	_, err := s.exec(ctx, "add community subscribers", queryAddCommunitySubscribers, pq.Array(ids), pq.Array(values))
	return err
}

func (s *txStore) AddSiteCounts(ctx context.Context, delta storage.SiteDelta) error {
	if delta.IsZero() {
		return nil
	}
	_, err := s.exec(ctx, "add site counts", queryAddSiteCounts,
		delta.Users, delta.Communities, delta.Posts, delta.Comments)
	return err
}

func (s *txStore) ResolveReports(ctx context.Context, kind content.Kind, resolutions []storage.ReportResolution, now time.Time) (int64, error) {
	if len(resolutions) == 0 {
		return 0, nil
	}
	q, err := queriesFor(kind)
	if err != nil {
		return 0, err
	}
	things := make([]int64, len(resolutions))
	resolvers := make([]int64, len(resolutions))
	for i, r := range resolutions {
		things[i], resolvers[i] = r.ThingID, r.ResolverID
	}
	return s.exec(ctx, "resolve "+kind.String()+" reports", q.resolveReports,
		pq.Array(things), pq.Array(resolvers), now)
}

func (s *txStore) SetPostFeatured(ctx context.Context, flags []storage.FeaturedFlags) error {
	if len(flags) == 0 {
		return nil
	}
	var (
		ids               = make([]int64, len(flags))
		featuredCommunity = make([]bool, len(flags))
		featuredLocal     = make([]bool, len(flags))
	)
	for i, f := range flags {
		ids[i], featuredCommunity[i], featuredLocal[i] = f.PostID, f.FeaturedCommunity, f.FeaturedLocal
	}
	_, err := s.exec(ctx, "set post featured", querySetPostFeatured,
		pq.Array(ids), pq.Array(featuredCommunity), pq.Array(featuredLocal))
	return err
}
