package postgres

import "github.com/aevon-lab/project-tally/internal/core/content"

// SQL for the aggregate tables. Every statement takes its keys as parallel
// arrays and joins them through unnest, so one statement covers a whole batch.

const (
	querySeedPersons = `
		INSERT INTO person_aggregates (person_id)
		SELECT id FROM unnest($1::bigint[]) AS id
	`

	querySeedCommunities = `
		INSERT INTO community_aggregates (community_id, instance_id, published)
		SELECT c.community_id, c.instance_id, c.published
		FROM unnest($1::bigint[], $2::bigint[], $3::timestamptz[])
			AS c(community_id, instance_id, published)
	`

	// The singleton key makes a second site insert a no-op.
	querySeedSite = `
		INSERT INTO site_aggregates (site_id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`

	querySeedPosts = `
		INSERT INTO post_aggregates (
			post_id, creator_id, community_id, instance_id, published,
			newest_comment_time, newest_comment_time_necro,
			featured_community, featured_local, counted
		)
		SELECT p.post_id, p.creator_id, p.community_id, ca.instance_id, p.published,
			p.published, p.published,
			p.featured_community, p.featured_local, p.counted
		FROM unnest($1::bigint[], $2::bigint[], $3::bigint[], $4::timestamptz[], $5::boolean[], $6::boolean[], $7::boolean[])
			AS p(post_id, creator_id, community_id, published, featured_community, featured_local, counted)
		JOIN community_aggregates ca ON ca.community_id = p.community_id
		ON CONFLICT (post_id) DO UPDATE SET
			featured_community = EXCLUDED.featured_community,
			featured_local     = EXCLUDED.featured_local
	`

	// The community is copied from the post so the comment stays routable
	// after the post aggregate is dropped.
	querySeedComments = `
		INSERT INTO comment_aggregates (comment_id, creator_id, post_id, community_id, published, counted)
		SELECT c.comment_id, c.creator_id, c.post_id, pa.community_id, c.published, c.counted
		FROM unnest($1::bigint[], $2::bigint[], $3::bigint[], $4::timestamptz[], $5::boolean[])
			AS c(comment_id, creator_id, post_id, published, counted)
		LEFT JOIN post_aggregates pa ON pa.post_id = c.post_id
	`

	queryDropPersons     = `DELETE FROM person_aggregates WHERE person_id = ANY($1::bigint[])`
	queryDropCommunities = `DELETE FROM community_aggregates WHERE community_id = ANY($1::bigint[])`

	queryLookupPosts = `
		SELECT post_id, creator_id, community_id, published
		FROM post_aggregates
		WHERE post_id = ANY($1::bigint[])
	`

	queryLookupCommentCommunities = `
		SELECT comment_id, community_id
		FROM comment_aggregates
		WHERE comment_id = ANY($1::bigint[]) AND community_id IS NOT NULL
	`

	queryAddChildCounts = `
		UPDATE comment_aggregates AS a SET child_count = a.child_count + d.delta
		FROM unnest($1::bigint[], $2::bigint[]) AS d(comment_id, delta)
		WHERE a.comment_id = d.comment_id
	`

	queryAddCommunitySubscribers = `
		UPDATE community_aggregates AS a SET subscribers = a.subscribers + d.delta
		FROM unnest($1::bigint[], $2::bigint[]) AS d(community_id, delta)
		WHERE a.community_id = d.community_id
	`

	// Zero candidates arrive as -infinity, which GREATEST never picks.
	queryApplyPostComments = `
		UPDATE post_aggregates AS a SET
			comments                  = a.comments + d.comments,
			newest_comment_time       = GREATEST(a.newest_comment_time, d.newest),
			newest_comment_time_necro = GREATEST(a.newest_comment_time_necro, d.newest_necro)
		FROM unnest($1::bigint[], $2::bigint[], $3::timestamptz[], $4::timestamptz[])
			AS d(post_id, comments, newest, newest_necro)
		WHERE a.post_id = d.post_id
	`

	queryAddSiteCounts = `
		UPDATE site_aggregates SET
			users       = users + $1,
			communities = communities + $2,
			posts       = posts + $3,
			comments    = comments + $4
	`

	querySetPostFeatured = `
		UPDATE post_aggregates AS a SET
			featured_community = d.featured_community,
			featured_local     = d.featured_local
		FROM unnest($1::bigint[], $2::boolean[], $3::boolean[])
			AS d(post_id, featured_community, featured_local)
		WHERE a.post_id = d.post_id
	`
)

// thingQueries are the statements that exist once per content kind.
type thingQueries struct {
	drop              string
	applyVotes        string
	setCounted        string
	addPersonScore    string
	addPersonCount    string
	addCommunityCount string
	resolveReports    string
}

var kindQueries = map[content.Kind]thingQueries{
	content.KindPost: {
		drop: `
		DELETE FROM post_aggregates WHERE post_id = ANY($1::bigint[])
		RETURNING creator_id, CASE WHEN counted THEN score ELSE 0 END
	`,
		applyVotes: `
		UPDATE post_aggregates AS a SET
			upvotes          = a.upvotes + d.upvotes,
			downvotes        = a.downvotes + d.downvotes,
			score            = a.score + d.upvotes - d.downvotes,
			controversy_rank = controversy_rank(a.upvotes + d.upvotes, a.downvotes + d.downvotes)
		FROM unnest($1::bigint[], $2::bigint[], $3::bigint[]) AS d(thing_id, upvotes, downvotes)
		WHERE a.post_id = d.thing_id
		RETURNING a.creator_id, CASE WHEN a.counted THEN d.upvotes - d.downvotes ELSE 0 END
	`,
		setCounted: `
		UPDATE post_aggregates AS a SET counted = d.counted
		FROM unnest($1::bigint[], $2::boolean[]) AS d(thing_id, counted)
		WHERE a.post_id = d.thing_id AND a.counted <> d.counted
		RETURNING a.creator_id, CASE WHEN d.counted THEN a.score ELSE -a.score END
	`,
		addPersonScore: `
		UPDATE person_aggregates AS a SET post_score = a.post_score + d.delta
		FROM unnest($1::bigint[], $2::bigint[]) AS d(person_id, delta)
		WHERE a.person_id = d.person_id
	`,
		addPersonCount: `
		UPDATE person_aggregates AS a SET post_count = a.post_count + d.delta
		FROM unnest($1::bigint[], $2::bigint[]) AS d(person_id, delta)
		WHERE a.person_id = d.person_id
	`,
		addCommunityCount: `
		UPDATE community_aggregates AS a SET posts = a.posts + d.delta
		FROM unnest($1::bigint[], $2::bigint[]) AS d(community_id, delta)
		WHERE a.community_id = d.community_id
	`,
		resolveReports: `
		UPDATE post_report AS r SET
			resolved    = true,
			resolver_id = d.resolver_id,
			updated     = $3
		FROM unnest($1::bigint[], $2::bigint[]) AS d(thing_id, resolver_id)
		WHERE r.post_id = d.thing_id
		  AND NOT r.resolved
		  AND COALESCE(r.updated <= $3, true)
	`,
	},
	content.KindComment: {
		drop: `
		DELETE FROM comment_aggregates WHERE comment_id = ANY($1::bigint[])
		RETURNING creator_id, CASE WHEN counted THEN score ELSE 0 END
	`,
		applyVotes: `
		UPDATE comment_aggregates AS a SET
			upvotes          = a.upvotes + d.upvotes,
			downvotes        = a.downvotes + d.downvotes,
			score            = a.score + d.upvotes - d.downvotes,
			controversy_rank = controversy_rank(a.upvotes + d.upvotes, a.downvotes + d.downvotes)
		FROM unnest($1::bigint[], $2::bigint[], $3::bigint[]) AS d(thing_id, upvotes, downvotes)
		WHERE a.comment_id = d.thing_id
		RETURNING a.creator_id, CASE WHEN a.counted THEN d.upvotes - d.downvotes ELSE 0 END
	`,
		setCounted: `
		UPDATE comment_aggregates AS a SET counted = d.counted
		FROM unnest($1::bigint[], $2::boolean[]) AS d(thing_id, counted)
		WHERE a.comment_id = d.thing_id AND a.counted <> d.counted
		RETURNING a.creator_id, CASE WHEN d.counted THEN a.score ELSE -a.score END
	`,
		addPersonScore: `
		UPDATE person_aggregates AS a SET comment_score = a.comment_score + d.delta
		FROM unnest($1::bigint[], $2::bigint[]) AS d(person_id, delta)
		WHERE a.person_id = d.person_id
	`,
		addPersonCount: `
		UPDATE person_aggregates AS a SET comment_count = a.comment_count + d.delta
		FROM unnest($1::bigint[], $2::bigint[]) AS d(person_id, delta)
		WHERE a.person_id = d.person_id
	`,
		addCommunityCount: `
		UPDATE community_aggregates AS a SET comments = a.comments + d.delta
		FROM unnest($1::bigint[], $2::bigint[]) AS d(community_id, delta)
		WHERE a.community_id = d.community_id
	`,
		resolveReports: `
		UPDATE comment_report AS r SET
			resolved    = true,
			resolver_id = d.resolver_id,
			updated     = $3
		FROM unnest($1::bigint[], $2::bigint[]) AS d(thing_id, resolver_id)
		WHERE r.comment_id = d.thing_id
		  AND NOT r.resolved
		  AND COALESCE(r.updated <= $3, true)
	`,
	},
}
