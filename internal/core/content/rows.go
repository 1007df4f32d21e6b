package content

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UpvoteScore is the vote value classified as an upvote. Every other score
// counts as a downvote.
const UpvoteScore int16 = 1

// Post is the row image of a post as emitted by the content subsystem.
type Post struct {
	ID                int64     `json:"id"`
	Creator           int64     `json:"creator_id"`
	CommunityID       int64     `json:"community_id"`
	Published         time.Time `json:"published"`
	Deleted           bool      `json:"deleted"`
	Removed           bool      `json:"removed"`
	Local             bool      `json:"local"`
	FeaturedCommunity bool      `json:"featured_community"`
	FeaturedLocal     bool      `json:"featured_local"`
}

func (p Post) ThingID() int64         { return p.ID }
func (p Post) CreatorID() int64       { return p.Creator }
func (p Post) PublishedAt() time.Time { return p.Published }
func (p Post) Counted() bool          { return !p.Deleted && !p.Removed }
func (p Post) IsLocal() bool          { return p.Local }

// Comment is the row image of a comment. Path is the dotted chain of ids from
// the root marker down to the comment itself, e.g. "0.12.40" for comment 40
// replying to 12. A top level comment is "0.<id>", a fresh row may still be "0".
type Comment struct {
	ID        int64     `json:"id"`
	Creator   int64     `json:"creator_id"`
	PostID    int64     `json:"post_id"`
	Path      string    `json:"path"`
	Published time.Time `json:"published"`
	Deleted   bool      `json:"deleted"`
	Removed   bool      `json:"removed"`
	Local     bool      `json:"local"`
}

func (c Comment) ThingID() int64         { return c.ID }
func (c Comment) CreatorID() int64       { return c.Creator }
func (c Comment) PublishedAt() time.Time { return c.Published }
func (c Comment) Counted() bool          { return !c.Deleted && !c.Removed }
func (c Comment) IsLocal() bool          { return c.Local }

// RootPath is the path of a comment that has no place in a tree yet.
const RootPath = "0"

// Ancestors returns the ids on the comment's path, root first, excluding the
// root marker and the comment itself.
func (c Comment) Ancestors() ([]int64, error) {
	if c.Path == "" || c.Path == RootPath {
		return nil, nil
	}
	labels := strings.Split(c.Path, ".")
	if labels[0] != RootPath {
		return nil, fmt.Errorf("comment %d: path %q does not start at the root", c.ID, c.Path)
	}
	var out []int64
	for _, label := range labels[1:] {
		id, err := strconv.ParseInt(label, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("comment %d: path %q: %w", c.ID, c.Path, err)
		}
		if id != c.ID {
			out = append(out, id)
		}
	}
	return out, nil
}

// Vote is one person's vote on a thing. It is unique per (PersonID, ThingID)
// within a kind.
type Vote struct {
	PersonID int64     `json:"person_id"`
	ThingID  int64     `json:"thing_id"`
	Score    int16     `json:"score"`
	Voted    time.Time `json:"published"`
}

// IsUpvote applies the binary classification: there is no abstention state.
func (v Vote) IsUpvote() bool { return v.Score == UpvoteScore }

// Person is the row image of a user account.
type Person struct {
	ID        int64     `json:"id"`
	Published time.Time `json:"published"`
	Local     bool      `json:"local"`
}

// Community is the row image of a community.
type Community struct {
	ID         int64     `json:"id"`
	InstanceID int64     `json:"instance_id"`
	Published  time.Time `json:"published"`
	Local      bool      `json:"local"`
}

// Site is the row image of the local site.
type Site struct {
	ID        int64     `json:"id"`
	Published time.Time `json:"published"`
}

// CommunityFollower is one person's subscription to a community. Pending
// follows of remote communities still count.
type CommunityFollower struct {
	ID          int64     `json:"id"`
	CommunityID int64     `json:"community_id"`
	PersonID    int64     `json:"person_id"`
	Published   time.Time `json:"published"`
	Pending     bool      `json:"pending"`
}

// Removal is a moderator remove/restore action recorded against a thing.
type Removal struct {
	ID          int64     `json:"id"`
	ModPersonID int64     `json:"mod_person_id"`
	ThingID     int64     `json:"thing_id"`
	Removed     bool      `json:"removed"`
	When        time.Time `json:"when_"`
}
