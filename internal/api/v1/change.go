package v1

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op is the kind of statement a change batch records.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Tables the content subsystem reports changes for.
const (
	TablePerson           = "person"
	TableCommunity        = "community"
	TableSite             = "site"
	TablePost             = "post"
	TableComment          = "comment"
	TableCommunityFollow  = "community_follower"
	TablePostLike         = "post_like"
	TableCommentLike      = "comment_like"
	TableModRemovePost    = "mod_remove_post"
	TableModRemoveComment = "mod_remove_comment"
)

// Tables lists every table a batch may name.
var Tables = []string{
	TablePerson, TableCommunity, TableSite,
	TablePost, TableComment, TableCommunityFollow,
	TablePostLike, TableCommentLike,
	TableModRemovePost, TableModRemoveComment,
}

// ChangeBatch is the transition set of one mutating statement on a content
// table: every row image the statement removed (Old) and added (New).
type ChangeBatch struct {
	// ID identifies the batch in logs and responses. Assigned on ingestion
	// when the producer sends none.
	ID string `json:"batch_id,omitempty"`

	Table string `json:"table"`
	Op    Op     `json:"op"`

	// Old holds the before images: empty for inserts.
	Old []json.RawMessage `json:"old,omitempty"`

	// New holds the after images: empty for deletes.
	New []json.RawMessage `json:"new,omitempty"`
}

// Validate checks that the row images fit the op. An update carries one
// before and one after image per row.
func (b *ChangeBatch) Validate() error {
	if b.Table == "" {
		return fmt.Errorf("table is required")
	}

	switch b.Op {
	case OpInsert:
		if len(b.Old) > 0 {
			return fmt.Errorf("insert must not carry old rows")
		}
	case OpDelete:
		if len(b.New) > 0 {
			return fmt.Errorf("delete must not carry new rows")
		}
	case OpUpdate:
		if len(b.Old) != len(b.New) {
			return fmt.Errorf("update must carry as many old rows as new rows, got %d and %d", len(b.Old), len(b.New))
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", b.Op)
	}

	return nil
}

// Rows is the number of row images in the batch.
func (b *ChangeBatch) Rows() int { return len(b.Old) + len(b.New) }

// PostLike is a vote row of the post_like table.
type PostLike struct {
	PersonID  int64     `json:"person_id"`
	PostID    int64     `json:"post_id"`
	Score     int16     `json:"score"`
	Published time.Time `json:"published"`
}

// CommentLike is a vote row of the comment_like table.
type CommentLike struct {
	PersonID  int64     `json:"person_id"`
	CommentID int64     `json:"comment_id"`
	PostID    int64     `json:"post_id"`
	Score     int16     `json:"score"`
	Published time.Time `json:"published"`
}

// ModRemovePost records a moderator removing or restoring a post.
type ModRemovePost struct {
	ID          int64     `json:"id"`
	ModPersonID int64     `json:"mod_person_id"`
	PostID      int64     `json:"post_id"`
	Reason      string    `json:"reason,omitempty"`
	Removed     bool      `json:"removed"`
	When        time.Time `json:"when_"`
}

// ModRemoveComment records a moderator removing or restoring a comment.
type ModRemoveComment struct {
	ID          int64     `json:"id"`
	ModPersonID int64     `json:"mod_person_id"`
	CommentID   int64     `json:"comment_id"`
	Reason      string    `json:"reason,omitempty"`
	Removed     bool      `json:"removed"`
	When        time.Time `json:"when_"`
}

// ChangeResponse is returned once a batch has been applied.
type ChangeResponse struct {
	Status  string `json:"status"`
	BatchID string `json:"batch_id"`
}
