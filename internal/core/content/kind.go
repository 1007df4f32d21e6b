// Package content defines the row images of the forum tables the aggregation
// reactions consume, and the Thing capability shared by posts and comments.
package content

import (
	"fmt"
	"time"
)

// Kind selects which variant of voteable content a reaction runs for.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// Kinds lists every thing variant, in the order reactions are registered.
var Kinds = []Kind{KindPost, KindComment}

// ParseKind validates a kind name coming from the wire.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPost, KindComment:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown content kind %q", s)
}

func (k Kind) String() string { return string(k) }

// Thing is the capability shared by posts and comments. The aggregation
// reactions are written once against this interface instead of once per kind.
type Thing interface {
	ThingID() int64
	CreatorID() int64
	PublishedAt() time.Time
	// Counted reports whether the row contributes to counters: neither
	// deleted by its creator nor removed by a moderator.
	Counted() bool
	IsLocal() bool
}
