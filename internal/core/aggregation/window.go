package aggregation

import (
	"fmt"
	"time"
)

// DefaultNecroWindow is how long after a post a reply still bumps the necro
// timestamp.
const DefaultNecroWindow = 48 * time.Hour

// WindowSpec represents a parsed and validated window size.
type WindowSpec struct {
	Size time.Duration
}

// ParseWindowSize parses a duration string into a WindowSpec.
// Supports Go duration syntax (e.g., "10s", "1m", "1h") plus "Xd" for days.
func ParseWindowSize(s string) (WindowSpec, error) {
	if s == "" {
		return WindowSpec{}, fmt.Errorf("window_size must not be empty")
	}

	// time.ParseDuration has no day unit.
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return WindowSpec{}, fmt.Errorf("invalid window_size %q: %w", s, err)
		}
		if days <= 0 {
			return WindowSpec{}, fmt.Errorf("window_size must be positive, got %q", s)
		}
		return WindowSpec{Size: time.Duration(days) * 24 * time.Hour}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return WindowSpec{}, fmt.Errorf("invalid window_size %q: %w", s, err)
	}
	if d <= 0 {
		return WindowSpec{}, fmt.Errorf("window_size must be positive, got %q", s)
	}
	return WindowSpec{Size: d}, nil
}

// NecroPolicy decides which new comments may move newest_comment_time_necro.
// A reply counts when it comes from someone other than the post creator and
// lands within Window of the post being published; late replies to old
// threads (necro bumps) only move newest_comment_time.
type NecroPolicy struct {
	Window time.Duration
}

// DefaultNecroPolicy returns the 2 day policy.
func DefaultNecroPolicy() NecroPolicy {
	return NecroPolicy{Window: DefaultNecroWindow}
}

// Bumps reports whether a comment by commenterID published at published
// qualifies for the necro timestamp of post.
func (p NecroPolicy) Bumps(post PostRef, commenterID int64, published time.Time) bool {
	if commenterID == post.CreatorID {
		return false
	}
	return post.Published.After(published.Add(-p.Window))
}
