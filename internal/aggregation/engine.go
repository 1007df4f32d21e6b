// Package aggregation keeps the aggregate tables in step with mutations of
// the content tables. Each reaction receives the full transition of one
// statement, computes grouped deltas in a single pass and issues one
// set-based store write per aggregate table it touches.
package aggregation

import (
	"time"

	"github.com/aevon-lab/project-tally/internal/core/aggregation"
)

// Options controls the policies the reactions apply.
type Options struct {
	// NecroWindow bounds how late after a post a reply still counts for
	// newest_comment_time_necro. Zero keeps the default policy.
	NecroWindow time.Duration
	// SiteCounters enables the site-wide users/communities/posts/comments
	// counters.
	SiteCounters bool
	// Now stamps report resolutions. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the 2 day necro window with site counters off.
func DefaultOptions() Options {
	return Options{NecroWindow: aggregation.DefaultNecroWindow}
}

func (o Options) normalized() Options {
	n := o
	if n.Now == nil {
		n.Now = time.Now
	}
	return n
}

// Engine holds no state between calls; every reaction works entirely through
// the transaction-scoped store it is handed.
type Engine struct {
	necro        aggregation.NecroPolicy
	siteCounters bool
	now          func() time.Time
}

// NewEngine builds an engine from opts, filling in defaults.
func NewEngine(opts Options) *Engine {
	opts = opts.normalized()
	necro := aggregation.DefaultNecroPolicy()
	if opts.NecroWindow > 0 {
		necro.Window = opts.NecroWindow
	}
	return &Engine{
		necro:        necro,
		siteCounters: opts.SiteCounters,
		now:          opts.Now,
	}
}
