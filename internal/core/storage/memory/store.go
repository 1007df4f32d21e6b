// Package memory is an in-process AggregateStore. It mirrors the statement
// semantics of the Postgres store and is used by the engine tests and by the
// binary when no database is configured.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aevon-lab/project-tally/internal/core/aggregation"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
)

// Report is a content report as the resolver sees it. A zero Updated means
// the report was never edited.
type Report struct {
	ID         int64
	Kind       content.Kind
	ThingID    int64
	Resolved   bool
	ResolverID int64
	Updated    time.Time
}

type state struct {
	persons     map[int64]aggregation.PersonAggregate
	communities map[int64]aggregation.CommunityAggregate
	site        *aggregation.SiteAggregate
	posts       map[int64]aggregation.PostAggregate
	comments    map[int64]aggregation.CommentAggregate
	reports     []Report
}

func newState() *state {
	return &state{
		persons:     make(map[int64]aggregation.PersonAggregate),
		communities: make(map[int64]aggregation.CommunityAggregate),
		posts:       make(map[int64]aggregation.PostAggregate),
		comments:    make(map[int64]aggregation.CommentAggregate),
	}
}

func (s *state) clone() *state {
	c := &state{
		persons:     maps.Clone(s.persons),
		communities: maps.Clone(s.communities),
		posts:       maps.Clone(s.posts),
		comments:    maps.Clone(s.comments),
		reports:     slices.Clone(s.reports),
	}
	if s.site != nil {
		site := *s.site
		c.site = &site
	}
	return c
}

// Store holds committed aggregate state. Transactions run one at a time
// against a private copy that replaces the committed state only on success.
type Store struct {
	mu     sync.RWMutex
	st     *state
	nextID int64
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// RunInTx implements storage.TxRunner.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, store storage.AggregateStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory tx: %w", err)
	}

	tx := &txStore{st: s.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// AddReport files an open report against a thing and returns its id.
func (s *Store) AddReport(kind content.Kind, thingID int64, updated time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.st.reports = append(s.st.reports, Report{ID: s.nextID, Kind: kind, ThingID: thingID, Updated: updated})
	return s.nextID
}

func (s *Store) Person(id int64) (aggregation.PersonAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.persons[id]
	return p, ok
}

func (s *Store) Community(id int64) (aggregation.CommunityAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.communities[id]
	return c, ok
}

func (s *Store) Post(id int64) (aggregation.PostAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.posts[id]
	return p, ok
}

func (s *Store) Comment(id int64) (aggregation.CommentAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.comments[id]
	return c, ok
}

// Site returns the site aggregate, if one was seeded.
func (s *Store) Site() (aggregation.SiteAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.st.site == nil {
		return aggregation.SiteAggregate{}, false
	}
	return *s.st.site, true
}

// Reports returns the reports filed against one thing, in filing order.
func (s *Store) Reports(kind content.Kind, thingID int64) []Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Report
	for _, r := range s.st.reports {
		if r.Kind == kind && r.ThingID == thingID {
			out = append(out, r)
		}
	}
	return out
}

// Thing returns the vote statistics of a post or comment.
func (s *Store) Thing(kind content.Kind, id int64) (aggregation.ThingAggregate, bool) {
	if kind == content.KindPost {
		p, ok := s.Post(id)
		return p.ThingAggregate, ok
	}
	c, ok := s.Comment(id)
	return c.ThingAggregate, ok
}
