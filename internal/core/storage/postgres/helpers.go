package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
	"github.com/lib/pq"
)

const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateClassIntegrity       = "23"
)

// classify wraps a driver error with the storage sentinel it maps to, keeping
// the original error in the chain.
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == sqlstateClassIntegrity:
			return fmt.Errorf("%s: %w: %w", op, storage.ErrConstraintViolation, err)
		case pqErr.Code == sqlstateSerializationFailure, pqErr.Code == sqlstateDeadlockDetected:
			return fmt.Errorf("%s: %w: %w", op, storage.ErrSerialization, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// timestamps renders times as a text array castable to timestamptz[]. The
// zero time becomes -infinity.
func timestamps(ts []time.Time) interface{} {
	out := make([]string, len(ts))
	for i, t := range ts {
		if t.IsZero() {
			out[i] = "-infinity"
			continue
		}
		out[i] = t.UTC().Format(time.RFC3339Nano)
	}
	return pq.Array(out)
}

func queriesFor(kind content.Kind) (thingQueries, error) {
	q, ok := kindQueries[kind]
	if !ok {
		return thingQueries{}, fmt.Errorf("no statements for content kind %q", kind)
	}
	return q, nil
}

func creatorColumns(deltas []storage.CreatorDelta) (ids, values []int64) {
	ids = make([]int64, len(deltas))
	values = make([]int64, len(deltas))
	for i, d := range deltas {
		ids[i], values[i] = d.CreatorID, d.Delta
	}
	return ids, values
}

func communityColumns(deltas []storage.CommunityDelta) (ids, values []int64) {
	ids = make([]int64, len(deltas))
	values = make([]int64, len(deltas))
	for i, d := range deltas {
		ids[i], values[i] = d.CommunityID, d.Delta
	}
	return ids, values
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCreatorDelta(row scanner) (storage.CreatorDelta, error) {
	var d storage.CreatorDelta
	if err := row.Scan(&d.CreatorID, &d.Delta); err != nil {
		return storage.CreatorDelta{}, fmt.Errorf("scan creator delta: %w", err)
	}
	return d, nil
}
