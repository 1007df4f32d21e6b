// Package changeset turns the transition set of one mutating statement into
// a stream of signed deltas that can be grouped and summed in a single pass.
package changeset

import (
	"cmp"
	"iter"
	"slices"
	"time"
)

// Sign of a delta: removed rows subtract, added rows add.
const (
	Removed = -1
	Added   = 1
)

// Transition holds the before and after images of every row touched by one
// statement. Inserts have no Removed rows, deletes have no Added rows, and
// updates carry both (old value removed, new value added).
type Transition[T any] struct {
	Removed []T
	Added   []T
}

// Insert builds the transition of a pure insert.
func Insert[T any](rows ...T) Transition[T] { return Transition[T]{Added: rows} }

// Delete builds the transition of a pure delete.
func Delete[T any](rows ...T) Transition[T] { return Transition[T]{Removed: rows} }

// Update builds the transition of an update from its old and new images.
func Update[T any](before, after []T) Transition[T] { return Transition[T]{Removed: before, Added: after} }

// Empty reports whether the statement touched no rows.
func (t Transition[T]) Empty() bool { return len(t.Removed) == 0 && len(t.Added) == 0 }

// Len is the number of row images in the transition.
func (t Transition[T]) Len() int { return len(t.Removed) + len(t.Added) }

// Delta is one row image tagged with its sign.
type Delta[T any] struct {
	Sign int64
	Row  T
}

// Deltas yields removed rows tagged -1 followed by added rows tagged +1.
// Consumers only rely on grouped sums, never on the order.
func (t Transition[T]) Deltas() iter.Seq[Delta[T]] {
	return func(yield func(Delta[T]) bool) {
		for _, row := range t.Removed {
			if !yield(Delta[T]{Sign: Removed, Row: row}) {
				return
			}
		}
		for _, row := range t.Added {
			if !yield(Delta[T]{Sign: Added, Row: row}) {
				return
			}
		}
	}
}

// Filter keeps the deltas whose row satisfies keep.
func Filter[T any](seq iter.Seq[Delta[T]], keep func(T) bool) iter.Seq[Delta[T]] {
	return func(yield func(Delta[T]) bool) {
		for d := range seq {
			if keep(d.Row) && !yield(d) {
				return
			}
		}
	}
}

// SumBy groups the stream by key and sums sign*weight per group.
func SumBy[T any, K comparable](seq iter.Seq[Delta[T]], key func(T) K, weight func(T) int64) map[K]int64 {
	sums := make(map[K]int64)
	for d := range seq {
		sums[key(d.Row)] += d.Sign * weight(d.Row)
	}
	return sums
}

// CountBy groups the stream by key and sums the signs, giving the net number
// of rows per key.
func CountBy[T any, K comparable](seq iter.Seq[Delta[T]], key func(T) K) map[K]int64 {
	return SumBy(seq, key, func(T) int64 { return 1 })
}

// MaxBy groups the added rows of the stream by key and keeps the latest
// timestamp per group. Removed rows never lower a maximum, so they are skipped.
func MaxBy[T any, K comparable](seq iter.Seq[Delta[T]], key func(T) K, at func(T) time.Time) map[K]time.Time {
	latest := make(map[K]time.Time)
	for d := range seq {
		if d.Sign != Added {
			continue
		}
		k, ts := key(d.Row), at(d.Row)
		if cur, ok := latest[k]; !ok || ts.After(cur) {
			latest[k] = ts
		}
	}
	return latest
}

// SortedKeys returns the keys of m in ascending order. Grouped deltas are
// applied in this order so statements are deterministic and lock rows in a
// stable order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Pair is the before and after image of one row an update touched.
type Pair[T any] struct {
	Before T
	After  T
}

// Lifecycle classifies the rows of a transition by identity: rows only in
// Added were inserted, rows only in Removed were deleted, and rows present on
// both sides were updated in place.
type Lifecycle[T any] struct {
	Inserted []T
	Deleted  []T
	Updated  []Pair[T]
}

// Split pairs removed and added images by key. Each slice keeps the order of
// the side it came from.
func Split[T any, K comparable](t Transition[T], key func(T) K) Lifecycle[T] {
	before := make(map[K]T, len(t.Removed))
	for _, row := range t.Removed {
		before[key(row)] = row
	}

	var l Lifecycle[T]
	matched := make(map[K]struct{}, len(t.Added))
	for _, row := range t.Added {
		k := key(row)
		if old, ok := before[k]; ok {
			l.Updated = append(l.Updated, Pair[T]{Before: old, After: row})
			matched[k] = struct{}{}
			continue
		}
		l.Inserted = append(l.Inserted, row)
	}
	for _, row := range t.Removed {
		if _, ok := matched[key(row)]; !ok {
			l.Deleted = append(l.Deleted, row)
		}
	}
	return l
}
