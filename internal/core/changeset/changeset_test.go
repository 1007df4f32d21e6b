package changeset

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	id    int64
	group string
	n     int64
	at    time.Time
}

func rowID(r row) int64     { return r.id }
func rowGroup(r row) string { return r.group }
func rowAt(r row) time.Time { return r.at }
func rowWeight(r row) int64 { return r.n }

func TestTransition_DeltasSigns(t *testing.T) {
	tr := Update([]row{{id: 1}, {id: 2}}, []row{{id: 1}})

	var signs []int64
	for d := range tr.Deltas() {
		signs = append(signs, d.Sign)
	}
	require.Equal(t, []int64{Removed, Removed, Added}, signs)
	require.Equal(t, 3, tr.Len())
	require.False(t, tr.Empty())
	require.True(t, Transition[row]{}.Empty())
}

func TestTransition_DeltasStopsEarly(t *testing.T) {
	tr := Insert(row{id: 1}, row{id: 2}, row{id: 3})

	seen := 0
	for range tr.Deltas() {
		seen++
		if seen == 2 {
			break
		}
	}
	require.Equal(t, 2, seen)
}

func TestSumBy(t *testing.T) {
	tr := Update(
		[]row{{id: 1, group: "a", n: 5}, {id: 2, group: "b", n: 1}},
		[]row{{id: 1, group: "a", n: 7}, {id: 2, group: "c", n: 1}},
	)

	sums := SumBy(tr.Deltas(), rowGroup, rowWeight)
	require.Equal(t, map[string]int64{"a": 2, "b": -1, "c": 1}, sums)
}

func TestCountByWithFilter(t *testing.T) {
	tr := Update(
		[]row{{id: 1, group: "a"}, {id: 2, group: "a"}},
		[]row{{id: 1, group: "a", n: 1}},
	)

	counted := Filter(tr.Deltas(), func(r row) bool { return r.n == 0 })
	require.Equal(t, map[string]int64{"a": -2}, CountBy(counted, rowGroup))
}

func TestMaxBy_IgnoresRemovedRows(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := Update(
		[]row{{id: 1, group: "a", at: base.Add(10 * time.Hour)}},
		[]row{
			{id: 2, group: "a", at: base.Add(time.Hour)},
			{id: 3, group: "a", at: base.Add(2 * time.Hour)},
			{id: 4, group: "b", at: base},
		},
	)

	latest := MaxBy(tr.Deltas(), rowGroup, rowAt)
	require.Equal(t, map[string]time.Time{
		"a": base.Add(2 * time.Hour),
		"b": base,
	}, latest)
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[int64]bool{30: true, 10: true, 20: false})
	require.Equal(t, []int64{10, 20, 30}, keys)
	require.True(t, slices.IsSorted(keys))
}

func TestSplit(t *testing.T) {
	tr := Transition[row]{
		Removed: []row{{id: 1, n: 1}, {id: 2}},
		Added:   []row{{id: 1, n: 2}, {id: 3}},
	}

	l := Split(tr, rowID)
	require.Equal(t, []row{{id: 3}}, l.Inserted)
	require.Equal(t, []row{{id: 2}}, l.Deleted)
	require.Equal(t, []Pair[row]{{Before: row{id: 1, n: 1}, After: row{id: 1, n: 2}}}, l.Updated)
}

func TestSplit_PureInsertAndDelete(t *testing.T) {
	ins := Split(Insert(row{id: 1}, row{id: 2}), rowID)
	require.Len(t, ins.Inserted, 2)
	require.Empty(t, ins.Deleted)
	require.Empty(t, ins.Updated)

	del := Split(Delete(row{id: 1}), rowID)
	require.Empty(t, del.Inserted)
	require.Equal(t, []row{{id: 1}}, del.Deleted)
}
