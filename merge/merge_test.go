package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChinmayNoob/lsmkv/cell"
	"github.com/ChinmayNoob/lsmkv/value"
)

func TestCellsCollapsesDuplicatesKeepingFreshest(t *testing.T) {
	newer := cell.NewSliceIterator([]cell.Cell{
		{Key: []byte("k"), Value: value.Live(5, []byte("new"))},
	})
	older := cell.NewSliceIterator([]cell.Cell{
		{Key: []byte("k"), Value: value.Live(1, []byte("old"))},
	})

	merged := Cells(newer, older)
	c, ok := merged.Next()
	require.True(t, ok)
	require.Equal(t, []byte("new"), c.Value.Data())

	_, ok = merged.Next()
	require.False(t, ok, "duplicate key must collapse to a single Cell")
}

func TestCellsOrdersAcrossSources(t *testing.T) {
	a := cell.NewSliceIterator([]cell.Cell{
		{Key: []byte("b"), Value: value.Live(1, []byte("b"))},
		{Key: []byte("d"), Value: value.Live(1, []byte("d"))},
	})
	b := cell.NewSliceIterator([]cell.Cell{
		{Key: []byte("a"), Value: value.Live(1, []byte("a"))},
		{Key: []byte("c"), Value: value.Live(1, []byte("c"))},
	})

	merged := Cells(a, b)
	var got []string
	for {
		c, ok := merged.Next()
		if !ok {
			break
		}
		got = append(got, string(c.Key))
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestRecordsFiltersTombstones(t *testing.T) {
	cells := cell.NewSliceIterator([]cell.Cell{
		{Key: []byte("a"), Value: value.Live(1, []byte("a"))},
		{Key: []byte("b"), Value: value.Tombstone(2)},
		{Key: []byte("c"), Value: value.Live(1, []byte("c"))},
	})

	recs := Records(cells)
	var got []string
	for {
		r, ok := recs.Next()
		if !ok {
			break
		}
		got = append(got, string(r.Key))
	}
	require.Equal(t, []string{"a", "c"}, got)
	require.NoError(t, recs.Err())
}

func TestLiveCellsFiltersTombstonesButKeepsTimestamp(t *testing.T) {
	cells := cell.NewSliceIterator([]cell.Cell{
		{Key: []byte("a"), Value: value.Live(7, []byte("a"))},
		{Key: []byte("b"), Value: value.Tombstone(2)},
	})

	live := LiveCells(cells)
	c, ok := live.Next()
	require.True(t, ok)
	require.Equal(t, "a", string(c.Key))
	require.Equal(t, uint64(7), c.Value.Timestamp())

	_, ok = live.Next()
	require.False(t, ok)
}

type errorIterator struct {
	cells []cell.Cell
	pos   int
	err   error
}

func (e *errorIterator) Next() (cell.Cell, bool) {
	if e.pos < len(e.cells) {
		c := e.cells[e.pos]
		e.pos++
		return c, true
	}
	return cell.Cell{}, false
}

func (e *errorIterator) Err() error { return e.err }

func TestCellsPropagatesUpstreamError(t *testing.T) {
	boom := errors.New("boom")
	bad := &errorIterator{
		cells: []cell.Cell{{Key: []byte("a"), Value: value.Live(1, []byte("a"))}},
		err:   boom,
	}
	good := cell.NewSliceIterator([]cell.Cell{
		{Key: []byte("z"), Value: value.Live(1, []byte("z"))},
	})

	merged := Cells(bad, good)
	c, ok := merged.Next() // "a", served before bad's error surfaces
	require.True(t, ok)
	require.Equal(t, "a", string(c.Key))

	_, ok = merged.Next() // bad's Next() now fails: iteration stops here
	require.False(t, ok)

	me, ok := merged.(Errorer)
	require.True(t, ok)
	require.ErrorIs(t, me.Err(), boom)
}
