// Package merge implements the Merge operator from spec.md §4.4: a
// k-way sorted merge over Cell iterators, duplicate collapse, an
// optional tombstone filter, and projection to Records.
package merge

import (
	"container/heap"

	"github.com/ChinmayNoob/lsmkv/cell"
)

// Record is the external, tombstone-free, timestamp-free view handed
// to the host.
type Record struct {
	Key     []byte
	Payload []byte
}

// heapItem wraps one source iterator plus its current Cell, ordered
// by Cell.Compare so the freshest duplicate surfaces first — this
// generalizes the teacher's compaction.go mergeHeap from raw
// memtable.Record scans to the Cell abstraction.
type heapItem struct {
	it  cell.Iterator
	cur cell.Cell
}

type itemHeap []*heapItem

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return cell.Less(h[i].cur, h[j].cur) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(*heapItem)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Cells runs the k-way merge and collapse-equals step (spec.md §4.4)
// over sources, returning a single sorted Iterator with at most one
// Cell per distinct key — the freshest one, tombstones included. The
// conventional source order is memtable first, then SSTables newest
// generation first, though correctness does not depend on it: ties
// are broken by Cell.Compare alone.
func Cells(sources ...cell.Iterator) cell.Iterator {
	h := &itemHeap{}
	m := &mergeIterator{h: h}
	for _, src := range sources {
		c, ok := src.Next()
		if !ok {
			if e, isErrorer := src.(Errorer); isErrorer {
				if err := e.Err(); err != nil && m.err == nil {
					m.err = err
				}
			}
			continue
		}
		heap.Push(h, &heapItem{it: src, cur: c})
	}
	return m
}

// Errorer is implemented by source iterators that can terminate early
// with an I/O error (sstable.Iterator does). Cells checks it whenever
// a source reports exhaustion, so a read error mid-scan propagates
// instead of looking like ordinary end-of-input (spec.md §7).
type Errorer interface {
	Err() error
}

type mergeIterator struct {
	h       *itemHeap
	lastKey []byte
	hasLast bool
	err     error
}

// Next returns the next surviving Cell under collapse-equals: among
// consecutive Cells sharing a key, only the first under Cell.Compare
// (the freshest) is kept. Once a source reports an error, Next stops
// immediately; Cells already returned remain valid.
func (m *mergeIterator) Next() (cell.Cell, bool) {
	if m.err != nil {
		return cell.Cell{}, false
	}
	for m.err == nil && m.h.Len() > 0 {
		top := (*m.h)[0]
		c := top.cur

		if next, ok := top.it.Next(); ok {
			top.cur = next
			heap.Fix(m.h, 0)
		} else {
			if e, isErrorer := top.it.(Errorer); isErrorer {
				if err := e.Err(); err != nil {
					m.err = err
				}
			}
			heap.Pop(m.h)
		}

		if m.hasLast && bytesEqual(c.Key, m.lastKey) {
			continue // collapse-equals: a staler duplicate of the key we just emitted
		}
		m.lastKey = c.Key
		m.hasLast = true
		return c, true
	}
	return cell.Cell{}, false
}

// Err returns the error (if any) that ended the merge early.
func (m *mergeIterator) Err() error { return m.err }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Records applies the tombstone filter to a merged Cell stream and
// projects survivors to Records — the final step of spec.md §4.4.
func Records(cells cell.Iterator) *RecordIterator {
	return &RecordIterator{cells: cells}
}

// LiveCells applies the tombstone filter to a merged Cell stream
// without projecting away the timestamp, so the survivors can be
// re-serialized straight back into an SSTable. Compact uses this
// instead of Records, which would lose the timestamps Build needs.
func LiveCells(cells cell.Iterator) cell.Iterator {
	return &liveCellIterator{cells: cells}
}

type liveCellIterator struct {
	cells cell.Iterator
}

func (l *liveCellIterator) Next() (cell.Cell, bool) {
	for {
		c, ok := l.cells.Next()
		if !ok {
			return cell.Cell{}, false
		}
		if c.Value.IsRemoved() {
			continue
		}
		return c, true
	}
}

// Err returns the error (if any) that ended the underlying merge
// early.
func (l *liveCellIterator) Err() error {
	if e, ok := l.cells.(Errorer); ok {
		return e.Err()
	}
	return nil
}

// RecordIterator is the Merge operator's public output type.
type RecordIterator struct {
	cells cell.Iterator
}

// Next returns the next live Record, skipping tombstones, or
// ok=false at end of stream or after an upstream error (see Err).
func (r *RecordIterator) Next() (Record, bool) {
	for {
		c, ok := r.cells.Next()
		if !ok {
			return Record{}, false
		}
		if c.Value.IsRemoved() {
			continue
		}
		return Record{Key: c.Key, Payload: c.Value.Data()}, true
	}
}

// Err returns the error (if any) that ended the underlying merge
// early.
func (r *RecordIterator) Err() error {
	if e, ok := r.cells.(Errorer); ok {
		return e.Err()
	}
	return nil
}
