// Package memtable implements the in-memory write buffer: an ordered
// map from key to Value, kept sorted by an underlying B-tree so that
// iterator(from) is a real ascending cursor instead of a
// collect-then-sort pass.
package memtable

import (
	"bytes"

	"github.com/google/btree"

	"github.com/ChinmayNoob/lsmkv/cell"
	"github.com/ChinmayNoob/lsmkv/value"
)

// btreeDegree mirrors the teacher's SSTable sparse-index fan-out
// (sstable.go used indexEveryN=16); it is not load-bearing for
// correctness, only for the node fan-out of the underlying tree.
const btreeDegree = 16

// item is the btree.Item stored in the tree: a key plus its current
// Value. Ordering is by key alone — a MemTable holds at most one
// entry per key, so Cell.Compare's timestamp tie-break never applies
// here (it matters once Cells from multiple sources are merged).
type item struct {
	key []byte
	val value.Value
}

func (it *item) Less(than btree.Item) bool {
	return bytes.Compare(it.key, than.(*item).key) < 0
}

// MemTable is the ordered in-memory buffer of pending writes.
type MemTable struct {
	tree       *btree.BTree
	sizeBytes  int
	entryCount int
}

// New returns an empty MemTable.
func New() *MemTable {
	return &MemTable{tree: btree.New(btreeDegree)}
}

// Upsert assigns v (already timestamped by the caller) to key,
// inserting or replacing the current entry, and keeps sizeBytes exact
// per spec.md §4.2's delta rules.
func (m *MemTable) Upsert(key []byte, v value.Value) {
	k := cloneBytes(key)
	newItem := &item{key: k, val: v}
	prev := m.tree.ReplaceOrInsert(newItem)
	if prev == nil {
		m.sizeBytes += len(k) + v.Size()
		m.entryCount++
		return
	}
	prevItem := prev.(*item)
	m.sizeBytes += v.Size() - prevItem.val.Size()
}

// Remove installs a tombstone for key at timestamp ts, per spec.md
// §4.2's Remove delta rules.
func (m *MemTable) Remove(key []byte, ts uint64) {
	m.Upsert(key, value.Tombstone(ts))
}

// Get returns the current Value for key, if any.
func (m *MemTable) Get(key []byte) (value.Value, bool) {
	found := m.tree.Get(&item{key: key})
	if found == nil {
		return value.Value{}, false
	}
	return found.(*item).val, true
}

// SizeInBytes is the running byte-accounting total: see spec.md §3's
// MemTable invariant.
func (m *MemTable) SizeInBytes() int { return m.sizeBytes }

// Size is the number of distinct keys currently buffered.
func (m *MemTable) Size() int { return m.entryCount }

// Iterator yields Cells in ascending key order, starting at the first
// key >= from. Restartable: each call walks a fresh snapshot of the
// tree's current contents.
func (m *MemTable) Iterator(from []byte) *Iterator {
	cells := make([]cell.Cell, 0, m.tree.Len())
	m.tree.AscendGreaterOrEqual(&item{key: from}, func(i btree.Item) bool {
		it := i.(*item)
		cells = append(cells, cell.Cell{Key: it.key, Value: it.val})
		return true
	})
	return &Iterator{cells: cells}
}

// Close is a no-op; the buffer may simply be dropped.
func (m *MemTable) Close() error { return nil }

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Iterator is a restartable forward cursor over a MemTable snapshot.
type Iterator struct {
	cells []cell.Cell
	pos   int
}

// Next returns the next Cell, or ok=false once exhausted.
func (it *Iterator) Next() (cell.Cell, bool) {
	if it.pos >= len(it.cells) {
		return cell.Cell{}, false
	}
	c := it.cells[it.pos]
	it.pos++
	return c, true
}
