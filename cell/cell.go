// Package cell implements the (key, Value) pair used on the merge
// path, and its canonical ordering.
package cell

import (
	"bytes"

	"github.com/ChinmayNoob/lsmkv/value"
)

// Cell pairs a key with its Value. Cells are the unit the MemTable,
// SSTable and Merge operator all iterate over; Record (in the merge
// package) is the tombstone-free, timestamp-free projection handed to
// the host.
type Cell struct {
	Key   []byte
	Value value.Value
}

// Compare orders Cells ascending by key, then descending by
// timestamp, so that when two Cells share a key the fresher one
// sorts first. This is Cell.COMPARATOR from spec.md §3.
func Compare(a, b Cell) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	switch {
	case a.Value.Timestamp() > b.Value.Timestamp():
		return -1
	case a.Value.Timestamp() < b.Value.Timestamp():
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b under Compare. The
// merge package's heap orders its sources with it.
func Less(a, b Cell) bool {
	return Compare(a, b) < 0
}
