// Package sstable implements the immutable, random-access sorted run
// format described by spec.md §4.3: an entry region, an offsets
// region, and a 4-byte footer, written once by Build and never
// mutated again.
package sstable

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/ChinmayNoob/lsmkv/cell"
	"github.com/ChinmayNoob/lsmkv/value"
)

// ErrNotSupported is returned by every mutating method on Table: an
// SSTable is immutable once built.
var ErrNotSupported = errors.New("sstable: not supported, table is immutable")

// ErrMalformed marks a per-file problem detected while opening a
// table: a short file, or a footer entry count inconsistent with the
// file's size. Callers (lsm.Open) log and skip rather than fail.
var ErrMalformed = errors.New("sstable: malformed file")

const footerSize = 4 // u32 row count

// Table is an opened, immutable sorted run. It owns exactly one
// read-mode file handle, acquired here and released by Close.
type Table struct {
	Generation uint64

	path    string
	f       *os.File
	rows    uint64
	offsets []uint64 // rows absolute entry-start offsets, in file order
}

// Open opens path as an SSTable of the given generation, validating
// the footer and loading the offsets region into memory. It returns
// ErrMalformed (wrapped) for any structural inconsistency; the caller
// decides whether that is fatal.
func Open(path string, generation uint64) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	t, err := load(f, path, generation)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return t, nil
}

func load(f *os.File, path string, generation uint64) (*Table, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size < footerSize {
		return nil, fmt.Errorf("%w: %s: file too short for footer", ErrMalformed, path)
	}

	var footer [footerSize]byte
	if _, err := f.ReadAt(footer[:], size-footerSize); err != nil {
		return nil, err
	}
	rows := uint64(binary.BigEndian.Uint32(footer[:]))

	offsetsRegionSize := int64(rows) * 8
	if offsetsRegionSize+footerSize > size {
		return nil, fmt.Errorf("%w: %s: offsets region overruns file", ErrMalformed, path)
	}

	offsetsStart := size - footerSize - offsetsRegionSize
	offsetsBuf := make([]byte, offsetsRegionSize)
	if rows > 0 {
		if _, err := f.ReadAt(offsetsBuf, offsetsStart); err != nil {
			return nil, err
		}
	}
	offsets := make([]uint64, rows)
	for i := range offsets {
		offsets[i] = binary.BigEndian.Uint64(offsetsBuf[i*8 : i*8+8])
	}
	for i, off := range offsets {
		if int64(off) >= offsetsStart {
			return nil, fmt.Errorf("%w: %s: entry %d offset %d past entries region", ErrMalformed, path, i, off)
		}
	}

	return &Table{
		Generation: generation,
		path:       path,
		f:          f,
		rows:       rows,
		offsets:    offsets,
	}, nil
}

// Path is the file this table was opened from.
func (t *Table) Path() string { return t.path }

// Rows is the number of entries in the table.
func (t *Table) Rows() uint64 { return t.rows }

// Close releases the table's file handle. It is the only release
// path for the handle Open acquired.
func (t *Table) Close() error {
	return t.f.Close()
}

// keyAt reads just the key of the entry starting at file offset off,
// without touching the timestamp/value that follow it. Used by the
// binary search so a probe costs one small read instead of a full
// entry decode.
func (t *Table) keyAt(off uint64) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := t.f.ReadAt(lenBuf[:], int64(off)); err != nil {
		return nil, err
	}
	klen := binary.BigEndian.Uint32(lenBuf[:])
	key := make([]byte, klen)
	if klen > 0 {
		if _, err := t.f.ReadAt(key, int64(off)+4); err != nil {
			return nil, err
		}
	}
	return key, nil
}

// entryAt reads and decodes the full Cell starting at file offset off.
func (t *Table) entryAt(off uint64) (cell.Cell, error) {
	var lenBuf [4]byte
	if _, err := t.f.ReadAt(lenBuf[:], int64(off)); err != nil {
		return cell.Cell{}, err
	}
	klen := binary.BigEndian.Uint32(lenBuf[:])
	cur := off + 4

	key := make([]byte, klen)
	if klen > 0 {
		if _, err := t.f.ReadAt(key, int64(cur)); err != nil {
			return cell.Cell{}, err
		}
	}
	cur += uint64(klen)

	var tsBuf [8]byte
	if _, err := t.f.ReadAt(tsBuf[:], int64(cur)); err != nil {
		return cell.Cell{}, err
	}
	cur += 8
	tsSigned := int64(binary.BigEndian.Uint64(tsBuf[:]))

	if tsSigned < 0 {
		return cell.Cell{Key: key, Value: value.Tombstone(uint64(-tsSigned))}, nil
	}

	var vlenBuf [4]byte
	if _, err := t.f.ReadAt(vlenBuf[:], int64(cur)); err != nil {
		return cell.Cell{}, err
	}
	cur += 4
	vlen := binary.BigEndian.Uint32(vlenBuf[:])
	val := make([]byte, vlen)
	if vlen > 0 {
		if _, err := t.f.ReadAt(val, int64(cur)); err != nil {
			return cell.Cell{}, err
		}
	}

	return cell.Cell{Key: key, Value: value.Live(uint64(tsSigned), val)}, nil
}

// lowerBound performs the binary search described in spec.md §4.3:
// on an exact match it returns that row's index; otherwise it returns
// the index of the first row whose key is strictly greater than from
// (or Rows() if none is). Cost is O(log rows) key reads.
func (t *Table) lowerBound(from []byte) (uint64, error) {
	lo, hi := uint64(0), t.rows
	for lo < hi {
		mid := lo + (hi-lo)/2
		k, err := t.keyAt(t.offsets[mid])
		if err != nil {
			return 0, err
		}
		if bytes.Compare(k, from) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// Get looks up key via binary search and returns its Cell if present.
func (t *Table) Get(key []byte) (cell.Cell, bool, error) {
	idx, err := t.lowerBound(key)
	if err != nil {
		return cell.Cell{}, false, err
	}
	if idx >= t.rows {
		return cell.Cell{}, false, nil
	}
	c, err := t.entryAt(t.offsets[idx])
	if err != nil {
		return cell.Cell{}, false, err
	}
	if !bytes.Equal(c.Key, key) {
		return cell.Cell{}, false, nil
	}
	return c, true, nil
}

// Iterator returns a forward cursor starting at the binary-search
// result for from and advancing sequentially to the end of the table.
func (t *Table) Iterator(from []byte) (*Iterator, error) {
	idx, err := t.lowerBound(from)
	if err != nil {
		return nil, err
	}
	return &Iterator{t: t, idx: idx}, nil
}

// Upsert always fails: SSTables are immutable.
func (t *Table) Upsert([]byte, value.Value) error { return ErrNotSupported }

// Remove always fails: SSTables are immutable.
func (t *Table) Remove([]byte, uint64) error { return ErrNotSupported }

// Iterator is a forward cursor over a Table, produced by
// Table.Iterator. A read error encountered mid-scan is surfaced from
// Next and terminates the iteration; Cells already returned remain
// valid.
type Iterator struct {
	t   *Table
	idx uint64
	err error
}

// Next returns the next Cell, or ok=false at end of table or after an
// error (call Err to distinguish the two).
func (it *Iterator) Next() (cell.Cell, bool) {
	if it.err != nil || it.idx >= it.t.rows {
		return cell.Cell{}, false
	}
	c, err := it.t.entryAt(it.t.offsets[it.idx])
	if err != nil {
		it.err = err
		return cell.Cell{}, false
	}
	it.idx++
	return c, true
}

// Err returns the error (if any) that ended iteration early.
func (it *Iterator) Err() error { return it.err }

// Build serializes a sorted Cell stream to path: entries in
// iteration order, then the offsets region, then the 4-byte footer.
// The caller guarantees rows equals the number of Cells it produces
// and that they arrive in ascending key order (spec.md §4.3). path
// becomes visible only once fully written, via natefinch/atomic's
// write-to-temp-then-rename, which is the atomic-publish mechanism
// spec.md §4.5 step 3 and §9 require.
func Build(path string, it cell.Iterator, rows int) error {
	var entries bytes.Buffer
	offsets := make([]uint64, 0, rows)

	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		offsets = append(offsets, uint64(entries.Len()))
		if err := writeEntry(&entries, c); err != nil {
			return err
		}
	}
	if len(offsets) != rows {
		return fmt.Errorf("sstable: Build: iterator produced %d cells, want %d", len(offsets), rows)
	}

	for _, off := range offsets {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], off)
		entries.Write(buf[:])
	}

	var footer [footerSize]byte
	binary.BigEndian.PutUint32(footer[:], uint32(rows))
	entries.Write(footer[:])

	return atomic.WriteFile(path, bytes.NewReader(entries.Bytes()))
}

func writeEntry(w *bytes.Buffer, c cell.Cell) error {
	var klenBuf [4]byte
	binary.BigEndian.PutUint32(klenBuf[:], uint32(len(c.Key)))
	w.Write(klenBuf[:])
	w.Write(c.Key)

	ts := int64(c.Value.Timestamp())
	if c.Value.IsRemoved() {
		ts = -ts
	}
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(ts))
	w.Write(tsBuf[:])

	if !c.Value.IsRemoved() {
		payload := c.Value.Data()
		var vlenBuf [4]byte
		binary.BigEndian.PutUint32(vlenBuf[:], uint32(len(payload)))
		w.Write(vlenBuf[:])
		w.Write(payload)
	}
	return nil
}

