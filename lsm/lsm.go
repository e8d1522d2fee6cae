// Package lsm implements the top-level engine (spec.md's LsmDAO):
// open, upsert, remove, iterator, compact and close, routing writes
// through a MemTable and merging it with every on-disk SSTable
// generation on read.
package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/ChinmayNoob/lsmkv/cell"
	"github.com/ChinmayNoob/lsmkv/memtable"
	"github.com/ChinmayNoob/lsmkv/merge"
	"github.com/ChinmayNoob/lsmkv/sstable"
	"github.com/ChinmayNoob/lsmkv/value"
)

// Clock returns milliseconds since some fixed epoch. It must be
// monotonically nondecreasing across calls within a process; Engine
// additionally clamps against its own last-seen value so a clock that
// briefly moves backward cannot violate that contract (spec.md §9's
// "timestamp source" design note).
type Clock func() uint64

func wallClock() uint64 { return uint64(time.Now().UnixMilli()) }

var sstableFilename = regexp.MustCompile(`^(0|[1-9][0-9]*)\.dat$`)

// Engine is the LsmDAO: storage_dir, flush_threshold, memtable,
// ssTables (gen -> SSTable) and next_generation from spec.md §3's
// Engine state, plus the ambient logger and clock.
type Engine struct {
	mu     sync.Mutex
	closed bool

	dir            string
	flushThreshold int
	logger         *zap.SugaredLogger
	clock          Clock
	lastTimestamp  uint64

	mem     *memtable.MemTable
	tables  map[uint64]*sstable.Table
	nextGen uint64
}

// Open scans dir for well-formed `{gen}.dat` SSTables (spec.md §4.5
// "Open"), skipping malformed ones and temp-file leftovers, and returns a
// ready Engine with a fresh empty MemTable. Directory creation is the
// host's responsibility, not this engine's (spec.md §1's out-of-scope
// list) — Dir must already exist.
func Open(opts Options) (*Engine, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: Dir must be set", ErrInvalidOptions)
	}
	if opts.FlushThreshold <= 0 {
		return nil, fmt.Errorf("%w: FlushThreshold must be positive", ErrInvalidOptions)
	}
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidOptions, opts.Dir)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	clock := opts.Clock
	if clock == nil {
		clock = wallClock
	}

	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return nil, err
	}

	tables := make(map[uint64]*sstable.Table)
	var maxGen uint64
	haveAny := false

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		m := sstableFilename.FindStringSubmatch(name)
		if m == nil {
			// Includes temp-file leftovers from an interrupted
			// flush/compact and anything else unrecognized: spec.md §6
			// says ignore.
			continue
		}
		gen, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			logger.Warnw("lsm: skipping sstable with unparsable generation", "file", name, "error", err)
			continue
		}
		path := filepath.Join(opts.Dir, name)
		tbl, err := sstable.Open(path, gen)
		if err != nil {
			logger.Warnw("lsm: skipping malformed sstable", "file", name, "error", err)
			continue
		}
		tables[gen] = tbl
		if !haveAny || gen > maxGen {
			maxGen = gen
			haveAny = true
		}
	}

	nextGen := uint64(0)
	if haveAny {
		nextGen = maxGen + 1
	}

	return &Engine{
		dir:            opts.Dir,
		flushThreshold: opts.FlushThreshold,
		logger:         logger,
		clock:          clock,
		mem:            memtable.New(),
		tables:         tables,
		nextGen:        nextGen,
	}, nil
}

// nextTimestamp returns a fresh write timestamp, clamped to be
// nondecreasing relative to the last one this Engine handed out.
func (e *Engine) nextTimestamp() uint64 {
	ts := e.clock()
	if ts < e.lastTimestamp {
		ts = e.lastTimestamp
	}
	if ts == 0 {
		ts = 1 // value.Live/Tombstone reject a zero timestamp
	}
	e.lastTimestamp = ts
	return ts
}

// Upsert assigns payload to key, visible immediately to subsequent
// iterators, and flushes the MemTable if it now exceeds
// FlushThreshold.
func (e *Engine) Upsert(key, payload []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	ts := e.nextTimestamp()
	e.mem.Upsert(key, value.Live(ts, payload))
	return e.maybeFlushLocked()
}

// Remove installs a tombstone for key, hiding it from subsequent
// iterators, and flushes the MemTable if it now exceeds
// FlushThreshold.
func (e *Engine) Remove(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	ts := e.nextTimestamp()
	e.mem.Remove(key, ts)
	return e.maybeFlushLocked()
}

func (e *Engine) maybeFlushLocked() error {
	if e.mem.SizeInBytes() <= e.flushThreshold {
		return nil
	}
	return e.flushLocked()
}

// flushLocked serializes the current MemTable to a new SSTable and
// replaces it with an empty one, per spec.md §4.5 "flush".
func (e *Engine) flushLocked() error {
	if e.mem.Size() == 0 {
		return nil
	}
	gen := e.nextGen
	path := filepath.Join(e.dir, filename(gen))
	rows := e.mem.Size()

	if err := sstable.Build(path, e.mem.Iterator(nil), rows); err != nil {
		return err
	}
	tbl, err := sstable.Open(path, gen)
	if err != nil {
		return err
	}

	e.tables[gen] = tbl
	e.mem = memtable.New()
	e.nextGen = gen + 1

	e.logger.Infow("lsm: flushed memtable", "generation", gen, "rows", rows)
	return nil
}

// Iterator returns a forward Record stream starting at the first key
// >= from, merging the MemTable with every SSTable generation newest
// first (spec.md §4.5 "iterator"). It observes a snapshot of the
// engine's table set as of this call.
func (e *Engine) Iterator(from []byte) (*merge.RecordIterator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	gens := sortedGenerations(e.tables, descending)
	sources := make([]cell.Iterator, 0, 1+len(gens))
	sources = append(sources, e.mem.Iterator(from))
	for _, g := range gens {
		it, err := e.tables[g].Iterator(from)
		if err != nil {
			return nil, err
		}
		sources = append(sources, it)
	}

	return merge.Records(merge.Cells(sources...)), nil
}

// Compact merges the MemTable and every SSTable generation into a
// single new generation 0, dropping collapsed duplicates and
// tombstones, then deletes every previously existing SSTable file.
// This is the corrected behavior from spec.md §9(a): the source's
// memtable-only compaction loses data whenever an SSTable holds a key
// absent from the MemTable, so this engine always compacts the full
// merged view instead.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.compactLocked()
}

func (e *Engine) compactLocked() error {
	gens := sortedGenerations(e.tables, descending)
	sources := make([]cell.Iterator, 0, 1+len(gens))
	sources = append(sources, e.mem.Iterator(nil))
	for _, g := range gens {
		it, err := e.tables[g].Iterator(nil)
		if err != nil {
			return err
		}
		sources = append(sources, it)
	}

	merged := merge.Cells(sources...)
	live := merge.LiveCells(merged)

	var cells []cell.Cell
	for {
		c, ok := live.Next()
		if !ok {
			break
		}
		cells = append(cells, c)
	}
	if err, ok := live.(merge.Errorer); ok {
		if cerr := err.Err(); cerr != nil {
			return cerr
		}
	}

	path := filepath.Join(e.dir, filename(0))
	if err := sstable.Build(path, cell.NewSliceIterator(cells), len(cells)); err != nil {
		return err
	}
	newTbl, err := sstable.Open(path, 0)
	if err != nil {
		return err
	}

	var merr *multierror.Error
	for _, g := range gens {
		old := e.tables[g]
		if cerr := old.Close(); cerr != nil {
			merr = multierror.Append(merr, cerr)
		}
		if old.Path() == path {
			// atomic.WriteFile already replaced this file's contents
			// with the compacted output; removing it would delete the
			// table we just built.
			continue
		}
		if rerr := os.Remove(old.Path()); rerr != nil {
			merr = multierror.Append(merr, rerr)
		}
	}

	e.tables = map[uint64]*sstable.Table{0: newTbl}
	e.nextGen = 1
	e.mem = memtable.New()

	e.logger.Infow("lsm: compacted", "rows", len(cells), "inputs", len(gens))

	if err := merr.ErrorOrNil(); err != nil {
		e.logger.Warnw("lsm: compact: errors cleaning up old sstables", "error", err)
		return merr.Errors[0]
	}
	return nil
}

// Close flushes a nonempty MemTable, then releases every SSTable's
// file handle even if one release fails. The first error encountered
// is returned; any later ones are logged (spec.md §7).
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}

	var firstErr error
	if e.mem.Size() > 0 {
		firstErr = e.flushLocked()
	}

	var merr *multierror.Error
	for _, g := range sortedGenerations(e.tables, ascending) {
		if err := e.tables[g].Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	e.closed = true

	if aggregated := merr.ErrorOrNil(); aggregated != nil {
		e.logger.Warnw("lsm: close: errors releasing sstable handles", "error", aggregated)
		if firstErr == nil {
			firstErr = merr.Errors[0]
		}
	}
	return firstErr
}

func filename(gen uint64) string {
	return fmt.Sprintf("%d.dat", gen)
}

type sortOrder bool

const (
	ascending  sortOrder = false
	descending sortOrder = true
)

func sortedGenerations(tables map[uint64]*sstable.Table, order sortOrder) []uint64 {
	gens := make([]uint64, 0, len(tables))
	for g := range tables {
		gens = append(gens, g)
	}
	if order == descending {
		sort.Slice(gens, func(i, j int) bool { return gens[i] > gens[j] })
	} else {
		sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	}
	return gens
}
