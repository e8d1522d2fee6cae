package lsm

import "go.uber.org/zap"

// Options configures Open. Dir and FlushThreshold correspond to
// spec.md §6's "Configuration (at open)"; Logger is the ambient
// structured-logging hook described in SPEC_FULL.md §5.1.
type Options struct {
	// Dir is an existing directory the engine stores its SSTables in.
	Dir string

	// FlushThreshold is the byte count the MemTable must strictly
	// exceed before it is flushed to a new SSTable. Must be positive.
	FlushThreshold int

	// Logger receives malformed-file warnings and flush/compact
	// lifecycle messages. A nil Logger is treated as zap.NewNop().
	Logger *zap.SugaredLogger

	// Clock supplies write timestamps. A nil Clock uses the wall
	// clock; tests inject a deterministic one (spec.md §9).
	Clock Clock
}

// DefaultOptions returns a usable configuration rooted at dir, with a
// 4 MiB flush threshold and a no-op logger.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:            dir,
		FlushThreshold: 4 << 20,
		Logger:         zap.NewNop().Sugar(),
	}
}
