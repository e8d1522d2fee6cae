package lsm

import "errors"

var (
	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("lsm: engine is closed")

	// ErrEmptyKey is returned by Upsert/Remove for a nil or zero-length
	// key: spec.md §3 requires keys to be nonempty. Iterator accepts an
	// empty from and scans from the first key.
	ErrEmptyKey = errors.New("lsm: key must be nonempty")

	// ErrInvalidOptions is returned by Open when Dir or FlushThreshold
	// fail spec.md §6's configuration constraints.
	ErrInvalidOptions = errors.New("lsm: invalid options")
)
