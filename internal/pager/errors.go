package pager

import "errors"

// These are the canonical sentinel errors of the format layer;
// internal/pager cannot import esedb (it would be a cycle), so the root
// package's errors.go aliases each of them under the same name and adds
// only its own ErrUnknownTable/ErrUnknownColumn/ErrUnknownIndex.
// Keeping a single canonical set here, rather than re-deriving kinds
// from error strings, is what lets errors.Is match across the boundary.
var (
	ErrInvalidDatabase        = errors.New("pager: invalid database")
	ErrPageOutOfRange         = errors.New("pager: page out of range")
	ErrKeyNotFound            = errors.New("pager: key not found")
	ErrNoNeighbourPage        = errors.New("pager: no neighbour page")
	ErrUnsupportedCompression = errors.New("pager: unsupported compression scheme")
	ErrUnsupportedCharacter   = errors.New("pager: unsupported character for sort key")
	ErrOldRecordFormat        = errors.New("pager: record format predates NewRecordFormat")
	ErrMissingLongValue       = errors.New("pager: referenced long value is missing")
)
