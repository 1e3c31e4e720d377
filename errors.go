package esedb

import (
	"errors"

	"github.com/fox-it/go-esedb/internal/pager"
)

// Sentinel errors returned by this package. Call sites wrap these with
// fmt.Errorf("...: %w", ...) so callers can still match with errors.Is.
// The pager-layer errors are aliased rather than redeclared so that an
// error returned from deep inside internal/pager still satisfies
// errors.Is(err, esedb.ErrKeyNotFound) without a translation layer at
// every call site.
var (
	ErrInvalidDatabase        = pager.ErrInvalidDatabase
	ErrPageOutOfRange         = pager.ErrPageOutOfRange
	ErrKeyNotFound            = pager.ErrKeyNotFound
	ErrNoNeighbourPage        = pager.ErrNoNeighbourPage
	ErrUnsupportedCompression = pager.ErrUnsupportedCompression
	ErrUnsupportedCharacter   = pager.ErrUnsupportedCharacter
	ErrOldRecordFormat        = pager.ErrOldRecordFormat
	ErrMissingLongValue       = pager.ErrMissingLongValue

	ErrUnknownTable  = errors.New("esedb: unknown table")
	ErrUnknownColumn = errors.New("esedb: unknown column")
	ErrUnknownIndex  = errors.New("esedb: unknown index")
)
