// Package esedb is a read-only decoder for the Extensible Storage
// Engine (ESE) on-disk database format used by Windows components such
// as SRUDB.dat, the Windows Search index, and the User Access Logging
// database.
//
// It never writes to its source and never mutates the database: Open
// accepts any io.ReaderAt, most commonly an *os.File opened read-only.
package esedb

import (
	"fmt"
	"io"
	"log"

	"github.com/fox-it/go-esedb/internal/pager"
)

// DB is an open handle on one ESE database. A DB is not safe for
// concurrent use by multiple goroutines: the page cache is guarded by a
// mutex, but pages memoize their decoded nodes and each table keeps a
// single long-value cursor, neither under a lock. Distinct DBs share no
// state.
type DB struct {
	src            io.ReaderAt
	pager          *pager.Pager
	catalog        *catalog
	impacketCompat bool
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	cacheSize      int
	logger         *log.Logger
	impacketCompat bool
}

// WithCacheSize overrides the page-cache's bounded capacity. The default
// is pager.DefaultCacheSize.
func WithCacheSize(n int) Option {
	return func(c *openConfig) { c.cacheSize = n }
}

// WithLogger directs page-cache eviction messages to logger instead of
// discarding them.
func WithLogger(logger *log.Logger) Option {
	return func(c *openConfig) { c.logger = logger }
}

// WithImpacketCompat reproduces a known quirk of the impacket ESE
// reader's tagged-value decoding (spec §4.5's compatibility note) rather
// than this package's stricter default behavior. Only meaningful for
// byte-for-byte comparison against output produced by that tool.
func WithImpacketCompat() Option {
	return func(c *openConfig) { c.impacketCompat = true }
}

// Open parses src's header and catalog and returns a ready DB. src is
// never written to.
func Open(src io.ReaderAt, opts ...Option) (*DB, error) {
	cfg := openConfig{cacheSize: pager.DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	pg, err := pager.Open(src, cfg.cacheSize, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("esedb: open: %w", err)
	}

	db := &DB{src: src, pager: pg, impacketCompat: cfg.impacketCompat}
	cat, err := bootstrapCatalog(db)
	if err != nil {
		return nil, fmt.Errorf("esedb: open: %w", err)
	}
	db.catalog = cat
	return db, nil
}

// Close releases resources held by the underlying source, if it
// implements io.Closer. Most callers pass an *os.File, which does.
func (db *DB) Close() error {
	if closer, ok := db.src.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Table looks up a table by name.
func (db *DB) Table(name string) (*Table, error) {
	t, ok := db.catalog.tablesByName[name]
	if !ok {
		return nil, fmt.Errorf("esedb: %w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

// Tables returns every table reconstructed from the catalog, in catalog
// order.
func (db *DB) Tables() []*Table {
	out := make([]*Table, len(db.catalog.tables))
	copy(out, db.catalog.tables)
	return out
}

// TableNames returns every table name, in catalog order.
func (db *DB) TableNames() []string {
	names := make([]string, len(db.catalog.tables))
	for i, t := range db.catalog.tables {
		names[i] = t.Name
	}
	return names
}

// PageSize returns the database's page size in bytes.
func (db *DB) PageSize() int64 { return db.pager.PageSize() }

// FormatVersion returns the database engine's format major/minor
// version, as recorded in the primary header.
func (db *DB) FormatVersion() (major, minor uint32) {
	h := db.pager.Header()
	return h.FormatMajor, h.FormatMinor
}
