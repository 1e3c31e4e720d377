package esedb

import (
	"fmt"
	"sort"

	"github.com/fox-it/go-esedb/internal/pager"
)

// sysObjType mirrors SYSOBJ: the kind of schema entry a catalog record
// describes.
type sysObjType int16

const (
	sysObjNil       sysObjType = 0
	sysObjTable     sysObjType = 1
	sysObjColumn    sysObjType = 2
	sysObjIndex     sysObjType = 3
	sysObjLongValue sysObjType = 4
	sysObjCallback  sysObjType = 5
)

// Catalog column identifiers, hard-coded per spec §4.9 / §3: the schema
// of the catalog tree itself is not stored anywhere in the database and
// must be known in advance.
const (
	catObjidTable = 1
	catType       = 2
	catID         = 3
	catColtypOrPgnoFDP = 4
	catSpaceUsage = 5
	catFlags      = 6
	catPagesOrLocale = 7
	catRootFlag   = 8
	catRecordOffset = 9
	catLCMapFlags = 10
	catKeyMost    = 11
	catLVChunkMax = 12

	catName               = 128
	catStats              = 129
	catTemplateTable      = 130
	catDefaultValue       = 131
	catKeyFldIDs          = 132
	catVarSegMac          = 133
	catConditionalColumns = 134
	catTupleLimits        = 135
	catVersion            = 136
	catSortID             = 137

	catCallbackData         = 256
	catCallbackDependencies = 257
	catSeparateLV           = 258
	catSpaceDeferredLVChunk = 259
	catLVSpaceUsage         = 260
	catLocaleName           = 261
)

// catalogRoot is the fixed logical page of the catalog B+Tree (spec §6).
const catalogRoot = 4

func catalogColumns() []pager.ColumnDef {
	cols := []pager.ColumnDef{
		{ID: catObjidTable, Name: "ObjidTable", Type: pager.ColLong},
		{ID: catType, Name: "Type", Type: pager.ColShort},
		{ID: catID, Name: "Id", Type: pager.ColLong},
		{ID: catColtypOrPgnoFDP, Name: "ColtypOrPgnoFDP", Type: pager.ColLong},
		{ID: catSpaceUsage, Name: "SpaceUsage", Type: pager.ColLong},
		{ID: catFlags, Name: "Flags", Type: pager.ColLong},
		{ID: catPagesOrLocale, Name: "PagesOrLocale", Type: pager.ColLong},
		{ID: catRootFlag, Name: "RootFlag", Type: pager.ColBit},
		{ID: catRecordOffset, Name: "RecordOffset", Type: pager.ColShort},
		{ID: catLCMapFlags, Name: "LCMapFlags", Type: pager.ColLong},
		{ID: catKeyMost, Name: "KeyMost", Type: pager.ColUnsignedShort},
		{ID: catLVChunkMax, Name: "LVChunkMax", Type: pager.ColLong},

		{ID: catName, Name: "Name", Type: pager.ColText, Codepage: pager.CodepageASCII},
		{ID: catStats, Name: "Stats", Type: pager.ColBinary},
		{ID: catTemplateTable, Name: "TemplateTable", Type: pager.ColText, Codepage: pager.CodepageASCII},
		{ID: catDefaultValue, Name: "DefaultValue", Type: pager.ColBinary},
		{ID: catKeyFldIDs, Name: "KeyFldIDs", Type: pager.ColBinary},
		{ID: catVarSegMac, Name: "VarSegMac", Type: pager.ColBinary},
		{ID: catConditionalColumns, Name: "ConditionalColumns", Type: pager.ColBinary},
		{ID: catTupleLimits, Name: "TupleLimits", Type: pager.ColBinary},
		{ID: catVersion, Name: "Version", Type: pager.ColBinary},
		{ID: catSortID, Name: "SortID", Type: pager.ColBinary},

		{ID: catCallbackData, Name: "CallbackData", Type: pager.ColBinary},
		{ID: catCallbackDependencies, Name: "CallbackDependencies", Type: pager.ColBinary},
		{ID: catSeparateLV, Name: "SeparateLV", Type: pager.ColBit},
		{ID: catSpaceDeferredLVChunk, Name: "SpaceDeferredLVChunk", Type: pager.ColBinary},
		{ID: catLVSpaceUsage, Name: "LVSpaceUsage", Type: pager.ColBinary},
		{ID: catLocaleName, Name: "LocaleName", Type: pager.ColBinary},
	}
	assignFixedOffsets(cols)
	return cols
}

// assignFixedOffsets precomputes each fixed column's byte offset within
// the fixed-value region, accumulating in ascending ID order, per the
// invariant in spec §3 ("computed once at schema time"). Offsets are
// written back in place without disturbing cols' original (creation)
// order.
func assignFixedOffsets(cols []pager.ColumnDef) {
	idx := make([]int, 0, len(cols))
	for i, c := range cols {
		if c.IsFixed() {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(i, j int) bool { return cols[idx[i]].ID < cols[idx[j]].ID })

	offset := 0
	for _, i := range idx {
		cols[i].FixedOffset = offset
		offset += cols[i].Type.FixedSize()
	}
}

// Table describes one table's schema: its ordered columns, its indexes,
// and (if present) the root of its long-value tree.
type Table struct {
	db   *DB
	Name string

	Root          uint32
	Columns       []*Column
	Indexes       []*Index
	LongValueRoot uint32 // 0 if the table has no long-value tree

	columnsByName map[string]*Column
	columnsByID   map[uint32]*Column
	indexesByName map[string]*Index
	lvStore       *pager.LongValueStore
}

// Column describes a single column's schema.
type Column struct {
	def pager.ColumnDef
}

func (c *Column) ID() uint32            { return c.def.ID }
func (c *Column) Name() string          { return c.def.Name }
func (c *Column) Type() pager.ColumnType { return c.def.Type }
func (c *Column) IsFixed() bool         { return c.def.IsFixed() }
func (c *Column) IsVariable() bool      { return c.def.IsVariable() }
func (c *Column) IsTagged() bool        { return c.def.IsTagged() }
func (c *Column) IsText() bool          { return c.def.Type.IsText() }
func (c *Column) IsBinary() bool        { return c.def.Type.IsBinary() }

// Catalog holds every table reconstructed from the catalog tree.
type catalog struct {
	tables     []*Table
	tablesByName map[string]*Table
}

func bootstrapCatalog(db *DB) (*catalog, error) {
	root, err := db.pager.Page(catalogRoot)
	if err != nil {
		return nil, fmt.Errorf("esedb: read catalog root: %w", err)
	}
	cols := catalogColumns()

	cat := &catalog{tablesByName: make(map[string]*Table)}
	var current *Table

	var walkErr error
	root.IterLeafNodes(func(n *pager.Node) bool {
		rec, err := pager.Decode(cols, n.Data, db.pager.SmallPages(), nil, false)
		if err != nil {
			walkErr = err
			return false
		}

		typ := sysObjType(asInt64(rec[catType]))
		name, _ := rec[catName].(string)

		switch typ {
		case sysObjTable:
			current = &Table{
				db:            db,
				Name:          name,
				Root:          asUint32(rec[catColtypOrPgnoFDP]),
				columnsByName: make(map[string]*Column),
				columnsByID:   make(map[uint32]*Column),
				indexesByName: make(map[string]*Index),
			}
			cat.tables = append(cat.tables, current)
			cat.tablesByName[name] = current

		case sysObjColumn:
			if current == nil {
				return true
			}
			col := &Column{def: pager.ColumnDef{
				ID:       asUint32(rec[catID]),
				Name:     name,
				Type:     pager.ColumnType(asInt64(rec[catColtypOrPgnoFDP])),
				Codepage: pager.Codepage(asInt64(rec[catPagesOrLocale])),
			}}
			if dv, ok := rec[catDefaultValue].([]byte); ok {
				col.def.Default = dv
			}
			current.Columns = append(current.Columns, col)
			current.columnsByName[name] = col
			current.columnsByID[col.def.ID] = col
			syncOffsets(current.Columns)

		case sysObjIndex:
			if current == nil {
				return true
			}
			idx := newIndex(current, rec, name)
			current.Indexes = append(current.Indexes, idx)
			current.indexesByName[name] = idx

		case sysObjLongValue:
			if current == nil {
				return true
			}
			current.LongValueRoot = asUint32(rec[catColtypOrPgnoFDP])

		case sysObjCallback:
			// Recorded only; the core has no use for callback data.
		}
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return cat, nil
}

func defsOf(cols []*Column) []pager.ColumnDef {
	out := make([]pager.ColumnDef, len(cols))
	for i, c := range cols {
		out[i] = c.def
	}
	return out
}

func syncOffsets(cols []*Column) {
	defs := defsOf(cols)
	assignFixedOffsets(defs)
	for i := range cols {
		cols[i].def.FixedOffset = defs[i].FixedOffset
	}
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, error) {
	c, ok := t.columnsByName[name]
	if !ok {
		return nil, fmt.Errorf("esedb: table %q: %w: %s", t.Name, ErrUnknownColumn, name)
	}
	return c, nil
}

// ColumnNames returns every column name in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name()
	}
	return names
}

// Index looks up an index by name.
func (t *Table) Index(name string) (*Index, error) {
	idx, ok := t.indexesByName[name]
	if !ok {
		return nil, fmt.Errorf("esedb: table %q: %w: %s", t.Name, ErrUnknownIndex, name)
	}
	return idx, nil
}

// PrimaryIndex returns the table's primary index, if any.
func (t *Table) PrimaryIndex() *Index {
	for _, idx := range t.Indexes {
		if idx.Flags&flagIndexPrimary != 0 {
			return idx
		}
	}
	return nil
}

// FindIndex returns the first index whose column list matches names
// exactly, in order.
func (t *Table) FindIndex(names []string) *Index {
next:
	for _, idx := range t.Indexes {
		if len(idx.Columns) != len(names) {
			continue
		}
		for i, c := range idx.Columns {
			if c.Name() != names[i] {
				continue next
			}
		}
		return idx
	}
	return nil
}

func (t *Table) longValueStore() (*pager.LongValueStore, error) {
	if t.LongValueRoot == 0 {
		return nil, fmt.Errorf("esedb: table %q: %w", t.Name, ErrMissingLongValue)
	}
	if t.lvStore == nil {
		store, err := pager.NewLongValueStore(t.db.pager, t.LongValueRoot)
		if err != nil {
			return nil, err
		}
		t.lvStore = store
	}
	return t.lvStore, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint8:
		return int64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func asUint32(v any) uint32 {
	return uint32(asInt64(v))
}

// Records returns every record in the table's own tree, in key order.
// yield returning false stops iteration early.
func (t *Table) Records(yield func(*Record) bool) error {
	root, err := t.db.pager.Page(t.Root)
	if err != nil {
		return fmt.Errorf("esedb: table %q: read root page: %w", t.Name, err)
	}
	var walkErr error
	root.IterLeafNodes(func(n *pager.Node) bool {
		rec, err := decodeRecord(t, n, t.db.impacketCompat)
		if err != nil {
			walkErr = err
			return false
		}
		return yield(rec)
	})
	return walkErr
}

// Cursor returns a low-level cursor over the table's own tree.
func (t *Table) Cursor() (*pager.Cursor, error) {
	return pager.NewCursor(t.db.pager, t.Root)
}

// Search returns the single record whose primary index key matches
// equals, using the table's primary index if one exists, or otherwise
// the first entry of t.Indexes. A table with no index at all yields
// ErrUnknownIndex; the table's own tree is not scanned.
func (t *Table) Search(equals map[string]any) (*Record, error) {
	idx := t.PrimaryIndex()
	if idx == nil {
		for _, idxCandidate := range t.Indexes {
			idx = idxCandidate
			break
		}
	}
	if idx == nil {
		return nil, fmt.Errorf("esedb: table %q: no index to search: %w", t.Name, ErrUnknownIndex)
	}
	return idx.Search(equals)
}
