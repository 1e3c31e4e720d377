// Package fixture builds a complete, minimal, synthetic ESE database
// byte image: a primary and shadow header, a one-page catalog tree
// describing a single table with a primary index, and that table's own
// one-page data tree. No real ESE database is small enough to ship in
// this module, so this stands in as the shared fixture for the esedb
// and exporter packages' tests, the same role the teacher's own
// in-memory fixtures play for its storage-engine tests.
package fixture

import "encoding/binary"

const pageSize = 4096

// Logical page numbers (physical = logical + 2, spec §3).
const (
	CatalogPage = 4
	TablePage   = 2
)

// Column IDs of the table this fixture describes.
const (
	ColID   = 1   // fixed, ColLong
	ColName = 128 // variable, ColText/ASCII
)

// Build returns the full database image. It is small enough (a handful
// of 4 KiB pages) to hold entirely in memory and wrap in a
// bytes.NewReader for esedb.Open.
func Build() []byte {
	// Physical pages: 1-2 header/shadow, 3 (logical 1, unused),
	// 4 (logical 2, the table's data tree), 5 (logical 3, unused),
	// 6 (logical 4, the catalog tree).
	buf := make([]byte, 6*pageSize)
	writeHeader(buf)

	copy(buf[3*pageSize:4*pageSize], buildTablePage())
	copy(buf[5*pageSize:6*pageSize], buildCatalogPage())
	return buf
}

func writeHeader(buf []byte) {
	h := make([]byte, 256)
	binary.LittleEndian.PutUint32(h[8:], 0x89ABCDEF) // magic
	binary.LittleEndian.PutUint32(h[12:], 0x620)      // version
	binary.LittleEndian.PutUint32(h[216:], 10)         // format major
	binary.LittleEndian.PutUint32(h[220:], 17)         // format minor
	binary.LittleEndian.PutUint32(h[236:], pageSize)

	copy(buf[0:], h)
	// Shadow header: the first offset ShadowOffsets(4096) probes is
	// 0x800 (2048), still within physical page 1.
	copy(buf[0x800:], h)
}

// fixedField describes one catalog fixed column's byte offset/width,
// mirroring catalogColumns' assignFixedOffsets result for the 12 fixed
// catalog columns (IDs 1-12, spec §4.9).
type fixedField struct{ offset, size int }

var catalogFixedLayout = map[int]fixedField{
	1: {0, 4}, 2: {4, 2}, 3: {6, 4}, 4: {10, 4}, 5: {14, 4}, 6: {18, 4},
	7: {22, 4}, 8: {26, 1}, 9: {27, 2}, 10: {29, 4}, 11: {33, 2}, 12: {35, 4},
}

const catalogFixedRegionSize = 39 + 2 // values + 2-byte null bitmap (12 columns)

// buildCatalogRecord lays out one MSysObjects-shaped record: all 12
// fixed columns present (zero unless set in fixed), one variable Name
// column, no tagged columns.
func buildCatalogRecord(fixedVals map[int]int64, name string) []byte {
	fixedRegion := make([]byte, catalogFixedRegionSize)
	for id, v := range fixedVals {
		f := catalogFixedLayout[id]
		switch f.size {
		case 1:
			fixedRegion[f.offset] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(fixedRegion[f.offset:], uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(fixedRegion[f.offset:], uint32(v))
		}
	}
	return buildRecord(12, 128, fixedRegion, [][]byte{[]byte(name)})
}

// buildRecord assembles a RECHDR-format leaf payload: fixedLast/varLast
// header, the caller-supplied fixed region, and variable values (one
// per variable column from 128 up to varLast), with no tagged region.
func buildRecord(fixedLast, varLast uint8, fixedRegion []byte, varValues [][]byte) []byte {
	ibEnd := 4 + len(fixedRegion)
	varCount := 0
	if varLast >= 128 {
		varCount = int(varLast) - 127
	}
	offsetsLen := varCount * 2

	var varData []byte
	offsets := make([]byte, offsetsLen)
	end := 0
	for i := 0; i < varCount; i++ {
		var v []byte
		if i < len(varValues) {
			v = varValues[i]
		}
		end += len(v)
		binary.LittleEndian.PutUint16(offsets[i*2:], uint16(end))
		varData = append(varData, v...)
	}

	buf := make([]byte, 0, ibEnd+offsetsLen+len(varData))
	header := make([]byte, 4)
	header[0] = fixedLast
	header[1] = varLast
	binary.LittleEndian.PutUint16(header[2:], uint16(ibEnd))
	buf = append(buf, header...)
	buf = append(buf, fixedRegion...)
	buf = append(buf, offsets...)
	buf = append(buf, varData...)
	return buf
}

// catalog sysObjType values (spec §4.9).
const (
	sysObjTable  = 1
	sysObjColumn = 2
	sysObjIndex  = 3
)

// ColLong/ColText/CodepageASCII mirror internal/pager.ColumnType and
// Codepage's numeric values (JET_coltyp); duplicated here rather than
// imported to keep this fixture independent of the pager package's
// internal layout, the same way the catalog's own schema is independent
// of any Go type.
const (
	colLong        = 4
	colText        = 10
	codepageASCII  = 20127
)

func buildCatalogPage() []byte {
	tableRec := buildCatalogRecord(map[int]int64{
		2: sysObjTable,
		4: int64(TablePage), // catColtypOrPgnoFDP: table's data-tree root
	}, "TestTable")

	colIDRec := buildCatalogRecord(map[int]int64{
		2: sysObjColumn,
		3: ColID,
		4: colLong,
	}, "ID")

	colNameRec := buildCatalogRecord(map[int]int64{
		2: sysObjColumn,
		3: ColName,
		4: colText,
		7: codepageASCII,
	}, "Name")

	// catKeyFldIDs: one 4-byte entry per indexed column, column ID in the
	// high 16 bits (spec §4.9); here a single-column key on ID.
	keyFldIDs := make([]byte, 4)
	binary.LittleEndian.PutUint16(keyFldIDs[2:], ColID)
	indexRec := buildCatalogRecordWithTagged(map[int]int64{
		2: sysObjIndex,
		4: int64(TablePage), // same tree as the table: this is the primary index
		6: 0x0002,           // JET_bitIndexPrimary
	}, "PrimaryIndex", map[int][]byte{
		132: keyFldIDs, // catKeyFldIDs
	})

	entries := [][]byte{
		encodeLeafNode([]byte{0, 0, 0, 1}, tableRec),
		encodeLeafNode([]byte{0, 0, 0, 2}, colIDRec),
		encodeLeafNode([]byte{0, 0, 0, 3}, colNameRec),
		encodeLeafNode([]byte{0, 0, 0, 4}, indexRec),
	}
	return buildLeafPage(entries)
}

// buildCatalogRecordWithTagged extends buildCatalogRecord with extra
// variable values for columns like catKeyFldIDs; it writes no tagged
// region (ID 132 is a variable
// column, not tagged -- spec §4.9 lists it at 132, inside the
// 128-255 variable range, so it is appended as an extra variable value
// rather than a genuine tagged field).
func buildCatalogRecordWithTagged(fixedVals map[int]int64, name string, extraVar map[int][]byte) []byte {
	fixedRegion := make([]byte, catalogFixedRegionSize)
	for id, v := range fixedVals {
		f := catalogFixedLayout[id]
		switch f.size {
		case 1:
			fixedRegion[f.offset] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(fixedRegion[f.offset:], uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(fixedRegion[f.offset:], uint32(v))
		}
	}
	// Variable columns 128 (Name) .. 132 (KeyFldIDs), in ID order, with
	// any column in between left empty.
	const lastVar = 132
	values := make([][]byte, lastVar-127)
	values[0] = []byte(name)
	for id, v := range extraVar {
		values[id-128] = v
	}
	return buildRecord(12, lastVar, fixedRegion, values)
}

func buildTablePage() []byte {
	rec1 := buildRecord(1, 128, fixedValue(1, ColID), [][]byte{[]byte("Alice")})
	rec2 := buildRecord(1, 128, fixedValue(2, ColID), [][]byte{[]byte("Bob")})

	entries := [][]byte{
		encodeLeafNode(primaryKey(1), rec1),
		encodeLeafNode(primaryKey(2), rec2),
	}
	return buildLeafPage(entries)
}

// fixedValue builds a 1-column (ColLong) fixed region: 4 bytes of value,
// 1 byte of null bitmap (no nulls).
func fixedValue(v int32, colID int) []byte {
	out := make([]byte, 5)
	binary.LittleEndian.PutUint32(out, uint32(v))
	return out
}

// primaryKey mirrors index.go's encodeKey for a ColLong primary-index
// column: a 0x7F data marker followed by the sign-flipped big-endian
// 32-bit value, so the table tree's own leaf keys already sort the way
// SearchKey expects.
func primaryKey(id int32) []byte {
	v := uint32(id) ^ 0x80000000
	return []byte{0x7F, byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// encodeLeafNode builds one (uncompressed) tag payload: a 2-byte suffix
// length, the key, then the record bytes.
func encodeLeafNode(key, data []byte) []byte {
	out := make([]byte, 0, 2+len(key)+len(data))
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(key)))
	out = append(out, lenBuf...)
	out = append(out, key...)
	out = append(out, data...)
	return out
}

// buildLeafPage lays out a single small-page-mode leaf/root page holding
// entries, mirroring the tag-array-at-the-tail layout of spec §3.
func buildLeafPage(entries [][]byte) []byte {
	const (
		hdrOffTagCount = 34
		hdrOffFlags    = 36
		commonHeaderSize = 40
		flagRoot = 0x0001
		flagLeaf = 0x0002
	)
	buf := make([]byte, pageSize)
	binary.LittleEndian.PutUint16(buf[hdrOffTagCount:], uint16(len(entries)+1))
	binary.LittleEndian.PutUint32(buf[hdrOffFlags:], flagRoot|flagLeaf)

	all := append([][]byte{{}}, entries...) // tag 0: empty key prefix (root page)
	// ib_ offsets are relative to the data region (right after the common
	// header in small-page mode, spec §3).
	offset := commonHeaderSize
	offsets := make([]int, len(all))
	for i, e := range all {
		copy(buf[offset:], e)
		offsets[i] = offset - commonHeaderSize
		offset += len(e)
	}
	for i, e := range all {
		slot := len(buf) - 4*(i+1)
		binary.LittleEndian.PutUint16(buf[slot:], uint16(len(e)))
		ib := uint16(offsets[i]) // small-page mode, no tag flags set
		binary.LittleEndian.PutUint16(buf[slot+2:], ib)
	}
	return buf
}
