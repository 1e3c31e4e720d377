package pager

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// ColumnDef is the schema-level description of a single column, as
// bootstrapped by the catalog (spec §4.9) and consumed by the record
// decoder. Storage class is derived purely from ID, per spec §3: 1-127
// fixed, 128-255 variable, >=256 tagged.
type ColumnDef struct {
	ID          uint32
	Name        string
	Type        ColumnType
	Codepage    Codepage
	Default     []byte
	FixedOffset int // precomputed once, meaningful only for fixed columns
}

func (c ColumnDef) IsFixed() bool    { return c.ID >= 1 && c.ID <= 127 }
func (c ColumnDef) IsVariable() bool { return c.ID >= 128 && c.ID <= 255 }
func (c ColumnDef) IsTagged() bool   { return c.ID >= 256 }

// TaggedFlag bits of a TAGFLD_HEADER byte (spec §4.4).
type TaggedFlag uint8

const (
	TaggedLongValue  TaggedFlag = 0x01
	TaggedCompressed TaggedFlag = 0x02
	TaggedSeparated  TaggedFlag = 0x04
	TaggedMulti      TaggedFlag = 0x08
	TaggedTwoValues  TaggedFlag = 0x10
	TaggedNull       TaggedFlag = 0x20
	TaggedEncrypted  TaggedFlag = 0x40
)

// ResolveLongValueFunc reassembles the out-of-line blob referenced by a
// Separated tagged value's 4-byte token. See LongValueStore.Resolve.
type ResolveLongValueFunc func(token []byte) ([]byte, error)

// RecordData is the parsed fixed/variable/tagged layout of a table
// leaf-node payload (spec §4.4), prior to applying any column's typed
// value decoder.
type RecordData struct {
	buf         []byte
	smallPages  bool
	fidFixedMax uint8
	fidVarMax   uint8

	fixedRegion []byte // fixed values + trailing null bitmap
	varOffsets  []byte // raw (fidVarMax-127) * 2 bytes
	varData     []byte
	taggedStart int
}

// ParseRecord decodes the RECHDR and region boundaries of a leaf-node
// payload. smallPages selects the tagged-field offset mask and
// extended-info flag location per spec §4.4.
func ParseRecord(buf []byte, smallPages bool) (*RecordData, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("pager: record shorter than RECHDR: %w", ErrInvalidDatabase)
	}
	r := &RecordData{buf: buf, smallPages: smallPages}
	r.fidFixedMax = buf[0]
	r.fidVarMax = buf[1]
	ibEnd := int(binary.LittleEndian.Uint16(buf[2:4]))
	if ibEnd > len(buf) {
		return nil, fmt.Errorf("pager: record ibEndOfFixedData out of range: %w", ErrInvalidDatabase)
	}
	r.fixedRegion = buf[4:ibEnd]

	varCount := 0
	if int(r.fidVarMax) >= 128 {
		varCount = int(r.fidVarMax) - 127
	}
	offEnd := ibEnd + varCount*2
	if offEnd > len(buf) {
		return nil, fmt.Errorf("pager: record variable offsets out of range: %w", ErrInvalidDatabase)
	}
	r.varOffsets = buf[ibEnd:offEnd]

	varDataEnd := offEnd
	if varCount > 0 {
		last := binary.LittleEndian.Uint16(r.varOffsets[(varCount-1)*2:])
		varDataEnd = offEnd + int(last&0x7FFF)
	}
	if varDataEnd > len(buf) {
		return nil, fmt.Errorf("pager: record variable data out of range: %w", ErrInvalidDatabase)
	}
	r.varData = buf[offEnd:varDataEnd]
	r.taggedStart = varDataEnd
	return r, nil
}

// FixedValue returns the raw bytes of a fixed column and whether it is
// null (including "not present" for columns added after this record was
// written, which is treated the same as null at this layer; the caller
// applies the column default).
func (r *RecordData) FixedValue(col ColumnDef) ([]byte, bool) {
	if col.ID > uint32(r.fidFixedMax) {
		return nil, true
	}
	bitmapLen := (int(r.fidFixedMax) + 7) / 8
	valuesLen := len(r.fixedRegion) - bitmapLen
	if valuesLen < 0 {
		return nil, true
	}
	bitmap := r.fixedRegion[valuesLen:]
	bitIdx := int(col.ID) - 1
	if bitIdx/8 < len(bitmap) && bitmap[bitIdx/8]&(1<<uint(bitIdx%8)) != 0 {
		return nil, true
	}
	start := col.FixedOffset
	end := start + col.Type.FixedSize()
	if start < 0 || end > valuesLen {
		return nil, true
	}
	return r.fixedRegion[start:end], false
}

// VariableValue returns the raw bytes of a variable column and whether
// it is absent.
func (r *RecordData) VariableValue(col ColumnDef) ([]byte, bool) {
	if col.ID > uint32(r.fidVarMax) {
		return nil, true
	}
	k := int(col.ID) - 128
	entryOff := binary.LittleEndian.Uint16(r.varOffsets[k*2:])
	if entryOff&0x8000 != 0 {
		return nil, true
	}
	end := int(entryOff & 0x7FFF)
	start := 0
	if k > 0 {
		prev := binary.LittleEndian.Uint16(r.varOffsets[(k-1)*2:])
		start = int(prev & 0x7FFF)
	}
	if start > end || end > len(r.varData) {
		return nil, true
	}
	return r.varData[start:end], false
}

type taggedEntry struct {
	id      uint16
	derived bool
	offset  int
	extInfo bool
	isNull  bool // small-page-only null bit
}

func (r *RecordData) taggedEntries() ([]taggedEntry, error) {
	region := r.buf[r.taggedStart:]
	if len(region) < 4 {
		return nil, nil
	}
	firstOff := binary.LittleEndian.Uint16(region[2:4])
	masked, _, _ := r.decodeOffsetWord(firstOff)
	count := masked / 4
	if count <= 0 || count*4 > len(region) {
		return nil, fmt.Errorf("pager: tagged field index entry count implausible: %w", ErrInvalidDatabase)
	}

	entries := make([]taggedEntry, count)
	for i := 0; i < count; i++ {
		word := region[i*4 : i*4+4]
		id := binary.LittleEndian.Uint16(word[0:2])
		offWord := binary.LittleEndian.Uint16(word[2:4])
		off, extInfo, isNull := r.decodeOffsetWord(offWord)
		entries[i] = taggedEntry{
			id:      id,
			derived: offWord&0x8000 != 0,
			offset:  off,
			extInfo: extInfo,
			isNull:  isNull,
		}
	}
	return entries, nil
}

// decodeOffsetWord applies the small-page/large-page offset mask and
// flag-bit layout described in spec §4.4.
func (r *RecordData) decodeOffsetWord(w uint16) (offset int, extInfo bool, isNull bool) {
	if r.smallPages {
		offset = int(w & 0x1FFF)
		isNull = w&0x2000 != 0
		extInfo = w&0x4000 != 0
		return
	}
	offset = int(w & 0x7FFF)
	return offset, true, false
}

func findTaggedEntry(entries []taggedEntry, id uint32) (taggedEntry, int, bool) {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if uint32(entries[mid].id) < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(entries) && uint32(entries[lo].id) == id {
		return entries[lo], lo, true
	}
	return taggedEntry{}, lo, false
}

// taggedRaw returns the raw element payloads for a tagged column (one
// element, or several for MultiValues), with Separated/Compressed
// already resolved, but without applying the column's typed decoder.
// A nil slice with ok=false means the field is entirely absent; a nil
// slice with ok=true and len==0 means an explicit null.
func (r *RecordData) taggedRaw(col ColumnDef, resolveLV ResolveLongValueFunc) (values [][]byte, ok bool, err error) {
	entries, err := r.taggedEntries()
	if err != nil {
		return nil, false, err
	}
	entry, idx, found := findTaggedEntry(entries, col.ID)
	if !found {
		return nil, false, nil
	}

	regionEnd := len(r.buf) - r.taggedStart
	if idx+1 < len(entries) {
		regionEnd = entries[idx+1].offset
	}
	data := r.buf[r.taggedStart+entry.offset : r.taggedStart+regionEnd]

	var flags TaggedFlag
	if entry.isNull {
		return nil, true, nil
	}
	if entry.extInfo {
		if len(data) == 0 {
			return nil, true, nil
		}
		flags = TaggedFlag(data[0])
		data = data[1:]
	}
	if flags&TaggedNull != 0 {
		return nil, true, nil
	}

	if flags&TaggedSeparated != 0 {
		if resolveLV == nil {
			return nil, false, fmt.Errorf("pager: separated tagged value without long-value resolver: %w", ErrMissingLongValue)
		}
		resolved, err := resolveLV(data)
		if err != nil {
			return nil, false, err
		}
		data = resolved
	} else if flags&TaggedCompressed != 0 && flags&TaggedMulti == 0 {
		decoded, err := Decompress(data)
		if err != nil {
			return nil, false, err
		}
		data = decoded
	}

	switch {
	case flags&TaggedTwoValues != 0:
		if len(data) < 1 {
			return nil, true, nil
		}
		size := int(data[0])
		if 1+size > len(data) {
			return nil, false, fmt.Errorf("pager: two-value field truncated: %w", ErrInvalidDatabase)
		}
		return [][]byte{data[1 : 1+size], data[1+size:]}, true, nil

	case flags&TaggedMulti != 0:
		vals, err := decodeMultiValue(data, flags&TaggedCompressed != 0)
		if err != nil {
			return nil, false, err
		}
		return vals, true, nil

	default:
		return [][]byte{data}, true, nil
	}
}

// decodeMultiValue splits a multi-value array into elements. The Ioffset
// high bit (0x8000), which marks a separately-stored long value, is
// masked off: such an element is returned as its raw in-record bytes and
// is not resolved through the long-value store.
func decodeMultiValue(data []byte, firstCompressed bool) ([][]byte, error) {
	if len(data) < 2 {
		return nil, nil
	}
	first := binary.LittleEndian.Uint16(data[0:2])
	n := int(first&0x7FFF) / 2
	if n <= 0 || n*2 > len(data) {
		return nil, fmt.Errorf("pager: multi-value count implausible: %w", ErrInvalidDatabase)
	}
	offsets := make([]int, n+1)
	for i := 0; i < n; i++ {
		offsets[i] = int(binary.LittleEndian.Uint16(data[i*2:]) & 0x7FFF)
	}
	offsets[n] = len(data)

	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		start, end := offsets[i], offsets[i+1]
		if start > end || end > len(data) {
			return nil, fmt.Errorf("pager: multi-value element %d out of range: %w", i, ErrInvalidDatabase)
		}
		elem := data[start:end]
		if i == 0 && firstCompressed {
			decoded, err := Decompress(elem)
			if err != nil {
				return nil, err
			}
			elem = decoded
		}
		out[i] = elem
	}
	return out, nil
}

// Decode produces a fully typed map of column ID to decoded value for
// every column in columns. impacketCompat switches to the historical
// raw-hex compatibility mode described in spec §4.4.
func Decode(columns []ColumnDef, buf []byte, smallPages bool, resolveLV ResolveLongValueFunc, impacketCompat bool) (map[uint32]any, error) {
	rec, err := ParseRecord(buf, smallPages)
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]any, len(columns))

	for _, col := range columns {
		switch {
		case col.IsFixed():
			raw, isNull := rec.FixedValue(col)
			if isNull {
				out[col.ID] = defaultValue(col)
				continue
			}
			v, err := DecodeValue(raw, col.Type, col.Codepage)
			if err != nil {
				return nil, fmt.Errorf("pager: column %q: %w", col.Name, err)
			}
			out[col.ID] = v

		case col.IsVariable():
			raw, absent := rec.VariableValue(col)
			if absent {
				out[col.ID] = defaultValue(col)
				continue
			}
			out[col.ID] = decodeLeafBytes(raw, col, impacketCompat)

		default: // tagged
			vals, ok, err := rec.taggedRaw(col, resolveLV)
			if err != nil {
				return nil, fmt.Errorf("pager: column %q: %w", col.Name, err)
			}
			if !ok {
				out[col.ID] = defaultValue(col)
				continue
			}
			if len(vals) == 0 {
				out[col.ID] = nil
				continue
			}
			if len(vals) == 1 {
				out[col.ID] = decodeLeafBytes(vals[0], col, impacketCompat)
				continue
			}
			list := make([]any, len(vals))
			for i, v := range vals {
				list[i] = decodeLeafBytes(v, col, impacketCompat)
			}
			out[col.ID] = list
		}
	}
	return out, nil
}

func decodeLeafBytes(raw []byte, col ColumnDef, impacketCompat bool) any {
	if impacketCompat && (col.Type.IsBinary() || col.IsTagged()) {
		return hex.EncodeToString(raw)
	}
	v, err := DecodeValue(raw, col.Type, col.Codepage)
	if err != nil {
		return hex.EncodeToString(raw)
	}
	return v
}

func defaultValue(col ColumnDef) any {
	if col.Default == nil {
		return nil
	}
	v, err := DecodeValue(col.Default, col.Type, col.Codepage)
	if err != nil {
		return nil
	}
	return v
}
