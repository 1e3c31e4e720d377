package esedb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"

	"github.com/fox-it/go-esedb/internal/pager"
)

// JET_bitIndex flags of semantic interest (spec §3); the rest are
// recorded on the Index but have no effect on core decode/search
// behavior.
const (
	flagIndexUnique       uint32 = 0x0001
	flagIndexPrimary      uint32 = 0x0002
	flagIndexDisallowNull uint32 = 0x0004
)

const jetCbKeyMostOld = 255

// Index describes one index on a table: its referenced columns, its own
// B+Tree root, and the locale parameters used to normalize Unicode text
// keys.
type Index struct {
	table *Table

	Name    string
	Flags   uint32
	Root    uint32
	Columns []*Column

	keyMost    int
	varSegMac  int
	lcMapFlags uint32
	localeName string
}

func newIndex(table *Table, rec map[uint32]any, name string) *Index {
	idx := &Index{
		table:      table,
		Name:       name,
		Flags:      asUint32(rec[catFlags]),
		Root:       asUint32(rec[catColtypOrPgnoFDP]),
		lcMapFlags: asUint32(rec[catLCMapFlags]),
	}

	idx.keyMost = int(asInt64(rec[catKeyMost]))
	if idx.keyMost == 0 {
		idx.keyMost = jetCbKeyMostOld
	}

	if raw, ok := rec[catVarSegMac].([]byte); ok && len(raw) >= 2 {
		idx.varSegMac = int(binary.LittleEndian.Uint16(raw))
	}
	if idx.varSegMac == 0 {
		idx.varSegMac = idx.keyMost
	}

	if raw, ok := rec[catLocaleName].([]byte); ok {
		idx.localeName = utf16leToString(raw)
	}

	if raw, ok := rec[catKeyFldIDs].([]byte); ok && len(raw)%4 == 0 {
		for i := 0; i+4 <= len(raw); i += 4 {
			colID := binary.LittleEndian.Uint16(raw[i+2 : i+4])
			if col, ok := table.columnsByID[uint32(colID)]; ok {
				idx.Columns = append(idx.Columns, col)
			}
		}
	}
	return idx
}

func utf16leToString(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return strings.TrimRight(string(utf16.Decode(units)), "\x00")
}

// IsPrimary reports whether this is the table's primary (clustered)
// index, whose leaves are the table's own records.
func (idx *Index) IsPrimary() bool {
	return idx.Flags&flagIndexPrimary != 0 || idx.Root == idx.table.Root
}

// KeyFromValues builds the normalized search key for the given column
// values, in the index's declared column order, stopping at the first
// column missing from values (matching make_key in spec §4.6).
func (idx *Index) KeyFromValues(values map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	remaining := idx.keyMost

	for _, col := range idx.Columns {
		v, ok := values[col.Name()]
		if !ok {
			break
		}
		part, err := encodeKey(idx, col, v, idx.varSegMac)
		if err != nil {
			return nil, err
		}
		buf.Write(part)
		remaining -= len(part)
		if remaining <= 0 {
			break
		}
	}

	out := buf.Bytes()
	if len(out) > idx.keyMost {
		out = out[:idx.keyMost]
	}
	return out, nil
}

// KeyFromRecord builds the normalized key this index would assign to an
// existing record.
func (idx *Index) KeyFromRecord(rec *Record) ([]byte, error) {
	values := make(map[string]any, len(idx.Columns))
	for _, col := range idx.Columns {
		v, err := rec.Get(col.Name())
		if err != nil {
			return nil, err
		}
		values[col.Name()] = v
	}
	return idx.KeyFromValues(values)
}

// Search finds the record whose indexed columns equal the given values.
func (idx *Index) Search(equals map[string]any) (*Record, error) {
	key, err := idx.KeyFromValues(equals)
	if err != nil {
		return nil, err
	}
	return idx.SearchKey(key)
}

// SearchKey finds the record whose normalized index key matches key
// exactly.
func (idx *Index) SearchKey(key []byte) (*Record, error) {
	cur, err := pager.NewCursor(idx.table.db.pager, idx.Root)
	if err != nil {
		return nil, err
	}
	if err := cur.Search(key, true); err != nil {
		return nil, err
	}
	node, err := cur.Node()
	if err != nil {
		return nil, err
	}

	if idx.IsPrimary() {
		return decodeRecord(idx.table, node, idx.table.db.impacketCompat)
	}

	primaryCur, err := pager.NewCursor(idx.table.db.pager, idx.table.Root)
	if err != nil {
		return nil, err
	}
	if err := primaryCur.Search(node.Data, true); err != nil {
		return nil, err
	}
	primaryNode, err := primaryCur.Node()
	if err != nil {
		return nil, err
	}
	return decodeRecord(idx.table, primaryNode, idx.table.db.impacketCompat)
}

// Key encoding prefix/marker bytes (spec §4.6).
const (
	keyPrefixNull    = 0x00
	keyPrefixZeroLen = 0x40
	keyPrefixData    = 0x7F
)

func encodeKey(idx *Index, col *Column, value any, maxSize int) ([]byte, error) {
	if value == nil {
		return []byte{keyPrefixNull}, nil
	}

	var body []byte
	var err error

	switch col.Type() {
	case pager.ColBit:
		b := value.(bool)
		if b {
			body = []byte{0xFF}
		} else {
			body = []byte{0x00}
		}
	case pager.ColUnsignedByte:
		body = []byte{value.(uint8)}
	case pager.ColShort:
		body = flipSignedBE(uint64(uint16(value.(int16))), 16)
	case pager.ColLong:
		body = flipSignedBE(uint64(uint32(value.(int32))), 32)
	case pager.ColCurrency, pager.ColLongLong:
		body = flipSignedBE(uint64(value.(int64)), 64)
	case pager.ColIEEESingle:
		bits := uint64(math.Float32bits(value.(float32)))
		body = flipFloatBE(bits, 32)
	case pager.ColIEEEDouble:
		bits := math.Float64bits(value.(float64))
		body = flipFloatBE(bits, 64)
	case pager.ColDateTime:
		body = flipFloatBE(uint64(value.(int64)), 64)
	case pager.ColUnsignedLong:
		body = beBytes(uint64(value.(uint32)), 4)
	case pager.ColUnsignedShort:
		body = beBytes(uint64(value.(uint16)), 2)
	case pager.ColGUID:
		body, err = encodeGUID(value)
	case pager.ColBinary, pager.ColLongBinary:
		body = encodeBinary(col, value.([]byte), maxSize)
	case pager.ColText, pager.ColLongText:
		body, err = encodeText(idx, col, value.(string), maxSize)
	default:
		return nil, fmt.Errorf("esedb: index %q: unsupported key column type %v", idx.Name, col.Type())
	}
	if err != nil {
		return nil, err
	}

	// Empty (but non-null) binary/text values replace the whole segment.
	if len(body) == 0 && (col.IsBinary() || col.IsText()) {
		return []byte{keyPrefixZeroLen}, nil
	}

	out := make([]byte, 0, len(body)+1)
	out = append(out, keyPrefixData)
	out = append(out, body...)
	return out, nil
}

func beBytes(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = byte(v)
		v >>= 8
	}
	return out
}

// flipSignedBE flips the sign bit of a two's-complement value of bits
// width so unsigned big-endian comparison matches signed order.
func flipSignedBE(v uint64, bits int) []byte {
	mask := uint64(1) << (bits - 1)
	return beBytes(v^mask, bits/8)
}

// flipFloatBE applies the IEEE-754 total-order flip: invert all bits if
// the sign bit is set, else flip only the sign bit.
func flipFloatBE(v uint64, bits int) []byte {
	sign := uint64(1) << (bits - 1)
	var out uint64
	if v&sign != 0 {
		out = ^v
		if bits < 64 {
			out &= (uint64(1) << bits) - 1
		}
	} else {
		out = v ^ sign
	}
	return beBytes(out, bits/8)
}

func encodeGUID(value any) ([]byte, error) {
	var id uuid.UUID
	switch v := value.(type) {
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("esedb: encode GUID key: %w", err)
		}
		id = parsed
	case uuid.UUID:
		id = v
	default:
		return nil, fmt.Errorf("esedb: encode GUID key: unsupported value type %T", value)
	}
	b := id[:]
	// Reorder to the Microsoft bytes-le layout, then apply the source's
	// byte-reordering rule: [10:16] ++ [8:10] ++ [6:8] ++ [4:6] ++ [0:4].
	le := make([]byte, 16)
	le[0], le[1], le[2], le[3] = b[3], b[2], b[1], b[0]
	le[4], le[5] = b[5], b[4]
	le[6], le[7] = b[7], b[6]
	copy(le[8:], b[8:16])

	out := make([]byte, 0, 16)
	out = append(out, le[10:16]...)
	out = append(out, le[8:10]...)
	out = append(out, le[6:8]...)
	out = append(out, le[4:6]...)
	out = append(out, le[0:4]...)
	return out, nil
}

const (
	binaryChunk           = 0x08
	binaryChunkNormalized = 0x09
)

func encodeBinary(col *Column, value []byte, maxSize int) []byte {
	if len(value) == 0 {
		return nil
	}
	if col.IsFixed() {
		if len(value)+1 > maxSize {
			value = value[:maxSize]
		}
		out := make([]byte, len(value))
		copy(out, value)
		return out
	}

	numChunks := (len(value) + 7) / 8
	keySize := numChunks*9 + 1
	normalizedAll := true
	if keySize > maxSize {
		keySize = maxSize
		normalizedAll = false
	}
	keyRemaining := keySize - 1

	var out bytes.Buffer
	valueOffset := 0
	valueRemaining := len(value)
	for keyRemaining >= 9 {
		end := valueOffset + 8
		if end > len(value) {
			end = len(value)
		}
		chunk := value[valueOffset:end]
		out.Write(chunk)

		if valueRemaining <= 8 {
			if valueRemaining == 8 {
				if normalizedAll {
					out.WriteByte(binaryChunk)
				} else {
					out.WriteByte(binaryChunkNormalized)
				}
			} else {
				out.Write(make([]byte, 8-len(chunk)))
				out.WriteByte(byte(len(chunk)))
			}
		} else {
			out.WriteByte(binaryChunkNormalized)
			valueOffset += 8
			valueRemaining -= 8
		}
		keyRemaining -= 9
	}

	if keyRemaining > 0 {
		if valueRemaining >= keyRemaining {
			out.Write(value[valueOffset : valueOffset+keyRemaining])
		} else {
			out.Write(value[valueOffset : valueOffset+valueRemaining])
			out.Write(make([]byte, keyRemaining-valueRemaining))
		}
	}
	return out.Bytes()
}

func encodeText(idx *Index, col *Column, value string, maxSize int) ([]byte, error) {
	if len(value) == 0 {
		return nil, nil
	}
	switch col.def.Codepage {
	case pager.CodepageASCII, pager.CodepageWestern:
		if len(value)+1 > maxSize {
			value = value[:maxSize]
		}
		out := append([]byte(strings.ToUpper(value)), 0)
		return out, nil
	default:
		key, err := pager.MapString(value, pager.MapFlags(idx.lcMapFlags), idx.localeName)
		if err != nil {
			return nil, err
		}
		if len(key) > maxSize {
			key = key[:maxSize]
		}
		return key, nil
	}
}
