package pager

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ColumnType mirrors JET_coltyp: the physical storage type of a column.
type ColumnType uint16

const (
	ColNil            ColumnType = 0
	ColBit            ColumnType = 1
	ColUnsignedByte   ColumnType = 2
	ColShort          ColumnType = 3
	ColLong           ColumnType = 4
	ColCurrency       ColumnType = 5
	ColIEEESingle     ColumnType = 6
	ColIEEEDouble     ColumnType = 7
	ColDateTime       ColumnType = 8
	ColBinary         ColumnType = 9
	ColText           ColumnType = 10
	ColLongBinary     ColumnType = 11
	ColLongText       ColumnType = 12
	ColSLV            ColumnType = 13
	ColUnsignedLong   ColumnType = 14
	ColLongLong       ColumnType = 15
	ColGUID           ColumnType = 16
	ColUnsignedShort  ColumnType = 17
	ColMax            ColumnType = 18
)

// Codepage identifies the text encoding of a Text/LongText column.
type Codepage uint16

const (
	CodepageUnicode Codepage = 1200
	CodepageWestern Codepage = 1252
	CodepageASCII   Codepage = 20127
)

// IsText reports whether t stores character data.
func (t ColumnType) IsText() bool { return t == ColText || t == ColLongText }

// IsBinary reports whether t stores opaque bytes (excluding text).
func (t ColumnType) IsBinary() bool { return t == ColBinary || t == ColLongBinary }

// IsLong reports whether t is one of the separately-stored-capable long
// types (LongBinary/LongText always may be; any tagged column may also
// be separated regardless of type per spec §4.4).
func (t ColumnType) IsLong() bool { return t == ColLongBinary || t == ColLongText }

// FixedSize returns the on-disk width of fixed-width types, or 0 for
// variable-width types (Binary, Text, LongBinary, LongText, SLV).
func (t ColumnType) FixedSize() int {
	switch t {
	case ColBit, ColUnsignedByte:
		return 1
	case ColShort, ColUnsignedShort:
		return 2
	case ColLong, ColIEEESingle, ColUnsignedLong:
		return 4
	case ColCurrency, ColIEEEDouble, ColDateTime, ColLongLong:
		return 8
	case ColGUID:
		return 16
	default:
		return 0
	}
}

// DecodeValue applies the type decoder table of spec §4.4 to buf,
// producing a Go value: nil, bool, uint8, int16, int32, int64, uint16,
// uint32, float32, float64, string, or []byte. GUIDs are returned as
// their canonical string form.
// Lists (multi-values) are assembled by the caller, which calls
// DecodeValue once per element.
func DecodeValue(buf []byte, typ ColumnType, cp Codepage) (any, error) {
	switch typ {
	case ColBit:
		if len(buf) < 1 {
			return false, nil
		}
		return buf[0] == 0xFF, nil
	case ColUnsignedByte:
		if len(buf) < 1 {
			return uint8(0), nil
		}
		return buf[0], nil
	case ColShort:
		return int16(binary.LittleEndian.Uint16(pad(buf, 2))), nil
	case ColUnsignedShort:
		return binary.LittleEndian.Uint16(pad(buf, 2)), nil
	case ColLong:
		return int32(binary.LittleEndian.Uint32(pad(buf, 4))), nil
	case ColUnsignedLong:
		return binary.LittleEndian.Uint32(pad(buf, 4)), nil
	case ColCurrency, ColLongLong, ColDateTime:
		// DateTime is kept as the raw signed 64-bit quantity; callers
		// choose the OLE-automation or FILETIME interpretation.
		return int64(binary.LittleEndian.Uint64(pad(buf, 8))), nil
	case ColIEEESingle:
		return math.Float32frombits(binary.LittleEndian.Uint32(pad(buf, 4))), nil
	case ColIEEEDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(pad(buf, 8))), nil
	case ColBinary, ColLongBinary, ColSLV:
		out := make([]byte, len(buf))
		copy(out, buf)
		return out, nil
	case ColText, ColLongText:
		return decodeText(buf, cp)
	case ColGUID:
		if len(buf) < 16 {
			return "", nil
		}
		id, err := uuid.FromBytes(leGUIDToBytesLE(buf[:16]))
		if err != nil {
			return "", fmt.Errorf("pager: decode GUID: %w", err)
		}
		return id.String(), nil
	case ColNil, ColMax:
		return nil, nil
	default:
		return nil, fmt.Errorf("pager: unsupported column type %d", typ)
	}
}

func pad(buf []byte, n int) []byte {
	if len(buf) >= n {
		return buf[:n]
	}
	out := make([]byte, n)
	copy(out, buf)
	return out
}

// leGUIDToBytesLE converts the Microsoft "bytes-le" GUID layout (the
// on-disk representation: Data1/Data2/Data3 little-endian, Data4 as-is)
// into the byte order google/uuid.FromBytes expects (big-endian /
// RFC 4122 field order), matching uuid.UUID.bytes_le's inverse in the
// Python source.
func leGUIDToBytesLE(b []byte) []byte {
	out := make([]byte, 16)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:16])
	return out
}

func decodeText(buf []byte, cp Codepage) (string, error) {
	switch cp {
	case CodepageUnicode, 0: // default to Unicode when encoding is unset
		b := buf
		if len(b)%2 != 0 {
			b = append(append([]byte{}, b...), 0)
		}
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(b)
		if err != nil {
			return "", fmt.Errorf("pager: decode UTF-16LE text: %w", err)
		}
		return strings.TrimRight(string(out), "\x00"), nil
	case CodepageWestern:
		dec := charmap.Windows1252.NewDecoder()
		out, err := dec.Bytes(buf)
		if err != nil {
			return "", fmt.Errorf("pager: decode cp1252 text: %w", err)
		}
		return string(out), nil
	case CodepageASCII:
		out := make([]byte, len(buf))
		for i, b := range buf {
			if b > 0x7F {
				b = '?'
			}
			out[i] = b
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("pager: unknown codepage %d", cp)
	}
}
