package pager

import (
	"encoding/binary"
	"testing"
)

// buildRecord assembles a synthetic leaf payload with 2 fixed columns
// (UnsignedByte id1, Long id2), 1 variable column (Text/ASCII id128),
// and 2 tagged columns (a plain Long id256, and a 2-element MultiValues
// Text id257), in large-page mode (extended info always present).
func buildRecord(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, 36)

	buf[0] = 2   // fidFixedLastInRec
	buf[1] = 128 // fidVarLastInRec
	binary.LittleEndian.PutUint16(buf[2:], 10) // ibEndOfFixedData

	buf[4] = 7 // col1 = 7
	binary.LittleEndian.PutUint32(buf[5:], uint32(int32(-42))) // col2 = -42
	buf[9] = 0x00                                               // null bitmap: none null

	binary.LittleEndian.PutUint16(buf[10:], 2) // variable offsets[0] = 2
	copy(buf[12:14], "hi")                      // variable data

	// Tagged index: 2 entries, 4 bytes each, starting at buf[14].
	binary.LittleEndian.PutUint16(buf[14:], 256)  // entry0 id
	binary.LittleEndian.PutUint16(buf[16:], 8)    // entry0 offset (right after the 8-byte index)
	binary.LittleEndian.PutUint16(buf[18:], 257)  // entry1 id
	binary.LittleEndian.PutUint16(buf[20:], 13)   // entry1 offset (8 + 5)

	// entry0 data: extInfo flags byte (0 = plain), then int32 LE 99999.
	buf[22] = 0x00
	binary.LittleEndian.PutUint32(buf[23:], uint32(int32(99999)))

	// entry1 data: flags byte (TaggedMulti), then the multi-value array:
	// offsets[0]=4 (== 2*n, marks where element 0 begins), offsets[1]=6,
	// then "AA", "BB".
	buf[27] = byte(TaggedMulti)
	binary.LittleEndian.PutUint16(buf[28:], 4)
	binary.LittleEndian.PutUint16(buf[30:], 6)
	copy(buf[32:34], "AA")
	copy(buf[34:36], "BB")

	return buf
}

func testColumns() []ColumnDef {
	return []ColumnDef{
		{ID: 1, Name: "Fixed1", Type: ColUnsignedByte, FixedOffset: 0},
		{ID: 2, Name: "Fixed2", Type: ColLong, FixedOffset: 1},
		{ID: 128, Name: "Var1", Type: ColText, Codepage: CodepageASCII},
		{ID: 256, Name: "Tag1", Type: ColLong},
		{ID: 257, Name: "Tag2", Type: ColText, Codepage: CodepageASCII},
	}
}

func TestDecodeFixedVariableTagged(t *testing.T) {
	buf := buildRecord(t)
	cols := testColumns()

	out, err := Decode(cols, buf, false, nil, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if v, ok := out[1].(uint8); !ok || v != 7 {
		t.Errorf("col1 = %#v, want uint8(7)", out[1])
	}
	if v, ok := out[2].(int32); !ok || v != -42 {
		t.Errorf("col2 = %#v, want int32(-42)", out[2])
	}
	if v, ok := out[128].(string); !ok || v != "hi" {
		t.Errorf("col128 = %#v, want \"hi\"", out[128])
	}
	if v, ok := out[256].(int32); !ok || v != 99999 {
		t.Errorf("col256 = %#v, want int32(99999)", out[256])
	}
	list, ok := out[257].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("col257 = %#v, want a 2-element list", out[257])
	}
	if list[0] != "AA" || list[1] != "BB" {
		t.Errorf("col257 = %v, want [AA BB]", list)
	}
}

func TestDecodeFixedColumnNullBitateMissing(t *testing.T) {
	buf := buildRecord(t)
	buf[9] = 0x01 // set null bit for fixed column 1 (bit 0)
	cols := testColumns()

	out, err := Decode(cols, buf, false, nil, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out[1] != nil {
		t.Errorf("col1 (null bit set) = %#v, want nil", out[1])
	}
}

func TestDecodeFixedColumnPastLastInRecReturnsDefault(t *testing.T) {
	buf := buildRecord(t)
	cols := []ColumnDef{
		{ID: 1, Name: "Fixed1", Type: ColUnsignedByte, FixedOffset: 0},
		{ID: 2, Name: "Fixed2", Type: ColLong, FixedOffset: 1},
		{ID: 3, Name: "Fixed3", Type: ColLong, FixedOffset: 5, Default: []byte{9, 0, 0, 0}},
		{ID: 128, Name: "Var1", Type: ColText, Codepage: CodepageASCII},
		{ID: 256, Name: "Tag1", Type: ColLong},
		{ID: 257, Name: "Tag2", Type: ColText, Codepage: CodepageASCII},
	}
	out, err := Decode(cols, buf, false, nil, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, ok := out[3].(int32); !ok || v != 9 {
		t.Errorf("col3 (beyond fidFixedLastInRec, defaulted) = %#v, want int32(9)", out[3])
	}
}

func TestDecodeVariableAbsent(t *testing.T) {
	buf := buildRecord(t)
	binary.LittleEndian.PutUint16(buf[10:], 0x8002) // MSB set: value absent; low bits keep end offset 2
	cols := testColumns()

	out, err := Decode(cols, buf, false, nil, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out[128] != nil {
		t.Errorf("col128 (absent) = %#v, want nil", out[128])
	}
}

func TestDecodeTaggedSeparated(t *testing.T) {
	// Single tagged column whose value is Separated: the payload is a
	// long-value token resolved via the supplied callback.
	buf := make([]byte, 4+0+0+0+4+1+4) // header, no fixed/var, 1 tagged entry + its data
	buf[0] = 0
	buf[1] = 127
	binary.LittleEndian.PutUint16(buf[2:], 4)
	taggedStart := 4
	binary.LittleEndian.PutUint16(buf[taggedStart:], 256)
	binary.LittleEndian.PutUint16(buf[taggedStart+2:], 4) // offset right after 4-byte index
	buf[taggedStart+4] = byte(TaggedSeparated)
	copy(buf[taggedStart+5:], []byte{1, 2, 3, 4}) // token

	cols := []ColumnDef{{ID: 256, Name: "Blob", Type: ColLongBinary}}
	resolve := func(token []byte) ([]byte, error) {
		if len(token) != 4 || token[0] != 1 {
			t.Fatalf("resolveLV called with unexpected token %v", token)
		}
		return []byte("resolved-blob"), nil
	}

	out, err := Decode(cols, buf, false, resolve, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	v, ok := out[256].([]byte)
	if !ok || string(v) != "resolved-blob" {
		t.Errorf("col256 = %#v, want []byte(\"resolved-blob\")", out[256])
	}
}

func TestDecodeImpacketCompat(t *testing.T) {
	buf := buildRecord(t)
	cols := testColumns()
	out, err := Decode(cols, buf, false, nil, true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	list, ok := out[257].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("col257 = %#v, want a 2-element list", out[257])
	}
	if list[0] != "4141" || list[1] != "4242" {
		t.Errorf("col257 (impacket compat) = %v, want hex-encoded raw bytes", list)
	}
}
