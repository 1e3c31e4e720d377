package pager

import (
	"encoding/binary"
	"fmt"
)

// compressionScheme identifies the algorithm used to compress a tagged
// value or long-value chunk (spec §4.7). It occupies the high 5 bits of
// the first byte of the compressed buffer.
type compressionScheme uint8

const (
	schemeNone          compressionScheme = 0
	scheme7BitASCII     compressionScheme = 1
	scheme7BitUnicode   compressionScheme = 2
	schemeLZXPressPlain compressionScheme = 3
	schemeXPRESS9       compressionScheme = 5
	schemeXPRESS10      compressionScheme = 6
)

// Decompress dispatches on the scheme encoded in buf[0] and returns the
// decompressed payload. XPRESS9/XPRESS10 are explicitly out of scope
// (spec Non-goals) and fail with ErrUnsupportedCompression.
func Decompress(buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	scheme := compressionScheme(buf[0] >> 3)
	switch scheme {
	case schemeNone:
		return buf, nil
	case scheme7BitASCII:
		return decompress7Bit(buf, false)
	case scheme7BitUnicode:
		return decompress7Bit(buf, true)
	case schemeLZXPressPlain:
		return decompressLZXpress(buf)
	case schemeXPRESS9, schemeXPRESS10:
		return nil, fmt.Errorf("pager: compression scheme %d: %w", scheme, ErrUnsupportedCompression)
	default:
		return nil, fmt.Errorf("pager: unknown compression scheme %d: %w", scheme, ErrUnsupportedCompression)
	}
}

// DecompressedSize returns the decompressed length of buf without fully
// decompressing it, per the formulas in spec §4.7.
func DecompressedSize(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	scheme := compressionScheme(buf[0] >> 3)
	switch scheme {
	case schemeNone:
		return len(buf), nil
	case scheme7BitASCII:
		return (int(buf[0]&7) + 8*(len(buf)-1)) / 7, nil
	case scheme7BitUnicode:
		return 2 * ((int(buf[0]&7) + 8*(len(buf)-1)) / 7), nil
	case schemeLZXPressPlain:
		if len(buf) < 3 {
			return 0, fmt.Errorf("pager: truncated LZXPRESS header: %w", ErrInvalidDatabase)
		}
		return int(binary.LittleEndian.Uint16(buf[1:3])), nil
	default:
		return 0, fmt.Errorf("pager: compression scheme %d: %w", scheme, ErrUnsupportedCompression)
	}
}

// decompress7Bit unpacks a continuous little-endian bitstream of 7-bit
// groups following the scheme header byte. For ASCII, each group is one
// output byte; for Unicode, each group becomes one UTF-16LE code unit
// (the 7-bit compression scheme only ever stores code points < 128).
func decompress7Bit(buf []byte, wide bool) ([]byte, error) {
	count, err := DecompressedSize(buf)
	if err != nil {
		return nil, err
	}
	units := count
	if wide {
		units = count / 2
	}

	out := make([]byte, 0, count)
	var acc uint32
	var bits uint
	produced := 0
	for _, b := range buf[1:] {
		acc |= uint32(b) << bits
		bits += 8
		for bits >= 7 && produced < units {
			val := byte(acc & 0x7F)
			acc >>= 7
			bits -= 7
			if wide {
				out = append(out, val, 0)
			} else {
				out = append(out, val)
			}
			produced++
		}
		if produced >= units {
			break
		}
	}
	return out, nil
}

// decompressLZXpress implements the "plain" (non-Huffman) LZXPRESS
// algorithm described in [MS-XCA] §2.4: a stream of 32-bit flag words,
// each bit selecting between a literal byte and a (length, offset)
// back-reference into the already-decompressed output. This scheme is
// not reproduced anywhere in the reference sources available for this
// module; it is authored directly from the public MS-XCA description
// (see DESIGN.md).
func decompressLZXpress(buf []byte) ([]byte, error) {
	size, err := DecompressedSize(buf)
	if err != nil {
		return nil, err
	}
	data := buf[3:]
	out := make([]byte, 0, size)

	pos := 0
	var flags uint32
	flagBits := 0

	for pos < len(data) && len(out) < size {
		if flagBits == 0 {
			if pos+4 > len(data) {
				break
			}
			flags = binary.LittleEndian.Uint32(data[pos:])
			pos += 4
			flagBits = 32
		}
		flagBits--
		isMatch := flags&(1<<uint(flagBits)) != 0

		if !isMatch {
			if pos >= len(data) {
				break
			}
			out = append(out, data[pos])
			pos++
			continue
		}

		if pos+2 > len(data) {
			break
		}
		token := binary.LittleEndian.Uint16(data[pos:])
		pos += 2
		length := int(token & 0x7)
		offset := int(token>>3) + 1

		if length == 7 {
			if pos >= len(data) {
				break
			}
			length += int(data[pos])
			pos++
			if length == 7+255 {
				if pos+2 > len(data) {
					break
				}
				length = int(binary.LittleEndian.Uint16(data[pos:]))
				pos += 2
			}
		}
		length += 3

		if offset > len(out) {
			return nil, fmt.Errorf("pager: LZXPRESS back-reference past start of output: %w", ErrInvalidDatabase)
		}
		for i := 0; i < length && len(out) < size; i++ {
			out = append(out, out[len(out)-offset])
		}
	}

	return out, nil
}
