package pager

import (
	"fmt"
	"unicode/utf16"
)

// MapFlags mirrors the subset of Windows LCMapStringEx flags this
// package implements (spec §4.8): only sort-key generation, with a
// handful of case/width/kana ignore modifiers. Flags this package does
// not implement (digit-as-number sorting, kana/width folding for
// unsupported scripts) have no effect rather than being rejected,
// matching the spec's "defined but limited effect" wording.
type MapFlags uint32

const (
	FlagLCMapSortkey      MapFlags = 0x00000400
	FlagNormIgnoreCase    MapFlags = 0x00000001
	FlagNormIgnoreNonSpace MapFlags = 0x00000002
	FlagNormIgnoreSymbols MapFlags = 0x00000004
	FlagNormIgnoreWidth   MapFlags = 0x00020000
	FlagNormIgnoreKanatype MapFlags = 0x00010000
)

// MapString computes the sort-key byte encoding for value, in the
// manner of LCMapStringEx(locale, LCMAP_SORTKEY, ...). It accumulates
// three weight streams (primary/alphabetic, diacritic, case) across the
// string's UTF-16 code units, trims insignificant trailing weights from
// the diacritic and case streams, and concatenates them with the
// separators the real API produces. locale is accepted for interface
// parity with spec §4.8 but does not currently affect weight selection:
// only the single default (culture-invariant) table below is
// implemented.
func MapString(value string, flags MapFlags, locale string) ([]byte, error) {
	units := utf16.Encode([]rune(value))

	primary := make([]byte, 0, len(units))
	diacritic := make([]byte, 0, len(units))
	caseBytes := make([]byte, 0, len(units))

	ignoreCase := flags&FlagNormIgnoreCase != 0
	ignoreDiacritic := flags&FlagNormIgnoreNonSpace != 0
	ignoreSymbols := flags&FlagNormIgnoreSymbols != 0

	for _, u := range units {
		r := rune(u)
		alpha, sc, diac, cw, ok := sortWeight(r)
		if !ok {
			return nil, fmt.Errorf("pager: unmapped character U+%04X: %w", r, ErrUnsupportedCharacter)
		}
		if ignoreSymbols && (sc == scriptPunctuation || sc == scriptSymbol) {
			continue
		}
		primary = append(primary, alpha)
		if !ignoreDiacritic {
			diacritic = append(diacritic, diac)
		}
		if !ignoreCase {
			caseBytes = append(caseBytes, uint8(cw))
		}
	}

	diacritic = trimTrailingZero(diacritic)
	caseBytes = trimTrailingZero(caseBytes)

	out := make([]byte, 0, len(primary)+len(diacritic)+len(caseBytes)+4)
	out = append(out, primary...)
	out = append(out, 0x01)
	out = append(out, diacritic...)
	out = append(out, 0x01)
	out = append(out, caseBytes...)
	out = append(out, 0x01, 0x01, 0x00)
	return out, nil
}

// trimTrailingZero drops trailing zero-weight bytes, mirroring
// _filter_weights in the source: a stream of entirely-default weights
// carries no collation information and is dropped from the key.
func trimTrailingZero(b []byte) []byte {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}
