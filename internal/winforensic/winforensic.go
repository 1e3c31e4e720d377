// Package winforensic converts the raw DateTime and binary-SID values
// esedb.Record exposes into the forms forensic tooling actually wants:
// Windows FILETIME / OLE Automation date to time.Time, and a raw SID
// blob to its canonical "S-1-5-..." string. Neither conversion is
// specific to the ESE format itself (spec §4.4 deliberately keeps
// DateTime as a raw 64-bit quantity and leaves the choice to the
// caller), so this lives alongside the cmd/ tools that need it rather
// than inside the decoder.
package winforensic

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// fileTimeEpoch is 1601-01-01 00:00:00 UTC, the FILETIME epoch.
var fileTimeEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// FileTimeToTime interprets raw as a Windows FILETIME: 100-nanosecond
// intervals since 1601-01-01. A zero value maps to the zero time.Time.
func FileTimeToTime(raw int64) time.Time {
	if raw == 0 {
		return time.Time{}
	}
	// time.Duration spans only about 292 years, less than the distance
	// from the FILETIME epoch to present-day dates, so the value is split
	// into whole seconds and a sub-second remainder instead.
	const ticksPerSecond = 10_000_000
	sec := raw/ticksPerSecond + fileTimeEpoch.Unix()
	nsec := (raw % ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}

// oleAutomationEpoch is 1899-12-30, the OLE Automation date epoch.
var oleAutomationEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// OleAutomationDateToTime interprets raw as the bit pattern of an OLE
// Automation date: a float64 count of days (and fractional days) since
// 1899-12-30.
func OleAutomationDateToTime(raw int64) time.Time {
	if raw == 0 {
		return time.Time{}
	}
	days := math.Float64frombits(uint64(raw))
	return oleAutomationEpoch.Add(time.Duration(days * float64(24*time.Hour)))
}

// FormatSID renders a raw NT_SECURITY_DESCRIPTOR-style SID byte blob
// (revision byte, sub-authority count, 6-byte big-endian identifier
// authority, then that many little-endian uint32 sub-authorities) as
// its canonical "S-<rev>-<authority>-<sub>-..." string.
func FormatSID(b []byte) (string, error) {
	if len(b) < 8 {
		return "", fmt.Errorf("winforensic: SID blob too short (%d bytes)", len(b))
	}
	revision := b[0]
	subAuthCount := int(b[1])
	authority := uint64(0)
	for _, v := range b[2:8] {
		authority = authority<<8 | uint64(v)
	}
	want := 8 + subAuthCount*4
	if len(b) < want {
		return "", fmt.Errorf("winforensic: SID blob truncated: want %d bytes, got %d", want, len(b))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "S-%d-%d", revision, authority)
	for i := 0; i < subAuthCount; i++ {
		sub := binary.LittleEndian.Uint32(b[8+i*4:])
		fmt.Fprintf(&sb, "-%d", sub)
	}
	return sb.String(), nil
}
