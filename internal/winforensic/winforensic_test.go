package winforensic

import (
	"math"
	"testing"
	"time"
)

func TestFileTimeToTime(t *testing.T) {
	if !FileTimeToTime(0).IsZero() {
		t.Fatalf("FileTimeToTime(0): want zero time")
	}
	// 2020-01-01 00:00:00 UTC in 100ns FILETIME ticks.
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := (want.Unix() - fileTimeEpoch.Unix()) * 10_000_000
	got := FileTimeToTime(raw)
	if !got.Equal(want) {
		t.Fatalf("FileTimeToTime(%d): got %v, want %v", raw, got, want)
	}
}

func TestOleAutomationDateToTime(t *testing.T) {
	if !OleAutomationDateToTime(0).IsZero() {
		t.Fatalf("OleAutomationDateToTime(0): want zero time")
	}
	want := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	days := want.Sub(oleAutomationEpoch).Hours() / 24
	raw := int64(math.Float64bits(days))
	got := OleAutomationDateToTime(raw)
	if got.Sub(want) > time.Second || want.Sub(got) > time.Second {
		t.Fatalf("OleAutomationDateToTime(%d): got %v, want ~%v", raw, got, want)
	}
}

func TestFormatSID(t *testing.T) {
	// S-1-5-18 (the well-known "Local System" SID).
	blob := []byte{
		1,                // revision
		1,                // sub-authority count
		0, 0, 0, 0, 0, 5, // identifier authority (big-endian, = 5)
		18, 0, 0, 0, // sub-authority 18, little-endian
	}
	got, err := FormatSID(blob)
	if err != nil {
		t.Fatalf("FormatSID: %v", err)
	}
	want := "S-1-5-18"
	if got != want {
		t.Fatalf("FormatSID: got %q, want %q", got, want)
	}
}

func TestFormatSIDTruncated(t *testing.T) {
	if _, err := FormatSID([]byte{1, 5, 0, 0, 0, 0, 0, 5}); err == nil {
		t.Fatalf("FormatSID(truncated): want error")
	}
}
