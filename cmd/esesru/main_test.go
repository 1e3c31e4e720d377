package main

import "testing"

func TestUtf16leString(t *testing.T) {
	// "AB" in UTF-16LE, NUL-terminated.
	buf := []byte{'A', 0, 'B', 0, 0, 0}
	if got := utf16leString(buf); got != "AB" {
		t.Fatalf("utf16leString: got %q, want %q", got, "AB")
	}
}

func TestUtf16leStringOddLength(t *testing.T) {
	buf := []byte{'A', 0, 'B'}
	if got := utf16leString(buf); got != "A" {
		t.Fatalf("utf16leString(odd): got %q, want %q", got, "A")
	}
}

func TestAsInt(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{int16(5), 5},
		{int32(-7), -7},
		{int64(42), 42},
		{uint16(3), 3},
		{uint32(9), 9},
		{"nope", -1},
	}
	for _, c := range cases {
		if got := asInt(c.in); got != c.want {
			t.Errorf("asInt(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}
