package main

import "testing"

func TestIsZeroish(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{nil, true},
		{int32(0), true},
		{int32(5), false},
		{int64(0), true},
		{uint32(0), true},
		{uint32(1), false},
		{"x", false},
	}
	for _, c := range cases {
		if got := isZeroish(c.in); got != c.want {
			t.Errorf("isZeroish(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
