package pager

import (
	"bytes"
	"errors"
	"testing"
)

// buildTestTree constructs a 2-level small-page tree: a branch root with
// two children leaves, keys "b","d","f","h" split as {b,d} | {f,h}, and
// registers it under fakePager logical pages {1: root, 2: leaf1, 3: leaf2}.
func buildTestTree() *Pager {
	leaf1 := buildPage(4096, FlagLeaf, 0, 3, nil, [][]byte{
		encodeNode([]byte("b"), []byte("B")),
		encodeNode([]byte("d"), []byte("D")),
	}, nil)
	leaf2 := buildPage(4096, FlagLeaf, 2, 0, nil, [][]byte{
		encodeNode([]byte("f"), []byte("F")),
		encodeNode([]byte("h"), []byte("H")),
	}, nil)

	child := func(n uint32) []byte { b := make([]byte, 4); b[0] = byte(n); return b }
	// Branch key "f" is a non-inclusive upper bound: leaf1 holds keys
	// below "f", and a search for "f" must descend through leaf2.
	root := buildPage(4096, FlagRoot, 0, 0, nil, [][]byte{
		encodeNode([]byte("f"), child(2)),
		encodeNode([]byte("zz"), child(3)),
	}, nil)

	return fakePager(true, map[uint32][]byte{1: root, 2: leaf1, 3: leaf2})
}

func TestCursorResetAndNext(t *testing.T) {
	p := buildTestTree()
	cur, err := NewCursor(p, 1)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	var keys []string
	for {
		n, err := cur.Node()
		if err != nil {
			t.Fatalf("Node: %v", err)
		}
		keys = append(keys, string(n.Key))
		if err := cur.Next(); err != nil {
			if errors.Is(err, ErrNoNeighbourPage) {
				break
			}
			t.Fatalf("Next: %v", err)
		}
	}
	want := []string{"b", "d", "f", "h"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestCursorPrevCrossesSibling(t *testing.T) {
	p := buildTestTree()
	cur, err := NewCursor(p, 1)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if err := cur.Search([]byte("f"), true); err != nil {
		t.Fatalf("Search(f): %v", err)
	}
	if err := cur.Prev(); err != nil {
		t.Fatalf("Prev: %v", err)
	}
	n, err := cur.Node()
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if !bytes.Equal(n.Key, []byte("d")) {
		t.Errorf("Prev landed on %q, want %q", n.Key, "d")
	}
}

func TestCursorSearchExact(t *testing.T) {
	p := buildTestTree()
	cur, err := NewCursor(p, 1)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	for _, k := range []string{"b", "d", "f", "h"} {
		if err := cur.Search([]byte(k), true); err != nil {
			t.Fatalf("Search(%q): %v", k, err)
		}
		n, err := cur.Node()
		if err != nil {
			t.Fatalf("Node: %v", err)
		}
		if !bytes.Equal(n.Key, []byte(k)) {
			t.Errorf("Search(%q) landed on %q", k, n.Key)
		}
	}
}

func TestCursorSearchExactMiss(t *testing.T) {
	p := buildTestTree()
	cur, err := NewCursor(p, 1)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if err := cur.Search([]byte("c"), true); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Search(c, exact) err = %v, want ErrKeyNotFound", err)
	}
}

func TestCursorSearchNonExactFloor(t *testing.T) {
	p := buildTestTree()
	cur, err := NewCursor(p, 1)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	// "c" falls between "b" and "d"; a non-exact search lands on the
	// greatest node whose key is <= "c", i.e. "b".
	if err := cur.Search([]byte("c"), false); err != nil {
		t.Fatalf("Search(c): %v", err)
	}
	n, err := cur.Node()
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if !bytes.Equal(n.Key, []byte("b")) {
		t.Errorf("Search(c, non-exact) landed on %q, want %q", n.Key, "b")
	}
}

func TestCursorNonInclusiveUpperBound(t *testing.T) {
	// Searching exactly for the branch key "f" must descend into the
	// *next* child (leaf2, holding f/h), not the child the key labels
	// (leaf1, holding b/d).
	p := buildTestTree()
	cur, err := NewCursor(p, 1)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if err := cur.Search([]byte("f"), true); err != nil {
		t.Fatalf("Search(f): %v", err)
	}
	if cur.page.Number != 3 {
		t.Errorf("Search(f) resolved on page %d, want leaf2 (page 3)", cur.page.Number)
	}
}

func TestCursorBoundaryErrors(t *testing.T) {
	p := buildTestTree()
	cur, err := NewCursor(p, 1)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if err := cur.Prev(); !errors.Is(err, ErrNoNeighbourPage) {
		t.Fatalf("Prev at first leaf err = %v, want ErrNoNeighbourPage", err)
	}
	if err := cur.Search([]byte("h"), true); err != nil {
		t.Fatalf("Search(h): %v", err)
	}
	if err := cur.Next(); !errors.Is(err, ErrNoNeighbourPage) {
		t.Fatalf("Next at last leaf err = %v, want ErrNoNeighbourPage", err)
	}
}
