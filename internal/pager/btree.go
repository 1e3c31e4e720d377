package pager

import (
	"bytes"
	"fmt"
)

// Cursor is a stateful B+Tree cursor rooted at a fixed logical page. It
// always descends to a leaf before exposing Node, and tracks
// (page, nodeIndex) so Next/Prev can walk across leaf boundaries using
// sibling links. Two Cursors over the same tree are independent; this
// mirrors the teacher's ScanRange callback-walk style translated into an
// explicit stateful object, since both the long-value store and every
// table/index need their own independent cursor (spec §5).
type Cursor struct {
	pager *Pager
	root  uint32

	page  *Page
	index int
}

// NewCursor returns a cursor over the tree rooted at root, positioned at
// the first node of the leftmost leaf (equivalent to Reset).
func NewCursor(p *Pager, root uint32) (*Cursor, error) {
	c := &Cursor{pager: p, root: root}
	if err := c.Reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reset returns the cursor to the leftmost leaf, node 0.
func (c *Cursor) Reset() error {
	page, err := c.pager.Page(c.root)
	if err != nil {
		return err
	}
	for !page.IsLeaf() {
		if page.NodeCount() == 0 {
			break
		}
		n, err := page.Node(0)
		if err != nil {
			return err
		}
		page, err = c.pager.Page(n.ChildPage())
		if err != nil {
			return err
		}
	}
	c.page = page
	c.index = 0
	return nil
}

// Node returns the node currently under the cursor.
func (c *Cursor) Node() (*Node, error) {
	if c.page == nil {
		return nil, fmt.Errorf("pager: cursor not positioned: %w", ErrKeyNotFound)
	}
	return c.page.Node(c.index)
}

// Next advances the cursor by one node, crossing onto the next sibling
// leaf when the current page is exhausted.
func (c *Cursor) Next() error {
	if c.index+1 < c.page.NodeCount() {
		c.index++
		return nil
	}
	if c.page.NextPage == 0 {
		return fmt.Errorf("pager: cursor at last leaf: %w", ErrNoNeighbourPage)
	}
	next, err := c.pager.Page(c.page.NextPage)
	if err != nil {
		return err
	}
	c.page = next
	c.index = 0
	return nil
}

// Prev steps the cursor back by one node, crossing onto the previous
// sibling leaf when at the start of the current page.
func (c *Cursor) Prev() error {
	if c.index > 0 {
		c.index--
		return nil
	}
	if c.page.PrevPage == 0 {
		return fmt.Errorf("pager: cursor at first leaf: %w", ErrNoNeighbourPage)
	}
	prev, err := c.pager.Page(c.page.PrevPage)
	if err != nil {
		return err
	}
	c.page = prev
	c.index = prev.NodeCount() - 1
	return nil
}

// Search descends from the root by key, applying the non-inclusive
// upper-bound rule for branch keys (spec §4.3): on a branch page, an
// exact match forces descent through the *next* entry, clamped to the
// last tag. On a leaf page the cursor stops; if exact is true the
// matched key must equal key exactly or the search fails with
// ErrKeyNotFound.
func (c *Cursor) Search(key []byte, exact bool) error {
	page, err := c.pager.Page(c.root)
	if err != nil {
		return err
	}
	for !page.IsLeaf() {
		idx, err := findBranchNode(page, key)
		if err != nil {
			return err
		}
		n, err := page.Node(idx)
		if err != nil {
			return err
		}
		page, err = c.pager.Page(n.ChildPage())
		if err != nil {
			return err
		}
	}

	idx, found, err := findLeafNode(page, key)
	if err != nil {
		return err
	}
	if exact && !found {
		return fmt.Errorf("pager: search key not present: %w", ErrKeyNotFound)
	}
	c.page = page
	c.index = idx
	return nil
}

// findBranchNode performs the binary search described in spec §4.3 over
// a branch page: key < node.Key narrows the upper bound, key > node.Key
// narrows the lower bound, key == node.Key forces descent through the
// next entry (clamped to the last tag).
func findBranchNode(page *Page, key []byte) (int, error) {
	count := page.NodeCount()
	if count == 0 {
		return 0, fmt.Errorf("pager: empty branch page %d: %w", page.Number, ErrInvalidDatabase)
	}

	lo, hi := 0, count-1
	for lo < hi {
		mid := (lo + hi) / 2
		n, err := page.Node(mid)
		if err != nil {
			return 0, err
		}
		cmp := bytes.Compare(key, n.Key)
		switch {
		case cmp < 0:
			hi = mid
		case cmp > 0:
			lo = mid + 1
		default:
			// Exact match on a branch key: the real data lives in the
			// *next* entry's subtree (non-inclusive upper bound).
			if mid+1 > count-1 {
				return count - 1, nil
			}
			lo = mid + 1
		}
	}
	return lo, nil
}

// findLeafNode performs an ordinary binary search over a leaf page,
// returning the index of the greatest node whose key is <= key (or the
// least node whose key is >= key, consistent with spec §4.3's tie rule),
// and whether the key matched exactly.
func findLeafNode(page *Page, key []byte) (int, bool, error) {
	count := page.NodeCount()
	if count == 0 {
		return 0, false, nil
	}

	lo, hi := 0, count-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		n, err := page.Node(mid)
		if err != nil {
			return 0, false, err
		}
		if bytes.Compare(n.Key, key) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	n, err := page.Node(lo)
	if err != nil {
		return 0, false, err
	}
	return lo, bytes.Equal(n.Key, key), nil
}
