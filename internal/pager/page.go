package pager

import (
	"encoding/binary"
	"fmt"
)

// PageFlag bits (spec §3). Branch pages are simply pages without Leaf set.
type PageFlag uint32

const (
	FlagRoot            PageFlag = 0x0001
	FlagLeaf            PageFlag = 0x0002
	FlagParentOfLeaf    PageFlag = 0x0004
	FlagEmpty           PageFlag = 0x0008
	FlagSpaceTree       PageFlag = 0x0020
	FlagIndex           PageFlag = 0x0040
	FlagLongValue       PageFlag = 0x0080
	FlagNonUniqueKeys   PageFlag = 0x0400
	FlagNewRecordFormat PageFlag = 0x0800
)

func (f PageFlag) Has(bit PageFlag) bool { return f&bit != 0 }

// TagFlag bits live either in the tag slot itself (small pages) or in
// the first word of the tag's data region (large pages); see Page.tagAt.
type TagFlag uint8

const (
	TagVersion    TagFlag = 0x01
	TagDeleted    TagFlag = 0x02
	TagCompressed TagFlag = 0x04
)

// Common page header layout (40 bytes), present on every page regardless
// of size. Large pages (page size > 8192) carry an additional 40-byte
// extended header immediately after (three 8-byte ECC checksums, the
// page number again, and 12 reserved bytes); the core does not
// otherwise consult it, but every tag offset is relative to the page's
// data region, which begins after this header.
const (
	commonHeaderSize   = 40
	extendedHeaderSize = 40

	hdrOffPrevPage = 16
	hdrOffNextPage = 20
	hdrOffObjidFDP = 24
	hdrOffTagCount = 34
	hdrOffFlags    = 36
)

// nodeLengthMask bounds the node-internal prefix-copy-length and
// suffix-length fields to 13 bits, leaving the top 3 bits of the first
// such word available to carry large-page tag flags (spec §3's "first
// little-endian word of the tag's data region").
const nodeLengthMask = 0x1FFF

// Page is a decoded logical page: header fields, the tag array, and the
// key prefix shared by every node on the page (tag 0's data, unless the
// page is Root).
type Page struct {
	pager  *Pager
	Number uint32
	buf    []byte

	PrevPage uint32
	NextPage uint32
	ObjidFDP uint32
	Flags    PageFlag

	tagCount  int
	dataStart int // offset where tag data begins (after header)
	keyPrefix []byte

	nodes []*Node // memoized, indexed 0..tagCount-2
}

// ParsePage decodes buf (exactly one page's worth of bytes) as logical
// page num belonging to p.
func ParsePage(p *Pager, num uint32, buf []byte) (*Page, error) {
	if len(buf) < commonHeaderSize {
		return nil, fmt.Errorf("pager: page %d: truncated header: %w", num, ErrInvalidDatabase)
	}
	pg := &Page{
		pager:     p,
		Number:    num,
		buf:       buf,
		PrevPage:  binary.LittleEndian.Uint32(buf[hdrOffPrevPage:]),
		NextPage:  binary.LittleEndian.Uint32(buf[hdrOffNextPage:]),
		ObjidFDP:  binary.LittleEndian.Uint32(buf[hdrOffObjidFDP:]),
		tagCount:  int(binary.LittleEndian.Uint16(buf[hdrOffTagCount:])),
		Flags:     PageFlag(binary.LittleEndian.Uint32(buf[hdrOffFlags:])),
		dataStart: commonHeaderSize,
	}
	if !p.SmallPages() {
		pg.dataStart += extendedHeaderSize
	}
	if pg.tagCount < 1 {
		return pg, nil
	}

	off, size, _ := pg.tagAt(0)
	if !pg.Flags.Has(FlagRoot) && off+size <= len(buf) {
		pg.keyPrefix = buf[off : off+size]
	}
	pg.nodes = make([]*Node, pg.tagCount-1)
	return pg, nil
}

// IsLeaf reports whether this page is a B+Tree leaf page.
func (p *Page) IsLeaf() bool { return p.Flags.Has(FlagLeaf) }

// NodeCount returns the number of B+Tree entries on the page (tag count
// minus the reserved key-prefix tag).
func (p *Page) NodeCount() int {
	if p.tagCount == 0 {
		return 0
	}
	return p.tagCount - 1
}

// tagSlot returns the byte offset of tag i's 4-byte slot: tags grow
// downward from the end of the page.
func (p *Page) tagSlot(i int) int { return len(p.buf) - 4*(i+1) }

// tagAt decodes tag i into (offset, size, flags), applying the
// small-page/large-page mask and flag-location rules of spec §3. The
// returned offset is absolute into p.buf: a tag's on-disk ib_ field is
// relative to the page's data region, which begins at p.dataStart.
func (p *Page) tagAt(i int) (off, size int, flags TagFlag) {
	slot := p.tagSlot(i)
	cb := binary.LittleEndian.Uint16(p.buf[slot:])
	ib := binary.LittleEndian.Uint16(p.buf[slot+2:])

	if p.pager.SmallPages() {
		flags = TagFlag(ib >> 13)
		off = p.dataStart + int(ib&0x1FFF)
		size = int(cb)
	} else {
		off = p.dataStart + int(ib&0x7FFF)
		size = int(cb & 0x7FFF)
		if off+2 <= len(p.buf) {
			first := binary.LittleEndian.Uint16(p.buf[off:])
			flags = TagFlag(first >> 13)
		}
	}
	return off, size, flags
}

// Tag returns the (offset, size, flags) triple for tag i.
func (p *Page) Tag(i int) (off, size int, flags TagFlag, err error) {
	if i < 0 || i >= p.tagCount {
		return 0, 0, 0, fmt.Errorf("pager: page %d tag %d: %w", p.Number, i, ErrPageOutOfRange)
	}
	off, size, flags = p.tagAt(i)
	return off, size, flags, nil
}

// Node returns the zero-indexed node (tag i+1), constructing and
// memoizing it on first access.
func (p *Page) Node(i int) (*Node, error) {
	if i < 0 || i >= p.NodeCount() {
		return nil, fmt.Errorf("pager: page %d node %d: %w", p.Number, i, ErrPageOutOfRange)
	}
	if p.nodes[i] != nil {
		return p.nodes[i], nil
	}
	off, size, flags, err := p.Tag(i + 1)
	if err != nil {
		return nil, err
	}
	n, err := parseNode(p, off, size, flags)
	if err != nil {
		return nil, err
	}
	p.nodes[i] = n
	return n, nil
}

// Node is a B+Tree entry: tag i+1 on some page, interpreted as either a
// branch (points at a child page) or leaf (carries record/long-value
// bytes) entry.
type Node struct {
	Key  []byte
	Data []byte
}

// ChildPage interprets a branch node's data as a little-endian child
// logical page number.
func (n *Node) ChildPage() uint32 {
	if len(n.Data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(n.Data)
}

func parseNode(p *Page, off, size int, flags TagFlag) (*Node, error) {
	if off < 0 || off+size > len(p.buf) {
		return nil, fmt.Errorf("pager: page %d: node tag out of bounds: %w", p.Number, ErrInvalidDatabase)
	}
	buf := p.buf[off : off+size]

	var prefixLen int
	pos := 0
	if flags&TagCompressed != 0 {
		if len(buf) < 2 {
			return nil, fmt.Errorf("pager: page %d: truncated compressed node: %w", p.Number, ErrInvalidDatabase)
		}
		prefixLen = int(binary.LittleEndian.Uint16(buf) & nodeLengthMask)
		pos += 2
	}
	if len(buf) < pos+2 {
		return nil, fmt.Errorf("pager: page %d: truncated node suffix length: %w", p.Number, ErrInvalidDatabase)
	}
	suffixLen := int(binary.LittleEndian.Uint16(buf[pos:]) & nodeLengthMask)
	pos += 2

	if len(buf) < pos+suffixLen {
		return nil, fmt.Errorf("pager: page %d: truncated node suffix: %w", p.Number, ErrInvalidDatabase)
	}
	suffix := buf[pos : pos+suffixLen]
	pos += suffixLen

	key := make([]byte, 0, prefixLen+suffixLen)
	if prefixLen > 0 {
		if prefixLen <= len(p.keyPrefix) {
			key = append(key, p.keyPrefix[:prefixLen]...)
		} else {
			key = append(key, p.keyPrefix...)
			key = append(key, make([]byte, prefixLen-len(p.keyPrefix))...)
		}
	}
	key = append(key, suffix...)

	return &Node{Key: key, Data: buf[pos:]}, nil
}

// IterLeafNodes yields every leaf node reachable from this page in
// subtree order. Per spec §4.2 this mandates branch-recursive descent
// first; only when invoked on the actual root page does it additionally
// walk the sibling chain starting from the last visited leaf's NextPage,
// to recover pages a dirty branch index fails to list. yield returning
// false stops the walk early.
func (p *Page) IterLeafNodes(yield func(*Node) bool) error {
	visited := make(map[uint32]bool)
	ok, err := p.walkSubtree(yield, visited)
	if err != nil || !ok {
		return err
	}
	if !p.Flags.Has(FlagRoot) || p.IsLeaf() {
		return nil
	}
	return p.siblingFixup(yield, visited)
}

func (p *Page) walkSubtree(yield func(*Node) bool, visited map[uint32]bool) (bool, error) {
	if visited[p.Number] {
		return true, nil
	}
	visited[p.Number] = true

	if p.IsLeaf() {
		for i := 0; i < p.NodeCount(); i++ {
			n, err := p.Node(i)
			if err != nil {
				return false, err
			}
			if !yield(n) {
				return false, nil
			}
		}
		return true, nil
	}

	for i := 0; i < p.NodeCount(); i++ {
		n, err := p.Node(i)
		if err != nil {
			return false, err
		}
		child, err := p.pager.Page(n.ChildPage())
		if err != nil {
			return false, err
		}
		cont, err := child.walkSubtree(yield, visited)
		if err != nil || !cont {
			return cont, err
		}
	}
	return true, nil
}

func (p *Page) siblingFixup(yield func(*Node) bool, visited map[uint32]bool) error {
	// Find the last leaf visited by following the branch index's
	// rightmost path, then continue across NextPage links for any
	// leaves the branch walk never reached.
	last := p
	for !last.IsLeaf() {
		if last.NodeCount() == 0 {
			return nil
		}
		n, err := last.Node(last.NodeCount() - 1)
		if err != nil {
			return err
		}
		child, err := p.pager.Page(n.ChildPage())
		if err != nil {
			return err
		}
		last = child
	}

	num := last.NextPage
	for num != 0 && !visited[num] {
		next, err := p.pager.Page(num)
		if err != nil {
			return err
		}
		visited[num] = true
		for i := 0; i < next.NodeCount(); i++ {
			n, err := next.Node(i)
			if err != nil {
				return err
			}
			if !yield(n) {
				return nil
			}
		}
		num = next.NextPage
	}
	return nil
}
