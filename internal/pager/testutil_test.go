package pager

import (
	"container/list"
	"encoding/binary"
	"io"
	"log"
)

// fakePager builds a Pager over an in-memory set of already-encoded
// logical pages, bypassing Open/ParseHeader. Every page is pre-seeded
// into the normal bounded cache, so Pager.Page(num) resolves them
// without ever calling ReadPhysical — tests that need multi-page tree
// traversal build a tree out of these to exercise Cursor/IterLeafNodes
// without constructing a full on-disk byte source.
func fakePager(smallPages bool, pages map[uint32][]byte) *Pager {
	p := &Pager{
		header:   Header{SmallPages: smallPages, PageSize: 4096},
		pageSize: 4096,
		lru:      list.New(),
		elements: make(map[uint32]*list.Element, len(pages)),
		cap:      len(pages) + 1,
		logger:   log.New(io.Discard, "", 0),
	}
	if !smallPages {
		p.pageSize = 32768
		p.header.PageSize = 32768
	}
	for num, buf := range pages {
		pg, err := ParsePage(p, num, buf)
		if err != nil {
			panic(err)
		}
		p.insertLocked(num, pg)
	}
	return p
}

// encodeNode builds the byte payload of one tag entry (no prefix
// compression): a 2-byte little-endian suffix length, the suffix
// (effective key) bytes, then the node's data.
func encodeNode(key, data []byte) []byte {
	out := make([]byte, 0, 2+len(key)+len(data))
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(key)))
	out = append(out, lenBuf...)
	out = append(out, key...)
	out = append(out, data...)
	return out
}

// encodeCompressedNode builds a tag entry using the prefix-copy encoding:
// a 2-byte prefix length, a 2-byte suffix length, the suffix, then data.
func encodeCompressedNode(prefixLen int, suffix, data []byte) []byte {
	out := make([]byte, 0, 4+len(suffix)+len(data))
	buf2 := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf2, uint16(prefixLen))
	out = append(out, buf2...)
	binary.LittleEndian.PutUint16(buf2, uint16(len(suffix)))
	out = append(out, buf2...)
	out = append(out, suffix...)
	out = append(out, data...)
	return out
}

// buildPage lays out a small-page-mode page of the given size: tag 0
// carries keyPrefix (the page's shared prefix, ignored if flags has
// FlagRoot), followed by one tag per entries[i], with tag flags taken
// from tagFlags[i] (or none, if tagFlags is nil).
func buildPage(pageSize int, flags PageFlag, prev, next uint32, keyPrefix []byte, entries [][]byte, tagFlags []TagFlag) []byte {
	buf := make([]byte, pageSize)
	binary.LittleEndian.PutUint32(buf[hdrOffPrevPage:], prev)
	binary.LittleEndian.PutUint32(buf[hdrOffNextPage:], next)
	binary.LittleEndian.PutUint16(buf[hdrOffTagCount:], uint16(len(entries)+1))
	binary.LittleEndian.PutUint32(buf[hdrOffFlags:], uint32(flags))

	all := append([][]byte{keyPrefix}, entries...)
	allFlags := make([]TagFlag, len(all))
	if tagFlags != nil {
		copy(allFlags[1:], tagFlags)
	}

	// Tag ib_ offsets are relative to the page's data region, which for a
	// small page begins right after the common header (no extended
	// header in small-page mode).
	dataStart := commonHeaderSize
	offset := dataStart
	offsets := make([]int, len(all))
	for i, e := range all {
		copy(buf[offset:], e)
		offsets[i] = offset - dataStart
		offset += len(e)
	}

	for i, e := range all {
		slot := len(buf) - 4*(i+1)
		binary.LittleEndian.PutUint16(buf[slot:], uint16(len(e)))
		ib := uint16(offsets[i]) | uint16(allFlags[i])<<13
		binary.LittleEndian.PutUint16(buf[slot+2:], ib)
	}
	return buf
}
