package section

import (
	"encoding/binary"
	"fmt"
)

// Section is one self-describing, checksummed, optionally-compressed span in
// the image (spec section 4.1 / GLOSSARY).
type Section struct {
	Number      uint32
	Kind        Kind
	Compression CompressionType
	Length      uint64 // compressed length on disk
	XXH3_64     uint64
	SHA512_256  [32]byte
	// Offset is the byte offset of this section's header within the image
	// (not relative to anything else); payload starts at Offset+headerSize.
	Offset int64
	// PayloadOffset is the byte offset of the payload itself.
	PayloadOffset int64
}

// offsetMask carries the 48-bit offset the way spec section 4.1 describes
// SECTION_INDEX entries: (type<<48) | (offset & ((1<<48)-1)).
const offsetMask = (uint64(1) << 48) - 1

// IndexEntry is one 64-bit word of the tail SECTION_INDEX section.
type IndexEntry uint64

// EncodeIndexEntry packs a kind and an image-relative offset into one word.
func EncodeIndexEntry(kind Kind, offset uint64) IndexEntry {
	return IndexEntry((uint64(kind) << 48) | (offset & offsetMask))
}

func (e IndexEntry) Kind() Kind     { return Kind(uint64(e) >> 48) }
func (e IndexEntry) Offset() uint64 { return uint64(e) & offsetMask }

// EncodeIndex serializes a full SECTION_INDEX payload: one little-endian
// uint64 word per entry, in the order given. Per spec section 4.1,
// SECTION_INDEX is always the last section and lists every other section.
func EncodeIndex(entries []IndexEntry) []byte {
	buf := make([]byte, 8*len(entries))
	for i, e := range entries {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(e))
	}
	return buf
}

// DecodeIndex parses a SECTION_INDEX payload into its entries.
func DecodeIndex(data []byte) ([]IndexEntry, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("section: malformed section index: length %d not a multiple of 8", len(data))
	}
	entries := make([]IndexEntry, len(data)/8)
	for i := range entries {
		entries[i] = IndexEntry(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return entries, nil
}

// ChunkOffsetIsLargeHole is the reserved chunk-offset sentinel spec section
// 6 names: it marks a chunk whose size is actually an index into the
// large-hole-size table rather than a literal offset.
const ChunkOffsetIsLargeHole = ^uint64(0)
