package metadata

import (
	"fmt"

	"github.com/dwarfs-go/dwarfs/internal/packedint"
)

// Decode reconstructs a Metadata view from a serialized schema (the
// METADATA_V2_SCHEMA section payload) and the packed data region (the
// METADATA_V2 section payload). It is the mirror image of
// writer/metadatafreezer.go's byte layout: both walk the same fixed
// sequence of arrays, each array's byte length recomputed from its
// (count, bitWidth) pair in schema rather than stored explicitly.
func Decode(schemaBytes, data []byte) (*Metadata, error) {
	var s Schema
	if err := s.UnmarshalBinary(schemaBytes); err != nil {
		return nil, err
	}

	c := &cursor{data: data}

	uids := c.fixed(int(s.UIDValueWidth), int(s.NumUIDs))
	gids := c.fixed(int(s.GIDValueWidth), int(s.NumGIDs))
	modes := c.fixed(int(s.ModeValueWidth), int(s.NumModes))

	names := c.stringTable(int(s.NumNames), int(s.NameOffsetWidth), s.Features.Has(FeatureFSSTNames))
	symlinks := c.stringTable(int(s.NumSymlinks), int(s.SymlinkOffsetWidth), s.Features.Has(FeatureFSSTSymlinks))

	inodeModeIdx := c.fixed(int(s.InodeModeIdxWidth), int(s.NumInodes))
	inodeUIDIdx := c.fixed(int(s.InodeUIDIdxWidth), int(s.NumInodes))
	inodeGIDIdx := c.fixed(int(s.InodeGIDIdxWidth), int(s.NumInodes))
	inodeMTime := c.fixed(int(s.InodeMTimeWidth), int(s.NumInodes))
	inodeTail := c.fixed(int(s.InodeTailWidth), int(s.NumInodes))

	dirFirstEntry := c.fixed(int(s.DirFirstEntryWidth), int(s.NumDirs)+1)
	dirEntryName := c.fixed(int(s.DirEntryNameWidth), int(s.NumDirEntries))
	dirEntryInode := c.fixed(int(s.DirEntryInodeWidth), int(s.NumDirEntries))

	chunkTable := c.fixed(int(s.ChunkTableWidth), int(s.NumFiles)+1)
	chunkBlock := c.fixed(int(s.ChunkBlockWidth), int(s.NumChunks))
	chunkOffset := c.fixed(int(s.ChunkOffsetWidth), int(s.NumChunks))
	chunkSize := c.fixed(int(s.ChunkSizeWidth), int(s.NumChunks))
	chunkIsHole := c.fixed(1, int(s.NumChunks))
	chunkIsLargeHole := c.fixed(1, int(s.NumChunks))

	sharedFiles := c.fixed(int(s.SharedFilesWidth), int(s.NumSharedFiles))
	largeHoleSizes := c.fixed(int(s.LargeHoleSizeWidth), int(s.NumLargeHoles))

	if c.err != nil {
		return nil, c.err
	}

	return New(s, uids, gids, modes, names, symlinks,
		inodeModeIdx, inodeUIDIdx, inodeGIDIdx, inodeMTime, inodeTail,
		dirFirstEntry, dirEntryName, dirEntryInode,
		chunkTable, chunkBlock, chunkOffset, chunkSize, chunkIsHole, chunkIsLargeHole,
		sharedFiles, largeHoleSizes), nil
}

// cursor walks the data region sequentially; the whole METADATA_V2 payload
// is already resident (mmap'd or heap-decompressed) by the time decoding
// runs, so this is a plain slice-advancing reader rather than an io.Reader.
type cursor struct {
	data []byte
	off  int
	err  error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.off+n > len(c.data) {
		c.err = fmt.Errorf("metadata: data region truncated (need %d bytes at offset %d, have %d)", n, c.off, len(c.data))
		return nil
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) fixed(bitWidth, count int) *packedint.Array {
	if c.err != nil {
		return packedint.NewArray(0, 0)
	}
	wordCount := 0
	if bitWidth > 0 {
		wordCount = (bitWidth*count + 63) / 64
	}
	return packedint.FromBytes(bitWidth, count, c.take(wordCount*8))
}

// stringTable decodes an offsets array (count+1 entries) followed by
// exactly offsets.Get(count) bytes of string data, and an FSST dictionary
// ahead of the data if hasDict is set.
func (c *cursor) stringTable(count, offsetWidth int, hasDict bool) *StringTable {
	if c.err != nil {
		return nil
	}
	offsets := c.fixed(offsetWidth, count+1)
	var dict *FSSTDict
	if hasDict {
		dict = c.fsstDict()
	}
	dataLen := 0
	if count > 0 {
		dataLen = int(offsets.Get(count))
	}
	data := c.take(dataLen)
	if c.err != nil {
		return nil
	}
	if dict != nil {
		return NewStringTableWithDict(data, offsets, dict)
	}
	return NewStringTable(data, offsets)
}

// fsstDict decodes a dictionary previously written by writeFSSTDict: one
// length-prefix byte (number of symbols, 0..255) followed by each symbol
// as a one-byte length plus its bytes.
func (c *cursor) fsstDict() *FSSTDict {
	n := c.take(1)
	if c.err != nil {
		return nil
	}
	symbols := make([][]byte, 0, int(n[0]))
	for i := 0; i < int(n[0]); i++ {
		l := c.take(1)
		if c.err != nil {
			return nil
		}
		symbols = append(symbols, c.take(int(l[0])))
	}
	if c.err != nil {
		return nil
	}
	return NewFSSTDict(symbols)
}
