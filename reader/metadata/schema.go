package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Features records optional invariants the image depends on, per spec
// section 4.5's "features set".
type Features uint32

const (
	FeatureFSSTNames Features = 1 << iota
	FeatureFSSTSymlinks
)

func (f Features) Has(bit Features) bool { return f&bit != 0 }

// ChunkOffsetIsLargeHole is the sentinel spec section 4.5 names: a chunk
// whose Offset field equals this value is a sparse-file hole whose size
// could not fit inline and instead indexes the large-hole-size table
// (chunk.Size holds that index instead of a literal size).
const ChunkOffsetIsLargeHole = ^uint64(0)

// Schema describes the shape and bit widths of every array the frozen data
// region holds, so the region itself can be read back with zero parsing
// beyond indexing into packed arrays (spec section 4.5: "a schema describes
// the layout, the data region is the frozen bit-packed payload").
//
// This is deliberately a small, fixed-shape struct written with
// encoding/binary the way the teacher's Superblock is (legacy/super.go) --
// the schema itself is tiny and metadata-about-metadata, not a candidate
// for the bit-packed variable-width encoding the data region uses.
type Schema struct {
	Features Features

	NumInodes    uint32
	NumDirs      uint32 // directory count; DirFirstEntry has NumDirs+1 entries
	NumDirEntries uint32
	NumFiles     uint32 // regular, non-deduped file count; ChunkTable has NumFiles+1 entries
	NumChunks    uint32
	NumUIDs      uint32
	NumGIDs      uint32
	NumModes     uint32
	NumNames     uint32
	NumSymlinks  uint32
	NumSharedFiles uint32
	NumLargeHoles  uint32

	UIDValueWidth  uint8
	GIDValueWidth  uint8
	ModeValueWidth uint8

	InodeModeIdxWidth uint8
	InodeUIDIdxWidth  uint8
	InodeGIDIdxWidth  uint8
	InodeMTimeWidth   uint8
	InodeTailWidth    uint8 // union: dir-first-entry idx / symlink idx / chunk-table idx / device id

	ChunkBlockWidth  uint8
	ChunkOffsetWidth uint8
	ChunkSizeWidth   uint8

	ChunkTableWidth     uint8
	DirFirstEntryWidth  uint8
	DirEntryNameWidth   uint8
	DirEntryInodeWidth  uint8
	NameOffsetWidth     uint8
	SymlinkOffsetWidth  uint8
	SharedFilesWidth    uint8
	LargeHoleSizeWidth  uint8

	MTimeBase int64 // epoch second every InodeMTime value is a delta from
}

// MarshalBinary encodes the schema with a fixed field order, mirroring the
// teacher's reflect-over-struct-field Superblock encode (legacy/super.go)
// but written directly since Schema has no variable-endianness concern.
func (s *Schema) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	fields := []any{
		uint32(s.Features),
		s.NumInodes, s.NumDirs, s.NumDirEntries, s.NumFiles, s.NumChunks,
		s.NumUIDs, s.NumGIDs, s.NumModes, s.NumNames, s.NumSymlinks,
		s.NumSharedFiles, s.NumLargeHoles,
		s.UIDValueWidth, s.GIDValueWidth, s.ModeValueWidth,
		s.InodeModeIdxWidth, s.InodeUIDIdxWidth, s.InodeGIDIdxWidth,
		s.InodeMTimeWidth, s.InodeTailWidth,
		s.ChunkBlockWidth, s.ChunkOffsetWidth, s.ChunkSizeWidth,
		s.ChunkTableWidth, s.DirFirstEntryWidth, s.DirEntryNameWidth,
		s.DirEntryInodeWidth, s.NameOffsetWidth, s.SymlinkOffsetWidth,
		s.SharedFilesWidth, s.LargeHoleSizeWidth,
		s.MTimeBase,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a Schema previously produced by MarshalBinary.
func (s *Schema) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var features uint32
	fields := []any{
		&features,
		&s.NumInodes, &s.NumDirs, &s.NumDirEntries, &s.NumFiles, &s.NumChunks,
		&s.NumUIDs, &s.NumGIDs, &s.NumModes, &s.NumNames, &s.NumSymlinks,
		&s.NumSharedFiles, &s.NumLargeHoles,
		&s.UIDValueWidth, &s.GIDValueWidth, &s.ModeValueWidth,
		&s.InodeModeIdxWidth, &s.InodeUIDIdxWidth, &s.InodeGIDIdxWidth,
		&s.InodeMTimeWidth, &s.InodeTailWidth,
		&s.ChunkBlockWidth, &s.ChunkOffsetWidth, &s.ChunkSizeWidth,
		&s.ChunkTableWidth, &s.DirFirstEntryWidth, &s.DirEntryNameWidth,
		&s.DirEntryInodeWidth, &s.NameOffsetWidth, &s.SymlinkOffsetWidth,
		&s.SharedFilesWidth, &s.LargeHoleSizeWidth,
		&s.MTimeBase,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("metadata: decode schema: %w", err)
		}
	}
	s.Features = Features(features)
	return nil
}
