package metadata_test

import (
	"io/fs"
	"testing"

	"github.com/dwarfs-go/dwarfs"
	"github.com/dwarfs-go/dwarfs/internal/packedint"
	"github.com/dwarfs-go/dwarfs/reader/metadata"
)

// buildSampleBytes constructs the same tiny tree buildSample (view_test.go)
// builds in-process, but serialized: a schema blob plus a data region laid
// out in exactly the sequence Decode expects. This is the byte-layout
// contract writer/metadatafreezer.go is grounded on.
func buildSampleBytes(t *testing.T) (schemaBytes, data []byte) {
	t.Helper()

	uids := packedint.BuildArray([]uint64{0})
	gids := packedint.BuildArray([]uint64{0})
	modes := packedint.BuildArray([]uint64{
		uint64(dwarfs.ModeToUnix(fs.ModeDir | 0755)),
		uint64(dwarfs.ModeToUnix(0644)),
		uint64(dwarfs.ModeToUnix(fs.ModeSymlink | 0777)),
	})

	names := metadata.BuildStringTable([]string{"a.txt", "b.txt", "link"})
	symlinks := metadata.BuildStringTable([]string{"a.txt"})

	inodeModeIdx := packedint.BuildArray([]uint64{0, 1, 1, 2})
	inodeUIDIdx := packedint.BuildArray([]uint64{0, 0, 0, 0})
	inodeGIDIdx := packedint.BuildArray([]uint64{0, 0, 0, 0})
	inodeMTime := packedint.BuildArray([]uint64{0, 0, 0, 0})
	inodeTail := packedint.BuildArray([]uint64{0, 0, 1, 0})

	dirFirstEntry := packedint.BuildArray([]uint64{0, 3})
	dirEntryName := packedint.BuildArray([]uint64{0, 1, 2})
	dirEntryInode := packedint.BuildArray([]uint64{1, 2, 3})

	chunkTable := packedint.BuildArray([]uint64{0, 1})
	chunkBlock := packedint.BuildArray([]uint64{0})
	chunkOffset := packedint.BuildArray([]uint64{0})
	chunkSize := packedint.BuildArray([]uint64{11})
	// decode.go reads these two as fixed 1-bit flag arrays regardless of
	// their natural width, so they must be built at width 1 even though
	// every value here is zero (BuildArray would pick width 0).
	chunkIsHole := packedint.NewArray(1, 1)
	chunkIsLargeHole := packedint.NewArray(1, 1)

	sharedFiles := packedint.BuildArray([]uint64{0})
	largeHoleSizes := packedint.BuildArray(nil)

	schema := metadata.Schema{
		NumInodes:      4,
		NumDirs:        1,
		NumDirEntries:  3,
		NumFiles:       1,
		NumChunks:      1,
		NumUIDs:        1,
		NumGIDs:        1,
		NumModes:       3,
		NumNames:       3,
		NumSymlinks:    1,
		NumSharedFiles: 1,
		NumLargeHoles:  0,

		UIDValueWidth:  uint8(uids.BitWidth()),
		GIDValueWidth:  uint8(gids.BitWidth()),
		ModeValueWidth: uint8(modes.BitWidth()),

		InodeModeIdxWidth: uint8(inodeModeIdx.BitWidth()),
		InodeUIDIdxWidth:  uint8(inodeUIDIdx.BitWidth()),
		InodeGIDIdxWidth:  uint8(inodeGIDIdx.BitWidth()),
		InodeMTimeWidth:   uint8(inodeMTime.BitWidth()),
		InodeTailWidth:    uint8(inodeTail.BitWidth()),

		ChunkBlockWidth:  uint8(chunkBlock.BitWidth()),
		ChunkOffsetWidth: uint8(chunkOffset.BitWidth()),
		ChunkSizeWidth:   uint8(chunkSize.BitWidth()),

		ChunkTableWidth:    uint8(chunkTable.BitWidth()),
		DirFirstEntryWidth: uint8(dirFirstEntry.BitWidth()),
		DirEntryNameWidth:  uint8(dirEntryName.BitWidth()),
		DirEntryInodeWidth: uint8(dirEntryInode.BitWidth()),
		NameOffsetWidth:    uint8(names.OffsetWidth()),
		SymlinkOffsetWidth: uint8(symlinks.OffsetWidth()),
		SharedFilesWidth:   uint8(sharedFiles.BitWidth()),
		LargeHoleSizeWidth: uint8(largeHoleSizes.BitWidth()),
	}

	schemaBytes, err := (&schema).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var buf []byte
	for _, b := range [][]byte{
		uids.Bytes(), gids.Bytes(), modes.Bytes(),
		names.Encode(), symlinks.Encode(),
		inodeModeIdx.Bytes(), inodeUIDIdx.Bytes(), inodeGIDIdx.Bytes(),
		inodeMTime.Bytes(), inodeTail.Bytes(),
		dirFirstEntry.Bytes(), dirEntryName.Bytes(), dirEntryInode.Bytes(),
		chunkTable.Bytes(), chunkBlock.Bytes(), chunkOffset.Bytes(), chunkSize.Bytes(),
		chunkIsHole.Bytes(), chunkIsLargeHole.Bytes(),
		sharedFiles.Bytes(), largeHoleSizes.Bytes(),
	} {
		buf = append(buf, b...)
	}
	return schemaBytes, buf
}

func TestDecodeRoundTrip(t *testing.T) {
	schemaBytes, data := buildSampleBytes(t)
	m, err := metadata.Decode(schemaBytes, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	v, err := m.Resolve("a.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v.Ino != 1 {
		t.Errorf("Resolve(a.txt) = inode %d, want 1", v.Ino)
	}

	chunks, err := m.Chunks(1)
	if err != nil {
		t.Fatalf("Chunks: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Size != 11 {
		t.Errorf("Chunks(1) = %+v, want one chunk of size 11", chunks)
	}

	sharedChunks, err := m.Chunks(2)
	if err != nil {
		t.Fatalf("Chunks(2): %v", err)
	}
	if len(sharedChunks) != 1 || sharedChunks[0] != chunks[0] {
		t.Errorf("deduped file's chunks = %+v, want %+v", sharedChunks, chunks)
	}

	target, err := m.Readlink(3, dwarfs.ReadlinkRaw)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "a.txt" {
		t.Errorf("Readlink = %s, want a.txt", target)
	}

	entries, err := m.ReadDir(0)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ReadDir(root) = %d entries, want 3", len(entries))
	}
}

func TestDecodeTruncatedDataErrors(t *testing.T) {
	schemaBytes, data := buildSampleBytes(t)
	if _, err := metadata.Decode(schemaBytes, data[:len(data)-1]); err == nil {
		t.Errorf("expected an error decoding truncated data")
	}
}
