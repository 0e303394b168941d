package writer_test

import (
	"testing"
	"testing/fstest"

	"github.com/dwarfs-go/dwarfs"
	"github.com/dwarfs-go/dwarfs/reader/metadata"
	"github.com/dwarfs-go/dwarfs/writer"
	"github.com/dwarfs-go/dwarfs/writer/internal/blockmanager"
	"github.com/dwarfs-go/dwarfs/writer/internal/segmenter"
)

// freezeTree runs the full scan -> order -> segment -> freeze pipeline over
// tree, returning the Frozen result plus the Scanner for path->Entry lookups.
func freezeTree(t *testing.T, tree fstest.MapFS) (*writer.Frozen, *writer.Scanner) {
	t.Helper()

	s := writer.NewScanner()
	if err := s.Scan(tree, "."); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	reader := func(e *writer.Entry) ([]byte, error) {
		f, err := e.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf := make([]byte, e.Size)
		_, err = f.Read(buf)
		if err != nil && len(buf) > 0 {
			return nil, err
		}
		return buf, nil
	}

	ordered, err := writer.OrderEntries(s.Entries(), writer.DefaultOrderingConfig(), reader)
	if err != nil {
		t.Fatalf("OrderEntries: %v", err)
	}

	mgr := blockmanager.New()
	chunksByEntry := make(map[*writer.Entry][]segmenter.Chunk)
	cfg := segmenter.DefaultConfig()
	cfg.BlockSizeBits = 20

	seg := segmenter.New(cfg, func(data []byte, logicalBlockNum int) {
		// the segmenter and the manager both count logical blocks from
		// zero, one call per finished block, so the two counters stay in
		// lockstep as long as every NextLogicalBlock call happens here.
		written := mgr.NextLogicalBlock()
		mgr.SetWrittenBlock(written, written, "default")
	})

	for _, e := range ordered {
		if e.Type != dwarfs.InodeRegular || e.DedupOf != nil {
			continue
		}
		f, err := e.Open()
		if err != nil {
			t.Fatalf("Open %s: %v", e.Path, err)
		}
		chunks, err := seg.AddChunkable(&fileReaderWithSize{f, e.Size})
		f.Close()
		if err != nil {
			t.Fatalf("AddChunkable %s: %v", e.Path, err)
		}
		chunksByEntry[e] = chunks
	}
	seg.Finish()

	for _, chunks := range chunksByEntry {
		bmChunks := make([]blockmanager.Chunk, len(chunks))
		for i, c := range chunks {
			bmChunks[i] = blockmanager.Chunk{Block: c.Block, Hole: c.Hole}
		}
		mgr.MapLogicalBlocks(bmChunks)
		for i := range chunks {
			chunks[i].Block = bmChunks[i].Block
		}
	}

	frozen, err := writer.Freeze(s.Root(), ordered, chunksByEntry)
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	return frozen, s
}

type fileReaderWithSize struct {
	f    interface{ Read([]byte) (int, error) }
	size int64
}

func (r *fileReaderWithSize) Read(p []byte) (int, error) { return r.f.Read(p) }
func (r *fileReaderWithSize) Size() int64                { return r.size }

func TestFreezeAssignsDenseInodeNumbers(t *testing.T) {
	frozen, s := freezeTree(t, fstest.MapFS{
		"a.txt":     {Data: []byte("hello world")},
		"b.txt":     {Data: []byte("hello world")},
		"dir/c.txt": {Data: []byte("different content")},
	})

	seen := make(map[uint32]bool)
	for _, e := range s.Entries() {
		if seen[e.Ino] && e.Path != "" {
			t.Errorf("inode %d assigned twice", e.Ino)
		}
		seen[e.Ino] = true
	}
	if int(frozen.Metadata.Schema().NumInodes) != len(s.Entries()) {
		t.Errorf("NumInodes = %d, want %d", frozen.Metadata.Schema().NumInodes, len(s.Entries()))
	}
	if s.Root().Ino != 0 {
		t.Errorf("root Ino = %d, want 0", s.Root().Ino)
	}
}

func TestFreezeResolvesPaths(t *testing.T) {
	frozen, _ := freezeTree(t, fstest.MapFS{
		"a.txt":     {Data: []byte("hello world")},
		"dir/c.txt": {Data: []byte("different content")},
	})

	for _, path := range []string{"a.txt", "dir", "dir/c.txt"} {
		if _, err := frozen.Metadata.Resolve(path); err != nil {
			t.Errorf("Resolve(%q): %v", path, err)
		}
	}
}

func TestFreezeDedupSharesChunks(t *testing.T) {
	frozen, s := freezeTree(t, fstest.MapFS{
		"a.txt": {Data: []byte("hello world")},
		"b.txt": {Data: []byte("hello world")},
	})

	var a, b *writer.Entry
	for _, e := range s.Entries() {
		switch e.Path {
		case "a.txt":
			a = e
		case "b.txt":
			b = e
		}
	}

	aChunks, err := frozen.Metadata.Chunks(int(a.Ino))
	if err != nil {
		t.Fatalf("Chunks(a): %v", err)
	}
	bChunks, err := frozen.Metadata.Chunks(int(b.Ino))
	if err != nil {
		t.Fatalf("Chunks(b): %v", err)
	}
	if len(aChunks) != len(bChunks) {
		t.Fatalf("a has %d chunks, b has %d", len(aChunks), len(bChunks))
	}
	for i := range aChunks {
		if aChunks[i] != bChunks[i] {
			t.Errorf("chunk %d differs: %+v != %+v", i, aChunks[i], bChunks[i])
		}
	}
	if int(frozen.Metadata.Schema().NumSharedFiles) != 1 {
		t.Errorf("NumSharedFiles = %d, want 1", frozen.Metadata.Schema().NumSharedFiles)
	}
}

func TestFreezeDirEntriesSortedByName(t *testing.T) {
	frozen, s := freezeTree(t, fstest.MapFS{
		"z.txt": {Data: []byte("z")},
		"a.txt": {Data: []byte("a")},
		"m.txt": {Data: []byte("m")},
	})

	entries, err := frozen.Metadata.ReadDir(int(s.Root().Ino))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	want := []string{"a.txt", "m.txt", "z.txt"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Name() != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.Name(), want[i])
		}
	}
}

func TestFreezeSchemaBytesRoundTrip(t *testing.T) {
	frozen, s := freezeTree(t, fstest.MapFS{
		"a.txt":     {Data: []byte("hello world")},
		"dir/c.txt": {Data: []byte("different content")},
	})

	decoded, err := metadata.Decode(frozen.SchemaBytes, frozen.DataBytes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	for _, e := range s.Entries() {
		if e.Path == "" {
			continue
		}
		v, err := decoded.Resolve(e.Path)
		if err != nil {
			t.Fatalf("Resolve(%q) on decoded bytes: %v", e.Path, err)
		}
		if uint32(v.Ino) != e.Ino {
			t.Errorf("Resolve(%q) = inode %d, want %d", e.Path, v.Ino, e.Ino)
		}
	}
}
