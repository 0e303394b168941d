package segmenter_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/dwarfs-go/dwarfs/writer/internal/segmenter"
)

type byteChunkable struct {
	*bytes.Reader
	size int64
}

func newChunkable(data []byte) *byteChunkable {
	return &byteChunkable{Reader: bytes.NewReader(data), size: int64(len(data))}
}

func (c *byteChunkable) Size() int64 { return c.size }

func smallConfig() segmenter.Config {
	cfg := segmenter.DefaultConfig()
	cfg.BlockHashWindowSize = 8
	cfg.WindowIncrementShift = 0 // consider every full window an anchor
	cfg.MaxActiveBlocks = 4
	cfg.BloomFilterSize = 10
	cfg.BlockSizeBits = 12 // 4 KiB blocks, small enough to exercise splitting
	return cfg
}

// reassemble walks chunks, pulling bytes from either the emitted blocks or
// zero-filled holes, and checks the result matches want.
func reassemble(t *testing.T, chunks []segmenter.Chunk, blocks map[int][]byte, want []byte) {
	t.Helper()
	var out []byte
	for _, c := range chunks {
		if c.Hole {
			out = append(out, make([]byte, c.Size)...)
			continue
		}
		b, ok := blocks[c.Block]
		if !ok {
			t.Fatalf("chunk references unknown block %d", c.Block)
		}
		if c.Offset+c.Size > uint64(len(b)) {
			t.Fatalf("chunk [%d:%d] out of range for block %d (len %d)", c.Offset, c.Offset+c.Size, c.Block, len(b))
		}
		out = append(out, b[c.Offset:c.Offset+c.Size]...)
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("reassembled %d bytes, want %d bytes; mismatch", len(out), len(want))
	}
}

func TestFullCoverageSingleFragment(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	data := make([]byte, 10000)
	r.Read(data)

	blocks := map[int][]byte{}
	s := segmenter.New(smallConfig(), func(d []byte, n int) {
		cp := make([]byte, len(d))
		copy(cp, d)
		blocks[n] = cp
	})

	chunks, err := s.AddChunkable(newChunkable(data))
	if err != nil {
		t.Fatalf("AddChunkable: %s", err)
	}
	s.Finish()

	reassemble(t, chunks, blocks, data)
}

func TestDuplicateContentIsElided(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	data := make([]byte, 6000)
	r.Read(data)

	blocks := map[int][]byte{}
	s := segmenter.New(smallConfig(), func(d []byte, n int) {
		cp := make([]byte, len(d))
		copy(cp, d)
		blocks[n] = cp
	})

	chunks1, err := s.AddChunkable(newChunkable(data))
	if err != nil {
		t.Fatalf("AddChunkable (first): %s", err)
	}
	s.Finish()
	reassemble(t, chunks1, blocks, data)
	firstRunBlocks := len(blocks)

	chunks2, err := s.AddChunkable(newChunkable(data))
	if err != nil {
		t.Fatalf("AddChunkable (second): %s", err)
	}
	s.Finish()
	reassemble(t, chunks2, blocks, data)

	// The second, identical file should reference the first file's blocks
	// rather than emitting new bytes for all of its content. Literal bytes
	// are those the second run wrote into blocks of its own.
	literalBytes := 0
	for _, c := range chunks2 {
		if !c.Hole && int(c.Block) >= firstRunBlocks {
			literalBytes += int(c.Size)
		}
	}
	if literalBytes >= len(data) {
		t.Errorf("expected substantial dedup on the second identical fragment, got %d literal bytes out of %d", literalBytes, len(data))
	}
}

func TestSparseHoleChunks(t *testing.T) {
	cfg := smallConfig()
	cfg.EnableSparseFiles = true
	cfg.SparseHoleThreshold = 512

	data := make([]byte, 4000)
	r := rand.New(rand.NewSource(3))
	r.Read(data[:1000])
	// middle 2000 bytes are a zero run long enough to qualify as a hole
	r.Read(data[3000:])

	blocks := map[int][]byte{}
	s := segmenter.New(cfg, func(d []byte, n int) {
		cp := make([]byte, len(d))
		copy(cp, d)
		blocks[n] = cp
	})

	chunks, err := s.AddChunkable(newChunkable(data))
	if err != nil {
		t.Fatalf("AddChunkable: %s", err)
	}
	s.Finish()

	foundHole := false
	for _, c := range chunks {
		if c.Hole {
			foundHole = true
			if c.Block != segmenter.HoleBlock {
				t.Errorf("hole chunk has Block=%d, want %d", c.Block, segmenter.HoleBlock)
			}
		}
	}
	if !foundHole {
		t.Errorf("expected at least one hole chunk for a 2000-byte zero run")
	}

	reassemble(t, chunks, blocks, data)
}

func TestFinishFlushesPartialBlock(t *testing.T) {
	cfg := smallConfig()
	var readyCalls int
	s := segmenter.New(cfg, func(d []byte, n int) { readyCalls++ })

	data := make([]byte, 100) // much smaller than the 4 KiB block size
	_, err := s.AddChunkable(newChunkable(data))
	if err != nil {
		t.Fatalf("AddChunkable: %s", err)
	}
	if readyCalls != 0 {
		t.Fatalf("expected no block to be ready before Finish, got %d", readyCalls)
	}
	s.Finish()
	if readyCalls != 1 {
		t.Errorf("expected Finish to flush the partial in-flight block, got %d onReady calls", readyCalls)
	}
}

func TestEstimateMemoryUsagePositive(t *testing.T) {
	if segmenter.EstimateMemoryUsage(segmenter.DefaultConfig()) <= 0 {
		t.Errorf("expected a positive memory usage estimate")
	}
}
