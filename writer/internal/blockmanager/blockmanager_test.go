package blockmanager_test

import (
	"testing"

	"github.com/dwarfs-go/dwarfs/writer/internal/blockmanager"
)

func TestNextLogicalBlockIncrements(t *testing.T) {
	m := blockmanager.New()
	if got := m.NextLogicalBlock(); got != 0 {
		t.Errorf("first logical block = %d, want 0", got)
	}
	if got := m.NextLogicalBlock(); got != 1 {
		t.Errorf("second logical block = %d, want 1", got)
	}
	if m.NumBlocks() != 2 {
		t.Errorf("NumBlocks() = %d, want 2", m.NumBlocks())
	}
}

func TestMapLogicalBlocksRewritesInPlace(t *testing.T) {
	m := blockmanager.New()
	l0 := m.NextLogicalBlock()
	l1 := m.NextLogicalBlock()

	// blocks are written out of logical order, e.g. because of
	// category-driven reordering.
	m.SetWrittenBlock(l1, 0, "default")
	m.SetWrittenBlock(l0, 1, "default")

	chunks := []blockmanager.Chunk{
		{Block: l0},
		{Block: l1},
		{Hole: true, Block: -1},
	}
	m.MapLogicalBlocks(chunks)

	if chunks[0].Block != 1 {
		t.Errorf("chunks[0].Block = %d, want 1", chunks[0].Block)
	}
	if chunks[1].Block != 0 {
		t.Errorf("chunks[1].Block = %d, want 0", chunks[1].Block)
	}
	if chunks[2].Block != -1 {
		t.Errorf("hole chunk's Block should be left untouched, got %d", chunks[2].Block)
	}
}

func TestWrittenBlockCategoriesInPhysicalOrder(t *testing.T) {
	m := blockmanager.New()
	l0 := m.NextLogicalBlock()
	l1 := m.NextLogicalBlock()
	m.SetWrittenBlock(l1, 0, "audio")
	m.SetWrittenBlock(l0, 1, "default")

	cats := m.WrittenBlockCategories()
	if len(cats) != 2 {
		t.Fatalf("got %d categories, want 2", len(cats))
	}
	if cats[0] != "audio" || cats[1] != "default" {
		t.Errorf("categories = %v, want [audio default]", cats)
	}
}

func TestMapLogicalBlocksPanicsOnUnmappedBlock(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic when a chunk references an unmapped logical block")
		}
	}()
	m := blockmanager.New()
	m.NextLogicalBlock()
	m.MapLogicalBlocks([]blockmanager.Chunk{{Block: 0}})
}
