// Package blockmanager tracks the renumbering of blocks from logical order
// (the order the segmenter decides to close them in) to physical order
// (the order they are actually written to the image, after any
// category-driven reordering), under a short critical section (spec
// section 5: "the block manager owns the logical→physical renumbering
// table").
//
// Grounded on original_source/include/dwarfs/writer/internal/block_manager.h
// and its .cpp: NextLogicalBlock/SetWrittenBlock/MapLogicalBlocks/
// WrittenBlockCategories/NumBlocks mirror get_logical_block/
// set_written_block/map_logical_blocks/get_written_block_categories/
// num_blocks one-for-one.
package blockmanager

import "sync"

// Chunk is the minimal view blockmanager needs of a chunk: a logical block
// reference it may need to rewrite to a physical one.
type Chunk struct {
	Block int
	Hole  bool
}

type mapping struct {
	written  int
	category string
}

// Manager hands out logical block numbers and later records, for each one,
// which physical (written) block number and category it ended up with.
type Manager struct {
	mu        sync.Mutex
	numBlocks int
	blockMap  []*mapping
}

// New creates an empty Manager.
func New() *Manager { return &Manager{} }

// NextLogicalBlock allocates and returns the next logical block number.
func (m *Manager) NextLogicalBlock() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.numBlocks
	m.numBlocks++
	return n
}

// SetWrittenBlock records that logicalBlock was ultimately written as
// physical block writtenBlock, carrying the given category.
func (m *Manager) SetWrittenBlock(logicalBlock, writtenBlock int, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logicalBlock >= m.numBlocks {
		panic("blockmanager: logical block was never allocated")
	}
	if len(m.blockMap) < m.numBlocks {
		grown := make([]*mapping, m.numBlocks)
		copy(grown, m.blockMap)
		m.blockMap = grown
	}
	m.blockMap[logicalBlock] = &mapping{written: writtenBlock, category: category}
}

// MapLogicalBlocks rewrites each non-hole chunk's Block field in place
// from its logical number to its physical (written) number.
func (m *Manager) MapLogicalBlocks(chunks []Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range chunks {
		if chunks[i].Hole {
			continue
		}
		mp := m.blockMap[chunks[i].Block]
		if mp == nil {
			panic("blockmanager: logical block has no recorded physical mapping")
		}
		chunks[i].Block = mp.written
	}
}

// WrittenBlockCategories returns the category of each physical block, in
// physical order.
func (m *Manager) WrittenBlockCategories() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, m.numBlocks)
	for _, mp := range m.blockMap {
		if mp == nil {
			continue
		}
		result[mp.written] = mp.category
	}
	return result
}

// NumBlocks returns the number of logical blocks allocated so far.
func (m *Manager) NumBlocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numBlocks
}
