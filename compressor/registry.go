// Package compressor implements DwarFS's compressor/decompressor plugin
// registry (spec section 4.2): a process-wide, closed-at-build-time but
// additive set of codecs, reached through build tags the way the teacher
// gates optional codecs.
package compressor

import (
	"fmt"
	"io"
	"sync"

	"github.com/dwarfs-go/dwarfs/section"
)

// Constraints describes limits a compressor configuration imposes on its
// input, so callers can schedule work without probing the compressor
// directly (spec section 4.2's "compression_constraints").
type Constraints struct {
	Alignment    int
	MinInputSize int
	MaxInputSize int // 0 means unbounded
}

// Compressor compresses one block's worth of bytes. Compress is pure and
// side-effect free except for allocation (spec section 4.2).
type Compressor interface {
	Compress(buf []byte) ([]byte, error)
	Constraints() Constraints
	// EstimateMemoryUsage reports the estimated peak memory footprint of
	// compressing an input of the given size, so a writer can schedule
	// work against a MemoryBudget.
	EstimateMemoryUsage(inputSize int) int64
}

// Decompressor exposes the framed incremental interface spec section 4.2
// requires: Start sets the output buffer and the known uncompressed size;
// DecompressFrame advances decoding by at most maxBytes and reports whether
// decoding is complete.
type Decompressor interface {
	Start(target []byte, uncompressedSize int) error
	DecompressFrame(maxBytes int) (done bool, err error)
	// Metadata returns compressor-specific sidecar data (e.g. FLAC sample
	// layout) or nil. A reader that does not understand a non-nil payload
	// must pass it through unchanged rather than reject it (spec section
	// 9's open question on opaque compressor metadata).
	Metadata() []byte
	io.Closer
}

// Factory advertises one codec: its identity, its options, its library
// dependencies, and constructors for a compressor/decompressor pair.
// Grounded on the teacher's CompHandler (legacy/comp_xz.go): a named bundle
// of a Compress func and a Decompress constructor, registered once at init
// time.
type Factory interface {
	Name() string
	Description() string
	// LibraryDependencies names the third-party libraries this factory
	// links, surfaced for diagnostics.
	LibraryDependencies() []string
	NewCompressor(opts map[string]string) (Compressor, error)
	// NewDecompressor wraps src, the section's raw compressed payload
	// reader, with this codec's decompressor.
	NewDecompressor(src io.Reader) (Decompressor, error)
}

var (
	mu       sync.RWMutex
	registry = map[section.CompressionType]Factory{}
)

// RegisterFactory adds f under kind. Per spec section 4.2, the registry is
// populated by static registration hooks during startup (init() functions
// in build-tag-gated files) and never mutated afterwards. RegisterFactory
// panics on a duplicate registration, mirroring the teacher's
// RegisterCompHandler/RegisterDecompressor init-time panics on conflicting
// compression IDs.
func RegisterFactory(kind section.CompressionType, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("compressor: factory for compression type %d already registered", kind))
	}
	registry[kind] = f
}

// Lookup returns the factory registered for kind, if any.
func Lookup(kind section.CompressionType) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[kind]
	return f, ok
}

// Registered returns every currently-registered compression type, sorted by
// no particular order; used for diagnostics and tests.
func Registered() []section.CompressionType {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]section.CompressionType, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}
