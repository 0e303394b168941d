package compressor

import (
	"io"

	"github.com/dwarfs-go/dwarfs/section"
)

// Null is the compression_type tag for the always-present passthrough
// codec (spec section 4.2: "a 'null' codec is always present ... this
// guarantees the pipeline is well-defined even when no codec is linked").
const Null section.CompressionType = 0

func init() {
	RegisterFactory(Null, nullFactory{})
}

type nullFactory struct{}

func (nullFactory) Name() string                      { return "null" }
func (nullFactory) Description() string                { return "passthrough, no compression" }
func (nullFactory) LibraryDependencies() []string      { return nil }
func (nullFactory) NewCompressor(map[string]string) (Compressor, error) {
	return nullCompressor{}, nil
}
func (nullFactory) NewDecompressor(src io.Reader) (Decompressor, error) {
	return newReaderDecompressor(func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	}, src)
}

type nullCompressor struct{}

func (nullCompressor) Compress(buf []byte) ([]byte, error) {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func (nullCompressor) Constraints() Constraints { return Constraints{} }

func (nullCompressor) EstimateMemoryUsage(inputSize int) int64 { return int64(inputSize) }
