//go:build zstd

package compressor

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/dwarfs-go/dwarfs/section"
)

// ZSTD is the compression_type tag for the zstd codec (spec section 4.2,
// section 9's "concrete compressors ... specified only through their
// contracts" lists zstd as the obvious default). Grounded on
// legacy/comp_zstd.go's use of github.com/klauspost/compress/zstd.
const ZSTD section.CompressionType = 1

func init() {
	RegisterFactory(ZSTD, zstdFactory{})
}

type zstdFactory struct{}

func (zstdFactory) Name() string                 { return "zstd" }
func (zstdFactory) Description() string          { return "Zstandard" }
func (zstdFactory) LibraryDependencies() []string { return []string{"github.com/klauspost/compress/zstd"} }

func (zstdFactory) NewCompressor(opts map[string]string) (Compressor, error) {
	level := zstd.SpeedDefault
	if lv, ok := opts["level"]; ok {
		switch lv {
		case "fastest":
			level = zstd.SpeedFastest
		case "better":
			level = zstd.SpeedBetterCompression
		case "best":
			level = zstd.SpeedBestCompression
		}
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	return &zstdCompressor{enc: enc}, nil
}

func (zstdFactory) NewDecompressor(src io.Reader) (Decompressor, error) {
	return newReaderDecompressor(func(r io.Reader) (io.ReadCloser, error) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	}, src)
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (c *zstdCompressor) Compress(buf []byte) ([]byte, error) {
	return c.enc.EncodeAll(buf, nil), nil
}

func (c *zstdCompressor) Constraints() Constraints { return Constraints{} }

func (c *zstdCompressor) EstimateMemoryUsage(inputSize int) int64 {
	return int64(inputSize) + (8 << 20)
}
