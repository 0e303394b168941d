//go:build xz

package compressor

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/dwarfs-go/dwarfs/section"
)

// XZ is the compression_type tag for the xz/lzma codec. Grounded on
// legacy/comp_xz.go's xzCompress/init pairing.
const XZ section.CompressionType = 2

func init() {
	RegisterFactory(XZ, xzFactory{})
}

type xzFactory struct{}

func (xzFactory) Name() string                 { return "xz" }
func (xzFactory) Description() string          { return "LZMA2 (xz container)" }
func (xzFactory) LibraryDependencies() []string { return []string{"github.com/ulikunitz/xz"} }

func (xzFactory) NewCompressor(map[string]string) (Compressor, error) {
	return xzCompressor{}, nil
}

func (xzFactory) NewDecompressor(src io.Reader) (Decompressor, error) {
	return newReaderDecompressor(func(r io.Reader) (io.ReadCloser, error) {
		rc, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(rc), nil
	}, src)
}

type xzCompressor struct{}

func (xzCompressor) Compress(buf []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := xz.NewWriter(&out)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(buf); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (xzCompressor) Constraints() Constraints { return Constraints{} }

func (xzCompressor) EstimateMemoryUsage(inputSize int) int64 {
	return int64(inputSize) + (64 << 20)
}
