package compressor

import "io"

// readerOpener opens a decompressing io.ReadCloser over a compressed
// source, the same signature the teacher passes to MakeDecompressorErr in
// legacy/comp_xz.go.
type readerOpener func(io.Reader) (io.ReadCloser, error)

// readerDecompressor adapts a stdlib-shaped io.Reader decompressor (what
// every codec library in the pack actually exposes: zstd.NewReader,
// xz.NewReader, lz4.NewReader) to the framed Decompressor contract spec
// section 4.2 requires, by reading into the target buffer in bounded
// chunks. This is the one adapter every codec file in this package shares.
type readerDecompressor struct {
	rc       io.ReadCloser
	target   []byte
	want     int
	got      int
	metadata []byte
}

func newReaderDecompressor(open readerOpener, src io.Reader) (Decompressor, error) {
	rc, err := open(src)
	if err != nil {
		return nil, err
	}
	return &readerDecompressor{rc: rc}, nil
}

func (d *readerDecompressor) Start(target []byte, uncompressedSize int) error {
	d.target = target
	d.want = uncompressedSize
	d.got = 0
	return nil
}

func (d *readerDecompressor) DecompressFrame(maxBytes int) (bool, error) {
	if d.got >= d.want {
		return true, nil
	}
	end := d.got + maxBytes
	if end > d.want {
		end = d.want
	}
	n, err := io.ReadFull(d.rc, d.target[d.got:end])
	d.got += n
	if err != nil && err != io.ErrUnexpectedEOF {
		return false, err
	}
	return d.got >= d.want, nil
}

func (d *readerDecompressor) Metadata() []byte { return d.metadata }

func (d *readerDecompressor) Close() error { return d.rc.Close() }
