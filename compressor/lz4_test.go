//go:build lz4

package compressor_test

import (
	"bytes"
	"testing"

	"github.com/dwarfs-go/dwarfs/compressor"
)

func TestLZ4RoundTrip(t *testing.T) {
	f, ok := compressor.Lookup(compressor.LZ4)
	if !ok {
		t.Fatalf("lz4 factory not registered")
	}
	c, err := f.NewCompressor(nil)
	if err != nil {
		t.Fatalf("NewCompressor: %s", err)
	}
	in := bytes.Repeat([]byte("dwarfs content defined chunking "), 200)
	compressed, err := c.Compress(in)
	if err != nil {
		t.Fatalf("Compress: %s", err)
	}

	dec, err := f.NewDecompressor(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("NewDecompressor: %s", err)
	}
	defer dec.Close()
	target := make([]byte, len(in))
	if err := dec.Start(target, len(in)); err != nil {
		t.Fatalf("Start: %s", err)
	}
	for done := false; !done; {
		done, err = dec.DecompressFrame(4096)
		if err != nil {
			t.Fatalf("DecompressFrame: %s", err)
		}
	}
	if !bytes.Equal(target, in) {
		t.Errorf("round trip mismatch")
	}
}
