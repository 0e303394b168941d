package compressor_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/dwarfs-go/dwarfs/compressor"
	"github.com/dwarfs-go/dwarfs/section"
)

func TestNullAlwaysRegistered(t *testing.T) {
	f, ok := compressor.Lookup(compressor.Null)
	if !ok {
		t.Fatalf("expected null codec to be registered")
	}
	if f.Name() != "null" {
		t.Errorf("Name() = %q, want %q", f.Name(), "null")
	}
}

func TestRegisterFactoryDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic on duplicate registration")
		}
	}()
	compressor.RegisterFactory(compressor.Null, nil)
}

func TestNullCompressRoundTrip(t *testing.T) {
	f, _ := compressor.Lookup(compressor.Null)
	c, err := f.NewCompressor(nil)
	if err != nil {
		t.Fatalf("NewCompressor: %s", err)
	}
	in := []byte("the quick brown fox jumps over the lazy dog")
	out, err := c.Compress(in)
	if err != nil {
		t.Fatalf("Compress: %s", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("null compress should be a passthrough")
	}

	dec, err := f.NewDecompressor(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("NewDecompressor: %s", err)
	}
	defer dec.Close()

	target := make([]byte, len(in))
	if err := dec.Start(target, len(in)); err != nil {
		t.Fatalf("Start: %s", err)
	}
	done, err := dec.DecompressFrame(len(in))
	if err != nil {
		t.Fatalf("DecompressFrame: %s", err)
	}
	if !done {
		t.Errorf("expected DecompressFrame to complete in one call")
	}
	if !bytes.Equal(target, in) {
		t.Errorf("decompressed = %q, want %q", target, in)
	}
}

func TestNullDecompressFrameIncremental(t *testing.T) {
	f, _ := compressor.Lookup(compressor.Null)
	in := []byte("0123456789abcdef")
	dec, err := f.NewDecompressor(bytes.NewReader(in))
	if err != nil {
		t.Fatalf("NewDecompressor: %s", err)
	}
	defer dec.Close()

	target := make([]byte, len(in))
	if err := dec.Start(target, len(in)); err != nil {
		t.Fatalf("Start: %s", err)
	}
	done, err := dec.DecompressFrame(4)
	if err != nil {
		t.Fatalf("DecompressFrame: %s", err)
	}
	if done {
		t.Errorf("expected more frames to remain after a partial read")
	}
	for !done {
		done, err = dec.DecompressFrame(4)
		if err != nil && err != io.EOF {
			t.Fatalf("DecompressFrame: %s", err)
		}
	}
	if !bytes.Equal(target, in) {
		t.Errorf("decompressed = %q, want %q", target, in)
	}
}

func TestRegisteredIncludesNull(t *testing.T) {
	found := false
	for _, k := range compressor.Registered() {
		if k == compressor.Null {
			found = true
		}
	}
	if !found {
		t.Errorf("Registered() missing compressor.Null")
	}
	if _, ok := compressor.Lookup(section.CompressionType(9999)); ok {
		t.Errorf("unexpected factory for unregistered compression type")
	}
}
