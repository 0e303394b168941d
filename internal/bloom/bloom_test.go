package bloom_test

import (
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/bloom"
)

func TestAddedValuesAlwaysFound(t *testing.T) {
	f := bloom.New(12)
	values := []uint32{1, 2, 3, 1000, 123456, 0xdeadbeef}
	for _, v := range values {
		f.Add(v)
	}
	for _, v := range values {
		if !f.MayContain(v) {
			t.Errorf("MayContain(%d) = false after Add(%d); bloom filters must never false-negative", v, v)
		}
	}
}

func TestEmptyFilterHasNoFalsePositivesForUntouchedRange(t *testing.T) {
	f := bloom.New(20)
	// A filter with nothing added must report false for everything.
	for _, v := range []uint32{0, 1, 42, 999999} {
		if f.MayContain(v) {
			t.Errorf("MayContain(%d) = true on an empty filter", v)
		}
	}
}

func TestReset(t *testing.T) {
	f := bloom.New(10)
	f.Add(7)
	if !f.MayContain(7) {
		t.Fatalf("expected MayContain(7) after Add(7)")
	}
	f.Reset()
	if f.MayContain(7) {
		t.Errorf("expected MayContain(7) to be false after Reset")
	}
}

func TestSizeBitsFloor(t *testing.T) {
	f := bloom.New(0)
	if f.SizeBits() < 6 {
		t.Errorf("expected a minimum filter size, got SizeBits()=%d", f.SizeBits())
	}
}
