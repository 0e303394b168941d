package section_test

import (
	"testing"

	"github.com/dwarfs-go/dwarfs/section"
)

func TestFastChecksumDeterministic(t *testing.T) {
	payload := []byte("hello, dwarfs")
	a := section.FastChecksum(1, uint16(section.KindBlock), 0, uint64(len(payload)), payload)
	b := section.FastChecksum(1, uint16(section.KindBlock), 0, uint64(len(payload)), payload)
	if a != b {
		t.Errorf("FastChecksum not deterministic: %x != %x", a, b)
	}
	c := section.FastChecksum(2, uint16(section.KindBlock), 0, uint64(len(payload)), payload)
	if a == c {
		t.Errorf("FastChecksum should depend on section number")
	}
}

func TestStrongChecksumDeterministic(t *testing.T) {
	payload := []byte("hello, dwarfs")
	a := section.StrongChecksum(1, uint16(section.KindBlock), 0, uint64(len(payload)), payload)
	b := section.StrongChecksum(1, uint16(section.KindBlock), 0, uint64(len(payload)), payload)
	if a != b {
		t.Errorf("StrongChecksum not deterministic")
	}
}

func TestVerifyFastZeroMeansUnchecked(t *testing.T) {
	if !section.VerifyFast(0, 1, 0, 0, 3, []byte("abc")) {
		t.Errorf("zero checksum should always verify")
	}
}

func TestVerifyFastMismatch(t *testing.T) {
	payload := []byte("payload")
	good := section.FastChecksum(1, 0, 0, uint64(len(payload)), payload)
	if !section.VerifyFast(good, 1, 0, 0, uint64(len(payload)), payload) {
		t.Errorf("expected verify to pass with correct checksum")
	}
	if section.VerifyFast(good, 1, 0, 0, uint64(len(payload)), []byte("tampered")) {
		t.Errorf("expected verify to fail with tampered payload")
	}
}

func TestVerifyStrongZeroMeansUnchecked(t *testing.T) {
	var zero [32]byte
	if !section.VerifyStrong(zero, 1, 0, 0, 3, []byte("abc")) {
		t.Errorf("all-zero checksum should always verify")
	}
}
