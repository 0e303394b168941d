package rollinghash_test

import (
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/rollinghash"
)

func TestHashDeterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly")

	run := func() uint32 {
		h := rollinghash.New(8)
		var last uint32
		for _, b := range data {
			last = h.Update(b)
		}
		return last
	}

	a, b := run(), run()
	if a != b {
		t.Errorf("hash not deterministic: %d != %d", a, b)
	}
}

func TestHashConvergesToFreshWindow(t *testing.T) {
	window := []byte("abcdefgh")

	h1 := rollinghash.New(len(window))
	for _, b := range window {
		h1.Update(b)
	}

	prefix := []byte("xyz")
	h2 := rollinghash.New(len(window))
	for _, b := range prefix {
		h2.Update(b)
	}
	for _, b := range window {
		h2.Update(b)
	}

	if h1.Value() != h2.Value() {
		t.Errorf("rolling hash of a window should not depend on what preceded it: %d != %d", h1.Value(), h2.Value())
	}
}

func TestHashChangesBetweenDistinctWindows(t *testing.T) {
	h := rollinghash.New(4)
	for _, b := range []byte("aaaa") {
		h.Update(b)
	}
	v1 := h.Value()
	h.Update('b')
	v2 := h.Value()
	if v1 == v2 {
		t.Errorf("expected rolling hash to change after sliding the window")
	}
}

func TestFullReportsWindowFill(t *testing.T) {
	h := rollinghash.New(4)
	if h.Full() {
		t.Errorf("expected Full() to be false before any updates")
	}
	for i := 0; i < 3; i++ {
		h.Update('a')
	}
	if h.Full() {
		t.Errorf("expected Full() to be false with window not yet saturated")
	}
	h.Update('a')
	if !h.Full() {
		t.Errorf("expected Full() to be true once window size bytes have been seen")
	}
}
