package nilsimsa_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/dwarfs-go/dwarfs/writer/internal/nilsimsa"
)

func digest(data []byte) nilsimsa.Hash {
	d := nilsimsa.New()
	d.Write(data)
	return d.Sum()
}

func TestDigestDeterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	if digest(data) != digest(data) {
		t.Errorf("Digest is not deterministic")
	}
}

func TestIdenticalContentHasZeroDistance(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 50)
	a, b := digest(data), digest(data)
	if nilsimsa.Distance(a, b) != 0 {
		t.Errorf("expected zero distance for identical content")
	}
}

func TestSimilarContentIsCloserThanDissimilar(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	base := make([]byte, 4096)
	r.Read(base)

	similar := make([]byte, len(base))
	copy(similar, base)
	// flip a handful of bytes near the end: a small, localized change.
	for i := len(similar) - 20; i < len(similar); i++ {
		similar[i] ^= 0xff
	}

	dissimilar := make([]byte, len(base))
	r.Read(dissimilar)

	baseHash := digest(base)
	similarDist := nilsimsa.Distance(baseHash, digest(similar))
	dissimilarDist := nilsimsa.Distance(baseHash, digest(dissimilar))

	if similarDist > dissimilarDist {
		t.Errorf("expected similar content to be closer: similar=%d dissimilar=%d", similarDist, dissimilarDist)
	}
}

func TestFingerprint32Deterministic(t *testing.T) {
	data := []byte("fingerprint this content please")
	f1 := nilsimsa.NewFingerprint32()
	f1.Write(data)
	f2 := nilsimsa.NewFingerprint32()
	f2.Write(data)
	if f1.Sum() != f2.Sum() {
		t.Errorf("Fingerprint32 is not deterministic")
	}
}

func TestClusterOrderIsPermutation(t *testing.T) {
	items := make([]nilsimsa.Item, 0, 30)
	names := []string{"a.txt", "b.txt", "c.bin", "d.bin", "e.txt"}
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 30; i++ {
		data := make([]byte, 256)
		r.Read(data)
		items = append(items, nilsimsa.Item{
			Hash:     digest(data),
			Tiebreak: names[i%len(names)] + string(rune('0'+i%10)),
		})
	}

	order := nilsimsa.ClusterOrder(items, 8, 6)
	if len(order) != len(items) {
		t.Fatalf("ClusterOrder returned %d indices, want %d", len(order), len(items))
	}
	seen := make([]bool, len(items))
	for _, idx := range order {
		if idx < 0 || idx >= len(items) {
			t.Fatalf("index %d out of range", idx)
		}
		if seen[idx] {
			t.Fatalf("index %d appeared twice", idx)
		}
		seen[idx] = true
	}
}

func TestClusterOrderGroupsIdenticalContentAdjacently(t *testing.T) {
	data := bytes.Repeat([]byte("xyzxyzxyz"), 40)
	h := digest(data)

	other := make([]byte, len(data))
	rand.New(rand.NewSource(9)).Read(other)
	otherHash := digest(other)

	items := []nilsimsa.Item{
		{Hash: h, Tiebreak: "a"},
		{Hash: otherHash, Tiebreak: "m"},
		{Hash: h, Tiebreak: "z"},
	}
	order := nilsimsa.ClusterOrder(items, 3, 3)

	pos := map[int]int{}
	for i, idx := range order {
		pos[idx] = i
	}
	// the two identical-content items (indices 0 and 2) should end up
	// adjacent, with the dissimilar one (index 1) on one side.
	if abs(pos[0]-pos[2]) != 1 {
		t.Errorf("expected identical-content items adjacent in cluster order, got positions %v", pos)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
