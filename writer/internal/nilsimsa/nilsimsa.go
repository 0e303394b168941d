// Package nilsimsa implements the two similarity fingerprints spec section
// 4.6 names: a cheap 32-bit "similarity" fingerprint and a 256-bit
// "nilsimsa" locality-sensitive hash, plus the greedy clustering that
// orders regular-file inodes by hamming distance between their nilsimsa
// hashes.
//
// Grounded on original_source/include/dwarfs/similarity.h (update/finalize
// shape of the 32-bit fingerprint) and original_source/test/
// nilsimsa_benchmark.cpp (nilsimsa's update(data,size)/finalize(hash_type&)
// contract). Neither original_source/src/similarity.cpp nor a nilsimsa.cpp
// survived retrieval, so the trigram accumulation itself is reimplemented
// from the published, public description of the nilsimsa algorithm (a
// sliding window of preceding bytes hashed through an S-box in trigrams,
// accumulated into a histogram, thresholded into a bit per bucket) rather
// than adapted line-by-line from a source file; this package does not
// claim bit-for-bit compatibility with any reference nilsimsa
// implementation, only internal self-consistency (the producer and any
// later consumer of the same written image always compute the same
// values), which is all the ordering component requires.
package nilsimsa

// tran is a fixed pseudo-random substitution box, analogous to the
// classic nilsimsa algorithm's TRAN table, generated once at init time
// from a fixed seed so hash values are reproducible across runs.
var tran [256]byte

func init() {
	var s uint64 = 0xd1b54a32d192ed03
	next := func() uint64 {
		s += 0x9e3779b97f4a7c15
		z := s
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		return z ^ (z >> 31)
	}
	var used [256]bool
	for i := range tran {
		for {
			v := byte(next())
			if !used[v] {
				used[v] = true
				tran[i] = v
				break
			}
		}
	}
}

func mix(a, b, c, salt byte) byte {
	x := tran[byte(int(a)+int(salt))]
	x = tran[x^b]
	x = tran[x^c]
	return x
}

// historyDepth is how many preceding bytes feed into each new byte's
// trigrams; 8 trigrams per byte are formed from these pairs of history
// positions (0-indexed, 0 = most recent).
const historyDepth = 5

var trigramPairs = [8][2]int{{0, 1}, {0, 2}, {1, 2}, {0, 3}, {1, 3}, {2, 3}, {0, 4}, {1, 4}}

// Hash is a 256-bit nilsimsa locality-sensitive hash.
type Hash [32]byte

// Digest accumulates bytes into a nilsimsa Hash. The zero value is an
// empty Digest, the same one New returns.
type Digest struct {
	history [historyDepth]byte
	filled  int
	acc     [256]uint32
	total   int
}

// New creates an empty Digest.
func New() *Digest { return &Digest{} }

// Write feeds bytes into the running digest. It never returns an error.
func (d *Digest) Write(p []byte) (int, error) {
	for _, c := range p {
		for salt, pair := range trigramPairs {
			if d.filled <= pair[1] {
				continue
			}
			b := mix(c, d.history[pair[0]], d.history[pair[1]], byte(salt))
			d.acc[b]++
			d.total++
		}
		copy(d.history[1:], d.history[:historyDepth-1])
		d.history[0] = c
		if d.filled < historyDepth {
			d.filled++
		}
	}
	return len(p), nil
}

// Sum finalizes the digest into a 256-bit Hash: bit i is set when bucket
// i's count is strictly above the mean bucket count (total/256, rounded
// down), the standard nilsimsa thresholding rule.
func (d *Digest) Sum() Hash {
	var h Hash
	if d.total == 0 {
		return h
	}
	threshold := uint32(d.total) / 256
	for i := 0; i < 256; i++ {
		if d.acc[i] > threshold {
			h[i/8] |= 1 << uint(i%8)
		}
	}
	return h
}

// Distance returns the hamming distance, in bits, between two Hashes: 0
// means identical, 256 means every bit differs.
func Distance(a, b Hash) int {
	n := 0
	for i := range a {
		x := a[i] ^ b[i]
		for x != 0 {
			n++
			x &= x - 1
		}
	}
	return n
}

// Fingerprint32 accumulates the cheap 32-bit similarity fingerprint spec
// section 4.6 calls "a single 32-bit per-file similarity fingerprint
// (histogram-derived)". It shares the nilsimsa trigram construction at a
// smaller bucket count, trading discrimination for a fingerprint cheap
// enough to sort lexicographically across an entire corpus.
type Fingerprint32 struct {
	history [historyDepth]byte
	filled  int
	acc     [32]uint32
	total   int
}

// NewFingerprint32 creates an empty Fingerprint32.
func NewFingerprint32() *Fingerprint32 { return &Fingerprint32{} }

func (f *Fingerprint32) Write(p []byte) (int, error) {
	for _, c := range p {
		for salt, pair := range trigramPairs {
			if f.filled <= pair[1] {
				continue
			}
			b := mix(c, f.history[pair[0]], f.history[pair[1]], byte(salt))
			f.acc[b%32]++
			f.total++
		}
		copy(f.history[1:], f.history[:historyDepth-1])
		f.history[0] = c
		if f.filled < historyDepth {
			f.filled++
		}
	}
	return len(p), nil
}

// Sum finalizes the running fingerprint into a 32-bit value, one bit per
// bucket, thresholded the same way Digest.Sum is.
func (f *Fingerprint32) Sum() uint32 {
	if f.total == 0 {
		return 0
	}
	threshold := uint32(f.total) / 32
	var v uint32
	for i := 0; i < 32; i++ {
		if f.acc[i] > threshold {
			v |= 1 << uint(i)
		}
	}
	return v
}
