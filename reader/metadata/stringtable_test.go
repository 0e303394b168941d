package metadata_test

import (
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/packedint"
	"github.com/dwarfs-go/dwarfs/reader/metadata"
)

func TestStringTableLookup(t *testing.T) {
	strs := []string{"alpha", "", "beta", "gamma"}
	st := metadata.BuildStringTable(strs)
	if st.Len() != len(strs) {
		t.Fatalf("Len() = %d, want %d", st.Len(), len(strs))
	}
	for i, want := range strs {
		if got := st.Lookup(i); got != want {
			t.Errorf("Lookup(%d) = %q, want %q", i, got, want)
		}
	}
}

func TestStringTableWithFSSTDict(t *testing.T) {
	dict := metadata.BuildFSSTDict([]string{"hello.txt", "hello.txt", "hello.txt", "world.bin"})
	strs := []string{"hello.txt", "world.bin"}
	var data []byte
	offsets := make([]uint64, len(strs)+1)
	for i, s := range strs {
		enc := dict.Encode([]byte(s))
		offsets[i] = uint64(len(data))
		data = append(data, enc...)
	}
	offsets[len(strs)] = uint64(len(data))

	st := metadata.NewStringTableWithDict(data, packedint.BuildArray(offsets), dict)
	for i, want := range strs {
		if got := st.Lookup(i); got != want {
			t.Errorf("Lookup(%d) = %q, want %q", i, got, want)
		}
	}
}

func TestFSSTEncodeDecodeRoundTrip(t *testing.T) {
	dict := metadata.BuildFSSTDict([]string{"abcabc", "abcabc", "xyz"})
	for _, s := range []string{"abcabc", "xyz", "abcabcxyz", "nomatch"} {
		enc := dict.Encode([]byte(s))
		if got := dict.Decode(enc); got != s {
			t.Errorf("round trip %q -> %q, want %q", s, got, s)
		}
	}
}
