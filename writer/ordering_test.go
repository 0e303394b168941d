package writer_test

import (
	"io"
	"testing"
	"testing/fstest"

	"github.com/dwarfs-go/dwarfs/writer"
)

func scanSample(t *testing.T) []*writer.Entry {
	t.Helper()
	s := writer.NewScanner()
	tree := fstest.MapFS{
		"c.txt": {Data: []byte("ccc")},
		"a.txt": {Data: []byte("aaa")},
		"b.txt": {Data: []byte("bbb")},
	}
	if err := s.Scan(tree, "."); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return s.Entries()
}

func readEntry(e *writer.Entry) ([]byte, error) {
	f, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func TestOrderEntriesByPath(t *testing.T) {
	entries := scanSample(t)
	cfg := writer.OrderingConfig{Order: writer.OrderPath}
	ordered, err := writer.OrderEntries(entries, cfg, readEntry)
	if err != nil {
		t.Fatalf("OrderEntries: %v", err)
	}
	var paths []string
	for _, e := range ordered {
		paths = append(paths, e.Path)
	}
	want := []string{"a.txt", "b.txt", "c.txt"}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}
}

func TestOrderEntriesExplicitFallsBackToInputOrder(t *testing.T) {
	entries := scanSample(t)
	cfg := writer.OrderingConfig{Order: writer.OrderExplicit, ExplicitOrder: []string{"c.txt"}}
	ordered, err := writer.OrderEntries(entries, cfg, readEntry)
	if err != nil {
		t.Fatalf("OrderEntries: %v", err)
	}
	if ordered[0].Path != "c.txt" {
		t.Fatalf("first entry = %s, want c.txt (explicitly ordered first)", ordered[0].Path)
	}
}

func TestOrderEntriesSimilarityIsDeterministic(t *testing.T) {
	entries := scanSample(t)
	cfg := writer.OrderingConfig{Order: writer.OrderSimilarity}
	a, err := writer.OrderEntries(entries, cfg, readEntry)
	if err != nil {
		t.Fatalf("OrderEntries: %v", err)
	}
	b, err := writer.OrderEntries(entries, cfg, readEntry)
	if err != nil {
		t.Fatalf("OrderEntries: %v", err)
	}
	for i := range a {
		if a[i].Path != b[i].Path {
			t.Errorf("similarity ordering not deterministic: %s != %s at %d", a[i].Path, b[i].Path, i)
		}
	}
}

func TestOrderEntriesNilsimsaIsPermutation(t *testing.T) {
	entries := scanSample(t)
	cfg := writer.DefaultOrderingConfig()
	cfg.Order = writer.OrderNilsimsa
	ordered, err := writer.OrderEntries(entries, cfg, readEntry)
	if err != nil {
		t.Fatalf("OrderEntries: %v", err)
	}
	seen := map[string]bool{}
	for _, e := range ordered {
		seen[e.Path] = true
	}
	for _, want := range []string{"a.txt", "b.txt", "c.txt"} {
		if !seen[want] {
			t.Errorf("nilsimsa ordering dropped %s", want)
		}
	}
}

func TestOrderEntriesKeepsDuplicatesAdjacentToCanonical(t *testing.T) {
	s := writer.NewScanner()
	tree := fstest.MapFS{
		"a.txt": {Data: []byte("same")},
		"b.txt": {Data: []byte("same")},
	}
	if err := s.Scan(tree, "."); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	cfg := writer.OrderingConfig{Order: writer.OrderPath}
	ordered, err := writer.OrderEntries(s.Entries(), cfg, readEntry)
	if err != nil {
		t.Fatalf("OrderEntries: %v", err)
	}
	if len(ordered) != 2 {
		t.Fatalf("got %d entries, want 2", len(ordered))
	}
	if ordered[0].DedupOf != nil {
		t.Errorf("expected canonical entry first, got a duplicate")
	}
	if ordered[1].DedupOf != ordered[0] {
		t.Errorf("expected duplicate to immediately follow its canonical entry")
	}
}
