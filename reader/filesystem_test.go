package reader_test

import (
	"bytes"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/dwarfs-go/dwarfs/reader"
	"github.com/dwarfs-go/dwarfs/writer"
)

func buildImage(t *testing.T, tree fstest.MapFS) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := writer.NewWriter(&buf)
	if err := w.Add(tree, "."); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return buf.Bytes()
}

func TestFileSystemReadsBackWrittenContent(t *testing.T) {
	tree := fstest.MapFS{
		"a.txt":     {Data: []byte("hello world")},
		"b.txt":     {Data: []byte("hello world")}, // dedup of a.txt
		"dir/c.txt": {Data: []byte("different content entirely, long enough to chunk into its own block maybe")},
	}
	image := buildImage(t, tree)

	fsys, err := reader.Open(bytes.NewReader(image), int64(len(image)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for path, want := range map[string]string{
		"a.txt":     "hello world",
		"b.txt":     "hello world",
		"dir/c.txt": "different content entirely, long enough to chunk into its own block maybe",
	} {
		got := make([]byte, len(want))
		n, err := fsys.ReadAt(path, got, 0)
		if err != nil && err != io.EOF {
			t.Fatalf("ReadAt(%s): %v", path, err)
		}
		if string(got[:n]) != want {
			t.Errorf("ReadAt(%s) = %q, want %q", path, got[:n], want)
		}
	}

	info, err := fsys.Stat("dir")
	if err != nil {
		t.Fatalf("Stat(dir): %v", err)
	}
	if !info.IsDir() {
		t.Error("Stat(dir).IsDir() = false, want true")
	}

	entries, err := fsys.ReadDir(".")
	if err != nil {
		t.Fatalf("ReadDir(.): %v", err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}
	for _, want := range []string{"a.txt", "b.txt", "dir"} {
		if !names[want] {
			t.Errorf("ReadDir(.) missing %q", want)
		}
	}

	var walked []string
	if err := fsys.Walk(func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		walked = append(walked, p)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(walked) == 0 {
		t.Error("Walk visited nothing")
	}

	dump, err := fsys.Dump(2)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if dump == "" {
		t.Error("Dump(2) returned empty string")
	}

	if history := fsys.History(); len(history) != 1 {
		t.Errorf("History() = %d entries, want 1", len(history))
	}
}

func TestFileSystemOpenAndReadViaIOFS(t *testing.T) {
	tree := fstest.MapFS{
		"only.txt": {Data: []byte("just one file")},
	}
	image := buildImage(t, tree)

	fsys, err := reader.Open(bytes.NewReader(image), int64(len(image)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	f, err := fsys.Open("only.txt")
	if err != nil {
		t.Fatalf("Open(only.txt): %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "just one file" {
		t.Errorf("content = %q, want %q", got, "just one file")
	}
}

func TestFileSystemSymlink(t *testing.T) {
	tree := fstest.MapFS{
		"target.txt": {Data: []byte("target")},
		"link":       {Data: []byte("target.txt"), Mode: fs.ModeSymlink},
	}
	image := buildImage(t, tree)

	fsys, err := reader.Open(bytes.NewReader(image), int64(len(image)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	target, err := fsys.Readlink("link", 0)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "target.txt" {
		t.Errorf("Readlink(link) = %q, want %q", target, "target.txt")
	}
}

func TestFileSystemNotFound(t *testing.T) {
	image := buildImage(t, fstest.MapFS{"a.txt": {Data: []byte("x")}})
	fsys, err := reader.Open(bytes.NewReader(image), int64(len(image)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := fsys.Stat("nope.txt"); err == nil {
		t.Error("Stat(nope.txt) succeeded, want error")
	}
}
