package blockcache

import (
	"os"
	"runtime"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"github.com/dwarfs-go/dwarfs"
)

// HeapBufferFactory allocates plain heap byte slices. Spec section 6 calls
// for a heap-backed factory on Windows (mmap's swapped-out-page detection
// has no POSIX mincore(2) equivalent there) and as the default for
// in-memory/streaming writers; it is also this package's default when no
// factory is configured, since most callers (tests, small images) have no
// need for mmap's swap-accounting.
type HeapBufferFactory struct{}

func (HeapBufferFactory) Allocate(size int) (dwarfs.ByteBuffer, error) {
	return &heapBuffer{data: make([]byte, size)}, nil
}

type heapBuffer struct{ data []byte }

func (b *heapBuffer) Bytes() []byte { return b.data }
func (b *heapBuffer) Release()      { b.data = nil }

// MmapBufferFactory allocates anonymous-ish buffers backed by a temp file
// mapping, via github.com/edsrzf/mmap-go (spec section 6's POSIX byte
// buffer factory). Backing each buffer with a real file, instead of an
// anonymous mapping mmap-go doesn't expose a constructor for, is what
// makes tidySwappedOut's mincore(2) query meaningful: the kernel is free to
// page the mapping's clean, file-backed pages out under memory pressure,
// exactly the condition TidyBlockSwappedOut reclaims ahead of.
type MmapBufferFactory struct {
	// Dir overrides the directory temp files are created in; empty means
	// os.TempDir().
	Dir string
}

func (f MmapBufferFactory) Allocate(size int) (dwarfs.ByteBuffer, error) {
	tf, err := os.CreateTemp(f.Dir, "dwarfs-block-*")
	if err != nil {
		return nil, err
	}
	// unlinking immediately (where supported) means the backing file has
	// no name a concurrent process could collide with, and its space is
	// reclaimed the moment every mapping of it is gone.
	name := tf.Name()
	if runtime.GOOS != "windows" {
		defer os.Remove(name)
	}
	if err := tf.Truncate(int64(size)); err != nil {
		tf.Close()
		return nil, err
	}
	m, err := mmap.MapRegion(tf, size, mmap.RDWR, 0, 0)
	if err != nil {
		tf.Close()
		return nil, err
	}
	return &mmapBuffer{m: m, f: tf, name: name}, nil
}

type mmapBuffer struct {
	m    mmap.MMap
	f    *os.File
	name string
}

func (b *mmapBuffer) Bytes() []byte { return []byte(b.m) }

func (b *mmapBuffer) Release() {
	b.m.Unmap()
	b.f.Close()
	os.Remove(b.name)
}

// SwappedOut reports whether the kernel has paged out most of this
// buffer's backing pages, via mincore(2) (golang.org/x/sys/unix), the
// signal blockcache.Cache.tidySwappedOut reclaims on.
func (b *mmapBuffer) SwappedOut() (bool, error) {
	data := []byte(b.m)
	if len(data) == 0 {
		return false, nil
	}
	pageSize := os.Getpagesize()
	numPages := (len(data) + pageSize - 1) / pageSize
	vec := make([]byte, numPages)
	if err := unix.Mincore(data, vec); err != nil {
		return false, err
	}
	resident := 0
	for _, b := range vec {
		if b&1 != 0 {
			resident++
		}
	}
	return resident*2 < numPages, nil // swapped out if under half resident
}
