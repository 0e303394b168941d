package reader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/dwarfs-go/dwarfs"
	"github.com/dwarfs-go/dwarfs/reader/metadata"
)

// inodeFileInfo adapts a metadata.InodeView to fs.FileInfo. Size, for
// regular files, is the sum of its chunk sizes (holes included), recomputed
// from the chunk list on each call rather than cached, since InodeView
// itself carries no state beyond an index.
type inodeFileInfo struct {
	fsys *FileSystem
	name string
	v    metadata.InodeView
}

func (fi *inodeFileInfo) Name() string { return fi.name }

func (fi *inodeFileInfo) Size() int64 {
	switch fi.v.Type() {
	case dwarfs.InodeRegular:
		chunks, err := fi.fsys.meta.Chunks(fi.v.Ino)
		if err != nil {
			return 0
		}
		var n int64
		for _, c := range chunks {
			n += int64(c.Size)
		}
		return n
	case dwarfs.InodeSymlink:
		target, err := fi.fsys.meta.Readlink(fi.v.Ino, dwarfs.ReadlinkRaw)
		if err != nil {
			return 0
		}
		return int64(len(target))
	default:
		return 0
	}
}

func (fi *inodeFileInfo) Mode() fs.FileMode  { return fi.v.Mode() }
func (fi *inodeFileInfo) ModTime() time.Time { return time.Unix(fi.v.MTime(), 0) }
func (fi *inodeFileInfo) IsDir() bool        { return fi.v.Type() == dwarfs.InodeDir }
func (fi *inodeFileInfo) Sys() any           { return fi.v }

// dirEntry adapts an inodeFileInfo to fs.DirEntry.
type dirEntry struct {
	fsys *FileSystem
	info *inodeFileInfo
}

func (d *dirEntry) Name() string               { return d.info.name }
func (d *dirEntry) IsDir() bool                 { return d.info.IsDir() }
func (d *dirEntry) Type() fs.FileMode           { return d.info.Mode().Type() }
func (d *dirEntry) Info() (fs.FileInfo, error)  { return d.info, nil }

// chunkReader presents a regular file's chunk list (spec section 4.5's
// chunks(inode) -> span<chunk>) as a single io.ReaderAt, resolving each
// requested range against the block cache one chunk at a time and filling
// holes with zeros without ever materializing the whole file.
type chunkReader struct {
	fsys   *FileSystem
	chunks []metadata.Chunk
	size   int64
}

func (fsys *FileSystem) newChunkReader(v metadata.InodeView) (*chunkReader, error) {
	chunks, err := fsys.meta.Chunks(v.Ino)
	if err != nil {
		return nil, err
	}
	var size int64
	for _, c := range chunks {
		size += int64(c.Size)
	}
	return &chunkReader{fsys: fsys, chunks: chunks, size: size}, nil
}

// ReadAt implements io.ReaderAt over the logical, uncompressed file
// content spanned by cr.chunks.
func (cr *chunkReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &fs.PathError{Op: "readat", Err: fs.ErrInvalid}
	}
	if off >= cr.size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	want := off + int64(len(p))
	var n int64
	pos := int64(0)
	for _, c := range cr.chunks {
		end := pos + int64(c.Size)
		if end <= off {
			pos = end
			continue
		}
		if pos >= want {
			break
		}

		start := off
		if pos > start {
			start = pos
		}
		stop := want
		if end < stop {
			stop = end
		}
		dstOff := start - off
		segLen := stop - start

		if c.Hole {
			for i := int64(0); i < segLen; i++ {
				p[dstOff+i] = 0
			}
		} else {
			chunkOff := int64(c.Offset) + (start - pos)
			res := <-cr.fsys.cache.Get(context.Background(), int(c.Block), chunkOff, segLen)
			cr.fsys.cache.Release(int(c.Block))
			if res.Err != nil {
				return int(n), res.Err
			}
			copy(p[dstOff:dstOff+segLen], res.Data)
		}

		n += segLen
		pos = end
		if pos >= want {
			break
		}
	}

	if n < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// openFile is the fs.File returned by FileSystem.Open for a regular file,
// backed by an io.SectionReader over its chunkReader so Read tracks its
// own offset the way io/fs.File requires.
type openFile struct {
	info fs.FileInfo
	sr   *io.SectionReader
}

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *openFile) Read(p []byte) (int, error) { return f.sr.Read(p) }
func (f *openFile) Close() error               { return nil }

// openDir is the fs.ReadDirFile returned by FileSystem.Open for a
// directory.
type openDir struct {
	info    fs.FileInfo
	entries []fs.DirEntry
	pos     int
}

func (d *openDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *openDir) Close() error               { return nil }

func (d *openDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.Name(), Err: fmt.Errorf("is a directory")}
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if n <= 0 {
		out := d.entries[d.pos:]
		d.pos = len(d.entries)
		return out, nil
	}
	if d.pos >= len(d.entries) {
		return nil, io.EOF
	}
	end := d.pos + n
	if end > len(d.entries) {
		end = len(d.entries)
	}
	out := d.entries[d.pos:end]
	d.pos = end
	return out, nil
}
