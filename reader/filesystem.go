// Package reader opens a DwarFS image and answers POSIX-style metadata
// queries and random-access reads against it (spec section 6's
// filesystem_v2), decompressing no more of the image than a query
// actually touches.
//
// Grounded on the teacher's squashfs.Open/FS (legacy/super.go, legacy/dir.go,
// legacy/file.go): a single entry point that parses a header, builds an
// io/fs.FS-compatible view over an inode tree, and backs file reads with
// lazily decompressed metadata/data blocks. FileSystem generalizes that
// same shape onto this implementation's section framing
// (package section), frozen metadata (reader/metadata), and block cache
// (reader/internal/blockcache) instead of SquashFS's fixed-size block/
// fragment/inode tables.
package reader

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dwarfs-go/dwarfs"
	"github.com/dwarfs-go/dwarfs/compressor"
	"github.com/dwarfs-go/dwarfs/reader/internal/blockcache"
	"github.com/dwarfs-go/dwarfs/reader/metadata"
	"github.com/dwarfs-go/dwarfs/section"
)

// HistoryEntry mirrors writer.HistoryEntry field-for-field (gob decodes by
// field name, not by declared type, so the two independently-declared
// types stay wire-compatible without reader importing writer).
type HistoryEntry struct {
	Timestamp int64
	Tool      string
	Args      []string
	Version   string
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	cache  blockcache.Config
	logger dwarfs.Logger
}

// WithCacheConfig overrides the block cache's defaults (byte budget,
// concurrency, tidy strategy, buffer factory).
func WithCacheConfig(cfg blockcache.Config) Option {
	return func(o *openConfig) { o.cache = cfg }
}

// WithLogger sets the logger Open and the FileSystem report through.
func WithLogger(l dwarfs.Logger) Option {
	return func(o *openConfig) { o.logger = l }
}

// FileSystem is an opened DwarFS image, implementing dwarfs.FilesystemV2.
type FileSystem struct {
	meta     *metadata.Metadata
	parser   *section.Parser
	cache    *blockcache.Cache
	numBlocks int
	history  []HistoryEntry
	logger   dwarfs.Logger
}

var _ dwarfs.FilesystemV2 = (*FileSystem)(nil)

type sectionPayload struct {
	compression section.CompressionType
	payload     []byte
}

// Open parses the section framing at r (auto-detecting the image offset
// per spec section 4.1), decodes its METADATA_V2_SCHEMA/METADATA_V2
// sections eagerly, and wires its BLOCK sections to a lazily-decoding
// block cache.
func Open(r io.ReaderAt, size int64, opts ...Option) (*FileSystem, error) {
	cfg := openConfig{logger: dwarfs.NopLogger}
	for _, opt := range opts {
		opt(&cfg)
	}

	offset, err := section.DiscoverOffset(r, size, section.OffsetAuto, 0)
	if err != nil {
		return nil, dwarfs.NewError(dwarfs.ErrKindCorruptedImage, err)
	}
	parser := section.NewParser(r, size, offset)

	var blocks []section.Section
	var schemaSec, dataSec, historySec *sectionPayload

	err = parser.Walk(func(s *section.Section) error {
		payload, err := parser.ReadPayload(s)
		if err != nil {
			return dwarfs.NewSectionError(dwarfs.ErrKindIOError, s.Number, s.Offset, err)
		}
		if !parser.VerifyFast(s, payload) {
			return dwarfs.NewSectionError(dwarfs.ErrKindChecksumMismatch, s.Number, s.Offset,
				fmt.Errorf("fast checksum mismatch on %s section", s.Kind))
		}
		switch s.Kind {
		case section.KindBlock:
			cp := *s
			blocks = append(blocks, cp)
		case section.KindMetadataV2Schema:
			schemaSec = &sectionPayload{s.Compression, payload}
		case section.KindMetadataV2:
			dataSec = &sectionPayload{s.Compression, payload}
		case section.KindHistory:
			historySec = &sectionPayload{s.Compression, payload}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if schemaSec == nil || dataSec == nil {
		return nil, dwarfs.NewError(dwarfs.ErrKindCorruptedImage, fmt.Errorf("reader: image has no metadata sections"))
	}

	schemaBytes, err := decodeSectionPayload(*schemaSec)
	if err != nil {
		return nil, dwarfs.NewError(dwarfs.ErrKindDecompressionFailed, fmt.Errorf("decode schema section: %w", err))
	}
	dataBytes, err := decodeSectionPayload(*dataSec)
	if err != nil {
		return nil, dwarfs.NewError(dwarfs.ErrKindDecompressionFailed, fmt.Errorf("decode metadata section: %w", err))
	}
	meta, err := metadata.Decode(schemaBytes, dataBytes)
	if err != nil {
		return nil, dwarfs.NewError(dwarfs.ErrKindCorruptedImage, fmt.Errorf("decode metadata: %w", err))
	}

	var history []HistoryEntry
	if historySec != nil {
		historyBytes, err := decodeSectionPayload(*historySec)
		if err != nil {
			return nil, dwarfs.NewError(dwarfs.ErrKindDecompressionFailed, fmt.Errorf("decode history section: %w", err))
		}
		if err := gob.NewDecoder(bytes.NewReader(historyBytes)).Decode(&history); err != nil {
			return nil, dwarfs.NewError(dwarfs.ErrKindCorruptedImage, fmt.Errorf("decode history: %w", err))
		}
	}

	fsys := &FileSystem{meta: meta, parser: parser, history: history, logger: cfg.logger, numBlocks: len(blocks)}
	fsys.cache = blockcache.New(&blockFetcher{parser: parser, blocks: blocks}, cfg.cache)
	return fsys, nil
}

// decodeSectionPayload strips the uncompressed-size prefix (section
// section.EncodePayload/DecodePayload) and fully drains the configured
// codec's framed decompressor, for the small, eagerly-read sections
// (schema, metadata, history) that don't go through the block cache.
func decodeSectionPayload(sp sectionPayload) ([]byte, error) {
	rawSize, compressed, err := section.DecodePayload(sp.payload)
	if err != nil {
		return nil, err
	}
	factory, ok := compressor.Lookup(sp.compression)
	if !ok {
		return nil, fmt.Errorf("unknown compression type %d", sp.compression)
	}
	dec, err := factory.NewDecompressor(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	buf := make([]byte, rawSize)
	if err := dec.Start(buf, rawSize); err != nil {
		return nil, err
	}
	if _, err := dec.DecompressFrame(rawSize); err != nil {
		return nil, err
	}
	return buf, nil
}

// blockFetcher adapts the section framing to blockcache.Fetcher: opening a
// BLOCK section means reading its (still codec-compressed) payload and
// handing the block cache a ready-to-drive Decompressor, so the cache
// itself never has to know about sections or the codec registry.
type blockFetcher struct {
	parser *section.Parser
	blocks []section.Section
}

func (f *blockFetcher) Open(_ context.Context, blockNo int) (blockcache.Decompressor, int, error) {
	if blockNo < 0 || blockNo >= len(f.blocks) {
		return nil, 0, fmt.Errorf("reader: block %d out of range (image has %d blocks)", blockNo, len(f.blocks))
	}
	s := f.blocks[blockNo]
	payload, err := f.parser.ReadPayload(&s)
	if err != nil {
		return nil, 0, err
	}
	if !f.parser.VerifyFast(&s, payload) {
		return nil, 0, fmt.Errorf("block %d: fast checksum mismatch", blockNo)
	}
	rawSize, compressed, err := section.DecodePayload(payload)
	if err != nil {
		return nil, 0, err
	}
	factory, ok := compressor.Lookup(s.Compression)
	if !ok {
		return nil, 0, fmt.Errorf("block %d: unknown compression type %d", blockNo, s.Compression)
	}
	dec, err := factory.NewDecompressor(bytes.NewReader(compressed))
	if err != nil {
		return nil, 0, err
	}
	return dec, rawSize, nil
}

// History returns the image's append-only provenance log (SPEC_FULL.md's
// HISTORY section restoration), oldest entry first.
func (fsys *FileSystem) History() []HistoryEntry { return fsys.history }

// Close releases nothing and always returns nil; the block cache's buffers
// are left as they are. It does not close the underlying io.ReaderAt, which
// Open never took ownership of.
func (fsys *FileSystem) Close() error {
	return nil
}

func (fsys *FileSystem) resolve(name string) (metadata.InodeView, error) {
	if !fs.ValidPath(name) {
		return metadata.InodeView{}, &fs.PathError{Op: "resolve", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return fsys.meta.Root(), nil
	}
	v, err := fsys.meta.Resolve(name)
	if err != nil {
		return metadata.InodeView{}, &fs.PathError{Op: "resolve", Path: name, Err: fs.ErrNotExist}
	}
	return v, nil
}

func (fsys *FileSystem) fileInfo(name string, v metadata.InodeView) fs.FileInfo {
	base := path.Base(name)
	if name == "." {
		base = "."
	}
	return &inodeFileInfo{fsys: fsys, name: base, v: v}
}

// Open implements fs.FS.
func (fsys *FileSystem) Open(name string) (fs.File, error) {
	v, err := fsys.resolve(name)
	if err != nil {
		return nil, err
	}
	info := fsys.fileInfo(name, v)

	if v.Type() == dwarfs.InodeDir {
		entries, err := fsys.dirEntries(name, v)
		if err != nil {
			return nil, err
		}
		return &openDir{info: info, entries: entries}, nil
	}

	cr, err := fsys.newChunkReader(v)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &openFile{info: info, sr: io.NewSectionReader(cr, 0, cr.size)}, nil
}

// Stat implements fs.StatFS.
func (fsys *FileSystem) Stat(name string) (fs.FileInfo, error) {
	v, err := fsys.resolve(name)
	if err != nil {
		return nil, err
	}
	return fsys.fileInfo(name, v), nil
}

// Find is the filesystem_v2 alias for Stat spec section 6 names alongside
// it.
func (fsys *FileSystem) Find(path string) (fs.FileInfo, error) { return fsys.Stat(path) }

func (fsys *FileSystem) dirEntries(dirPath string, v metadata.InodeView) ([]fs.DirEntry, error) {
	children, err := fsys.meta.ReadDir(v.Ino)
	if err != nil {
		return nil, err
	}
	out := make([]fs.DirEntry, len(children))
	for i, c := range children {
		cv := fsys.meta.Inode(c.Inode())
		out[i] = &dirEntry{fsys: fsys, info: &inodeFileInfo{fsys: fsys, name: c.Name(), v: cv}}
	}
	return out, nil
}

// ReadDir implements fs.ReadDirFS.
func (fsys *FileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	v, err := fsys.resolve(name)
	if err != nil {
		return nil, err
	}
	if v.Type() != dwarfs.InodeDir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fmt.Errorf("not a directory")}
	}
	entries, err := fsys.dirEntries(name, v)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// Readlink returns inode path's symlink target, adjusted per mode (spec
// section 4.5).
func (fsys *FileSystem) Readlink(name string, mode dwarfs.ReadlinkMode) (string, error) {
	v, err := fsys.resolve(name)
	if err != nil {
		return "", err
	}
	if v.Type() != dwarfs.InodeSymlink {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: fmt.Errorf("not a symlink")}
	}
	return fsys.meta.Readlink(v.Ino, mode)
}

// ReadAt reads len(p) bytes of path's content starting at off, per spec
// section 6's filesystem_v2 random-access read contract.
func (fsys *FileSystem) ReadAt(name string, p []byte, off int64) (int, error) {
	v, err := fsys.resolve(name)
	if err != nil {
		return 0, err
	}
	if v.Type() != dwarfs.InodeRegular {
		return 0, &fs.PathError{Op: "read", Path: name, Err: fmt.Errorf("not a regular file")}
	}
	cr, err := fsys.newChunkReader(v)
	if err != nil {
		return 0, err
	}
	return cr.ReadAt(p, off)
}

// Walk visits every path in the image, depth-first pre-order, the
// filesystem_v2 "walk(callback)" contract (spec section 6). Grounded on
// the teacher's recursive list_squashfs.go walker, generalized to
// io/fs.WalkDir's standard shape instead of a bespoke recursive function.
func (fsys *FileSystem) Walk(fn fs.WalkDirFunc) error {
	return fs.WalkDir(fsys, ".", fn)
}

// Dump produces fsck-style diagnostics (spec section 6 names dump(level)
// without detailing it; SPEC_FULL.md section 9 grounds this on the
// teacher's cmd/sqfs showInfo/countFilesAndDirs): level 0 is a schema
// summary, level >= 1 adds the block count and one line per history entry,
// level >= 2 adds a full depth-first listing of every path with its type
// and byte size.
func (fsys *FileSystem) Dump(level int) (string, error) {
	var b strings.Builder
	s := fsys.meta.Schema()
	fmt.Fprintf(&b, "inodes: %d dirs: %d files: %d symlinks: %d shared_files: %d\n",
		s.NumInodes, s.NumDirs, s.NumFiles, s.NumSymlinks, s.NumSharedFiles)

	if level >= 1 {
		fmt.Fprintf(&b, "blocks: %d\n", fsys.numBlocks)
		for _, h := range fsys.history {
			fmt.Fprintf(&b, "history: %s tool=%s args=%v\n", time.Unix(h.Timestamp, 0).UTC(), h.Tool, h.Args)
		}
	}

	if level >= 2 {
		err := fsys.Walk(func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				fmt.Fprintf(&b, "DIR  %s\n", p)
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			fmt.Fprintf(&b, "%-4s %s (%d bytes)\n", typeLabel(info), p, info.Size())
			return nil
		})
		if err != nil {
			return b.String(), err
		}
	}
	return b.String(), nil
}

func typeLabel(info fs.FileInfo) string {
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return "LNK"
	case info.Mode()&fs.ModeDevice != 0:
		return "DEV"
	default:
		return "REG"
	}
}
