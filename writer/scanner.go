// Package writer builds DwarFS images: it scans a source tree, orders
// regular-file inodes, segments their content into deduplicated chunks, and
// freezes the result into the packed metadata the image format expects.
package writer

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"

	"github.com/dwarfs-go/dwarfs"
)

// Entry is one node of the scanner's in-memory entry graph: a single file,
// directory, symlink, or special file discovered while walking the source
// tree, plus the bookkeeping later pipeline stages need.
//
// Grounded on legacy/writer.go's writerInode, generalized with content-hash
// dedup (DedupOf) and a category label, and split out of the Writer type so
// the scanner can be exercised (and tested) independently of block
// segmentation and metadata freezing.
type Entry struct {
	Path string
	Name string

	Mode    fs.FileMode
	Type    dwarfs.InodeType
	Size    int64
	ModTime int64
	UID     uint32
	GID     uint32

	LinkTarget string // valid when Type == InodeSymlink
	Rdev       uint64 // valid when Type == InodeDevice

	Parent   *Entry
	Children []*Entry

	// ScanIndex is the order Add() first saw this entry in; it gives the
	// scanner's output a stable, deterministic secondary sort key before
	// inode ordering runs.
	ScanIndex uint32

	// Ino is the final dense inode number. It is left zero until Freeze
	// (writer/metadatafreezer.go) assigns it.
	Ino uint32

	// ContentHash is the sha256 of a regular file's bytes, computed at
	// most once per file during the scan (spec section 2's "at-most-once
	// hashing"). Zero for non-regular files.
	ContentHash [32]byte
	hashed      bool

	// DedupOf points to the first Entry seen with the same ContentHash.
	// It is nil for the canonical copy of each distinct content; the
	// segmenter only ever sees canonical entries, and duplicates are
	// wired directly to the canonical entry's eventual chunk list.
	DedupOf *Entry

	Category dwarfs.Category

	// SrcFS is the filesystem this entry's bytes (if regular) should be
	// read from, captured at Add time so a scanner can mix entries from
	// multiple source trees the way legacy/writer.go's SetSourceFS did.
	SrcFS fs.FS
}

// Open opens the entry's content for reading. It is only valid for regular
// files and panics otherwise, mirroring the scanner's own invariant that it
// never calls Open on anything else.
func (e *Entry) Open() (fs.File, error) {
	if e.Type != dwarfs.InodeRegular {
		panic("writer: Open called on a non-regular entry")
	}
	return e.SrcFS.Open(e.Path)
}

// Filter reports whether path/info should be included in the image. It
// returns false to skip the entry, and may also return an error to abort
// the scan entirely.
type Filter func(path string, info fs.FileInfo) (bool, error)

// Transform mutates an Entry in place after it is created but before it is
// linked into the entry graph — the hook spec section 2 calls "chmod/uid/gid
// transforms".
type Transform func(e *Entry)

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithFilter adds an include/exclude predicate. Filters run in the order
// they were added; the first one to return false excludes the entry.
func WithFilter(f Filter) ScannerOption {
	return func(s *Scanner) { s.filters = append(s.filters, f) }
}

// WithTransform adds a post-creation mutation hook. Transforms run in the
// order they were added.
func WithTransform(t Transform) ScannerOption {
	return func(s *Scanner) { s.transforms = append(s.transforms, t) }
}

// WithCategorizer overrides the default dwarfs.RawCategorizer.
func WithCategorizer(c dwarfs.Categorizer) ScannerOption {
	return func(s *Scanner) { s.categorizer = c }
}

// WithScannerLogger sets the logger the scanner reports skipped/deduped
// entries through. The default is dwarfs.NopLogger.
func WithScannerLogger(l dwarfs.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = l }
}

// Scanner walks a source tree and builds the entry graph spec section 2
// describes: filtered, transformed, content-deduplicated, with dense scan
// ordering ready for the inode orderer.
//
// Grounded on legacy/writer.go's Writer.Add, an fs.WalkDirFunc-compatible
// method that built an inodeMap/inodes list and parent-child links;
// generalized here into its own type so scanning is a pipeline stage
// independent of segmentation and serialization, with content hashing and
// filter/transform hooks the teacher's SquashFS writer never needed (its
// only dedup was SquashFS fragment packing, not whole-file hash dedup).
type Scanner struct {
	root   *Entry
	byPath map[string]*Entry

	filters     []Filter
	transforms  []Transform
	categorizer dwarfs.Categorizer
	logger      dwarfs.Logger

	nextScanIndex uint32
	contentHashes map[[32]byte]*Entry

	entries []*Entry // all entries in scan order, including root
}

// NewScanner creates an empty Scanner with just a root directory entry.
func NewScanner(opts ...ScannerOption) *Scanner {
	root := &Entry{
		Path: "",
		Name: "",
		Mode: fs.ModeDir | 0755,
		Type: dwarfs.InodeDir,
	}
	s := &Scanner{
		root:          root,
		byPath:        map[string]*Entry{"": root, ".": root},
		categorizer:   dwarfs.RawCategorizer{},
		logger:        dwarfs.NopLogger,
		contentHashes: make(map[[32]byte]*Entry),
		entries:       []*Entry{root},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the root directory entry.
func (s *Scanner) Root() *Entry { return s.root }

// Entries returns every entry discovered so far, in scan order (root
// first).
func (s *Scanner) Entries() []*Entry {
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Scan walks srcFS from root (conventionally ".") adding every entry it
// finds via Add.
func (s *Scanner) Scan(srcFS fs.FS, root string) error {
	return fs.WalkDir(srcFS, root, func(p string, d fs.DirEntry, err error) error {
		return s.Add(srcFS, p, d, err)
	})
}

// Add adds a single file or directory to the entry graph. It is compatible
// with fs.WalkDirFunc modulo the leading srcFS parameter, allowing
//
//	fs.WalkDir(srcFS, ".", func(p string, d fs.DirEntry, err error) error {
//		return scanner.Add(srcFS, p, d, err)
//	})
//
// The actual file content is not read except to compute ContentHash for
// regular files (done once here, not re-read later by the segmenter's
// dedup path — that's the "at-most-once hashing" spec section 2 names).
func (s *Scanner) Add(srcFS fs.FS, p string, d fs.DirEntry, err error) error {
	if err != nil {
		return err
	}
	if p == "." || p == "" {
		s.byPath[p] = s.root
		return nil
	}

	info, err := d.Info()
	if err != nil {
		return err
	}

	if len(s.filters) > 0 {
		for _, f := range s.filters {
			ok, ferr := f(p, info)
			if ferr != nil {
				return ferr
			}
			if !ok {
				s.logger.Debugf("writer: scanner skipping %s (filtered)", p)
				if info.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
		}
	}

	e := &Entry{
		Path:      p,
		Name:      info.Name(),
		Mode:      info.Mode(),
		Size:      info.Size(),
		ModTime:   info.ModTime().Unix(),
		SrcFS:     srcFS,
		ScanIndex: s.nextScanIndex,
	}
	s.nextScanIndex++
	e.Type = dwarfs.TypeOf(info.Mode())

	if sys := info.Sys(); sys != nil {
		if owned, ok := sys.(interface {
			Uid() uint32
			Gid() uint32
		}); ok {
			e.UID = owned.Uid()
			e.GID = owned.Gid()
		}
	}

	switch e.Type {
	case dwarfs.InodeDir:
		e.Children = make([]*Entry, 0)
	case dwarfs.InodeSymlink:
		target, lerr := fs.ReadLink(srcFS, p)
		if lerr != nil {
			return fmt.Errorf("writer: read symlink %s: %w", p, lerr)
		}
		e.LinkTarget = target
		e.Size = int64(len(target))
	case dwarfs.InodeRegular:
		if err := s.hashContent(e); err != nil {
			return fmt.Errorf("writer: hash %s: %w", p, err)
		}
	}

	for _, t := range s.transforms {
		t(e)
	}

	ranges, err := s.categorizer.Categorize(p, e.Size)
	if err != nil {
		return fmt.Errorf("writer: categorize %s: %w", p, err)
	}
	if len(ranges) > 0 {
		e.Category = ranges[0].Category
	}

	parentPath := parentOf(p)
	parent, ok := s.byPath[parentPath]
	if !ok {
		return fmt.Errorf("writer: parent directory not found for %s", p)
	}
	e.Parent = parent
	parent.Children = append(parent.Children, e)

	s.byPath[p] = e
	s.entries = append(s.entries, e)
	return nil
}

// hashContent computes e.ContentHash once and records whether an identical
// file was already seen, wiring e.DedupOf to the canonical entry if so.
func (s *Scanner) hashContent(e *Entry) error {
	f, err := e.SrcFS.Open(e.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	copy(e.ContentHash[:], h.Sum(nil))
	e.hashed = true

	if canonical, dup := s.contentHashes[e.ContentHash]; dup {
		e.DedupOf = canonical
		s.logger.Debugf("writer: scanner dedup %s -> %s", e.Path, canonical.Path)
	} else {
		s.contentHashes[e.ContentHash] = e
	}
	return nil
}

// parentOf mirrors legacy/writer.go's getParentPath: it returns the parent
// directory path for a slash-separated fs.FS path.
func parentOf(p string) string {
	if p == "" || p == "." {
		return ""
	}
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

// SortChildrenByName sorts every directory's children by name in place,
// giving deterministic directory-entry order independent of the
// filesystem's own readdir order. Grounded on legacy/writer.go's
// sortInodes, generalized to the whole tree rather than a single slice of
// serialized inodes.
func (s *Scanner) SortChildrenByName() {
	for _, e := range s.entries {
		if e.Type != dwarfs.InodeDir {
			continue
		}
		sort.Slice(e.Children, func(i, j int) bool {
			return e.Children[i].Name < e.Children[j].Name
		})
	}
}
