package writer

import (
	"fmt"
	"sort"

	"github.com/dwarfs-go/dwarfs"
	"github.com/dwarfs-go/dwarfs/internal/packedint"
	"github.com/dwarfs-go/dwarfs/reader/metadata"
	"github.com/dwarfs-go/dwarfs/writer/internal/segmenter"
)

// largeHoleThreshold is the sparse-file hole size above which a hole's
// length is pushed into the large-hole side table instead of stored inline
// in chunkSize: inline holes share chunkSize's bit width with every literal
// chunk, and a single multi-gigabyte hole would otherwise force that width
// wide enough to bloat every other chunk in the image.
const largeHoleThreshold = uint64(1) << 32

// Frozen bundles the in-process metadata view together with the exact bytes
// writer/writer.go embeds into the SCHEMA and METADATA sections, and the
// inode numbers assigned to each scanned Entry.
type Frozen struct {
	Metadata    *metadata.Metadata
	SchemaBytes []byte
	DataBytes   []byte

	// InoOf maps every frozen Entry to its dense inode number, for callers
	// that need to relate image-relative state (e.g. a path->entry index)
	// back to inode numbers after freezing.
	InoOf map[*Entry]uint32
}

// Freeze assigns dense inode numbers to every entry reachable from root,
// and packs the whole tree into the schema + data region layout
// reader/metadata.Decode expects.
//
// ordered is the output of OrderEntries: canonical regular files (with
// their dedup siblings interleaved immediately after) grouped by category
// and sorted per the chosen Ordering, with every non-regular entry appended
// afterward in scan-relative order. Freeze re-buckets that same slice by
// type rank (spec section 3: DIR, LNK, REG, DEV, OTH) rather than using it
// as the final inode order directly, pinning root first among directories.
//
// chunksByEntry must hold every canonical regular Entry's post-segmentation,
// block-manager-remapped chunk list (deduped entries never appear as keys:
// they share their canonical entry's chunks via the shared-files table).
//
// Grounded on legacy/writer.go's buildInodeTableToBuffer fixed-point pass
// (assign inode numbers, build directory tables, repeat) generalized from a
// single fixed-width SquashFS inode table to dense per-type-rank numbering
// feeding bit-packed variable-width arrays (internal/packedint).
func Freeze(root *Entry, ordered []*Entry, chunksByEntry map[*Entry][]segmenter.Chunk) (*Frozen, error) {
	dirs, symlinks, regulars, devices, others := bucketByType(root, ordered)
	final := make([]*Entry, 0, 1+len(ordered))
	final = append(final, dirs...)
	final = append(final, symlinks...)
	final = append(final, regulars...)
	final = append(final, devices...)
	final = append(final, others...)

	inoOf := make(map[*Entry]uint32, len(final))
	for i, e := range final {
		e.Ino = uint32(i)
		inoOf[e] = uint32(i)
	}

	for _, d := range dirs {
		sort.Slice(d.Children, func(i, j int) bool { return d.Children[i].Name < d.Children[j].Name })
	}

	dirIndexOf := indexOf(dirs)
	fileIndexOf, sharedOf, sharedFilesValues := buildFileIndex(regulars)

	uidValues, uidIdxOf := internUint32(final, func(e *Entry) uint32 { return e.UID })
	gidValues, gidIdxOf := internUint32(final, func(e *Entry) uint32 { return e.GID })
	modeValues, modeIdxOf := internUint32(final, func(e *Entry) uint32 { return dwarfs.ModeToUnix(e.Mode) })

	mtimeBase := minModTime(final)

	names, nameIdxOf := internNames(final)
	symlinkTable, symlinkIdxOf := internSymlinks(symlinks)

	inodeModeIdx := make([]uint64, len(final))
	inodeUIDIdx := make([]uint64, len(final))
	inodeGIDIdx := make([]uint64, len(final))
	inodeMTime := make([]uint64, len(final))
	inodeTail := make([]uint64, len(final))

	for i, e := range final {
		inodeModeIdx[i] = uint64(modeIdxOf[e])
		inodeUIDIdx[i] = uint64(uidIdxOf[e])
		inodeGIDIdx[i] = uint64(gidIdxOf[e])
		inodeMTime[i] = uint64(e.ModTime - mtimeBase)

		switch e.Type {
		case dwarfs.InodeDir:
			inodeTail[i] = uint64(dirIndexOf[e])
		case dwarfs.InodeSymlink:
			inodeTail[i] = uint64(symlinkIdxOf[e])
		case dwarfs.InodeRegular:
			if e.DedupOf == nil {
				inodeTail[i] = uint64(fileIndexOf[e])
			} else {
				inodeTail[i] = uint64(len(regulars)) // placeholder, fixed below
			}
		case dwarfs.InodeDevice:
			inodeTail[i] = e.Rdev
		}
	}
	// second pass: dedup entries' tail = NumFiles + shared-table index,
	// computed after fileIndexOf/sharedOf (both already built above) since
	// NumFiles is only known once every canonical file has an index.
	numFiles := len(fileIndexOf)
	for i, e := range final {
		if e.Type == dwarfs.InodeRegular && e.DedupOf != nil {
			inodeTail[i] = uint64(numFiles + sharedOf[e])
		}
	}

	dirFirstEntry, dirEntryName, dirEntryInode, err := buildDirTables(dirs, inoOf, nameIdxOf)
	if err != nil {
		return nil, err
	}

	chunkTable, chunkBlock, chunkOffset, chunkSize, chunkIsHole, chunkIsLargeHole, largeHoleSizes, err :=
		buildChunkTables(regulars, chunksByEntry)
	if err != nil {
		return nil, err
	}

	schema := metadata.Schema{
		NumInodes:      uint32(len(final)),
		NumDirs:        uint32(len(dirs)),
		NumDirEntries:  uint32(len(dirEntryName)),
		NumFiles:       uint32(numFiles),
		NumChunks:      uint32(len(chunkBlock)),
		NumUIDs:        uint32(len(uidValues)),
		NumGIDs:        uint32(len(gidValues)),
		NumModes:       uint32(len(modeValues)),
		NumNames:       uint32(names.Len()),
		NumSymlinks:    uint32(symlinkTable.Len()),
		NumSharedFiles: uint32(len(sharedFilesValues)),
		NumLargeHoles:  uint32(len(largeHoleSizes)),
		MTimeBase:      mtimeBase,
	}

	uidsArr := packedint.BuildArray(uidValues)
	gidsArr := packedint.BuildArray(gidValues)
	modesArr := packedint.BuildArray(modeValues)
	inodeModeIdxArr := packedint.BuildArray(inodeModeIdx)
	inodeUIDIdxArr := packedint.BuildArray(inodeUIDIdx)
	inodeGIDIdxArr := packedint.BuildArray(inodeGIDIdx)
	inodeMTimeArr := packedint.BuildArray(inodeMTime)
	inodeTailArr := packedint.BuildArray(inodeTail)
	dirFirstEntryArr := packedint.BuildArray(dirFirstEntry)
	dirEntryNameArr := packedint.BuildArray(dirEntryName)
	dirEntryInodeArr := packedint.BuildArray(dirEntryInode)
	chunkTableArr := packedint.BuildArray(chunkTable)
	chunkBlockArr := packedint.BuildArray(chunkBlock)
	chunkOffsetArr := packedint.BuildArray(chunkOffset)
	chunkSizeArr := packedint.BuildArray(chunkSize)
	chunkIsHoleArr := packedint.NewArray(1, len(chunkIsHole))
	for i, v := range chunkIsHole {
		if v {
			chunkIsHoleArr.Set(i, 1)
		}
	}
	chunkIsLargeHoleArr := packedint.NewArray(1, len(chunkIsLargeHole))
	for i, v := range chunkIsLargeHole {
		if v {
			chunkIsLargeHoleArr.Set(i, 1)
		}
	}
	sharedFilesArr := packedint.BuildArray(sharedFilesValues)
	largeHoleSizesArr := packedint.BuildArray(largeHoleSizes)

	schema.UIDValueWidth = uint8(uidsArr.BitWidth())
	schema.GIDValueWidth = uint8(gidsArr.BitWidth())
	schema.ModeValueWidth = uint8(modesArr.BitWidth())
	schema.InodeModeIdxWidth = uint8(inodeModeIdxArr.BitWidth())
	schema.InodeUIDIdxWidth = uint8(inodeUIDIdxArr.BitWidth())
	schema.InodeGIDIdxWidth = uint8(inodeGIDIdxArr.BitWidth())
	schema.InodeMTimeWidth = uint8(inodeMTimeArr.BitWidth())
	schema.InodeTailWidth = uint8(inodeTailArr.BitWidth())
	schema.ChunkBlockWidth = uint8(chunkBlockArr.BitWidth())
	schema.ChunkOffsetWidth = uint8(chunkOffsetArr.BitWidth())
	schema.ChunkSizeWidth = uint8(chunkSizeArr.BitWidth())
	schema.ChunkTableWidth = uint8(chunkTableArr.BitWidth())
	schema.DirFirstEntryWidth = uint8(dirFirstEntryArr.BitWidth())
	schema.DirEntryNameWidth = uint8(dirEntryNameArr.BitWidth())
	schema.DirEntryInodeWidth = uint8(dirEntryInodeArr.BitWidth())
	schema.NameOffsetWidth = uint8(names.OffsetWidth())
	schema.SymlinkOffsetWidth = uint8(symlinkTable.OffsetWidth())
	schema.SharedFilesWidth = uint8(sharedFilesArr.BitWidth())
	schema.LargeHoleSizeWidth = uint8(largeHoleSizesArr.BitWidth())

	view := metadata.New(schema, uidsArr, gidsArr, modesArr, names, symlinkTable,
		inodeModeIdxArr, inodeUIDIdxArr, inodeGIDIdxArr, inodeMTimeArr, inodeTailArr,
		dirFirstEntryArr, dirEntryNameArr, dirEntryInodeArr,
		chunkTableArr, chunkBlockArr, chunkOffsetArr, chunkSizeArr, chunkIsHoleArr, chunkIsLargeHoleArr,
		sharedFilesArr, largeHoleSizesArr)

	schemaBytes, err := schema.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("writer: marshal schema: %w", err)
	}

	var data []byte
	for _, b := range [][]byte{
		uidsArr.Bytes(), gidsArr.Bytes(), modesArr.Bytes(),
		names.Encode(), symlinkTable.Encode(),
		inodeModeIdxArr.Bytes(), inodeUIDIdxArr.Bytes(), inodeGIDIdxArr.Bytes(),
		inodeMTimeArr.Bytes(), inodeTailArr.Bytes(),
		dirFirstEntryArr.Bytes(), dirEntryNameArr.Bytes(), dirEntryInodeArr.Bytes(),
		chunkTableArr.Bytes(), chunkBlockArr.Bytes(), chunkOffsetArr.Bytes(), chunkSizeArr.Bytes(),
		chunkIsHoleArr.Bytes(), chunkIsLargeHoleArr.Bytes(),
		sharedFilesArr.Bytes(), largeHoleSizesArr.Bytes(),
	} {
		data = append(data, b...)
	}

	return &Frozen{Metadata: view, SchemaBytes: schemaBytes, DataBytes: data, InoOf: inoOf}, nil
}

// bucketByType splits ordered (plus root) into the five type-rank buckets,
// preserving ordered's relative order within each bucket and pinning root
// first among directories.
func bucketByType(root *Entry, ordered []*Entry) (dirs, symlinks, regulars, devices, others []*Entry) {
	dirs = append(dirs, root)
	for _, e := range ordered {
		switch e.Type {
		case dwarfs.InodeDir:
			dirs = append(dirs, e)
		case dwarfs.InodeSymlink:
			symlinks = append(symlinks, e)
		case dwarfs.InodeRegular:
			regulars = append(regulars, e)
		case dwarfs.InodeDevice:
			devices = append(devices, e)
		default:
			others = append(others, e)
		}
	}
	return dirs, symlinks, regulars, devices, others
}

func indexOf(entries []*Entry) map[*Entry]int {
	m := make(map[*Entry]int, len(entries))
	for i, e := range entries {
		m[e] = i
	}
	return m
}

// buildFileIndex assigns a dense index to every canonical regular file (in
// regulars' order) and, for each deduped entry, a shared-files-table slot
// pointing at its canonical's file index. Multiple dedup entries of the
// same canonical reuse one slot.
func buildFileIndex(regulars []*Entry) (fileIndexOf map[*Entry]int, sharedOf map[*Entry]int, sharedFilesValues []uint64) {
	fileIndexOf = make(map[*Entry]int)
	sharedOf = make(map[*Entry]int)
	canonicalShared := make(map[*Entry]int)

	next := 0
	for _, e := range regulars {
		if e.DedupOf == nil {
			fileIndexOf[e] = next
			next++
		}
	}
	for _, e := range regulars {
		if e.DedupOf == nil {
			continue
		}
		idx, ok := canonicalShared[e.DedupOf]
		if !ok {
			idx = len(sharedFilesValues)
			sharedFilesValues = append(sharedFilesValues, uint64(fileIndexOf[e.DedupOf]))
			canonicalShared[e.DedupOf] = idx
		}
		sharedOf[e] = idx
	}
	return fileIndexOf, sharedOf, sharedFilesValues
}

// internUint32 collects the distinct values get(e) takes across entries, in
// first-seen order, and returns both the value table and a per-entry index
// into it.
func internUint32(entries []*Entry, get func(*Entry) uint32) (values []uint64, idxOf map[*Entry]int) {
	idxOf = make(map[*Entry]int, len(entries))
	seen := make(map[uint32]int)
	for _, e := range entries {
		v := get(e)
		idx, ok := seen[v]
		if !ok {
			idx = len(values)
			values = append(values, uint64(v))
			seen[v] = idx
		}
		idxOf[e] = idx
	}
	return values, idxOf
}

// internNames builds the shared name string table every directory entry
// indexes into, deduping identical names (e.g. common extensions) in
// first-seen order across final's inode order.
func internNames(entries []*Entry) (*metadata.StringTable, map[*Entry]int) {
	var strs []string
	seen := make(map[string]int)
	idxOf := make(map[*Entry]int, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue // root carries no directory-entry name
		}
		idx, ok := seen[e.Name]
		if !ok {
			idx = len(strs)
			strs = append(strs, e.Name)
			seen[e.Name] = idx
		}
		idxOf[e] = idx
	}
	return metadata.BuildStringTable(strs), idxOf
}

// internSymlinks builds the symlink-target string table, deduping identical
// targets the same way internNames dedups names.
func internSymlinks(symlinks []*Entry) (*metadata.StringTable, map[*Entry]int) {
	var strs []string
	seen := make(map[string]int)
	idxOf := make(map[*Entry]int, len(symlinks))
	for _, e := range symlinks {
		idx, ok := seen[e.LinkTarget]
		if !ok {
			idx = len(strs)
			strs = append(strs, e.LinkTarget)
			seen[e.LinkTarget] = idx
		}
		idxOf[e] = idx
	}
	return metadata.BuildStringTable(strs), idxOf
}

func minModTime(entries []*Entry) int64 {
	if len(entries) == 0 {
		return 0
	}
	min := entries[0].ModTime
	for _, e := range entries[1:] {
		if e.ModTime < min {
			min = e.ModTime
		}
	}
	return min
}

// buildDirTables lays out every directory's sorted children back-to-back,
// recording each directory's starting offset into the concatenated arrays.
func buildDirTables(dirs []*Entry, inoOf map[*Entry]uint32, nameIdxOf map[*Entry]int) (dirFirstEntry, dirEntryName, dirEntryInode []uint64, err error) {
	dirFirstEntry = make([]uint64, len(dirs)+1)
	for i, d := range dirs {
		dirFirstEntry[i] = uint64(len(dirEntryName))
		for _, c := range d.Children {
			nameIdx, ok := nameIdxOf[c]
			if !ok {
				return nil, nil, nil, fmt.Errorf("writer: child %s has no interned name", c.Path)
			}
			ino, ok := inoOf[c]
			if !ok {
				return nil, nil, nil, fmt.Errorf("writer: child %s was never assigned an inode", c.Path)
			}
			dirEntryName = append(dirEntryName, uint64(nameIdx))
			dirEntryInode = append(dirEntryInode, uint64(ino))
		}
	}
	dirFirstEntry[len(dirs)] = uint64(len(dirEntryName))
	return dirFirstEntry, dirEntryName, dirEntryInode, nil
}

// buildChunkTables concatenates every canonical regular file's chunk list,
// in regulars' (dense file index) order, splitting sparse holes into the
// inline vs. large-hole-table representation view.go expects.
func buildChunkTables(regulars []*Entry, chunksByEntry map[*Entry][]segmenter.Chunk) (
	chunkTable, chunkBlock, chunkOffset, chunkSize []uint64,
	chunkIsHole, chunkIsLargeHole []bool,
	largeHoleSizes []uint64,
	err error,
) {
	chunkTable = append(chunkTable, 0)
	for _, e := range regulars {
		if e.DedupOf != nil {
			continue
		}
		chunks, ok := chunksByEntry[e]
		if !ok {
			return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("writer: no chunks recorded for %s", e.Path)
		}
		for _, c := range chunks {
			if c.Hole {
				if c.Size >= largeHoleThreshold {
					idx := uint64(len(largeHoleSizes))
					largeHoleSizes = append(largeHoleSizes, c.Size)
					chunkBlock = append(chunkBlock, 0)
					chunkOffset = append(chunkOffset, 0)
					chunkSize = append(chunkSize, idx)
					chunkIsLargeHole = append(chunkIsLargeHole, true)
				} else {
					chunkBlock = append(chunkBlock, 0)
					chunkOffset = append(chunkOffset, 0)
					chunkSize = append(chunkSize, c.Size)
					chunkIsLargeHole = append(chunkIsLargeHole, false)
				}
				chunkIsHole = append(chunkIsHole, true)
				continue
			}
			chunkBlock = append(chunkBlock, uint64(c.Block))
			chunkOffset = append(chunkOffset, c.Offset)
			chunkSize = append(chunkSize, c.Size)
			chunkIsHole = append(chunkIsHole, false)
			chunkIsLargeHole = append(chunkIsLargeHole, false)
		}
		chunkTable = append(chunkTable, uint64(len(chunkBlock)))
	}
	return chunkTable, chunkBlock, chunkOffset, chunkSize, chunkIsHole, chunkIsLargeHole, largeHoleSizes, nil
}
