package writer

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"io/fs"

	"github.com/dwarfs-go/dwarfs"
	"github.com/dwarfs-go/dwarfs/compressor"
	"github.com/dwarfs-go/dwarfs/section"
	"github.com/dwarfs-go/dwarfs/writer/internal/blockmanager"
	"github.com/dwarfs-go/dwarfs/writer/internal/segmenter"
)

// HistoryEntry is one record of the HISTORY section's append-only log:
// spec.md lists HISTORY as a section kind without describing its payload;
// this shape (timestamp, tool, args, version) is the provenance record
// SPEC_FULL.md section 9 restores from that gap. Writer.Finalize appends
// exactly one entry per call.
type HistoryEntry struct {
	Timestamp int64
	Tool      string
	Args      []string
	Version   string
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithOrdering overrides the default inode-number ordering.
func WithOrdering(cfg OrderingConfig) WriterOption {
	return func(w *Writer) { w.ordering = cfg }
}

// WithSegmenterConfig overrides the default content-defined-chunking
// parameters (block size, window size, active-block count, ...).
func WithSegmenterConfig(cfg segmenter.Config) WriterOption {
	return func(w *Writer) { w.segConfig = cfg }
}

// WithCompression selects the codec BLOCK/SCHEMA/METADATA/HISTORY section
// payloads are compressed with. The codec must already be registered
// (compressor.Null always is; others register via their build-tag init).
func WithCompression(kind section.CompressionType) WriterOption {
	return func(w *Writer) { w.compression = kind }
}

// WithWriterLogger sets the logger Writer reports progress through.
func WithWriterLogger(l dwarfs.Logger) WriterOption {
	return func(w *Writer) { w.logger = l }
}

// WithScannerOptions forwards options to the Writer's internal Scanner
// (filters, transforms, categorizer, scanner logger).
func WithScannerOptions(opts ...ScannerOption) WriterOption {
	return func(w *Writer) { w.scanner = NewScanner(opts...) }
}

// WithHistory appends a HistoryEntry describing the tool/args that produced
// this image. Finalize overwrites Timestamp with the Writer's clock, which
// returns 0, and sets Version to "dwarfs-go" when it is empty, so callers
// only need to set Tool/Args here if they want them recorded.
func WithHistory(entry HistoryEntry) WriterOption {
	return func(w *Writer) { w.historyTemplate = entry }
}

// Writer orchestrates an entire image build: scan, order, segment, freeze,
// and interleave the resulting BLOCK/METADATA_V2_SCHEMA/METADATA_V2/HISTORY
// sections with a trailing SECTION_INDEX (spec section 2, 4.1, 6).
//
// Grounded on legacy/writer.go's Writer, whose Add/Finalize pair drove a
// single-pass SquashFS table build; generalized here into a pipeline of
// already-independent stages (Scanner, OrderEntries, segmenter.Segmenter,
// blockmanager.Manager, Freeze) that Finalize simply drives in sequence and
// whose outputs it frames into on-disk sections, rather than reimplementing
// any of those stages inline the way the teacher's monolithic Add did.
type Writer struct {
	dest io.Writer

	scanner         *Scanner
	ordering        OrderingConfig
	segConfig       segmenter.Config
	compression     section.CompressionType
	logger          dwarfs.Logger
	historyTemplate HistoryEntry

	written     int64
	nextSection uint32
	index       []section.IndexEntry

	timeNow func() int64
}

// NewWriter creates a Writer that streams a finished image to dest as
// Finalize runs.
func NewWriter(dest io.Writer, opts ...WriterOption) *Writer {
	w := &Writer{
		dest:        dest,
		scanner:     NewScanner(),
		ordering:    DefaultOrderingConfig(),
		segConfig:   segmenter.DefaultConfig(),
		compression: compressor.Null,
		logger:      dwarfs.NopLogger,
		timeNow:     func() int64 { return 0 },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Scanner exposes the Writer's internal Scanner so callers can drive
// multiple Scan/Add calls (e.g. from several source filesystems) before
// Finalize.
func (w *Writer) Scanner() *Scanner { return w.scanner }

// Add scans srcFS starting at root into the Writer's entry graph. It may be
// called more than once, e.g. to overlay several source trees.
func (w *Writer) Add(srcFS fs.FS, root string) error {
	return w.scanner.Scan(srcFS, root)
}

// Result is what Finalize returns once an image has been fully written.
type Result struct {
	Frozen    *Frozen
	Sections  []section.IndexEntry
	ImageSize int64
}

// Finalize runs the full scan -> order -> segment -> block-manager-remap ->
// freeze pipeline over whatever has been scanned so far, and writes the
// resulting BLOCK, METADATA_V2_SCHEMA, METADATA_V2, HISTORY, and
// SECTION_INDEX sections to dest in that order. It is a programming error
// to call Finalize twice on the same Writer.
func (w *Writer) Finalize() (*Result, error) {
	w.scanner.SortChildrenByName()

	reader := func(e *Entry) ([]byte, error) {
		f, err := e.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	ordered, err := OrderEntries(w.scanner.Entries(), w.ordering, reader)
	if err != nil {
		return nil, fmt.Errorf("writer: order entries: %w", err)
	}

	mgr := blockmanager.New()
	chunksByEntry := make(map[*Entry][]segmenter.Chunk)

	var blockErr error
	seg := segmenter.New(w.segConfig, func(data []byte, logicalBlockNum int) {
		if blockErr != nil {
			return
		}
		// the segmenter and the manager both count logical blocks from
		// zero, one call per finished block, so the two counters stay in
		// lockstep as long as every NextLogicalBlock call happens here,
		// immediately before the block is actually written.
		written := mgr.NextLogicalBlock()
		if _, err := w.writeSection(section.KindBlock, data); err != nil {
			blockErr = fmt.Errorf("writer: write block %d: %w", logicalBlockNum, err)
			return
		}
		mgr.SetWrittenBlock(written, written, "default")
	})

	for _, e := range ordered {
		if e.Type != dwarfs.InodeRegular || e.DedupOf != nil {
			continue
		}
		f, err := e.Open()
		if err != nil {
			return nil, fmt.Errorf("writer: open %s: %w", e.Path, err)
		}
		chunks, err := seg.AddChunkable(&entryChunkable{f, e.Size})
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("writer: segment %s: %w", e.Path, err)
		}
		chunksByEntry[e] = chunks
	}
	seg.Finish()
	if blockErr != nil {
		return nil, blockErr
	}

	for _, chunks := range chunksByEntry {
		bmChunks := make([]blockmanager.Chunk, len(chunks))
		for i, c := range chunks {
			bmChunks[i] = blockmanager.Chunk{Block: c.Block, Hole: c.Hole}
		}
		mgr.MapLogicalBlocks(bmChunks)
		for i := range chunks {
			chunks[i].Block = bmChunks[i].Block
		}
	}

	frozen, err := Freeze(w.scanner.Root(), ordered, chunksByEntry)
	if err != nil {
		return nil, fmt.Errorf("writer: freeze metadata: %w", err)
	}

	if _, err := w.writeSection(section.KindMetadataV2Schema, frozen.SchemaBytes); err != nil {
		return nil, fmt.Errorf("writer: write schema section: %w", err)
	}
	if _, err := w.writeSection(section.KindMetadataV2, frozen.DataBytes); err != nil {
		return nil, fmt.Errorf("writer: write metadata section: %w", err)
	}

	historyPayload, err := w.encodeHistory()
	if err != nil {
		return nil, fmt.Errorf("writer: encode history: %w", err)
	}
	if _, err := w.writeSection(section.KindHistory, historyPayload); err != nil {
		return nil, fmt.Errorf("writer: write history section: %w", err)
	}

	indexPayload := section.EncodeIndex(w.index)
	if _, err := w.writeSection(section.KindSectionIndex, indexPayload); err != nil {
		return nil, fmt.Errorf("writer: write section index: %w", err)
	}

	w.logger.Printf("dwarfs: wrote image, %d sections, %d bytes", w.nextSection, w.written)
	return &Result{Frozen: frozen, Sections: w.index, ImageSize: w.written}, nil
}

// encodeHistory gob-encodes a single HistoryEntry slice containing the
// caller's template entry (if any tool/args were set), its Timestamp taken
// from w.timeNow (always 0) and its Version defaulted to "dwarfs-go" when
// unset. Grounded on SPEC_FULL.md's decision to use
// encoding/gob for this small, write-once, reader-optional log rather than
// inventing a bespoke binary layout.
func (w *Writer) encodeHistory() ([]byte, error) {
	entry := w.historyTemplate
	entry.Timestamp = w.timeNow()
	if entry.Version == "" {
		entry.Version = "dwarfs-go"
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode([]HistoryEntry{entry}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeSection compresses raw with the Writer's configured codec, frames it
// in a HeaderV2, writes header+payload to dest, records its IndexEntry, and
// advances the section counter and byte offset.
//
// Spec section 4.2 requires uncompressed_size to be "known up-front
// (encoded in the stream)"; this implementation encodes it as an 8-byte
// little-endian prefix ahead of the codec's own compressed bytes, so every
// codec (including null, whose compressed length already equals raw's)
// shares one on-disk convention instead of each codec needing its own way
// to recover the original size.
func (w *Writer) writeSection(kind section.Kind, raw []byte) (section.IndexEntry, error) {
	factory, ok := compressor.Lookup(w.compression)
	if !ok {
		factory, ok = compressor.Lookup(compressor.Null)
		if !ok {
			return 0, fmt.Errorf("writer: no codec registered, not even null")
		}
	}
	comp, err := factory.NewCompressor(nil)
	if err != nil {
		return 0, fmt.Errorf("writer: build compressor: %w", err)
	}
	compressed, err := comp.Compress(raw)
	if err != nil {
		return 0, fmt.Errorf("writer: compress %s section: %w", kind, err)
	}
	payload := section.EncodePayload(len(raw), compressed)

	h := &section.HeaderV2{
		Magic:       section.Magic,
		Major:       2,
		Minor:       0,
		SectionNum:  w.nextSection,
		Type:        uint16(kind),
		Compression: uint16(w.compression),
		Length:      uint64(len(payload)),
	}
	h.XXH3_64 = section.FastChecksum(h.SectionNum, h.Type, h.Compression, h.Length, payload)
	h.SHA512_256 = section.StrongChecksum(h.SectionNum, h.Type, h.Compression, h.Length, payload)

	hb, err := h.Encode()
	if err != nil {
		return 0, fmt.Errorf("writer: encode %s header: %w", kind, err)
	}

	offset := w.written
	if _, err := w.dest.Write(hb); err != nil {
		return 0, fmt.Errorf("writer: write %s header: %w", kind, err)
	}
	if _, err := w.dest.Write(payload); err != nil {
		return 0, fmt.Errorf("writer: write %s payload: %w", kind, err)
	}
	w.written += int64(len(hb)) + int64(len(payload))
	w.nextSection++

	entry := section.EncodeIndexEntry(kind, uint64(offset))
	w.index = append(w.index, entry)
	return entry, nil
}

// entryChunkable adapts an open fs.File plus its known size to the
// segmenter.Chunkable interface.
type entryChunkable struct {
	f    fs.File
	size int64
}

func (c *entryChunkable) Read(p []byte) (int, error) { return c.f.Read(p) }
func (c *entryChunkable) Size() int64                { return c.size }
