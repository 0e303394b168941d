package section

import (
	"fmt"
	"io"
)

// OffsetMode selects how the image's start offset is determined (spec
// section 4.1's "Image offset discovery").
type OffsetMode int

const (
	// OffsetAuto scans the backing bytes for the first well-formed header
	// whose declared length keeps the section inside the backing range.
	OffsetAuto OffsetMode = iota
	// OffsetZero forces offset 0 (no scanning).
	OffsetZero
	// OffsetExplicit uses a caller-supplied offset, stored separately.
	OffsetExplicit
)

// maxProbe bounds how far OffsetAuto scans looking for a valid header
// before giving up; real images have the header within the first few
// dozen bytes (prepended shell scripts etc. are the common case this
// accommodates, as in the dwarfs universal binary driver).
const maxProbe = 4 << 20

// headerMajor distinguishes which header shape is present at a candidate
// offset: this implementation uses the major version byte immediately
// following the magic, major==1 selecting the 20-byte HeaderV1 shape and
// major==2 selecting the 64-byte HeaderV2 shape (spec section 4.1 names
// "two header shapes" but does not say how a reader distinguishes them;
// this is the natural, minimal discriminator and is recorded here rather
// than in DESIGN.md since it is an inference, not a genuine ambiguity).
func headerMajor(b []byte) (uint8, bool) {
	if len(b) < 7 {
		return 0, false
	}
	for i := 0; i < 6; i++ {
		if b[i] != Magic[i] {
			return 0, false
		}
	}
	return b[6], true
}

// DiscoverOffset implements spec section 4.1's image offset discovery.
func DiscoverOffset(r io.ReaderAt, size int64, mode OffsetMode, explicit int64) (int64, error) {
	switch mode {
	case OffsetZero:
		return 0, nil
	case OffsetExplicit:
		return explicit, nil
	}

	limit := size
	if limit > maxProbe {
		limit = maxProbe
	}

	probe := make([]byte, SizeV2())
	for off := int64(0); off+7 <= limit; off++ {
		n, err := r.ReadAt(probe[:min64(int64(len(probe)), size-off)], off)
		if n < 7 {
			if err != nil && err != io.EOF {
				continue
			}
			continue
		}
		major, ok := headerMajor(probe[:n])
		if !ok {
			continue
		}
		var length uint64
		var headerSize int
		switch major {
		case 1:
			if n < SizeV1() {
				continue
			}
			h, err := DecodeHeaderV1(probe[:SizeV1()])
			if err != nil {
				continue
			}
			length, headerSize = h.Length, SizeV1()
		case 2:
			if n < SizeV2() {
				continue
			}
			h, err := DecodeHeaderV2(probe[:SizeV2()])
			if err != nil {
				continue
			}
			length, headerSize = h.Length, SizeV2()
		default:
			continue
		}
		if off+int64(headerSize)+int64(length) <= size {
			return off, nil
		}
	}
	return 0, fmt.Errorf("section: no well-formed header found while auto-detecting image offset")
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Parser walks the sections of an image starting at a known image offset,
// either via the tail SECTION_INDEX or sequentially (spec section 4.1).
// Walking does not verify checksums; callers check a section with
// VerifyFast/VerifyStrong. Grounded on the
// teacher's tableReader cursor (legacy/tablereader.go), generalized from a
// fixed-size metadata block cursor to variable-length, self-describing
// sections.
type Parser struct {
	r           io.ReaderAt
	size        int64
	imageOffset int64
}

// NewParser creates a Parser over r, whose total backing size is size,
// starting at imageOffset (as previously resolved by DiscoverOffset).
func NewParser(r io.ReaderAt, size, imageOffset int64) *Parser {
	return &Parser{r: r, size: size, imageOffset: imageOffset}
}

// readHeaderAt reads whichever header shape is present at off, returning
// the decoded Section (without payload) and the offset of its payload.
func (p *Parser) readHeaderAt(off int64) (*Section, error) {
	probe := make([]byte, SizeV2())
	n, err := p.r.ReadAt(probe, off)
	if err != nil && err != io.EOF {
		return nil, err
	}
	major, ok := headerMajor(probe[:n])
	if !ok {
		return nil, fmt.Errorf("section: bad header at offset %d", off)
	}
	switch major {
	case 1:
		if n < SizeV1() {
			return nil, fmt.Errorf("section: truncated v1 header at offset %d", off)
		}
		h, err := DecodeHeaderV1(probe[:SizeV1()])
		if err != nil {
			return nil, err
		}
		return &Section{
			Kind:          Kind(h.Type),
			Compression:   CompressionType(h.Compression),
			Length:        h.Length,
			Offset:        off,
			PayloadOffset: off + int64(SizeV1()),
		}, nil
	case 2:
		if n < SizeV2() {
			return nil, fmt.Errorf("section: truncated v2 header at offset %d", off)
		}
		h, err := DecodeHeaderV2(probe[:SizeV2()])
		if err != nil {
			return nil, err
		}
		return &Section{
			Number:        h.SectionNum,
			Kind:          Kind(h.Type),
			Compression:   CompressionType(h.Compression),
			Length:        h.Length,
			XXH3_64:       h.XXH3_64,
			SHA512_256:    h.SHA512_256,
			Offset:        off,
			PayloadOffset: off + int64(SizeV2()),
		}, nil
	default:
		return nil, fmt.Errorf("section: unsupported header major version %d at offset %d", major, off)
	}
}

// ReadPayload reads and returns s's raw (still-compressed) payload bytes.
func (p *Parser) ReadPayload(s *Section) ([]byte, error) {
	buf := make([]byte, s.Length)
	_, err := p.r.ReadAt(buf, s.PayloadOffset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// VerifyFast checks s's fast checksum against its actual payload bytes.
func (p *Parser) VerifyFast(s *Section, payload []byte) bool {
	return VerifyFast(s.XXH3_64, s.Number, uint16(s.Kind), uint16(s.Compression), s.Length, payload)
}

// VerifyStrong checks s's strong checksum against its actual payload bytes.
func (p *Parser) VerifyStrong(s *Section, payload []byte) bool {
	return VerifyStrong(s.SHA512_256, s.Number, uint16(s.Kind), uint16(s.Compression), s.Length, payload)
}

// Walk reads every section sequentially from the image offset, calling fn
// for each. It stops (returning fn's error) if fn returns a non-nil error,
// and stops cleanly at end of backing range. This is the fallback used when
// no SECTION_INDEX tail is present, or when one is present but the caller
// wants to double check it (spec section 4.1 treats both as legal).
func (p *Parser) Walk(fn func(*Section) error) error {
	off := p.imageOffset
	for off < p.size {
		s, err := p.readHeaderAt(off)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		off = s.PayloadOffset + int64(s.Length)
	}
	return nil
}

// ReadIndex attempts to read a tail SECTION_INDEX, returning its entries
// as stored, with no offset translation: their offsets are relative to the
// image start (spec section 4.1). ReadIndex
// assumes the caller already knows where the index section starts (e.g.
// from a prior sequential walk, or a trailer convention); this
// implementation locates it by walking sequentially and remembering the
// last section seen, since spec section 4.1 says SECTION_INDEX, if
// present, is always last.
func (p *Parser) ReadIndex() ([]IndexEntry, bool, error) {
	var last *Section
	err := p.Walk(func(s *Section) error {
		cp := *s
		last = &cp
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if last == nil || last.Kind != KindSectionIndex {
		return nil, false, nil
	}
	payload, err := p.ReadPayload(last)
	if err != nil {
		return nil, false, err
	}
	entries, err := DecodeIndex(payload)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}
