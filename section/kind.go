// Package section implements DwarFS's image layout and section framing:
// the on-disk container format with per-section integrity checks and a tail
// index (spec section 4.1).
package section

import "fmt"

// Kind identifies the payload carried by a Section, per spec section 4.1.
type Kind uint16

const (
	KindBlock Kind = iota
	KindMetadataV2Schema
	KindMetadataV2
	KindSectionIndex
	KindHistory
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "BLOCK"
	case KindMetadataV2Schema:
		return "METADATA_V2_SCHEMA"
	case KindMetadataV2:
		return "METADATA_V2"
	case KindSectionIndex:
		return "SECTION_INDEX"
	case KindHistory:
		return "HISTORY"
	default:
		return fmt.Sprintf("Kind(%d)", uint16(k))
	}
}

// Known reports whether k is one of the kinds this implementation
// recognizes. Unknown kinds are tolerated for forward compatibility (spec
// section 4.1's error model) unless encountered on a required path.
func (k Kind) Known() bool {
	switch k {
	case KindBlock, KindMetadataV2Schema, KindMetadataV2, KindSectionIndex, KindHistory:
		return true
	default:
		return false
	}
}

// CompressionType tags the codec a section's payload was compressed with; it
// is opaque to this package and interpreted by package compressor.
type CompressionType uint16
