package dwarfs

import "fmt"

// ErrorKind classifies a failure the way spec section 7 enumerates them, so
// callers can branch on the kind instead of parsing error strings.
type ErrorKind int

const (
	ErrKindCorruptedImage ErrorKind = iota + 1
	ErrKindUnsupportedVersion
	ErrKindUnknownCompression
	ErrKindDecompressionFailed
	ErrKindChecksumMismatch
	ErrKindIOError
	ErrKindNotFound
	ErrKindPermissionDenied
	ErrKindInvalidArgument
	ErrKindResourceExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindCorruptedImage:
		return "corrupted_image"
	case ErrKindUnsupportedVersion:
		return "unsupported_version"
	case ErrKindUnknownCompression:
		return "unknown_compression"
	case ErrKindDecompressionFailed:
		return "decompression_failed"
	case ErrKindChecksumMismatch:
		return "checksum_mismatch"
	case ErrKindIOError:
		return "io_error"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindInvalidArgument:
		return "invalid_argument"
	case ErrKindResourceExhausted:
		return "resource_exhausted"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// ImageError carries the section context spec section 7 requires: which
// section (if any) the failure happened in, and its offset in the image.
type ImageError struct {
	Kind    ErrorKind
	Section uint32 // section number, only meaningful if HasSection
	Offset  int64  // byte offset in the image, only meaningful if HasSection
	HasSection bool
	Err     error
}

func (e *ImageError) Error() string {
	if e.HasSection {
		if e.Err != nil {
			return fmt.Sprintf("dwarfs: %s: section %d at offset %d: %s", e.Kind, e.Section, e.Offset, e.Err)
		}
		return fmt.Sprintf("dwarfs: %s: section %d at offset %d", e.Kind, e.Section, e.Offset)
	}
	if e.Err != nil {
		return fmt.Sprintf("dwarfs: %s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("dwarfs: %s", e.Kind)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, someErrorKindSentinel) work transparently, and also
// lets errors.Is(err1, err2) compare two *ImageError by Kind.
func (e *ImageError) Is(target error) bool {
	if ik, ok := target.(*ImageError); ok {
		return e.Kind == ik.Kind
	}
	return false
}

// NewError builds an *ImageError with no section context.
func NewError(kind ErrorKind, err error) *ImageError {
	return &ImageError{Kind: kind, Err: err}
}

// NewSectionError builds an *ImageError carrying section context.
func NewSectionError(kind ErrorKind, section uint32, offset int64, err error) *ImageError {
	return &ImageError{Kind: kind, Section: section, Offset: offset, HasSection: true, Err: err}
}

// Sentinel values usable with errors.Is(err, dwarfs.ErrNotFound) and friends;
// they carry no section context of their own.
var (
	ErrCorruptedImage      = &ImageError{Kind: ErrKindCorruptedImage}
	ErrUnsupportedVersion  = &ImageError{Kind: ErrKindUnsupportedVersion}
	ErrUnknownCompression  = &ImageError{Kind: ErrKindUnknownCompression}
	ErrDecompressionFailed = &ImageError{Kind: ErrKindDecompressionFailed}
	ErrChecksumMismatch    = &ImageError{Kind: ErrKindChecksumMismatch}
	ErrIOError             = &ImageError{Kind: ErrKindIOError}
	ErrNotFound            = &ImageError{Kind: ErrKindNotFound}
	ErrPermissionDenied    = &ImageError{Kind: ErrKindPermissionDenied}
	ErrInvalidArgument     = &ImageError{Kind: ErrKindInvalidArgument}
	ErrResourceExhausted   = &ImageError{Kind: ErrKindResourceExhausted}

	// ErrNotSupported marks collaborator methods that are intentionally
	// unimplemented because the surface they serve is out of scope (xattr
	// plumbing, FUSE mount, archive-writer output — see spec section 1).
	ErrNotSupported = &ImageError{Kind: ErrKindInvalidArgument, Err: fmt.Errorf("not supported by this build")}
)
