package dwarfs

import "io/fs"

// InodeType is the type-rank DwarFS assigns regular inodes to, per spec
// section 3's dense-numbering invariant: inodes are ordered by
// (type-rank, secondary-key) where type-rank in {DIR, LNK, REG, DEV, OTH}.
// Grounded on the teacher's Type enum (type.go) but renamed and reordered to
// match the spec's explicit rank list instead of SquashFS's wire values.
type InodeType uint8

const (
	InodeDir InodeType = iota
	InodeSymlink
	InodeRegular
	InodeDevice
	InodeOther
)

func (t InodeType) String() string {
	switch t {
	case InodeDir:
		return "DIR"
	case InodeSymlink:
		return "LNK"
	case InodeRegular:
		return "REG"
	case InodeDevice:
		return "DEV"
	default:
		return "OTH"
	}
}

// Rank returns the type's position in the DIR,LNK,REG,DEV,OTH ordering used
// to assign dense inode numbers (spec section 3).
func (t InodeType) Rank() int {
	return int(t)
}

// TypeOf classifies a fs.FileMode into the inode type-rank used for
// ordering, mirroring the teacher's mode.go switch over fs.FileMode bits.
func TypeOf(mode fs.FileMode) InodeType {
	switch {
	case mode.IsDir():
		return InodeDir
	case mode&fs.ModeSymlink != 0:
		return InodeSymlink
	case mode.IsRegular():
		return InodeRegular
	case mode&(fs.ModeDevice|fs.ModeCharDevice) != 0:
		return InodeDevice
	default:
		return InodeOther
	}
}

// Unix mode bits, reused verbatim from the teacher's mode.go: DwarFS stores
// permissions the same Linux-derived way SquashFS does.
const (
	sIFMT   = 0xf000
	sIFREG  = 0x8000
	sIFDIR  = 0x4000
	sIFBLK  = 0x6000
	sIFCHR  = 0x2000
	sIFIFO  = 0x1000
	sIFLNK  = 0xa000
	sIFSOCK = 0xc000

	sISVTX = 0x200
	sISGID = 0x400
	sISUID = 0x800
)

// UnixToMode converts an on-disk Linux-style mode word into an fs.FileMode.
func UnixToMode(mode uint32) fs.FileMode {
	res := fs.FileMode(mode & 0777)

	switch mode & sIFMT {
	case sIFCHR:
		res |= fs.ModeCharDevice | fs.ModeDevice
	case sIFBLK:
		res |= fs.ModeDevice
	case sIFDIR:
		res |= fs.ModeDir
	case sIFIFO:
		res |= fs.ModeNamedPipe
	case sIFLNK:
		res |= fs.ModeSymlink
	case sIFSOCK:
		res |= fs.ModeSocket
	}

	if mode&sISGID == sISGID {
		res |= fs.ModeSetgid
	}
	if mode&sISUID == sISUID {
		res |= fs.ModeSetuid
	}
	if mode&sISVTX == sISVTX {
		res |= fs.ModeSticky
	}

	return res
}

// ModeToUnix converts an fs.FileMode into the on-disk Linux-style mode word.
func ModeToUnix(mode fs.FileMode) uint32 {
	res := uint32(mode.Perm())

	switch {
	case mode&fs.ModeCharDevice == fs.ModeCharDevice:
		res |= sIFCHR
	case mode&fs.ModeDevice == fs.ModeDevice:
		res |= sIFBLK
	case mode&fs.ModeDir == fs.ModeDir:
		res |= sIFDIR
	case mode&fs.ModeNamedPipe == fs.ModeNamedPipe:
		res |= sIFIFO
	case mode&fs.ModeSymlink == fs.ModeSymlink:
		res |= sIFLNK
	case mode&fs.ModeSocket == fs.ModeSocket:
		res |= sIFSOCK
	default:
		res |= sIFREG
	}

	if mode&fs.ModeSetgid == fs.ModeSetgid {
		res |= sISGID
	}
	if mode&fs.ModeSetuid == fs.ModeSetuid {
		res |= sISUID
	}
	if mode&fs.ModeSticky == fs.ModeSticky {
		res |= sISVTX
	}

	return res
}
