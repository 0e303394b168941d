package section

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// FastChecksum computes xxh3_64 over [section_number .. end_of_payload),
// i.e. sectionNumber, type, compression, length, and payload concatenated
// in their on-disk little-endian encoding (spec section 4.1).
func FastChecksum(sectionNumber uint32, typ, compression uint16, length uint64, payload []byte) uint64 {
	buf := checksumTail(sectionNumber, typ, compression, length, payload)
	return xxh3.Hash(buf)
}

// StrongChecksum computes sha2-512/256 over the same range as
// FastChecksum, excluding the sha field itself (which doesn't appear in the
// tail at all, since the tail starts at section_number).
func StrongChecksum(sectionNumber uint32, typ, compression uint16, length uint64, payload []byte) [32]byte {
	buf := checksumTail(sectionNumber, typ, compression, length, payload)
	return sha512.Sum512_256(buf)
}

func checksumTail(sectionNumber uint32, typ, compression uint16, length uint64, payload []byte) []byte {
	buf := &bytes.Buffer{}
	buf.Grow(4 + 2 + 2 + 8 + len(payload))
	_ = binary.Write(buf, binary.LittleEndian, sectionNumber)
	_ = binary.Write(buf, binary.LittleEndian, typ)
	_ = binary.Write(buf, binary.LittleEndian, compression)
	_ = binary.Write(buf, binary.LittleEndian, length)
	buf.Write(payload)
	return buf.Bytes()
}

// VerifyFast reports whether checksum matches the fast checksum computed
// over the given section fields. A zero checksum means "no check
// configured" and always passes (spec section 4.1).
func VerifyFast(checksum uint64, sectionNumber uint32, typ, compression uint16, length uint64, payload []byte) bool {
	if checksum == 0 {
		return true
	}
	return FastChecksum(sectionNumber, typ, compression, length, payload) == checksum
}

// VerifyStrong reports whether checksum matches the strong checksum. An
// all-zero checksum means "no check configured" and always passes.
func VerifyStrong(checksum [32]byte, sectionNumber uint32, typ, compression uint16, length uint64, payload []byte) bool {
	if checksum == ([32]byte{}) {
		return true
	}
	return StrongChecksum(sectionNumber, typ, compression, length, payload) == checksum
}
