package section

import (
	"encoding/binary"
	"fmt"
)

// Every section payload carries an 8-byte little-endian uncompressed-size
// prefix ahead of its codec-compressed bytes, satisfying spec section 4.2's "uncompressed_size must be known up-front
// (encoded in the stream)" without requiring every codec to embed its own
// size field (not all of them do).

// EncodePayload prepends rawSize to compressed, producing the bytes a
// section's payload actually stores on disk.
func EncodePayload(rawSize int, compressed []byte) []byte {
	out := make([]byte, 8+len(compressed))
	binary.LittleEndian.PutUint64(out[:8], uint64(rawSize))
	copy(out[8:], compressed)
	return out
}

// DecodePayload splits a section's on-disk payload back into the original
// uncompressed size and the codec-compressed bytes.
func DecodePayload(payload []byte) (uncompressedSize int, compressed []byte, err error) {
	if len(payload) < 8 {
		return 0, nil, fmt.Errorf("section: payload too short for uncompressed-size prefix: %d bytes", len(payload))
	}
	return int(binary.LittleEndian.Uint64(payload[:8])), payload[8:], nil
}
