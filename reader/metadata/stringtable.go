// Package metadata implements the frozen, packed metadata view spec section
// 4.5 describes: a schema plus a bit-packed data region, read directly off
// mapped image bytes without an unpack pass.
//
// Grounded on the teacher's tableReader/newInodeReader two-layer reader
// (legacy/tablereader.go, legacy/inodereader.go: a metadata-block
// decompressing reader wrapped by a byte-offset cursor) generalized from
// SquashFS's fixed-width wire structs to schema-described, bit-packed
// variable-width fields (internal/packedint) sized at freeze time to the
// observed maximum, per spec section 4.5's packing rule.
package metadata

import "github.com/dwarfs-go/dwarfs/internal/packedint"

// StringTable is an immutable table of strings stored as one concatenated
// data blob plus a packed array of byte offsets: string i spans
// data[offsets.Get(i):offsets.Get(i+1)]. This is the **[AMBIENT]** plain
// (non-FSST) encoding spec section 4.5 calls the default; the optional FSST
// dictionary mode lives in FSSTDict (fsst.go).
type StringTable struct {
	data    []byte
	offsets *packedint.Array // length Len()+1
	dict    *FSSTDict        // nil when the FSSTNames/FSSTSymlinks feature is off
}

// NewStringTable builds a StringTable from already-concatenated data and a
// parallel offsets array (length n+1, entry i holding the start offset of
// string i and entry n holding len(data)).
func NewStringTable(data []byte, offsets *packedint.Array) *StringTable {
	return &StringTable{data: data, offsets: offsets}
}

// NewStringTableWithDict builds an FSST-dictionary-backed StringTable: data
// holds dictionary-encoded bytes, decoded through dict at lookup time.
func NewStringTableWithDict(data []byte, offsets *packedint.Array, dict *FSSTDict) *StringTable {
	return &StringTable{data: data, offsets: offsets, dict: dict}
}

// Len returns the number of strings in the table.
func (t *StringTable) Len() int {
	if t.offsets.Len() == 0 {
		return 0
	}
	return t.offsets.Len() - 1
}

// Lookup returns the i-th original string, per spec section 4.5's
// StringTable.lookup(i) contract. The empty string may be shared by
// multiple indices (a zero-length span).
func (t *StringTable) Lookup(i int) string {
	start := t.offsets.Get(i)
	end := t.offsets.Get(i + 1)
	raw := t.data[start:end]
	if t.dict == nil {
		return string(raw)
	}
	return t.dict.Decode(raw)
}

// OffsetWidth returns the bit width of the underlying offsets array, the
// value the freezer records into Schema.NameOffsetWidth/SymlinkOffsetWidth.
func (t *StringTable) OffsetWidth() int { return t.offsets.BitWidth() }

// HasDict reports whether this table carries an FSST dictionary.
func (t *StringTable) HasDict() bool { return t.dict != nil }

// Encode serializes the table into the data-region byte layout Decode
// expects: the offsets array, an optional FSST dictionary, then the raw
// string data.
func (t *StringTable) Encode() []byte {
	buf := append([]byte{}, t.offsets.Bytes()...)
	if t.dict != nil {
		buf = append(buf, t.dict.encodeDict()...)
	}
	buf = append(buf, t.data...)
	return buf
}

// BuildStringTable packs strs into a plain (non-FSST) StringTable, the
// freezer's default entry point.
func BuildStringTable(strs []string) *StringTable {
	var data []byte
	offsets := make([]uint64, len(strs)+1)
	for i, s := range strs {
		offsets[i] = uint64(len(data))
		data = append(data, s...)
	}
	offsets[len(strs)] = uint64(len(data))
	return NewStringTable(data, packedint.BuildArray(offsets))
}
