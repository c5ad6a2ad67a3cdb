// Package dataarena implements the append-only, mmap-backed byte arena
// that the Data Buffer Layer reserves variable-sized payloads from, and
// the size-indexed free list that lets freed buffers be reused before the
// high-water offset grows. Grounded on the teacher's mmapPageStorage
// (storage.go) and its pageId/freelist helpers (comm.go, freelist.go).
package dataarena

import (
	"encoding/binary"
	"strconv"
)

// OffsetSize is the wire width of a mapped-arena offset. mabain encodes
// every node/edge/payload offset in 6 bytes (48 bits), which is the same
// width the teacher uses for its pageId type.
const OffsetSize = 6

// Offset is a 6-byte little-endian byte offset into an arena file. Zero is
// the sentinel for "missing" (§3: "m_data_offset starts at ... so offset 0
// is sentinel 'missing'").
type Offset [OffsetSize]byte

// Null is the sentinel "no offset" value.
var Null Offset

func (o Offset) IsNull() bool {
	return o == Null
}

func (o Offset) Uint64() uint64 {
	var buf [8]byte
	copy(buf[:OffsetSize], o[:])
	return binary.LittleEndian.Uint64(buf[:])
}

func OffsetFromUint64(v uint64) (o Offset) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	copy(o[:], buf[:OffsetSize])
	return o
}

func (o Offset) String() string {
	return strconv.FormatUint(o.Uint64(), 10)
}
