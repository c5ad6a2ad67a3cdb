package dataarena

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
)

// MaxDataSize bounds a single payload's length field (DATA_SIZE_BYTE=2,
// a u16 length prefix per spec.md §3/§6).
const MaxDataSize = 1<<16 - 1

// Buffers is the Data Buffer Layer of spec.md §4.2: it reserves and
// releases variable-sized payloads inside an Arena, backed by a FreeList
// for reclamation and a monotonic high-water mark (m_data_offset).
type Buffers struct {
	mu      sync.Mutex
	arena   *Arena
	free    *FreeList
	highVal atomic.Int64 // m_data_offset, exposed to the Shared Header
	pending atomic.Int64 // pending_data_buff_size
}

// NewBuffers wires a fresh Data Buffer Layer over arena, starting the
// high-water mark at HeaderSize per spec.md §3.
func NewBuffers(arena *Arena) *Buffers {
	b := &Buffers{arena: arena, free: NewFreeList(arena)}
	b.highVal.Store(HeaderSize)
	return b
}

// Restore resumes a Buffers layer from a previously persisted state
// (high-water mark, pending size, and a loaded free list), as read back
// from the Shared Header and the `_dbfl` dump on writer reopen.
func (b *Buffers) Restore(highWater, pending int64, free *FreeList) {
	b.highVal.Store(highWater)
	b.pending.Store(pending)
	b.free = free
}

func (b *Buffers) HighWater() int64 { return b.highVal.Load() }
func (b *Buffers) Pending() int64   { return b.pending.Load() }
func (b *Buffers) FreeList() *FreeList { return b.free }

// Reserve lays out a payload as a u16 length followed by the payload
// bytes (spec.md §3's "Data buffer" layout) and returns its offset. It
// first tries the size class's free list before growing the arena,
// mirroring spec.md §4.2's Reserve algorithm exactly: pop-if-available,
// else grow and register the alignment remainder as pending.
func (b *Buffers) Reserve(payload []byte) (Offset, error) {
	if len(payload) > MaxDataSize {
		return Null, fmt.Errorf("dataarena: payload %d exceeds MaxDataSize %d", len(payload), MaxDataSize)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	raw := 2 + len(payload)
	bucket := BucketSize(raw)

	if off, found, err := b.free.Pop(raw); err != nil {
		return Null, err
	} else if found {
		if err := b.writeRecord(off, payload); err != nil {
			return Null, err
		}
		b.pending.Add(-int64(bucket))
		return off, nil
	}

	off, skipped, err := b.arena.Reserve(b.highVal.Load(), raw)
	if err != nil {
		return Null, err
	}
	if skipped > 0 {
		// The alignment padding the arena skipped to honor
		// DATA_BUFFER_ALIGNMENT becomes a lost buffer the writer can
		// never reuse organically; ReleaseAlignmentBuffer registers it
		// on the free list instead of wasting it outright.
		if err := b.releaseAlignmentBuffer(off, skipped); err != nil {
			return Null, err
		}
	}
	b.highVal.Store(int64(off.Uint64()) + int64(bucket))
	if err := b.writeRecord(off, payload); err != nil {
		return Null, err
	}
	return off, nil
}

// releaseAlignmentBuffer registers the alignment-padding gap skipped by
// Arena.Reserve onto the free list, mirroring spec.md §4.2's
// ReleaseAlignmentBuffer and charging it to pending_data_buff_size.
func (b *Buffers) releaseAlignmentBuffer(off Offset, size int) error {
	gapOff := OffsetFromUint64(off.Uint64() - uint64(alignUp(size)))
	if err := b.free.Push(size, gapOff); err != nil {
		return err
	}
	b.pending.Add(int64(alignUp(size)))
	return nil
}

func (b *Buffers) writeRecord(off Offset, payload []byte) error {
	rec := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(rec, uint16(len(payload)))
	copy(rec[2:], payload)
	return b.arena.Write(off, rec)
}

// Read returns the payload stored at off, validating invariant 4 of
// spec.md §8 (the stored u16 length bounds the read).
func (b *Buffers) Read(off Offset) ([]byte, error) {
	lenBuf, err := b.arena.Read(off, 2)
	if err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(lenBuf)
	return b.arena.Read(OffsetFromUint64(off.Uint64()+2), int(n))
}

// Release returns the buffer at off to its size class's free list,
// crediting its aligned size back to pending_data_buff_size.
func (b *Buffers) Release(off Offset) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	lenBuf, err := b.arena.Read(off, 2)
	if err != nil {
		return err
	}
	n := int(binary.LittleEndian.Uint16(lenBuf))
	raw := 2 + n
	if err := b.free.Push(raw, off); err != nil {
		return err
	}
	b.pending.Add(int64(BucketSize(raw)))
	return nil
}

// Reset drops every reservation and free-list entry, used by RemoveAll
// (spec.md §4.1) to bring the arena back to its post-open state.
func (b *Buffers) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.highVal.Store(HeaderSize)
	b.pending.Store(0)
	b.free = NewFreeList(b.arena)
}
