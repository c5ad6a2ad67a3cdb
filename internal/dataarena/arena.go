package dataarena

import (
	"fmt"
	"os"
	"sync"

	"github.com/mabain/mabain-go/internal/sys"
)

// Alignment is DATA_BUFFER_ALIGNMENT from spec.md §3: every buffer
// reservation is rounded up to a multiple of this size, and the unused
// tail within the aligned block is charged to pending_data_buff_size.
const Alignment = 16

// HeaderSize is DATA_HEADER_SIZE: the high-water offset starts here so
// that offset 0 remains the "missing" sentinel and the first page holds
// room for the mapped SharedHeader.
const HeaderSize = 4096

// BlockSize is DATA_BLOCK_SIZE: the arena file grows in multiples of this
// size, mirroring RollableFile's block rolling (out of scope per §1, but
// the concrete Arena below plays that role for this repo).
const BlockSize = 4 << 20

// Arena is an append-only, mmap-backed byte file partitioned into
// DATA_BUFFER_ALIGNMENT-aligned buffers. It is the concrete body behind
// spec.md §1's out-of-scope "RollableFile"/"DictMem" read/write contract:
// read(buf, len, offset), write(buf, len, offset), reserve(cur_off, size).
type Arena struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	dat       []byte
	pageSize  int
	blockSize int64
}

// Open maps path, growing the backing file to at least HeaderSize bytes
// on first use. The caller is responsible for ensuring at most one
// process opens an arena for write.
func Open(path string) (*Arena, error) {
	return OpenWithBlockSize(path, BlockSize)
}

// OpenWithBlockSize is Open with a caller-chosen file growth increment,
// letting a writer trade mmap/remap frequency for wasted tail space the
// way the teacher's Config.dataBlockSize does for its RollableFile. A
// non-positive blockSize falls back to BlockSize.
func OpenWithBlockSize(path string, blockSize int) (*Arena, error) {
	if blockSize <= 0 {
		blockSize = BlockSize
	}
	f, err := sys.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataarena: open %s: %w", path, err)
	}
	a := &Arena{file: f, path: path, pageSize: sys.GetSysPageSize(), blockSize: int64(blockSize)}
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size == 0 {
		size = a.blockSize
		if err := f.Truncate(size); err != nil {
			return nil, fmt.Errorf("dataarena: truncate %s: %w", path, err)
		}
	}
	a.dat, err = sys.MMap(f, uint64(size))
	if err != nil {
		return nil, fmt.Errorf("dataarena: mmap %s: %w", path, err)
	}
	return a, nil
}

// Close unmaps and closes the backing file.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dat != nil {
		if err := sys.MUnmap(a.file, a.dat); err != nil {
			return err
		}
		a.dat = nil
	}
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// Size reports the current mapped length.
func (a *Arena) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(len(a.dat))
}

// grow extends the mapping to cover at least upto bytes, rolling the
// backing file forward in BlockSize increments. Must be called with a.mu
// held.
func (a *Arena) grow(upto int64) error {
	if upto <= int64(len(a.dat)) {
		return nil
	}
	newSize := int64(len(a.dat))
	for newSize < upto {
		newSize += a.blockSize
	}
	if err := a.file.Truncate(newSize); err != nil {
		return fmt.Errorf("dataarena: grow %s to %d: %w", a.path, newSize, err)
	}
	dat, err := sys.Remap(a.file, uint64(newSize), a.dat)
	if err != nil {
		return fmt.Errorf("dataarena: remap %s to %d: %w", a.path, newSize, err)
	}
	a.dat = dat
	return nil
}

// ReadError is returned for reads that fall outside the mapped region,
// surfacing spec.md §7's READ_ERROR.
type ReadError struct {
	Offset Offset
	Length int
	Mapped int
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("dataarena: short read at offset %d, len %d, mapped %d", e.Offset.Uint64(), e.Length, e.Mapped)
}

// Read copies length bytes starting at offset into a freshly allocated
// slice. It never hands out the raw mapped slice across this boundary,
// per DESIGN NOTES §9 ("never expose the raw mapped address across an API
// boundary").
func (a *Arena) Read(offset Offset, length int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	off := offset.Uint64()
	if off+uint64(length) > uint64(len(a.dat)) {
		return nil, &ReadError{Offset: offset, Length: length, Mapped: len(a.dat)}
	}
	out := make([]byte, length)
	copy(out, a.dat[off:off+uint64(length)])
	return out, nil
}

// View hands back a mutable window directly into the mapping, bounded by
// offset/length. Callers on the internal fast path (same package and
// internal/radixtree) may use it for in-place structural edits that the
// Lock-Free Protocol guards; its lifetime is bounded by the call per the
// same design note.
func (a *Arena) View(offset Offset, length int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	off := offset.Uint64()
	if off+uint64(length) > uint64(len(a.dat)) {
		return nil, &ReadError{Offset: offset, Length: length, Mapped: len(a.dat)}
	}
	return a.dat[off : off+uint64(length) : off+uint64(length)], nil
}

// Write copies buf into the arena starting at offset, growing the
// mapping first if necessary.
func (a *Arena) Write(offset Offset, buf []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	off := offset.Uint64()
	if err := a.grow(int64(off) + int64(len(buf))); err != nil {
		return err
	}
	copy(a.dat[off:], buf)
	return nil
}

// Reserve grows the high-water mark by size bytes rounded up to
// Alignment, returning the offset of the newly reserved region and the
// number of alignment-padding bytes skipped (which the caller — the Data
// Buffer Layer — registers on the free list per spec.md §4.2's
// ReleaseAlignmentBuffer).
func (a *Arena) Reserve(curOffset int64, size int) (newOffset Offset, skipped int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	aligned := alignUp(size)
	start := curOffset
	padded := alignUp64(start) - start
	start += padded
	if err = a.grow(start + int64(aligned)); err != nil {
		return Null, 0, err
	}
	return OffsetFromUint64(uint64(start)), int(padded), nil
}

func alignUp(n int) int {
	if n%Alignment == 0 {
		return n
	}
	return n + (Alignment - n%Alignment)
}

func alignUp64(n int64) int64 {
	if n%Alignment == 0 {
		return n
	}
	return n + (Alignment - n%Alignment)
}
