package mwgc

import "fmt"
import "unsafe"

// Memory is a view over a contiguous byte region: a base pointer and a
// length, with helpers to carve off sub-regions and to view or zero the
// region as a byte slice. It has no helper that reinterprets a prefix
// as a typed header; code that needs one casts Ptr() itself. All
// sub-regions returned by Split are non-overlapping and together tile
// the original region.
type Memory struct {
	base unsafe.Pointer
	size int64
}

// NewMemory wraps a caller-owned byte slice. The slice must outlive the
// Memory and everything carved from it; mwgc never copies it.
func NewMemory(bytes []byte) Memory {
	if len(bytes) == 0 {
		return Memory{}
	}
	return Memory{base: unsafe.Pointer(&bytes[0]), size: int64(len(bytes))}
}

func memoryFromAddresses(start, end unsafe.Pointer) Memory {
	return Memory{base: start, size: int64(uintptr(end) - uintptr(start))}
}

// Len returns the number of bytes covered by this region.
func (m Memory) Len() int64 {
	return m.size
}

// Ptr returns the base address of this region.
func (m Memory) Ptr() unsafe.Pointer {
	return m.base
}

// End returns the address one past the last byte of this region.
func (m Memory) End() unsafe.Pointer {
	return unsafe.Pointer(uintptr(m.base) + uintptr(m.size))
}

// Bytes reinterprets the region as a byte slice, for callers that want
// to read or write it directly.
func (m Memory) Bytes() []byte {
	if m.base == nil {
		return nil
	}
	return unsafe.Slice((*byte)(m.base), int(m.size))
}

// Clear zeroes every byte of the region.
func (m Memory) Clear() {
	b := m.Bytes()
	for i := range b {
		b[i] = 0
	}
}

// Split divides the region into a prefix of n bytes and the remaining
// suffix. Panics if n exceeds the region's length.
func (m Memory) Split(n int64) (Memory, Memory) {
	if n < 0 || n > m.size {
		panic(fmt.Errorf("mwgc: split(%v) exceeds region of %v bytes", n, m.size))
	}
	head := Memory{base: m.base, size: n}
	tail := Memory{base: unsafe.Pointer(uintptr(m.base) + uintptr(n)), size: m.size - n}
	return head, tail
}

// SplitTail divides the region into a prefix holding all but the last n
// bytes, and a suffix of exactly n bytes. Panics if n exceeds the
// region's length.
func (m Memory) SplitTail(n int64) (Memory, Memory) {
	return m.Split(m.size - n)
}

// contains reports whether address p falls within [base, base+size).
func (m Memory) contains(p unsafe.Pointer) bool {
	return uintptr(p) >= uintptr(m.base) && uintptr(p) < uintptr(m.base)+uintptr(m.size)
}
