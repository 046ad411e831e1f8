package mwgc

import "fmt"
import "unsafe"

// freeSpanHeader is written into the first bytes of every free span:
// a pointer to the next free span (nil if this is the last) and the
// size, in bytes, of this span including the header itself. BlockSize
// must be at least freeSpanHeaderSize so any free block can hold it.
type freeSpanHeader struct {
	next unsafe.Pointer
	size int64
}

const freeSpanHeaderSize = int64(unsafe.Sizeof(freeSpanHeader{}))

func spanHeaderAt(p unsafe.Pointer) *freeSpanHeader {
	return (*freeSpanHeader)(p)
}

// FreeList is a singly-linked, address-sorted list of free spans, each
// carrying its own {next, size} header in its first bytes. Adjacent
// spans are coalesced whenever one is inserted.
type FreeList struct {
	head unsafe.Pointer // *freeSpanHeader, nil if empty
}

// newFreeList seeds the list with a single span covering all of m.
func newFreeList(m Memory) *FreeList {
	h := spanHeaderAt(m.Ptr())
	h.next = nil
	h.size = m.Len()
	return &FreeList{head: m.Ptr()}
}

// Bytes returns the sum of every free span's size.
func (fl *FreeList) Bytes() int64 {
	total := int64(0)
	for p := fl.head; p != nil; {
		h := spanHeaderAt(p)
		total += h.size
		p = h.next
	}
	return total
}

// Chain reports the size of every free span, in address order. Meant
// for tests and debugging.
func (fl *FreeList) Chain() []int64 {
	sizes := []int64{}
	for p := fl.head; p != nil; {
		h := spanHeaderAt(p)
		sizes = append(sizes, h.size)
		p = h.next
	}
	return sizes
}

// Take does a first-fit search for a free span of at least `bytes`. If
// the chosen span is larger than needed, the trailing remainder is split
// off and reinserted. The returned Memory is always exactly `bytes`
// long; if the leftover would be too small to hold its own header, the
// whole span is unlinked and the leftover bytes are not tracked.
func (fl *FreeList) Take(bytes int64) (Memory, bool) {
	link := &fl.head
	for *link != nil {
		h := spanHeaderAt(*link)
		if h.size >= bytes {
			spanStart := *link
			takenEnd := unsafe.Pointer(uintptr(spanStart) + uintptr(bytes))
			if h.size-bytes >= freeSpanHeaderSize {
				remainder := spanHeaderAt(takenEnd)
				remainder.size = h.size - bytes
				remainder.next = h.next
				*link = takenEnd
			} else {
				*link = h.next
			}
			return memoryFromAddresses(spanStart, takenEnd), true
		}
		link = &h.next
	}
	return Memory{}, false
}

// Insert returns m to the free list in address order, merging it with
// an abutting predecessor and/or successor.
func (fl *FreeList) Insert(m Memory) {
	link := &fl.head
	for *link != nil {
		h := spanHeaderAt(*link)
		if uintptr(*link) > uintptr(m.Ptr()) {
			break
		}
		if unsafe.Pointer(uintptr(*link)+uintptr(h.size)) == m.Ptr() {
			// merge onto the end of the previous span, then see if that
			// closes the gap to the one after it too.
			h.size += m.Len()
			fl.mergeForward(link)
			return
		}
		link = &h.next
	}
	// insert a fresh node before *link (possibly at the tail, possibly
	// as the new head).
	newHead := spanHeaderAt(m.Ptr())
	newHead.next = *link
	newHead.size = m.Len()
	*link = m.Ptr()
	fl.mergeForward(link)
}

// mergeForward merges the span at *link with its successor if they
// abut, in a loop (a single merge can expose another).
func (fl *FreeList) mergeForward(link *unsafe.Pointer) {
	for {
		h := spanHeaderAt(*link)
		if h.next == nil {
			return
		}
		next := spanHeaderAt(h.next)
		if unsafe.Pointer(uintptr(*link)+uintptr(h.size)) != h.next {
			return
		}
		h.size += next.size
		h.next = next.next
	}
}

// Remove excises the span whose header starts at addr. Sweep does not
// call it (it reclaims through Insert, which coalesces). It is a no-op
// if addr is not a free span.
func (fl *FreeList) Remove(addr unsafe.Pointer) {
	link := &fl.head
	for *link != nil {
		if *link == addr {
			h := spanHeaderAt(*link)
			*link = h.next
			return
		}
		h := spanHeaderAt(*link)
		link = &h.next
	}
}

func (fl *FreeList) String() string {
	sizes := fl.Chain()
	return fmt.Sprintf("FreeList(%v)", sizes)
}
