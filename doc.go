// Package mwgc implements a sesame-seed-sized heap with a tri-color,
// tracing, conservative, incremental, non-compacting garbage collector,
// meant for running a tiny dynamic language on tiny hardware.
//
// It is not thread safe, and is tuned for allocations up to a few hundred
// bytes and heaps under about 1MB.
//
// A caller supplies a single contiguous byte slice. Heap carves a small
// bitmap (ColorMap) off the tail to track, two bits per block, which
// blocks are allocated and which color they're stamped with, and keeps
// the rest as a sorted, coalescing FreeList. Allocations are rounded up
// to whole blocks and handed out first-fit; collection is a standard
// tri-color mark that can be driven to completion in one call (Gc) or
// advanced incrementally one bounded round at a time (MarkStart/MarkRound).
//
// Example:
//
//	data := make([]byte, 256)
//	h := mwgc.NewHeap(data, mwgc.Defaultsettings())
//	o1, _ := h.Allocate(32)
//	h.Gc([]unsafe.Pointer{o1.Ptr()})
package mwgc
