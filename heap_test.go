package mwgc

import "testing"
import "unsafe"

func TestHeapConstructAndQuery(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	stats := h.Stats()
	if stats.TotalBytes != 240 {
		t.Errorf("expected 240 total bytes, got %v", stats.TotalBytes)
	}
	if stats.FreeBytes != 240 {
		t.Errorf("expected 240 free bytes, got %v", stats.FreeBytes)
	}
}

func TestHeapTooSmallPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic constructing a heap too small for one block")
		}
	}()
	NewHeap(make([]byte, 2), Defaultsettings())
}

func TestHeapAllocateRoundsUpToBlocks(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	m, ok := h.Allocate(1)
	if !ok {
		t.Fatalf("expected allocation to succeed")
	}
	if x := m.Len(); x != BlockSize {
		t.Errorf("expected a single block (%v bytes), got %v", BlockSize, x)
	}
	if x := h.SizeOf(m.Ptr()); x != BlockSize {
		t.Errorf("expected SizeOf %v, got %v", BlockSize, x)
	}
}

func TestHeapAllocateZeroBytesYieldsOneBlock(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	m, ok := h.Allocate(0)
	if !ok {
		t.Fatalf("expected allocation to succeed")
	}
	if x := m.Len(); x != BlockSize {
		t.Errorf("expected one block for a zero-byte request, got %v", x)
	}
}

func TestHeapAllocateIsZeroed(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	m, _ := h.Allocate(32)
	for i, b := range m.Bytes() {
		if b != 0 {
			t.Errorf("byte %v not zeroed: %v", i, b)
		}
	}
}

func TestHeapAllocateExhaustion(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	_, ok := h.Allocate(1024)
	if ok {
		t.Errorf("expected allocation to fail when the heap has no room")
	}
}

func TestHeapRetireReturnsSpan(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	before := h.Stats().FreeBytes
	m, _ := h.Allocate(32)
	h.Retire(m)
	if x := h.Stats().FreeBytes; x != before {
		t.Errorf("expected retiring to return the span, free=%v want %v", x, before)
	}
}

func TestHeapRetireNonHeadPanics(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	m, _ := h.Allocate(32)
	mid := unsafe.Pointer(uintptr(m.Ptr()) + uintptr(BlockSize))
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic retiring a non-head address")
		}
	}()
	h.Retire(memoryFromAddresses(mid, m.End()))
}

func TestHeapGcReclaimsUnreferenced(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	a, _ := h.Allocate(32)
	b, _ := h.Allocate(32)
	freeBeforeGc := h.Stats().FreeBytes

	h.Gc([]unsafe.Pointer{a.Ptr()})

	free := h.Stats().FreeBytes
	if free <= freeBeforeGc {
		t.Errorf("expected gc to reclaim b's span, free went from %v to %v", freeBeforeGc, free)
	}
	// a must still be readable as an allocation head.
	if x := h.SizeOf(a.Ptr()); x != 32 {
		t.Errorf("expected a to survive with size 32, got %v", x)
	}
	_ = b
}

func TestHeapGcWithNoRootsReclaimsEverything(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	total := h.Stats().FreeBytes
	h.Allocate(32)
	h.Allocate(64)
	h.Gc(nil)
	if x := h.Stats().FreeBytes; x != total {
		t.Errorf("expected every block reclaimed, free=%v want %v", x, total)
	}
}

func TestHeapStaleRootIgnored(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	a, _ := h.Allocate(32)
	stale := unsafe.Pointer(uintptr(a.Ptr()) + 4) // mid-span, not a head
	h.Retire(a)
	h.Gc([]unsafe.Pointer{stale, unsafe.Pointer(uintptr(0x1))})
	if x := h.Stats().FreeBytes; x != h.Stats().TotalBytes {
		t.Errorf("stale/out-of-heap roots must not keep anything alive")
	}
}

func TestAllocateObjectGeneric(t *testing.T) {
	type point struct{ x, y int64 }
	h := NewHeap(make([]byte, 256), Defaultsettings())
	p, ok := AllocateObject[point](h)
	if !ok {
		t.Fatalf("expected allocation to succeed")
	}
	if p.x != 0 || p.y != 0 {
		t.Errorf("expected zeroed object")
	}
	p.x, p.y = 7, 9
	if x := h.SizeOf(unsafe.Pointer(p)); x < int64(unsafe.Sizeof(point{})) {
		t.Errorf("span too small for object: %v", x)
	}
	RetireObject(h, p)
}

func TestAllocateArrayGeneric(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	arr, ok := AllocateArray[int64](h, 4)
	if !ok {
		t.Fatalf("expected allocation to succeed")
	}
	if x := len(arr); x != 4 {
		t.Errorf("expected 4 elements, got %v", x)
	}
	for i, v := range arr {
		if v != 0 {
			t.Errorf("element %v not zeroed: %v", i, v)
		}
	}
}

func TestHeapDumpReportsSpans(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	h.Allocate(32)
	spans := h.DumpSpans()
	if spans == "" {
		t.Errorf("expected a non-empty span dump")
	}
}

func TestHeapSweepBeforeMarkPanics(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic sweeping before a mark completed")
		}
	}()
	h.Sweep()
}

func TestHeapMarkRoundBeforeMarkStartPanics(t *testing.T) {
	h := NewHeap(make([]byte, 256), Defaultsettings())
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic calling mark_round before mark_start")
		}
	}()
	h.MarkRound()
}
