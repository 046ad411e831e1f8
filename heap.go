package mwgc

import "fmt"
import "strings"
import "unsafe"

import "github.com/dustin/go-humanize"
import "github.com/prataprc/golog"
import s "github.com/prataprc/gosettings"

// wordSize is the granularity at which mark scans an allocation's
// interior for candidate pointers.
const wordSize = int64(unsafe.Sizeof(uintptr(0)))

// phase tracks where a Heap sits in a mark-sweep cycle.
type phase int

const (
	phaseQuiet phase = iota
	phaseMarking
	phaseMarked
)

func (p phase) String() string {
	switch p {
	case phaseQuiet:
		return "quiet"
	case phaseMarking:
		return "marking"
	case phaseMarked:
		return "marked"
	}
	return "invalid"
}

// Heap is a fixed-size, non-compacting, conservatively-scanned,
// tri-color mark-sweep allocator over a single caller-owned region. It
// is not safe for concurrent use: the embedder is expected to run the
// interpreter and the collector on one thread, pausing the former
// while driving Gc/MarkRound.
type Heap struct {
	start, end unsafe.Pointer
	blocks     int64

	colorMap *ColorMap
	freeList *FreeList

	// current is this cycle's "white": blocks stamped with this color
	// are ordinary live objects nobody has proven garbage yet. Its
	// opposite is "black": objects already traced (or, mid-mark,
	// freshly allocated and thus exempt from tracing). The two roles
	// swap at the end of Sweep, which is what lets a finished cycle's
	// survivors become next cycle's baseline without walking the
	// colormap again.
	current Color
	phase   phase

	// checkStart/checkEnd bound the tightest contiguous block range
	// known to contain every gray (Check) block. MarkRound only ever
	// rescans within this window, widening it as new grays turn up.
	checkStart, checkEnd unsafe.Pointer
}

// NewHeap carves a Heap out of bytes: a small ColorMap off the tail,
// sized to describe the rest at two bits per block, and a FreeList
// over what remains. bytes must outlive the Heap.
//
// setts follows Defaultsettings; passing nil uses the defaults.
func NewHeap(bytes []byte, setts s.Settings) *Heap {
	if setts == nil {
		setts = Defaultsettings()
	}
	if level := setts.String("log.level"); level != "" && level != "ignore" {
		log.SetLogger(nil, map[string]interface{}{"log.level": level})
	}

	whole := NewMemory(bytes)

	// divisor derives from: every colormap byte (1) accounts for
	// blocksPerColormapByte (4) pool blocks, each BlockSize bytes.
	divisor := 1 + blocksPerColormapByte*BlockSize
	colorMapSize := divCeil(whole.Len(), divisor)
	poolSize := floorTo(whole.Len()-colorMapSize, BlockSize)
	if poolSize < BlockSize {
		panic(fmt.Errorf("mwgc: %w: %v bytes", ErrTooSmall, whole.Len()))
	}
	blocks := poolSize / BlockSize

	rest, colorRegion := whole.Split(whole.Len() - colorMapSize)
	pool, _ := rest.Split(poolSize)

	cm := newColorMap(colorRegion, blocks)
	cm.SetRange(BlockRange{Start: 0, End: blocks, Color: Check})
	fl := newFreeList(pool)

	h := &Heap{
		start:    pool.Ptr(),
		end:      pool.End(),
		blocks:   blocks,
		colorMap: cm,
		freeList: fl,
		current:  Blue,
		phase:    phaseQuiet,
	}
	debugf("mwgc: new heap, %v blocks of %v bytes, colormap %v bytes", blocks, BlockSize, colorMapSize)
	return h
}

func (h *Heap) next() Color {
	return h.current.opposite()
}

func (h *Heap) contains(p unsafe.Pointer) bool {
	return uintptr(p) >= uintptr(h.start) && uintptr(p) < uintptr(h.end)
}

func (h *Heap) addressOf(block int64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(h.start) + uintptr(block*BlockSize))
}

// blockIndexOf trusts p to already be block-aligned within the heap;
// for use only on addresses this package itself produced (span starts
// from the FreeList or from addressOf).
func (h *Heap) blockIndexOf(p unsafe.Pointer) int64 {
	return (int64(uintptr(p)) - int64(uintptr(h.start))) / BlockSize
}

// headBlock resolves an exact allocation-head address: p must land
// precisely on a block boundary within the heap, and that block must
// not be a Continue block. Used for roots and the mark_check write
// barrier, both of which the embedder is expected to hand object
// pointers, not interior addresses.
func (h *Heap) headBlock(p unsafe.Pointer) (int64, bool) {
	if !h.contains(p) {
		return 0, false
	}
	off := int64(uintptr(p)) - int64(uintptr(h.start))
	if off%BlockSize != 0 {
		return 0, false
	}
	block := off / BlockSize
	if h.colorMap.Get(block) == Continue {
		return 0, false
	}
	return block, true
}

// scanTargetBlock resolves a conservatively-scanned interior word: p
// need not be block-aligned, it is floored down to whichever block it
// falls in, and that block must not be a Continue block. So a word
// pointing anywhere inside an allocation's head block keeps it alive,
// while a word pointing into any later block of the span is ignored.
func (h *Heap) scanTargetBlock(p unsafe.Pointer) (int64, bool) {
	if !h.contains(p) {
		return 0, false
	}
	off := int64(uintptr(p)) - int64(uintptr(h.start))
	block := off / BlockSize
	if h.colorMap.Get(block) == Continue {
		return 0, false
	}
	return block, true
}

func (h *Heap) addToCheckSpan(addr unsafe.Pointer) {
	if h.checkStart == nil || uintptr(addr) < uintptr(h.checkStart) {
		h.checkStart = addr
	}
	end := unsafe.Pointer(uintptr(addr) + uintptr(BlockSize))
	if h.checkEnd == nil || uintptr(end) > uintptr(h.checkEnd) {
		h.checkEnd = end
	}
}

// markWhite promotes a white (current-colored) head to Check and
// widens the mark range. Shared by root registration and conservative
// interior scanning; they differ only in how the candidate block is
// resolved (see headBlock vs scanTargetBlock).
func (h *Heap) markWhite(block int64) {
	if h.colorMap.Get(block) == h.current {
		h.colorMap.Set(block, Check)
		h.addToCheckSpan(h.addressOf(block))
	}
}

// MarkStart begins (or restarts) a mark cycle, graying every head
// reachable directly from roots. Root addresses outside the heap, not
// aligned to a block boundary, or not currently an allocation head are
// silently ignored as stale.
//
// Calling MarkStart while already marking is allowed: it abandons the
// in-flight cycle's mark range (any Check blocks it already produced
// are simply re-discovered, or left inert until a future cycle reaches
// them) and starts fresh against the same current/next coloring.
func (h *Heap) MarkStart(roots []unsafe.Pointer) {
	h.checkStart, h.checkEnd = nil, nil
	h.phase = phaseMarking
	for _, r := range roots {
		if block, ok := h.headBlock(r); ok {
			h.markWhite(block)
		}
	}
	tracef("mwgc: mark_start, %d roots", len(roots))
}

// MarkRound advances the mark by tracing every Check block currently
// within the mark range, recoloring each to next (black) as it's
// traced, and widening the range for anything new it discovers. It
// returns true once no gray blocks remain, at which point the heap is
// ready for Sweep.
//
// Calling MarkRound before MarkStart is a programming error and
// panics. Calling it again after it has already returned true is a
// harmless no-op.
func (h *Heap) MarkRound() bool {
	switch h.phase {
	case phaseQuiet:
		panic("mwgc: mark_round called before mark_start")
	case phaseMarked:
		return true
	}

	if h.checkStart == nil {
		h.phase = phaseMarked
		return true
	}

	start, end := h.checkStart, h.checkEnd
	h.checkStart, h.checkEnd = nil, nil

	for current := start; uintptr(current) < uintptr(end); {
		block := h.blockIndexOf(current)
		r := h.colorMap.GetRange(block)
		if r.Color == Check {
			h.scanSpan(r)
			h.colorMap.Set(block, h.next())
		}
		current = h.addressOf(r.End)
	}

	if h.checkStart == nil {
		h.phase = phaseMarked
		tracef("mwgc: mark complete")
		return true
	}
	return false
}

// scanSpan conservatively reads every machine word of r's payload and,
// for each that could be a pointer into the heap, grays the allocation
// it identifies.
func (h *Heap) scanSpan(r BlockRange) {
	p := h.addressOf(r.Start)
	limit := h.addressOf(r.End)
	for uintptr(p)+uintptr(wordSize) <= uintptr(limit) {
		word := *(*unsafe.Pointer)(p)
		if block, ok := h.scanTargetBlock(word); ok {
			h.markWhite(block)
		}
		p = unsafe.Pointer(uintptr(p) + uintptr(wordSize))
	}
}

// Mark runs MarkStart followed by MarkRound to completion, for callers
// that don't need incremental pacing.
func (h *Heap) Mark(roots []unsafe.Pointer) {
	h.MarkStart(roots)
	for !h.MarkRound() {
	}
}

// MarkCheck is the embedder's write barrier: call it with an object
// pointer immediately after storing a possibly-new pointer into that
// object's fields during an in-flight mark. If the object is already
// black (next-colored), it's demoted back to gray so the next
// MarkRound retraces its contents and picks up the new reference.
// A no-op outside a mark cycle, or on any address that isn't currently
// an allocation head.
func (h *Heap) MarkCheck(ptr unsafe.Pointer) {
	if h.phase == phaseQuiet {
		return
	}
	block, ok := h.headBlock(ptr)
	if !ok {
		return
	}
	if h.colorMap.Get(block) == h.next() {
		h.colorMap.Set(block, Check)
		h.addToCheckSpan(h.addressOf(block))
		// a round already declared the mark complete; reopen it so
		// the newly gray block gets traced before Sweep runs.
		h.phase = phaseMarking
	}
}

// Sweep reclaims every block still colored white (current) into the
// FreeList, then swaps current and next so that the survivors become
// the baseline for the following cycle. It is a programming error to
// call Sweep before a mark has run to completion.
func (h *Heap) Sweep() {
	if h.phase != phaseMarked {
		panic("mwgc: sweep called before mark completed")
	}
	reclaimed := int64(0)
	for _, sp := range h.iterate() {
		if !sp.free && sp.color == h.current {
			h.freeList.Insert(memoryFromAddresses(sp.start, sp.end))
			reclaimed += int64(uintptr(sp.end) - uintptr(sp.start))
		}
	}
	h.current = h.current.opposite()
	h.phase = phaseQuiet
	debugf("mwgc: swept %v bytes", reclaimed)
}

// Gc runs a full stop-the-world cycle: Mark followed by Sweep.
func (h *Heap) Gc(roots []unsafe.Pointer) {
	h.Mark(roots)
	h.Sweep()
}

// MarkRange reports the current gray window, mostly useful for tests
// and introspection; both are nil when nothing is pending.
func (h *Heap) MarkRange() (unsafe.Pointer, unsafe.Pointer) {
	return h.checkStart, h.checkEnd
}

// Allocate hands out a span of at least `amount` bytes, rounded up to
// a whole number of blocks (a zero-byte request still consumes one
// block). Returns ok=false, without side effects, if no free span is
// large enough; the caller is expected to Gc and retry.
//
// Allocations made mid-mark (after MarkStart, until Sweep) are stamped
// black (next) rather than gray:
// they're assumed to start empty, so they need no tracing, but any
// pointer the embedder writes into one afterward still needs a
// MarkCheck call on that object.
func (h *Heap) Allocate(amount int64) (Memory, bool) {
	blocks := ceilBlocks(amount)
	m, ok := h.freeList.Take(blocks * BlockSize)
	if !ok {
		warnf("mwgc: allocate(%v) failed, no span available", amount)
		return Memory{}, false
	}
	color := h.current
	if h.phase != phaseQuiet {
		color = h.next()
	}
	start := h.blockIndexOf(m.Ptr())
	h.colorMap.SetRange(BlockRange{Start: start, End: start + blocks, Color: color})
	// free space left behind the span may still read as Continue; give
	// it a Check head so the span's length ends where the span does.
	if end := start + blocks; end < h.blocks && h.colorMap.Get(end) == Continue {
		h.colorMap.Set(end, Check)
	}
	m.Clear()
	tracef("mwgc: allocate(%v) -> %v bytes at %p", amount, blocks*BlockSize, m.Ptr())
	return m, true
}

// mustHead resolves ptr to the block it falls in and returns that
// block's span, panicking if ptr is outside the heap or the block is a
// Continue block (a wild or mid-span pointer). It does not detect a
// span that is already free: retired blocks are stamped Check, so a
// second Retire of the same span passes this check.
func (h *Heap) mustHead(ptr unsafe.Pointer) BlockRange {
	if !h.contains(ptr) {
		panic(fmt.Errorf("mwgc: %p is not within the heap", ptr))
	}
	block := h.blockIndexOf(ptr)
	r := h.colorMap.GetRange(block)
	if r.Color == Continue {
		panic(fmt.Errorf("mwgc: %p is not an allocation head", ptr))
	}
	return r
}

// Retire returns a previously-allocated span to the FreeList
// immediately, without waiting for a GC cycle to prove it unreachable.
func (h *Heap) Retire(m Memory) {
	r := h.mustHead(m.Ptr())
	for i := r.Start; i < r.End; i++ {
		h.colorMap.Set(i, Check)
	}
	h.freeList.Insert(memoryFromAddresses(h.addressOf(r.Start), h.addressOf(r.End)))
	tracef("mwgc: retire %p, %v bytes", m.Ptr(), r.Len()*BlockSize)
}

// SizeOf reports the byte size of the allocation headed at ptr.
func (h *Heap) SizeOf(ptr unsafe.Pointer) int64 {
	return h.mustHead(ptr).Len() * BlockSize
}

// HeapStats summarizes a Heap's capacity at a point in time.
type HeapStats struct {
	TotalBytes int64
	FreeBytes  int64
}

func (hs HeapStats) String() string {
	return fmt.Sprintf(
		"total=%s free=%s",
		humanize.Bytes(uint64(hs.TotalBytes)),
		humanize.Bytes(uint64(hs.FreeBytes)),
	)
}

// Stats reports the Heap's total and currently-free capacity.
func (h *Heap) Stats() HeapStats {
	return HeapStats{TotalBytes: h.blocks * BlockSize, FreeBytes: h.freeList.Bytes()}
}

// heapSpan is one contiguous run produced by iterate: either a free
// span (tracked authoritatively by the FreeList) or a colored
// allocation span (tracked by the ColorMap).
type heapSpan struct {
	start, end unsafe.Pointer
	free       bool
	color      Color
}

// iterate walks the heap once, start to end, alternating between free
// spans (taken from the FreeList, which has the authoritative
// boundaries after coalescing) and colored spans (read off the
// ColorMap). It assumes nothing mutates the heap while it runs.
func (h *Heap) iterate() []heapSpan {
	spans := make([]heapSpan, 0, 16)
	freePtr := h.freeList.head
	current := h.start
	for uintptr(current) < uintptr(h.end) {
		if freePtr != nil && freePtr == current {
			fh := spanHeaderAt(freePtr)
			next := unsafe.Pointer(uintptr(freePtr) + uintptr(fh.size))
			spans = append(spans, heapSpan{start: current, end: next, free: true})
			current = next
			freePtr = fh.next
			continue
		}
		block := h.blockIndexOf(current)
		r := h.colorMap.GetRange(block)
		next := h.addressOf(r.End)
		spans = append(spans, heapSpan{start: current, end: next, color: r.Color})
		current = next
	}
	return spans
}

// Dump renders every span in address order as "Color[bytes]" or
// "FREE[bytes]", for debugging.
func (h *Heap) Dump() string {
	spans := h.iterate()
	parts := make([]string, len(spans))
	for i, sp := range spans {
		n := int64(uintptr(sp.end) - uintptr(sp.start))
		if sp.free {
			parts[i] = fmt.Sprintf("FREE[%v]", n)
		} else {
			parts[i] = fmt.Sprintf("%v[%v]", sp.color, n)
		}
	}
	return strings.Join(parts, ", ")
}

// DumpSpans is Dump without sizes, for tests that only care about the
// sequence of span kinds.
func (h *Heap) DumpSpans() string {
	spans := h.iterate()
	parts := make([]string, len(spans))
	for i, sp := range spans {
		if sp.free {
			parts[i] = "FREE"
		} else {
			parts[i] = sp.color.String()
		}
	}
	return strings.Join(parts, ", ")
}

func (h *Heap) String() string {
	return fmt.Sprintf(
		"Heap(blocks=%v*%v, phase=%v, %v, %v)",
		h.blocks, BlockSize, h.phase, h.colorMap.Dump(), h.freeList.String(),
	)
}

// AllocateObject allocates zeroed room for one T and returns a typed
// pointer into the heap. Generic free functions, rather than generic
// methods, because Go methods cannot carry their own type parameters.
func AllocateObject[T any](h *Heap) (*T, bool) {
	var zero T
	m, ok := h.Allocate(int64(unsafe.Sizeof(zero)))
	if !ok {
		return nil, false
	}
	return (*T)(m.Ptr()), true
}

// AllocateArray allocates zeroed room for count contiguous Ts.
func AllocateArray[T any](h *Heap, count int) ([]T, bool) {
	var zero T
	m, ok := h.Allocate(int64(unsafe.Sizeof(zero)) * int64(count))
	if !ok {
		return nil, false
	}
	return unsafe.Slice((*T)(m.Ptr()), count), true
}

// AllocateDynamicObject allocates a T plus padding trailing bytes, for
// variable-length objects (e.g. a header struct followed by inline
// element storage) that don't fit the fixed-size AllocateObject shape.
func AllocateDynamicObject[T any](h *Heap, padding int64) (*T, bool) {
	var zero T
	m, ok := h.Allocate(int64(unsafe.Sizeof(zero)) + padding)
	if !ok {
		return nil, false
	}
	return (*T)(m.Ptr()), true
}

// RetireObject returns a previously-allocated *T to the heap.
func RetireObject[T any](h *Heap, obj *T) {
	var zero T
	h.Retire(memoryFromAddresses(unsafe.Pointer(obj), unsafe.Pointer(uintptr(unsafe.Pointer(obj))+unsafe.Sizeof(zero))))
}
