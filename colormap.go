package mwgc

import "fmt"

// Color is the 2-bit per-block tag stored in the ColorMap.
type Color uint8

const (
	// Continue marks a block that is not an allocation head: it belongs
	// to the contiguous span whose head precedes it.
	Continue Color = 0x0
	// Blue is live-color A (or, when it is not the current live color,
	// free).
	Blue Color = 0x1
	// Green is live-color B (or, when it is not the current live color,
	// free).
	Green Color = 0x2
	// Check is gray: seen by mark but its children not yet traced.
	Check Color = 0x3
)

func (c Color) String() string {
	switch c {
	case Continue:
		return "Continue"
	case Blue:
		return "Blue"
	case Green:
		return "Green"
	case Check:
		return "Check"
	}
	return "invalid"
}

// opposite returns the other live color. Check and Continue map to
// themselves; they are not live colors.
func (c Color) opposite() Color {
	switch c {
	case Blue:
		return Green
	case Green:
		return Blue
	}
	return c
}

// blocksPerColormapByte: 8 bits per byte, 2 bits per block.
const blocksPerColormapByte = 4

// BlockRange names a contiguous run of blocks, in block-index units,
// starting at the allocation head Start and ending (exclusive) at End;
// the head has color Color and the rest are Continue.
type BlockRange struct {
	Start, End int64
	Color      Color
}

// Len reports the number of blocks in the range.
func (r BlockRange) Len() int64 {
	return r.End - r.Start
}

// ColorMap is a packed array of 2-bit color entries, one per block,
// stored at the tail of the heap's backing region.
type ColorMap struct {
	bits   []byte
	blocks int64
}

// newColorMap carves a ColorMap out of m. Every block starts out Check
// (the bytes are filled with 0xff), so an untouched map scans as a row
// of one-block spans whose color equals neither live color. NewHeap
// then stamps the whole pool as a single Check-headed span with
// SetRange.
func newColorMap(m Memory, blocks int64) *ColorMap {
	bits := m.Bytes()
	for i := range bits {
		bits[i] = 0xff
	}
	return &ColorMap{bits: bits, blocks: blocks}
}

// colormapBytes returns the number of bytes needed to describe `blocks`
// blocks at 2 bits each.
func colormapBytes(blocks int64) int64 {
	return (blocks + blocksPerColormapByte - 1) / blocksPerColormapByte
}

// Blocks returns the number of blocks this map describes.
func (cm *ColorMap) Blocks() int64 {
	return cm.blocks
}

// Get returns the color of block n.
func (cm *ColorMap) Get(n int64) Color {
	shift := uint((n & 3) * 2)
	mask := byte(3) << shift
	return Color((cm.bits[n/4] & mask) >> shift)
}

// Set stamps block n with color.
func (cm *ColorMap) Set(n int64, color Color) {
	shift := uint((n & 3) * 2)
	mask := ^(byte(3) << shift)
	cm.bits[n/4] = (cm.bits[n/4] & mask) | (byte(color) << shift)
}

// SetRun stamps headColor at start and Continue at the next count-1
// indices.
func (cm *ColorMap) SetRun(start, count int64, headColor Color) {
	cm.Set(start, headColor)
	for i := start + 1; i < start+count; i++ {
		cm.Set(i, Continue)
	}
}

// SpanLength scans forward from a non-Continue head, counting Continue
// blocks, until it finds another non-Continue block or runs off the end
// of the map. Undefined if start is itself Continue.
func (cm *ColorMap) SpanLength(start int64) int64 {
	end := start + 1
	for end < cm.blocks && cm.Get(end) == Continue {
		end++
	}
	return end - start
}

// GetRange is SpanLength packaged as a BlockRange, along with the head's
// own color.
func (cm *ColorMap) GetRange(n int64) BlockRange {
	color := cm.Get(n)
	length := cm.SpanLength(n)
	return BlockRange{Start: n, End: n + length, Color: color}
}

// SetRange stamps range.Color at range.Start and Continue for the rest
// of the range.
func (cm *ColorMap) SetRange(r BlockRange) {
	cm.SetRun(r.Start, r.Len(), r.Color)
}

// NextAllocation locates the next non-Continue block at or after from,
// returning ok=false if the map ends first.
func (cm *ColorMap) NextAllocation(from int64) (index int64, color Color, ok bool) {
	for i := from; i < cm.blocks; i++ {
		if c := cm.Get(i); c != Continue {
			return i, c, true
		}
	}
	return 0, 0, false
}

// Dump renders every block's color as a single character, for debugging:
// '.' Continue, 'B' Blue, 'G' Green, 'C' Check.
func (cm *ColorMap) Dump() string {
	buf := make([]byte, cm.blocks)
	for i := int64(0); i < cm.blocks; i++ {
		switch cm.Get(i) {
		case Blue:
			buf[i] = 'B'
		case Green:
			buf[i] = 'G'
		case Check:
			buf[i] = 'C'
		default:
			buf[i] = '.'
		}
	}
	return fmt.Sprintf("ColorMap(%s)", buf)
}
