package lmacho

import (
	"debug/macho"
	"math/bits"
)

const (
	AlignBitMax   uint32 = 15
	AlignBitMin64 uint32 = 3
	AlignBitMin32 uint32 = 2

	alignBitMinSegment uint32 = 5
)

// SegmentAlignBit returns the smallest alignment of the segment addresses of f.
func SegmentAlignBit(f *macho.File) uint32 {
	cur := AlignBitMax
	for _, l := range f.Loads {
		if s, ok := l.(*macho.Segment); ok {
			cur = min(cur, GuessAlignBit(s.Addr, alignBitMinSegment, AlignBitMax))
		}
	}
	return cur
}

// GuessAlignBit returns the position of the lowest set bit of addr, clamped
// to [lo, hi]. Zero is aligned to anything.
func GuessAlignBit(addr uint64, lo, hi uint32) uint32 {
	if addr == 0 {
		return hi
	}
	return max(lo, min(hi, uint32(bits.TrailingZeros64(addr))))
}
