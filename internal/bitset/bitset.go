// Package bitset implements a single-word bit traverser used to
// iterate NUMA bitmaps without allocating.
package bitset

import (
	"iter"
	"math/bits"
)

// BitsTraverser iterates over the set bits of a single 64-bit word,
// from least to most significant.
type BitsTraverser struct {
	word uint64
}

// NewBitsTraverser constructs a traverser over the given word.
func NewBitsTraverser(word uint64) BitsTraverser {
	return BitsTraverser{word: word}
}

// Traverse calls fn for each set bit, stopping early if fn returns
// false.
func (t BitsTraverser) Traverse(fn func(uint32) bool) bool {
	word := t.word
	for word > 0 {
		r := bits.TrailingZeros64(word)
		// Isolates the lowest set bit; xor-ing it back out clears
		// that bit, which compiles to a single blsr instruction on amd64.
		low := word & -word
		word ^= low

		if !fn(uint32(r)) {
			return false
		}
	}
	return true
}

// Iter returns an iterator over the set bits of word.
func (t BitsTraverser) Iter() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		t.Traverse(yield)
	}
}
