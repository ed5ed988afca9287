// Package numa provides a bitmap type identifying which NUMA nodes a
// shared-memory segment has zones for, mirroring the header's
// numa_map field from spec.md §3/§6.
package numa

import (
	"iter"
	"math/bits"

	"github.com/yanet-platform/yanet2go/internal/bitset"
)

// Max is the NUMA map with every node set.
const Max = Map(^uint32(0))

// Map is a bitmap of NUMA node indices, one bit per node.
type Map uint32

// WithOneBitSet returns a Map with only the given zero-based node index
// set. Panics if idx >= 32.
func WithOneBitSet(idx uint32) Map {
	if idx >= 32 {
		panic("numa: index is out of range")
	}
	return Map(1 << idx)
}

// IsEmpty reports whether no node is set.
func (m Map) IsEmpty() bool { return m == 0 }

// Len returns the number of populated nodes.
func (m Map) Len() int { return bits.OnesCount32(uint32(m)) }

// Has reports whether the given node index is populated.
func (m Map) Has(idx uint32) bool {
	if idx >= 32 {
		return false
	}
	return m&(1<<idx) != 0
}

// Set returns a copy of m with the given node index marked populated.
func (m Map) Set(idx uint32) Map {
	if idx >= 32 {
		panic("numa: index is out of range")
	}
	return m | (1 << idx)
}

// Iter iterates over the populated node indices, ascending.
func (m Map) Iter() iter.Seq[uint32] {
	return bitset.NewBitsTraverser(uint64(m)).Iter()
}
