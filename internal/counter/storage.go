package counter

import (
	"sync/atomic"

	"github.com/yanet-platform/yanet2go/internal/memctx"
)

// PageSize is the fixed page size backing each pool's blocks.
const PageSize = 4096

// PageSlots is the number of uint64 counter slots per page.
const PageSlots = PageSize / 8

type block struct {
	// data holds instanceCount slices of PageSlots uint64 values each,
	// laid out instance-major: data[i*PageSlots : (i+1)*PageSlots] is
	// instance i's share of this page.
	data     []uint64
	refcount atomic.Int32
}

// Storage is a per-pool array of fixed-size pages, one instance slice
// per DP instance, shared across overlapping generations by
// refcounting.
type Storage struct {
	instanceCount int
	pools         [PoolCount][]*block
}

// Spawn allocates a storage snapshot sized to registry's current pool
// watermarks. Blocks are reused (refcount incremented) from old where
// old has at least as many blocks for a pool and the instance count is
// unchanged; only the extra blocks are freshly allocated and charged
// to mctx.
func Spawn(mctx *memctx.Context, old *Storage, registry *Registry, instanceCount int) *Storage {
	watermarks := registry.poolSlots()

	s := &Storage{instanceCount: instanceCount}
	for p := 0; p < PoolCount; p++ {
		neededBlocks := int((watermarks[p] + PageSlots - 1) / PageSlots)
		pool := make([]*block, neededBlocks)

		var oldPool []*block
		canReuse := old != nil && old.instanceCount == instanceCount
		if canReuse {
			oldPool = old.pools[p]
		}

		for i := 0; i < neededBlocks; i++ {
			if i < len(oldPool) {
				oldPool[i].refcount.Add(1)
				pool[i] = oldPool[i]
				continue
			}
			b := &block{data: make([]uint64, instanceCount*PageSlots)}
			b.refcount.Store(1)
			mctx.ChargeAlloc(len(b.data) * 8)
			pool[i] = b
		}
		s.pools[p] = pool
	}
	return s
}

// Free decrements the refcount of every block in storage, charging
// freed bytes back to mctx for blocks that drop to zero references.
func Free(mctx *memctx.Context, storage *Storage) {
	for p := 0; p < PoolCount; p++ {
		for _, b := range storage.pools[p] {
			if b.refcount.Add(-1) == 0 {
				mctx.ChargeFree(len(b.data) * 8)
			}
		}
	}
}

// RefCount returns the current refcount of the block backing h, for
// tests asserting page-sharing (P5).
func (s *Storage) RefCount(h Handle) int32 {
	blockIdx := h.Offset / PageSlots
	return s.pools[h.Pool][blockIdx].refcount.Load()
}

// Values returns the live slice of h.Size counter slots for the given
// instance. Mutating the returned slice increments the counter
// in-place; no atomics are required because each instance's region is
// write-partitioned to exactly one DP worker.
func (s *Storage) Values(h Handle, instance int) []uint64 {
	blockIdx := h.Offset / PageSlots
	intra := int(h.Offset % PageSlots)
	b := s.pools[h.Pool][blockIdx]
	start := instance*PageSlots + intra
	return b.data[start : start+h.Size : start+h.Size]
}

// Add increments the first slot of h for the given instance by delta.
// This is the fast, lock-free, allocation-free increment path DP
// workers use on the packet path.
func (s *Storage) Add(h Handle, instance int, delta uint64) {
	s.Values(h, instance)[0] += delta
}

// HandleAccum returns the element-wise sum, across instances
// [0, instanceCount), of the size-Size counter values at h — the law
// tested as P6.
func HandleAccum(accum []uint64, instanceCount int, h Handle, s *Storage) []uint64 {
	if accum == nil {
		accum = make([]uint64, h.Size)
	}
	for i := 0; i < instanceCount; i++ {
		vals := s.Values(h, i)
		for j := range accum {
			accum[j] += vals[j]
		}
	}
	return accum
}
