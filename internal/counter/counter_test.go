package counter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yanet2go/internal/balloc"
	"github.com/yanet-platform/yanet2go/internal/counter"
	"github.com/yanet-platform/yanet2go/internal/memctx"
)

func newMemCtx() *memctx.Context {
	return memctx.New("test", balloc.New(make([]byte, 1<<20)))
}

// S1: attach to a fresh zone; register one counter ("pkts",1).
func TestRegisterFirstCounter(t *testing.T) {
	reg := counter.NewRegistry()

	id, err := reg.Register("pkts", 1, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), id)

	_, ok := reg.Handle(id)
	require.False(t, ok, "offset must stay unassigned until Link")

	linked := counter.NewRegistry()
	counter.Link(linked, reg)

	h, ok := linked.Handle(id)
	require.True(t, ok)
	require.Equal(t, 0, h.Pool)
}

// S2: spawn counter storage, increment counter 0 for instances 0..3 by
// (10, 20, 30, 40); HandleAccum over 4 instances returns 100.
func TestSpawnIncrementAccum(t *testing.T) {
	reg := counter.NewRegistry()
	id, err := reg.Register("pkts", 1, 1)
	require.NoError(t, err)

	linked := counter.NewRegistry()
	counter.Link(linked, reg)
	h, ok := linked.Handle(id)
	require.True(t, ok)

	mctx := newMemCtx()
	storage := counter.Spawn(mctx, nil, linked, 4)

	storage.Add(h, 0, 10)
	storage.Add(h, 1, 20)
	storage.Add(h, 2, 30)
	storage.Add(h, 3, 40)

	accum := counter.HandleAccum(nil, 4, h, storage)
	require.Equal(t, []uint64{100}, accum)
}

func TestRegisterRejectsBadSize(t *testing.T) {
	reg := counter.NewRegistry()
	_, err := reg.Register("pkts", 3, 1)
	require.Error(t, err)
}

func TestDistinctSizesCoexist(t *testing.T) {
	reg := counter.NewRegistry()
	id1, err := reg.Register("pkts", 1, 1)
	require.NoError(t, err)
	id2, err := reg.Register("pkts", 4, 1)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

// P5: a storage spawned from an old one with an unchanged pool size
// shares every block in that pool (refcount >= 2).
func TestPageSharingAcrossSpawn(t *testing.T) {
	reg := counter.NewRegistry()
	id, err := reg.Register("bytes", 1, 1)
	require.NoError(t, err)

	linked := counter.NewRegistry()
	counter.Link(linked, reg)
	h, _ := linked.Handle(id)

	mctx := newMemCtx()
	old := counter.Spawn(mctx, nil, linked, 2)
	require.EqualValues(t, 1, old.RefCount(h))

	next := counter.Spawn(mctx, old, linked, 2)
	require.EqualValues(t, 2, old.RefCount(h))
	require.EqualValues(t, 2, next.RefCount(h))
}

func TestOffsetStableAcrossIncrementalLink(t *testing.T) {
	gen1 := counter.NewRegistry()
	idA, err := gen1.Register("a", 1, 1)
	require.NoError(t, err)

	linked1 := counter.NewRegistry()
	counter.Link(linked1, gen1)
	hA1, ok := linked1.Handle(idA)
	require.True(t, ok)

	// A second reconfiguration round re-registers "a" and adds "b".
	gen2 := counter.NewRegistry()
	idA2, err := gen2.Register("a", 1, 2)
	require.NoError(t, err)
	idB, err := gen2.Register("b", 1, 2)
	require.NoError(t, err)
	require.Equal(t, idA, idA2, "\"a\" is the first registration in both registries, so both assign it id 0")

	linked2 := counter.NewRegistry()
	counter.Link(linked2, linked1) // carry forward "a"'s already-assigned offset
	counter.Link(linked2, gen2)    // then layer in round 2's registrations

	hA2, ok := linked2.Handle(idA2)
	require.True(t, ok)
	require.Equal(t, hA1.Offset, hA2.Offset, "a's storage offset must not move across reconfiguration")

	hB, ok := linked2.Handle(idB)
	require.True(t, ok)
	require.NotEqual(t, hA2.Offset, hB.Offset)
}

func TestFreeReclaimsUnsharedBlocks(t *testing.T) {
	reg := counter.NewRegistry()
	id, err := reg.Register("pkts", 1, 1)
	require.NoError(t, err)
	linked := counter.NewRegistry()
	counter.Link(linked, reg)
	h, _ := linked.Handle(id)

	mctx := newMemCtx()
	s := counter.Spawn(mctx, nil, linked, 1)
	require.True(t, mctx.Leaked())

	counter.Free(mctx, s)
	require.Equal(t, mctx.BallocSize(), mctx.BfreeSize())
	_ = h
}
