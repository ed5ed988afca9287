package balloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yanet2go/internal/balloc"
	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	arena := make([]byte, 1<<20)
	a := balloc.New(arena)

	p1, err := a.Alloc(100)
	require.NoError(t, err)

	p2, err := a.Alloc(100)
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)

	a.Free(p1, 100)
	a.Free(p2, 100)

	// After freeing both blocks they should merge back, allowing a
	// single allocation that spans the whole arena to succeed.
	p3, err := a.Alloc(len(arena))
	require.NoError(t, err)
	require.Equal(t, 0, p3)
}

func TestAllocOOM(t *testing.T) {
	arena := make([]byte, 1<<10)
	a := balloc.New(arena)

	_, err := a.Alloc(1 << 20)
	require.ErrorIs(t, err, xerrors.ErrOutOfMemory)
}

func TestAllocManySmallBlocks(t *testing.T) {
	arena := make([]byte, 1<<16)
	a := balloc.New(arena)

	seen := map[int]bool{}
	var ptrs []int
	for range 64 {
		p, err := a.Alloc(64)
		require.NoError(t, err)
		require.False(t, seen[p], "block %d allocated twice", p)
		seen[p] = true
		ptrs = append(ptrs, p)
	}

	for _, p := range ptrs {
		a.Free(p, 64)
	}

	// Fully reclaimed arena can satisfy one big allocation again.
	_, err := a.Alloc(len(arena))
	require.NoError(t, err)
}
