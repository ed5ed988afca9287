package memctx_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yanet2go/internal/balloc"
	"github.com/yanet-platform/yanet2go/internal/memctx"
)

func TestLeakFreedom(t *testing.T) {
	arena := make([]byte, 1<<16)
	ctx := memctx.New("test-owner", balloc.New(arena))

	var ptrs []int
	for range 8 {
		p, err := ctx.Alloc(128)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	require.True(t, ctx.Leaked())

	for _, p := range ptrs {
		ctx.Free(p, 128)
	}
	require.False(t, ctx.Leaked())
	require.Equal(t, ctx.BallocSize(), ctx.BfreeSize())
}

func TestChargeOnly(t *testing.T) {
	ctx := memctx.New("logical-owner", balloc.New(nil))
	ctx.ChargeAlloc(64)
	require.True(t, ctx.Leaked())
	ctx.ChargeFree(64)
	require.False(t, ctx.Leaked())
}
