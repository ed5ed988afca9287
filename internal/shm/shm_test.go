package shm_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yanet2go/internal/shm"
)

func TestAttachDetach(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yanet-shm")

	seg, err := shm.Attach(path, 1<<20, 0, 1)
	require.NoError(t, err)
	defer seg.Detach()

	require.Equal(t, 2, seg.NumaMap().Len())
	require.True(t, seg.NumaMap().Has(0))
	require.True(t, seg.NumaMap().Has(1))

	z0, ok := seg.Zone(0)
	require.True(t, ok)
	require.Equal(t, uint32(0), z0.NumaIdx)

	_, ok = seg.Zone(5)
	require.False(t, ok)

	require.NoError(t, seg.Detach())
	require.NoError(t, seg.Detach()) // idempotent
}

func TestZoneLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yanet-shm")
	seg, err := shm.Attach(path, 1<<16, 0)
	require.NoError(t, err)
	defer seg.Detach()

	z, _ := seg.Zone(0)
	z.Lock()
	require.NotZero(t, z.LockHolder())
	z.Unlock()
	require.Zero(t, z.LockHolder())
}
