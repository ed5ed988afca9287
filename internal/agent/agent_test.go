package agent_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yanet2go/internal/agent"
	"github.com/yanet-platform/yanet2go/internal/shm"
	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

func newZone(t *testing.T) *shm.Zone {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yanet-shm")
	seg, err := shm.Attach(path, 1<<20, 0)
	require.NoError(t, err)
	t.Cleanup(func() { seg.Detach() })
	z, _ := seg.Zone(0)
	return z
}

func TestAttachDetach(t *testing.T) {
	zone := newZone(t)
	registry := agent.NewRegistry()

	a, err := agent.Attach(registry, zone, "route", 4096)
	require.NoError(t, err)
	require.Equal(t, "route", a.Name())
	require.Len(t, registry.Agents(), 1)

	require.NoError(t, agent.Detach(a))
	require.Len(t, registry.Agents(), 0)
}

func TestAttachDuplicateNameFails(t *testing.T) {
	zone := newZone(t)
	registry := agent.NewRegistry()

	_, err := agent.Attach(registry, zone, "route", 4096)
	require.NoError(t, err)

	_, err = agent.Attach(registry, zone, "route", 4096)
	require.ErrorIs(t, err, xerrors.ErrExists)
}

func TestDetachWithLoadedModulesFails(t *testing.T) {
	zone := newZone(t)
	registry := agent.NewRegistry()
	a, err := agent.Attach(registry, zone, "route", 4096)
	require.NoError(t, err)

	md, err := a.Allocate(128)
	require.NoError(t, err)
	md.Index, md.Name = 0, "r0"
	a.Track(md)

	err = agent.Detach(a)
	require.Error(t, err)

	a.MarkSuperseded(md)
	a.SpliceFree(md)
	require.NoError(t, agent.Detach(a))
}

// P4: after attach/detach of N agents each registering M modules and
// then cleanly detaching, the CP memory context has balloc == bfree.
func TestLeakFreedomAcrossManyAgents(t *testing.T) {
	zone := newZone(t)
	registry := agent.NewRegistry()

	for i := 0; i < 5; i++ {
		a, err := agent.Attach(registry, zone, string(rune('a'+i)), 8192)
		require.NoError(t, err)

		var mds []*agent.ModuleData
		for j := 0; j < 4; j++ {
			md, err := a.Allocate(64)
			require.NoError(t, err)
			md.Index, md.Name = j, "m"
			a.Track(md)
			mds = append(mds, md)
		}
		for _, md := range mds {
			a.MarkSuperseded(md)
			a.SpliceFree(md)
		}
		require.NoError(t, agent.Detach(a))
	}

	require.Equal(t, zone.MemCtx().BallocSize(), zone.MemCtx().BfreeSize())
}
