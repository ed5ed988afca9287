package cpconfig_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yanet2go/internal/agent"
	"github.com/yanet-platform/yanet2go/internal/cpconfig"
	"github.com/yanet-platform/yanet2go/internal/shm"
	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

type fakeResolver struct {
	kinds map[string]int
}

func (f *fakeResolver) LookupKind(name string) (int, bool) {
	idx, ok := f.kinds[name]
	return idx, ok
}

type fakeWorker struct {
	gen atomic.Uint64
}

func (w *fakeWorker) ObservedGen() uint64 { return w.gen.Load() }
func (w *fakeWorker) Advance(gen uint64)  { w.gen.Store(gen) }

func newZone(t *testing.T) *shm.Zone {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yanet-shm")
	seg, err := shm.Attach(path, 1<<20, 0)
	require.NoError(t, err)
	t.Cleanup(func() { seg.Detach() })
	z, _ := seg.Zone(0)
	return z
}

func allocModule(t *testing.T, a *agent.Agent, index int, name string) *agent.ModuleData {
	t.Helper()
	md, err := a.Allocate(32)
	require.NoError(t, err)
	md.Index, md.Name = index, name
	return md
}

// S3: Agent A registers modules ("route","r0") and ("nat64","n0").
// Publish. Current generation has module_count == 2 and gen ==
// previous+1.
func TestUpdateModulesAppendsAndBumpsGen(t *testing.T) {
	zone := newZone(t)
	registry := agent.NewRegistry()
	a, err := agent.Attach(registry, zone, "A", 8192)
	require.NoError(t, err)

	resolver := &fakeResolver{kinds: map[string]int{"route": 0, "nat64": 1}}
	store := cpconfig.NewStore(zone, resolver)
	startGen := store.Current().Gen

	r0 := allocModule(t, a, 0, "r0")
	r0.Agent = a
	n0 := allocModule(t, a, 1, "n0")
	n0.Agent = a

	err = store.UpdateModules(context.Background(), []cpconfig.ModuleSpec{
		{TypeName: "route", Data: r0},
		{TypeName: "nat64", Data: n0},
	})
	require.NoError(t, err)

	cur := store.Current()
	require.Len(t, cur.Modules.Entries, 2)
	require.Equal(t, startGen+1, cur.Gen)
	require.Equal(t, 2, a.LoadedModuleCount())
}

// S4 (implicit): a pipeline can reference modules registered in a
// prior UpdateModules call, and a device can select between pipelines
// registered in a prior UpdatePipelines call.
func TestUpdatePipelinesAndDevicesChainTogether(t *testing.T) {
	zone := newZone(t)
	registry := agent.NewRegistry()
	a, err := agent.Attach(registry, zone, "A", 8192)
	require.NoError(t, err)

	resolver := &fakeResolver{kinds: map[string]int{"route": 0}}
	store := cpconfig.NewStore(zone, resolver)

	r0 := allocModule(t, a, 0, "r0")
	r0.Agent = a
	require.NoError(t, store.UpdateModules(context.Background(), []cpconfig.ModuleSpec{
		{TypeName: "route", Data: r0},
	}))

	require.NoError(t, store.UpdatePipelines(context.Background(), []cpconfig.PipelineSpec{
		{Name: "p1", Chain: []cpconfig.PipelineModuleRef{{TypeName: "route", ConfigName: "r0"}}},
	}))
	require.Len(t, store.Current().Pipelines.Entries, 1)

	require.NoError(t, store.UpdateDevices(context.Background(), []cpconfig.DeviceSpec{
		{DeviceID: 7, Pipelines: []cpconfig.DevicePipelineWeight{{PipelineName: "p1", Weight: 100}}},
	}))
	require.Equal(t, uint32(100), store.Current().Devices.Entries[7][0].Weight)
}

// S5. Agent A re-publishes ("route","r0") with a new payload. New
// generation's module registry has the same count; slot for r0 now
// references the new data; old data is chained via prev; after
// quiescence the old data's storage is reclaimed into A's free list.
// A subsequent detach still fails: UpdateModules has no way to remove
// r0 from the registry, so A's loaded_module_count stays at 1.
func TestUpdateModulesReplaceChainsPrevAndReclaims(t *testing.T) {
	zone := newZone(t)
	registry := agent.NewRegistry()
	a, err := agent.Attach(registry, zone, "A", 8192)
	require.NoError(t, err)

	resolver := &fakeResolver{kinds: map[string]int{"route": 0}}
	store := cpconfig.NewStore(zone, resolver)

	r0v1 := allocModule(t, a, 0, "r0")
	r0v1.Agent, r0v1.Payload = a, "v1"
	require.NoError(t, store.UpdateModules(context.Background(), []cpconfig.ModuleSpec{{TypeName: "route", Data: r0v1}}))
	require.Equal(t, 1, a.LoadedModuleCount())

	r0v2 := allocModule(t, a, 0, "r0")
	r0v2.Agent, r0v2.Payload = a, "v2"
	require.NoError(t, store.UpdateModules(context.Background(), []cpconfig.ModuleSpec{{TypeName: "route", Data: r0v2}}))

	cur := store.Current()
	require.Len(t, cur.Modules.Entries, 1)
	require.Equal(t, "v2", cur.Modules.Entries[0].Payload)
	require.Same(t, r0v1, cur.Modules.Entries[0].Prev)
	require.Equal(t, 1, a.LoadedModuleCount(), "replace nets to the same owner's count")

	require.Equal(t, 1, a.Reclaim(), "old version spliced onto free list at step 8")

	require.NoError(t, store.UpdateModules(context.Background(), nil))

	require.Error(t, agent.Detach(a), "loaded_module_count != 0 until the module is explicitly unlinked")
}

// S6. Attempt to publish pipeline p1 = ["route":missing]. Returns
// error NotFound; the current-generation pointer is unchanged (P2); no
// new objects remain in the CP arena.
func TestUpdatePipelinesUnknownModuleAborts(t *testing.T) {
	zone := newZone(t)
	resolver := &fakeResolver{kinds: map[string]int{"route": 0}}
	store := cpconfig.NewStore(zone, resolver)
	before := store.Current()

	err := store.UpdatePipelines(context.Background(), []cpconfig.PipelineSpec{
		{Name: "p1", Chain: []cpconfig.PipelineModuleRef{{TypeName: "route", ConfigName: "missing"}}},
	})
	require.ErrorIs(t, err, xerrors.ErrNotFound)
	require.Same(t, before, store.Current(), "P2: current generation pointer unchanged on failed update")
}

func TestUpdatePipelinesUnknownTypeAborts(t *testing.T) {
	zone := newZone(t)
	resolver := &fakeResolver{kinds: map[string]int{"route": 0}}
	store := cpconfig.NewStore(zone, resolver)

	err := store.UpdatePipelines(context.Background(), []cpconfig.PipelineSpec{
		{Name: "p1", Chain: []cpconfig.PipelineModuleRef{{TypeName: "bogus", ConfigName: "r0"}}},
	})
	require.ErrorIs(t, err, xerrors.ErrNotFound)
}

// P1: across any sequence of successful update_* calls, the
// generation counter strictly increases.
func TestGenerationMonotonicity(t *testing.T) {
	zone := newZone(t)
	store := cpconfig.NewStore(zone, &fakeResolver{kinds: map[string]int{}})

	var last uint64
	for i := 0; i < 5; i++ {
		require.NoError(t, store.UpdateDevices(context.Background(), nil))
		gen := store.Current().Gen
		require.Greater(t, gen, last)
		last = gen
	}
}

// P3 (model-checked with a synthetic quiescence signal): a DP worker
// that has not yet advanced its observed generation blocks the
// publisher from reclaiming, so it can never dereference a registry
// node whose memory has already been returned to the block allocator.
func TestQuiescenceBlocksReclaimUntilWorkerAdvances(t *testing.T) {
	zone := newZone(t)
	registry := agent.NewRegistry()
	a, err := agent.Attach(registry, zone, "A", 8192)
	require.NoError(t, err)

	resolver := &fakeResolver{kinds: map[string]int{"route": 0}}
	store := cpconfig.NewStore(zone, resolver)
	store.QuiescenceTimeout = 50 * time.Millisecond

	worker := &fakeWorker{}
	store.RegisterWorker(worker)

	r0 := allocModule(t, a, 0, "r0")
	r0.Agent = a

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = store.UpdateModules(ctx, []cpconfig.ModuleSpec{{TypeName: "route", Data: r0}})
	require.ErrorIs(t, err, xerrors.ErrStuck, "worker never advanced past gen 0")

	worker.Advance(^uint64(0)) // catch up past any future generation
	err = store.UpdateModules(context.Background(), nil)
	require.NoError(t, err, "once the worker catches up the publisher proceeds")
}
