package introspect_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yanet2go/internal/agent"
	"github.com/yanet-platform/yanet2go/internal/cpconfig"
	"github.com/yanet-platform/yanet2go/internal/dpdispatch"
	"github.com/yanet-platform/yanet2go/internal/introspect"
	"github.com/yanet-platform/yanet2go/internal/shm"
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

func TestTakeSnapshotsCurrentGeneration(t *testing.T) {
	zone := newZone(t)
	registry := agent.NewRegistry()
	a, err := agent.Attach(registry, zone, "route-agent", 8192)
	require.NoError(t, err)

	table := dpdispatch.NewModuleTable()
	_, err = table.Register("route", nil)
	require.NoError(t, err)
	store := cpconfig.NewStore(zone, table)

	r0, err := a.Allocate(32)
	require.NoError(t, err)
	r0.Index, r0.Name = 0, "r0"
	require.NoError(t, store.UpdateModules(context.Background(), []cpconfig.ModuleSpec{{TypeName: "route", Data: r0}}))

	snap := introspect.Take(store, registry, table)
	require.Equal(t, store.Current().Gen, snap.Gen)
	require.Len(t, snap.Modules, 1)
	require.Equal(t, "r0", snap.Modules[0].Name)
	require.Equal(t, "route", snap.Modules[0].Kind)
	require.Len(t, snap.Agents, 1)
	require.Equal(t, "route-agent", snap.Agents[0].Name)
	require.Equal(t, uint64(8192), snap.Agents[0].MemoryLimit)
}

func TestSnapshotPipelinesAndDevicesShape(t *testing.T) {
	zone := newZone(t)
	registry := agent.NewRegistry()
	a, err := agent.Attach(registry, zone, "A", 8192)
	require.NoError(t, err)

	table := dpdispatch.NewModuleTable()
	_, err = table.Register("route", nil)
	require.NoError(t, err)
	store := cpconfig.NewStore(zone, table)

	r0, err := a.Allocate(32)
	require.NoError(t, err)
	r0.Index, r0.Name = 0, "r0"
	require.NoError(t, store.UpdateModules(context.Background(), []cpconfig.ModuleSpec{{TypeName: "route", Data: r0}}))
	require.NoError(t, store.UpdatePipelines(context.Background(), []cpconfig.PipelineSpec{
		{Name: "p1", Chain: []cpconfig.PipelineModuleRef{{TypeName: "route", ConfigName: "r0"}}},
	}))
	require.NoError(t, store.UpdateDevices(context.Background(), []cpconfig.DeviceSpec{
		{DeviceID: 9, Pipelines: []cpconfig.DevicePipelineWeight{{PipelineName: "p1", Weight: 42}}},
	}))

	snap := introspect.Take(store, registry, table)

	wantPipelines := []introspect.PipelineInfo{
		{Name: "p1", Modules: []introspect.PipelineModuleInfo{{ConfigIndex: 0}}},
	}
	if diff := cmp.Diff(wantPipelines, snap.Pipelines); diff != "" {
		t.Errorf("pipeline snapshot mismatch (-want +got):\n%s", diff)
	}

	wantDevices := []introspect.DeviceInfo{
		{DeviceID: 9, Pipelines: []introspect.DevicePipelineInfo{{PipelineIndex: 0, Weight: 42}}},
	}
	if diff := cmp.Diff(wantDevices, snap.Devices); diff != "" {
		t.Errorf("device snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterModulesByGlob(t *testing.T) {
	modules := []introspect.ModuleInfo{{Name: "route-r0"}, {Name: "route-r1"}, {Name: "nat64-n0"}}

	matched, err := introspect.FilterModules(modules, "route-*")
	require.NoError(t, err)
	require.Len(t, matched, 2)

	matched, err = introspect.FilterModules(modules, "nat64-*")
	require.NoError(t, err)
	require.Len(t, matched, 1)
}
