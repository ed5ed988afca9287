package dpdispatch_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/yanet2go/internal/agent"
	"github.com/yanet-platform/yanet2go/internal/cpconfig"
	"github.com/yanet-platform/yanet2go/internal/dpdispatch"
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

func TestModuleTableRegisterRejectsDuplicate(t *testing.T) {
	table := dpdispatch.NewModuleTable()
	_, err := table.Register("route", nil)
	require.NoError(t, err)
	_, err = table.Register("route", nil)
	require.Error(t, err)
}

func TestPacketFrontAdvanceSwaps(t *testing.T) {
	pf := dpdispatch.NewPacketFront([]dpdispatch.Packet{{FlowTuple: []byte("a")}})
	pf.Output = append(pf.Output, dpdispatch.Packet{FlowTuple: []byte("b")})
	pf.Advance()
	require.Len(t, pf.Input, 1)
	require.Equal(t, "b", string(pf.Input[0].FlowTuple))
	require.Len(t, pf.Output, 0)
}

// An end-to-end dispatch: one module bumps a counter on every packet
// and forwards it; the worker must observe the published generation
// and route the batch to the output handler.
func TestWorkerDispatchRunsPipelineAndPublishesQuiescence(t *testing.T) {
	zone := newZone(t)
	table := dpdispatch.NewModuleTable()

	var handled int
	_, err := table.Register("route", func(payload any, pf *dpdispatch.PacketFront) {
		for _, p := range pf.Input {
			handled++
			pf.Output = append(pf.Output, p)
		}
	})
	require.NoError(t, err)

	store := cpconfig.NewStore(zone, table)

	registry := agent.NewRegistry()
	a, err := agent.Attach(registry, zone, "A", 8192)
	require.NoError(t, err)
	md, err := a.Allocate(32)
	require.NoError(t, err)
	md.Index, md.Name = 0, "r0"
	require.NoError(t, store.UpdateModules(context.Background(), []cpconfig.ModuleSpec{{TypeName: "route", Data: md}}))
	require.NoError(t, store.UpdatePipelines(context.Background(), []cpconfig.PipelineSpec{
		{Name: "p1", Chain: []cpconfig.PipelineModuleRef{{TypeName: "route", ConfigName: "r0"}}},
	}))
	require.NoError(t, store.UpdateDevices(context.Background(), []cpconfig.DeviceSpec{
		{DeviceID: 1, Pipelines: []cpconfig.DevicePipelineWeight{{PipelineName: "p1", Weight: 1}}},
	}))

	var routed []dpdispatch.Packet
	w := dpdispatch.NewWorker(0, store, table, func(deviceID uint32, out []dpdispatch.Packet) {
		routed = out
	})
	store.RegisterWorker(w)

	w.Dispatch(1, []dpdispatch.Packet{{FlowTuple: []byte("flow-1")}})

	require.Equal(t, 1, handled)
	require.Len(t, routed, 1)
	require.Equal(t, store.Current().Gen, w.ObservedGen())
}

type fakeSource struct {
	deviceID uint32
	batch    []dpdispatch.Packet
	sent     chan struct{}
	sentOnce bool
}

func (s *fakeSource) Next(ctx context.Context) (uint32, []dpdispatch.Packet, error) {
	if !s.sentOnce {
		s.sentOnce = true
		close(s.sent)
		return s.deviceID, s.batch, nil
	}
	<-ctx.Done()
	return 0, nil, ctx.Err()
}

func TestRuntimeRunDispatchesUntilCancelled(t *testing.T) {
	zone := newZone(t)
	table := dpdispatch.NewModuleTable()
	store := cpconfig.NewStore(zone, table)

	src := &fakeSource{deviceID: 1, batch: []dpdispatch.Packet{{FlowTuple: []byte("x")}}, sent: make(chan struct{})}
	rt := dpdispatch.NewRuntime(store, table, []dpdispatch.BatchSource{src}, nil)
	require.Len(t, rt.Workers(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	select {
	case <-src.sent:
	case <-time.After(time.Second):
		t.Fatal("source never received a Next call")
	}
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runtime did not stop after cancel")
	}
}
