package dpdispatch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/yanet2go/internal/cpconfig"
)

// BatchSource supplies the next batch for a worker to dispatch; it
// blocks until a batch is ready or ctx is done. Workers are meant to
// run pinned to a core polling a NIC ring; this interface lets tests
// and non-DPDK embeddings supply batches without depending on any
// particular I/O layer.
type BatchSource interface {
	Next(ctx context.Context) (deviceID uint32, batch []Packet, err error)
}

// Runtime owns a pool of DP workers, one goroutine per worker,
// registering each with the config store so publish's quiescence wait
// can see it (spec.md §4.5, "each worker runs in its own thread pinned
// to a core").
type Runtime struct {
	workers []*Worker
	sources []BatchSource
}

// NewRuntime builds a Runtime with one worker per source, each reading
// generations from store and resolving module kinds via table.
func NewRuntime(store *cpconfig.Store, table *ModuleTable, sources []BatchSource, output OutputHandler) *Runtime {
	rt := &Runtime{sources: sources}
	for i, src := range sources {
		w := NewWorker(i, store, table, output)
		store.RegisterWorker(w)
		rt.workers = append(rt.workers, w)
		_ = src
	}
	return rt
}

// Workers returns the runtime's workers, in source order.
func (rt *Runtime) Workers() []*Worker { return rt.workers }

// Run starts every worker's dispatch loop and blocks until ctx is
// cancelled or a worker's source returns a non-context error, in which
// case every other worker is stopped too.
func (rt *Runtime) Run(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)

	for i, w := range rt.workers {
		w, src := w, rt.sources[i]
		wg.Go(func() error {
			return runLoop(ctx, w, src)
		})
	}

	return wg.Wait()
}

func runLoop(ctx context.Context, w *Worker, src BatchSource) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deviceID, batch, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		w.Dispatch(deviceID, batch)
	}
}
