package dpdispatch

import (
	"sync/atomic"

	"github.com/yanet-platform/yanet2go/internal/cpconfig"
	"github.com/yanet-platform/yanet2go/internal/hashsel"
)

// OutputHandler routes a pipeline's final output batch to a device's
// egress (spec.md §4.5 step 5). The core does not specify what this
// does with the packets; it is supplied by the embedding DP process.
type OutputHandler func(deviceID uint32, out []Packet)

// Worker runs one DP dispatch loop, pinned (by the caller) to a single
// core/thread. It never allocates from the CP memory context and never
// holds the CP lock; its only writes to shared state are its own
// counter instance and its observed generation (§4.5, closing
// paragraph).
type Worker struct {
	id     int
	store  *cpconfig.Store
	table  *ModuleTable
	output OutputHandler

	gen atomic.Uint64
}

// NewWorker returns a worker reading generations from store and
// resolving module kinds via table. output, if non-nil, receives each
// device's final output batch.
func NewWorker(id int, store *cpconfig.Store, table *ModuleTable, output OutputHandler) *Worker {
	return &Worker{id: id, store: store, table: table, output: output}
}

// ObservedGen returns the highest generation this worker has fully
// processed at least one dispatch step under. Implements
// cpconfig.QuiescenceObserver.
func (w *Worker) ObservedGen() uint64 { return w.gen.Load() }

// Dispatch runs one iteration of the loop in spec.md §4.5 for a single
// device's incoming batch.
func (w *Worker) Dispatch(deviceID uint32, batch []Packet) {
	gen := w.store.Current() // step 1: single offset load

	pf := NewPacketFront(batch)

	weights := gen.Devices.Entries[deviceID]
	if len(weights) > 0 && !pf.Done() {
		flowHash := hashsel.FlowHash(pf.Input[0].FlowTuple)
		pipelineIdx, ok := hashsel.Select(weights, flowHash) // step 2
		if ok && pipelineIdx < len(gen.Pipelines.Entries) {
			w.runPipeline(gen, gen.Pipelines.Entries[pipelineIdx], pf)
		}
	}

	if w.output != nil {
		w.output(deviceID, pf.Output) // step 5
	}

	w.gen.Store(gen.Gen) // step 6: publish quiescence
}

// runPipeline runs every module in entry's chain over pf. A handler
// that enqueues a packet into pf.Bypass or pf.Drop instead of pf.Output
// removes it from the batch that Advance carries into the next module
// (§4.5 step 4); packets it leaves in pf.Output keep flowing through
// the rest of the chain.
func (w *Worker) runPipeline(gen *cpconfig.Generation, entry cpconfig.PipelineEntry, pf *PacketFront) {
	for i, slot := range entry.Chain {
		if pf.Done() {
			return
		}
		if slot < 0 || slot >= len(gen.Modules.Entries) {
			continue
		}
		md := gen.Modules.Entries[slot]

		handler, ok := w.table.Handler(md.Index)
		if !ok {
			continue
		}

		handler(md.Payload, pf)

		if i < len(entry.Chain)-1 {
			pf.Advance() // step 3: swap output -> input for the next module
		}
	}
}
