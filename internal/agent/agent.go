// Package agent implements the per-(CP process, NUMA) agent: it owns a
// sub-arena carved out of its zone's CP arena, allocates the module
// data that callers hand to the configuration publisher
// (cpconfig.Store.UpdateModules), and tracks which of that data is
// loaded into the current generation (spec component 5).
package agent

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"github.com/yanet-platform/yanet2go/internal/balloc"
	"github.com/yanet-platform/yanet2go/internal/memctx"
	"github.com/yanet-platform/yanet2go/internal/names"
	"github.com/yanet-platform/yanet2go/internal/shm"
	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

// ModuleData is the controlplane-side record describing one configured
// instance of a module kind, per spec.md §3 "Module data". Payload
// carries the module-kind-specific configuration; the core never
// interprets it.
type ModuleData struct {
	Index       int    // DP module kind, looked up by name in the DP module table
	Gen         uint64 // generation in which this version became current
	Name        string
	Agent       *Agent // owning agent (back-link)
	FreeHandler func()
	Prev        *ModuleData // previous version of the same (kind,name)
	Payload     any

	arenaOffset int
	arenaSize   int
}

// Registry is the set of agents currently attached to a zone, by name.
// It backs agent_attach's EEXIST tie-break and introspection's agent
// listing.
type Registry struct {
	mu     sync.Mutex
	byName map[string]*Agent
}

// NewRegistry returns an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Agent)}
}

// Agents returns a snapshot of every attached agent.
func (r *Registry) Agents() []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Agent, 0, len(r.byName))
	for _, a := range r.byName {
		out = append(out, a)
	}
	return out
}

// Agent is a per-(process, NUMA) handle owning an arena and a set of
// module data records.
type Agent struct {
	mu sync.Mutex

	name        string
	pid         int
	memoryLimit uint64

	zone  *shm.Zone
	arena []byte
	alloc *balloc.Allocator
	mctx  *memctx.Context

	arenaOffset int

	loadedModuleCount int
	modules           map[moduleKey]*ModuleData
	freeList          []*ModuleData

	detached atomic.Bool

	registry *Registry
}

type moduleKey struct {
	index int
	name  string
}

// Attach carves a memoryLimit-byte sub-arena from the zone's CP arena
// and registers a new agent with the given name, failing with
// ErrExists if one is already attached under that name.
func Attach(registry *Registry, zone *shm.Zone, name string, memoryLimit uint64) (*Agent, error) {
	if _, err := names.Encode(name, names.StandardWidth); err != nil {
		return nil, fmt.Errorf("agent attach %q: %w", name, err)
	}
	if memoryLimit == 0 {
		return nil, fmt.Errorf("agent attach %q: memory limit must be non-zero: %w", name, xerrors.ErrInvalidArgument)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, ok := registry.byName[name]; ok {
		return nil, fmt.Errorf("agent attach %q: %w", name, xerrors.ErrExists)
	}

	offset, err := zone.MemCtx().Alloc(int(memoryLimit))
	if err != nil {
		return nil, fmt.Errorf("agent attach %q: %w", name, err)
	}

	sub := zone.Arena()[offset : offset+int(memoryLimit) : offset+int(memoryLimit)]
	alloc := balloc.New(sub)

	a := &Agent{
		name:        name,
		pid:         os.Getpid(),
		memoryLimit: memoryLimit,
		zone:        zone,
		arena:       sub,
		alloc:       alloc,
		mctx:        memctx.New(name, alloc),
		arenaOffset: offset,
		modules:     make(map[moduleKey]*ModuleData),
		registry:    registry,
	}

	registry.byName[name] = a
	return a, nil
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// PID returns the attaching process's PID.
func (a *Agent) PID() int { return a.pid }

// MemoryLimit returns the byte budget the agent was attached with.
func (a *Agent) MemoryLimit() uint64 { return a.memoryLimit }

// MemCtx returns the agent's own memory context, used to allocate and
// free module data.
func (a *Agent) MemCtx() *memctx.Context { return a.mctx }

// LoadedModuleCount returns the number of modules this agent owns in
// the current generation.
func (a *Agent) LoadedModuleCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadedModuleCount
}

// Allocate reserves size bytes from the agent's arena and returns a new
// ModuleData header charged against the agent's memory context; the
// caller is responsible for filling Payload, Index and Name. This is
// the normal way collaborator modules (route, nat64, ...) build a
// configuration object before passing it to UpdateModules.
func (a *Agent) Allocate(size int) (*ModuleData, error) {
	if a.detached.Load() {
		return nil, fmt.Errorf("agent %q: allocate module data: %w", a.name, xerrors.ErrDetached)
	}

	off, err := a.mctx.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("agent %q: allocate module data: %w", a.name, err)
	}
	return &ModuleData{Agent: a, arenaOffset: off, arenaSize: size}, nil
}

// Track records md as a module this agent currently owns in the
// generation, bumping loadedModuleCount. Called while a new generation
// is being built (spec.md §4.4 step 5), before it is published.
func (a *Agent) Track(md *ModuleData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modules[moduleKey{md.Index, md.Name}] = md
	a.loadedModuleCount++
}

// MarkSuperseded drops md from the set of modules this agent owns in
// the current generation, without yet freeing its arena bytes: it may
// still be referenced by a DP worker that has not observed the new
// generation. Called at the same point as Track, step 5 of §4.4.
func (a *Agent) MarkSuperseded(md *ModuleData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.modules, moduleKey{md.Index, md.Name})
	a.loadedModuleCount--
}

// SpliceFree moves a superseded module data record onto the agent's
// free list, from which Reclaim will return its arena bytes. Called
// only after the publisher has confirmed quiescence (§4.4 step 8), so
// no DP worker can still dereference md.
func (a *Agent) SpliceFree(md *ModuleData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeList = append(a.freeList, md)
}

// Reclaim frees every module data record on the agent's free list
// whose arena allocation has not yet been returned, via the agent's
// own memory context. Safe to call repeatedly; returns the number of
// records reclaimed.
func (a *Agent) Reclaim() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, md := range a.freeList {
		if md.arenaSize > 0 {
			a.mctx.Free(md.arenaOffset, md.arenaSize)
			md.arenaSize = 0
		}
		if md.FreeHandler != nil {
			md.FreeHandler()
		}
		n++
	}
	a.freeList = a.freeList[:0]
	return n
}

// Detach releases the agent: it is an error to detach while modules
// are still loaded into the current generation (LoadedModuleCount is
// only lowered by MarkSuperseded; the publisher's UpdateModules
// replaces or appends registry slots and never removes one, so it
// cannot bring an agent's count to zero), and an error wrapping
// xerrors.ErrDetached to detach an already-detached agent. The
// sub-arena is returned to the zone's CP memory context.
func Detach(a *Agent) error {
	if !a.detached.CompareAndSwap(false, true) {
		return fmt.Errorf("agent %q: %w", a.name, xerrors.ErrDetached)
	}

	a.mu.Lock()
	loaded := a.loadedModuleCount
	pending := len(a.freeList)
	a.mu.Unlock()

	if loaded != 0 {
		a.detached.Store(false)
		return fmt.Errorf("agent %q: detach: %d modules still loaded: %w", a.name, loaded, xerrors.ErrInvalidArgument)
	}

	var errs error
	if pending > 0 {
		if n := a.Reclaim(); n != pending {
			errs = multierror.Append(errs, fmt.Errorf("agent %q: reclaimed %d of %d pending modules", a.name, n, pending))
		}
	}

	if a.mctx.Leaked() {
		errs = multierror.Append(errs, fmt.Errorf("agent %q: memory context leaked: balloc=%d bfree=%d", a.name, a.mctx.BallocSize(), a.mctx.BfreeSize()))
	}

	a.zone.MemCtx().Free(a.arenaOffset, int(a.memoryLimit))

	a.registry.mu.Lock()
	delete(a.registry.byName, a.name)
	a.registry.mu.Unlock()

	return errs
}
