// Package introspect implements the read-only list-info family:
// snapshots of modules, pipelines, devices and agents taken from the
// current generation, for CP clients that only want to observe
// configuration rather than change it (spec.md §4.6, component 9).
//
// Take copies what it needs out of the store's current generation and
// returns plain slices; unlike the reference's
// dp_module_list_info/*_free pair there is nothing for the caller to
// free, since these are ordinary garbage-collected values rather than
// arena allocations.
package introspect

import (
	"github.com/gobwas/glob"

	"github.com/yanet-platform/yanet2go/internal/agent"
	"github.com/yanet-platform/yanet2go/internal/cpconfig"
)

// ModuleInfo describes one entry in a generation's module registry.
//
// The reference's header carries divergent cp_module_info variants,
// some with a Kind field and some without (spec.md §9 open question
// ii); this carries the superset: Kind is the DP module type name
// (resolved via a KindNamer, if one is supplied to Take), Name is the
// per-instance config name.
type ModuleInfo struct {
	Index int
	Kind  string
	Name  string
	Gen   uint64
}

// KindNamer resolves a DP module kind index back to the name it was
// registered under; implemented by dpdispatch.ModuleTable.
type KindNamer interface {
	KindName(index int) (string, bool)
}

// PipelineModuleInfo describes one step in a pipeline's chain.
type PipelineModuleInfo struct {
	ConfigIndex int
}

// PipelineInfo describes one entry in a generation's pipeline registry.
type PipelineInfo struct {
	Name    string
	Modules []PipelineModuleInfo
}

// DevicePipelineInfo describes one weighted pipeline choice for a
// device.
type DevicePipelineInfo struct {
	PipelineIndex int
	Weight        uint32
}

// DeviceInfo describes one entry in a generation's device registry.
type DeviceInfo struct {
	DeviceID  uint32
	Pipelines []DevicePipelineInfo
}

// AgentInstanceInfo describes one attached agent.
type AgentInstanceInfo struct {
	Name              string
	PID               int
	MemoryLimit       uint64
	Allocated         uint64
	Freed             uint64
	LoadedModuleCount int
}

// Snapshot is the full list-info response for one CP zone: the current
// generation's registries, plus the agents attached to it.
type Snapshot struct {
	Gen       uint64
	Modules   []ModuleInfo
	Pipelines []PipelineInfo
	Devices   []DeviceInfo
	Agents    []AgentInstanceInfo
}

// Take copies the current generation out of store and the attached
// agents out of registry into plain values, holding no lock beyond the
// brief interval needed to read the current-generation pointer and
// range over the two collections (§4.6, "do not hold the CP lock
// beyond a brief interval needed to copy offsets").
func Take(store *cpconfig.Store, registry *agent.Registry, namer KindNamer) Snapshot {
	gen := store.Current()

	return Snapshot{
		Gen:       gen.Gen,
		Modules:   modules(gen, namer),
		Pipelines: pipelines(gen),
		Devices:   devices(gen),
		Agents:    agents(registry),
	}
}

func modules(gen *cpconfig.Generation, namer KindNamer) []ModuleInfo {
	out := make([]ModuleInfo, len(gen.Modules.Entries))
	for i, md := range gen.Modules.Entries {
		info := ModuleInfo{Index: md.Index, Name: md.Name, Gen: md.Gen}
		if namer != nil {
			info.Kind, _ = namer.KindName(md.Index)
		}
		out[i] = info
	}
	return out
}

func pipelines(gen *cpconfig.Generation) []PipelineInfo {
	out := make([]PipelineInfo, len(gen.Pipelines.Entries))
	for i, p := range gen.Pipelines.Entries {
		mods := make([]PipelineModuleInfo, len(p.Chain))
		for j, idx := range p.Chain {
			mods[j] = PipelineModuleInfo{ConfigIndex: idx}
		}
		out[i] = PipelineInfo{Name: p.Name, Modules: mods}
	}
	return out
}

func devices(gen *cpconfig.Generation) []DeviceInfo {
	if len(gen.Devices.Entries) == 0 {
		return nil
	}
	out := make([]DeviceInfo, 0, len(gen.Devices.Entries))
	for id, weights := range gen.Devices.Entries {
		pls := make([]DevicePipelineInfo, len(weights))
		for i, w := range weights {
			pls[i] = DevicePipelineInfo{PipelineIndex: w.PipelineIndex, Weight: w.Weight}
		}
		out = append(out, DeviceInfo{DeviceID: id, Pipelines: pls})
	}
	return out
}

func agents(registry *agent.Registry) []AgentInstanceInfo {
	all := registry.Agents()
	out := make([]AgentInstanceInfo, len(all))
	for i, a := range all {
		out[i] = AgentInstanceInfo{
			Name:              a.Name(),
			PID:               a.PID(),
			MemoryLimit:       a.MemoryLimit(),
			Allocated:         a.MemCtx().BallocSize(),
			Freed:             a.MemCtx().BfreeSize(),
			LoadedModuleCount: a.LoadedModuleCount(),
		}
	}
	return out
}

// FilterModules returns the subset of modules whose Name matches
// pattern, a gobwas/glob pattern (e.g. "route*").
func FilterModules(modules []ModuleInfo, pattern string) ([]ModuleInfo, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}

	out := make([]ModuleInfo, 0, len(modules))
	for _, m := range modules {
		if g.Match(m.Name) {
			out = append(out, m)
		}
	}
	return out, nil
}

// FilterAgents returns the subset of agents whose Name matches
// pattern.
func FilterAgents(agents []AgentInstanceInfo, pattern string) ([]AgentInstanceInfo, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}

	out := make([]AgentInstanceInfo, 0, len(agents))
	for _, a := range agents {
		if g.Match(a.Name) {
			out = append(out, a)
		}
	}
	return out, nil
}
