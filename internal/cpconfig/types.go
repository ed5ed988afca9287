// Package cpconfig implements the CP module/pipeline/device registries
// and the configuration publisher: the generation-based,
// copy-on-write, wait-for-quiescence protocol that is the heart of the
// core (spec components 6 and 7).
package cpconfig

import (
	"github.com/yanet-platform/yanet2go/internal/agent"
)

// ModuleRegistry is an immutable array of offsets to currently-active
// module data. A generation never mutates its registry in place; each
// new generation gets a freshly built one.
type ModuleRegistry struct {
	Entries []*agent.ModuleData
}

func (r *ModuleRegistry) find(index int, name string) (int, bool) {
	if r == nil {
		return 0, false
	}
	for i, e := range r.Entries {
		if e.Index == index && e.Name == name {
			return i, true
		}
	}
	return 0, false
}

// PipelineEntry is a fixed-length ordered sequence of module indexes
// into the generation's module registry.
type PipelineEntry struct {
	Name  string
	Chain []int
}

// PipelineRegistry is an immutable array of pipeline descriptors.
type PipelineRegistry struct {
	Entries []PipelineEntry
}

func (r *PipelineRegistry) find(name string) (int, bool) {
	if r == nil {
		return 0, false
	}
	for i, e := range r.Entries {
		if e.Name == name {
			return i, true
		}
	}
	return 0, false
}

// DeviceWeight is one (pipeline, weight) choice for a device.
type DeviceWeight struct {
	PipelineIndex int
	Weight        uint32
}

// DeviceRegistry maps a device id to its ordered list of weighted
// pipeline choices.
type DeviceRegistry struct {
	Entries map[uint32][]DeviceWeight
}

func newEmptyDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{Entries: make(map[uint32][]DeviceWeight)}
}

// Generation is an immutable snapshot of the module, pipeline and
// device registries, identified by a strictly monotonic number.
type Generation struct {
	Gen       uint64
	Modules   *ModuleRegistry
	Pipelines *PipelineRegistry
	Devices   *DeviceRegistry
	// Prev is non-nil only while this generation's predecessor is
	// still pending reclamation.
	Prev *Generation
}

// ModuleSpec is an incoming module configuration request: the caller's
// agent, the DP module kind name to look up, an instance name, and the
// already-allocated module data (see agent.Agent.Allocate).
type ModuleSpec struct {
	TypeName string
	Data     *agent.ModuleData
}

// PipelineModuleRef names a module instance by (DP module type, config
// name), resolved against the DP module table and then the new
// generation's module registry.
type PipelineModuleRef struct {
	TypeName   string
	ConfigName string
}

// PipelineSpec is an incoming pipeline configuration request.
type PipelineSpec struct {
	Name  string
	Chain []PipelineModuleRef
}

// DeviceSpec is an incoming device configuration request: a device id
// and the pipelines it selects between by name, weighted.
type DeviceSpec struct {
	DeviceID  uint32
	Pipelines []DevicePipelineWeight
}

// DevicePipelineWeight names a pipeline by the name used in
// PipelineSpec.Name, with its selection weight.
type DevicePipelineWeight struct {
	PipelineName string
	Weight       uint32
}

// ModuleTypeResolver looks up a DP module kind by name; implemented by
// the DP module table (internal/dpdispatch), injected here to avoid a
// package cycle.
type ModuleTypeResolver interface {
	LookupKind(name string) (int, bool)
}
