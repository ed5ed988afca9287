package cpconfig

import (
	"context"
	"fmt"

	"github.com/yanet-platform/yanet2go/internal/agent"
	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

// UpdateModules publishes a new generation whose module registry
// reflects specs: each (index,name) slot is replaced or appended, and
// the generation stamp on the module actually touched by each spec is
// set to the new gen (spec.md §4.4 step 5, first clause). Unchanged
// pipeline and device registries, and every module entry carried over
// untouched from prev, are left exactly as they are: prev may still be
// reachable from a DP worker that has not yet observed this generation
// (Generation.Prev, released only after quiescence), so nothing it
// references may be mutated in place.
//
// Every spec's module type is resolved before any agent bookkeeping is
// touched, so a later spec failing resolution aborts the whole update
// (P2) without leaving an earlier spec's Track/MarkSuperseded call
// applied against an agent for a generation that never gets published.
func (s *Store) UpdateModules(ctx context.Context, specs []ModuleSpec) error {
	return s.publish(ctx, func(prev *Generation) (*Generation, []func(), error) {
		resolved := make([]int, len(specs))
		for i, spec := range specs {
			idx, err := lookupOrValidate(s.resolver, spec.TypeName)
			if err != nil {
				return nil, nil, err
			}
			resolved[i] = idx
		}

		entries := append([]*agent.ModuleData(nil), prev.Modules.Entries...)
		next := &Generation{
			Gen:       prev.Gen + 1,
			Pipelines: prev.Pipelines,
			Devices:   prev.Devices,
		}

		var splice []func()
		for i, spec := range specs {
			md := spec.Data
			if s.resolver != nil {
				md.Index = resolved[i]
			}
			md.Gen = next.Gen

			// Searched against entries (the registry being built), not
			// prev.Modules: two specs in the same call that target the
			// same (index,name) must have the second supersede the
			// first, not both append as if neither existed yet.
			if slot, ok := findModuleSlot(entries, md.Index, md.Name); ok {
				old := entries[slot]
				md.Prev = old
				entries[slot] = md

				oldOwner := old.Agent
				oldOwner.MarkSuperseded(old)
				splice = append(splice, func() { oldOwner.SpliceFree(old) })
			} else {
				entries = append(entries, md)
			}
			md.Agent.Track(md)
		}

		next.Modules = &ModuleRegistry{Entries: entries}
		return next, splice, nil
	})
}

func findModuleSlot(entries []*agent.ModuleData, index int, name string) (int, bool) {
	for i, e := range entries {
		if e.Index == index && e.Name == name {
			return i, true
		}
	}
	return 0, false
}

func lookupOrValidate(resolver ModuleTypeResolver, typeName string) (int, error) {
	if resolver == nil {
		return 0, nil
	}
	idx, ok := resolver.LookupKind(typeName)
	if !ok {
		return 0, fmt.Errorf("update modules: unknown module type %q: %w", typeName, xerrors.ErrNotFound)
	}
	return idx, nil
}
