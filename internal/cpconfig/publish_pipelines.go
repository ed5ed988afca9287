package cpconfig

import (
	"context"
	"fmt"

	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

// UpdatePipelines publishes a new generation whose pipeline registry
// reflects specs. Each pipeline module reference is resolved first
// against the DP module table (by type name) and then against the new
// generation's (unchanged) module registry (by index and config name);
// failure to resolve any reference aborts the whole update with no
// partial publication ever becoming visible (spec.md §4.4 ¶ after
// step 8, "Pipelines update is identical except...").
func (s *Store) UpdatePipelines(ctx context.Context, specs []PipelineSpec) error {
	return s.publish(ctx, func(prev *Generation) (*Generation, []func(), error) {
		entries := append([]PipelineEntry(nil), prev.Pipelines.Entries...)

		for _, spec := range specs {
			chain := make([]int, 0, len(spec.Chain))
			for _, ref := range spec.Chain {
				idx, err := lookupOrValidate(s.resolver, ref.TypeName)
				if err != nil {
					return nil, nil, fmt.Errorf("update pipelines %q: %w", spec.Name, err)
				}
				slot, ok := prev.Modules.find(idx, ref.ConfigName)
				if !ok {
					return nil, nil, fmt.Errorf("update pipelines %q: module (%q,%q): %w", spec.Name, ref.TypeName, ref.ConfigName, xerrors.ErrNotFound)
				}
				chain = append(chain, slot)
			}

			entry := PipelineEntry{Name: spec.Name, Chain: chain}
			if i, ok := findPipelineEntry(entries, spec.Name); ok {
				entries[i] = entry
			} else {
				entries = append(entries, entry)
			}
		}

		next := &Generation{
			Gen:       prev.Gen + 1,
			Modules:   prev.Modules,
			Pipelines: &PipelineRegistry{Entries: entries},
			Devices:   prev.Devices,
		}
		return next, nil, nil
	})
}

func findPipelineEntry(entries []PipelineEntry, name string) (int, bool) {
	for i, e := range entries {
		if e.Name == name {
			return i, true
		}
	}
	return 0, false
}
