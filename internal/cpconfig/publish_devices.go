package cpconfig

import (
	"context"
	"fmt"

	"github.com/yanet-platform/yanet2go/internal/xerrors"
)

// UpdateDevices publishes a new generation whose device registry
// assigns, for each spec, a single pipeline-selection descriptor to
// that device id (spec.md §4.4, "Devices update assigns a single
// pipeline-selection descriptor per device id").
func (s *Store) UpdateDevices(ctx context.Context, specs []DeviceSpec) error {
	return s.publish(ctx, func(prev *Generation) (*Generation, []func(), error) {
		entries := make(map[uint32][]DeviceWeight, len(prev.Devices.Entries))
		for k, v := range prev.Devices.Entries {
			entries[k] = v
		}

		for _, spec := range specs {
			weights := make([]DeviceWeight, 0, len(spec.Pipelines))
			for _, pw := range spec.Pipelines {
				idx, ok := prev.Pipelines.find(pw.PipelineName)
				if !ok {
					return nil, nil, fmt.Errorf("update devices: device %d: pipeline %q: %w", spec.DeviceID, pw.PipelineName, xerrors.ErrNotFound)
				}
				weights = append(weights, DeviceWeight{PipelineIndex: idx, Weight: pw.Weight})
			}
			entries[spec.DeviceID] = weights
		}

		next := &Generation{
			Gen:       prev.Gen + 1,
			Modules:   prev.Modules,
			Pipelines: prev.Pipelines,
			Devices:   &DeviceRegistry{Entries: entries},
		}
		return next, nil, nil
	})
}
