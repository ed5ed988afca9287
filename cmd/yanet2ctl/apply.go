package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/yanet2go/internal/agent"
	"github.com/yanet-platform/yanet2go/internal/config"
	"github.com/yanet-platform/yanet2go/internal/cpconfig"
	"github.com/yanet-platform/yanet2go/internal/dpdispatch"
	"github.com/yanet-platform/yanet2go/internal/introspect"
	"github.com/yanet-platform/yanet2go/internal/logging"
	"github.com/yanet-platform/yanet2go/internal/shm"
)

var applyCmdArgs struct {
	ConfigPath string
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Attach to a CP zone and publish the modules/pipelines/devices in a config file",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runApply(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	applyCmd.Flags().StringVarP(&applyCmdArgs.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	applyCmd.MarkFlagRequired("config")
}

func runApply() error {
	cfg, err := config.Load(applyCmdArgs.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := logging.Init(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	if len(cfg.NumaIndices) == 0 {
		return fmt.Errorf("config has no numa_indices")
	}

	seg, err := shm.Attach(cfg.MemoryPath, int(cfg.ZoneSize.Bytes()), cfg.NumaIndices...)
	if err != nil {
		return fmt.Errorf("failed to attach shared memory: %w", err)
	}
	defer seg.Detach()

	zone, ok := seg.Zone(cfg.NumaIndices[0])
	if !ok {
		return fmt.Errorf("no zone for numa index %d", cfg.NumaIndices[0])
	}

	table := dpdispatch.NewModuleTable()
	for _, kind := range distinctKinds(cfg.Modules) {
		if _, err := table.Register(kind, nil); err != nil {
			return fmt.Errorf("failed to register module kind %q: %w", kind, err)
		}
	}

	registry := agent.NewRegistry()
	agents := make(map[string]*agent.Agent, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		a, err := agent.Attach(registry, zone, ac.Name, ac.MemoryLimit.Bytes())
		if err != nil {
			return fmt.Errorf("failed to attach agent %q: %w", ac.Name, err)
		}
		agents[ac.Name] = a
	}
	defer func() {
		for _, a := range agents {
			if err := agent.Detach(a); err != nil {
				log.Errorw("failed to detach agent", "agent", a.Name(), "error", err)
			}
		}
	}()

	store := cpconfig.NewStore(zone, table)
	ctx := context.Background()

	if err := applyModules(ctx, store, table, agents, cfg.Modules); err != nil {
		return err
	}
	if err := applyPipelines(ctx, store, cfg.Pipelines); err != nil {
		return err
	}
	if err := applyDevices(ctx, store, cfg.Pipelines, cfg.Devices); err != nil {
		return err
	}

	snap := introspect.Take(store, registry, table)
	out, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to render snapshot: %w", err)
	}
	fmt.Print(string(out))

	return nil
}

func distinctKinds(modules []config.ModuleConfig) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range modules {
		if !seen[m.Kind] {
			seen[m.Kind] = true
			out = append(out, m.Kind)
		}
	}
	return out
}

func applyModules(ctx context.Context, store *cpconfig.Store, table *dpdispatch.ModuleTable, agents map[string]*agent.Agent, modules []config.ModuleConfig) error {
	if len(modules) == 0 {
		return nil
	}

	specs := make([]cpconfig.ModuleSpec, 0, len(modules))
	for _, mc := range modules {
		a, ok := agents[mc.Agent]
		if !ok {
			return fmt.Errorf("module %q: unknown owning agent %q", mc.Name, mc.Agent)
		}

		index, ok := table.LookupKind(mc.Kind)
		if !ok {
			return fmt.Errorf("module %q: unknown kind %q", mc.Name, mc.Kind)
		}

		size := mc.PayloadSize
		if size <= 0 {
			size = 1
		}
		md, err := a.Allocate(size)
		if err != nil {
			return fmt.Errorf("module %q: allocate: %w", mc.Name, err)
		}
		md.Index, md.Name = index, mc.Name

		specs = append(specs, cpconfig.ModuleSpec{TypeName: mc.Kind, Data: md})
	}

	return store.UpdateModules(ctx, specs)
}

func applyPipelines(ctx context.Context, store *cpconfig.Store, pipelines []config.PipelineConfig) error {
	if len(pipelines) == 0 {
		return nil
	}

	specs := make([]cpconfig.PipelineSpec, 0, len(pipelines))
	for _, pc := range pipelines {
		chain := make([]cpconfig.PipelineModuleRef, 0, len(pc.Chain))
		for _, ref := range pc.Chain {
			chain = append(chain, cpconfig.PipelineModuleRef{TypeName: ref.Kind, ConfigName: ref.Name})
		}
		specs = append(specs, cpconfig.PipelineSpec{Name: pc.Name, Chain: chain})
	}

	return store.UpdatePipelines(ctx, specs)
}

func applyDevices(ctx context.Context, store *cpconfig.Store, pipelines []config.PipelineConfig, devices []config.DeviceConfig) error {
	if len(devices) == 0 {
		return nil
	}

	specs := make([]cpconfig.DeviceSpec, 0, len(devices))
	for _, dc := range devices {
		weights := make([]cpconfig.DevicePipelineWeight, 0, len(dc.Pipelines))
		for _, pw := range dc.Pipelines {
			weights = append(weights, cpconfig.DevicePipelineWeight{PipelineName: pw.Pipeline, Weight: pw.Weight})
		}
		specs = append(specs, cpconfig.DeviceSpec{DeviceID: dc.DeviceID, Pipelines: weights})
	}

	return store.UpdateDevices(ctx, specs)
}
