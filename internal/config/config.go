// Package config loads the CP daemon's YAML configuration, in the
// same shape the reference's per-module Config/DefaultConfig pair
// uses (route_controlplane/cfg.go, gateway/cfg.go).
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for a CP process attaching to
// one shared-memory segment.
type Config struct {
	// MemoryPath is the path to the shared-memory file used to
	// communicate with the dataplane.
	MemoryPath string `yaml:"memory_path"`
	// ZoneSize bounds each NUMA zone's CP config arena.
	ZoneSize datasize.ByteSize `yaml:"zone_size"`
	// NumaIndices enumerates which NUMA nodes get a zone.
	NumaIndices []uint32 `yaml:"numa_indices"`

	Logging LoggingConfig `yaml:"logging"`

	Agents    []AgentConfig    `yaml:"agents"`
	Modules   []ModuleConfig   `yaml:"modules"`
	Pipelines []PipelineConfig `yaml:"pipelines"`
	Devices   []DeviceConfig   `yaml:"devices"`
}

// ModuleConfig describes one module instance to load via update_modules:
// Agent names which attached agent owns its storage, Kind is the DP
// module type name, Name is its per-instance config name.
type ModuleConfig struct {
	Agent       string `yaml:"agent"`
	Kind        string `yaml:"kind"`
	Name        string `yaml:"name"`
	PayloadSize int    `yaml:"payload_size"`
}

// PipelineConfig describes one pipeline to load via update_pipelines.
type PipelineConfig struct {
	Name  string                   `yaml:"name"`
	Chain []PipelineModuleRefConfig `yaml:"chain"`
}

// PipelineModuleRefConfig names one module instance in a pipeline's
// chain, by (kind, name) exactly as the module was registered.
type PipelineModuleRefConfig struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
}

// DeviceConfig describes one device's pipeline selection, loaded via
// update_devices.
type DeviceConfig struct {
	DeviceID  uint32                    `yaml:"device_id"`
	Pipelines []DevicePipelineRefConfig `yaml:"pipelines"`
}

// DevicePipelineRefConfig is one weighted pipeline choice for a device.
type DevicePipelineRefConfig struct {
	Pipeline string `yaml:"pipeline"`
	Weight   uint32 `yaml:"weight"`
}

// LoggingConfig mirrors common/go/logging.Config.
type LoggingConfig struct {
	Level zapcore.Level `yaml:"level"`
}

// AgentConfig describes one agent this process attaches on startup.
type AgentConfig struct {
	Name        string            `yaml:"name"`
	MemoryLimit datasize.ByteSize `yaml:"memory_limit"`
	NumaIdx     uint32            `yaml:"numa_idx"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		MemoryPath:  "/dev/hugepages/yanet",
		ZoneSize:    16 << 20,
		NumaIndices: []uint32{0},
		Logging:     LoggingConfig{Level: zapcore.InfoLevel},
	}
}

// Load reads and parses the YAML configuration file at path, starting
// from DefaultConfig's values so unset fields fall back sanely.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}

	return cfg, nil
}
