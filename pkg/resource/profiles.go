package resource

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Spec is a flat set of optional resource quantities. A nil pointer means
// "not specified".
type Spec struct {
	CPU      *int64 `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	MemMB    *int64 `json:"mem_mb,omitempty" yaml:"mem_mb,omitempty"`
	DiskMB   *int64 `json:"disk_mb,omitempty" yaml:"disk_mb,omitempty"`
	GPU      *int64 `json:"gpu,omitempty" yaml:"gpu,omitempty"`
	GPUMemMB *int64 `json:"gpu_mem_mb,omitempty" yaml:"gpu_mem_mb,omitempty"`
	TimeS    *int64 `json:"time_s,omitempty" yaml:"time_s,omitempty"`
	Threads  *int64 `json:"threads,omitempty" yaml:"threads,omitempty"`
}

// Profile is a named set of default resources for one class of environment.
type Profile struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Priority    string `json:"priority,omitempty" yaml:"priority,omitempty"`
	Resources   Spec   `json:"resources" yaml:"resources"`
}

func i64(v int64) *int64 { return &v }

// DefaultProfiles are the built-in resource profiles.
var DefaultProfiles = map[string]Profile{
	"shared": {
		Name: "shared", Description: "Shared filesystem environment (minimal resources)",
		Environment: "shared", Priority: "low",
		Resources: Spec{CPU: i64(1), MemMB: i64(512), DiskMB: i64(1024)},
	},
	"cluster": {
		Name: "cluster", Description: "HTCondor/SGE cluster environment",
		Environment: "cluster", Priority: "normal",
		Resources: Spec{CPU: i64(1), MemMB: i64(2048), DiskMB: i64(4096)},
	},
	"cloud": {
		Name: "cloud", Description: "Cloud computing environment (AWS, GCP, Azure)",
		Environment: "cloud", Priority: "normal",
		Resources: Spec{CPU: i64(2), MemMB: i64(4096), DiskMB: i64(8192)},
	},
	"hpc": {
		Name: "hpc", Description: "High performance computing environment",
		Environment: "hpc", Priority: "normal",
		Resources: Spec{CPU: i64(4), MemMB: i64(8192), DiskMB: i64(16384)},
	},
	"gpu": {
		Name: "gpu", Description: "GPU-enabled environment",
		Environment: "gpu", Priority: "high",
		Resources: Spec{CPU: i64(4), MemMB: i64(16384), DiskMB: i64(32768), GPU: i64(1), GPUMemMB: i64(8192)},
	},
	"memory_intensive": {
		Name: "memory_intensive", Description: "Memory-intensive computing environment",
		Environment: "hpc", Priority: "high",
		Resources: Spec{CPU: i64(8), MemMB: i64(65536), DiskMB: i64(16384)},
	},
	"io_intensive": {
		Name: "io_intensive", Description: "I/O-intensive computing environment",
		Environment: "hpc", Priority: "normal",
		Resources: Spec{CPU: i64(4), MemMB: i64(8192), DiskMB: i64(131072)},
	},
}

// ProfileNames returns the built-in profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(DefaultProfiles))
	for n := range DefaultProfiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetProfile looks up a built-in profile by name.
func GetProfile(name string) (Profile, error) {
	p, ok := DefaultProfiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown resource profile %q, available: %v", name, ProfileNames())
	}
	return p, nil
}

// ApplyProfile fills any unset field of spec from the profile. Fields the
// spec already carries are left alone.
func ApplyProfile(spec Spec, p Profile) Spec {
	fill := func(dst **int64, src *int64) {
		if *dst == nil && src != nil {
			v := *src
			*dst = &v
		}
	}
	fill(&spec.CPU, p.Resources.CPU)
	fill(&spec.MemMB, p.Resources.MemMB)
	fill(&spec.DiskMB, p.Resources.DiskMB)
	fill(&spec.GPU, p.Resources.GPU)
	fill(&spec.GPUMemMB, p.Resources.GPUMemMB)
	fill(&spec.TimeS, p.Resources.TimeS)
	fill(&spec.Threads, p.Resources.Threads)
	return spec
}

// LoadProfile reads a custom profile from a YAML file.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.Name == "" {
		return Profile{}, fmt.Errorf("profile %s has no name", path)
	}
	return p, nil
}

// SaveProfile writes a profile as YAML.
func SaveProfile(p Profile, path string) error {
	data, err := yaml.Marshal(&p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
