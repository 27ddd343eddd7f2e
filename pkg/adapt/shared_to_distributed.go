package adapt

import "github.com/csmcal/wf2wf/pkg/ir"

// Overheads applied when moving shared-filesystem work onto distributed
// infrastructure: process isolation and transfer buffers cost memory, file
// staging costs disk, scheduling and transfer latency cost runtime.
const (
	distributedMemOverhead     = 1.15
	distributedDiskOverhead    = 1.8
	distributedRuntimeOverhead = 1.25
	distributedMinRetries      = 2
)

// SharedToDistributed converts shared-filesystem values for distributed
// computing (HTCondor, cloud batch).
type SharedToDistributed struct{}

func init() { Register(SharedToDistributed{}) }

func (SharedToDistributed) SourceEnv() string      { return ir.EnvSharedFilesystem }
func (SharedToDistributed) TargetEnv() string      { return ir.EnvDistributedComputing }
func (SharedToDistributed) AdaptationType() string { return "filesystem_to_distributed" }

func (SharedToDistributed) AdaptResourceValue(field string, sourceValue any) (any, bool) {
	n, ok := asInt64(sourceValue)
	if !ok {
		return nil, false
	}
	switch field {
	case "mem_mb", "gpu_mem_mb":
		return scaleAtLeast(n, distributedMemOverhead), true
	case "disk_mb":
		return scaleAtLeast(n, distributedDiskOverhead), true
	case "time_s", "max_runtime":
		return scaleAtLeast(n, distributedRuntimeOverhead), true
	case "retry_count":
		if n < distributedMinRetries {
			return int64(distributedMinRetries), true
		}
		return n, false
	}
	return nil, false
}

func (SharedToDistributed) ExtraFields() map[string]any {
	return map[string]any{
		"staging_required":   true,
		"file_transfer_mode": "staging",
	}
}

// scaleAtLeast multiplies and never returns less than the source value.
func scaleAtLeast(n int64, factor float64) int64 {
	scaled := int64(float64(n) * factor)
	if scaled < n {
		return n
	}
	return scaled
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	}
	return 0, false
}
