package resource

import "fmt"

// Validate checks a resource spec against the hard range rules. Returned
// strings are issues; an empty slice means valid.
func Validate(s Spec) []string {
	var issues []string
	if s.CPU != nil && *s.CPU < 1 {
		issues = append(issues, fmt.Sprintf("cpu must be >= 1, got %d", *s.CPU))
	}
	if s.MemMB != nil && *s.MemMB < 1 {
		issues = append(issues, fmt.Sprintf("mem_mb must be >= 1, got %d", *s.MemMB))
	}
	if s.DiskMB != nil && *s.DiskMB < 0 {
		issues = append(issues, fmt.Sprintf("disk_mb must be >= 0, got %d", *s.DiskMB))
	}
	if s.GPU != nil && *s.GPU < 0 {
		issues = append(issues, fmt.Sprintf("gpu must be >= 0, got %d", *s.GPU))
	}
	if s.GPUMemMB != nil && *s.GPUMemMB < 0 {
		issues = append(issues, fmt.Sprintf("gpu_mem_mb must be >= 0, got %d", *s.GPUMemMB))
	}
	if s.TimeS != nil && *s.TimeS < 1 {
		issues = append(issues, fmt.Sprintf("time_s must be >= 1, got %d", *s.TimeS))
	}
	if s.Threads != nil && *s.Threads < 1 {
		issues = append(issues, fmt.Sprintf("threads must be >= 1, got %d", *s.Threads))
	}
	return issues
}

// ValidatePriority checks the absolute priority range.
func ValidatePriority(p int64) error {
	if p < -1000 || p > 1000 {
		return fmt.Errorf("priority must be within [-1000, 1000], got %d", p)
	}
	return nil
}

// SuggestProfile picks the built-in profile that best fits a spec.
func SuggestProfile(s Spec) string {
	if s.GPU != nil && *s.GPU > 0 {
		return "gpu"
	}
	if s.MemMB != nil && *s.MemMB >= 32768 {
		return "memory_intensive"
	}
	if s.DiskMB != nil && *s.DiskMB >= 65536 {
		return "io_intensive"
	}
	if s.CPU != nil && *s.CPU >= 4 {
		return "hpc"
	}
	return "cluster"
}
