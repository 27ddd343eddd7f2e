package infer

import "github.com/csmcal/wf2wf/pkg/ir"

// Per-environment default tables. Inference only consults these after
// command and file-extension heuristics missed.

var defaultCPU = map[string]int64{
	ir.EnvSharedFilesystem:     1,
	ir.EnvDistributedComputing: 2,
	ir.EnvCloudNative:          1,
	ir.EnvHybrid:               2,
	ir.EnvEdge:                 1,
}

var defaultMemMB = map[string]int64{
	ir.EnvSharedFilesystem:     2048,
	ir.EnvDistributedComputing: 4096,
	ir.EnvCloudNative:          2048,
	ir.EnvHybrid:               4096,
	ir.EnvEdge:                 1024,
}

var defaultDiskMB = map[string]int64{
	ir.EnvSharedFilesystem:     2048,
	ir.EnvDistributedComputing: 4096,
	ir.EnvCloudNative:          2048,
	ir.EnvHybrid:               4096,
	ir.EnvEdge:                 1024,
}

var defaultRetryCount = map[string]int64{
	ir.EnvSharedFilesystem:     0,
	ir.EnvDistributedComputing: 2,
	ir.EnvCloudNative:          3,
	ir.EnvHybrid:               2,
	ir.EnvEdge:                 1,
}

var defaultRetryDelayS = map[string]int64{
	ir.EnvSharedFilesystem:     0,
	ir.EnvDistributedComputing: 60,
	ir.EnvCloudNative:          30,
	ir.EnvHybrid:               60,
	ir.EnvEdge:                 120,
}

// Zero means no runtime cap for that environment.
var defaultMaxRuntimeS = map[string]int64{
	ir.EnvSharedFilesystem:     0,
	ir.EnvDistributedComputing: 3600,
	ir.EnvCloudNative:          7200,
	ir.EnvHybrid:               3600,
	ir.EnvEdge:                 1800,
}

var defaultTransferMode = map[string]string{
	ir.EnvSharedFilesystem:     "never",
	ir.EnvDistributedComputing: "explicit",
	ir.EnvCloudNative:          "cloud_storage",
	ir.EnvHybrid:               "adaptive",
	ir.EnvEdge:                 "minimal",
}

var defaultStagingRequired = map[string]bool{
	ir.EnvSharedFilesystem:     false,
	ir.EnvDistributedComputing: true,
	ir.EnvCloudNative:          true,
	ir.EnvHybrid:               true,
	ir.EnvEdge:                 false,
}

var defaultCleanupAfter = map[string]bool{
	ir.EnvSharedFilesystem:     false,
	ir.EnvDistributedComputing: true,
	ir.EnvCloudNative:          true,
	ir.EnvHybrid:               true,
	ir.EnvEdge:                 true,
}

// formatEnvironments maps a source format to the environments a workflow in
// that format naturally targets.
var formatEnvironments = map[string][]string{
	ir.FormatSnakemake: {ir.EnvSharedFilesystem},
	ir.FormatNextflow:  {ir.EnvSharedFilesystem, ir.EnvCloudNative},
	ir.FormatCWL:       {ir.EnvSharedFilesystem},
	ir.FormatWDL:       {ir.EnvSharedFilesystem, ir.EnvCloudNative},
	ir.FormatGalaxy:    {ir.EnvSharedFilesystem},
	ir.FormatDAGMan:    {ir.EnvDistributedComputing},
	ir.FormatBCO:       {ir.EnvSharedFilesystem},
	ir.FormatIR:        {ir.EnvSharedFilesystem},
}

// TargetEnvironmentsForFormat returns the environments inference fills for a
// given source format.
func TargetEnvironmentsForFormat(format string) []string {
	if envs, ok := formatEnvironments[format]; ok {
		return envs
	}
	return []string{ir.EnvSharedFilesystem}
}
