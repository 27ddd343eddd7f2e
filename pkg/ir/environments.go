package ir

// Execution environments form a closed set. Values outside this set are
// rejected by validation; lookups against them resolve to nil.
const (
	EnvSharedFilesystem     = "shared_filesystem"
	EnvDistributedComputing = "distributed_computing"
	EnvCloudNative          = "cloud_native"
	EnvHybrid               = "hybrid"
	EnvEdge                 = "edge"
	EnvLocal                = "local"
)

// KnownEnvironments lists every valid execution environment name.
var KnownEnvironments = []string{
	EnvSharedFilesystem,
	EnvDistributedComputing,
	EnvCloudNative,
	EnvHybrid,
	EnvEdge,
	EnvLocal,
}

// IsKnownEnvironment reports whether env belongs to the closed environment set.
func IsKnownEnvironment(env string) bool {
	for _, e := range KnownEnvironments {
		if e == env {
			return true
		}
	}
	return false
}

// Execution models describe the abstract runtime pattern of a workflow.
const (
	ModelSequential  = "sequential"
	ModelPipeline    = "pipeline"
	ModelParallel    = "parallel"
	ModelDynamic     = "dynamic"
	ModelShared      = "shared_filesystem"
	ModelDistributed = "distributed_computing"
	ModelCloudNative = "cloud_native"
	ModelHybrid      = "hybrid"
	ModelEdge        = "edge"
	ModelUnknown     = "unknown"
)

// KnownExecutionModels lists every valid execution model value.
var KnownExecutionModels = []string{
	ModelSequential, ModelPipeline, ModelParallel, ModelDynamic,
	ModelShared, ModelDistributed, ModelCloudNative, ModelHybrid,
	ModelEdge, ModelUnknown,
}

// IsKnownExecutionModel reports whether m is a valid execution model.
func IsKnownExecutionModel(m string) bool {
	for _, e := range KnownExecutionModels {
		if e == m {
			return true
		}
	}
	return false
}

// Workflow source/target formats handled by the adapters, plus "ir" itself.
const (
	FormatSnakemake = "snakemake"
	FormatDAGMan    = "dagman"
	FormatNextflow  = "nextflow"
	FormatCWL       = "cwl"
	FormatWDL       = "wdl"
	FormatGalaxy    = "galaxy"
	FormatBCO       = "bco"
	FormatIR        = "ir"
)

// KnownFormats lists every format name metadata.source_format may carry.
var KnownFormats = []string{
	FormatSnakemake, FormatDAGMan, FormatNextflow, FormatCWL,
	FormatWDL, FormatGalaxy, FormatBCO, FormatIR,
}

// IsKnownFormat reports whether f is a recognized workflow format.
func IsKnownFormat(f string) bool {
	for _, e := range KnownFormats {
		if e == f {
			return true
		}
	}
	return false
}
