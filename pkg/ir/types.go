// Package ir defines the intermediate representation every importer produces
// and every exporter consumes: a versioned, environment-aware workflow model
// with JSON serialization, schema validation, and a canonical checksum.
package ir

// IRVersion is the semantic version of the IR schema this build speaks.
const IRVersion = "0.1.0"

// SchemaURL is the published location of the IR JSON Schema.
const SchemaURL = "https://wf2wf.dev/schemas/v" + IRVersion + "/wf.json"

// Parameter describes one typed input or output of a workflow or task.
type Parameter struct {
	ID             string   `json:"id" jsonschema:"required"`
	Type           TypeSpec `json:"type"`
	Label          string   `json:"label,omitempty"`
	Doc            string   `json:"doc,omitempty"`
	Default        any      `json:"default,omitempty"`
	SecondaryFiles []string `json:"secondary_files,omitempty"`
	TransferMode   EnvValue `json:"transfer_mode"`
}

// Requirement is a named capability demand (DockerRequirement,
// ResourceRequirement, ...) with class-specific data.
type Requirement struct {
	ClassName string         `json:"class_name" jsonschema:"required"`
	Data      map[string]any `json:"data,omitempty"`
}

// CheckpointSpec configures checkpoint/restart behaviour for a task.
type CheckpointSpec struct {
	Strategy        string `json:"strategy,omitempty"`
	IntervalS       int64  `json:"interval_s,omitempty"`
	StorageLocation string `json:"storage_location,omitempty"`
	Enabled         *bool  `json:"enabled,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// LoggingSpec configures log capture for a task.
type LoggingSpec struct {
	LogLevel       string `json:"log_level,omitempty"`
	LogFormat      string `json:"log_format,omitempty"`
	LogDestination string `json:"log_destination,omitempty"`
	Aggregation    string `json:"aggregation,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// SecuritySpec configures encryption, secrets and access control for a task.
type SecuritySpec struct {
	Encryption     string            `json:"encryption,omitempty"`
	AccessPolicies string            `json:"access_policies,omitempty"`
	Secrets        map[string]string `json:"secrets,omitempty"`
	Authentication string            `json:"authentication,omitempty"`
	Notes          string            `json:"notes,omitempty"`
}

// NetworkingSpec configures network isolation for a task.
type NetworkingSpec struct {
	NetworkMode  string   `json:"network_mode,omitempty"`
	AllowedPorts []int    `json:"allowed_ports,omitempty"`
	EgressRules  []string `json:"egress_rules,omitempty"`
	IngressRules []string `json:"ingress_rules,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// ScatterSpec describes fan-out over one or more parameters.
type ScatterSpec struct {
	Scatter       []string `json:"scatter,omitempty"`
	ScatterMethod string   `json:"scatter_method,omitempty"`
}

// Metadata carries provenance of the parse plus anything the importer could
// not interpret, so unknown fields survive round trips.
type Metadata struct {
	SourceFormat        string                    `json:"source_format,omitempty"`
	SourceFile          string                    `json:"source_file,omitempty"`
	SourceVersion       string                    `json:"source_version,omitempty"`
	ParsingNotes        []string                  `json:"parsing_notes,omitempty"`
	ConversionWarnings  []string                  `json:"conversion_warnings,omitempty"`
	FormatSpecific      map[string]any            `json:"format_specific,omitempty"`
	Uninterpreted       map[string]any            `json:"uninterpreted,omitempty"`
	Annotations         map[string]any            `json:"annotations,omitempty"`
	EnvironmentMetadata map[string]map[string]any `json:"environment_metadata,omitempty"`
	ValidationErrors    []string                  `json:"validation_errors,omitempty"`
	QualityMetrics      map[string]any            `json:"quality_metrics,omitempty"`
}

// AddNote appends a parsing note.
func (m *Metadata) AddNote(note string) { m.ParsingNotes = append(m.ParsingNotes, note) }

// AddWarning appends a conversion warning.
func (m *Metadata) AddWarning(w string) { m.ConversionWarnings = append(m.ConversionWarnings, w) }

// Provenance records authorship of the workflow document.
type Provenance struct {
	Authors []string       `json:"authors,omitempty"`
	License string         `json:"license,omitempty"`
	Version string         `json:"version,omitempty"`
	Extras  map[string]any `json:"extras,omitempty"`
}

// Loss entry statuses.
const (
	LossStatusLost      = "lost"
	LossStatusLostAgain = "lost_again"
	LossStatusReapplied = "reapplied"
	LossStatusAdapted   = "adapted"
)

// Loss entry origins.
const (
	LossOriginUser  = "user"
	LossOriginWf2wf = "wf2wf"
)

// Loss entry severities.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// LossEntry records a single piece of information that could not be
// represented in a target format, addressed by an RFC 6901 JSON pointer
// into the IR document.
type LossEntry struct {
	JSONPointer         string         `json:"json_pointer" jsonschema:"required"`
	Field               string         `json:"field" jsonschema:"required"`
	LostValue           any            `json:"lost_value"`
	Reason              string         `json:"reason"`
	Origin              string         `json:"origin"`
	Status              string         `json:"status"`
	Severity            string         `json:"severity"`
	Category            string         `json:"category"`
	EnvironmentContext  map[string]any `json:"environment_context,omitempty"`
	AdaptationDetails   map[string]any `json:"adaptation_details,omitempty"`
	RecoverySuggestions []string       `json:"recovery_suggestions,omitempty"`
}

// Edge is a parent→child dependency between two tasks.
type Edge struct {
	Parent string `json:"parent" jsonschema:"required"`
	Child  string `json:"child" jsonschema:"required"`
}

// Task is a single unit of work. Every behaviourally relevant attribute is
// environment-specific: the same task may run with different resources,
// containers, or transfer behaviour depending on where it executes.
type Task struct {
	ID      string      `json:"id" jsonschema:"required"`
	Label   string      `json:"label,omitempty"`
	Doc     string      `json:"doc,omitempty"`
	Intent  []string    `json:"intent,omitempty"`
	Inputs  []Parameter `json:"inputs,omitempty"`
	Outputs []Parameter `json:"outputs,omitempty"`

	Command EnvValue `json:"command"`
	Script  EnvValue `json:"script"`

	CPU      EnvValue `json:"cpu"`
	MemMB    EnvValue `json:"mem_mb"`
	DiskMB   EnvValue `json:"disk_mb"`
	GPU      EnvValue `json:"gpu"`
	GPUMemMB EnvValue `json:"gpu_mem_mb"`
	TimeS    EnvValue `json:"time_s"`
	Threads  EnvValue `json:"threads"`

	Conda     EnvValue `json:"conda"`
	Container EnvValue `json:"container"`
	Workdir   EnvValue `json:"workdir"`
	EnvVars   EnvValue `json:"env_vars"`
	Modules   EnvValue `json:"modules"`

	RetryCount            EnvValue `json:"retry_count"`
	RetryDelay            EnvValue `json:"retry_delay"`
	RetryBackoff          EnvValue `json:"retry_backoff"`
	MaxRuntime            EnvValue `json:"max_runtime"`
	CheckpointInterval    EnvValue `json:"checkpoint_interval"`
	OnFailure             EnvValue `json:"on_failure"`
	FailureNotification   EnvValue `json:"failure_notification"`
	CleanupOnFailure      EnvValue `json:"cleanup_on_failure"`
	RestartFromCheckpoint EnvValue `json:"restart_from_checkpoint"`
	PartialResults        EnvValue `json:"partial_results"`

	Priority          EnvValue `json:"priority"`
	FileTransferMode  EnvValue `json:"file_transfer_mode"`
	StagingRequired   EnvValue `json:"staging_required"`
	CleanupAfter      EnvValue `json:"cleanup_after"`
	CloudProvider     EnvValue `json:"cloud_provider"`
	CloudStorageClass EnvValue `json:"cloud_storage_class"`
	CloudEncryption   EnvValue `json:"cloud_encryption"`
	ParallelTransfers EnvValue `json:"parallel_transfers"`
	BandwidthLimit    EnvValue `json:"bandwidth_limit"`

	When    EnvValue `json:"when"`
	Scatter EnvValue `json:"scatter"`

	Checkpointing EnvValue `json:"checkpointing"`
	Logging       EnvValue `json:"logging"`
	Security      EnvValue `json:"security"`
	Networking    EnvValue `json:"networking"`

	Requirements EnvValue `json:"requirements"`
	Hints        EnvValue `json:"hints"`

	Metadata   *Metadata   `json:"metadata,omitempty"`
	Provenance *Provenance `json:"provenance,omitempty"`
}

// NewTask creates an empty task with the given id.
func NewTask(id string) *Task { return &Task{ID: id} }

// Meta returns the task metadata, allocating it on first use.
func (t *Task) Meta() *Metadata {
	if t.Metadata == nil {
		t.Metadata = &Metadata{}
	}
	return t.Metadata
}

// EnvField returns a pointer to the named environment-specific field, or nil
// for unknown names. This is the single dispatch table used by inference,
// adaptation, prompting and loss reinjection.
func (t *Task) EnvField(name string) *EnvValue {
	switch name {
	case "command":
		return &t.Command
	case "script":
		return &t.Script
	case "cpu":
		return &t.CPU
	case "mem_mb":
		return &t.MemMB
	case "disk_mb":
		return &t.DiskMB
	case "gpu":
		return &t.GPU
	case "gpu_mem_mb":
		return &t.GPUMemMB
	case "time_s":
		return &t.TimeS
	case "threads":
		return &t.Threads
	case "conda":
		return &t.Conda
	case "container":
		return &t.Container
	case "workdir":
		return &t.Workdir
	case "env_vars":
		return &t.EnvVars
	case "modules":
		return &t.Modules
	case "retry_count":
		return &t.RetryCount
	case "retry_delay":
		return &t.RetryDelay
	case "retry_backoff":
		return &t.RetryBackoff
	case "max_runtime":
		return &t.MaxRuntime
	case "checkpoint_interval":
		return &t.CheckpointInterval
	case "on_failure":
		return &t.OnFailure
	case "failure_notification":
		return &t.FailureNotification
	case "cleanup_on_failure":
		return &t.CleanupOnFailure
	case "restart_from_checkpoint":
		return &t.RestartFromCheckpoint
	case "partial_results":
		return &t.PartialResults
	case "priority":
		return &t.Priority
	case "file_transfer_mode":
		return &t.FileTransferMode
	case "staging_required":
		return &t.StagingRequired
	case "cleanup_after":
		return &t.CleanupAfter
	case "cloud_provider":
		return &t.CloudProvider
	case "cloud_storage_class":
		return &t.CloudStorageClass
	case "cloud_encryption":
		return &t.CloudEncryption
	case "parallel_transfers":
		return &t.ParallelTransfers
	case "bandwidth_limit":
		return &t.BandwidthLimit
	case "when":
		return &t.When
	case "scatter":
		return &t.Scatter
	case "checkpointing":
		return &t.Checkpointing
	case "logging":
		return &t.Logging
	case "security":
		return &t.Security
	case "networking":
		return &t.Networking
	case "requirements":
		return &t.Requirements
	case "hints":
		return &t.Hints
	}
	return nil
}

// EnvFieldNames lists every environment-specific task field name, in the
// order fields are documented.
var EnvFieldNames = []string{
	"command", "script",
	"cpu", "mem_mb", "disk_mb", "gpu", "gpu_mem_mb", "time_s", "threads",
	"conda", "container", "workdir", "env_vars", "modules",
	"retry_count", "retry_delay", "retry_backoff", "max_runtime",
	"checkpoint_interval", "on_failure", "failure_notification",
	"cleanup_on_failure", "restart_from_checkpoint", "partial_results",
	"priority", "file_transfer_mode", "staging_required", "cleanup_after",
	"cloud_provider", "cloud_storage_class", "cloud_encryption",
	"parallel_transfers", "bandwidth_limit",
	"when", "scatter",
	"checkpointing", "logging", "security", "networking",
	"requirements", "hints",
}

// Workflow is the root IR document.
type Workflow struct {
	Schema  string `json:"$schema,omitempty"`
	Name    string `json:"name" jsonschema:"required"`
	Version string `json:"version,omitempty"`
	Label   string `json:"label,omitempty"`
	Doc     string `json:"doc,omitempty"`

	Intent  []string         `json:"intent,omitempty"`
	Inputs  []Parameter      `json:"inputs,omitempty"`
	Outputs []Parameter      `json:"outputs,omitempty"`
	Tasks   map[string]*Task `json:"tasks"`
	Edges   []Edge           `json:"edges"`

	Requirements   EnvValue `json:"requirements"`
	Hints          EnvValue `json:"hints"`
	ExecutionModel EnvValue `json:"execution_model"`

	Metadata   *Metadata   `json:"metadata,omitempty"`
	Provenance *Provenance `json:"provenance,omitempty"`
	LossMap    []LossEntry `json:"loss_map,omitempty"`
}

// NewWorkflow creates an empty workflow with the given name.
func NewWorkflow(name string) *Workflow {
	return &Workflow{
		Schema:  SchemaURL,
		Name:    name,
		Version: "1.0",
		Tasks:   map[string]*Task{},
		Edges:   []Edge{},
	}
}

// Meta returns the workflow metadata, allocating it on first use.
func (w *Workflow) Meta() *Metadata {
	if w.Metadata == nil {
		w.Metadata = &Metadata{}
	}
	return w.Metadata
}

// AddTask registers a task, replacing any task with the same id.
func (w *Workflow) AddTask(t *Task) {
	if w.Tasks == nil {
		w.Tasks = map[string]*Task{}
	}
	w.Tasks[t.ID] = t
}

// AddEdge records a parent→child dependency, ignoring exact duplicates.
func (w *Workflow) AddEdge(parent, child string) {
	for _, e := range w.Edges {
		if e.Parent == parent && e.Child == child {
			return
		}
	}
	w.Edges = append(w.Edges, Edge{Parent: parent, Child: child})
}

// TaskIDs returns all task ids in lexicographic order.
func (w *Workflow) TaskIDs() []string {
	ids := make([]string, 0, len(w.Tasks))
	for id := range w.Tasks {
		ids = append(ids, id)
	}
	sortStrings(ids)
	return ids
}

// Parents returns the parent ids of a task, lexicographically sorted.
func (w *Workflow) Parents(taskID string) []string {
	var out []string
	for _, e := range w.Edges {
		if e.Child == taskID {
			out = append(out, e.Parent)
		}
	}
	sortStrings(out)
	return out
}

// Children returns the child ids of a task, lexicographically sorted.
func (w *Workflow) Children(taskID string) []string {
	var out []string
	for _, e := range w.Edges {
		if e.Parent == taskID {
			out = append(out, e.Child)
		}
	}
	sortStrings(out)
	return out
}
