// Package loss collects, persists, and replays information that could not be
// represented in a target workflow format. Entries address IR fields with
// RFC 6901 JSON pointers and round-trip through a ".loss.json" side-car
// written next to each emitted artifact.
package loss

import (
	"fmt"

	"github.com/csmcal/wf2wf/pkg/ir"
)

// Loss categories used across exporters.
const (
	CategoryAdvancedFeatures = "advanced_features"
	CategoryResourceSpec     = "resource_specification"
	CategoryFileTransfer     = "file_transfer"
	CategoryErrorHandling    = "error_handling"
	CategoryEnvironmentSpec  = "environment_specific"
	CategoryExecutionModel   = "execution_model"
	CategoryCheckpointing    = "checkpointing"
	CategoryLogging          = "logging"
	CategorySecurity         = "security"
	CategoryNetworking       = "networking"
	CategoryMetadata         = "metadata"
)

// Tracker is an append-only buffer of loss entries scoped to one conversion.
// Orchestrators create one per export, seed it with Prepare, and drain it
// into a side-car document at the end.
type Tracker struct {
	entries       []ir.LossEntry
	prevReapplied map[string]bool // pointer+"\x00"+field of previously reapplied entries
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{prevReapplied: map[string]bool{}}
}

// Reset clears the entry buffer but keeps the previously-reapplied set.
func (t *Tracker) Reset() { t.entries = nil }

// Prepare seeds the previously-reapplied set from a prior workflow's loss
// map, so that losing the same field again is marked "lost_again".
func (t *Tracker) Prepare(prev []ir.LossEntry) {
	t.prevReapplied = map[string]bool{}
	for _, e := range prev {
		if e.Status == ir.LossStatusReapplied {
			t.prevReapplied[e.JSONPointer+"\x00"+e.Field] = true
		}
	}
}

// Entry options for Record.
type Opts struct {
	Origin              string
	Severity            string
	Category            string
	EnvironmentContext  map[string]any
	AdaptationDetails   map[string]any
	RecoverySuggestions []string
	// Status overrides the computed lost/lost_again status (used by
	// adaptation, which records entries directly as "adapted").
	Status string
}

// Record appends an entry describing that field at pointer was lost.
// Duplicate (pointer, field) pairs are suppressed. If the pair was reapplied
// in a previous round trip, the new entry's status is "lost_again".
func (t *Tracker) Record(pointer, field string, value any, reason string, opts Opts) {
	for _, e := range t.entries {
		if e.JSONPointer == pointer && e.Field == field {
			return
		}
	}
	status := opts.Status
	if status == "" {
		status = ir.LossStatusLost
		if t.prevReapplied[pointer+"\x00"+field] {
			status = ir.LossStatusLostAgain
		}
	}
	origin := opts.Origin
	if origin == "" {
		origin = ir.LossOriginUser
	}
	severity := opts.Severity
	if severity == "" {
		severity = ir.SeverityWarn
	}
	category := opts.Category
	if category == "" {
		category = CategoryAdvancedFeatures
	}
	t.entries = append(t.entries, ir.LossEntry{
		JSONPointer:         pointer,
		Field:               field,
		LostValue:           value,
		Reason:              reason,
		Origin:              origin,
		Status:              status,
		Severity:            severity,
		Category:            category,
		EnvironmentContext:  opts.EnvironmentContext,
		AdaptationDetails:   opts.AdaptationDetails,
		RecoverySuggestions: opts.RecoverySuggestions,
	})
}

// RecordEnvironmentAdaptation records that a value was adapted between
// environments, with origin "wf2wf".
func (t *Tracker) RecordEnvironmentAdaptation(sourceEnv, targetEnv, adaptationType string, details map[string]any) {
	t.Record("/execution_model", "environment_adaptation",
		map[string]any{
			"source_environment": sourceEnv,
			"target_environment": targetEnv,
			"adaptation_type":    adaptationType,
			"details":            details,
		},
		fmt.Sprintf("Environment adaptation from %s to %s", sourceEnv, targetEnv),
		Opts{
			Origin:   ir.LossOriginWf2wf,
			Severity: ir.SeverityInfo,
			Category: CategoryExecutionModel,
			EnvironmentContext: map[string]any{
				"applicable_environments": []any{sourceEnv, targetEnv},
				"target_environment":      targetEnv,
			},
		})
}

// RecordAdaptedField records a single field change produced by an environment
// adaptation strategy, status "adapted", origin "wf2wf".
func (t *Tracker) RecordAdaptedField(taskID, field string, oldValue, newValue any, sourceEnv, targetEnv, reason string) {
	t.Record(fmt.Sprintf("/tasks/%s/%s", taskID, field), field, oldValue, reason, Opts{
		Origin:   ir.LossOriginWf2wf,
		Severity: ir.SeverityInfo,
		Category: CategoryEnvironmentSpec,
		Status:   ir.LossStatusAdapted,
		AdaptationDetails: map[string]any{
			"source_environment": sourceEnv,
			"target_environment": targetEnv,
			"old_value":          oldValue,
			"new_value":          newValue,
		},
	})
}

// RecordSpecClassLoss records loss of a spec class object (CheckpointSpec,
// LoggingSpec, SecuritySpec, NetworkingSpec).
func (t *Tracker) RecordSpecClassLoss(pointer, field string, spec any, specType, reason string) {
	category := CategoryAdvancedFeatures
	switch specType {
	case "checkpointing":
		category = CategoryCheckpointing
	case "logging":
		category = CategoryLogging
	case "security":
		category = CategorySecurity
	case "networking":
		category = CategoryNetworking
	}
	t.Record(pointer, field, spec, reason, Opts{
		Severity: ir.SeverityWarn,
		Category: category,
		RecoverySuggestions: []string{
			fmt.Sprintf("Target format does not support %s specifications", specType),
			"Manual configuration may be required in target environment",
		},
	})
}

// RecordEnvironmentSpecificLoss records loss of a full environment-specific
// value, preserving all bindings so reinjection can restore them.
func (t *Tracker) RecordEnvironmentSpecificLoss(pointer, field string, ev *ir.EnvValue, targetEnv, reason string, category string) {
	if category == "" {
		category = CategoryEnvironmentSpec
	}
	envs := ev.AllEnvironments()
	applicable := make([]any, len(envs))
	for i, e := range envs {
		applicable[i] = e
	}
	t.Record(pointer, field, map[string]any{"values": bindingsAsAny(ev)}, reason, Opts{
		Severity: ir.SeverityWarn,
		Category: category,
		EnvironmentContext: map[string]any{
			"applicable_environments": applicable,
			"target_environment":      targetEnv,
		},
	})
}

// RecordResourceLoss records loss of a task resource specification.
func (t *Tracker) RecordResourceLoss(taskID, field string, value any, targetEnv, reason string) {
	t.Record(fmt.Sprintf("/tasks/%s/%s", taskID, field), field, value, reason, Opts{
		Severity: ir.SeverityWarn,
		Category: CategoryResourceSpec,
		EnvironmentContext: map[string]any{
			"target_environment": targetEnv,
		},
	})
}

// Entries returns a copy of the current entry list, insertion-ordered.
func (t *Tracker) Entries() []ir.LossEntry {
	out := make([]ir.LossEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of recorded entries.
func (t *Tracker) Len() int { return len(t.entries) }

// Summary computes the count-by-dimension summary over the entry list.
type Summary struct {
	TotalEntries int            `json:"total_entries"`
	ByCategory   map[string]int `json:"by_category"`
	BySeverity   map[string]int `json:"by_severity"`
	ByStatus     map[string]int `json:"by_status"`
	ByOrigin     map[string]int `json:"by_origin"`
}

// Summarize computes summary statistics over a list of entries.
func Summarize(entries []ir.LossEntry) Summary {
	s := Summary{
		ByCategory: map[string]int{},
		BySeverity: map[string]int{ir.SeverityInfo: 0, ir.SeverityWarn: 0, ir.SeverityError: 0},
		ByStatus: map[string]int{
			ir.LossStatusLost: 0, ir.LossStatusLostAgain: 0,
			ir.LossStatusReapplied: 0, ir.LossStatusAdapted: 0,
		},
		ByOrigin: map[string]int{ir.LossOriginUser: 0, ir.LossOriginWf2wf: 0},
	}
	s.TotalEntries = len(entries)
	for _, e := range entries {
		s.ByCategory[e.Category]++
		s.BySeverity[e.Severity]++
		s.ByStatus[e.Status]++
		s.ByOrigin[e.Origin]++
	}
	return s
}

func bindingsAsAny(ev *ir.EnvValue) []any {
	out := make([]any, 0, len(ev.Values))
	for _, b := range ev.Values {
		envs := make([]any, len(b.Environments))
		for i, e := range b.Environments {
			envs[i] = e
		}
		out = append(out, map[string]any{
			"value":         b.Value,
			"environments":  envs,
			"source_method": b.SourceMethod,
			"confidence":    b.Confidence,
		})
	}
	return out
}
