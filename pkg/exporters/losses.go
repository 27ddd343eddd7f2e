package exporters

import (
	"fmt"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
)

// unrepresentable lists, per target format, the task fields the format has
// no construct for, with the reason recorded in each loss entry. Fields not
// listed here either map faithfully or are handled by the adapter itself.
type fieldLoss struct {
	field    string
	reason   string
	category string
}

var unrepresentable = map[string][]fieldLoss{
	ir.FormatDAGMan: {
		{"scatter", "DAGMan has no scatter construct", loss.CategoryAdvancedFeatures},
		{"when", "DAGMan has no conditional execution construct", loss.CategoryAdvancedFeatures},
		{"checkpointing", "DAGMan submit files do not express checkpoint specs", loss.CategoryCheckpointing},
		{"logging", "DAGMan submit files do not express logging specs", loss.CategoryLogging},
		{"security", "DAGMan submit files do not express security specs", loss.CategorySecurity},
		{"networking", "DAGMan submit files do not express networking specs", loss.CategoryNetworking},
	},
	ir.FormatCWL: {
		{"gpu", "CWL ResourceRequirement has no GPU field", loss.CategoryResourceSpec},
		{"gpu_mem_mb", "CWL ResourceRequirement has no GPU memory field", loss.CategoryResourceSpec},
		{"retry_count", "CWL has no retry construct", loss.CategoryErrorHandling},
		{"retry_delay", "CWL has no retry construct", loss.CategoryErrorHandling},
		{"priority", "CWL has no job priority construct", loss.CategoryAdvancedFeatures},
		{"checkpointing", "CWL has no checkpoint construct", loss.CategoryCheckpointing},
		{"logging", "CWL has no logging spec construct", loss.CategoryLogging},
		{"security", "CWL has no security spec construct", loss.CategorySecurity},
		{"networking", "CWL has no networking spec construct", loss.CategoryNetworking},
	},
	ir.FormatSnakemake: {
		{"gpu", "Snakemake resources do not standardize GPU counts", loss.CategoryResourceSpec},
		{"gpu_mem_mb", "Snakemake resources do not standardize GPU memory", loss.CategoryResourceSpec},
		{"scatter", "Snakemake expresses fan-out via wildcards, not scatter", loss.CategoryAdvancedFeatures},
		{"when", "Snakemake has no per-rule conditional execution", loss.CategoryAdvancedFeatures},
		{"checkpointing", "Snakemake has no checkpoint spec construct", loss.CategoryCheckpointing},
		{"security", "Snakemake has no security spec construct", loss.CategorySecurity},
		{"networking", "Snakemake has no networking spec construct", loss.CategoryNetworking},
	},
	ir.FormatNextflow: {
		{"checkpointing", "Nextflow has no checkpoint spec construct", loss.CategoryCheckpointing},
		{"security", "Nextflow has no security spec construct", loss.CategorySecurity},
		{"networking", "Nextflow has no networking spec construct", loss.CategoryNetworking},
		{"priority", "Nextflow has no per-process priority", loss.CategoryAdvancedFeatures},
	},
	ir.FormatWDL: {
		{"checkpointing", "WDL has no checkpoint spec construct", loss.CategoryCheckpointing},
		{"logging", "WDL has no logging spec construct", loss.CategoryLogging},
		{"security", "WDL has no security spec construct", loss.CategorySecurity},
		{"networking", "WDL has no networking spec construct", loss.CategoryNetworking},
		{"priority", "WDL runtime has no priority key", loss.CategoryAdvancedFeatures},
		{"when", "WDL conditionals are structural, not per-task attributes", loss.CategoryAdvancedFeatures},
	},
	ir.FormatGalaxy: {
		{"cpu", "Galaxy workflows delegate resources to the instance", loss.CategoryResourceSpec},
		{"mem_mb", "Galaxy workflows delegate resources to the instance", loss.CategoryResourceSpec},
		{"disk_mb", "Galaxy workflows delegate resources to the instance", loss.CategoryResourceSpec},
		{"gpu", "Galaxy workflows delegate resources to the instance", loss.CategoryResourceSpec},
		{"retry_count", "Galaxy has no retry construct", loss.CategoryErrorHandling},
		{"scatter", "Galaxy collections are not scatter specs", loss.CategoryAdvancedFeatures},
		{"when", "Galaxy has no conditional step execution", loss.CategoryAdvancedFeatures},
		{"checkpointing", "Galaxy has no checkpoint construct", loss.CategoryCheckpointing},
		{"logging", "Galaxy has no logging spec construct", loss.CategoryLogging},
		{"security", "Galaxy has no security spec construct", loss.CategorySecurity},
		{"networking", "Galaxy has no networking spec construct", loss.CategoryNetworking},
	},
	// BCO packs everything into domains or extension_domain entries.
	ir.FormatBCO: {},
	ir.FormatIR:  {},
}

// transferLossFormats lists the formats that cannot express distributed file
// staging; their file-transfer fields are recorded as losses.
var transferLossFormats = map[string]bool{
	ir.FormatCWL:    true,
	ir.FormatGalaxy: true,
}

// intentLossFormats cannot carry ontology intent IRIs.
var intentLossFormats = map[string]bool{
	ir.FormatSnakemake: true,
	ir.FormatDAGMan:    true,
	ir.FormatNextflow:  true,
}

// detectAndRecordLosses walks every task and records a loss entry for each
// present value the target format cannot represent.
func detectAndRecordLosses(w *ir.Workflow, format, env string, tracker *loss.Tracker) {
	rules := unrepresentable[format]
	for _, id := range w.TaskIDs() {
		task := w.Tasks[id]
		for _, rule := range rules {
			ev := task.EnvField(rule.field)
			if ev == nil || ev.IsEmpty() {
				continue
			}
			if v := ev.Get(env); v != nil && isZeroValue(v) {
				// A zero resource (gpu=0) is representable by omission.
				continue
			}
			if len(ev.AllEnvironments()) == 0 && ev.Get(env) == nil {
				continue
			}
			tracker.RecordEnvironmentSpecificLoss(
				fmt.Sprintf("/tasks/%s/%s", id, rule.field),
				rule.field, ev, env, rule.reason, rule.category)
		}
		if transferLossFormats[format] {
			for _, field := range []string{"file_transfer_mode", "staging_required", "cleanup_after"} {
				ev := task.EnvField(field)
				if ev.IsEmpty() {
					continue
				}
				tracker.RecordEnvironmentSpecificLoss(
					fmt.Sprintf("/tasks/%s/%s", id, field),
					field, ev, env,
					fmt.Sprintf("%s has no file transfer construct", format),
					loss.CategoryFileTransfer)
			}
		}
		for _, p := range task.Outputs {
			if len(p.SecondaryFiles) > 0 && format == ir.FormatDAGMan {
				tracker.Record(
					fmt.Sprintf("/tasks/%s/outputs/%s/secondary_files", id, p.ID),
					"secondary_files", toAnyList(p.SecondaryFiles),
					"DAGMan has no secondary files construct",
					loss.Opts{Severity: ir.SeverityWarn, Category: loss.CategoryAdvancedFeatures})
			}
		}
	}
	if intentLossFormats[format] && len(w.Intent) > 0 {
		tracker.Record("/intent", "intent", toAnyList(w.Intent),
			fmt.Sprintf("%s has no ontology intent construct", format),
			loss.Opts{Severity: ir.SeverityInfo, Category: loss.CategoryMetadata})
	}
}

// isZeroValue reports whether a resource value is the representable-by-
// omission zero.
func isZeroValue(v any) bool {
	switch t := v.(type) {
	case int64:
		return t == 0
	case float64:
		return t == 0
	case bool:
		return !t
	case string:
		return t == ""
	}
	return false
}

func toAnyList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
