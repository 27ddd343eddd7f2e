package exporters

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/csmcal/wf2wf/pkg/bco"
	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
	"github.com/google/uuid"
)

// BCOExporter composes an IEEE 2791 BioCompute Object from the IR:
// provenance, usability, description, execution, parametric, io and error
// domains, with wf2wf specifics carried in extension_domain entries. With
// the cwl_sibling option it also packages a CWL rendering next to the BCO.
type BCOExporter struct{}

func init() { Register(BCOExporter{}) }

func (BCOExporter) Format() string           { return ir.FormatBCO }
func (BCOExporter) DefaultExtension() string { return ".json" }

func (BCOExporter) GenerateOutput(w *ir.Workflow, outputPath string, tracker *loss.Tracker, opts Options) error {
	env := ir.EnvSharedFilesystem
	order, err := ir.TopoSort(w)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	prov := map[string]any{
		"name":     w.Name,
		"version":  firstNonEmpty(w.Version, "1.0"),
		"created":  now,
		"modified": now,
	}
	if w.Provenance != nil {
		if w.Provenance.License != "" {
			prov["license"] = w.Provenance.License
		}
		var contribs []any
		for _, a := range w.Provenance.Authors {
			contribs = append(contribs, map[string]any{
				"name":         a,
				"contribution": []any{"authoredBy"},
			})
		}
		if contribs != nil {
			prov["contributors"] = contribs
		}
	}

	usability := []any{}
	if w.Doc != "" {
		for _, line := range strings.Split(w.Doc, "\n") {
			usability = append(usability, line)
		}
	} else {
		usability = append(usability, fmt.Sprintf("Workflow %s converted by wf2wf", w.Name))
	}

	steps := []any{}
	scripts := []any{}
	parametric := []any{}
	for i, id := range order {
		task := w.Tasks[id]
		step := map[string]any{
			"step_number": int64(i + 1),
			"name":        id,
		}
		if task.Doc != "" {
			step["description"] = task.Doc
		}
		step["input_list"] = uriList(task.Inputs)
		step["output_list"] = uriList(task.Outputs)
		steps = append(steps, step)

		command := task.Command.GetString(env)
		if command == "" {
			command = task.Script.GetString(env)
		}
		scripts = append(scripts, command)

		for _, field := range []string{"cpu", "mem_mb", "disk_mb", "gpu"} {
			if v := task.EnvField(field).Get(env); v != nil {
				parametric = append(parametric, map[string]any{
					"param": field,
					"value": fmt.Sprintf("%v", v),
					"step":  fmt.Sprintf("%d", i+1),
				})
			}
		}
	}

	execDomain := map[string]any{
		"script":                  scripts,
		"script_driver":           "shell",
		"software_prerequisites":  softwarePrereqs(w, env),
		"external_data_endpoints": []any{},
		"environment_variables":   map[string]any{},
	}
	if w.Metadata != nil {
		if envVars, ok := w.Metadata.FormatSpecific["environment_variables"].(map[string]any); ok {
			execDomain["environment_variables"] = envVars
		}
	}

	doc := &bco.Document{Fields: map[string]any{
		"object_id":    "urn:uuid:" + uuid.NewString(),
		"spec_version": bco.SpecVersionURL,
		"etag":         "",
		"provenance_domain": prov,
		"usability_domain":  usability,
		"description_domain": map[string]any{
			"keywords":       keywordList(w),
			"platform":       []any{},
			"pipeline_steps": steps,
		},
		"execution_domain":  execDomain,
		"parametric_domain": parametric,
		"io_domain": map[string]any{
			"input_subdomain":  ioSubdomain(w.Inputs),
			"output_subdomain": ioSubdomain(w.Outputs),
		},
		"error_domain": map[string]any{
			"empirical_error":   map[string]any{},
			"algorithmic_error": map[string]any{},
		},
	}}

	if model, ok := w.ExecutionModel.Get(env).(string); ok && model != "" {
		doc.AppendExtension(map[string]any{
			"extension_schema": "https://wf2wf.dev/schemas/execution-model-extension.json",
			"namespace":        bco.ExtensionNamespaceExecutionModel,
			"execution_model":  model,
		})
	}
	if err := doc.UpdateEtag(); err != nil {
		return fmt.Errorf("compute etag: %w", err)
	}
	if err := doc.Save(outputPath); err != nil {
		return err
	}

	if opts.Extra != nil {
		if sibling, _ := opts.Extra["cwl_sibling"].(bool); sibling {
			cwlPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".cwl"
			if err := (CWLExporter{}).GenerateOutput(w, cwlPath, tracker, opts); err != nil {
				return fmt.Errorf("package cwl sibling: %w", err)
			}
		}
	}
	return nil
}

func uriList(params []ir.Parameter) []any {
	out := []any{}
	for _, p := range params {
		out = append(out, map[string]any{"uri": map[string]any{"uri": p.ID}})
	}
	return out
}

func ioSubdomain(params []ir.Parameter) []any {
	out := []any{}
	for _, p := range params {
		out = append(out, map[string]any{"uri": map[string]any{"uri": p.ID}})
	}
	return out
}

func keywordList(w *ir.Workflow) []any {
	out := []any{}
	for _, intent := range w.Intent {
		out = append(out, intent)
	}
	return out
}

func softwarePrereqs(w *ir.Workflow, env string) []any {
	seen := map[string]bool{}
	out := []any{}
	for _, id := range w.TaskIDs() {
		task := w.Tasks[id]
		if container := task.Container.GetString(env); container != "" && !seen[container] {
			seen[container] = true
			out = append(out, map[string]any{
				"name":    container,
				"version": "latest",
				"uri":     map[string]any{"uri": "docker://" + container},
			})
		}
	}
	return out
}
