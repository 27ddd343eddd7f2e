package importers

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/csmcal/wf2wf/pkg/bco"
	"github.com/csmcal/wf2wf/pkg/ir"
)

// BCOImporter reconstructs a workflow from an IEEE 2791 BioCompute Object:
// pipeline steps become tasks, the io domain becomes workflow parameters,
// and wf2wf extension entries restore the execution model.
type BCOImporter struct{}

func init() { Register(BCOImporter{}) }

func (BCOImporter) Format() string       { return ir.FormatBCO }
func (BCOImporter) Extensions() []string { return []string{".json"} }

func (BCOImporter) Parse(path string, opts Options) (any, error) {
	return bco.Load(path)
}

func (BCOImporter) BuildSkeleton(parsed any, path string) (*ir.Workflow, error) {
	doc, ok := parsed.(*bco.Document)
	if !ok {
		return nil, fmt.Errorf("unexpected parse tree type %T", parsed)
	}
	prov, _ := doc.Fields["provenance_domain"].(map[string]any)
	name, _ := prov["name"].(string)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	w := ir.NewWorkflow(name)
	if version, ok := prov["version"].(string); ok {
		w.Version = version
	}
	env := ir.EnvSharedFilesystem

	w.Provenance = &ir.Provenance{}
	if license, ok := prov["license"].(string); ok {
		w.Provenance.License = license
	}
	if contribs, ok := prov["contributors"].([]any); ok {
		for _, c := range contribs {
			if cm, ok := c.(map[string]any); ok {
				if n, ok := cm["name"].(string); ok && n != "" {
					w.Provenance.Authors = append(w.Provenance.Authors, n)
				}
			}
		}
	}
	if usability, ok := doc.Fields["usability_domain"].([]any); ok {
		var parts []string
		for _, u := range usability {
			if s, ok := u.(string); ok {
				parts = append(parts, s)
			}
		}
		w.Doc = strings.Join(parts, "\n")
	}

	desc, _ := doc.Fields["description_domain"].(map[string]any)
	steps, _ := desc["pipeline_steps"].([]any)
	type numbered struct {
		n    int64
		id   string
		body map[string]any
	}
	var ordered []numbered
	for _, s := range steps {
		body, ok := s.(map[string]any)
		if !ok {
			continue
		}
		n, _ := asInt(body["step_number"])
		id, _ := body["name"].(string)
		if id == "" {
			id = fmt.Sprintf("step_%d", n)
		}
		ordered = append(ordered, numbered{n: n, id: id, body: body})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].n < ordered[j].n })

	exec, _ := doc.Fields["execution_domain"].(map[string]any)
	scripts, _ := exec["script"].([]any)

	var prev string
	for i, step := range ordered {
		task := ir.NewTask(sanitizeGalaxyID(step.id))
		if task.ID == "" {
			task.ID = fmt.Sprintf("step_%d", step.n)
		}
		if d, ok := step.body["description"].(string); ok {
			task.Doc = d
		}
		if i < len(scripts) {
			if s, ok := scripts[i].(string); ok {
				task.Command.Set(s, env)
			}
		}
		for _, key := range []string{"input_list", "output_list"} {
			list, _ := step.body[key].([]any)
			for _, item := range list {
				uri := ""
				switch it := item.(type) {
				case string:
					uri = it
				case map[string]any:
					uri, _ = it["uri"].(string)
				}
				if uri == "" {
					continue
				}
				param := ir.Parameter{ID: uri, Type: ir.PrimitiveType("File")}
				if key == "input_list" {
					task.Inputs = append(task.Inputs, param)
				} else {
					task.Outputs = append(task.Outputs, param)
				}
			}
		}
		w.AddTask(task)
		// Pipeline steps are ordered; absent explicit wiring, each step
		// depends on its predecessor.
		if prev != "" {
			w.AddEdge(prev, task.ID)
		}
		prev = task.ID
	}

	if io, ok := doc.Fields["io_domain"].(map[string]any); ok {
		w.Inputs = bcoIOParams(io["input_subdomain"])
		w.Outputs = bcoIOParams(io["output_subdomain"])
	}
	if envVars, ok := exec["environment_variables"].(map[string]any); ok && len(envVars) > 0 {
		w.Meta().FormatSpecific = map[string]any{"environment_variables": envVars}
	}
	if ext, ok := doc.Fields["extension_domain"].([]any); ok {
		for _, e := range ext {
			em, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if ns, _ := em["namespace"].(string); ns == bco.ExtensionNamespaceExecutionModel {
				if model, ok := em["execution_model"].(string); ok {
					w.ExecutionModel.Set(model, env)
				}
			}
		}
	}
	return w, nil
}

func bcoIOParams(v any) []ir.Parameter {
	var out []ir.Parameter
	list, _ := v.([]any)
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		uri := ""
		if um, ok := m["uri"].(map[string]any); ok {
			uri, _ = um["uri"].(string)
		}
		if uri == "" {
			continue
		}
		out = append(out, ir.Parameter{ID: uri, Type: ir.PrimitiveType("File")})
	}
	return out
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	}
	return 0, false
}
