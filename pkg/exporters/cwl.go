package exporters

import (
	"fmt"
	"os"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
	"gopkg.in/yaml.v3"
)

// CWLExporter emits a single CWL file: a $graph document holding the
// Workflow plus one CommandLineTool per task. Resource values whose source
// method is "explicit" go to requirements; inferred values go to hints.
type CWLExporter struct{}

func init() { Register(CWLExporter{}) }

func (CWLExporter) Format() string           { return ir.FormatCWL }
func (CWLExporter) DefaultExtension() string { return ".cwl" }

func (CWLExporter) GenerateOutput(w *ir.Workflow, outputPath string, tracker *loss.Tracker, opts Options) error {
	env := ir.EnvSharedFilesystem
	order, err := ir.TopoSort(w)
	if err != nil {
		return err
	}

	graph := []any{}
	steps := map[string]any{}
	for _, id := range order {
		task := w.Tasks[id]
		toolID := sanitizeName(id) + "_tool"
		graph = append(graph, cwlTool(task, toolID, env))

		in := map[string]any{}
		for _, p := range task.Inputs {
			src := p.ID
			for _, parent := range w.Parents(id) {
				for _, po := range w.Tasks[parent].Outputs {
					if po.ID == p.ID {
						src = sanitizeName(parent) + "/" + sanitizeName(po.ID)
					}
				}
			}
			in[sanitizeName(p.ID)] = src
		}
		out := []any{}
		for _, p := range task.Outputs {
			out = append(out, sanitizeName(p.ID))
		}
		step := map[string]any{"run": "#" + toolID, "in": in, "out": out}
		if when := task.When.GetString(env); when != "" {
			step["when"] = when
		}
		steps[sanitizeName(id)] = step
	}

	wfNode := map[string]any{
		"class":   "Workflow",
		"id":      sanitizeName(w.Name),
		"inputs":  cwlIOMap(w.Inputs),
		"outputs": cwlIOMap(w.Outputs),
		"steps":   steps,
	}
	if w.Label != "" {
		wfNode["label"] = w.Label
	}
	if w.Doc != "" {
		wfNode["doc"] = w.Doc
	}

	doc := map[string]any{
		"cwlVersion": "v1.2",
		"$graph":     append([]any{wfNode}, graph...),
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal cwl: %w", err)
	}
	header := "#!/usr/bin/env cwl-runner\n" +
		fmt.Sprintf("# CWL generated by wf2wf from workflow '%s'\n", w.Name)
	if err := os.WriteFile(outputPath, append([]byte(header), data...), 0o644); err != nil {
		return fmt.Errorf("write cwl file: %w", err)
	}
	return nil
}

func cwlTool(task *ir.Task, toolID, env string) map[string]any {
	tool := map[string]any{
		"class": "CommandLineTool",
		"id":    toolID,
	}
	if command := task.Command.GetString(env); command != "" {
		parts := strings.Fields(command)
		if len(parts) == 1 {
			tool["baseCommand"] = parts[0]
		} else {
			base := make([]any, len(parts))
			for i, p := range parts {
				base[i] = p
			}
			tool["baseCommand"] = base
		}
	}
	if task.Doc != "" {
		tool["doc"] = task.Doc
	}

	requirements := []any{}
	hints := []any{}
	addResource := func(field string, key string) {
		b := task.EnvField(field).Binding(env)
		if b == nil {
			return
		}
		n, ok := task.EnvField(field).GetInt(env)
		if !ok || n <= 0 {
			return
		}
		entry := map[string]any{"class": "ResourceRequirement", key: n}
		if b.SourceMethod == ir.SourceExplicit {
			requirements = append(requirements, entry)
		} else {
			hints = append(hints, entry)
		}
	}
	addResource("cpu", "coresMin")
	addResource("mem_mb", "ramMin")
	addResource("disk_mb", "tmpdirMin")

	if container := task.Container.GetString(env); container != "" {
		docker := map[string]any{"class": "DockerRequirement", "dockerPull": container}
		if b := task.Container.Binding(env); b != nil && b.SourceMethod != ir.SourceExplicit {
			hints = append(hints, docker)
		} else {
			requirements = append(requirements, docker)
		}
	}
	if evars := task.EnvVars.Get(env); evars != nil {
		if m, ok := evars.(map[string]any); ok && len(m) > 0 {
			requirements = append(requirements, map[string]any{"class": "EnvVarRequirement", "envDef": m})
		}
	}
	if len(requirements) > 0 {
		tool["requirements"] = mergeResourceEntries(requirements)
	}
	if len(hints) > 0 {
		tool["hints"] = mergeResourceEntries(hints)
	}

	tool["inputs"] = cwlIOMap(task.Inputs)
	tool["outputs"] = cwlIOMap(task.Outputs)
	return tool
}

// mergeResourceEntries folds multiple ResourceRequirement fragments into one.
func mergeResourceEntries(entries []any) []any {
	merged := map[string]any{}
	var out []any
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if m["class"] == "ResourceRequirement" {
			for k, v := range m {
				merged[k] = v
			}
			continue
		}
		out = append(out, m)
	}
	if len(merged) > 0 {
		out = append([]any{merged}, out...)
	}
	return out
}

func cwlIOMap(params []ir.Parameter) map[string]any {
	out := map[string]any{}
	for _, p := range params {
		body := map[string]any{"type": cwlTypeString(p.Type)}
		if p.Label != "" {
			body["label"] = p.Label
		}
		if p.Doc != "" {
			body["doc"] = p.Doc
		}
		if p.Default != nil {
			body["default"] = p.Default
		}
		if len(p.SecondaryFiles) > 0 {
			sf := make([]any, len(p.SecondaryFiles))
			for i, f := range p.SecondaryFiles {
				sf[i] = f
			}
			body["secondaryFiles"] = sf
		}
		out[sanitizeName(p.ID)] = body
	}
	return out
}

func cwlTypeString(t ir.TypeSpec) string {
	switch t.Type {
	case "array":
		if t.Items != nil {
			return cwlTypeString(*t.Items) + "[]"
		}
		return "Any[]"
	case "union":
		if t.Nullable && len(t.Members) == 2 {
			for _, m := range t.Members {
				if m.Type != "null" {
					return cwlTypeString(*m) + "?"
				}
			}
		}
		return "Any"
	case "record", "enum":
		return "Any"
	default:
		return t.Type
	}
}
