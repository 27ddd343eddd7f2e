package exporters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
)

// GalaxyExporter emits a Galaxy .ga workflow JSON: data_input steps for
// workflow inputs followed by tool steps wired through input_connections.
type GalaxyExporter struct{}

func init() { Register(GalaxyExporter{}) }

func (GalaxyExporter) Format() string           { return ir.FormatGalaxy }
func (GalaxyExporter) DefaultExtension() string { return ".ga" }

func (GalaxyExporter) GenerateOutput(w *ir.Workflow, outputPath string, tracker *loss.Tracker, opts Options) error {
	env := ir.EnvSharedFilesystem
	order, err := ir.TopoSort(w)
	if err != nil {
		return err
	}

	steps := map[string]any{}
	nextID := int64(0)
	inputSteps := map[string]int64{} // workflow input id → step id
	for _, p := range w.Inputs {
		steps[strconv.FormatInt(nextID, 10)] = map[string]any{
			"id":          nextID,
			"type":        "data_input",
			"label":       p.ID,
			"name":        "Input dataset",
			"annotation":  p.Doc,
			"inputs":      []any{map[string]any{"name": p.ID, "description": p.Doc}},
			"outputs":     []any{},
			"tool_id":     nil,
			"tool_state":  `{"optional": false}`,
			"workflow_outputs": []any{},
		}
		inputSteps[p.ID] = nextID
		nextID++
	}

	taskSteps := map[string]int64{}
	for _, id := range order {
		taskSteps[id] = nextID
		nextID++
	}
	for _, id := range order {
		task := w.Tasks[id]
		stepID := taskSteps[id]
		connections := map[string]any{}
		for i, parent := range w.Parents(id) {
			connections[fmt.Sprintf("input%d", i+1)] = map[string]any{
				"id":          taskSteps[parent],
				"output_name": "output",
			}
		}
		for _, p := range task.Inputs {
			if srcID, ok := inputSteps[p.ID]; ok {
				connections[p.ID] = map[string]any{"id": srcID, "output_name": "output"}
			}
		}
		outputs := []any{}
		for _, p := range task.Outputs {
			outputs = append(outputs, map[string]any{"name": p.ID, "type": "data"})
		}
		toolID := task.Command.GetString(env)
		if m := task.Metadata; m != nil {
			if tid, ok := m.FormatSpecific["tool_id"].(string); ok && tid != "" {
				toolID = tid
			}
		}
		steps[strconv.FormatInt(stepID, 10)] = map[string]any{
			"id":                stepID,
			"type":              "tool",
			"label":             id,
			"name":              firstNonEmpty(task.Label, id),
			"annotation":        task.Doc,
			"tool_id":           toolID,
			"tool_state":        "{}",
			"input_connections": connections,
			"inputs":            []any{},
			"outputs":           outputs,
			"workflow_outputs":  []any{},
		}
	}

	doc := map[string]any{
		"a_galaxy_workflow": "true",
		"format-version":    "0.1",
		"name":              w.Name,
		"annotation":        w.Doc,
		"tags":              []any{},
		"steps":             steps,
		"uuid":              "",
		"version":           0,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode galaxy workflow: %w", err)
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write galaxy workflow: %w", err)
	}
	return nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
