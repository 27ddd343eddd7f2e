package importers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/go-viper/mapstructure/v2"
)

// GalaxyImporter parses Galaxy .ga workflow JSON: numbered steps of type
// data_input or tool, wired by input_connections.
type GalaxyImporter struct{}

func init() { Register(GalaxyImporter{}) }

func (GalaxyImporter) Format() string       { return ir.FormatGalaxy }
func (GalaxyImporter) Extensions() []string { return []string{".ga"} }

type galaxyWorkflow struct {
	Name       string                `mapstructure:"name"`
	Annotation string                `mapstructure:"annotation"`
	Steps      map[string]galaxyStep `mapstructure:"steps"`
	Tags       []string              `mapstructure:"tags"`
	Rest       map[string]any        `mapstructure:",remain"`
}

type galaxyStep struct {
	ID               int64                     `mapstructure:"id"`
	Type             string                    `mapstructure:"type"`
	Label            string                    `mapstructure:"label"`
	Name             string                    `mapstructure:"name"`
	Annotation       string                    `mapstructure:"annotation"`
	ToolID           string                    `mapstructure:"tool_id"`
	ToolVersion      string                    `mapstructure:"tool_version"`
	ToolState        string                    `mapstructure:"tool_state"`
	InputConnections map[string]any            `mapstructure:"input_connections"`
	Inputs           []map[string]any          `mapstructure:"inputs"`
	Outputs          []map[string]any          `mapstructure:"outputs"`
	Rest             map[string]any            `mapstructure:",remain"`
}

func (GalaxyImporter) Parse(path string, opts Options) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read galaxy workflow: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse galaxy json: %w", err)
	}
	var gw galaxyWorkflow
	if err := mapstructure.WeakDecode(raw, &gw); err != nil {
		return nil, fmt.Errorf("decode galaxy workflow: %w", err)
	}
	return &gw, nil
}

func (GalaxyImporter) BuildSkeleton(parsed any, path string) (*ir.Workflow, error) {
	gw, ok := parsed.(*galaxyWorkflow)
	if !ok {
		return nil, fmt.Errorf("unexpected parse tree type %T", parsed)
	}
	name := gw.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	w := ir.NewWorkflow(name)
	w.Doc = gw.Annotation
	env := ir.EnvSharedFilesystem

	// Stable iteration: steps keyed by numeric index strings.
	stepKeys := make([]string, 0, len(gw.Steps))
	for k := range gw.Steps {
		stepKeys = append(stepKeys, k)
	}
	sort.Slice(stepKeys, func(i, j int) bool {
		a, _ := strconv.Atoi(stepKeys[i])
		b, _ := strconv.Atoi(stepKeys[j])
		return a < b
	})

	idToTask := map[int64]string{}
	for _, key := range stepKeys {
		step := gw.Steps[key]
		switch step.Type {
		case "data_input", "data_collection_input", "parameter_input":
			pid := step.Label
			if pid == "" {
				pid = fmt.Sprintf("input_%d", step.ID)
			}
			w.Inputs = append(w.Inputs, ir.Parameter{
				ID:   pid,
				Type: ir.PrimitiveType("File"),
				Doc:  step.Annotation,
			})
			idToTask[step.ID] = "" // inputs are not tasks
		default:
			taskID := step.Label
			if taskID == "" {
				taskID = sanitizeGalaxyID(step.Name)
			}
			if taskID == "" {
				taskID = fmt.Sprintf("step_%d", step.ID)
			}
			task := ir.NewTask(taskID)
			task.Label = step.Name
			task.Doc = step.Annotation
			if step.ToolID != "" {
				task.Command.Set(step.ToolID, env)
				task.Meta().FormatSpecific = setFormatSpecific(task.Meta().FormatSpecific, "tool_id", step.ToolID)
			}
			if step.ToolVersion != "" {
				task.Meta().FormatSpecific = setFormatSpecific(task.Meta().FormatSpecific, "tool_version", step.ToolVersion)
			}
			if step.ToolState != "" {
				task.Meta().FormatSpecific = setFormatSpecific(task.Meta().FormatSpecific, "tool_state", step.ToolState)
			}
			for _, out := range step.Outputs {
				outName, _ := out["name"].(string)
				if outName == "" {
					continue
				}
				task.Outputs = append(task.Outputs, ir.Parameter{ID: outName, Type: ir.PrimitiveType("File")})
			}
			for connName := range step.InputConnections {
				task.Inputs = append(task.Inputs, ir.Parameter{ID: connName, Type: ir.PrimitiveType("File")})
			}
			sort.Slice(task.Inputs, func(i, j int) bool { return task.Inputs[i].ID < task.Inputs[j].ID })
			w.AddTask(task)
			idToTask[step.ID] = taskID
		}
	}

	// Edges from input_connections: {"input": {"id": 0, "output_name": ...}}.
	for _, key := range stepKeys {
		step := gw.Steps[key]
		childID := idToTask[step.ID]
		if childID == "" {
			continue
		}
		for _, conn := range step.InputConnections {
			for _, src := range connectionSources(conn) {
				if parent := idToTask[src]; parent != "" && parent != childID {
					w.AddEdge(parent, childID)
				}
			}
		}
	}
	if len(gw.Tags) > 0 {
		w.Meta().Annotations = map[string]any{"tags": toAnyStrings(gw.Tags)}
	}
	return w, nil
}

// connectionSources extracts parent step ids from an input_connections value,
// which may be a single object or a list of objects.
func connectionSources(conn any) []int64 {
	var out []int64
	extract := func(m map[string]any) {
		switch id := m["id"].(type) {
		case float64:
			out = append(out, int64(id))
		case int64:
			out = append(out, id)
		}
	}
	switch c := conn.(type) {
	case map[string]any:
		extract(c)
	case []any:
		for _, e := range c {
			if m, ok := e.(map[string]any); ok {
				extract(m)
			}
		}
	}
	return out
}

func sanitizeGalaxyID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func toAnyStrings(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
