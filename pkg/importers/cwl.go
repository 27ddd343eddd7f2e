package importers

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/resource"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// CWLImporter parses Common Workflow Language documents: a Workflow with
// inline step tools, or a $graph document carrying the workflow and its
// tools side by side.
type CWLImporter struct{}

func init() { Register(CWLImporter{}) }

func (CWLImporter) Format() string       { return ir.FormatCWL }
func (CWLImporter) Extensions() []string { return []string{".cwl"} }

type cwlDocument struct {
	CWLVersion string         `mapstructure:"cwlVersion"`
	Class      string         `mapstructure:"class"`
	ID         string         `mapstructure:"id"`
	Label      string         `mapstructure:"label"`
	Doc        string         `mapstructure:"doc"`
	Graph      []map[string]any `mapstructure:"$graph"`
	Rest       map[string]any `mapstructure:",remain"`
}

type cwlParse struct {
	doc      map[string]any
	version  string
	workflow map[string]any
	tools    map[string]map[string]any // id → CommandLineTool body
}

func (CWLImporter) Parse(path string, opts Options) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cwl file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cwl yaml: %w", err)
	}
	var meta cwlDocument
	if err := mapstructure.Decode(doc, &meta); err != nil {
		return nil, fmt.Errorf("decode cwl document: %w", err)
	}

	p := &cwlParse{doc: doc, version: meta.CWLVersion, tools: map[string]map[string]any{}}
	if len(meta.Graph) > 0 {
		for _, node := range meta.Graph {
			cls, _ := node["class"].(string)
			id := strings.TrimPrefix(asString(node["id"]), "#")
			switch cls {
			case "Workflow":
				p.workflow = node
			case "CommandLineTool", "ExpressionTool":
				p.tools[id] = node
			}
		}
		if p.workflow == nil {
			return nil, fmt.Errorf("$graph document has no Workflow node")
		}
		return p, nil
	}
	switch meta.Class {
	case "Workflow":
		p.workflow = doc
	case "CommandLineTool":
		// A bare tool becomes a single-step workflow.
		p.workflow = map[string]any{
			"class":  "Workflow",
			"id":     meta.ID,
			"inputs": doc["inputs"], "outputs": doc["outputs"],
			"steps": map[string]any{"main": map[string]any{"run": doc}},
		}
	default:
		return nil, fmt.Errorf("unsupported CWL class %q", meta.Class)
	}
	return p, nil
}

func (imp CWLImporter) BuildSkeleton(parsed any, path string) (*ir.Workflow, error) {
	p, ok := parsed.(*cwlParse)
	if !ok {
		return nil, fmt.Errorf("unexpected parse tree type %T", parsed)
	}
	name := strings.TrimPrefix(asString(p.workflow["id"]), "#")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	w := ir.NewWorkflow(name)
	w.Label = asString(p.workflow["label"])
	w.Doc = asString(p.workflow["doc"])
	if p.version != "" {
		w.Meta().SourceVersion = p.version
	}
	env := ir.EnvSharedFilesystem

	w.Inputs = cwlParameters(p.workflow["inputs"])
	w.Outputs = cwlParameters(p.workflow["outputs"])

	steps := asNamedMaps(p.workflow["steps"])
	for _, step := range steps {
		task := ir.NewTask(step.name)
		run := step.body["run"]
		var tool map[string]any
		switch r := run.(type) {
		case string:
			tool = p.tools[strings.TrimPrefix(r, "#")]
		case map[string]any:
			tool = r
		}
		if tool != nil {
			imp.applyTool(task, tool, env)
		}
		task.Inputs = cwlStepInputs(step.body["in"])
		task.Outputs = cwlParameters(step.body["out"])
		if when := asString(step.body["when"]); when != "" {
			task.When.Set(when, env)
		}
		if scatter := step.body["scatter"]; scatter != nil {
			spec := map[string]any{"scatter": scatterNames(scatter)}
			if method := asString(step.body["scatterMethod"]); method != "" {
				spec["scatter_method"] = method
			}
			task.Scatter.Set(spec, env)
		}
		w.AddTask(task)
	}

	// Edges from step input sources: "stepname/outputid" references.
	for _, step := range steps {
		for _, src := range cwlInputSources(step.body["in"]) {
			if parent, _, found := strings.Cut(src, "/"); found {
				if _, ok := w.Tasks[parent]; ok && parent != step.name {
					w.AddEdge(parent, step.name)
				}
			}
		}
	}
	return w, nil
}

func (CWLImporter) applyTool(task *ir.Task, tool map[string]any, env string) {
	if cmd := tool["baseCommand"]; cmd != nil {
		switch c := cmd.(type) {
		case string:
			task.Command.Set(c, env)
		case []any:
			var parts []string
			for _, e := range c {
				parts = append(parts, asString(e))
			}
			task.Command.Set(strings.Join(parts, " "), env)
		}
	}
	task.Doc = asString(tool["doc"])
	task.Label = asString(tool["label"])

	applyReqs := func(list any, method string) {
		for _, req := range asReqList(list) {
			cls, _ := req["class"].(string)
			switch cls {
			case "ResourceRequirement":
				if v, ok := cwlNumber(req["coresMin"]); ok {
					task.CPU.SetWithMethod(v, env, method, 1.0)
				}
				if v, ok := cwlNumber(req["ramMin"]); ok {
					task.MemMB.SetWithMethod(v, env, method, 1.0)
				}
				if v, ok := cwlNumber(req["tmpdirMin"]); ok {
					task.DiskMB.SetWithMethod(v, env, method, 1.0)
				}
			case "DockerRequirement":
				if img := asString(req["dockerPull"]); img != "" {
					task.Container.SetWithMethod(img, env, method, 1.0)
				}
			case "EnvVarRequirement":
				if def, ok := req["envDef"].(map[string]any); ok {
					task.EnvVars.SetWithMethod(def, env, method, 1.0)
				}
			case "SoftwareRequirement":
				if pkgs, ok := req["packages"].([]any); ok {
					var names []string
					for _, pkg := range pkgs {
						if pm, ok := pkg.(map[string]any); ok {
							names = append(names, asString(pm["package"]))
						}
					}
					if len(names) > 0 {
						task.Meta().FormatSpecific = setFormatSpecific(task.Meta().FormatSpecific, "software_packages", strings.Join(names, ","))
					}
				}
			}
		}
	}
	applyReqs(tool["requirements"], ir.SourceExplicit)
	applyReqs(tool["hints"], ir.SourceInferred)

	if toolTime, ok := tool["time"]; ok {
		if s := asString(toolTime); s != "" {
			if secs, err := resource.ParseTimeS(s); err == nil {
				task.TimeS.Set(secs, env)
			}
		}
	}
}

type namedMap struct {
	name string
	body map[string]any
}

// asNamedMaps handles both CWL shapes: a mapping keyed by id, or a list of
// entries each carrying an id.
func asNamedMaps(v any) []namedMap {
	var out []namedMap
	switch t := v.(type) {
	case map[string]any:
		for _, name := range sortedAnyKeys(t) {
			if body, ok := t[name].(map[string]any); ok {
				out = append(out, namedMap{name: name, body: body})
			}
		}
	case []any:
		for _, e := range t {
			if body, ok := e.(map[string]any); ok {
				out = append(out, namedMap{name: strings.TrimPrefix(asString(body["id"]), "#"), body: body})
			}
		}
	}
	return out
}

func cwlParameters(v any) []ir.Parameter {
	var out []ir.Parameter
	switch t := v.(type) {
	case map[string]any:
		for _, name := range sortedAnyKeys(t) {
			out = append(out, cwlParameter(name, t[name]))
		}
	case []any:
		for _, e := range t {
			switch item := e.(type) {
			case string:
				out = append(out, ir.Parameter{ID: item, Type: ir.PrimitiveType("Any")})
			case map[string]any:
				out = append(out, cwlParameter(strings.TrimPrefix(asString(item["id"]), "#"), item))
			}
		}
	}
	return out
}

func cwlParameter(name string, body any) ir.Parameter {
	p := ir.Parameter{ID: name, Type: ir.PrimitiveType("Any")}
	switch b := body.(type) {
	case string:
		p.Type = cwlType(b)
	case map[string]any:
		if ts, ok := b["type"]; ok {
			if s, ok := ts.(string); ok {
				p.Type = cwlType(s)
			}
		}
		p.Label = asString(b["label"])
		p.Doc = asString(b["doc"])
		p.Default = b["default"]
		if sf, ok := b["secondaryFiles"].([]any); ok {
			for _, f := range sf {
				p.SecondaryFiles = append(p.SecondaryFiles, asString(f))
			}
		}
	}
	return p
}

// cwlType maps CWL type strings (including "x[]" arrays and "x?" optionals)
// onto TypeSpec.
func cwlType(s string) ir.TypeSpec {
	if strings.HasSuffix(s, "[]") {
		return ir.ArrayType(cwlType(strings.TrimSuffix(s, "[]")))
	}
	if strings.HasSuffix(s, "?") {
		inner := cwlType(strings.TrimSuffix(s, "?"))
		null := ir.PrimitiveType("null")
		return ir.UnionType(&inner, &null)
	}
	switch s {
	case "string", "int", "long", "float", "double", "boolean", "File", "Directory", "Any", "null":
		return ir.PrimitiveType(s)
	}
	return ir.PrimitiveType("Any")
}

func cwlStepInputs(v any) []ir.Parameter {
	var out []ir.Parameter
	switch t := v.(type) {
	case map[string]any:
		for _, name := range sortedAnyKeys(t) {
			out = append(out, ir.Parameter{ID: name, Type: ir.PrimitiveType("Any")})
		}
	case []any:
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, ir.Parameter{ID: asString(m["id"]), Type: ir.PrimitiveType("Any")})
			}
		}
	}
	return out
}

func cwlInputSources(v any) []string {
	var out []string
	collect := func(src any) {
		switch s := src.(type) {
		case string:
			out = append(out, s)
		case []any:
			for _, e := range s {
				out = append(out, asString(e))
			}
		}
	}
	switch t := v.(type) {
	case map[string]any:
		for _, body := range t {
			switch b := body.(type) {
			case string:
				collect(b)
			case map[string]any:
				collect(b["source"])
			}
		}
	case []any:
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				collect(m["source"])
			}
		}
	}
	return out
}

func scatterNames(v any) []any {
	switch t := v.(type) {
	case string:
		return []any{t}
	case []any:
		return t
	}
	return nil
}

func asReqList(v any) []map[string]any {
	var out []map[string]any
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
	case map[string]any:
		for _, cls := range sortedAnyKeys(t) {
			body, _ := t[cls].(map[string]any)
			if body == nil {
				body = map[string]any{}
			}
			entry := map[string]any{"class": cls}
			for k, v := range body {
				entry[k] = v
			}
			out = append(out, entry)
		}
	}
	return out
}

func cwlNumber(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	}
	return 0, false
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func sortedAnyKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
