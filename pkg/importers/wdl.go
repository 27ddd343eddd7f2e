package importers

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/resource"
)

// WDLImporter parses Workflow Description Language documents: task blocks
// with command/runtime/input/output sections and a workflow block whose call
// statements (and their input wiring) form the DAG.
type WDLImporter struct{}

func init() { Register(WDLImporter{}) }

func (WDLImporter) Format() string       { return ir.FormatWDL }
func (WDLImporter) Extensions() []string { return []string{".wdl"} }

type wdlTask struct {
	name    string
	command string
	runtime map[string]string
	inputs  []wdlDecl
	outputs []wdlDecl
}

type wdlDecl struct {
	typ  string
	name string
}

type wdlCall struct {
	task    string
	alias   string
	after   []string
	sources []string // "Alias.output" references in call inputs
	scatter bool
}

type wdlParse struct {
	version  string
	name     string
	tasks    []*wdlTask
	calls    []*wdlCall
	wfInputs []wdlDecl
}

var wdlVersionRe = regexp.MustCompile(`^\s*version\s+([\w.]+)`)
var wdlTaskRe = regexp.MustCompile(`^\s*task\s+(\w+)\s*\{`)
var wdlWorkflowRe = regexp.MustCompile(`^\s*workflow\s+(\w+)\s*\{`)
var wdlCallRe = regexp.MustCompile(`^\s*call\s+([\w.]+)(?:\s+as\s+(\w+))?(?:\s+after\s+(\w+))?`)
var wdlScatterRe = regexp.MustCompile(`^\s*scatter\s*\(`)
var wdlDeclRe = regexp.MustCompile(`^\s*([A-Z]\w*(?:\[\w+\])?\??)\s+(\w+)`)
var wdlRefRe = regexp.MustCompile(`(\w+)\.(\w+)`)

func (WDLImporter) Parse(path string, opts Options) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wdl file: %w", err)
	}
	p := &wdlParse{}
	lines := strings.Split(string(data), "\n")

	type section int
	const (
		secNone section = iota
		secTask
		secWorkflow
	)
	sec := secNone
	sub := "" // "command", "runtime", "input", "output"
	var task *wdlTask
	depth := 0
	scatterDepth := -1
	inHeredoc := false

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if m := wdlVersionRe.FindStringSubmatch(line); m != nil && sec == secNone {
			p.version = m[1]
			continue
		}

		if inHeredoc {
			if strings.Contains(line, ">>>") {
				task.command = strings.TrimSpace(task.command + " " + strings.TrimSpace(strings.Split(line, ">>>")[0]))
				inHeredoc = false
				sub = ""
			} else {
				task.command = strings.TrimSpace(task.command + " " + line)
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch sec {
		case secNone:
			if m := wdlTaskRe.FindStringSubmatch(line); m != nil {
				task = &wdlTask{name: m[1], runtime: map[string]string{}}
				p.tasks = append(p.tasks, task)
				sec = secTask
				depth = 1
				continue
			}
			if m := wdlWorkflowRe.FindStringSubmatch(line); m != nil {
				p.name = m[1]
				sec = secWorkflow
				depth = 1
				continue
			}
		case secTask:
			if strings.HasPrefix(line, "command") {
				if strings.Contains(line, "<<<") {
					rest := strings.SplitN(line, "<<<", 2)[1]
					if strings.Contains(rest, ">>>") {
						task.command = strings.TrimSpace(strings.Split(rest, ">>>")[0])
					} else {
						task.command = strings.TrimSpace(rest)
						inHeredoc = true
					}
				} else {
					sub = "command"
					depth += strings.Count(line, "{") - strings.Count(line, "}")
				}
				continue
			}
			switch {
			case strings.HasPrefix(line, "runtime"):
				sub = "runtime"
			case strings.HasPrefix(line, "input"):
				sub = "input"
			case strings.HasPrefix(line, "output"):
				sub = "output"
			default:
				switch sub {
				case "runtime":
					if k, v, found := strings.Cut(line, ":"); found {
						task.runtime[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"'`)
					}
				case "input":
					if m := wdlDeclRe.FindStringSubmatch(line); m != nil {
						task.inputs = append(task.inputs, wdlDecl{typ: m[1], name: m[2]})
					}
				case "output":
					if m := wdlDeclRe.FindStringSubmatch(line); m != nil {
						task.outputs = append(task.outputs, wdlDecl{typ: m[1], name: m[2]})
					}
				case "command":
					task.command = strings.TrimSpace(task.command + " " + line)
				}
			}
			depth += strings.Count(line, "{") - strings.Count(line, "}")
			if depth <= 0 {
				sec = secNone
				sub = ""
			}
		case secWorkflow:
			if wdlScatterRe.MatchString(line) {
				scatterDepth = depth
			}
			if m := wdlCallRe.FindStringSubmatch(line); m != nil {
				call := &wdlCall{task: m[1], alias: m[2], scatter: scatterDepth >= 0}
				if call.alias == "" {
					call.alias = m[1]
				}
				if m[3] != "" {
					call.after = append(call.after, m[3])
				}
				p.calls = append(p.calls, call)
			} else if strings.HasPrefix(line, "input") {
				sub = "input"
			} else if sub == "input" {
				if m := wdlDeclRe.FindStringSubmatch(line); m != nil {
					p.wfInputs = append(p.wfInputs, wdlDecl{typ: m[1], name: m[2]})
				}
			}
			// Call input wiring references other calls as Alias.output.
			if len(p.calls) > 0 && strings.Contains(line, "=") {
				last := p.calls[len(p.calls)-1]
				for _, ref := range wdlRefRe.FindAllStringSubmatch(line, -1) {
					last.sources = append(last.sources, ref[1])
				}
			}
			depth += strings.Count(line, "{") - strings.Count(line, "}")
			if scatterDepth >= 0 && depth <= scatterDepth {
				scatterDepth = -1
			}
			if depth <= 0 {
				sec = secNone
				sub = ""
			}
		}
	}
	if p.name == "" {
		p.name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

func (WDLImporter) BuildSkeleton(parsed any, path string) (*ir.Workflow, error) {
	p, ok := parsed.(*wdlParse)
	if !ok {
		return nil, fmt.Errorf("unexpected parse tree type %T", parsed)
	}
	w := ir.NewWorkflow(p.name)
	if p.version != "" {
		w.Meta().SourceVersion = p.version
	}
	env := ir.EnvSharedFilesystem

	taskDefs := map[string]*wdlTask{}
	for _, t := range p.tasks {
		taskDefs[t.name] = t
	}
	for _, d := range p.wfInputs {
		w.Inputs = append(w.Inputs, ir.Parameter{ID: d.name, Type: wdlType(d.typ)})
	}

	calls := p.calls
	if len(calls) == 0 {
		// A WDL file with tasks but no workflow block imports each task once.
		for _, t := range p.tasks {
			calls = append(calls, &wdlCall{task: t.name, alias: t.name})
		}
	}

	aliases := map[string]bool{}
	for _, call := range calls {
		def := taskDefs[call.task]
		task := ir.NewTask(call.alias)
		aliases[call.alias] = true
		if def != nil {
			if def.command != "" {
				task.Command.Set(def.command, env)
			}
			for _, d := range def.inputs {
				task.Inputs = append(task.Inputs, ir.Parameter{ID: d.name, Type: wdlType(d.typ)})
			}
			for _, d := range def.outputs {
				task.Outputs = append(task.Outputs, ir.Parameter{ID: d.name, Type: wdlType(d.typ)})
			}
			applyWDLRuntime(task, def.runtime, env)
		}
		if call.scatter {
			task.Scatter.Set(map[string]any{"scatter": []any{"item"}}, env)
		}
		w.AddTask(task)
	}
	for _, call := range calls {
		for _, dep := range call.after {
			if aliases[dep] {
				w.AddEdge(dep, call.alias)
			}
		}
		for _, src := range call.sources {
			if aliases[src] && src != call.alias {
				w.AddEdge(src, call.alias)
			}
		}
	}
	return w, nil
}

func applyWDLRuntime(task *ir.Task, runtime map[string]string, env string) {
	for key, val := range runtime {
		switch key {
		case "cpu":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				task.CPU.Set(n, env)
			}
		case "memory":
			if mb, err := resource.ParseMemoryMB(val); err == nil {
				task.MemMB.Set(mb, env)
			}
		case "disks":
			// "local-disk 40 SSD" → 40 GB
			fields := strings.Fields(val)
			for _, f := range fields {
				if n, err := strconv.ParseInt(f, 10, 64); err == nil {
					task.DiskMB.Set(n*1024, env)
					break
				}
			}
		case "gpu", "gpuCount":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				task.GPU.Set(n, env)
			} else if val == "true" {
				task.GPU.Set(int64(1), env)
			}
		case "docker", "container":
			task.Container.Set(val, env)
		case "maxRetries", "preemptible":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil && key == "maxRetries" {
				task.RetryCount.Set(n, env)
			}
		case "time_minutes":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				task.TimeS.Set(n*60, env)
			}
		default:
			task.Meta().FormatSpecific = setFormatSpecific(task.Meta().FormatSpecific, "runtime."+key, val)
		}
	}
}

func wdlType(t string) ir.TypeSpec {
	optional := strings.HasSuffix(t, "?")
	t = strings.TrimSuffix(t, "?")
	var spec ir.TypeSpec
	if strings.HasPrefix(t, "Array[") {
		inner := strings.TrimSuffix(strings.TrimPrefix(t, "Array["), "]")
		spec = ir.ArrayType(wdlScalarType(inner))
	} else {
		spec = wdlScalarType(t)
	}
	if optional {
		null := ir.PrimitiveType("null")
		return ir.UnionType(&spec, &null)
	}
	return spec
}

func wdlScalarType(t string) ir.TypeSpec {
	switch t {
	case "String":
		return ir.PrimitiveType("string")
	case "Int":
		return ir.PrimitiveType("int")
	case "Float":
		return ir.PrimitiveType("float")
	case "Boolean":
		return ir.PrimitiveType("boolean")
	case "File":
		return ir.PrimitiveType("File")
	case "Directory":
		return ir.PrimitiveType("Directory")
	}
	return ir.PrimitiveType("Any")
}
