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

// NextflowImporter parses Nextflow DSL2 scripts: process blocks with
// directives, input/output/script sections, and a workflow block whose
// invocations and channel wiring form the DAG. An adjacent nextflow.config
// contributes process resource defaults.
type NextflowImporter struct{}

func init() { Register(NextflowImporter{}) }

func (NextflowImporter) Format() string       { return ir.FormatNextflow }
func (NextflowImporter) Extensions() []string { return []string{".nf"} }

type nextflowProcess struct {
	name       string
	directives map[string]string
	inputs     []string
	outputs    []string
	script     string
}

type nextflowParse struct {
	processes []*nextflowProcess
	// workflow body lines, used to wire processes by call order and piping
	workflowLines []string
	config        map[string]string
}

var nfProcessRe = regexp.MustCompile(`^\s*process\s+(\w+)\s*\{`)
var nfWorkflowRe = regexp.MustCompile(`^\s*workflow(?:\s+\w+)?\s*\{`)
var nfDirectiveRe = regexp.MustCompile(`^(cpus|memory|disk|time|container|conda|maxRetries|errorStrategy|queue|label|accelerator|machineType)\s+(.+)$`)

func (NextflowImporter) Parse(path string, opts Options) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nextflow script: %w", err)
	}
	p := &nextflowParse{}

	type section int
	const (
		secNone section = iota
		secProcess
		secWorkflow
	)
	sec := secNone
	sub := ""
	depth := 0
	var proc *nextflowProcess

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		switch sec {
		case secNone:
			if m := nfProcessRe.FindStringSubmatch(line); m != nil {
				proc = &nextflowProcess{name: m[1], directives: map[string]string{}}
				p.processes = append(p.processes, proc)
				sec = secProcess
				depth = 1
				sub = ""
				continue
			}
			if nfWorkflowRe.MatchString(line) {
				sec = secWorkflow
				depth = 1
				continue
			}
		case secProcess:
			switch line {
			case "input:":
				sub = "input"
			case "output:":
				sub = "output"
			case "script:", "shell:", "exec:":
				sub = "script"
			case "when:":
				sub = "when"
			default:
				switch sub {
				case "input":
					p.addChannelDecl(&proc.inputs, line)
				case "output":
					p.addChannelDecl(&proc.outputs, line)
				case "script":
					if line == "}" || line == "{" {
						break
					}
					s := strings.Trim(line, "\"'")
					if s != "" {
						proc.script = strings.TrimSpace(proc.script + " " + s)
					}
				case "when":
					proc.directives["when"] = line
				default:
					if m := nfDirectiveRe.FindStringSubmatch(line); m != nil {
						proc.directives[m[1]] = strings.Trim(strings.TrimSpace(m[2]), "\"'")
					}
				}
			}
			depth += strings.Count(line, "{") - strings.Count(line, "}")
			if depth <= 0 {
				sec = secNone
				sub = ""
			}
		case secWorkflow:
			p.workflowLines = append(p.workflowLines, line)
			depth += strings.Count(line, "{") - strings.Count(line, "}")
			if depth <= 0 {
				sec = secNone
			}
		}
	}

	// Pick up process defaults from an adjacent nextflow.config.
	cfgPath := filepath.Join(filepath.Dir(path), "nextflow.config")
	if cfgData, err := os.ReadFile(cfgPath); err == nil {
		p.config = parseNextflowConfig(string(cfgData))
	}
	return p, nil
}

func (nextflowParse) addChannelDecl(dst *[]string, line string) {
	// "path 'x.txt'", "val sample", "tuple val(id), path(reads)"
	for _, m := range regexp.MustCompile(`(?:path|file|val)\s*\(?['"]?([\w.*]+)['"]?\)?`).FindAllStringSubmatch(line, -1) {
		*dst = append(*dst, m[1])
	}
}

// parseNextflowConfig extracts "process.<key> = value" settings.
func parseNextflowConfig(content string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "process.") {
			continue
		}
		if k, v, found := strings.Cut(strings.TrimPrefix(line, "process."), "="); found {
			out[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), "\"'")
		}
	}
	return out
}

func (NextflowImporter) BuildSkeleton(parsed any, path string) (*ir.Workflow, error) {
	p, ok := parsed.(*nextflowParse)
	if !ok {
		return nil, fmt.Errorf("unexpected parse tree type %T", parsed)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	w := ir.NewWorkflow(name)
	env := ir.EnvSharedFilesystem

	for _, proc := range p.processes {
		task := ir.NewTask(proc.name)
		if proc.script != "" {
			task.Command.Set(proc.script, env)
		}
		for _, in := range proc.inputs {
			task.Inputs = append(task.Inputs, ir.Parameter{ID: in, Type: ir.PrimitiveType("File")})
		}
		for _, out := range proc.outputs {
			task.Outputs = append(task.Outputs, ir.Parameter{ID: out, Type: ir.PrimitiveType("File")})
		}
		directives := map[string]string{}
		for k, v := range p.config {
			directives[k] = v
		}
		for k, v := range proc.directives {
			directives[k] = v
		}
		applyNextflowDirectives(task, directives, env)
		w.AddTask(task)
	}

	wireNextflowWorkflow(w, p.workflowLines)
	return w, nil
}

func applyNextflowDirectives(task *ir.Task, directives map[string]string, env string) {
	for key, val := range directives {
		switch key {
		case "cpus":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				task.CPU.Set(n, env)
			}
		case "memory":
			if mb, err := resource.ParseMemoryMB(strings.ReplaceAll(val, " ", "")); err == nil {
				task.MemMB.Set(mb, env)
			}
		case "disk":
			if mb, err := resource.ParseMemoryMB(strings.ReplaceAll(val, " ", "")); err == nil {
				task.DiskMB.Set(mb, env)
			}
		case "time":
			if s, err := resource.ParseTimeS(strings.ReplaceAll(val, " ", "")); err == nil {
				task.TimeS.Set(s, env)
			}
		case "container":
			task.Container.Set(val, env)
		case "conda":
			task.Conda.Set(val, env)
		case "maxRetries":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				task.RetryCount.Set(n, env)
			}
		case "accelerator":
			if n, err := strconv.ParseInt(strings.Fields(val)[0], 10, 64); err == nil {
				task.GPU.Set(n, env)
			}
		case "when":
			task.When.Set(val, env)
		default:
			task.Meta().FormatSpecific = setFormatSpecific(task.Meta().FormatSpecific, "directive."+key, val)
		}
	}
}

// wireNextflowWorkflow derives edges from the workflow block: a process call
// whose arguments mention another process's ".out" depends on it, and piped
// chains (a | b | c) connect left to right.
func wireNextflowWorkflow(w *ir.Workflow, lines []string) {
	callRe := regexp.MustCompile(`(\w+)\s*\(`)
	outRe := regexp.MustCompile(`(\w+)\.out`)
	for _, line := range lines {
		if strings.Contains(line, "|") {
			var chain []string
			for _, part := range strings.Split(line, "|") {
				name := strings.TrimSpace(part)
				name = strings.TrimSuffix(name, "()")
				if _, ok := w.Tasks[name]; ok {
					chain = append(chain, name)
				}
			}
			for i := 1; i < len(chain); i++ {
				w.AddEdge(chain[i-1], chain[i])
			}
			continue
		}
		calls := callRe.FindAllStringSubmatch(line, -1)
		if len(calls) == 0 {
			continue
		}
		callee := calls[0][1]
		if _, ok := w.Tasks[callee]; !ok {
			continue
		}
		for _, src := range outRe.FindAllStringSubmatch(line, -1) {
			if _, ok := w.Tasks[src[1]]; ok && src[1] != callee {
				w.AddEdge(src[1], callee)
			}
		}
	}
}
