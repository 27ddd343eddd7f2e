package importers

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
	"gopkg.in/yaml.v3"
)

// SnakemakeImporter parses Snakefiles: rules with input/output/shell/script
// directives, resource blocks, and conda/container references. Dependencies
// are derived by matching rule outputs to other rules' inputs.
type SnakemakeImporter struct{}

func init() { Register(SnakemakeImporter{}) }

func (SnakemakeImporter) Format() string       { return ir.FormatSnakemake }
func (SnakemakeImporter) Extensions() []string { return []string{"snakefile", ".smk"} }

type snakemakeRule struct {
	name      string
	inputs    []string
	outputs   []string
	shell     string
	script    string
	threads   int64
	resources map[string]string
	conda     string
	container string
	priority  int64
	retries   int64
	params    map[string]string
	doc       string
}

type snakemakeParse struct {
	rules      []*snakemakeRule
	configFile string
	config     map[string]any
}

var ruleHeader = regexp.MustCompile(`^(rule|checkpoint)\s+(\w+)\s*:`)
var directiveHeader = regexp.MustCompile(`^(\w+)\s*:\s*(.*)$`)
var quotedString = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)'`)

func (SnakemakeImporter) Parse(path string, opts Options) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snakefile: %w", err)
	}
	p := &snakemakeParse{}
	var rule *snakemakeRule
	directive := ""

	flushValue := func(value string) {
		if rule == nil || directive == "" || strings.TrimSpace(value) == "" {
			return
		}
		switch directive {
		case "input":
			rule.inputs = append(rule.inputs, extractStrings(value)...)
		case "output":
			rule.outputs = append(rule.outputs, extractStrings(value)...)
		case "shell":
			rule.shell = strings.TrimSpace(rule.shell + " " + joinStrings(value))
		case "script":
			if ss := extractStrings(value); len(ss) > 0 {
				rule.script = ss[0]
			}
		case "threads":
			rule.threads, _ = strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		case "priority":
			rule.priority, _ = strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		case "retries":
			rule.retries, _ = strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		case "resources":
			for _, kv := range splitTopLevel(value) {
				if k, v, found := strings.Cut(kv, "="); found {
					if rule.resources == nil {
						rule.resources = map[string]string{}
					}
					rule.resources[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"'`)
				}
			}
		case "conda":
			if ss := extractStrings(value); len(ss) > 0 {
				rule.conda = ss[0]
			}
		case "container", "singularity":
			if ss := extractStrings(value); len(ss) > 0 {
				rule.container = strings.TrimPrefix(ss[0], "docker://")
			}
		case "params":
			for _, kv := range splitTopLevel(value) {
				if k, v, found := strings.Cut(kv, "="); found {
					if rule.params == nil {
						rule.params = map[string]string{}
					}
					rule.params[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"'`)
				}
			}
		}
	}

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimRight(raw, " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")

		if !indented {
			if m := ruleHeader.FindStringSubmatch(trimmed); m != nil {
				rule = &snakemakeRule{name: m[2]}
				p.rules = append(p.rules, rule)
				directive = ""
				continue
			}
			if strings.HasPrefix(trimmed, "configfile:") {
				if ss := extractStrings(trimmed); len(ss) > 0 {
					p.configFile = ss[0]
				}
			}
			rule = nil
			directive = ""
			continue
		}
		if rule == nil {
			continue
		}
		if m := directiveHeader.FindStringSubmatch(trimmed); m != nil && isSnakemakeDirective(m[1]) {
			directive = m[1]
			flushValue(m[2])
			continue
		}
		flushValue(strings.TrimSuffix(trimmed, ","))
	}

	if p.configFile != "" {
		cfgPath := p.configFile
		if !filepath.IsAbs(cfgPath) {
			cfgPath = filepath.Join(filepath.Dir(path), cfgPath)
		}
		if data, err := os.ReadFile(cfgPath); err == nil {
			var cfg map[string]any
			if err := yaml.Unmarshal(data, &cfg); err == nil {
				p.config = cfg
			}
		}
	}
	return p, nil
}

var snakemakeDirectives = map[string]bool{
	"input": true, "output": true, "shell": true, "script": true, "run": true,
	"threads": true, "resources": true, "conda": true, "container": true,
	"singularity": true, "priority": true, "retries": true, "params": true,
	"log": true, "benchmark": true, "message": true, "wildcard_constraints": true,
}

func isSnakemakeDirective(word string) bool { return snakemakeDirectives[word] }

func (SnakemakeImporter) BuildSkeleton(parsed any, path string) (*ir.Workflow, error) {
	p, ok := parsed.(*snakemakeParse)
	if !ok {
		return nil, fmt.Errorf("unexpected parse tree type %T", parsed)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.EqualFold(name, "snakefile") {
		name = filepath.Base(filepath.Dir(mustAbs(path)))
	}
	w := ir.NewWorkflow(name)
	env := ir.EnvSharedFilesystem

	producers := map[string]string{} // output file → rule name
	for _, rule := range p.rules {
		if rule.name == "all" {
			for i, in := range rule.inputs {
				w.Outputs = append(w.Outputs, ir.Parameter{
					ID:   fmt.Sprintf("out_%d", i),
					Type: ir.PrimitiveType("File"),
					Doc:  in,
				})
			}
			continue
		}
		task := ir.NewTask(rule.name)
		for _, in := range rule.inputs {
			task.Inputs = append(task.Inputs, ir.Parameter{ID: in, Type: ir.PrimitiveType("File")})
		}
		for _, out := range rule.outputs {
			task.Outputs = append(task.Outputs, ir.Parameter{ID: out, Type: ir.PrimitiveType("File")})
			producers[out] = rule.name
		}
		if rule.shell != "" {
			task.Command.Set(rule.shell, env)
		}
		if rule.script != "" {
			task.Script.Set(rule.script, env)
		}
		if rule.threads > 0 {
			task.Threads.Set(rule.threads, env)
			task.CPU.Set(rule.threads, env)
		}
		for key, val := range rule.resources {
			switch key {
			case "mem_mb", "mem":
				if n, err := strconv.ParseInt(val, 10, 64); err == nil {
					task.MemMB.Set(n, env)
				}
			case "disk_mb", "disk":
				if n, err := strconv.ParseInt(val, 10, 64); err == nil {
					task.DiskMB.Set(n, env)
				}
			case "cpus", "cpu":
				if n, err := strconv.ParseInt(val, 10, 64); err == nil {
					task.CPU.Set(n, env)
				}
			case "gpu", "nvidia_gpu":
				if n, err := strconv.ParseInt(val, 10, 64); err == nil {
					task.GPU.Set(n, env)
				}
			case "runtime", "time_min":
				if n, err := strconv.ParseInt(val, 10, 64); err == nil {
					task.TimeS.Set(n*60, env)
				}
			default:
				task.Meta().FormatSpecific = setFormatSpecific(task.Meta().FormatSpecific, "resources."+key, val)
			}
		}
		if rule.conda != "" {
			task.Conda.Set(rule.conda, env)
		}
		if rule.container != "" {
			task.Container.Set(rule.container, env)
		}
		if rule.priority != 0 {
			task.Priority.Set(rule.priority, env)
		}
		if rule.retries > 0 {
			task.RetryCount.Set(rule.retries, env)
		}
		if len(rule.params) > 0 {
			params := map[string]any{}
			for k, v := range rule.params {
				params[k] = v
			}
			task.Meta().FormatSpecific = setFormatSpecific(task.Meta().FormatSpecific, "params", params)
		}
		w.AddTask(task)
	}

	// Edges: a rule consuming a file another rule produces depends on it.
	for _, rule := range p.rules {
		if rule.name == "all" {
			continue
		}
		for _, in := range rule.inputs {
			if producer, ok := producers[in]; ok && producer != rule.name {
				w.AddEdge(producer, rule.name)
			}
		}
	}

	if p.config != nil {
		w.Meta().FormatSpecific = setFormatSpecific(w.Meta().FormatSpecific, "config", p.config)
		if p.configFile != "" {
			w.Meta().FormatSpecific = setFormatSpecific(w.Meta().FormatSpecific, "configfile", p.configFile)
		}
	}
	return w, nil
}

// extractStrings pulls quoted string literals out of a directive value; a
// bare unquoted value is returned as-is.
func extractStrings(value string) []string {
	var out []string
	for _, m := range quotedString.FindAllStringSubmatch(value, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else if m[2] != "" {
			out = append(out, m[2])
		}
	}
	if out == nil {
		v := strings.TrimSpace(strings.TrimSuffix(value, ","))
		if v != "" && !strings.ContainsAny(v, "={}") {
			out = append(out, v)
		}
	}
	return out
}

// joinStrings concatenates the quoted parts of a shell directive.
func joinStrings(value string) string {
	parts := extractStrings(value)
	return strings.Join(parts, " ")
}

// splitTopLevel splits "a=1, b=2" on commas outside quotes.
func splitTopLevel(value string) []string {
	var out []string
	depth := 0
	inQuote := byte(0)
	start := 0
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '"' || c == '\'':
			inQuote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			out = append(out, value[start:i])
			start = i + 1
		}
	}
	if start < len(value) {
		out = append(out, value[start:])
	}
	return out
}

func setFormatSpecific(m map[string]any, k string, v any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	m[k] = v
	return m
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
