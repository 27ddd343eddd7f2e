package importers

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/resource"
)

// DAGManImporter parses HTCondor DAGMan files and their submit files.
type DAGManImporter struct{}

func init() { Register(DAGManImporter{}) }

func (DAGManImporter) Format() string       { return ir.FormatDAGMan }
func (DAGManImporter) Extensions() []string { return []string{".dag"} }

type dagmanParse struct {
	jobs       map[string]*dagmanJob
	jobOrder   []string
	edges      []ir.Edge
	inlineSubs map[string]map[string]string
}

type dagmanJob struct {
	name       string
	submitFile string
	submit     map[string]string // submit-file key → value, keys lowercased
	retry      int64
	priority   int64
	vars       map[string]string
}

func (DAGManImporter) Parse(path string, opts Options) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dag file: %w", err)
	}
	defer f.Close()

	p := &dagmanParse{jobs: map[string]*dagmanJob{}, inlineSubs: map[string]map[string]string{}}
	dir := filepath.Dir(path)
	scanner := bufio.NewScanner(f)
	var inlineName string
	var inlineBody []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if inlineName != "" {
			if line == "}" {
				p.inlineSubs[inlineName] = parseSubmitLines(inlineBody)
				inlineName = ""
				inlineBody = nil
				continue
			}
			inlineBody = append(inlineBody, line)
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch strings.ToUpper(fields[0]) {
		case "SUBMIT-DESCRIPTION":
			if len(fields) >= 2 {
				inlineName = fields[1]
			}
		case "JOB":
			if len(fields) < 3 {
				return nil, fmt.Errorf("malformed JOB line: %q", line)
			}
			job := &dagmanJob{name: fields[1], submitFile: fields[2], vars: map[string]string{}}
			p.jobs[job.name] = job
			p.jobOrder = append(p.jobOrder, job.name)
		case "PARENT":
			// PARENT a b CHILD c d
			childIdx := -1
			for i, fld := range fields {
				if strings.EqualFold(fld, "CHILD") {
					childIdx = i
					break
				}
			}
			if childIdx < 2 || childIdx == len(fields)-1 {
				return nil, fmt.Errorf("malformed PARENT line: %q", line)
			}
			for _, parent := range fields[1:childIdx] {
				for _, child := range fields[childIdx+1:] {
					p.edges = append(p.edges, ir.Edge{Parent: parent, Child: child})
				}
			}
		case "RETRY":
			if len(fields) >= 3 {
				if job, ok := p.jobs[fields[1]]; ok {
					job.retry, _ = strconv.ParseInt(fields[2], 10, 64)
				}
			}
		case "PRIORITY":
			if len(fields) >= 3 {
				if job, ok := p.jobs[fields[1]]; ok {
					job.priority, _ = strconv.ParseInt(fields[2], 10, 64)
				}
			}
		case "VARS":
			if len(fields) >= 3 {
				if job, ok := p.jobs[fields[1]]; ok {
					for _, kv := range fields[2:] {
						if k, v, found := strings.Cut(kv, "="); found {
							job.vars[k] = strings.Trim(v, `"`)
						}
					}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan dag file: %w", err)
	}

	// Resolve submit descriptions: inline first, then on-disk files.
	for _, job := range p.jobs {
		if sub, ok := p.inlineSubs[job.submitFile]; ok {
			job.submit = sub
			continue
		}
		subPath := job.submitFile
		if !filepath.IsAbs(subPath) {
			subPath = filepath.Join(dir, subPath)
		}
		data, err := os.ReadFile(subPath)
		if err != nil {
			// A missing submit file degrades to an empty job rather than
			// failing the whole DAG; no note or warning is recorded for it.
			job.submit = map[string]string{}
			continue
		}
		job.submit = parseSubmitLines(strings.Split(string(data), "\n"))
	}
	return p, nil
}

func parseSubmitLines(lines []string) map[string]string {
	out := map[string]string{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.EqualFold(line, "queue") {
			continue
		}
		k, v, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

func (DAGManImporter) BuildSkeleton(parsed any, path string) (*ir.Workflow, error) {
	p, ok := parsed.(*dagmanParse)
	if !ok {
		return nil, fmt.Errorf("unexpected parse tree type %T", parsed)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	w := ir.NewWorkflow(name)
	env := ir.EnvDistributedComputing

	for _, jobName := range p.jobOrder {
		job := p.jobs[jobName]
		task := ir.NewTask(jobName)

		if exe := job.submit["executable"]; exe != "" {
			command := exe
			if args := job.submit["arguments"]; args != "" {
				command += " " + args
			}
			task.Command.Set(command, env)
		}
		if v := job.submit["request_cpus"]; v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				task.CPU.Set(n, env)
			}
		}
		if v := job.submit["request_memory"]; v != "" {
			if mb, err := resource.ParseMemoryMB(v); err == nil {
				task.MemMB.Set(mb, env)
			} else {
				task.Meta().AddWarning(fmt.Sprintf("job %s: unparseable request_memory %q", jobName, v))
			}
		}
		if v := job.submit["request_disk"]; v != "" {
			if mb, err := resource.ParseMemoryMB(v); err == nil {
				task.DiskMB.Set(mb, env)
			}
		}
		if v := job.submit["request_gpus"]; v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				task.GPU.Set(n, env)
			}
		}
		if v := job.submit["container_image"]; v != "" {
			task.Container.Set(v, env)
		}
		if v := job.submit["initialdir"]; v != "" {
			task.Workdir.Set(v, env)
		}
		if v := job.submit["allowed_execute_duration"]; v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				task.MaxRuntime.Set(n, env)
			}
		}
		if v := strings.ToUpper(job.submit["should_transfer_files"]); v == "YES" || v == "IF_NEEDED" {
			task.StagingRequired.Set(true, env)
			task.FileTransferMode.Set("staging", env)
		}
		if job.retry > 0 {
			task.RetryCount.Set(job.retry, env)
		}
		if job.priority != 0 {
			task.Priority.Set(job.priority, env)
		}
		if len(job.vars) > 0 {
			vars := map[string]any{}
			for k, v := range job.vars {
				vars[k] = v
			}
			task.Meta().FormatSpecific = map[string]any{"dagman_vars": vars}
		}
		w.AddTask(task)
	}
	for _, e := range p.edges {
		w.AddEdge(e.Parent, e.Child)
	}
	w.ExecutionModel.SetWithMethod(ir.ModelDistributed, env, ir.SourceInferred, 0.9)
	return w, nil
}
