package exporters

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/csmcal/wf2wf/pkg/expr"
	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
	"github.com/csmcal/wf2wf/pkg/resource"
)

// DAGManExporter emits an HTCondor DAGMan .dag file plus one submit file per
// task (or inline SUBMIT-DESCRIPTION blocks with the inline_submit option).
type DAGManExporter struct{}

func init() { Register(DAGManExporter{}) }

func (DAGManExporter) Format() string           { return ir.FormatDAGMan }
func (DAGManExporter) DefaultExtension() string { return ".dag" }

func (DAGManExporter) GenerateOutput(w *ir.Workflow, outputPath string, tracker *loss.Tracker, opts Options) error {
	env := ir.EnvDistributedComputing
	inline := false
	if opts.Extra != nil {
		inline, _ = opts.Extra["inline_submit"].(bool)
	}
	order, err := ir.TopoSort(w)
	if err != nil {
		return err
	}
	dir := filepath.Dir(outputPath)

	var dag strings.Builder
	fmt.Fprintf(&dag, "# DAGMan file generated by wf2wf from workflow '%s'\n", w.Name)
	fmt.Fprintf(&dag, "# Tasks: %d, Dependencies: %d\n\n", len(w.Tasks), len(w.Edges))

	for _, id := range order {
		task := w.Tasks[id]
		name := sanitizeName(id)
		recordWhenOutcome(task, env, tracker)
		submit := submitDescription(task, env)
		if inline {
			fmt.Fprintf(&dag, "SUBMIT-DESCRIPTION %s {\n%s}\n", name, indent(submit, "    "))
			fmt.Fprintf(&dag, "JOB %s %s\n", name, name)
		} else {
			subFile := name + ".sub"
			if err := os.WriteFile(filepath.Join(dir, subFile), []byte(submit), 0o644); err != nil {
				return fmt.Errorf("write submit file %s: %w", subFile, err)
			}
			fmt.Fprintf(&dag, "JOB %s %s\n", name, subFile)
		}
		if retries, ok := task.RetryCount.GetInt(env); ok && retries > 0 {
			fmt.Fprintf(&dag, "RETRY %s %d\n", name, retries)
		}
		if prio, ok := task.Priority.GetInt(env); ok && prio != 0 {
			fmt.Fprintf(&dag, "PRIORITY %s %d\n", name, prio)
		}
	}

	dag.WriteString("\n")
	for _, id := range order {
		children := w.Children(id)
		if len(children) == 0 {
			continue
		}
		fmt.Fprintf(&dag, "PARENT %s CHILD %s\n", sanitizeName(id), strings.Join(mapNames(children), " "))
	}

	if err := os.WriteFile(outputPath, []byte(dag.String()), 0o644); err != nil {
		return fmt.Errorf("write dag file: %w", err)
	}
	return nil
}

// recordWhenOutcome constant-folds a task's when condition. DAGMan has no
// conditional construct: a condition that folds to true is representable by
// simply running the job (noted at info severity); anything else stays a
// loss (recorded by the shared loss tables). Evaluation runs in the
// expression sandbox; a timeout downgrades to a warn-severity entry.
func recordWhenOutcome(task *ir.Task, env string, tracker *loss.Tracker) {
	when := task.When.GetString(env)
	if when == "" || tracker == nil {
		return
	}
	v, err := expr.EvalBool(when, nil)
	if err != nil {
		var te *expr.TimeoutError
		if errors.As(err, &te) {
			tracker.Record(fmt.Sprintf("/tasks/%s/when", task.ID), "when_evaluation", when,
				"when condition exceeded the evaluation budget",
				loss.Opts{Origin: ir.LossOriginWf2wf, Severity: ir.SeverityWarn, Category: loss.CategoryAdvancedFeatures})
		}
		return
	}
	if v {
		tracker.Record(fmt.Sprintf("/tasks/%s/when", task.ID), "when_constant", when,
			"when condition is constantly true; job always runs under DAGMan",
			loss.Opts{Origin: ir.LossOriginWf2wf, Severity: ir.SeverityInfo, Category: loss.CategoryAdvancedFeatures})
	}
}

// submitDescription renders one HTCondor submit file for a task.
func submitDescription(task *ir.Task, env string) string {
	var b strings.Builder
	b.WriteString("universe=vanilla\n")

	command := task.Command.GetString(env)
	if command == "" {
		command = task.Command.GetString(ir.EnvSharedFilesystem)
	}
	if script := task.Script.GetString(env); command == "" && script != "" {
		command = script
	}
	if command != "" {
		parts := strings.Fields(command)
		fmt.Fprintf(&b, "executable=%s\n", parts[0])
		if len(parts) > 1 {
			fmt.Fprintf(&b, "arguments=%s\n", strings.Join(parts[1:], " "))
		}
	}
	if cpu, ok := task.CPU.GetInt(env); ok && cpu > 0 {
		fmt.Fprintf(&b, "request_cpus=%d\n", cpu)
	}
	if mem, ok := task.MemMB.GetInt(env); ok && mem > 0 {
		fmt.Fprintf(&b, "request_memory=%s\n", resource.FormatMemoryMB(mem))
	}
	if disk, ok := task.DiskMB.GetInt(env); ok && disk > 0 {
		fmt.Fprintf(&b, "request_disk=%dMB\n", disk)
	}
	if gpu, ok := task.GPU.GetInt(env); ok && gpu > 0 {
		fmt.Fprintf(&b, "request_gpus=%d\n", gpu)
		if gpuMem, ok := task.GPUMemMB.GetInt(env); ok && gpuMem > 0 {
			fmt.Fprintf(&b, "require_gpus=GlobalMemoryMb >= %d\n", gpuMem)
		}
	}
	if container := firstContainer(task, env); container != "" {
		fmt.Fprintf(&b, "container_image=%s\n", container)
	}
	if staging, ok := task.StagingRequired.GetBool(env); ok && staging {
		b.WriteString("should_transfer_files=YES\n")
		b.WriteString("when_to_transfer_output=ON_EXIT\n")
		var inputs []string
		for _, p := range task.Inputs {
			if p.Type.Type == "File" || p.Type.Type == "Directory" {
				inputs = append(inputs, p.ID)
			}
		}
		if len(inputs) > 0 {
			fmt.Fprintf(&b, "transfer_input_files=%s\n", strings.Join(inputs, ","))
		}
	}
	if workdir := task.Workdir.GetString(env); workdir != "" {
		fmt.Fprintf(&b, "initialdir=%s\n", workdir)
	}
	if ev := task.EnvVars.Get(env); ev != nil {
		if m, ok := ev.(map[string]any); ok && len(m) > 0 {
			var pairs []string
			for _, k := range sortedKeys(m) {
				pairs = append(pairs, fmt.Sprintf("%s=%v", k, m[k]))
			}
			fmt.Fprintf(&b, "environment=\"%s\"\n", strings.Join(pairs, " "))
		}
	}
	if runtime, ok := task.MaxRuntime.GetInt(env); ok && runtime > 0 {
		fmt.Fprintf(&b, "allowed_execute_duration=%d\n", runtime)
	}
	name := sanitizeName(task.ID)
	fmt.Fprintf(&b, "log=%s.log\n", name)
	fmt.Fprintf(&b, "output=%s.out\n", name)
	fmt.Fprintf(&b, "error=%s.err\n", name)
	b.WriteString("queue\n")
	return b.String()
}

func firstContainer(task *ir.Task, env string) string {
	if c := task.Container.GetString(env); c != "" {
		return c
	}
	return task.Container.GetString(ir.EnvSharedFilesystem)
}

func mapNames(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = sanitizeName(id)
	}
	return out
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
