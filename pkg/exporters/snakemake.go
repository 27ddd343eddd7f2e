package exporters

import (
	"fmt"
	"os"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
)

// SnakemakeExporter emits a Snakefile: one rule per task with resources,
// conda/container directives, and an "all" rule collecting final outputs.
type SnakemakeExporter struct{}

func init() { Register(SnakemakeExporter{}) }

func (SnakemakeExporter) Format() string           { return ir.FormatSnakemake }
func (SnakemakeExporter) DefaultExtension() string { return "" } // Snakefile

func (SnakemakeExporter) GenerateOutput(w *ir.Workflow, outputPath string, tracker *loss.Tracker, opts Options) error {
	env := ir.EnvSharedFilesystem
	order, err := ir.TopoSort(w)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Snakefile generated by wf2wf from workflow '%s'\n", w.Name)
	fmt.Fprintf(&b, "# Tasks: %d, Dependencies: %d\n\n", len(w.Tasks), len(w.Edges))

	if w.Metadata != nil {
		if cfg, ok := w.Metadata.FormatSpecific["configfile"].(string); ok && cfg != "" {
			fmt.Fprintf(&b, "configfile: %q\n\n", cfg)
		}
	}

	finalOutputs := finalOutputFiles(w)
	if len(finalOutputs) > 0 {
		b.WriteString("rule all:\n    input:\n")
		for _, out := range finalOutputs {
			fmt.Fprintf(&b, "        %q,\n", out)
		}
		b.WriteString("\n")
	}

	for _, id := range order {
		writeSnakemakeRule(&b, w.Tasks[id], env)
	}

	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write snakefile: %w", err)
	}
	return nil
}

func writeSnakemakeRule(b *strings.Builder, task *ir.Task, env string) {
	fmt.Fprintf(b, "rule %s:\n", sanitizeName(task.ID))
	if len(task.Inputs) > 0 {
		b.WriteString("    input:\n")
		for _, p := range task.Inputs {
			fmt.Fprintf(b, "        %q,\n", p.ID)
		}
	}
	if len(task.Outputs) > 0 {
		b.WriteString("    output:\n")
		for _, p := range task.Outputs {
			fmt.Fprintf(b, "        %q,\n", p.ID)
		}
	}
	if threads, ok := task.Threads.GetInt(env); ok && threads > 1 {
		fmt.Fprintf(b, "    threads: %d\n", threads)
	}

	var resources []string
	if cpu, ok := task.CPU.GetInt(env); ok && cpu > 0 {
		resources = append(resources, fmt.Sprintf("cpus=%d", cpu))
	}
	if mem, ok := task.MemMB.GetInt(env); ok && mem > 0 {
		resources = append(resources, fmt.Sprintf("mem_mb=%d", mem))
	}
	if disk, ok := task.DiskMB.GetInt(env); ok && disk > 0 {
		resources = append(resources, fmt.Sprintf("disk_mb=%d", disk))
	}
	if runtime, ok := task.TimeS.GetInt(env); ok && runtime > 0 {
		resources = append(resources, fmt.Sprintf("runtime=%d", runtime/60))
	}
	if len(resources) > 0 {
		b.WriteString("    resources:\n")
		for _, r := range resources {
			fmt.Fprintf(b, "        %s,\n", r)
		}
	}

	if conda := task.Conda.GetString(env); conda != "" {
		fmt.Fprintf(b, "    conda:\n        %q\n", conda)
	} else if container := task.Container.GetString(env); container != "" {
		fmt.Fprintf(b, "    container:\n        %q\n", "docker://"+container)
	}
	if prio, ok := task.Priority.GetInt(env); ok && prio != 0 {
		fmt.Fprintf(b, "    priority: %d\n", prio)
	}
	if retries, ok := task.RetryCount.GetInt(env); ok && retries > 0 {
		fmt.Fprintf(b, "    retries: %d\n", retries)
	}

	if script := task.Script.GetString(env); script != "" {
		fmt.Fprintf(b, "    script:\n        %q\n", script)
	} else if command := task.Command.GetString(env); command != "" {
		fmt.Fprintf(b, "    shell:\n        %q\n", command)
	} else {
		fmt.Fprintf(b, "    shell:\n        \"true  # no command recorded\"\n")
	}
	b.WriteString("\n")
}

// finalOutputFiles collects outputs of sink tasks (tasks with no children).
func finalOutputFiles(w *ir.Workflow) []string {
	var out []string
	for _, id := range w.TaskIDs() {
		if len(w.Children(id)) > 0 {
			continue
		}
		for _, p := range w.Tasks[id].Outputs {
			out = append(out, p.ID)
		}
	}
	return out
}
