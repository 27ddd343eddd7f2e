package exporters

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
)

// NextflowExporter emits a DSL2 main script plus a nextflow.config with
// per-process resource blocks. Channels are derived from the edges.
type NextflowExporter struct{}

func init() { Register(NextflowExporter{}) }

func (NextflowExporter) Format() string           { return ir.FormatNextflow }
func (NextflowExporter) DefaultExtension() string { return ".nf" }

func (NextflowExporter) GenerateOutput(w *ir.Workflow, outputPath string, tracker *loss.Tracker, opts Options) error {
	env := ir.EnvSharedFilesystem
	order, err := ir.TopoSort(w)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("#!/usr/bin/env nextflow\n")
	b.WriteString("nextflow.enable.dsl = 2\n\n")
	fmt.Fprintf(&b, "// Generated by wf2wf from workflow '%s'\n\n", w.Name)

	for _, id := range order {
		writeNextflowProcess(&b, w.Tasks[id], env)
	}

	b.WriteString("workflow {\n")
	for _, id := range order {
		name := sanitizeName(id)
		parents := w.Parents(id)
		if len(parents) == 0 {
			fmt.Fprintf(&b, "    %s()\n", name)
			continue
		}
		var args []string
		for _, parent := range parents {
			args = append(args, sanitizeName(parent)+".out")
		}
		fmt.Fprintf(&b, "    %s(%s)\n", name, strings.Join(args, ", "))
	}
	b.WriteString("}\n")

	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write nextflow script: %w", err)
	}
	return writeNextflowConfig(w, filepath.Join(filepath.Dir(outputPath), "nextflow.config"), env)
}

func writeNextflowProcess(b *strings.Builder, task *ir.Task, env string) {
	fmt.Fprintf(b, "process %s {\n", sanitizeName(task.ID))
	if container := task.Container.GetString(env); container != "" {
		fmt.Fprintf(b, "    container '%s'\n", container)
	} else if conda := task.Conda.GetString(env); conda != "" {
		fmt.Fprintf(b, "    conda '%s'\n", conda)
	}
	if cpu, ok := task.CPU.GetInt(env); ok && cpu > 0 {
		fmt.Fprintf(b, "    cpus %d\n", cpu)
	}
	if mem, ok := task.MemMB.GetInt(env); ok && mem > 0 {
		fmt.Fprintf(b, "    memory '%d MB'\n", mem)
	}
	if disk, ok := task.DiskMB.GetInt(env); ok && disk > 0 {
		fmt.Fprintf(b, "    disk '%d MB'\n", disk)
	}
	if t, ok := task.TimeS.GetInt(env); ok && t > 0 {
		fmt.Fprintf(b, "    time '%ds'\n", t)
	}
	if when := task.When.GetString(env); when != "" {
		fmt.Fprintf(b, "\n    when:\n    %s\n", when)
	}
	if len(task.Inputs) > 0 {
		b.WriteString("\n    input:\n")
		for _, p := range task.Inputs {
			fmt.Fprintf(b, "    path '%s'\n", p.ID)
		}
	}
	if len(task.Outputs) > 0 {
		b.WriteString("\n    output:\n")
		for _, p := range task.Outputs {
			fmt.Fprintf(b, "    path '%s'\n", p.ID)
		}
	}
	command := task.Command.GetString(env)
	if command == "" {
		if script := task.Script.GetString(env); script != "" {
			command = script
		} else {
			command = "true"
		}
	}
	b.WriteString("\n    script:\n    \"\"\"\n")
	fmt.Fprintf(b, "    %s\n", command)
	b.WriteString("    \"\"\"\n}\n\n")
}

func writeNextflowConfig(w *ir.Workflow, path, env string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "// Resource configuration generated by wf2wf from workflow '%s'\n\n", w.Name)
	b.WriteString("process {\n")
	for _, id := range w.TaskIDs() {
		task := w.Tasks[id]
		var settings []string
		if cpu, ok := task.CPU.GetInt(env); ok && cpu > 0 {
			settings = append(settings, fmt.Sprintf("cpus = %d", cpu))
		}
		if mem, ok := task.MemMB.GetInt(env); ok && mem > 0 {
			settings = append(settings, fmt.Sprintf("memory = '%d MB'", mem))
		}
		if disk, ok := task.DiskMB.GetInt(env); ok && disk > 0 {
			settings = append(settings, fmt.Sprintf("disk = '%d MB'", disk))
		}
		if t, ok := task.TimeS.GetInt(env); ok && t > 0 {
			settings = append(settings, fmt.Sprintf("time = '%ds'", t))
		}
		if retries, ok := task.RetryCount.GetInt(env); ok && retries > 0 {
			settings = append(settings, fmt.Sprintf("maxRetries = %d", retries))
			settings = append(settings, "errorStrategy = 'retry'")
		}
		if gpu, ok := task.GPU.GetInt(env); ok && gpu > 0 {
			settings = append(settings, fmt.Sprintf("accelerator = %d", gpu))
		}
		if len(settings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "    withName: '%s' {\n", sanitizeName(id))
		for _, s := range settings {
			fmt.Fprintf(&b, "        %s\n", s)
		}
		b.WriteString("    }\n")
	}
	b.WriteString("}\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write nextflow.config: %w", err)
	}
	return nil
}
