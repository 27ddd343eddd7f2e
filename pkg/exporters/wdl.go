package exporters

import (
	"fmt"
	"os"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
)

// WDLExporter emits a WDL 1.0 document: one task per IR task with a runtime
// block, and a workflow block whose call ordering follows the DAG. Scatter
// specs map onto WDL scatter blocks.
type WDLExporter struct{}

func init() { Register(WDLExporter{}) }

func (WDLExporter) Format() string           { return ir.FormatWDL }
func (WDLExporter) DefaultExtension() string { return ".wdl" }

func (WDLExporter) GenerateOutput(w *ir.Workflow, outputPath string, tracker *loss.Tracker, opts Options) error {
	env := ir.EnvSharedFilesystem
	order, err := ir.TopoSort(w)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("version 1.0\n\n")
	fmt.Fprintf(&b, "# WDL generated by wf2wf from workflow '%s'\n\n", w.Name)

	for _, id := range order {
		writeWDLTask(&b, w.Tasks[id], env)
	}

	fmt.Fprintf(&b, "workflow %s {\n", sanitizeName(w.Name))
	if len(w.Inputs) > 0 {
		b.WriteString("  input {\n")
		for _, p := range w.Inputs {
			fmt.Fprintf(&b, "    %s %s\n", wdlTypeString(p.Type), sanitizeName(p.ID))
		}
		b.WriteString("  }\n")
	}
	for _, id := range order {
		task := w.Tasks[id]
		name := sanitizeName(id)
		scattered := !task.Scatter.IsEmpty()
		indent := "  "
		if scattered {
			fmt.Fprintf(&b, "  scatter (item in inputs_%s) {\n", name)
			indent = "    "
		}
		parents := w.Parents(id)
		if len(parents) > 0 {
			fmt.Fprintf(&b, "%scall %s after %s\n", indent, name, sanitizeName(parents[0]))
		} else {
			fmt.Fprintf(&b, "%scall %s\n", indent, name)
		}
		if scattered {
			b.WriteString("  }\n")
		}
	}
	b.WriteString("}\n")

	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write wdl file: %w", err)
	}
	return nil
}

func writeWDLTask(b *strings.Builder, task *ir.Task, env string) {
	fmt.Fprintf(b, "task %s {\n", sanitizeName(task.ID))
	if len(task.Inputs) > 0 {
		b.WriteString("  input {\n")
		for _, p := range task.Inputs {
			fmt.Fprintf(b, "    %s %s\n", wdlTypeString(p.Type), sanitizeName(p.ID))
		}
		b.WriteString("  }\n")
	}

	command := task.Command.GetString(env)
	if command == "" {
		if script := task.Script.GetString(env); script != "" {
			command = script
		} else {
			command = "true"
		}
	}
	b.WriteString("  command <<<\n")
	fmt.Fprintf(b, "    %s\n", command)
	b.WriteString("  >>>\n")

	var runtime []string
	if cpu, ok := task.CPU.GetInt(env); ok && cpu > 0 {
		runtime = append(runtime, fmt.Sprintf("cpu: %d", cpu))
	}
	if mem, ok := task.MemMB.GetInt(env); ok && mem > 0 {
		runtime = append(runtime, fmt.Sprintf("memory: \"%dMB\"", mem))
	}
	if disk, ok := task.DiskMB.GetInt(env); ok && disk > 0 {
		runtime = append(runtime, fmt.Sprintf("disks: \"local-disk %d SSD\"", disk/1024+1))
	}
	if gpu, ok := task.GPU.GetInt(env); ok && gpu > 0 {
		runtime = append(runtime, fmt.Sprintf("gpuCount: %d", gpu))
	}
	if container := task.Container.GetString(env); container != "" {
		runtime = append(runtime, fmt.Sprintf("docker: %q", container))
	}
	if retries, ok := task.RetryCount.GetInt(env); ok && retries > 0 {
		runtime = append(runtime, fmt.Sprintf("maxRetries: %d", retries))
	}
	if len(runtime) > 0 {
		b.WriteString("  runtime {\n")
		for _, r := range runtime {
			fmt.Fprintf(b, "    %s\n", r)
		}
		b.WriteString("  }\n")
	}

	if len(task.Outputs) > 0 {
		b.WriteString("  output {\n")
		for _, p := range task.Outputs {
			fmt.Fprintf(b, "    %s %s = %q\n", wdlTypeString(p.Type), sanitizeName(p.ID), p.ID)
		}
		b.WriteString("  }\n")
	}
	b.WriteString("}\n\n")
}

func wdlTypeString(t ir.TypeSpec) string {
	switch t.Type {
	case "string":
		return "String"
	case "int", "long":
		return "Int"
	case "float", "double":
		return "Float"
	case "boolean":
		return "Boolean"
	case "File":
		return "File"
	case "Directory":
		return "Directory"
	case "array":
		if t.Items != nil {
			return "Array[" + wdlTypeString(*t.Items) + "]"
		}
		return "Array[String]"
	case "union":
		if t.Nullable {
			for _, m := range t.Members {
				if m.Type != "null" {
					return wdlTypeString(*m) + "?"
				}
			}
		}
		return "String"
	default:
		return "String"
	}
}
