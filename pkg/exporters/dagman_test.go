package exporters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
	"github.com/stretchr/testify/require"
)

// twoTaskWorkflow models a Snakemake pipeline A -> B with cpu=2, mem=4096.
func twoTaskWorkflow() *ir.Workflow {
	w := ir.NewWorkflow("workflow")
	for _, id := range []string{"A", "B"} {
		task := ir.NewTask(id)
		task.Command.Set("run_"+id+".sh", ir.EnvDistributedComputing)
		task.CPU.Set(int64(2), ir.EnvDistributedComputing)
		task.MemMB.Set(int64(4096), ir.EnvDistributedComputing)
		w.AddTask(task)
	}
	w.AddEdge("A", "B")
	w.Meta().SourceFormat = ir.FormatSnakemake
	return w
}

func TestDAGManExportMinimalPipeline(t *testing.T) {
	w := twoTaskWorkflow()
	dir := t.TempDir()
	out := filepath.Join(dir, "workflow.dag")

	o := NewOrchestrator()
	o.TargetEnv = ir.EnvDistributedComputing
	require.NoError(t, o.Export(DAGManExporter{}, w, out, Options{}))

	dag, err := os.ReadFile(out)
	require.NoError(t, err)
	content := string(dag)
	require.Contains(t, content, "JOB A A.sub")
	require.Contains(t, content, "JOB B B.sub")
	require.Contains(t, content, "PARENT A CHILD B")

	for _, sub := range []string{"A.sub", "B.sub"} {
		data, err := os.ReadFile(filepath.Join(dir, sub))
		require.NoError(t, err)
		require.Contains(t, string(data), "request_cpus=2")
		require.Contains(t, string(data), "request_memory=4096MB")
	}

	doc, err := loss.ReadDocument(out + loss.SidecarExt)
	require.NoError(t, err)
	require.Equal(t, 0, doc.Summary.BySeverity[ir.SeverityError], "no error-severity losses expected")
	require.Equal(t, ir.FormatDAGMan, doc.TargetEngine)
	require.Equal(t, ir.ChecksumBytes(dag), doc.SourceChecksum)
}

func TestDAGManExportRetryAndPriority(t *testing.T) {
	w := twoTaskWorkflow()
	w.Tasks["A"].RetryCount.Set(int64(3), ir.EnvDistributedComputing)
	w.Tasks["A"].Priority.Set(int64(10), ir.EnvDistributedComputing)
	dir := t.TempDir()
	out := filepath.Join(dir, "workflow.dag")

	o := NewOrchestrator()
	o.TargetEnv = ir.EnvDistributedComputing
	require.NoError(t, o.Export(DAGManExporter{}, w, out, Options{}))

	content, _ := os.ReadFile(out)
	require.Contains(t, string(content), "RETRY A 3")
	require.Contains(t, string(content), "PRIORITY A 10")
}

func TestDAGManExportInlineSubmit(t *testing.T) {
	w := twoTaskWorkflow()
	dir := t.TempDir()
	out := filepath.Join(dir, "workflow.dag")

	o := NewOrchestrator()
	o.TargetEnv = ir.EnvDistributedComputing
	require.NoError(t, o.Export(DAGManExporter{}, w, out, Options{Extra: map[string]any{"inline_submit": true}}))

	content, _ := os.ReadFile(out)
	require.Contains(t, string(content), "SUBMIT-DESCRIPTION A {")
	require.NoFileExists(t, filepath.Join(dir, "A.sub"))
}

func TestDAGManExportRecordsScatterLoss(t *testing.T) {
	w := twoTaskWorkflow()
	w.Tasks["A"].Scatter.Set(map[string]any{"scatter": []any{"sample"}}, ir.EnvDistributedComputing)
	dir := t.TempDir()
	out := filepath.Join(dir, "workflow.dag")

	o := NewOrchestrator()
	o.TargetEnv = ir.EnvDistributedComputing
	require.NoError(t, o.Export(DAGManExporter{}, w, out, Options{}))

	doc, err := loss.ReadDocument(out + loss.SidecarExt)
	require.NoError(t, err)
	var found bool
	for _, e := range doc.Entries {
		if e.Field == "scatter" && e.JSONPointer == "/tasks/A/scatter" {
			found = true
		}
	}
	require.True(t, found, "scatter must be recorded as a loss for DAGMan")
}

func TestDAGManStagingDirectives(t *testing.T) {
	w := twoTaskWorkflow()
	w.Tasks["A"].StagingRequired.Set(true, ir.EnvDistributedComputing)
	w.Tasks["A"].Inputs = append(w.Tasks["A"].Inputs, ir.Parameter{ID: "data.bam", Type: ir.PrimitiveType("File")})
	dir := t.TempDir()
	out := filepath.Join(dir, "workflow.dag")

	o := NewOrchestrator()
	o.TargetEnv = ir.EnvDistributedComputing
	require.NoError(t, o.Export(DAGManExporter{}, w, out, Options{}))

	sub, _ := os.ReadFile(filepath.Join(dir, "A.sub"))
	require.Contains(t, string(sub), "should_transfer_files=YES")
	require.Contains(t, string(sub), "transfer_input_files=data.bam")
}

func TestDAGManConstantWhenIsInfoOnly(t *testing.T) {
	w := twoTaskWorkflow()
	w.Tasks["A"].When.Set("1 < 2", ir.EnvDistributedComputing)
	dir := t.TempDir()
	out := filepath.Join(dir, "workflow.dag")

	o := NewOrchestrator()
	o.TargetEnv = ir.EnvDistributedComputing
	require.NoError(t, o.Export(DAGManExporter{}, w, out, Options{}))

	doc, err := loss.ReadDocument(out + loss.SidecarExt)
	require.NoError(t, err)
	var sawConstant bool
	for _, e := range doc.Entries {
		if e.Field == "when_constant" {
			require.Equal(t, ir.SeverityInfo, e.Severity)
			sawConstant = true
		}
	}
	require.True(t, sawConstant, "constant-true when should be folded with an info note")
}

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "my_task", sanitizeName("my task"))
	require.Equal(t, "_1task", sanitizeName("1task"))
	require.Equal(t, "workflow", sanitizeName(""))
	require.Equal(t, "a_b_c", sanitizeName("a-b.c"))
}
