package exporters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/csmcal/wf2wf/pkg/importers"
	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/stretchr/testify/require"
)

func sharedWorkflow() *ir.Workflow {
	w := ir.NewWorkflow("pipeline")
	a := ir.NewTask("align")
	a.Command.Set("bwa mem ref.fa reads.fq > out.bam", ir.EnvSharedFilesystem)
	a.CPU.Set(int64(4), ir.EnvSharedFilesystem)
	a.MemMB.Set(int64(8192), ir.EnvSharedFilesystem)
	a.Threads.Set(int64(4), ir.EnvSharedFilesystem)
	a.Conda.Set("envs/align.yaml", ir.EnvSharedFilesystem)
	a.Inputs = append(a.Inputs, ir.Parameter{ID: "reads.fq", Type: ir.PrimitiveType("File")})
	a.Outputs = append(a.Outputs, ir.Parameter{ID: "out.bam", Type: ir.PrimitiveType("File")})

	b := ir.NewTask("stats")
	b.Command.Set("samtools stats out.bam > stats.txt", ir.EnvSharedFilesystem)
	b.Inputs = append(b.Inputs, ir.Parameter{ID: "out.bam", Type: ir.PrimitiveType("File")})
	b.Outputs = append(b.Outputs, ir.Parameter{ID: "stats.txt", Type: ir.PrimitiveType("File")})

	w.AddTask(a)
	w.AddTask(b)
	w.AddEdge("align", "stats")
	w.Meta().SourceFormat = ir.FormatIR
	return w
}

func TestSnakemakeExport(t *testing.T) {
	w := sharedWorkflow()
	dir := t.TempDir()
	out := filepath.Join(dir, "Snakefile")

	o := NewOrchestrator()
	require.NoError(t, o.Export(SnakemakeExporter{}, w, out, Options{}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "rule align:")
	require.Contains(t, content, "rule stats:")
	require.Contains(t, content, "rule all:")
	require.Contains(t, content, `"stats.txt"`)
	require.Contains(t, content, "mem_mb=8192")
	require.Contains(t, content, "threads: 4")
	require.Contains(t, content, `"envs/align.yaml"`)
}

func TestSnakemakeRoundTrip(t *testing.T) {
	w := sharedWorkflow()
	dir := t.TempDir()
	out := filepath.Join(dir, "Snakefile")

	o := NewOrchestrator()
	require.NoError(t, o.Export(SnakemakeExporter{}, w, out, Options{}))

	imp := importers.SnakemakeImporter{}
	parsed, err := imp.Parse(out, importers.Options{})
	require.NoError(t, err)
	restored, err := imp.BuildSkeleton(parsed, out)
	require.NoError(t, err)

	env := ir.EnvSharedFilesystem
	align := restored.Tasks["align"]
	require.NotNil(t, align)
	require.Equal(t, "bwa mem ref.fa reads.fq > out.bam", align.Command.GetString(env))
	mem, _ := align.MemMB.GetInt(env)
	require.EqualValues(t, 8192, mem)
	threads, _ := align.Threads.GetInt(env)
	require.EqualValues(t, 4, threads)
	require.Equal(t, "envs/align.yaml", align.Conda.GetString(env))
	require.Equal(t, []ir.Edge{{Parent: "align", Child: "stats"}}, restored.Edges)
}

func TestExporterRegistry(t *testing.T) {
	for _, format := range []string{
		ir.FormatSnakemake, ir.FormatDAGMan, ir.FormatNextflow,
		ir.FormatCWL, ir.FormatWDL, ir.FormatGalaxy, ir.FormatBCO, ir.FormatIR,
	} {
		a, err := Get(format)
		require.NoError(t, err)
		require.Equal(t, format, a.Format())
	}
	_, err := Get("cobol")
	require.Error(t, err)
}
