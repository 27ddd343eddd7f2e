package importers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/stretchr/testify/require"
)

const twoRuleSnakefile = `# toy pipeline
rule all:
    input:
        "b.txt"

rule A:
    output:
        "a.txt"
    threads: 2
    resources:
        mem_mb=4096
    shell:
        "echo a > a.txt"

rule B:
    input:
        "a.txt"
    output:
        "b.txt"
    threads: 2
    resources:
        mem_mb=4096
    conda:
        "envs/b.yaml"
    shell:
        "cat a.txt > b.txt"
`

func writeSnakefile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Snakefile")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSnakemakeParseRules(t *testing.T) {
	imp := SnakemakeImporter{}
	path := writeSnakefile(t, twoRuleSnakefile)
	parsed, err := imp.Parse(path, Options{})
	require.NoError(t, err)

	w, err := imp.BuildSkeleton(parsed, path)
	require.NoError(t, err)

	require.Len(t, w.Tasks, 2, "rule all is a target list, not a task")
	env := ir.EnvSharedFilesystem

	a := w.Tasks["A"]
	require.NotNil(t, a)
	cpu, _ := a.CPU.GetInt(env)
	require.EqualValues(t, 2, cpu)
	mem, _ := a.MemMB.GetInt(env)
	require.EqualValues(t, 4096, mem)
	require.Equal(t, "echo a > a.txt", a.Command.GetString(env))

	b := w.Tasks["B"]
	require.Equal(t, "envs/b.yaml", b.Conda.GetString(env))

	require.Equal(t, []ir.Edge{{Parent: "A", Child: "B"}}, w.Edges)
	require.Len(t, w.Outputs, 1, "rule all inputs become workflow outputs")
}

func TestSnakemakeImportPipeline(t *testing.T) {
	path := writeSnakefile(t, twoRuleSnakefile)
	o := NewOrchestrator()
	w, err := o.Import(context.Background(), SnakemakeImporter{}, path, Options{})
	require.NoError(t, err)

	require.Equal(t, ir.FormatSnakemake, w.Metadata.SourceFormat)
	require.Equal(t, path, w.Metadata.SourceFile)

	// Inference filled transfer behaviour for the shared filesystem.
	mode := w.Tasks["A"].FileTransferMode.GetString(ir.EnvSharedFilesystem)
	require.Equal(t, "never", mode)

	// The workflow came out valid.
	for _, issue := range w.Validate() {
		require.NotEqual(t, "error", issue.Severity, issue.Error())
	}
}

func TestSnakemakeContainerDirective(t *testing.T) {
	content := `rule x:
    output:
        "x.txt"
    container:
        "docker://python:3.11"
    shell:
        "python gen.py"
`
	imp := SnakemakeImporter{}
	path := writeSnakefile(t, content)
	parsed, err := imp.Parse(path, Options{})
	require.NoError(t, err)
	w, err := imp.BuildSkeleton(parsed, path)
	require.NoError(t, err)
	require.Equal(t, "python:3.11", w.Tasks["x"].Container.GetString(ir.EnvSharedFilesystem))
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]string{
		"Snakefile":    ir.FormatSnakemake,
		"rules.smk":    ir.FormatSnakemake,
		"workflow.dag": ir.FormatDAGMan,
		"main.nf":      ir.FormatNextflow,
		"tool.cwl":     ir.FormatCWL,
		"tasks.wdl":    ir.FormatWDL,
		"flow.ga":      ir.FormatGalaxy,
	}
	for file, want := range cases {
		got, err := DetectFormat(file)
		require.NoError(t, err, file)
		require.Equal(t, want, got, file)
	}
}

func TestDetectFormatSniffsJSON(t *testing.T) {
	dir := t.TempDir()

	irPath := filepath.Join(dir, "wf.json")
	require.NoError(t, os.WriteFile(irPath, []byte(`{"name":"x","tasks":{},"edges":[]}`), 0o644))
	got, err := DetectFormat(irPath)
	require.NoError(t, err)
	require.Equal(t, ir.FormatIR, got)

	bcoPath := filepath.Join(dir, "obj.json")
	require.NoError(t, os.WriteFile(bcoPath, []byte(`{"spec_version":"x","provenance_domain":{}}`), 0o644))
	got, err = DetectFormat(bcoPath)
	require.NoError(t, err)
	require.Equal(t, ir.FormatBCO, got)
}
