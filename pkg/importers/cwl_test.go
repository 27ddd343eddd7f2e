package importers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/stretchr/testify/require"
)

const cwlWorkflow = `cwlVersion: v1.2
class: Workflow
id: variant_calling
inputs:
  reads:
    type: File
outputs:
  vcf:
    type: File
steps:
  align:
    run:
      class: CommandLineTool
      baseCommand: [bwa, mem]
      requirements:
        - class: ResourceRequirement
          coresMin: 4
          ramMin: 8192
        - class: DockerRequirement
          dockerPull: biocontainers/bwa:latest
      inputs:
        reads:
          type: File
      outputs:
        bam:
          type: File
    in:
      reads: reads
    out: [bam]
  call:
    run:
      class: CommandLineTool
      baseCommand: gatk
      hints:
        - class: ResourceRequirement
          ramMin: 4096
      inputs: {}
      outputs: {}
    in:
      bam:
        source: align/bam
    out: []
`

func TestCWLParseWorkflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.cwl")
	require.NoError(t, os.WriteFile(path, []byte(cwlWorkflow), 0o644))

	imp := CWLImporter{}
	parsed, err := imp.Parse(path, Options{})
	require.NoError(t, err)
	w, err := imp.BuildSkeleton(parsed, path)
	require.NoError(t, err)

	require.Equal(t, "variant_calling", w.Name)
	require.Len(t, w.Inputs, 1)
	require.Equal(t, "File", w.Inputs[0].Type.Type)

	env := ir.EnvSharedFilesystem
	align := w.Tasks["align"]
	require.NotNil(t, align)
	require.Equal(t, "bwa mem", align.Command.GetString(env))
	cpu, _ := align.CPU.GetInt(env)
	require.EqualValues(t, 4, cpu)
	require.Equal(t, ir.SourceExplicit, align.CPU.Binding(env).SourceMethod)
	require.Equal(t, "biocontainers/bwa:latest", align.Container.GetString(env))

	call := w.Tasks["call"]
	mem, _ := call.MemMB.GetInt(env)
	require.EqualValues(t, 4096, mem)
	require.Equal(t, ir.SourceInferred, call.MemMB.Binding(env).SourceMethod, "hints import as inferred")

	require.Equal(t, []ir.Edge{{Parent: "align", Child: "call"}}, w.Edges)
}

func TestCWLTypeMapping(t *testing.T) {
	require.Equal(t, "File", cwlType("File").Type)
	arr := cwlType("string[]")
	require.Equal(t, "array", arr.Type)
	require.Equal(t, "string", arr.Items.Type)
	opt := cwlType("int?")
	require.Equal(t, "union", opt.Type)
	require.True(t, opt.Nullable)
}

func TestCWLBareToolBecomesSingleStep(t *testing.T) {
	content := `cwlVersion: v1.2
class: CommandLineTool
id: echo_tool
baseCommand: echo
inputs: {}
outputs: {}
`
	path := filepath.Join(t.TempDir(), "tool.cwl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	imp := CWLImporter{}
	parsed, err := imp.Parse(path, Options{})
	require.NoError(t, err)
	w, err := imp.BuildSkeleton(parsed, path)
	require.NoError(t, err)
	require.Len(t, w.Tasks, 1)
	require.Equal(t, "echo", w.Tasks["main"].Command.GetString(ir.EnvSharedFilesystem))
}
