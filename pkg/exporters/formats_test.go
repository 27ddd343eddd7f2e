package exporters

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/csmcal/wf2wf/pkg/bco"
	"github.com/csmcal/wf2wf/pkg/importers"
	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
	"github.com/stretchr/testify/require"
)

func TestNextflowExportEmitsScriptAndConfig(t *testing.T) {
	w := sharedWorkflow()
	dir := t.TempDir()
	out := filepath.Join(dir, "main.nf")

	o := NewOrchestrator()
	require.NoError(t, o.Export(NextflowExporter{}, w, out, Options{}))

	script, err := os.ReadFile(out)
	require.NoError(t, err)
	content := string(script)
	require.Contains(t, content, "nextflow.enable.dsl = 2")
	require.Contains(t, content, "process align {")
	require.Contains(t, content, "process stats {")
	require.Contains(t, content, "stats(align.out)")

	cfg, err := os.ReadFile(filepath.Join(dir, "nextflow.config"))
	require.NoError(t, err)
	require.Contains(t, string(cfg), "withName: 'align'")
	require.Contains(t, string(cfg), "cpus = 4")
	require.Contains(t, string(cfg), "memory = '8192 MB'")
}

func TestNextflowRoundTrip(t *testing.T) {
	w := sharedWorkflow()
	dir := t.TempDir()
	out := filepath.Join(dir, "main.nf")
	o := NewOrchestrator()
	require.NoError(t, o.Export(NextflowExporter{}, w, out, Options{}))

	imp := importers.NextflowImporter{}
	parsed, err := imp.Parse(out, importers.Options{})
	require.NoError(t, err)
	restored, err := imp.BuildSkeleton(parsed, out)
	require.NoError(t, err)

	require.Len(t, restored.Tasks, 2)
	require.Contains(t, restored.Edges, ir.Edge{Parent: "align", Child: "stats"})
	env := ir.EnvSharedFilesystem
	cpu, _ := restored.Tasks["align"].CPU.GetInt(env)
	require.EqualValues(t, 4, cpu)
}

func TestWDLExportEmitsTasksAndWorkflow(t *testing.T) {
	w := sharedWorkflow()
	w.Tasks["align"].Container.Set("biocontainers/bwa:latest", ir.EnvSharedFilesystem)
	dir := t.TempDir()
	out := filepath.Join(dir, "pipeline.wdl")

	o := NewOrchestrator()
	require.NoError(t, o.Export(WDLExporter{}, w, out, Options{}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "version 1.0")
	require.Contains(t, content, "task align {")
	require.Contains(t, content, "cpu: 4")
	require.Contains(t, content, `memory: "8192MB"`)
	require.Contains(t, content, `docker: "biocontainers/bwa:latest"`)
	require.Contains(t, content, "workflow pipeline {")
	require.Contains(t, content, "call stats after align")
}

func TestWDLExportScatterBlock(t *testing.T) {
	w := sharedWorkflow()
	w.Tasks["align"].Scatter.Set(map[string]any{"scatter": []any{"sample"}}, ir.EnvSharedFilesystem)
	dir := t.TempDir()
	out := filepath.Join(dir, "pipeline.wdl")

	o := NewOrchestrator()
	require.NoError(t, o.Export(WDLExporter{}, w, out, Options{}))

	data, _ := os.ReadFile(out)
	require.Contains(t, string(data), "scatter (")
}

func TestGalaxyExportStructure(t *testing.T) {
	w := sharedWorkflow()
	w.Inputs = append(w.Inputs, ir.Parameter{ID: "reads.fq", Type: ir.PrimitiveType("File")})
	dir := t.TempDir()
	out := filepath.Join(dir, "pipeline.ga")

	o := NewOrchestrator()
	require.NoError(t, o.Export(GalaxyExporter{}, w, out, Options{}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, "true", doc["a_galaxy_workflow"])
	steps, ok := doc["steps"].(map[string]any)
	require.True(t, ok)
	require.Len(t, steps, 3, "one data_input step plus two tool steps")

	// Galaxy cannot express resources: losses must say so.
	lossDoc, err := loss.ReadDocument(out + loss.SidecarExt)
	require.NoError(t, err)
	var sawResourceLoss bool
	for _, e := range lossDoc.Entries {
		if e.Field == "cpu" {
			sawResourceLoss = true
		}
	}
	require.True(t, sawResourceLoss)
}

func TestBCOExportComposesDomains(t *testing.T) {
	w := sharedWorkflow()
	w.Provenance = &ir.Provenance{Authors: []string{"Ada"}, License: "MIT"}
	w.ExecutionModel.Set(ir.ModelPipeline, ir.EnvSharedFilesystem)
	dir := t.TempDir()
	out := filepath.Join(dir, "pipeline.json")

	o := NewOrchestrator()
	require.NoError(t, o.Export(BCOExporter{}, w, out, Options{}))

	doc, err := bco.Load(out)
	require.NoError(t, err)
	issues, err := bco.Validate(doc)
	require.NoError(t, err)
	require.Empty(t, issues)

	desc, _ := doc.Fields["description_domain"].(map[string]any)
	steps, _ := desc["pipeline_steps"].([]any)
	require.Len(t, steps, 2)

	ext, _ := doc.Fields["extension_domain"].([]any)
	var sawModel bool
	for _, e := range ext {
		if em, ok := e.(map[string]any); ok && em["namespace"] == bco.ExtensionNamespaceExecutionModel {
			require.Equal(t, ir.ModelPipeline, em["execution_model"])
			sawModel = true
		}
	}
	require.True(t, sawModel, "execution model must ride in extension_domain")
}

func TestBCOExportCWLSibling(t *testing.T) {
	w := sharedWorkflow()
	dir := t.TempDir()
	out := filepath.Join(dir, "pipeline.json")

	o := NewOrchestrator()
	require.NoError(t, o.Export(BCOExporter{}, w, out, Options{Extra: map[string]any{"cwl_sibling": true}}))
	require.FileExists(t, filepath.Join(dir, "pipeline.cwl"))
}

func TestBCOImportRoundTrip(t *testing.T) {
	w := sharedWorkflow()
	dir := t.TempDir()
	out := filepath.Join(dir, "pipeline.json")
	o := NewOrchestrator()
	require.NoError(t, o.Export(BCOExporter{}, w, out, Options{}))

	imp := importers.NewOrchestrator()
	restored, err := imp.Import(context.Background(), importers.BCOImporter{}, out, importers.Options{})
	require.NoError(t, err)
	require.Len(t, restored.Tasks, 2)
	require.Len(t, restored.Edges, 1)
}

func TestIRExportRoundTrip(t *testing.T) {
	w := sharedWorkflow()
	dir := t.TempDir()
	out := filepath.Join(dir, "wf.json")

	o := NewOrchestrator()
	require.NoError(t, o.Export(IRExporter{}, w, out, Options{}))

	restored, err := ir.LoadFile(out)
	require.NoError(t, err)
	a, err := ir.CanonicalJSON(w)
	require.NoError(t, err)
	b, err := ir.CanonicalJSON(restored)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestLossMonotonicity(t *testing.T) {
	// Export -> import -> export of an unchanged format: entries reapplied
	// on import are lost again by the second export, which marks them
	// lost_again rather than lost.
	w := gpuWorkflow()
	dir := t.TempDir()
	out := filepath.Join(dir, "w.cwl")
	o := NewOrchestrator()
	require.NoError(t, o.Export(CWLExporter{}, w, out, Options{}))

	imp := importers.NewOrchestrator()
	restored, err := imp.Import(context.Background(), importers.CWLImporter{}, out, importers.Options{})
	require.NoError(t, err)

	out2 := filepath.Join(dir, "w2.cwl")
	require.NoError(t, o.Export(CWLExporter{}, restored, out2, Options{}))
	doc, err := loss.ReadDocument(out2 + loss.SidecarExt)
	require.NoError(t, err)
	for _, e := range doc.Entries {
		if e.Field == "gpu" {
			require.Equal(t, ir.LossStatusLostAgain, e.Status,
				"a reapplied-then-relost field is lost_again, not lost")
		}
	}
}
