package loss

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/stretchr/testify/require"
)

func TestRecordDeduplicates(t *testing.T) {
	tr := NewTracker()
	tr.Record("/tasks/a/gpu", "gpu", int64(2), "no gpu support", Opts{})
	tr.Record("/tasks/a/gpu", "gpu", int64(2), "no gpu support", Opts{})
	require.Equal(t, 1, tr.Len())
}

func TestRecordLostAgainAfterPrepare(t *testing.T) {
	tr := NewTracker()
	tr.Prepare([]ir.LossEntry{
		{JSONPointer: "/tasks/a/gpu", Field: "gpu", Status: ir.LossStatusReapplied},
		{JSONPointer: "/tasks/a/when", Field: "when", Status: ir.LossStatusLost},
	})
	tr.Record("/tasks/a/gpu", "gpu", int64(2), "still unsupported", Opts{})
	tr.Record("/tasks/a/when", "when", "x > 1", "still unsupported", Opts{})

	entries := tr.Entries()
	require.Equal(t, ir.LossStatusLostAgain, entries[0].Status)
	require.Equal(t, ir.LossStatusLost, entries[1].Status)
}

func TestSummarize(t *testing.T) {
	tr := NewTracker()
	tr.Record("/tasks/a/gpu", "gpu", int64(1), "r", Opts{Severity: ir.SeverityWarn, Category: CategoryResourceSpec})
	tr.Record("/tasks/a/scatter", "scatter", "s", "r", Opts{Severity: ir.SeverityInfo})
	s := Summarize(tr.Entries())
	require.Equal(t, 2, s.TotalEntries)
	require.Equal(t, 1, s.BySeverity[ir.SeverityWarn])
	require.Equal(t, 1, s.BySeverity[ir.SeverityInfo])
	require.Equal(t, 1, s.ByCategory[CategoryResourceSpec])
	require.Equal(t, 2, s.ByStatus[ir.LossStatusLost])
	require.Equal(t, 2, s.ByOrigin[ir.LossOriginUser])
}

func TestWriteAndReadSidecar(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "workflow.dag")
	require.NoError(t, os.WriteFile(artifact, []byte("JOB a a.sub\n"), 0o644))

	tr := NewTracker()
	tr.Record("/tasks/a/gpu", "gpu", int64(2), "no gpu support", Opts{})
	checksum := ir.ChecksumBytes([]byte("JOB a a.sub\n"))
	require.NoError(t, tr.WriteSidecar(artifact, "dagman", checksum, nil))

	doc, err := ReadDocument(artifact + SidecarExt)
	require.NoError(t, err)
	require.Equal(t, "dagman", doc.TargetEngine)
	require.Equal(t, checksum, doc.SourceChecksum)
	require.Len(t, doc.Entries, 1)
	require.Equal(t, 1, doc.Summary.TotalEntries)
}

func TestApplyReinjectsEnvValue(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("a")
	w.AddTask(task)

	entries := []ir.LossEntry{{
		JSONPointer: "/tasks/a/gpu",
		Field:       "gpu",
		LostValue: map[string]any{"values": []any{
			map[string]any{"value": float64(2), "environments": []any{"shared_filesystem"}, "source_method": "explicit", "confidence": 1.0},
		}},
		Status: ir.LossStatusLost,
	}}
	applied := Apply(w, entries)
	require.Equal(t, ir.LossStatusReapplied, applied[0].Status)
	gpu, ok := task.GPU.GetInt(ir.EnvSharedFilesystem)
	require.True(t, ok)
	require.EqualValues(t, 2, gpu)
}

func TestApplyScalarUsesTargetEnvironment(t *testing.T) {
	w := ir.NewWorkflow("w")
	w.AddTask(ir.NewTask("a"))
	entries := []ir.LossEntry{{
		JSONPointer:        "/tasks/a/retry_count",
		Field:              "retry_count",
		LostValue:          int64(3),
		Status:             ir.LossStatusLost,
		EnvironmentContext: map[string]any{"target_environment": ir.EnvDistributedComputing},
	}}
	applied := Apply(w, entries)
	require.Equal(t, ir.LossStatusReapplied, applied[0].Status)
	n, ok := w.Tasks["a"].RetryCount.GetInt(ir.EnvDistributedComputing)
	require.True(t, ok)
	require.EqualValues(t, 3, n)
}

func TestApplySkipsAlreadyReapplied(t *testing.T) {
	w := ir.NewWorkflow("w")
	w.AddTask(ir.NewTask("a"))
	entries := []ir.LossEntry{{
		JSONPointer: "/tasks/a/gpu", Field: "gpu",
		LostValue: int64(1), Status: ir.LossStatusReapplied,
	}}
	Apply(w, entries)
	require.True(t, w.Tasks["a"].GPU.IsEmpty(), "reapplied entries must not be applied twice")
}

func TestApplyUnresolvablePointerStaysLost(t *testing.T) {
	w := ir.NewWorkflow("w")
	entries := []ir.LossEntry{{
		JSONPointer: "/tasks/ghost/gpu", Field: "gpu",
		LostValue: int64(1), Status: ir.LossStatusLost,
	}}
	applied := Apply(w, entries)
	require.Equal(t, ir.LossStatusLost, applied[0].Status)
}

func TestDetectAndApplySidecarChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "workflow.dag")
	require.NoError(t, os.WriteFile(source, []byte("JOB a a.sub\n"), 0o644))

	tr := NewTracker()
	tr.Record("/tasks/a/gpu", "gpu", int64(2), "r", Opts{})
	require.NoError(t, tr.WriteSidecar(source, "dagman", "sha256:"+strings.Repeat("0", 64), nil))

	w := ir.NewWorkflow("w")
	w.AddTask(ir.NewTask("a"))
	require.NoError(t, DetectAndApplySidecar(w, source))
	require.True(t, w.Tasks["a"].GPU.IsEmpty(), "stale side-car must not modify the workflow")
	require.Empty(t, w.LossMap)
}

func TestDetectAndApplySidecarChecksumMatch(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "workflow.dag")
	content := []byte("JOB a a.sub\n")
	require.NoError(t, os.WriteFile(source, content, 0o644))

	tr := NewTracker()
	tr.Record("/tasks/a/gpu", "gpu", int64(2), "r", Opts{
		EnvironmentContext: map[string]any{"target_environment": ir.EnvSharedFilesystem},
	})
	require.NoError(t, tr.WriteSidecar(source, "dagman", ir.ChecksumBytes(content), nil))

	w := ir.NewWorkflow("w")
	w.AddTask(ir.NewTask("a"))
	require.NoError(t, DetectAndApplySidecar(w, source))
	gpu, ok := w.Tasks["a"].GPU.GetInt(ir.EnvSharedFilesystem)
	require.True(t, ok)
	require.EqualValues(t, 2, gpu)
	require.Len(t, w.LossMap, 1)
	require.Equal(t, ir.LossStatusReapplied, w.LossMap[0].Status)
}

func TestDetectAndApplySidecarMissingFile(t *testing.T) {
	w := ir.NewWorkflow("w")
	require.NoError(t, DetectAndApplySidecar(w, filepath.Join(t.TempDir(), "nothing.dag")))
}
