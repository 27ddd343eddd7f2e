package adapt

import (
	"testing"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
)

func TestSharedToDistributedScaling(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("a")
	task.CPU.Set(int64(4), ir.EnvSharedFilesystem)
	task.MemMB.Set(int64(4096), ir.EnvSharedFilesystem)
	task.DiskMB.Set(int64(4096), ir.EnvSharedFilesystem)
	task.TimeS.Set(int64(3600), ir.EnvSharedFilesystem)
	w.AddTask(task)

	s, err := For(ir.EnvSharedFilesystem, ir.EnvDistributedComputing)
	if err != nil {
		t.Fatal(err)
	}
	tracker := loss.NewTracker()
	AdaptWorkflow(w, s, tracker)

	dist := ir.EnvDistributedComputing
	if mem, _ := task.MemMB.GetInt(dist); mem < 4096 {
		t.Fatalf("memory overhead must scale >= 1.0, got %d", mem)
	}
	if mem, _ := task.MemMB.GetInt(dist); mem != 4710 {
		t.Fatalf("expected 4096*1.15=4710, got %d", mem)
	}
	if disk, _ := task.DiskMB.GetInt(dist); disk != 7372 {
		t.Fatalf("expected 4096*1.8=7372, got %d", disk)
	}
	if ts, _ := task.TimeS.GetInt(dist); ts != 4500 {
		t.Fatalf("expected 3600*1.25=4500, got %d", ts)
	}
	if staging, ok := task.StagingRequired.GetBool(dist); !ok || !staging {
		t.Fatal("distributed adaptation must set staging_required=true")
	}
	if mode := task.FileTransferMode.GetString(dist); mode != "staging" {
		t.Fatalf("expected file_transfer_mode=staging, got %q", mode)
	}

	// Source bindings are untouched.
	if mem, _ := task.MemMB.GetInt(ir.EnvSharedFilesystem); mem != 4096 {
		t.Fatalf("source binding changed: %d", mem)
	}
	if cpu, _ := task.CPU.GetInt(ir.EnvSharedFilesystem); cpu != 4 {
		t.Fatalf("source cpu changed: %d", cpu)
	}
}

func TestAdaptRecordsLossEntries(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("a")
	task.MemMB.Set(int64(2048), ir.EnvSharedFilesystem)
	w.AddTask(task)

	s, _ := For(ir.EnvSharedFilesystem, ir.EnvDistributedComputing)
	tracker := loss.NewTracker()
	AdaptWorkflow(w, s, tracker)

	var sawAdapted, sawSummary bool
	for _, e := range tracker.Entries() {
		if e.Origin != ir.LossOriginWf2wf {
			t.Fatalf("adaptation entries carry origin wf2wf, got %q", e.Origin)
		}
		if e.Status == ir.LossStatusAdapted {
			sawAdapted = true
		}
		if e.Field == "environment_adaptation" {
			sawSummary = true
		}
	}
	if !sawAdapted || !sawSummary {
		t.Fatalf("expected adapted field entries and a summary entry, got %+v", tracker.Entries())
	}
}

func TestAdaptDoesNotOverwriteExistingTarget(t *testing.T) {
	task := ir.NewTask("a")
	task.MemMB.Set(int64(1024), ir.EnvSharedFilesystem)
	task.MemMB.Set(int64(9999), ir.EnvDistributedComputing)

	s, _ := For(ir.EnvSharedFilesystem, ir.EnvDistributedComputing)
	AdaptTask(task, s, nil)

	if mem, _ := task.MemMB.GetInt(ir.EnvDistributedComputing); mem != 9999 {
		t.Fatalf("existing target binding must not be overwritten, got %d", mem)
	}
}

func TestAdaptRaisesRetryFloor(t *testing.T) {
	task := ir.NewTask("a")
	task.RetryCount.Set(int64(0), ir.EnvSharedFilesystem)
	s, _ := For(ir.EnvSharedFilesystem, ir.EnvDistributedComputing)
	AdaptTask(task, s, nil)
	if n, _ := task.RetryCount.GetInt(ir.EnvDistributedComputing); n != 2 {
		t.Fatalf("expected retry floor 2, got %d", n)
	}
}

func TestForUnknownPair(t *testing.T) {
	if _, err := For(ir.EnvEdge, ir.EnvCloudNative); err == nil {
		t.Fatal("expected error for unregistered strategy pair")
	}
}
