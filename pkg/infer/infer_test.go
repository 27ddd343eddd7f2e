package infer

import (
	"testing"

	"github.com/csmcal/wf2wf/pkg/ir"
)

func TestFillCommandHeuristics(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("align")
	task.Command.Set("bwa mem ref.fa reads.fastq", ir.EnvSharedFilesystem)
	w.AddTask(task)

	New(nil).Fill(w, ir.FormatSnakemake, "")

	env := ir.EnvSharedFilesystem
	if cpu, _ := task.CPU.GetInt(env); cpu != 4 {
		t.Fatalf("bwa should infer cpu=4, got %d", cpu)
	}
	if disk, _ := task.DiskMB.GetInt(env); disk != 4096 {
		t.Fatalf(".fastq should infer disk_mb=4096, got %d", disk)
	}
	if b := task.CPU.Binding(env); b.SourceMethod != ir.SourceInferred {
		t.Fatalf("inference must set source_method=inferred, got %q", b.SourceMethod)
	}
}

func TestFillNeverOverwritesExplicit(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("a")
	task.Command.Set("bwa mem", ir.EnvSharedFilesystem)
	task.CPU.Set(int64(16), ir.EnvSharedFilesystem)
	w.AddTask(task)

	New(nil).Fill(w, ir.FormatSnakemake, "")

	if cpu, _ := task.CPU.GetInt(ir.EnvSharedFilesystem); cpu != 16 {
		t.Fatalf("explicit cpu must survive inference, got %d", cpu)
	}
	if b := task.CPU.Binding(ir.EnvSharedFilesystem); b.SourceMethod != ir.SourceExplicit {
		t.Fatalf("explicit binding must keep its source method, got %q", b.SourceMethod)
	}
}

func TestFillEnvironmentDefaults(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("a")
	w.AddTask(task)

	New(nil).Fill(w, ir.FormatIR, ir.EnvDistributedComputing)

	env := ir.EnvDistributedComputing
	if n, _ := task.RetryCount.GetInt(env); n != 2 {
		t.Fatalf("distributed retry_count default is 2, got %d", n)
	}
	if n, _ := task.RetryDelay.GetInt(env); n != 60 {
		t.Fatalf("distributed retry_delay default is 60, got %d", n)
	}
	if n, _ := task.MaxRuntime.GetInt(env); n != 3600 {
		t.Fatalf("distributed max_runtime default is 3600, got %d", n)
	}
	if mode := task.FileTransferMode.GetString(env); mode != "explicit" {
		t.Fatalf("distributed transfer mode default is explicit, got %q", mode)
	}
	if staging, _ := task.StagingRequired.GetBool(env); !staging {
		t.Fatal("distributed staging default is true")
	}
	if cleanup, _ := task.CleanupAfter.GetBool(env); !cleanup {
		t.Fatal("distributed cleanup default is true")
	}
}

func TestFillSetsExecutionModel(t *testing.T) {
	w := ir.NewWorkflow("w")
	a := ir.NewTask("a")
	b := ir.NewTask("b")
	w.AddTask(a)
	w.AddTask(b)
	w.AddEdge("a", "b")

	New(nil).Fill(w, ir.FormatSnakemake, "")

	model, _ := w.ExecutionModel.Get(ir.EnvSharedFilesystem).(string)
	if model != ir.ModelPipeline {
		t.Fatalf("linear two-task workflow should classify as pipeline, got %q", model)
	}
}

func TestDeriveExecutionModel(t *testing.T) {
	single := ir.NewWorkflow("s")
	single.AddTask(ir.NewTask("only"))
	if m := DeriveExecutionModel(single, ir.FormatSnakemake, ir.EnvSharedFilesystem); m != ir.ModelSequential {
		t.Fatalf("single task should be sequential, got %q", m)
	}

	fan := ir.NewWorkflow("f")
	for _, id := range []string{"root", "a", "b"} {
		fan.AddTask(ir.NewTask(id))
	}
	fan.AddEdge("root", "a")
	fan.AddEdge("root", "b")
	if m := DeriveExecutionModel(fan, ir.FormatSnakemake, ir.EnvSharedFilesystem); m != ir.ModelParallel {
		t.Fatalf("fan-out should be parallel, got %q", m)
	}

	scat := ir.NewWorkflow("d")
	st := ir.NewTask("s1")
	st.Scatter.Set(map[string]any{"scatter": []any{"x"}}, ir.EnvSharedFilesystem)
	scat.AddTask(st)
	scat.AddTask(ir.NewTask("s2"))
	if m := DeriveExecutionModel(scat, ir.FormatWDL, ir.EnvSharedFilesystem); m != ir.ModelDynamic {
		t.Fatalf("scatter should be dynamic, got %q", m)
	}

	if m := DeriveExecutionModel(single, ir.FormatDAGMan, ir.EnvDistributedComputing); m != ir.ModelDistributed {
		t.Fatalf("distributed environment forces distributed model, got %q", m)
	}
}
