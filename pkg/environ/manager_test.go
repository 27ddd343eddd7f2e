package environ

import (
	"testing"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/stretchr/testify/require"
)

func detectionWorkflow() *ir.Workflow {
	w := ir.NewWorkflow("w")
	t1 := ir.NewTask("task1")
	t1.Container.Set("python:3.9", ir.EnvSharedFilesystem)
	t2 := ir.NewTask("task2")
	t2.Conda.Set("environment.yml", ir.EnvSharedFilesystem)
	t3 := ir.NewTask("task3")
	t3.Command.Set("echo done", ir.EnvSharedFilesystem)
	w.AddTask(t1)
	w.AddTask(t2)
	w.AddTask(t3)
	return w
}

func TestDetectClassifiesTasks(t *testing.T) {
	m := NewManager(Opts{})
	w := detectionWorkflow()
	r := m.Detect(w, "snakemake")

	require.Equal(t, 3, r.TotalTasks)
	require.Equal(t, 2, r.TasksWith)
	require.Equal(t, 1, r.TasksWithout)
	require.Contains(t, r.Containers, "python:3.9")
	require.Contains(t, r.CondaEnvironments, "environment.yml")
	require.Contains(t, r.EnvironmentFiles, "environment.yml")
	require.Equal(t, []string{"task3"}, r.MissingEnvironments)

	meta := w.Metadata.EnvironmentMetadata["detection"]
	require.Equal(t, "snakemake", meta["source_format"])
	require.EqualValues(t, 3, meta["total_tasks"])
	require.EqualValues(t, 2, meta["tasks_with_environments"])
	require.EqualValues(t, 1, meta["tasks_without_environments"])
}

func TestIsEnvironmentFile(t *testing.T) {
	for _, yes := range []string{"environment.yml", "environment.yaml", "requirements.txt", "environment.lock", "./env/environment.yml", "../environments/bio.yml"} {
		require.True(t, IsEnvironmentFile(yes), yes)
	}
	for _, no := range []string{"python:3.9", "docker://python:3.9", "ubuntu:20.04", ""} {
		require.False(t, IsEnvironmentFile(no), no)
	}
}

func TestInferContainerFromCommand(t *testing.T) {
	cases := map[string]string{
		"python script.py":      "python",
		"Rscript analyze.R":     "rocker",
		"bwa mem ref.fa":        "biocontainers",
		"tensorflow_training":   "tensorflow",
		"echo hello":            "ubuntu",
	}
	for command, want := range cases {
		got := InferContainerFromCommand(command)
		require.Contains(t, got, want, command)
	}
	require.Empty(t, InferContainerFromCommand(""))
	require.Empty(t, InferContainerFromCommand("   "))
}

func TestInferCondaPackagesFromCommand(t *testing.T) {
	require.Contains(t, InferCondaPackagesFromCommand("python x.py"), "python=3.11")
	require.Contains(t, InferCondaPackagesFromCommand("samtools sort"), "samtools")
	require.Nil(t, InferCondaPackagesFromCommand("unknowncmd"))
}

func TestInferMissingFillsOnlyBareTask(t *testing.T) {
	m := NewManager(Opts{})
	w := detectionWorkflow()
	inferred := m.InferMissing(w, "snakemake")
	require.Equal(t, 1, inferred)

	c := w.Tasks["task3"].Container.GetString(ir.EnvSharedFilesystem)
	require.Contains(t, c, "ubuntu")
	b := w.Tasks["task3"].Container.Binding(ir.EnvSharedFilesystem)
	require.Equal(t, ir.SourceInferred, b.SourceMethod)

	// Explicit environments are untouched.
	require.Equal(t, "python:3.9", w.Tasks["task1"].Container.GetString(ir.EnvSharedFilesystem))
}
