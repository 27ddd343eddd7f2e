package prompt

import (
	"testing"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/stretchr/testify/require"
)

func TestScriptedPromptFillsTask(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("job")
	w.AddTask(task)

	p := &Scripted{Responses: []string{
		"4", "8192", "4096", "1", "3600", "1", "3",
		"container", "python:3.9", "/work", "1", "python x.py",
		"", "", "",
	}}
	require.NoError(t, p.PromptForMissingValues(w, "import", ir.EnvSharedFilesystem))

	env := ir.EnvSharedFilesystem
	cpu, _ := task.CPU.GetInt(env)
	require.EqualValues(t, 4, cpu)
	mem, _ := task.MemMB.GetInt(env)
	require.EqualValues(t, 8192, mem)
	disk, _ := task.DiskMB.GetInt(env)
	require.EqualValues(t, 4096, disk)
	threads, _ := task.Threads.GetInt(env)
	require.EqualValues(t, 1, threads)
	ts, _ := task.TimeS.GetInt(env)
	require.EqualValues(t, 3600, ts)
	gpu, ok := task.GPU.GetInt(env)
	require.True(t, ok)
	require.EqualValues(t, 0, gpu)
	require.Equal(t, "python:3.9", task.Container.GetString(env))
	require.Equal(t, "/work", task.Workdir.GetString(env))
	require.Equal(t, "python x.py", task.Command.GetString(env))
}

func TestNonInteractiveUsesDefaults(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("job")
	w.AddTask(task)

	require.NoError(t, NonInteractive{}.PromptForMissingValues(w, "import", ir.EnvSharedFilesystem))

	env := ir.EnvSharedFilesystem
	cpu, _ := task.CPU.GetInt(env)
	require.EqualValues(t, 1, cpu)
	mem, _ := task.MemMB.GetInt(env)
	require.EqualValues(t, 4096, mem)
	gpu, _ := task.GPU.GetInt(env)
	require.EqualValues(t, 0, gpu)
	require.True(t, task.Container.IsEmpty(), "default env kind is none")
	require.True(t, task.Command.IsEmpty(), "optional command defaults to unset")
}

func TestPromptSkipsSetFields(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("job")
	task.CPU.Set(int64(16), ir.EnvSharedFilesystem)
	w.AddTask(task)

	// First scripted answer should land on mem_mb because cpu is set.
	p := &Scripted{Responses: []string{"2048"}}
	require.NoError(t, p.PromptForMissingValues(w, "export", ir.EnvSharedFilesystem))

	env := ir.EnvSharedFilesystem
	cpu, _ := task.CPU.GetInt(env)
	require.EqualValues(t, 16, cpu)
	mem, _ := task.MemMB.GetInt(env)
	require.EqualValues(t, 2048, mem)
}

func TestPromptSkipsEnvRefWhenContainerSet(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("job")
	task.Container.Set("python:3.11", ir.EnvSharedFilesystem)
	w.AddTask(task)

	require.NoError(t, NonInteractive{}.PromptForMissingValues(w, "import", ir.EnvSharedFilesystem))
	require.Equal(t, "python:3.11", task.Container.GetString(ir.EnvSharedFilesystem))
	require.True(t, task.Conda.IsEmpty())
}

func TestScriptedInvalidFallsBackAfterRetries(t *testing.T) {
	w := ir.NewWorkflow("w")
	task := ir.NewTask("job")
	w.AddTask(task)

	// Invalid cpu answers exhaust retries and fall back to the default.
	p := &Scripted{Responses: []string{"zero", "-3", "x"}}
	require.NoError(t, p.PromptForMissingValues(w, "import", ir.EnvSharedFilesystem))
	cpu, _ := task.CPU.GetInt(ir.EnvSharedFilesystem)
	require.EqualValues(t, 1, cpu)
}

func TestGetRespectsNoPromptEnv(t *testing.T) {
	t.Setenv("WF2WF_NO_PROMPT", "1")
	if _, ok := Get(true).(NonInteractive); !ok {
		t.Fatal("WF2WF_NO_PROMPT=1 must disable the interactive prompter")
	}
}
