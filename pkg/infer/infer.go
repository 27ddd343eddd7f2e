// Package infer populates missing per-environment values when the source
// format was silent. Rules are table-driven and apply in a fixed order per
// (task, field, environment): command heuristics, file-extension heuristics,
// environment defaults, then execution-model derivation. Inference never
// overwrites an explicit or adapted value.
package infer

import (
	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/resource"
	"go.uber.org/zap"
)

// Engine fills missing environment-specific values on a workflow.
type Engine struct {
	log *zap.Logger
}

// New creates an inference engine. A nil logger disables logging.
func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log}
}

// Fill infers missing values for every task and the workflow execution
// model. targetEnv may be empty, in which case the environments implied by
// the source format are filled.
func (e *Engine) Fill(w *ir.Workflow, sourceFormat, targetEnv string) {
	envs := TargetEnvironmentsForFormat(sourceFormat)
	if targetEnv != "" {
		envs = []string{targetEnv}
	}
	for _, id := range w.TaskIDs() {
		task := w.Tasks[id]
		for _, env := range envs {
			e.fillTask(task, env)
		}
	}
	for _, env := range envs {
		if w.ExecutionModel.Get(env) == nil {
			model := DeriveExecutionModel(w, sourceFormat, env)
			w.ExecutionModel.SetWithMethod(model, env, ir.SourceInferred, 0.7)
			e.log.Debug("inferred execution model", zap.String("environment", env), zap.String("model", model))
		}
	}
}

func (e *Engine) fillTask(task *ir.Task, env string) {
	command := task.Command.GetString(env)
	if command == "" {
		command = task.Command.GetString(ir.EnvSharedFilesystem)
	}
	script := task.Script.GetString(env)
	if script == "" {
		script = task.Script.GetString(ir.EnvSharedFilesystem)
	}
	spec := resource.InferFromCommand(command, script)

	setInt := func(field string, heuristic *int64, table map[string]int64) {
		ev := task.EnvField(field)
		if ev.IsSetFor(env) {
			return
		}
		if heuristic != nil {
			ev.SetWithMethod(*heuristic, env, ir.SourceInferred, 0.6)
			return
		}
		if v, ok := table[env]; ok && v != 0 {
			ev.SetWithMethod(v, env, ir.SourceInferred, 0.4)
		}
	}

	setInt("cpu", spec.CPU, defaultCPU)
	setInt("mem_mb", spec.MemMB, defaultMemMB)
	setInt("disk_mb", spec.DiskMB, defaultDiskMB)
	setInt("threads", spec.Threads, nil)
	if !task.GPU.IsSetFor(env) && spec.GPU != nil {
		task.GPU.SetWithMethod(*spec.GPU, env, ir.SourceInferred, 0.6)
		if spec.GPUMemMB != nil {
			task.GPUMemMB.SetWithMethod(*spec.GPUMemMB, env, ir.SourceInferred, 0.6)
		}
	}

	// Error-handling defaults.
	if !task.RetryCount.IsSetFor(env) {
		task.RetryCount.SetWithMethod(defaultRetryCount[env], env, ir.SourceInferred, 0.4)
	}
	if !task.RetryDelay.IsSetFor(env) {
		task.RetryDelay.SetWithMethod(defaultRetryDelayS[env], env, ir.SourceInferred, 0.4)
	}
	if !task.MaxRuntime.IsSetFor(env) {
		if v := defaultMaxRuntimeS[env]; v > 0 {
			task.MaxRuntime.SetWithMethod(v, env, ir.SourceInferred, 0.4)
		}
	}

	// File-transfer behaviour.
	if !task.FileTransferMode.IsSetFor(env) {
		task.FileTransferMode.SetWithMethod(defaultTransferMode[env], env, ir.SourceInferred, 0.4)
	}
	if !task.StagingRequired.IsSetFor(env) {
		task.StagingRequired.SetWithMethod(defaultStagingRequired[env], env, ir.SourceInferred, 0.4)
	}
	if !task.CleanupAfter.IsSetFor(env) {
		task.CleanupAfter.SetWithMethod(defaultCleanupAfter[env], env, ir.SourceInferred, 0.4)
	}
}

// DeriveExecutionModel classifies the runtime pattern of a workflow from its
// shape (task count, fan-out), the target environment, and the source format.
func DeriveExecutionModel(w *ir.Workflow, sourceFormat, env string) string {
	switch env {
	case ir.EnvDistributedComputing:
		return ir.ModelDistributed
	case ir.EnvCloudNative:
		return ir.ModelCloudNative
	case ir.EnvHybrid:
		return ir.ModelHybrid
	case ir.EnvEdge:
		return ir.ModelEdge
	}
	if len(w.Tasks) <= 1 {
		return ir.ModelSequential
	}
	for _, id := range w.TaskIDs() {
		if !w.Tasks[id].Scatter.IsEmpty() {
			return ir.ModelDynamic
		}
	}
	maxFanOut := 0
	for _, id := range w.TaskIDs() {
		if n := len(w.Children(id)); n > maxFanOut {
			maxFanOut = n
		}
	}
	if maxFanOut > 1 {
		return ir.ModelParallel
	}
	if sourceFormat == ir.FormatDAGMan {
		return ir.ModelDistributed
	}
	return ir.ModelPipeline
}
