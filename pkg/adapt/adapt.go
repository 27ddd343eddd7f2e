// Package adapt translates environment-specific values between execution
// environments. A strategy appends "adapted" bindings for the target
// environment and never removes source bindings; every change it makes is
// also recorded in the conversion's loss tracker with origin "wf2wf".
package adapt

import (
	"fmt"

	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
)

// Strategy adapts a single field value from a source environment for a
// target environment.
type Strategy interface {
	// SourceEnv and TargetEnv name the environment pair this strategy serves.
	SourceEnv() string
	TargetEnv() string
	// AdaptResourceValue derives the target-environment value for field.
	// Returning (nil, false) means the value carries over unchanged.
	AdaptResourceValue(field string, sourceValue any) (any, bool)
	// ExtraFields returns fixed target-environment settings this strategy
	// imposes regardless of source values (e.g. staging flags).
	ExtraFields() map[string]any
	// AdaptationType names the transition for loss records.
	AdaptationType() string
}

// registry of available strategies, keyed by "source→target".
var strategies = map[string]Strategy{}

// Register adds a strategy to the registry.
func Register(s Strategy) {
	strategies[s.SourceEnv()+"→"+s.TargetEnv()] = s
}

// For returns the strategy registered for a source/target environment pair.
func For(sourceEnv, targetEnv string) (Strategy, error) {
	s, ok := strategies[sourceEnv+"→"+targetEnv]
	if !ok {
		return nil, fmt.Errorf("no adaptation strategy for %s → %s", sourceEnv, targetEnv)
	}
	return s, nil
}

// resourceFields are the env fields a strategy may rescale.
var resourceFields = []string{"cpu", "mem_mb", "disk_mb", "gpu", "gpu_mem_mb", "time_s", "threads", "max_runtime", "retry_count", "retry_delay"}

// AdaptValue appends a binding for the target environment derived from the
// source environment using the strategy. Pre-existing bindings are preserved.
func AdaptValue(ev *ir.EnvValue, field string, s Strategy) (changed bool, oldValue, newValue any) {
	src := ev.Get(s.SourceEnv())
	if src == nil {
		return false, nil, nil
	}
	if ev.IsSetFor(s.TargetEnv()) {
		return false, nil, nil
	}
	adapted, ok := s.AdaptResourceValue(field, src)
	if !ok {
		adapted = src
	}
	ev.SetWithMethod(adapted, s.TargetEnv(), ir.SourceAdapted, 0.8)
	return ok, src, adapted
}

// AdaptWorkflow adapts every task of the workflow from the strategy's source
// environment to its target environment, recording each change in the
// tracker. Source bindings are never modified.
func AdaptWorkflow(w *ir.Workflow, s Strategy, tracker *loss.Tracker) {
	details := map[string]any{}
	for _, id := range w.TaskIDs() {
		task := w.Tasks[id]
		changes := AdaptTask(task, s, tracker)
		if changes > 0 {
			details[id] = changes
		}
	}
	if w.ExecutionModel.Get(s.SourceEnv()) != nil && !w.ExecutionModel.IsSetFor(s.TargetEnv()) {
		w.ExecutionModel.SetWithMethod(modelForEnv(s.TargetEnv()), s.TargetEnv(), ir.SourceAdapted, 0.8)
	}
	if tracker != nil && len(details) > 0 {
		tracker.RecordEnvironmentAdaptation(s.SourceEnv(), s.TargetEnv(), s.AdaptationType(), details)
	}
}

// AdaptTask adapts a single task and returns the number of changed fields.
func AdaptTask(task *ir.Task, s Strategy, tracker *loss.Tracker) int {
	changes := 0
	for _, field := range resourceFields {
		ev := task.EnvField(field)
		changed, oldV, newV := AdaptValue(ev, field, s)
		if changed {
			changes++
			if tracker != nil {
				tracker.RecordAdaptedField(task.ID, field, oldV, newV, s.SourceEnv(), s.TargetEnv(),
					fmt.Sprintf("%s adaptation scaled %s", s.AdaptationType(), field))
			}
		}
	}
	for field, value := range s.ExtraFields() {
		ev := task.EnvField(field)
		if ev == nil || ev.IsSetFor(s.TargetEnv()) {
			continue
		}
		old := ev.Get(s.SourceEnv())
		ev.SetWithMethod(value, s.TargetEnv(), ir.SourceAdapted, 0.9)
		changes++
		if tracker != nil {
			tracker.RecordAdaptedField(task.ID, field, old, value, s.SourceEnv(), s.TargetEnv(),
				fmt.Sprintf("%s requires %s=%v", s.AdaptationType(), field, value))
		}
	}
	// Environment references (container, conda, workdir) carry over as-is.
	for _, field := range []string{"container", "conda", "workdir", "env_vars", "modules", "command", "script"} {
		ev := task.EnvField(field)
		if src := ev.Get(s.SourceEnv()); src != nil && !ev.IsSetFor(s.TargetEnv()) {
			ev.SetWithMethod(src, s.TargetEnv(), ir.SourceAdapted, 1.0)
		}
	}
	return changes
}

func modelForEnv(env string) string {
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
	return ir.ModelShared
}
