// Package environ detects, infers, and (optionally) builds the container or
// conda environments a workflow's tasks reference. Builds are cached in a
// content-addressed index keyed by the conda lock hash so identical
// environments are never built twice.
package environ

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
	"go.uber.org/zap"
)

// Manager owns environment detection, inference and builds.
type Manager struct {
	exec   Executor
	log    *zap.Logger
	dryRun bool
}

// Opts configure a Manager.
type Opts struct {
	Executor Executor
	Logger   *zap.Logger
	// DryRun writes stubs instead of invoking external tools. Also enabled
	// by WF2WF_ENVIRON_DRYRUN=1.
	DryRun bool
}

// NewManager creates a manager. Zero-value options pick real execution and a
// nop logger.
func NewManager(opts Opts) *Manager {
	m := &Manager{exec: opts.Executor, log: opts.Logger, dryRun: opts.DryRun}
	if m.exec == nil {
		m.exec = RealExecutor{}
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if os.Getenv("WF2WF_ENVIRON_DRYRUN") == "1" {
		m.dryRun = true
	}
	return m
}

// TaskEnvironment classifies one task's environment specification.
type TaskEnvironment struct {
	TaskID          string
	Container       string // explicit container image, if any
	Conda           string // explicit conda env name or file, if any
	EnvironmentFile string // conda set via a file reference
}

// DetectionReport summarizes environment usage across a workflow.
type DetectionReport struct {
	SourceFormat        string
	TotalTasks          int
	TasksWith           int
	TasksWithout        int
	Containers          []string
	CondaEnvironments   []string
	EnvironmentFiles    []string
	MissingEnvironments []string // task ids with no environment at all
	PerTask             map[string]TaskEnvironment
}

// Detect classifies each task as having an explicit container, an explicit
// conda environment, an environment file, or nothing. Results are also
// stored under metadata.environment_metadata for downstream consumers.
func (m *Manager) Detect(w *ir.Workflow, sourceFormat string) *DetectionReport {
	r := &DetectionReport{
		SourceFormat: sourceFormat,
		TotalTasks:   len(w.Tasks),
		PerTask:      map[string]TaskEnvironment{},
	}
	seenContainer := map[string]bool{}
	seenConda := map[string]bool{}
	seenFile := map[string]bool{}
	for _, id := range w.TaskIDs() {
		task := w.Tasks[id]
		te := TaskEnvironment{TaskID: id}
		for _, env := range append([]string{ir.EnvSharedFilesystem}, task.Container.AllEnvironments()...) {
			if c := task.Container.GetString(env); c != "" {
				te.Container = c
				break
			}
		}
		for _, env := range append([]string{ir.EnvSharedFilesystem}, task.Conda.AllEnvironments()...) {
			if c := task.Conda.GetString(env); c != "" {
				te.Conda = c
				if IsEnvironmentFile(c) {
					te.EnvironmentFile = c
				}
				break
			}
		}
		r.PerTask[id] = te
		switch {
		case te.Container != "":
			r.TasksWith++
			if !seenContainer[te.Container] {
				seenContainer[te.Container] = true
				r.Containers = append(r.Containers, te.Container)
			}
		case te.Conda != "":
			r.TasksWith++
			if !seenConda[te.Conda] {
				seenConda[te.Conda] = true
				r.CondaEnvironments = append(r.CondaEnvironments, te.Conda)
			}
			if te.EnvironmentFile != "" && !seenFile[te.EnvironmentFile] {
				seenFile[te.EnvironmentFile] = true
				r.EnvironmentFiles = append(r.EnvironmentFiles, te.EnvironmentFile)
			}
		default:
			r.TasksWithout++
			r.MissingEnvironments = append(r.MissingEnvironments, id)
		}
	}

	meta := w.Meta()
	if meta.EnvironmentMetadata == nil {
		meta.EnvironmentMetadata = map[string]map[string]any{}
	}
	meta.EnvironmentMetadata["detection"] = map[string]any{
		"source_format":              sourceFormat,
		"total_tasks":                int64(r.TotalTasks),
		"tasks_with_environments":    int64(r.TasksWith),
		"tasks_without_environments": int64(r.TasksWithout),
		"missing_environments":       toAnySlice(r.MissingEnvironments),
	}
	return r
}

// IsEnvironmentFile reports whether a conda reference is a file path rather
// than a named environment or image.
func IsEnvironmentFile(ref string) bool {
	if ref == "" {
		return false
	}
	if strings.Contains(ref, "://") || strings.Contains(ref, ":") {
		return false
	}
	base := filepath.Base(ref)
	switch {
	case strings.HasSuffix(base, ".yml"), strings.HasSuffix(base, ".yaml"),
		strings.HasSuffix(base, ".lock"), base == "requirements.txt":
		return true
	}
	return false
}

// containerInferences maps command substrings to container images, first
// match wins. Ordering matters: specific tools before generic interpreters.
var containerInferences = []struct {
	keywords []string
	image    string
}{
	{[]string{"tensorflow"}, "tensorflow/tensorflow:latest"},
	{[]string{"pytorch"}, "pytorch/pytorch:latest"},
	{[]string{"blast"}, "biocontainers/blast:latest"},
	{[]string{"bwa"}, "biocontainers/bwa:latest"},
	{[]string{"samtools"}, "biocontainers/samtools:latest"},
	{[]string{"bcftools"}, "biocontainers/bcftools:latest"},
	{[]string{"rscript", "r "}, "rocker/r-ver:4.3.1"},
	{[]string{"python", "pip "}, "python:3.11"},
	{[]string{"java", "mvn", "gradle"}, "eclipse-temurin:17"},
	{[]string{"node", "npm "}, "node:20-slim"},
}

// InferContainerFromCommand guesses an image for a command, defaulting to a
// plain ubuntu for anything unrecognized. Empty commands infer nothing.
func InferContainerFromCommand(command string) string {
	if strings.TrimSpace(command) == "" {
		return ""
	}
	c := strings.ToLower(command)
	for _, inf := range containerInferences {
		for _, kw := range inf.keywords {
			if strings.Contains(c, kw) {
				return inf.image
			}
		}
	}
	return "ubuntu:22.04"
}

// condaInferences maps command substrings to conda package sets.
var condaInferences = []struct {
	keywords []string
	packages []string
}{
	{[]string{"python"}, []string{"python=3.11", "pip"}},
	{[]string{"rscript"}, []string{"r-base=4.3"}},
	{[]string{"bwa"}, []string{"bwa"}},
	{[]string{"samtools"}, []string{"samtools"}},
	{[]string{"blast"}, []string{"blast"}},
}

// InferCondaPackagesFromCommand guesses a conda package list for a command.
func InferCondaPackagesFromCommand(command string) []string {
	c := strings.ToLower(command)
	for _, inf := range condaInferences {
		for _, kw := range inf.keywords {
			if strings.Contains(c, kw) {
				return inf.packages
			}
		}
	}
	return nil
}

// InferMissing fills container references for tasks that have no environment
// at all, using command heuristics. Explicit values are never touched.
func (m *Manager) InferMissing(w *ir.Workflow, sourceFormat string) int {
	report := m.Detect(w, sourceFormat)
	inferred := 0
	for _, id := range report.MissingEnvironments {
		task := w.Tasks[id]
		command := task.Command.GetString(ir.EnvSharedFilesystem)
		if command == "" {
			for _, env := range task.Command.AllEnvironments() {
				if command = task.Command.GetString(env); command != "" {
					break
				}
			}
		}
		image := InferContainerFromCommand(command)
		if image == "" {
			continue
		}
		task.Container.SetWithMethod(image, ir.EnvSharedFilesystem, ir.SourceInferred, 0.5)
		inferred++
		m.log.Debug("inferred container", zap.String("task", id), zap.String("image", image))
	}
	return inferred
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
