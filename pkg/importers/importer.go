// Package importers turns source workflow files into IR. Format adapters are
// pure parsers: they produce a parse tree and build an IR skeleton, while all
// enrichment (side-car reinjection, inference, environment handling,
// prompting, validation) is sequenced by the shared orchestrator.
package importers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/csmcal/wf2wf/pkg/environ"
	"github.com/csmcal/wf2wf/pkg/infer"
	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
	"github.com/csmcal/wf2wf/pkg/prompt"
	"go.uber.org/zap"
)

// Options pass through per-invocation import settings.
type Options struct {
	Verbose bool
	// Extra carries adapter-specific settings.
	Extra map[string]any
}

// Adapter is the narrow interface a format importer implements.
type Adapter interface {
	// Format returns the canonical format name (ir.Format*).
	Format() string
	// Extensions lists filename patterns this adapter claims, lowercase
	// (".smk", "snakefile").
	Extensions() []string
	// Parse reads the source into a format-specific parse tree.
	Parse(path string, opts Options) (any, error)
	// BuildSkeleton turns the parse tree into an IR skeleton: tasks, edges,
	// inputs/outputs and metadata only.
	BuildSkeleton(parsed any, path string) (*ir.Workflow, error)
}

// ImportError wraps an adapter or validation failure with source context.
type ImportError struct {
	Path   string
	Format string
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// AutoEnv modes for environment image handling during import.
const (
	AutoEnvOff   = "off"
	AutoEnvBuild = "build"
	AutoEnvReuse = "reuse"
)

// Orchestrator sequences the shared import pipeline around an adapter.
type Orchestrator struct {
	Interactive bool
	TargetEnv   string
	Logger      *zap.Logger
	Prompter    prompt.Interface
	EnvManager  *environ.Manager
	AutoEnv     string
	BuildOpts   environ.BuildOpts
}

// NewOrchestrator creates an orchestrator with defaults filled in.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		Logger:     zap.NewNop(),
		Prompter:   prompt.NonInteractive{},
		EnvManager: environ.NewManager(environ.Opts{}),
		AutoEnv:    AutoEnvOff,
	}
}

// Import runs the full pipeline: parse → skeleton → side-car → inference →
// environments → prompting → validation.
func (o *Orchestrator) Import(ctx context.Context, a Adapter, path string, opts Options) (*ir.Workflow, error) {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	parsed, err := a.Parse(path, opts)
	if err != nil {
		return nil, &ImportError{Path: path, Format: a.Format(), Err: err}
	}
	w, err := a.BuildSkeleton(parsed, path)
	if err != nil {
		return nil, &ImportError{Path: path, Format: a.Format(), Err: err}
	}

	meta := w.Meta()
	meta.SourceFormat = a.Format()
	meta.SourceFile = path
	log.Debug("built workflow skeleton",
		zap.String("format", a.Format()),
		zap.Int("tasks", len(w.Tasks)),
		zap.Int("edges", len(w.Edges)))

	if err := loss.DetectAndApplySidecar(w, path); err != nil {
		return nil, &ImportError{Path: path, Format: a.Format(), Err: err}
	}

	infer.New(log).Fill(w, a.Format(), o.TargetEnv)

	if o.EnvManager != nil {
		o.EnvManager.Detect(w, a.Format())
		o.EnvManager.InferMissing(w, a.Format())
		if o.AutoEnv == AutoEnvBuild || o.AutoEnv == AutoEnvReuse {
			if err := o.EnvManager.BuildAll(ctx, w, filepath.Dir(path), o.BuildOpts); err != nil {
				return nil, &ImportError{Path: path, Format: a.Format(), Err: err}
			}
		}
	}

	if o.Interactive {
		p := o.Prompter
		if p == nil {
			p = prompt.Get(true)
		}
		env := o.TargetEnv
		if env == "" {
			env = ir.EnvSharedFilesystem
		}
		if err := p.PromptForMissingValues(w, "import", env); err != nil {
			return nil, &ImportError{Path: path, Format: a.Format(), Err: err}
		}
	}

	if verrs := w.Validate(); hasErrors(verrs) {
		return nil, &ImportError{Path: path, Format: a.Format(), Err: fmt.Errorf("invalid workflow: %s", joinIssues(verrs))}
	}
	return w, nil
}

func hasErrors(verrs []*ir.ValidationError) bool {
	for _, e := range verrs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

func joinIssues(verrs []*ir.ValidationError) string {
	var parts []string
	for _, e := range verrs {
		if e.Severity == "error" {
			parts = append(parts, e.Error())
		}
	}
	const max = 5
	if len(parts) > max {
		parts = append(parts[:max], fmt.Sprintf("... and %d more", len(parts)-max))
	}
	return strings.Join(parts, "; ")
}
