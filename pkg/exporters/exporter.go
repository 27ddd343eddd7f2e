// Package exporters emits target-format artifacts from IR. Format adapters
// only generate output; loss preparation, inference, prompting, loss
// detection, and side-car writing are sequenced by the shared orchestrator.
package exporters

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/csmcal/wf2wf/pkg/infer"
	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
	"github.com/csmcal/wf2wf/pkg/prompt"
	"go.uber.org/zap"
)

// Options pass through per-invocation export settings.
type Options struct {
	Verbose bool
	// Extra carries adapter-specific settings (e.g. "inline_submit" for
	// DAGMan, "cwl_sibling" for BCO).
	Extra map[string]any
}

// Adapter is the narrow interface a format exporter implements.
type Adapter interface {
	// Format returns the canonical format name.
	Format() string
	// DefaultExtension is the extension of the primary artifact (".dag").
	DefaultExtension() string
	// GenerateOutput emits the primary artifact plus auxiliary files. The
	// tracker is available for adapter-detected losses discovered during
	// emission (beyond the shared per-format loss tables).
	GenerateOutput(w *ir.Workflow, outputPath string, tracker *loss.Tracker, opts Options) error
}

// ExportError wraps an adapter failure with target context.
type ExportError struct {
	Path   string
	Format string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Orchestrator sequences the shared export pipeline around an adapter.
type Orchestrator struct {
	Interactive bool
	TargetEnv   string
	Logger      *zap.Logger
	Prompter    prompt.Interface
}

// NewOrchestrator creates an orchestrator with defaults filled in.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{Logger: zap.NewNop(), Prompter: prompt.NonInteractive{}}
}

// Export runs the full pipeline: loss prepare → inference → prompting →
// loss detection → emission → side-car write. The workflow's in-memory
// loss_map is replaced with the emitted entries.
func (o *Orchestrator) Export(a Adapter, w *ir.Workflow, outputPath string, opts Options) error {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	env := o.TargetEnv
	if env == "" {
		env = defaultEnvironmentFor(a.Format())
	}

	tracker := loss.NewTracker()
	tracker.Prepare(w.LossMap)
	tracker.Reset()

	infer.New(log).Fill(w, a.Format(), env)

	if o.Interactive {
		p := o.Prompter
		if p == nil {
			p = prompt.Get(true)
		}
		if err := p.PromptForMissingValues(w, "export", env); err != nil {
			return &ExportError{Path: outputPath, Format: a.Format(), Err: err}
		}
	}

	detectAndRecordLosses(w, a.Format(), env, tracker)

	if dir := filepath.Dir(outputPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &ExportError{Path: outputPath, Format: a.Format(), Err: fmt.Errorf("create output directory: %w", err)}
		}
	}
	if err := a.GenerateOutput(w, outputPath, tracker, opts); err != nil {
		return &ExportError{Path: outputPath, Format: a.Format(), Err: err}
	}

	// The side-car checksum is taken over the emitted artifact's bytes:
	// that is what a later import of the artifact will hash when deciding
	// whether the side-car is still current.
	artifact, err := os.ReadFile(outputPath)
	if err != nil {
		return &ExportError{Path: outputPath, Format: a.Format(), Err: fmt.Errorf("read emitted artifact for checksum: %w", err)}
	}
	if err := tracker.WriteSidecar(outputPath, a.Format(), ir.ChecksumBytes(artifact), nil); err != nil {
		return &ExportError{Path: outputPath, Format: a.Format(), Err: err}
	}

	w.LossMap = tracker.Entries()
	log.Debug("export complete",
		zap.String("format", a.Format()),
		zap.String("output", outputPath),
		zap.Int("loss_entries", tracker.Len()))
	return nil
}

// defaultEnvironmentFor picks the environment an exporter reads values for.
func defaultEnvironmentFor(format string) string {
	switch format {
	case ir.FormatDAGMan:
		return ir.EnvDistributedComputing
	default:
		return ir.EnvSharedFilesystem
	}
}

var registry = map[string]Adapter{}

// Register adds an adapter; called from adapter init functions.
func Register(a Adapter) { registry[a.Format()] = a }

// Get returns the adapter for a format name.
func Get(format string) (Adapter, error) {
	a, ok := registry[format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q (supported: %s)", format, strings.Join(Formats(), ", "))
	}
	return a, nil
}

// Formats lists registered format names, sorted.
func Formats() []string {
	out := make([]string, 0, len(registry))
	for f := range registry {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// sanitizeName renders a workflow or task name safe for target-format
// identifiers.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" {
		return "workflow"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}
