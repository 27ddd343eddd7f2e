package exporters

import (
	"github.com/csmcal/wf2wf/pkg/ir"
	"github.com/csmcal/wf2wf/pkg/loss"
)

// IRExporter writes the workflow as IR JSON. Nothing is lost by definition.
type IRExporter struct{}

func init() { Register(IRExporter{}) }

func (IRExporter) Format() string           { return ir.FormatIR }
func (IRExporter) DefaultExtension() string { return ".json" }

func (IRExporter) GenerateOutput(w *ir.Workflow, outputPath string, tracker *loss.Tracker, opts Options) error {
	return w.SaveFile(outputPath)
}
