package importers

import (
	"fmt"

	"github.com/csmcal/wf2wf/pkg/ir"
)

// IRImporter loads a workflow already serialized as IR JSON.
type IRImporter struct{}

func init() { Register(IRImporter{}) }

func (IRImporter) Format() string       { return ir.FormatIR }
func (IRImporter) Extensions() []string { return []string{".json"} }

func (IRImporter) Parse(path string, opts Options) (any, error) {
	return ir.LoadFile(path)
}

func (IRImporter) BuildSkeleton(parsed any, path string) (*ir.Workflow, error) {
	w, ok := parsed.(*ir.Workflow)
	if !ok {
		return nil, fmt.Errorf("unexpected parse tree type %T", parsed)
	}
	return w, nil
}
