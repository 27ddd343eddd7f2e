package loss

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/csmcal/wf2wf/pkg/ir"
)

// SidecarExt is appended to an artifact path to name its loss side-car.
const SidecarExt = ".loss.json"

// Version is the tool version stamped into loss documents. Overridden at
// build time via ldflags.
var Version = "dev"

// Document is the loss side-car written next to an emitted artifact.
type Document struct {
	Wf2wfVersion          string         `json:"wf2wf_version"`
	TargetEngine          string         `json:"target_engine"`
	SourceChecksum        string         `json:"source_checksum"`
	Timestamp             string         `json:"timestamp"`
	Entries               []ir.LossEntry `json:"entries"`
	Summary               Summary        `json:"summary"`
	EnvironmentAdaptation map[string]any `json:"environment_adaptation,omitempty"`
}

// NewDocument assembles a side-car document from the tracker's entries.
func (t *Tracker) NewDocument(targetEngine, sourceChecksum string, envAdaptation map[string]any) *Document {
	entries := t.Entries()
	if entries == nil {
		entries = []ir.LossEntry{}
	}
	return &Document{
		Wf2wfVersion:          Version,
		TargetEngine:          targetEngine,
		SourceChecksum:        sourceChecksum,
		Timestamp:             time.Now().UTC().Format(time.RFC3339),
		Entries:               entries,
		Summary:               Summarize(entries),
		EnvironmentAdaptation: envAdaptation,
	}
}

// Write atomically writes the document to path (temp file + rename).
func (d *Document) Write(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create side-car directory: %w", err)
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode loss document: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write loss side-car: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename loss side-car: %w", err)
	}
	return nil
}

// WriteSidecar writes the tracker's entries as a side-car next to the given
// artifact path.
func (t *Tracker) WriteSidecar(artifactPath, targetEngine, sourceChecksum string, envAdaptation map[string]any) error {
	return t.NewDocument(targetEngine, sourceChecksum, envAdaptation).Write(artifactPath + SidecarExt)
}

// ReadDocument loads a side-car document. Malformed documents return an error
// that callers treat as a warning (the side-car is ignored, never fatal).
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("malformed loss side-car %s: %w", path, err)
	}
	return &d, nil
}

// SidecarPath returns the side-car path for an artifact.
func SidecarPath(artifactPath string) string { return artifactPath + SidecarExt }
