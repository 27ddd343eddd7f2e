package environ

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SIFStubMagic is the payload written at the head of placeholder SIF files
// in dry-run mode, so tests and downstream tools can recognize them.
const SIFStubMagic = "WF2WF-SIF-STUB"

// ConvertToSIF converts an OCI image to a Singularity/Apptainer SIF file.
// Dry-run writes a placeholder with a well-known magic payload. Returns the
// SIF path.
func (m *Manager) ConvertToSIF(ctx context.Context, imageRef, sifDir string, opts BuildOpts) (string, error) {
	o := opts.withDefaults()
	if err := os.MkdirAll(sifDir, 0o755); err != nil {
		return "", fmt.Errorf("create sif dir: %w", err)
	}
	out := filepath.Join(sifDir, sanitizeRef(imageRef)+".sif")

	if m.dryRun || !m.exec.LookTool("apptainer") {
		if !m.dryRun && o.RequireTools {
			return "", &ExternalToolError{Tool: "apptainer", Err: fmt.Errorf("not found")}
		}
		if err := os.WriteFile(out, []byte(SIFStubMagic+" "+imageRef+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("write sif stub: %w", err)
		}
		return out, nil
	}

	if _, err := m.exec.Run(ctx, o.Timeout, "apptainer", "build", "--force", out, "docker-daemon://"+imageRef); err != nil {
		return "", fmt.Errorf("apptainer build: %w", err)
	}
	return out, nil
}
