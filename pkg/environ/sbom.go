package environ

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GenerateSBOM produces a software bill of materials for an image using
// syft. When syft is missing or fails (and tools are not required), a stub
// SBOM recording the fallback is written instead so downstream steps keep a
// consistent artifact to point at. Returns the SBOM path.
func (m *Manager) GenerateSBOM(ctx context.Context, imageRef, outDir string, opts BuildOpts) (string, error) {
	o := opts.withDefaults()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create sbom dir: %w", err)
	}
	out := filepath.Join(outDir, sanitizeRef(imageRef)+".sbom.json")

	if m.dryRun || !m.exec.LookTool("syft") {
		if !m.dryRun && o.RequireTools {
			return "", &ExternalToolError{Tool: "syft", Err: fmt.Errorf("not found")}
		}
		return out, writeStubSBOM(out, imageRef, "syft unavailable")
	}

	res, err := m.exec.Run(ctx, o.Timeout, "syft", "packages", imageRef, "-o", "spdx-json")
	if err != nil {
		if o.RequireTools {
			return "", fmt.Errorf("syft: %w", err)
		}
		m.log.Warn("syft failed, writing stub SBOM", zap.String("image", imageRef), zap.Error(err))
		return out, writeStubSBOM(out, imageRef, "syft failed: "+err.Error())
	}
	if err := os.WriteFile(out, res.Stdout, 0o644); err != nil {
		return "", fmt.Errorf("write sbom: %w", err)
	}
	return out, nil
}

func writeStubSBOM(path, imageRef, reason string) error {
	stub := map[string]any{
		"spdxVersion": "SPDX-2.3",
		"name":        imageRef,
		"comment":     "wf2wf stub SBOM: " + reason,
		"created":     time.Now().UTC().Format(time.RFC3339),
		"packages":    []any{},
	}
	data, err := json.MarshalIndent(stub, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func sanitizeRef(ref string) string {
	r := strings.NewReplacer("/", "_", ":", "_", "@", "_")
	return r.Replace(ref)
}
