package bco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/csmcal/wf2wf/pkg/environ"
	"github.com/csmcal/wf2wf/pkg/ir"
)

// SignResult names the artifacts a signing run produced.
type SignResult struct {
	SigPath    string
	IntotoPath string
	Etag       string
}

// Sign updates the BCO's etag to the sha256 of the canonical document,
// appends a provenance extension entry, writes the updated BCO back, and
// produces "<bco>.sig" (openssl detached signature, or a stub when openssl
// is unavailable) plus "<bco>.intoto.json" (an in-toto statement binding the
// etag). Signing itself is delegated to the external tool; this function
// never holds key material.
func Sign(ctx context.Context, bcoPath, keyPath string, exec environ.Executor, version string) (*SignResult, error) {
	if exec == nil {
		exec = environ.RealExecutor{}
	}
	doc, err := Load(bcoPath)
	if err != nil {
		return nil, err
	}

	doc.AppendExtension(map[string]any{
		"extension_schema": "https://wf2wf.dev/schemas/provenance-extension.json",
		"namespace":        ExtensionNamespaceProvenance,
		"signed_at":        time.Now().UTC().Format(time.RFC3339),
		"tool":             "wf2wf " + version,
	})
	if err := doc.UpdateEtag(); err != nil {
		return nil, fmt.Errorf("compute etag: %w", err)
	}
	etag, _ := doc.Fields["etag"].(string)
	if err := doc.Save(bcoPath); err != nil {
		return nil, err
	}

	sigPath := bcoPath + ".sig"
	if exec.LookTool("openssl") {
		if _, err := exec.Run(ctx, 30*time.Second, "openssl", "dgst", "-sha256", "-sign", keyPath, "-out", sigPath, bcoPath); err != nil {
			return nil, fmt.Errorf("openssl sign: %w", err)
		}
	} else {
		// Offline stub keeps the artifact contract intact for pipelines
		// without openssl; verification will reject it.
		stub := fmt.Sprintf("wf2wf-stub-signature %s\n", etag)
		if err := os.WriteFile(sigPath, []byte(stub), 0o644); err != nil {
			return nil, fmt.Errorf("write signature stub: %w", err)
		}
	}

	intotoPath := bcoPath + ".intoto.json"
	if err := writeIntotoStatement(intotoPath, bcoPath, etag); err != nil {
		return nil, err
	}
	return &SignResult{SigPath: sigPath, IntotoPath: intotoPath, Etag: etag}, nil
}

// writeIntotoStatement emits an in-toto v1 statement binding the BCO file to
// its digest.
func writeIntotoStatement(path, bcoPath, etag string) error {
	data, err := os.ReadFile(bcoPath)
	if err != nil {
		return fmt.Errorf("read signed bco: %w", err)
	}
	fileDigest := ir.ChecksumBytes(data)
	statement := map[string]any{
		"_type":         "https://in-toto.io/Statement/v1",
		"predicateType": "https://wf2wf.dev/attestation/bco-signing/v1",
		"subject": []any{
			map[string]any{
				"name": bcoPath,
				"digest": map[string]any{
					"sha256": trimSha(fileDigest),
				},
			},
		},
		"predicate": map[string]any{
			"etag":      etag,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(statement); err != nil {
		return fmt.Errorf("encode in-toto statement: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write in-toto statement: %w", err)
	}
	return nil
}

func trimSha(checksum string) string {
	const prefix = "sha256:"
	if len(checksum) > len(prefix) && checksum[:len(prefix)] == prefix {
		return checksum[len(prefix):]
	}
	return checksum
}
