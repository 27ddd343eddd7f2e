package bco

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/csmcal/wf2wf/pkg/environ"
	"github.com/stretchr/testify/require"
)

func minimalBCO() map[string]any {
	return map[string]any{
		"object_id":    "urn:uuid:00000000-0000-0000-0000-000000000001",
		"spec_version": SpecVersionURL,
		"etag":         strings.Repeat("0", 64),
		"provenance_domain": map[string]any{
			"name":     "toy",
			"version":  "1.0",
			"created":  "2024-01-01T00:00:00Z",
			"modified": "2024-01-01T00:00:00Z",
		},
		"usability_domain": []any{"toy workflow"},
		"description_domain": map[string]any{
			"pipeline_steps": []any{
				map[string]any{"step_number": 1, "name": "align"},
			},
		},
		"io_domain": map[string]any{
			"input_subdomain":  []any{},
			"output_subdomain": []any{},
		},
	}
}

func writeBCO(t *testing.T, fields map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "obj.json")
	data, err := json.MarshalIndent(fields, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestValidateMinimalBCO(t *testing.T) {
	doc := &Document{Fields: minimalBCO()}
	issues, err := Validate(doc)
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestValidateMissingDomain(t *testing.T) {
	fields := minimalBCO()
	delete(fields, "provenance_domain")
	issues, err := Validate(&Document{Fields: fields})
	require.NoError(t, err)
	require.NotEmpty(t, issues)
}

func TestEtagStableAndSensitive(t *testing.T) {
	a := &Document{Fields: minimalBCO()}
	b := &Document{Fields: minimalBCO()}
	ea, err := a.ComputeEtag()
	require.NoError(t, err)
	eb, err := b.ComputeEtag()
	require.NoError(t, err)
	require.Equal(t, ea, eb)

	b.Fields["usability_domain"] = []any{"changed"}
	eb2, _ := b.ComputeEtag()
	require.NotEqual(t, ea, eb2)

	// etag and object_id do not feed the etag itself
	a.Fields["etag"] = "something-else"
	ea2, _ := a.ComputeEtag()
	require.Equal(t, ea, ea2)
}

// stubExecutor reports every tool as missing so signing uses the offline stub.
type stubExecutor struct{}

func (stubExecutor) LookTool(string) bool { return false }
func (stubExecutor) Run(ctx context.Context, timeout time.Duration, tool string, args ...string) (*environ.CommandResult, error) {
	return &environ.CommandResult{}, nil
}

func TestSignFlow(t *testing.T) {
	path := writeBCO(t, minimalBCO())
	keyPath := filepath.Join(filepath.Dir(path), "key.pem")
	require.NoError(t, os.WriteFile(keyPath, []byte("stub key"), 0o600))

	result, err := Sign(context.Background(), path, keyPath, stubExecutor{}, "test")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(result.Etag, "sha256:"), result.Etag)
	require.FileExists(t, result.SigPath)
	require.FileExists(t, result.IntotoPath)
	require.Equal(t, path+".sig", result.SigPath)
	require.Equal(t, path+".intoto.json", result.IntotoPath)

	signed, err := Load(path)
	require.NoError(t, err)
	etag, _ := signed.Fields["etag"].(string)
	require.True(t, strings.HasPrefix(etag, "sha256:"))

	ext, ok := signed.Fields["extension_domain"].([]any)
	require.True(t, ok)
	var found bool
	for _, e := range ext {
		if em, ok := e.(map[string]any); ok && em["namespace"] == ExtensionNamespaceProvenance {
			found = true
		}
	}
	require.True(t, found, "signing must append a wf2wf:provenance extension entry")

	var statement map[string]any
	data, err := os.ReadFile(result.IntotoPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &statement))
	require.Equal(t, "https://in-toto.io/Statement/v1", statement["_type"])
}

func TestDiffPerDomain(t *testing.T) {
	a := &Document{Fields: minimalBCO()}
	b := &Document{Fields: minimalBCO()}
	diff, err := Diff(a, b)
	require.NoError(t, err)
	require.Empty(t, diff)

	b.Fields["usability_domain"] = []any{"new purpose"}
	diff, err = Diff(a, b)
	require.NoError(t, err)
	require.Contains(t, diff, "usability_domain")
	require.Contains(t, diff, "-")
	require.Contains(t, diff, "+")
	require.NotContains(t, diff, "provenance_domain")
}
