package importers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var registry = map[string]Adapter{}

// Register adds an adapter; called from adapter init functions.
func Register(a Adapter) { registry[a.Format()] = a }

// Get returns the adapter for a format name.
func Get(format string) (Adapter, error) {
	a, ok := registry[format]
	if !ok {
		return nil, fmt.Errorf("unsupported import format %q (supported: %s)", format, strings.Join(Formats(), ", "))
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

// DetectFormat guesses a source format from the filename, sniffing JSON
// documents to tell BCO from IR from Galaxy.
func DetectFormat(path string) (string, error) {
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))

	if base == "snakefile" || ext == ".smk" {
		return "snakemake", nil
	}
	switch ext {
	case ".dag":
		return "dagman", nil
	case ".nf":
		return "nextflow", nil
	case ".cwl":
		return "cwl", nil
	case ".wdl":
		return "wdl", nil
	case ".ga":
		return "galaxy", nil
	case ".json":
		return sniffJSON(path)
	case ".yaml", ".yml":
		return "cwl", nil
	}
	return "", fmt.Errorf("cannot detect workflow format of %s; pass --in-format", path)
}

// sniffJSON distinguishes BCO, Galaxy and IR JSON documents by their
// discriminating top-level keys.
func sniffJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s for format detection: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("%s is not valid JSON: %w", path, err)
	}
	if _, ok := doc["spec_version"]; ok {
		return "bco", nil
	}
	if _, ok := doc["provenance_domain"]; ok {
		return "bco", nil
	}
	if cls, ok := doc["a_galaxy_workflow"].(string); ok && cls == "true" {
		return "galaxy", nil
	}
	if _, ok := doc["tasks"]; ok {
		return "ir", nil
	}
	return "", fmt.Errorf("cannot detect JSON workflow flavor of %s; pass --in-format", path)
}
