// Package bco handles IEEE 2791 BioCompute Objects: loading, validation,
// etag computation, signing (via an external openssl), and per-domain diffs.
package bco

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/csmcal/wf2wf/pkg/ir"
)

// SpecVersionURL is the IEEE 2791 schema this tool emits.
const SpecVersionURL = "https://w3id.org/ieee/ieee-2791-schema/2791object.json"

// ExtensionNamespaceProvenance marks extension entries this tool appends when
// signing.
const ExtensionNamespaceProvenance = "wf2wf:provenance"

// ExtensionNamespaceExecutionModel carries the IR execution model, which has
// no standardized BCO field.
const ExtensionNamespaceExecutionModel = "wf2wf:execution_model"

// Document is a BCO kept as a generic JSON object so unknown domains survive
// untouched; typed accessors cover the domains this tool manipulates.
type Document struct {
	Fields map[string]any
}

// Load reads a BCO JSON file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bco: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse bco %s: %w", path, err)
	}
	return &Document{Fields: fields}, nil
}

// Save writes the BCO with stable indentation.
func (d *Document) Save(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d.Fields); err != nil {
		return fmt.Errorf("encode bco: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write bco: %w", err)
	}
	return nil
}

// ComputeEtag returns the sha256 of the canonical document, excluding the
// etag field itself and the object_id (per 2791 practice).
func (d *Document) ComputeEtag() (string, error) {
	stripped := map[string]any{}
	for k, v := range d.Fields {
		if k == "etag" || k == "object_id" {
			continue
		}
		stripped[k] = v
	}
	canon, err := ir.CanonicalJSON(stripped)
	if err != nil {
		return "", err
	}
	return ir.ChecksumBytes(canon), nil
}

// UpdateEtag recomputes and stores the etag.
func (d *Document) UpdateEtag() error {
	etag, err := d.ComputeEtag()
	if err != nil {
		return err
	}
	d.Fields["etag"] = etag
	return nil
}

// AppendExtension appends an entry to extension_domain.
func (d *Document) AppendExtension(entry map[string]any) {
	ext, _ := d.Fields["extension_domain"].([]any)
	d.Fields["extension_domain"] = append(ext, entry)
}

// DomainNames lists the top-level BCO domains in specification order.
var DomainNames = []string{
	"provenance_domain",
	"usability_domain",
	"description_domain",
	"execution_domain",
	"parametric_domain",
	"io_domain",
	"error_domain",
	"extension_domain",
}
