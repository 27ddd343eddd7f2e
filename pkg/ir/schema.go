package ir

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// Go Workflow struct using invopop/jsonschema. The schema is versioned with
// the IR version and published under /schemas/v<semver>/wf.json.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false
	r.AllowAdditionalProperties = true

	s := r.Reflect(&Workflow{})
	s.ID = jsonschema.ID(SchemaURL)
	s.Title = "wf2wf Intermediate Representation v" + IRVersion
	s.Description = "Schema for wf2wf workflow IR JSON documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
