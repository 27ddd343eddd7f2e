package bco

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// schema2791 is the structural subset of the IEEE 2791-2020 schema this tool
// validates against: required domains, their required members, and the field
// formats conversions depend on.
const schema2791 = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://wf2wf.dev/schemas/ieee-2791-subset.json",
  "type": "object",
  "required": ["object_id", "spec_version", "etag", "provenance_domain", "usability_domain", "description_domain", "io_domain"],
  "properties": {
    "object_id": {"type": "string", "minLength": 1},
    "spec_version": {"type": "string", "minLength": 1},
    "etag": {"type": "string", "pattern": "^(sha256:)?[0-9a-f]{64}$"},
    "provenance_domain": {
      "type": "object",
      "required": ["name", "version", "created", "modified"],
      "properties": {
        "name": {"type": "string"},
        "version": {"type": "string"},
        "created": {"type": "string"},
        "modified": {"type": "string"},
        "contributors": {"type": "array"},
        "license": {"type": "string"}
      }
    },
    "usability_domain": {"type": "array", "items": {"type": "string"}},
    "description_domain": {
      "type": "object",
      "required": ["pipeline_steps"],
      "properties": {
        "keywords": {"type": "array"},
        "platform": {"type": "array"},
        "pipeline_steps": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["step_number", "name"],
            "properties": {
              "step_number": {"type": "integer"},
              "name": {"type": "string"},
              "description": {"type": "string"},
              "input_list": {"type": "array"},
              "output_list": {"type": "array"}
            }
          }
        }
      }
    },
    "execution_domain": {
      "type": "object",
      "properties": {
        "script": {"type": "array"},
        "script_driver": {"type": "string"},
        "software_prerequisites": {"type": "array"},
        "external_data_endpoints": {"type": "array"},
        "environment_variables": {"type": "object"}
      }
    },
    "parametric_domain": {"type": "array"},
    "io_domain": {
      "type": "object",
      "properties": {
        "input_subdomain": {"type": "array"},
        "output_subdomain": {"type": "array"}
      }
    },
    "error_domain": {"type": "object"},
    "extension_domain": {"type": "array"}
  }
}`

// Validate checks the document against the embedded IEEE 2791 subset schema.
// Returned strings are issues; empty means valid.
func Validate(d *Document) ([]string, error) {
	schemaDoc, err := sjsonschema.UnmarshalJSON(strings.NewReader(schema2791))
	if err != nil {
		return nil, fmt.Errorf("unmarshal 2791 schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("2791.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add 2791 schema: %w", err)
	}
	sch, err := c.Compile("2791.json")
	if err != nil {
		return nil, fmt.Errorf("compile 2791 schema: %w", err)
	}
	data, err := json.Marshal(d.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal bco: %w", err)
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("re-decode bco: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		var issues []string
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flatten(ve) {
				issues = append(issues, fmt.Sprintf("%s: %v", strings.Join(cause.InstanceLocation, "/"), cause.ErrorKind))
			}
		} else {
			issues = append(issues, err.Error())
		}
		return issues, nil
	}
	return nil, nil
}

func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var out []*sjsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}
