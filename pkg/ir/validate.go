package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation issue with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // semantic, domain
	Path     string `json:"path"`  // JSON-pointer-like location (e.g. "tasks/align/cpu")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// Validate runs the two-phase validation pipeline on the workflow:
// semantic (generated JSON Schema) then domain (cross-field Go rules).
// Structural validation happens at decode time.
func (w *Workflow) Validate() []*ValidationError {
	var all []*ValidationError
	all = append(all, w.validateSemantic()...)
	all = append(all, w.ValidateDomain()...)
	return all
}

// IsValid reports whether Validate produced no errors (warnings allowed).
func (w *Workflow) IsValid() bool {
	for _, e := range w.Validate() {
		if e.Severity == "error" {
			return false
		}
	}
	return true
}

func (w *Workflow) validateSemantic() []*ValidationError {
	data, err := json.Marshal(w)
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("marshal for schema validation: %v", err), Severity: "error"}}
	}
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("generate schema: %v", err), Severity: "error"}}
	}
	schemaDoc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("unmarshal schema: %v", err), Severity: "error"}}
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("wf.json", schemaDoc); err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("add schema resource: %v", err), Severity: "error"}}
	}
	sch, err := c.Compile("wf.json")
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("compile schema: %v", err), Severity: "error"}}
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf("unmarshal document: %v", err), Severity: "error"}}
	}
	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{Phase: "semantic", Message: err.Error(), Severity: "error"})
		}
		return errs
	}
	return nil
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain runs the cross-field Go rules: edge endpoints, DAG
// acyclicity, unique parameter ids, closed environment and format sets,
// numeric ranges, and requirement class rules.
func (w *Workflow) ValidateDomain() []*ValidationError {
	var errs []*ValidationError
	add := func(path, msg string) {
		errs = append(errs, &ValidationError{Phase: "domain", Path: path, Message: msg, Severity: "error"})
	}

	if w.Name == "" {
		add("name", "workflow name is required")
	}
	if w.Metadata != nil && w.Metadata.SourceFormat != "" && !IsKnownFormat(w.Metadata.SourceFormat) {
		add("metadata/source_format", fmt.Sprintf("unknown source format %q", w.Metadata.SourceFormat))
	}

	// Edge endpoints must exist; self-loops are forbidden.
	for i, e := range w.Edges {
		path := fmt.Sprintf("edges/%d", i)
		if e.Parent == e.Child {
			add(path, fmt.Sprintf("self-loop on task %q", e.Parent))
		}
		if _, ok := w.Tasks[e.Parent]; !ok {
			add(path, fmt.Sprintf("edge parent %q is not a task", e.Parent))
		}
		if _, ok := w.Tasks[e.Child]; !ok {
			add(path, fmt.Sprintf("edge child %q is not a task", e.Child))
		}
	}
	if _, err := TopoSort(w); err != nil {
		add("edges", err.Error())
	}

	errs = append(errs, validateParameters("inputs", w.Inputs)...)
	errs = append(errs, validateParameters("outputs", w.Outputs)...)
	errs = append(errs, validateEnvNames("requirements", &w.Requirements)...)
	errs = append(errs, validateEnvNames("hints", &w.Hints)...)
	errs = append(errs, validateEnvNames("execution_model", &w.ExecutionModel)...)
	for _, env := range w.ExecutionModel.AllEnvironments() {
		if m, ok := w.ExecutionModel.Get(env).(string); ok && !IsKnownExecutionModel(m) {
			add("execution_model", fmt.Sprintf("unknown execution model %q for environment %q", m, env))
		}
	}

	for _, id := range w.TaskIDs() {
		errs = append(errs, validateTask(w.Tasks[id])...)
	}
	return errs
}

func validateTask(t *Task) []*ValidationError {
	var errs []*ValidationError
	base := "tasks/" + t.ID
	add := func(path, msg string) {
		errs = append(errs, &ValidationError{Phase: "domain", Path: path, Message: msg, Severity: "error"})
	}
	if t.ID == "" {
		add(base, "task id is required")
	}
	errs = append(errs, validateParameters(base+"/inputs", t.Inputs)...)
	errs = append(errs, validateParameters(base+"/outputs", t.Outputs)...)

	for _, field := range EnvFieldNames {
		errs = append(errs, validateEnvNames(base+"/"+field, t.EnvField(field))...)
	}

	// Numeric range rules, per binding.
	ranges := []struct {
		field    string
		min, max int64
		hasMax   bool
	}{
		{"cpu", 1, 0, false},
		{"mem_mb", 1, 0, false},
		{"disk_mb", 0, 0, false},
		{"gpu", 0, 0, false},
		{"gpu_mem_mb", 0, 0, false},
		{"time_s", 1, 0, false},
		{"threads", 1, 0, false},
		{"retry_count", 0, 0, false},
		{"priority", -1000, 1000, true},
	}
	for _, r := range ranges {
		ev := t.EnvField(r.field)
		for _, env := range ev.AllEnvironments() {
			n, ok := ev.GetInt(env)
			if !ok {
				continue
			}
			if n < r.min {
				add(base+"/"+r.field, fmt.Sprintf("value %d for environment %q is below minimum %d", n, env, r.min))
			}
			if r.hasMax && n > r.max {
				add(base+"/"+r.field, fmt.Sprintf("value %d for environment %q exceeds maximum %d", n, env, r.max))
			}
		}
	}

	for _, field := range []string{"requirements", "hints"} {
		ev := t.EnvField(field)
		for i := range ev.Values {
			errs = append(errs, validateRequirementList(base+"/"+field, ev.Values[i].Value)...)
		}
	}
	return errs
}

func validateParameters(path string, params []Parameter) []*ValidationError {
	var errs []*ValidationError
	seen := map[string]bool{}
	for i := range params {
		p := &params[i]
		ppath := fmt.Sprintf("%s/%d", path, i)
		if p.ID == "" {
			errs = append(errs, &ValidationError{Phase: "domain", Path: ppath, Message: "parameter id is required", Severity: "error"})
			continue
		}
		if seen[p.ID] {
			errs = append(errs, &ValidationError{Phase: "domain", Path: ppath, Message: fmt.Sprintf("duplicate parameter id %q", p.ID), Severity: "error"})
		}
		seen[p.ID] = true
		if err := p.Type.Validate(); err != nil {
			errs = append(errs, &ValidationError{Phase: "domain", Path: ppath + "/type", Message: err.Error(), Severity: "error"})
		}
	}
	return errs
}

func validateEnvNames(path string, ev *EnvValue) []*ValidationError {
	var errs []*ValidationError
	for _, env := range ev.AllEnvironments() {
		if !IsKnownEnvironment(env) {
			errs = append(errs, &ValidationError{
				Phase: "domain", Path: path,
				Message:  fmt.Sprintf("unknown environment %q", env),
				Severity: "error",
			})
		}
	}
	return errs
}

// resourceRequirementKeys are the only keys a ResourceRequirement accepts.
var resourceRequirementKeys = map[string]bool{
	"coresMin": true, "coresMax": true, "ramMin": true, "ramMax": true,
	"tmpdirMin": true, "tmpdirMax": true, "outdirMin": true, "outdirMax": true,
}

func validateRequirementList(path string, v any) []*ValidationError {
	var errs []*ValidationError
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		class, _ := m["class_name"].(string)
		data, _ := m["data"].(map[string]any)
		if err := ValidateRequirement(Requirement{ClassName: class, Data: data}); err != nil {
			errs = append(errs, &ValidationError{
				Phase: "domain", Path: fmt.Sprintf("%s/%d", path, i),
				Message: err.Error(), Severity: "error",
			})
		}
	}
	return errs
}

// ValidateRequirement enforces the class-specific rules for a requirement.
func ValidateRequirement(r Requirement) error {
	switch r.ClassName {
	case "":
		return fmt.Errorf("requirement class_name is required")
	case "DockerRequirement":
		for _, key := range []string{"dockerPull", "dockerLoad", "dockerFile", "dockerImport", "dockerImageId"} {
			if _, ok := r.Data[key]; ok {
				return nil
			}
		}
		return fmt.Errorf("DockerRequirement requires one of dockerPull, dockerLoad, dockerFile, dockerImport, dockerImageId")
	case "ResourceRequirement":
		for key := range r.Data {
			if !resourceRequirementKeys[key] {
				return fmt.Errorf("ResourceRequirement does not accept key %q", key)
			}
		}
		return nil
	case "EnvVarRequirement":
		if _, ok := r.Data["envDef"]; !ok {
			return fmt.Errorf("EnvVarRequirement requires envDef")
		}
		return nil
	}
	return nil
}

// TopoSort returns the task ids in topological order derived from the edges,
// breaking ties lexicographically so output is deterministic. An error is
// returned when the edge set contains a cycle.
func TopoSort(w *Workflow) ([]string, error) {
	indeg := map[string]int{}
	for id := range w.Tasks {
		indeg[id] = 0
	}
	children := map[string][]string{}
	for _, e := range w.Edges {
		if _, ok := w.Tasks[e.Parent]; !ok {
			continue
		}
		if _, ok := w.Tasks[e.Child]; !ok {
			continue
		}
		children[e.Parent] = append(children[e.Parent], e.Child)
		indeg[e.Child]++
	}
	var ready []string
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		var unlocked []string
		for _, c := range children[id] {
			indeg[c]--
			if indeg[c] == 0 {
				unlocked = append(unlocked, c)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}
	if len(order) != len(w.Tasks) {
		var stuck []string
		for id, d := range indeg {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("edges form a cycle involving tasks: %s", strings.Join(stuck, ", "))
	}
	return order, nil
}
