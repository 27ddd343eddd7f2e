package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// knownWorkflowKeys are the top-level document keys the decoder interprets.
// Anything else survives the round trip via metadata.uninterpreted.
var knownWorkflowKeys = map[string]bool{
	"$schema": true, "name": true, "version": true, "label": true,
	"doc": true, "intent": true, "inputs": true, "outputs": true,
	"tasks": true, "edges": true, "requirements": true, "hints": true,
	"execution_model": true, "metadata": true, "provenance": true,
	"loss_map": true,
}

// ToJSON serializes the workflow with stable two-space indentation.
func (w *Workflow) ToJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}
	return buf.Bytes(), nil
}

// FromJSON decodes a workflow document. Decoding is tolerant: malformed
// environment-specific sub-documents yield empty values and are recorded in
// metadata.validation_errors rather than failing the whole decode. Unknown
// top-level keys are preserved in metadata.uninterpreted.
func FromJSON(data []byte) (*Workflow, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode workflow document: %w", err)
	}

	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	if w.Tasks == nil {
		w.Tasks = map[string]*Task{}
	}
	if w.Edges == nil {
		w.Edges = []Edge{}
	}
	normalizeWorkflowValues(&w)

	// Preserve keys this IR version does not interpret.
	for k, v := range raw {
		if !knownWorkflowKeys[k] {
			w.Meta().Uninterpreted = setKey(w.Meta().Uninterpreted, k, normalizeValue(v))
		}
	}
	recordDecodeDefects(&w, raw)
	return &w, nil
}

// LoadFile reads and decodes a workflow IR JSON file.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	w, err := FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// SaveFile writes the workflow to path as indented JSON.
func (w *Workflow) SaveFile(path string) error {
	data, err := w.ToJSON()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write workflow file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename workflow file: %w", err)
	}
	return nil
}

func normalizeWorkflowValues(w *Workflow) {
	for _, p := range []*[]Parameter{&w.Inputs, &w.Outputs} {
		for i := range *p {
			(*p)[i].Default = normalizeValue((*p)[i].Default)
		}
	}
	for _, t := range w.Tasks {
		for i := range t.Inputs {
			t.Inputs[i].Default = normalizeValue(t.Inputs[i].Default)
		}
		for i := range t.Outputs {
			t.Outputs[i].Default = normalizeValue(t.Outputs[i].Default)
		}
		if t.Metadata != nil {
			t.Metadata.FormatSpecific, _ = normalizeValue(t.Metadata.FormatSpecific).(map[string]any)
			t.Metadata.Uninterpreted, _ = normalizeValue(t.Metadata.Uninterpreted).(map[string]any)
			t.Metadata.Annotations, _ = normalizeValue(t.Metadata.Annotations).(map[string]any)
		}
	}
	for i := range w.LossMap {
		w.LossMap[i].LostValue = normalizeValue(w.LossMap[i].LostValue)
	}
	if w.Metadata != nil {
		w.Metadata.FormatSpecific, _ = normalizeValue(w.Metadata.FormatSpecific).(map[string]any)
		w.Metadata.Uninterpreted, _ = normalizeValue(w.Metadata.Uninterpreted).(map[string]any)
		w.Metadata.Annotations, _ = normalizeValue(w.Metadata.Annotations).(map[string]any)
		w.Metadata.QualityMetrics, _ = normalizeValue(w.Metadata.QualityMetrics).(map[string]any)
	}
}

// recordDecodeDefects walks the raw document looking for environment-specific
// fields whose sub-document was malformed (tolerated as empty during decode)
// and records each defect in metadata.validation_errors.
func recordDecodeDefects(w *Workflow, raw map[string]any) {
	tasksRaw, _ := raw["tasks"].(map[string]any)
	for id, tr := range tasksRaw {
		taskRaw, ok := tr.(map[string]any)
		if !ok {
			continue
		}
		task := w.Tasks[id]
		if task == nil {
			continue
		}
		for _, field := range EnvFieldNames {
			fr, present := taskRaw[field]
			if !present || fr == nil {
				continue
			}
			if !envValueShaped(fr) && task.EnvField(field).IsEmpty() {
				w.Meta().ValidationErrors = append(w.Meta().ValidationErrors,
					fmt.Sprintf("tasks/%s/%s: malformed environment-specific value, decoded as empty", id, field))
			}
		}
	}
}

// envValueShaped reports whether v looks like {"values":[...]}.
func envValueShaped(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	vals, present := m["values"]
	if !present {
		return false
	}
	_, isList := vals.([]any)
	return isList
}

func setKey(m map[string]any, k string, v any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	m[k] = v
	return m
}
