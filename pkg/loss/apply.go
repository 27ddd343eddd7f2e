package loss

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
)

// Apply reinjects loss entries into the workflow. Entries already reapplied
// or adapted are skipped. Each remaining entry's JSON pointer is resolved
// against the IR and the target field set; entries that resolve are marked
// "reapplied", failures stay "lost" and produce a stderr warning.
// The (possibly mutated) entries are returned for carrying in loss_map.
func Apply(w *ir.Workflow, entries []ir.LossEntry) []ir.LossEntry {
	out := make([]ir.LossEntry, len(entries))
	copy(out, entries)
	for i := range out {
		e := &out[i]
		if e.Status == ir.LossStatusReapplied || e.Status == ir.LossStatusAdapted {
			continue
		}
		if err := applyEntry(w, e); err != nil {
			e.Status = ir.LossStatusLost
			fmt.Fprintf(os.Stderr, "Warning: failed to reinject %s: %v\n", e.JSONPointer, err)
			continue
		}
		e.Status = ir.LossStatusReapplied
	}
	return out
}

// DetectAndApplySidecar looks for "<source>.loss.json" next to the source
// file. If present and its source_checksum matches the SHA-256 of the source
// file's bytes, the entries are applied; a mismatch means the side-car is
// stale, producing a warning and no mutation.
func DetectAndApplySidecar(w *ir.Workflow, sourcePath string) error {
	sidecar := SidecarPath(sourcePath)
	doc, err := ReadDocument(sidecar)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Warning: ignoring loss side-car: %v\n", err)
		return nil
	}
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("read source for checksum: %w", err)
	}
	if !strings.HasPrefix(doc.SourceChecksum, "sha256:") {
		fmt.Fprintf(os.Stderr, "Warning: loss side-car %s has invalid checksum format %q, ignoring\n", sidecar, doc.SourceChecksum)
		return nil
	}
	if got := ir.ChecksumBytes(data); doc.SourceChecksum != got {
		fmt.Fprintf(os.Stderr, "Warning: loss side-car %s is stale (checksum mismatch), ignoring\n", sidecar)
		return nil
	}
	applied := Apply(w, doc.Entries)
	w.LossMap = append(w.LossMap, applied...)
	return nil
}

// applyEntry sets the value addressed by the entry's JSON pointer.
func applyEntry(w *ir.Workflow, e *ir.LossEntry) error {
	parts, err := splitPointer(e.JSONPointer)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return fmt.Errorf("empty pointer")
	}
	switch parts[0] {
	case "tasks":
		if len(parts) < 3 {
			return fmt.Errorf("task pointer too short: %s", e.JSONPointer)
		}
		task, ok := w.Tasks[parts[1]]
		if !ok {
			return fmt.Errorf("task %q not found", parts[1])
		}
		return applyTaskEntry(task, parts[2:], e)
	case "execution_model":
		return setEnvValue(&w.ExecutionModel, e)
	case "requirements":
		return setEnvValue(&w.Requirements, e)
	case "hints":
		return setEnvValue(&w.Hints, e)
	case "intent":
		if ss, ok := toStringSlice(e.LostValue); ok {
			w.Intent = ss
			return nil
		}
		return fmt.Errorf("intent value is not a string list")
	case "metadata":
		if len(parts) == 2 {
			w.Meta().Annotations = setMapKey(w.Meta().Annotations, parts[1], e.LostValue)
			return nil
		}
		return fmt.Errorf("unsupported metadata pointer: %s", e.JSONPointer)
	}
	return fmt.Errorf("unsupported pointer root %q", parts[0])
}

func applyTaskEntry(task *ir.Task, rest []string, e *ir.LossEntry) error {
	// "/tasks/<id>/resources/<field>" addresses the same env field as
	// "/tasks/<id>/<field>"; exporters historically used both shapes.
	if rest[0] == "resources" && len(rest) == 2 {
		rest = rest[1:]
	}
	switch rest[0] {
	case "inputs", "outputs":
		if len(rest) != 3 {
			return fmt.Errorf("parameter pointer needs id and attribute")
		}
		params := task.Inputs
		if rest[0] == "outputs" {
			params = task.Outputs
		}
		for i := range params {
			if params[i].ID == rest[1] {
				return applyParameterAttr(&params[i], rest[2], e.LostValue)
			}
		}
		return fmt.Errorf("parameter %q not found in %s", rest[1], rest[0])
	}
	if len(rest) != 1 {
		return fmt.Errorf("unsupported task pointer tail %v", rest)
	}
	ev := task.EnvField(rest[0])
	if ev == nil {
		return fmt.Errorf("unknown task field %q", rest[0])
	}
	return setEnvValue(ev, e)
}

func applyParameterAttr(p *ir.Parameter, attr string, value any) error {
	switch attr {
	case "secondary_files":
		if ss, ok := toStringSlice(value); ok {
			p.SecondaryFiles = ss
			return nil
		}
		return fmt.Errorf("secondary_files value is not a string list")
	case "transfer_mode":
		e := ir.LossEntry{LostValue: value}
		return setEnvValue(&p.TransferMode, &e)
	case "default":
		p.Default = value
		return nil
	}
	return fmt.Errorf("unsupported parameter attribute %q", attr)
}

// setEnvValue restores a lost value into an environment-specific field.
// Values shaped like {"values":[...]} are decoded as full binding sets;
// scalar values are set for the entry's target environment (falling back to
// shared_filesystem).
func setEnvValue(ev *ir.EnvValue, e *ir.LossEntry) error {
	if m, ok := e.LostValue.(map[string]any); ok {
		if _, has := m["values"]; has {
			data, err := json.Marshal(m)
			if err != nil {
				return err
			}
			var restored ir.EnvValue
			if err := json.Unmarshal(data, &restored); err != nil {
				return err
			}
			if restored.IsEmpty() {
				return fmt.Errorf("lost value decoded to empty environment-specific value")
			}
			*ev = restored
			return nil
		}
	}
	env := ir.EnvSharedFilesystem
	if e.EnvironmentContext != nil {
		if te, ok := e.EnvironmentContext["target_environment"].(string); ok && te != "" {
			env = te
		}
	}
	ev.Set(e.LostValue, env)
	return nil
}

// splitPointer parses an RFC 6901 JSON pointer into unescaped tokens.
func splitPointer(pointer string) ([]string, error) {
	if pointer == "" {
		return nil, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("invalid JSON pointer %q", pointer)
	}
	raw := strings.Split(pointer[1:], "/")
	out := make([]string, len(raw))
	for i, tok := range raw {
		tok = strings.ReplaceAll(tok, "~1", "/")
		tok = strings.ReplaceAll(tok, "~0", "~")
		out[i] = tok
	}
	return out, nil
}

func toStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func setMapKey(m map[string]any, k string, v any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	m[k] = v
	return m
}
