package ir

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Source methods describing how a binding got its value.
const (
	SourceExplicit = "explicit"
	SourceInferred = "inferred"
	SourceTemplate = "template"
	SourceDefault  = "default"
	SourceAdapted  = "adapted"
)

// Binding is one (value, environments) pair inside an EnvValue.
type Binding struct {
	Value        any      `json:"value"`
	Environments []string `json:"environments"`
	SourceMethod string   `json:"source_method,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
}

// AppliesTo reports whether this binding covers the given environment.
// A binding with an empty environment list is universal.
func (b *Binding) AppliesTo(env string) bool {
	if len(b.Environments) == 0 {
		return true
	}
	for _, e := range b.Environments {
		if e == env {
			return true
		}
	}
	return false
}

// EnvValue holds one or more environment-scoped bindings for a single field.
// Bindings are independent: setting a value for one environment never touches
// bindings for other environments. An unknown environment resolves to nil.
type EnvValue struct {
	Values []Binding `json:"values"`
}

// NewEnvValue creates an EnvValue with one explicit binding per listed
// environment, or a single universal binding when no environment is given.
func NewEnvValue(value any, envs ...string) EnvValue {
	ev := EnvValue{}
	for _, env := range envs {
		ev.Set(value, env)
	}
	if len(envs) == 0 {
		ev.Values = append(ev.Values, Binding{Value: value, Environments: []string{}, SourceMethod: SourceExplicit, Confidence: 1.0})
	}
	return ev
}

// Set upserts an explicit binding for env. Idempotent when the same
// (value, env) pair is already present.
func (ev *EnvValue) Set(value any, env string) {
	ev.SetWithMethod(value, env, SourceExplicit, 1.0)
}

// SetWithMethod upserts a binding for env with an explicit source method.
// If a binding lists env alone, its value and method are replaced in place;
// if it lists env together with other environments, env is removed from it
// and a new binding for env is appended; otherwise a new binding is appended.
func (ev *EnvValue) SetWithMethod(value any, env string, method string, confidence float64) {
	value = normalizeValue(value)
	for i := range ev.Values {
		b := &ev.Values[i]
		for _, e := range b.Environments {
			if e == env {
				if reflect.DeepEqual(b.Value, value) && b.SourceMethod == method {
					return
				}
				if len(b.Environments) == 1 {
					b.Value = value
					b.SourceMethod = method
					b.Confidence = confidence
					return
				}
				// env shared with others: split env out into its own binding
				b.Environments = removeString(b.Environments, env)
				ev.Values = append(ev.Values, Binding{Value: value, Environments: []string{env}, SourceMethod: method, Confidence: confidence})
				return
			}
		}
	}
	ev.Values = append(ev.Values, Binding{Value: value, Environments: []string{env}, SourceMethod: method, Confidence: confidence})
}

// Get returns the value of the first binding that covers env, or nil.
func (ev *EnvValue) Get(env string) any {
	if b := ev.Binding(env); b != nil {
		return b.Value
	}
	return nil
}

// Binding returns the first binding covering env, or nil.
func (ev *EnvValue) Binding(env string) *Binding {
	for i := range ev.Values {
		if ev.Values[i].AppliesTo(env) {
			return &ev.Values[i]
		}
	}
	return nil
}

// GetWithDefault returns Get(env), falling back to def when unset.
func (ev *EnvValue) GetWithDefault(env string, def any) any {
	if v := ev.Get(env); v != nil {
		return v
	}
	return def
}

// AllEnvironments returns the sorted union of all binding environments.
func (ev *EnvValue) AllEnvironments() []string {
	seen := map[string]bool{}
	for _, b := range ev.Values {
		for _, e := range b.Environments {
			seen[e] = true
		}
	}
	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// IsEmpty reports whether the value has no bindings at all.
func (ev *EnvValue) IsEmpty() bool { return len(ev.Values) == 0 }

// IsSetFor reports whether env resolves to a non-nil value.
func (ev *EnvValue) IsSetFor(env string) bool { return ev.Get(env) != nil }

// GetString returns the value for env as a string, or "" when unset or of
// another type.
func (ev *EnvValue) GetString(env string) string {
	if s, ok := ev.Get(env).(string); ok {
		return s
	}
	return ""
}

// GetInt returns the value for env as an int64, with ok=false when unset or
// not numeric.
func (ev *EnvValue) GetInt(env string) (int64, bool) {
	switch v := ev.Get(env).(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// GetBool returns the value for env as a bool, with ok=false when unset or
// not boolean.
func (ev *EnvValue) GetBool(env string) (bool, bool) {
	if b, ok := ev.Get(env).(bool); ok {
		return b, true
	}
	return false, false
}

// GetFloat returns the value for env as a float64.
func (ev *EnvValue) GetFloat(env string) (float64, bool) {
	switch v := ev.Get(env).(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// UnmarshalJSON decodes tolerantly: a malformed sub-document yields an empty
// EnvValue instead of failing the whole workflow decode. Callers that need to
// surface the defect inspect the raw document separately (see FromJSON).
func (ev *EnvValue) UnmarshalJSON(data []byte) error {
	type alias EnvValue
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		ev.Values = nil
		return nil
	}
	for i := range a.Values {
		a.Values[i].Value = normalizeValue(a.Values[i].Value)
		if a.Values[i].Environments == nil {
			a.Values[i].Environments = []string{}
		}
	}
	*ev = EnvValue(a)
	return nil
}

// MarshalJSON always emits the {"values":[...]} shape, with an empty array
// (never null) for an empty value.
func (ev EnvValue) MarshalJSON() ([]byte, error) {
	type alias EnvValue
	a := alias(ev)
	if a.Values == nil {
		a.Values = []Binding{}
	}
	for i := range a.Values {
		if a.Values[i].Environments == nil {
			a.Values[i].Environments = []string{}
		}
	}
	return json.Marshal(a)
}

// normalizeValue collapses the numeric types JSON decoding produces so that
// round-tripped workflows compare equal: float64 values holding integers
// become int64, json.Number is resolved, and nested containers are walked.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case float32:
		return normalizeValue(float64(t))
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeValue(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeValue(val)
		}
		return t
	}
	return v
}

func sortStrings(ss []string) { sort.Strings(ss) }

func removeString(ss []string, s string) []string {
	out := ss[:0]
	for _, e := range ss {
		if e != s {
			out = append(out, e)
		}
	}
	return out
}
