package ir

import (
	"reflect"
	"strings"
	"testing"
)

func findIssue(errs []*ValidationError, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e.Error(), substr) {
			return true
		}
	}
	return false
}

func TestValidateEdgeEndpoints(t *testing.T) {
	w := NewWorkflow("w")
	w.AddTask(NewTask("a"))
	w.Edges = append(w.Edges, Edge{Parent: "a", Child: "ghost"})
	errs := w.ValidateDomain()
	if !findIssue(errs, "ghost") {
		t.Fatalf("expected missing endpoint error, got %v", errs)
	}
}

func TestValidateSelfLoop(t *testing.T) {
	w := NewWorkflow("w")
	w.AddTask(NewTask("a"))
	w.Edges = append(w.Edges, Edge{Parent: "a", Child: "a"})
	if !findIssue(w.ValidateDomain(), "self-loop") {
		t.Fatal("expected self-loop error")
	}
}

func TestValidateCycle(t *testing.T) {
	w := NewWorkflow("w")
	w.AddTask(NewTask("a"))
	w.AddTask(NewTask("b"))
	w.AddEdge("a", "b")
	w.AddEdge("b", "a")
	if !findIssue(w.ValidateDomain(), "cycle") {
		t.Fatal("expected cycle error")
	}
}

func TestValidateDuplicateParameterIDs(t *testing.T) {
	w := NewWorkflow("w")
	task := NewTask("a")
	task.Inputs = []Parameter{
		{ID: "x", Type: PrimitiveType("File")},
		{ID: "x", Type: PrimitiveType("File")},
	}
	w.AddTask(task)
	if !findIssue(w.ValidateDomain(), "duplicate parameter id") {
		t.Fatal("expected duplicate parameter id error")
	}
}

func TestValidateUnknownEnvironment(t *testing.T) {
	w := NewWorkflow("w")
	task := NewTask("a")
	task.CPU.Set(int64(1), "mainframe")
	w.AddTask(task)
	if !findIssue(w.ValidateDomain(), `unknown environment "mainframe"`) {
		t.Fatal("expected unknown environment error")
	}
}

func TestValidateNumericRanges(t *testing.T) {
	w := NewWorkflow("w")
	task := NewTask("a")
	task.CPU.Set(int64(0), EnvSharedFilesystem)
	task.MemMB.Set(int64(0), EnvSharedFilesystem)
	task.TimeS.Set(int64(0), EnvSharedFilesystem)
	task.Priority.Set(int64(2000), EnvSharedFilesystem)
	task.GPU.Set(int64(-1), EnvSharedFilesystem)
	w.AddTask(task)
	errs := w.ValidateDomain()
	for _, field := range []string{"cpu", "mem_mb", "time_s", "priority", "gpu"} {
		if !findIssue(errs, "/"+field) {
			t.Errorf("expected range error for %s, got %v", field, errs)
		}
	}
}

func TestValidateUnknownSourceFormat(t *testing.T) {
	w := NewWorkflow("w")
	w.Meta().SourceFormat = "punchcards"
	if !findIssue(w.ValidateDomain(), "unknown source format") {
		t.Fatal("expected source format error")
	}
}

func TestValidateDockerRequirement(t *testing.T) {
	if err := ValidateRequirement(Requirement{ClassName: "DockerRequirement", Data: map[string]any{}}); err == nil {
		t.Fatal("DockerRequirement without an image source must be rejected")
	}
	if err := ValidateRequirement(Requirement{ClassName: "DockerRequirement", Data: map[string]any{"dockerPull": "python:3.11"}}); err != nil {
		t.Fatalf("dockerPull should satisfy DockerRequirement: %v", err)
	}
}

func TestValidateResourceRequirementKeys(t *testing.T) {
	if err := ValidateRequirement(Requirement{ClassName: "ResourceRequirement", Data: map[string]any{"coresMin": 2}}); err != nil {
		t.Fatalf("coresMin is a known key: %v", err)
	}
	if err := ValidateRequirement(Requirement{ClassName: "ResourceRequirement", Data: map[string]any{"gpus": 1}}); err == nil {
		t.Fatal("unknown ResourceRequirement key must be rejected")
	}
}

func TestTopoSortDeterministic(t *testing.T) {
	w := NewWorkflow("w")
	for _, id := range []string{"c", "a", "b", "root"} {
		w.AddTask(NewTask(id))
	}
	w.AddEdge("root", "a")
	w.AddEdge("root", "b")
	w.AddEdge("root", "c")
	order, err := TopoSort(w)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"root", "a", "b", "c"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected lexicographic tie-break %v, got %v", want, order)
	}
}

func TestValidTypeSpecs(t *testing.T) {
	cases := []struct {
		spec TypeSpec
		ok   bool
	}{
		{PrimitiveType("string"), true},
		{PrimitiveType("File"), true},
		{PrimitiveType("blob"), false},
		{TypeSpec{Type: "array"}, false},
		{ArrayType(PrimitiveType("int")), true},
		{TypeSpec{Type: "record"}, false},
		{TypeSpec{Type: "record", Fields: map[string]*TypeSpec{"a": {Type: "int"}}}, true},
		{TypeSpec{Type: "enum"}, false},
		{TypeSpec{Type: "enum", Symbols: []string{"x"}}, true},
		{TypeSpec{Type: "union"}, false},
	}
	for _, c := range cases {
		err := c.spec.Validate()
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.spec.String(), err)
		}
		if !c.ok && err == nil {
			t.Errorf("%s: expected error", c.spec.String())
		}
	}
}

func TestUnionNullableInvariant(t *testing.T) {
	str := PrimitiveType("string")
	null := PrimitiveType("null")
	u := UnionType(&str, &null)
	if !u.Nullable {
		t.Fatal("union with null member must be nullable")
	}
	if err := u.Validate(); err != nil {
		t.Fatal(err)
	}
	u.Nullable = false
	if err := u.Validate(); err == nil {
		t.Fatal("nullable flag must match null member presence")
	}
}
