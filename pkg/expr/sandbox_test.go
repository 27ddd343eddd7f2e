package expr

import (
	"errors"
	"strings"
	"testing"
)

func TestEvalBool(t *testing.T) {
	v, err := EvalBool("threads > 2", map[string]any{"threads": 4})
	if err != nil {
		t.Fatal(err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEvalArithmetic(t *testing.T) {
	v, err := Eval("mem * 2", map[string]any{"mem": 1024})
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := v.(int); !ok || n != 2048 {
		t.Fatalf("expected 2048, got %T %v", v, v)
	}
}

func TestEvalBoolRejectsNonBoolean(t *testing.T) {
	if _, err := EvalBool("1 + 1", nil); err == nil {
		t.Fatal("non-boolean result must error")
	}
}

func TestEvalCompileError(t *testing.T) {
	if _, err := Eval("((", nil); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestEvalSizeLimit(t *testing.T) {
	big := "1 + " + strings.Repeat("1 + ", MaxProgramSize/4) + "1"
	_, err := Eval(big, nil)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError for oversized program, got %v", err)
	}
	if !strings.Contains(te.Reason, "size") {
		t.Fatalf("expected size-limit reason, got %q", te.Reason)
	}
}

func TestEvalUndefinedVariable(t *testing.T) {
	v, err := Eval("missing ?? 7", map[string]any{})
	if err != nil {
		t.Fatalf("undefined variables are allowed with a coalesce: %v", err)
	}
	if n, ok := v.(int); !ok || n != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
}
