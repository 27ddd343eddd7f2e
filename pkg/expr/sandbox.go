// Package expr evaluates small workflow condition expressions inside a
// sandbox with a wall-clock timeout and a program size limit. It is used
// only where a target format requires a concrete value for a condition the
// source carried symbolically.
package expr

import (
	"context"
	"fmt"
	"time"

	exprlang "github.com/expr-lang/expr"
)

// Limits for sandboxed evaluation.
const (
	MaxProgramSize = 8 * 1024
	DefaultTimeout = 100 * time.Millisecond
)

// TimeoutError is raised when an expression exceeds its wall-clock budget or
// size limit. Orchestrators convert it to a loss entry rather than failing
// the conversion.
type TimeoutError struct {
	Expr   string
	Reason string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("expression evaluation aborted (%s): %q", e.Reason, truncate(e.Expr, 80))
}

// Eval compiles and runs an expression against the given variable
// environment under the sandbox limits.
func Eval(expression string, env map[string]any) (any, error) {
	return EvalWithTimeout(expression, env, DefaultTimeout)
}

// EvalBool evaluates an expression expected to produce a boolean.
func EvalBool(expression string, env map[string]any) (bool, error) {
	v, err := Eval(expression, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not produce a boolean (got %T)", truncate(expression, 80), v)
	}
	return b, nil
}

// EvalWithTimeout runs with an explicit wall-clock budget.
func EvalWithTimeout(expression string, env map[string]any, timeout time.Duration) (any, error) {
	if len(expression) > MaxProgramSize {
		return nil, &TimeoutError{Expr: expression, Reason: "program size limit exceeded"}
	}
	if env == nil {
		env = map[string]any{}
	}
	program, err := exprlang.Compile(expression, exprlang.Env(env), exprlang.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", truncate(expression, 80), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := exprlang.Run(program, env)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("run expression %q: %w", truncate(expression, 80), r.err)
		}
		return r.value, nil
	case <-ctx.Done():
		return nil, &TimeoutError{Expr: expression, Reason: "wall-clock timeout"}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
