package router

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	domainerrors "github.com/smilemakc/nodeflow/internal/domain/errors"
)

// Evaluator is the abstraction the router (and the built-in condition-bearing
// nodes) use to run source text against a binding context. Alternative
// backends — compiled, interpreted, sandboxed — can satisfy this interface
// without the router knowing the difference; the default implementation
// below is the only one this package provides.
type Evaluator interface {
	// Eval runs expression against vars and returns its raw result.
	Eval(expression string, vars map[string]any) (any, error)
	// EvalBool runs expression and requires a boolean result.
	EvalBool(expression string, vars map[string]any) (bool, error)
}

// ExprEvaluator is the default Evaluator, backed by github.com/expr-lang/expr
// with a compiled-program cache keyed by expression text.
type ExprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

func (e *ExprEvaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, domainerrors.Compilation("", fmt.Sprintf("failed to compile expression %q", expression), err)
	}

	e.mu.Lock()
	e.cache[expression] = program
	e.mu.Unlock()
	return program, nil
}

func (e *ExprEvaluator) Eval(expression string, vars map[string]any) (any, error) {
	if expression == "" {
		return nil, domainerrors.Configuration("", "expression cannot be empty")
	}
	program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	result, err := expr.Run(program, vars)
	if err != nil {
		return nil, domainerrors.Runtime("", fmt.Sprintf("expression %q raised", expression), err)
	}
	return result, nil
}

func (e *ExprEvaluator) EvalBool(expression string, vars map[string]any) (bool, error) {
	result, err := e.Eval(expression, vars)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, domainerrors.Runtime("", fmt.Sprintf("expression %q did not return a boolean, got %T", expression, result), nil)
	}
	return b, nil
}
