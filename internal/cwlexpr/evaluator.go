// Package cwlexpr evaluates CWL expressions with a JavaScript runtime (goja).
// The converter uses it for resource and time-limit fields whose values are
// parameter references or code blocks over the workflow's input defaults.
package cwlexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout bounds a single evaluation, expressionLib included.
const DefaultTimeout = 2 * time.Second

// ErrTimeout is returned, wrapped, when an evaluation exceeds its budget.
var ErrTimeout = errors.New("expression evaluation timed out")

// Evaluator evaluates CWL expressions using a JavaScript runtime.
// A fresh VM is created per evaluation, so an Evaluator is safe for concurrent use.
type Evaluator struct {
	expressionLib []string
	timeout       time.Duration
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout sets the per-evaluation budget. Zero or less disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) { e.timeout = d }
}

// NewEvaluator creates an evaluator. expressionLib holds JavaScript from
// InlineJavascriptRequirement that is loaded before each evaluation.
func NewEvaluator(expressionLib []string, opts ...Option) *Evaluator {
	e := &Evaluator{expressionLib: expressionLib, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// setupVM loads the expression library and binds the context. Inputs are
// deep-copied so scripts cannot write back into the caller's values.
func (e *Evaluator) setupVM(vm *goja.Runtime, ctx *Context) error {
	for i, lib := range e.expressionLib {
		if _, err := vm.RunString(lib); err != nil {
			return fmt.Errorf("expressionLib[%d]: %w", i, err)
		}
	}
	if err := vm.Set("inputs", cloneValue(ctx.Inputs)); err != nil {
		return fmt.Errorf("set inputs: %w", err)
	}
	if err := vm.Set("self", nil); err != nil {
		return fmt.Errorf("set self: %w", err)
	}
	if err := vm.Set("runtime", ctx.Runtime.toMap()); err != nil {
		return fmt.Errorf("set runtime: %w", err)
	}
	return nil
}

// cloneValue copies the maps and slices of a decoded YAML/JSON value.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Evaluate evaluates a CWL expression string.
// Supports three forms:
//   - Parameter references: $(inputs.threads)
//   - Simple expressions: $(inputs.mem_gb * 1024)
//   - JavaScript code blocks: ${ return inputs.x + 1; }
//
// A sole expression returns its typed value; interpolated text returns a string.
func (e *Evaluator) Evaluate(expr string, ctx *Context) (any, error) {
	if !IsExpression(expr) {
		return unescape(expr), nil
	}

	vm := goja.New()
	if e.timeout > 0 {
		timer := time.AfterFunc(e.timeout, func() { vm.Interrupt(ErrTimeout) })
		defer timer.Stop()
	}
	if err := e.setupVM(vm, ctx); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(expr)
	if strings.HasPrefix(trimmed, "${") {
		if idx := findMatchingBrace(trimmed); idx == len(trimmed)-1 {
			return evaluateCodeBlock(vm, trimmed)
		}
	}
	return evaluateInterpolated(vm, expr)
}

// EvaluateNumber evaluates an expression that must produce a number.
// Numeric strings are accepted.
func (e *Evaluator) EvaluateNumber(expr string, ctx *Context) (float64, error) {
	val, err := e.Evaluate(expr, ctx)
	if err != nil {
		return 0, err
	}
	switch v := val.(type) {
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expression did not return a number: %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expression did not return a number: %T", val)
	}
}

func evaluateCodeBlock(vm *goja.Runtime, block string) (any, error) {
	code := strings.TrimSpace(block[2 : len(block)-1])
	val, err := vm.RunString(fmt.Sprintf("(function() { %s })()", code))
	if err != nil {
		return nil, fmt.Errorf("JavaScript error: %w", err)
	}
	return val.Export(), nil
}

func evaluateInterpolated(vm *goja.Runtime, expr string) (any, error) {
	matches := findExpressions(expr)
	if len(matches) == 0 {
		return unescape(expr), nil
	}

	run := func(m exprMatch) (any, error) {
		code := m.expr
		if strings.HasPrefix(strings.TrimSpace(code), "{") {
			code = "(" + code + ")"
		}
		val, err := vm.RunString(code)
		if err != nil {
			return nil, fmt.Errorf("expression error in $(%s): %w", m.expr, err)
		}
		if goja.IsUndefined(val) {
			return nil, fmt.Errorf("expression $(%s) returned undefined", m.expr)
		}
		return val.Export(), nil
	}

	if len(matches) == 1 && matches[0].start == 0 && matches[0].end == len(expr) {
		return run(matches[0])
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(expr[last:m.start])
		val, err := run(m)
		if err != nil {
			return nil, err
		}
		b.WriteString(toString(val))
		last = m.end
	}
	b.WriteString(expr[last:])
	return unescape(b.String()), nil
}

// findMatchingBrace finds the index of the closing brace for a ${...} code block.
// Returns -1 if no matching brace is found.
func findMatchingBrace(s string) int {
	depth := 0
	for i, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

type exprMatch struct {
	start int    // index of "$("
	end   int    // index after the closing ")"
	expr  string // content between "$(" and ")"
}

// findExpressions finds all unescaped $(expr) patterns, handling nested parentheses.
func findExpressions(s string) []exprMatch {
	var matches []exprMatch
	for i := 0; i < len(s)-1; i++ {
		if s[i] != '$' || s[i+1] != '(' || (i > 0 && s[i-1] == '\\') {
			continue
		}
		depth := 1
		j := i + 2
		for j < len(s) && depth > 0 {
			switch s[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			j++
		}
		if depth == 0 {
			matches = append(matches, exprMatch{start: i, end: j, expr: s[i+2 : j-1]})
			i = j - 1
		}
	}
	return matches
}

// IsExpression reports whether s contains CWL expression syntax.
// An escaped \$( is a literal, not an expression.
func IsExpression(s string) bool {
	if strings.HasPrefix(strings.TrimSpace(s), "${") {
		return true
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '$' && s[i+1] == '(' && (i == 0 || s[i-1] != '\\') {
			return true
		}
	}
	return false
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, "\\$(", "$(")
	return strings.ReplaceAll(s, "\\${", "${")
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
