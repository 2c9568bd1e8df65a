package ir

import "fmt"

// NormalizeType collapses a declared type into one canonical token.
// Bare tokens pass through, item mappings become "array<T>", a mapping
// with only a type key yields that type, one-element lists unwrap and
// longer lists become "union". A nil declaration yields "".
func NormalizeType(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		if items, ok := t["items"]; ok {
			return "array<" + NormalizeType(items) + ">"
		}
		if inner, ok := t["type"]; ok {
			return NormalizeType(inner)
		}
		return "object"
	case []any:
		switch len(t) {
		case 0:
			return "unknown"
		case 1:
			return NormalizeType(t[0])
		default:
			return "union"
		}
	default:
		return fmt.Sprintf("%v", t)
	}
}

// NewStepInput normalizes one step input value into a StepInput.
// ok is false when the shape was not recognized and was coerced to a reference.
func NewStepInput(v any) (in StepInput, ok bool) {
	switch s := v.(type) {
	case nil:
		return StepInput{Kind: StepInputRecord}, true
	case string:
		return StepInput{Kind: StepInputReference, Sources: []string{s}}, true
	case []any:
		return StepInput{Kind: StepInputReference, Sources: stringList(s)}, true
	case map[string]any:
		return StepInput{
			Kind:      StepInputRecord,
			Sources:   stringList(s["source"]),
			ValueFrom: stringValue(s["valueFrom"]),
			LinkMerge: stringValue(s["linkMerge"]),
			Default:   s["default"],
		}, true
	default:
		return StepInput{Kind: StepInputReference, Sources: []string{stringValue(s)}}, false
	}
}
