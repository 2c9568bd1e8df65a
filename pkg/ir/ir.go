// Package ir defines the intermediate representation of a source workflow.
//
// A WorkflowIR is built once per conversion by internal/loader and is then
// shared read-only by every downstream component. Derived values (resource
// profiles, container specs) live in pkg/model and are keyed by process id;
// nothing outside the loader writes into a WorkflowIR.
package ir

import "sort"

// DefaultVersion is substituted when a document omits its version.
const DefaultVersion = "v1.0"

// DefaultName is used when neither the document nor its source path names the workflow.
const DefaultName = "unnamed_workflow"

// WorkflowIR is the canonical, normalized form of one source workflow.
type WorkflowIR struct {
	Info      WorkflowInfo           `json:"workflow_info"`
	Inputs    map[string]InputSpec   `json:"inputs"`
	Outputs   map[string]OutputSpec  `json:"outputs"`
	Processes map[string]ProcessSpec `json:"processes"`

	Requirements RequirementSet `json:"requirements"`
	Hints        RequirementSet `json:"hints"`

	// Dependencies lists referenced sub-tool identifiers in step-id order, without duplicates.
	Dependencies []string `json:"dependencies"`
}

// WorkflowInfo holds workflow-level metadata.
type WorkflowInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Class       string `json:"class,omitempty"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description"`
}

// InputSpec describes one workflow input.
type InputSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
	Required    bool   `json:"required"`
}

// OutputSpec describes one workflow output.
type OutputSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
}

// ProcessSpec is one step of the workflow graph.
type ProcessSpec struct {
	Name string `json:"name"`
	// Tool is the referenced tool or sub-document id ("run").
	Tool          string               `json:"tool"`
	Inputs        map[string]StepInput `json:"inputs"`
	Outputs       []string             `json:"outputs"`
	Requirements  []Requirement        `json:"requirements,omitempty"`
	Hints         []Requirement        `json:"hints,omitempty"`
	Scatter       []string             `json:"scatter,omitempty"`
	ScatterMethod string               `json:"scatter_method,omitempty"`
	// Command is the resolved tool's base command, when the loader could see it.
	Command []string `json:"command,omitempty"`
}

// StepInputKind discriminates the two shapes a step input arrives in.
type StepInputKind string

const (
	// StepInputReference is a bare "source" string.
	StepInputReference StepInputKind = "reference"
	// StepInputRecord is a structured record with source/valueFrom/linkMerge/default.
	StepInputRecord StepInputKind = "record"
)

// StepInput is the normalized form of one step input mapping.
// Construct it with NewStepInput; consumers never inspect raw shapes.
type StepInput struct {
	Kind      StepInputKind `json:"kind"`
	Sources   []string      `json:"sources,omitempty"`
	ValueFrom string        `json:"value_from,omitempty"`
	LinkMerge string        `json:"link_merge,omitempty"`
	Default   any           `json:"default,omitempty"`
}

// Source returns the first source, or "" when the input has none.
func (s StepInput) Source() string {
	if len(s.Sources) == 0 {
		return ""
	}
	return s.Sources[0]
}

// SortedInputNames returns workflow input names in lexical order.
func (w *WorkflowIR) SortedInputNames() []string {
	return sortedKeys(w.Inputs)
}

// SortedOutputNames returns workflow output names in lexical order.
func (w *WorkflowIR) SortedOutputNames() []string {
	return sortedKeys(w.Outputs)
}

// SortedProcessIDs returns process ids in lexical order.
func (w *WorkflowIR) SortedProcessIDs() []string {
	return sortedKeys(w.Processes)
}

// SortedInputNames returns the step's input names in lexical order.
func (p ProcessSpec) SortedInputNames() []string {
	return sortedKeys(p.Inputs)
}

// InputDefaults returns name → default for every input that declares one.
func (w *WorkflowIR) InputDefaults() map[string]any {
	out := make(map[string]any, len(w.Inputs))
	for name, in := range w.Inputs {
		if in.Default != nil {
			out[name] = in.Default
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
