package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/me/cwl2nf/internal/parser"
	"github.com/me/cwl2nf/pkg/ir"
	"github.com/me/cwl2nf/pkg/model"
)

const component = "loader"

// builder turns one workflow mapping into an IR, substituting defaults for
// every missing optional field and recording each substitution.
type builder struct {
	path  string
	diags model.Diagnostics
}

func build(doc map[string]any, path string) (*ir.WorkflowIR, model.Diagnostics) {
	b := &builder{path: path}
	w := &ir.WorkflowIR{
		Info:      b.info(doc),
		Inputs:    b.inputs(doc["inputs"]),
		Outputs:   b.outputs(doc["outputs"]),
		Processes: b.processes(doc["steps"]),
	}
	w.Requirements = ir.Partition(requirements(doc["requirements"]), true)
	w.Hints = ir.Partition(requirements(doc["hints"]), false)
	w.Dependencies = dependencies(w)
	return w, b.diags
}

func (b *builder) warn(subject, format string, args ...any) {
	b.diags.Add(model.FieldNormalizationWarning, component, subject, format, args...)
}

func (b *builder) info(doc map[string]any) ir.WorkflowInfo {
	info := ir.WorkflowInfo{
		Name:        strings.TrimPrefix(stringField(doc, "id"), "#"),
		Version:     stringField(doc, "cwlVersion"),
		Class:       stringField(doc, "class"),
		Label:       stringField(doc, "label"),
		Description: docString(doc["doc"]),
	}
	if info.Version == "" {
		info.Version = stringField(doc, "version")
	}
	if info.Version == "" {
		info.Version = ir.DefaultVersion
		b.warn("cwlVersion", "missing version, using %s", ir.DefaultVersion)
	}
	if info.Class == "" {
		info.Class = "Workflow"
	}
	if info.Name == "" {
		info.Name = nameFromPath(b.path)
	}
	return info
}

func (b *builder) inputs(v any) map[string]ir.InputSpec {
	out := make(map[string]ir.InputSpec)
	for name, raw := range parser.NormalizeToMap(v) {
		name = strings.TrimPrefix(name, "#")
		spec := ir.InputSpec{Name: name}
		switch val := raw.(type) {
		case string:
			spec.Type = val
		case map[string]any:
			spec.Type = ir.NormalizeType(val["type"])
			spec.Description = docString(val["doc"])
			spec.Default = val["default"]
		case []any:
			spec.Type = ir.NormalizeType(val)
		}
		if spec.Type == "" {
			spec.Type = "string"
			b.warn("inputs."+name, "missing type, using string")
		}
		spec.Required = spec.Default == nil
		out[name] = spec
	}
	return out
}

func (b *builder) outputs(v any) map[string]ir.OutputSpec {
	out := make(map[string]ir.OutputSpec)
	for name, raw := range parser.NormalizeToMap(v) {
		name = strings.TrimPrefix(name, "#")
		spec := ir.OutputSpec{Name: name}
		switch val := raw.(type) {
		case string:
			spec.Type = val
		case map[string]any:
			spec.Type = ir.NormalizeType(val["type"])
			spec.Description = docString(val["doc"])
			sources := stringList(val["outputSource"])
			if len(sources) > 0 {
				spec.Source = sources[0]
			}
			if len(sources) > 1 {
				b.warn("outputs."+name, "multiple output sources, using %s", sources[0])
			}
		case []any:
			spec.Type = ir.NormalizeType(val)
		}
		if spec.Type == "" {
			spec.Type = "File"
			b.warn("outputs."+name, "missing type, using File")
		}
		out[name] = spec
	}
	return out
}

func (b *builder) processes(v any) map[string]ir.ProcessSpec {
	out := make(map[string]ir.ProcessSpec)
	for id, raw := range parser.NormalizeToMap(v) {
		id = strings.TrimPrefix(id, "#")
		step, ok := raw.(map[string]any)
		if !ok {
			b.warn("steps."+id, "expected mapping, got %T; step skipped", raw)
			continue
		}
		out[id] = b.process(id, step)
	}
	return out
}

func (b *builder) process(id string, step map[string]any) ir.ProcessSpec {
	p := ir.ProcessSpec{
		Name:          id,
		Inputs:        make(map[string]ir.StepInput),
		Outputs:       []string{},
		Requirements:  requirements(step["requirements"]),
		Hints:         requirements(step["hints"]),
		Scatter:       stringList(step["scatter"]),
		ScatterMethod: stringField(step, "scatterMethod"),
	}

	switch run := step["run"].(type) {
	case string:
		p.Tool = strings.TrimPrefix(run, "#")
	case map[string]any:
		p.Tool = strings.TrimPrefix(stringField(run, "id"), "#")
		if p.Tool == "" {
			p.Tool = id + "_inline"
		}
		p.Command = stringList(run["baseCommand"])
		p.Requirements = append(p.Requirements, requirements(run["requirements"])...)
		p.Hints = append(p.Hints, requirements(run["hints"])...)
	case nil:
	default:
		b.warn("steps."+id+".run", "unexpected run of type %T ignored", run)
	}

	for name, raw := range parser.NormalizeToMap(step["in"]) {
		in, ok := ir.NewStepInput(raw)
		if !ok {
			b.warn("steps."+id+".in."+name, "unrecognized input shape %T coerced to reference", raw)
		}
		p.Inputs[strings.TrimPrefix(name, "#")] = in
	}

	switch outs := step["out"].(type) {
	case []any:
		for _, o := range outs {
			switch val := o.(type) {
			case string:
				p.Outputs = append(p.Outputs, val)
			case map[string]any:
				if name := stringField(val, "id"); name != "" {
					p.Outputs = append(p.Outputs, name)
				}
			}
		}
	case string:
		p.Outputs = append(p.Outputs, outs)
	}
	return p
}

func requirements(v any) []ir.Requirement {
	list := parser.RequirementList(v)
	reqs := make([]ir.Requirement, 0, len(list))
	for _, item := range list {
		reqs = append(reqs, ir.NewRequirement(item.(map[string]any)))
	}
	return reqs
}

// dependencies lists referenced tools in step-id order without duplicates.
func dependencies(w *ir.WorkflowIR) []string {
	seen := make(map[string]bool)
	deps := []string{}
	for _, id := range w.SortedProcessIDs() {
		tool := w.Processes[id].Tool
		if tool == "" || seen[tool] {
			continue
		}
		seen[tool] = true
		deps = append(deps, tool)
	}
	return deps
}

func nameFromPath(path string) string {
	if path == "" {
		return ir.DefaultName
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		return ir.DefaultName
	}
	return stem
}

func docString(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	case []any:
		return strings.Join(stringList(d), "\n")
	default:
		return fmt.Sprintf("%v", d)
	}
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func stringList(v any) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []any:
		var out []string
		for _, item := range s {
			if item != nil {
				out = append(out, fmt.Sprintf("%v", item))
			}
		}
		return out
	}
	return nil
}

// canonicalize converts map[any]any nodes (non-string YAML keys) into
// map[string]any so every consumer sees one mapping type.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, x := range val {
			val[k] = canonicalize(x)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[fmt.Sprintf("%v", k)] = canonicalize(x)
		}
		return out
	case []any:
		for i, x := range val {
			val[i] = canonicalize(x)
		}
		return val
	}
	return v
}
