package ir

// ToDocument serializes the IR back into the raw structural document shape
// the loader accepts. Loading the result yields an equal IR.
func (w *WorkflowIR) ToDocument() map[string]any {
	doc := map[string]any{
		"cwlVersion": w.Info.Version,
		"id":         w.Info.Name,
	}
	if w.Info.Class != "" {
		doc["class"] = w.Info.Class
	}
	if w.Info.Label != "" {
		doc["label"] = w.Info.Label
	}
	if w.Info.Description != "" {
		doc["doc"] = w.Info.Description
	}

	inputs := make(map[string]any, len(w.Inputs))
	for name, in := range w.Inputs {
		rec := map[string]any{"type": in.Type}
		if in.Description != "" {
			rec["doc"] = in.Description
		}
		if in.Default != nil {
			rec["default"] = in.Default
		}
		inputs[name] = rec
	}
	doc["inputs"] = inputs

	outputs := make(map[string]any, len(w.Outputs))
	for name, out := range w.Outputs {
		rec := map[string]any{"type": out.Type}
		if out.Description != "" {
			rec["doc"] = out.Description
		}
		if out.Source != "" {
			rec["outputSource"] = out.Source
		}
		outputs[name] = rec
	}
	doc["outputs"] = outputs

	steps := make(map[string]any, len(w.Processes))
	for id, p := range w.Processes {
		steps[id] = p.toDocument()
	}
	doc["steps"] = steps

	if reqs := requirementList(w.Requirements.All()); len(reqs) > 0 {
		doc["requirements"] = reqs
	}
	if hints := requirementList(w.Hints.All()); len(hints) > 0 {
		doc["hints"] = hints
	}
	return doc
}

func (p ProcessSpec) toDocument() map[string]any {
	step := map[string]any{}

	// The run reference is written as an inline header so reloading never
	// re-resolves (and re-lifts requirements from) the referenced file.
	if p.Tool != "" || len(p.Command) > 0 {
		run := map[string]any{}
		if p.Tool != "" {
			run["id"] = p.Tool
		}
		if len(p.Command) > 0 {
			run["baseCommand"] = toAnySlice(p.Command)
		}
		step["run"] = run
	}

	in := make(map[string]any, len(p.Inputs))
	for name, si := range p.Inputs {
		in[name] = si.toDocument()
	}
	step["in"] = in
	step["out"] = toAnySlice(p.Outputs)

	if reqs := requirementList(p.Requirements); len(reqs) > 0 {
		step["requirements"] = reqs
	}
	if hints := requirementList(p.Hints); len(hints) > 0 {
		step["hints"] = hints
	}
	if len(p.Scatter) > 0 {
		step["scatter"] = toAnySlice(p.Scatter)
	}
	if p.ScatterMethod != "" {
		step["scatterMethod"] = p.ScatterMethod
	}
	return step
}

func (s StepInput) toDocument() any {
	if s.Kind == StepInputReference {
		if len(s.Sources) == 1 {
			return s.Sources[0]
		}
		return toAnySlice(s.Sources)
	}

	rec := map[string]any{}
	switch len(s.Sources) {
	case 0:
	case 1:
		rec["source"] = s.Sources[0]
	default:
		rec["source"] = toAnySlice(s.Sources)
	}
	if s.ValueFrom != "" {
		rec["valueFrom"] = s.ValueFrom
	}
	if s.LinkMerge != "" {
		rec["linkMerge"] = s.LinkMerge
	}
	if s.Default != nil {
		rec["default"] = s.Default
	}
	return rec
}

func requirementList(reqs []Requirement) []any {
	out := make([]any, 0, len(reqs))
	for _, r := range reqs {
		if r.Fields != nil {
			out = append(out, r.Fields)
			continue
		}
		out = append(out, map[string]any{"class": r.Class})
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
