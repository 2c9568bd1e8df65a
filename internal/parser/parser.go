package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parser is the full-fidelity CWL engine. It expands a raw document into a
// self-contained workflow mapping: $import directives inlined, packed $graph
// documents unpacked, bare tools wrapped, and every step's run reference
// replaced by the referenced tool's header (id, class, baseCommand,
// requirements, hints). Unlike the raw loader it is strict: unresolvable
// references and unknown classes are errors.
type Parser struct {
	readFile func(string) ([]byte, error)
	logger   *slog.Logger
}

// ErrFileAccess is returned for $import and run file references when
// file access is disabled.
var ErrFileAccess = errors.New("file references are disabled")

// Option configures a Parser.
type Option func(*Parser)

// WithoutFiles rejects $import and run references to files. Inline tools
// and $graph fragments still resolve.
func WithoutFiles() Option {
	return func(p *Parser) {
		p.readFile = func(path string) ([]byte, error) {
			return nil, fmt.Errorf("%s: %w", path, ErrFileAccess)
		}
	}
}

// New creates a Parser with the given logger.
func New(logger *slog.Logger, opts ...Option) *Parser {
	p := &Parser{readFile: os.ReadFile, logger: logger.With("component", "parser")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Expand resolves a raw CWL document into an expanded Workflow mapping.
// baseDir is used to resolve relative $import and run paths.
func (p *Parser) Expand(raw map[string]any, baseDir string) (map[string]any, error) {
	resolved, err := p.resolveImports(raw, baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve imports: %w", err)
	}
	doc := resolved.(map[string]any)
	version := stringField(doc, "cwlVersion")

	tools := make(map[string]map[string]any)
	var wf map[string]any

	if graphRaw, hasGraph := doc["$graph"]; hasGraph {
		entries, ok := graphRaw.([]any)
		if !ok {
			return nil, fmt.Errorf("$graph must be an array")
		}
		for i, entry := range entries {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("$graph[%d]: expected map, got %T", i, entry)
			}
			class := stringField(m, "class")
			switch class {
			case "Workflow":
				if wf != nil {
					return nil, fmt.Errorf("$graph contains multiple Workflow entries")
				}
				wf = m
			case "CommandLineTool", "ExpressionTool":
				id := stripHash(stringField(m, "id"))
				if id == "" {
					return nil, fmt.Errorf("$graph[%d] (%s): missing id", i, class)
				}
				tools[id] = m
			default:
				return nil, fmt.Errorf("$graph[%d]: unknown class %q", i, class)
			}
		}
		if wf == nil {
			main, err := mainTool(tools)
			if err != nil {
				return nil, err
			}
			wf = wrapTool(main)
			p.logger.Debug("created synthetic workflow from packed tool", "tool_id", stringField(main, "id"))
		}
	} else {
		class := stringField(doc, "class")
		switch class {
		case "Workflow":
			wf = doc
		case "CommandLineTool", "ExpressionTool":
			wf = wrapTool(doc)
			p.logger.Debug("auto-wrapped tool as workflow", "class", class)
		case "":
			return nil, fmt.Errorf("missing class: document must be a Workflow, CommandLineTool or ExpressionTool")
		default:
			return nil, fmt.Errorf("unsupported class %q", class)
		}
	}

	out, err := p.expandWorkflow(wf, tools, baseDir)
	if err != nil {
		return nil, err
	}
	if stringField(out, "cwlVersion") == "" && version != "" {
		out["cwlVersion"] = version
	}
	return out, nil
}

func mainTool(tools map[string]map[string]any) (map[string]any, error) {
	if t, ok := tools["main"]; ok {
		return t, nil
	}
	ids := make([]string, 0, len(tools))
	for id := range tools {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("$graph contains no Workflow or tool entries")
	}
	sort.Strings(ids)
	return tools[ids[0]], nil
}

// wrapTool builds a single-step workflow around a bare tool.
func wrapTool(tool map[string]any) map[string]any {
	inputs := NormalizeToMap(tool["inputs"])
	outputs := NormalizeToMap(tool["outputs"])

	wfInputs := make(map[string]any, len(inputs))
	stepIn := make(map[string]any, len(inputs))
	for id, v := range inputs {
		id = shortKey(id)
		rec := map[string]any{}
		switch val := v.(type) {
		case string:
			rec["type"] = val
		case map[string]any:
			for _, k := range []string{"type", "doc", "default"} {
				if x, ok := val[k]; ok {
					rec[k] = x
				}
			}
		}
		wfInputs[id] = rec
		stepIn[id] = id
	}

	wfOutputs := make(map[string]any, len(outputs))
	outIDs := make([]string, 0, len(outputs))
	for id, v := range outputs {
		id = shortKey(id)
		rec := map[string]any{"outputSource": "run_tool/" + id}
		switch val := v.(type) {
		case string:
			rec["type"] = val
		case map[string]any:
			if t, ok := val["type"]; ok {
				rec["type"] = t
			}
		}
		wfOutputs[id] = rec
		outIDs = append(outIDs, id)
	}
	sort.Strings(outIDs)

	wf := map[string]any{
		"class":   "Workflow",
		"inputs":  wfInputs,
		"outputs": wfOutputs,
		"steps": map[string]any{
			"run_tool": map[string]any{
				"run": tool,
				"in":  stepIn,
				"out": toAny(outIDs),
			},
		},
	}
	if id := stripHash(stringField(tool, "id")); id != "" {
		wf["id"] = id
	}
	for _, k := range []string{"cwlVersion", "doc", "label"} {
		if v, ok := tool[k]; ok {
			wf[k] = v
		}
	}
	return wf
}

func (p *Parser) expandWorkflow(wf map[string]any, tools map[string]map[string]any, baseDir string) (map[string]any, error) {
	wfID := stripHash(stringField(wf, "id"))

	out := make(map[string]any, len(wf))
	for k, v := range wf {
		out[k] = v
	}
	if wfID != "" {
		out["id"] = wfID
	}

	inputs := make(map[string]any)
	for id, v := range NormalizeToMap(wf["inputs"]) {
		inputs[shortKey(id)] = stripID(v)
	}
	out["inputs"] = inputs

	outputs := make(map[string]any)
	for id, v := range NormalizeToMap(wf["outputs"]) {
		rec := stripID(v)
		if m, ok := rec.(map[string]any); ok {
			if src, ok := m["outputSource"]; ok {
				m["outputSource"] = shortSource(src, wfID)
			}
		}
		outputs[shortKey(id)] = rec
	}
	out["outputs"] = outputs

	steps := make(map[string]any)
	for id, v := range NormalizeToMap(wf["steps"]) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %q: expected map, got %T", id, v)
		}
		stepID := shortKey(id)
		step, err := p.expandStep(stepID, m, wfID, tools, baseDir)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", stepID, err)
		}
		steps[stepID] = step
	}
	out["steps"] = steps

	out["requirements"] = RequirementList(wf["requirements"])
	out["hints"] = RequirementList(wf["hints"])
	return out, nil
}

func (p *Parser) expandStep(stepID string, raw map[string]any, wfID string, tools map[string]map[string]any, baseDir string) (map[string]any, error) {
	step := make(map[string]any, len(raw))
	for k, v := range raw {
		step[k] = v
	}

	in := make(map[string]any)
	for id, v := range NormalizeToMap(raw["in"]) {
		switch val := v.(type) {
		case string, []any:
			in[shortKey(id)] = shortSource(val, wfID)
		case map[string]any:
			rec := stripID(val).(map[string]any)
			if src, ok := rec["source"]; ok {
				rec["source"] = shortSource(src, wfID)
			}
			in[shortKey(id)] = rec
		default:
			in[shortKey(id)] = val
		}
	}
	step["in"] = in

	var outs []any
	if list, ok := raw["out"].([]any); ok {
		for _, o := range list {
			switch val := o.(type) {
			case string:
				outs = append(outs, shortKey(val))
			case map[string]any:
				outs = append(outs, shortKey(stringField(val, "id")))
			}
		}
	}
	step["out"] = outs

	step["requirements"] = RequirementList(raw["requirements"])
	step["hints"] = RequirementList(raw["hints"])
	if sc, ok := raw["scatter"]; ok {
		step["scatter"] = shortSource(sc, wfID)
	}

	switch run := raw["run"].(type) {
	case nil:
		// A step without run has no tool to resolve.
	case string:
		tool, err := p.resolveRun(run, tools, baseDir)
		if err != nil {
			return nil, err
		}
		step["run"] = toolHeader(tool, stripHash(run))
	case map[string]any:
		step["run"] = toolHeader(run, stripHash(stringField(run, "id")))
	default:
		return nil, fmt.Errorf("run: unexpected type %T", run)
	}
	return step, nil
}

// resolveRun finds the tool a run reference points to: a $graph fragment
// ("#tool") or a file relative to baseDir.
func (p *Parser) resolveRun(ref string, tools map[string]map[string]any, baseDir string) (map[string]any, error) {
	if strings.HasPrefix(ref, "#") {
		tool, ok := tools[stripHash(ref)]
		if !ok {
			return nil, fmt.Errorf("run reference %q not found in $graph", ref)
		}
		return tool, nil
	}

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, ref)
	}
	data, err := p.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run %q: %w", ref, err)
	}
	var tool any
	if err := yaml.Unmarshal(data, &tool); err != nil {
		return nil, fmt.Errorf("parse run %q: %w", ref, err)
	}
	resolved, err := p.resolveImports(tool, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve imports in %q: %w", ref, err)
	}
	m, ok := resolved.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("run %q: expected map, got %T", ref, resolved)
	}
	p.logger.Debug("resolved run file", "ref", ref, "class", stringField(m, "class"))
	return m, nil
}

// toolHeader keeps the parts of a tool the IR carries.
func toolHeader(tool map[string]any, id string) map[string]any {
	h := map[string]any{
		"class":        stringField(tool, "class"),
		"requirements": RequirementList(tool["requirements"]),
		"hints":        RequirementList(tool["hints"]),
	}
	if id != "" {
		h["id"] = id
	}
	if bc, ok := tool["baseCommand"]; ok {
		h["baseCommand"] = bc
	}
	return h
}

// NormalizeToMap converts array-style CWL definitions to map-style.
// CWL supports both: inputs: [{id: x, type: File}] and inputs: {x: {type: File}}.
func NormalizeToMap(v any) map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return val
	case []any:
		result := make(map[string]any)
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				if id, ok := m["id"].(string); ok {
					result[id] = m
				}
			}
		}
		return result
	}
	return make(map[string]any)
}

// RequirementList converts map-style requirements/hints to array-style records.
// CWL supports both: hints: [{class: DockerRequirement, ...}] and hints: {DockerRequirement: {...}}.
// Map-style entries are emitted in class order; entries without a class are dropped.
func RequirementList(v any) []any {
	result := []any{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				if _, ok := m["class"].(string); ok {
					result = append(result, m)
				}
			}
		}
	case map[string]any:
		classes := make([]string, 0, len(val))
		for class := range val {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		for _, class := range classes {
			rec := map[string]any{"class": class}
			if body, ok := val[class].(map[string]any); ok {
				for k, x := range body {
					rec[k] = x
				}
			}
			result = append(result, rec)
		}
	}
	return result
}

func stripID(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, x := range m {
		if k != "id" {
			out[k] = x
		}
	}
	return out
}

func stripHash(s string) string {
	return strings.TrimPrefix(s, "#")
}

// shortKey reduces a fully-qualified id ("#main/align/reads") to its last segment.
func shortKey(id string) string {
	id = stripHash(id)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// shortSource strips the "#" and workflow-id prefix from source references,
// keeping the "step/output" form.
func shortSource(v any, wfID string) any {
	short := func(s string) string {
		s = stripHash(s)
		if wfID != "" {
			s = strings.TrimPrefix(s, wfID+"/")
		}
		return s
	}
	switch val := v.(type) {
	case string:
		return short(val)
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, short(s))
			}
		}
		return out
	}
	return v
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// resolveImports recursively processes $import directives in a CWL document.
// An $import directive is a map with a single key "$import" whose value is a file path.
// The directive is replaced with the parsed YAML content of the referenced file.
func (p *Parser) resolveImports(v any, baseDir string) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if importPath, ok := val["$import"].(string); ok && len(val) == 1 {
			fullPath := importPath
			if !filepath.IsAbs(importPath) {
				fullPath = filepath.Join(baseDir, importPath)
			}

			data, err := p.readFile(fullPath)
			if err != nil {
				return nil, fmt.Errorf("read import %q: %w", importPath, err)
			}

			var imported any
			if err := yaml.Unmarshal(data, &imported); err != nil {
				return nil, fmt.Errorf("parse import %q: %w", importPath, err)
			}

			return p.resolveImports(imported, filepath.Dir(fullPath))
		}

		result := make(map[string]any, len(val))
		for k, v := range val {
			resolved, err := p.resolveImports(v, baseDir)
			if err != nil {
				return nil, err
			}
			result[k] = resolved
		}
		return result, nil

	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			resolved, err := p.resolveImports(item, baseDir)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil

	default:
		return v, nil
	}
}

// stringField safely extracts a string from a map value.
func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	// Handle YAML type coercion (e.g., version: 1.0 parsed as float).
	return fmt.Sprintf("%v", v)
}
