package generator

import (
	"sort"
	"strings"

	"github.com/me/cwl2nf/internal/parser"
	"github.com/me/cwl2nf/pkg/ir"
	"github.com/me/cwl2nf/pkg/model"
)

// Pipeline is the data every pipeline template renders, custom ones included.
type Pipeline struct {
	Name             string
	Label            string
	Version          string
	DescriptionLines []string
	Mode             model.Mode
	Augmented        bool
	// WorkflowName is the identifier of the named sub-workflow.
	WorkflowName string
	Params       []Param
	Outputs      []Output
	Processes    []Process
	Calls        []Call
	Platform     Platform
}

// Param is one workflow input rendered as a pipeline parameter.
type Param struct {
	Name        string
	Ident       string
	Type        string
	Description string
	Default     string
	Required    bool
	// Channel builds the input channel from the parameter.
	Channel string
}

// Output is one workflow output, emitted by the named workflow.
type Output struct {
	Name        string
	Ident       string
	Type        string
	Description string
	Channel     string
}

// Process is one step rendered as a process definition.
type Process struct {
	ID        string
	Name      string
	Ident     string
	Tool      string
	Container string
	CPUs      int
	Memory    string
	Disk      string
	Time      string

	// Managed is set for platform-targeted pipelines; Queue, ErrorStrategy
	// and MaxRetries are rendered only then.
	Managed       bool
	Queue         string
	InstanceType  string
	ErrorStrategy string
	MaxRetries    int
	Inputs        []ProcessInput
	Outputs       []ProcessOutput
	ScriptLines   []string
}

// ProcessInput is one declared process input.
type ProcessInput struct {
	Name      string
	Ident     string
	Qualifier string
}

// ProcessOutput is one declared process output.
type ProcessOutput struct {
	Name    string
	Ident   string
	Pattern string
}

// Call is one process invocation in the workflow body.
type Call struct {
	Process string
	Args    []string
}

// projector resolves names and channel expressions for one IR.
type projector struct {
	w         *ir.WorkflowIR
	params    map[string]string // input name -> ident
	processes map[string]string // process id -> process name
	outputs   map[string]map[string]string
}

func (g *Generator) project(w *ir.WorkflowIR, rm model.ResourceMap, cm model.ContainerMap, mode model.Mode) (*Pipeline, error) {
	dag, err := parser.BuildDAG(w)
	if err != nil {
		return nil, err
	}

	pr := &projector{
		w:         w,
		params:    uniqueIdents(w.SortedInputNames(), Ident, "outdir", "aws_region"),
		processes: uniqueIdents(w.SortedProcessIDs(), func(id string) string { return strings.ToUpper(Ident(id)) }),
		outputs:   make(map[string]map[string]string, len(w.Processes)),
	}
	for id, p := range w.Processes {
		pr.outputs[id] = uniqueIdents(sortedCopy(p.Outputs), Ident)
	}

	p := &Pipeline{
		Name:      w.Info.Name,
		Label:     commentText(w.Info.Label),
		Version:   w.Info.Version,
		Mode:      mode,
		Augmented: mode == model.ModeAugmented,
		Platform:  g.platform,
	}
	for _, line := range strings.Split(w.Info.Description, "\n") {
		if line = commentText(line); line != "" {
			p.DescriptionLines = append(p.DescriptionLines, line)
		}
	}

	taken := make(map[string]bool, len(pr.processes))
	for _, name := range pr.processes {
		taken[name] = true
	}
	wfName := strings.ToUpper(Ident(w.Info.Name))
	for taken[wfName] {
		wfName += "_WF"
	}
	p.WorkflowName = wfName

	for _, name := range w.SortedInputNames() {
		p.Params = append(p.Params, pr.param(w.Inputs[name]))
	}
	outIdents := uniqueIdents(w.SortedOutputNames(), Ident)
	for _, name := range w.SortedOutputNames() {
		out := w.Outputs[name]
		p.Outputs = append(p.Outputs, Output{
			Name:        name,
			Ident:       outIdents[name],
			Type:        MapType(out.Type),
			Description: commentText(out.Description),
			Channel:     pr.channel(out.Source),
		})
	}
	for _, id := range dag.Order {
		p.Processes = append(p.Processes, g.process(pr, id, rm, cm, p.Augmented))
		p.Calls = append(p.Calls, pr.call(id))
	}
	return p, nil
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func (pr *projector) param(in ir.InputSpec) Param {
	ident := pr.params[in.Name]
	typ := MapType(in.Type)
	ref := "params." + ident

	var ch string
	switch {
	case typ == TypeFile:
		ch = ref + " ? Channel.fromPath(" + ref + ") : Channel.empty()"
	case typ == TypeDirectory:
		ch = ref + " ? Channel.fromPath(" + ref + ", type: 'dir') : Channel.empty()"
	case typ == TypeArray && isPathType(in.Type):
		ch = ref + " ? Channel.fromPath(" + ref + ").collect() : Channel.empty()"
	default:
		ch = "Channel.value(" + ref + ")"
	}

	return Param{
		Name:        in.Name,
		Ident:       ident,
		Type:        typ,
		Description: commentText(in.Description),
		Default:     Literal(in.Default),
		Required:    in.Required,
		Channel:     ch,
	}
}

func isPathType(t string) bool {
	lower := strings.ToLower(t)
	return strings.Contains(lower, "file") || strings.Contains(lower, "directory")
}

// channel renders the channel expression a source refers to inside the
// named workflow: a take channel, a process output, or an empty channel
// when the source cannot be resolved.
func (pr *projector) channel(source string) string {
	if source == "" {
		return "Channel.empty()"
	}
	if up := parser.UpstreamStep(pr.w, source); up != "" {
		name := pr.processes[up]
		if i := strings.Index(source, "/"); i >= 0 {
			if out, ok := pr.outputs[up][source[i+1:]]; ok {
				return name + ".out." + out
			}
		}
		return name + ".out[0]"
	}
	if ident, ok := pr.params[source]; ok {
		return "ch_" + ident
	}
	return "Channel.empty()"
}

// isPathSource reports whether a source carries files.
func (pr *projector) isPathSource(source string) bool {
	if parser.UpstreamStep(pr.w, source) != "" {
		return true
	}
	if in, ok := pr.w.Inputs[source]; ok {
		return isPathType(in.Type)
	}
	return false
}

func (pr *projector) argument(si ir.StepInput) string {
	switch len(si.Sources) {
	case 0:
		switch {
		case si.Default != nil:
			return "Channel.value(" + Literal(si.Default) + ")"
		case si.ValueFrom != "":
			return "Channel.value(" + Quote(si.ValueFrom) + ")"
		default:
			return "Channel.value(null)"
		}
	case 1:
		return pr.channel(si.Sources[0])
	}
	parts := make([]string, len(si.Sources))
	for i, src := range si.Sources {
		parts[i] = pr.channel(src)
	}
	return parts[0] + ".mix(" + strings.Join(parts[1:], ", ") + ").collect()"
}

func (pr *projector) call(id string) Call {
	p := pr.w.Processes[id]
	c := Call{Process: pr.processes[id], Args: []string{}}
	for _, name := range p.SortedInputNames() {
		c.Args = append(c.Args, pr.argument(p.Inputs[name]))
	}
	return c
}

func (g *Generator) process(pr *projector, id string, rm model.ResourceMap, cm model.ContainerMap, managed bool) Process {
	spec := pr.w.Processes[id]

	prof, ok := rm[id]
	if !ok {
		prof = g.defaults
	}
	proc := Process{
		ID:           id,
		Name:         pr.processes[id],
		Ident:        Ident(id),
		Tool:         spec.Tool,
		Container:    cm[id].Image,
		CPUs:         max(prof.CPUs, 1),
		Memory:       orDefault(prof.Memory, g.defaults.Memory),
		Disk:         orDefault(prof.Disk, g.defaults.Disk),
		Time:         orDefault(prof.Time, g.defaults.Time),
		Managed:      managed,
		InstanceType: prof.InstanceType,
		Queue:        g.platform.Queue,
		MaxRetries:   g.platform.MaxRetries,
	}
	if managed {
		proc.ErrorStrategy = g.errorStrategy
		if proc.ErrorStrategy == "" {
			proc.ErrorStrategy = RetryRule(g.platform.RetryableExitCodes)
		}
	}
	if prof.Scheduling != nil {
		proc.Queue = prof.Scheduling.Queue
		proc.MaxRetries = prof.Scheduling.RetryAttempts
	}

	for _, name := range spec.SortedInputNames() {
		si := spec.Inputs[name]
		qualifier := "val"
		for _, src := range si.Sources {
			if pr.isPathSource(src) {
				qualifier = "path"
				break
			}
		}
		proc.Inputs = append(proc.Inputs, ProcessInput{Name: name, Ident: Ident(name), Qualifier: qualifier})
	}
	for _, name := range sortedCopy(spec.Outputs) {
		proc.Outputs = append(proc.Outputs, ProcessOutput{
			Name:    name,
			Ident:   pr.outputs[id][name],
			Pattern: name + "*",
		})
	}

	if len(spec.Command) > 0 {
		words := make([]string, len(spec.Command))
		for i, w := range spec.Command {
			words[i] = shellWord(w)
		}
		proc.ScriptLines = []string{scriptEscape(strings.Join(words, " "))}
	} else {
		proc.ScriptLines = []string{
			scriptEscape("# command of " + orDefault(spec.Tool, id) + " not available"),
			scriptEscape("echo 'Running " + strings.ReplaceAll(id, "'", "") + "'"),
		}
	}
	return proc
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
