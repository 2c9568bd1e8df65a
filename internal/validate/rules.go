package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/me/cwl2nf/internal/container"
	"github.com/me/cwl2nf/pkg/model"
)

// Outcome is what one rule reports. Score is in [0,100].
type Outcome struct {
	model.Findings
	Score float64
}

// Rule is one independent evaluator.
type Rule interface {
	Name() string
	Evaluate(src *Source) (Outcome, error)
}

type ruleFunc struct {
	name string
	fn   func(*Source) (Outcome, error)
}

func (r ruleFunc) Name() string                          { return r.name }
func (r ruleFunc) Evaluate(src *Source) (Outcome, error) { return r.fn(src) }

// NewRule adapts a function to a Rule.
func NewRule(name string, fn func(*Source) (Outcome, error)) Rule {
	return ruleFunc{name: name, fn: fn}
}

// Rule names, in evaluation order.
const (
	RuleSyntax     = "syntax"
	RuleStructure  = "structure"
	RuleProcesses  = "processes"
	RuleWorkflow   = "workflow"
	RuleParameters = "parameters"
	RuleContainers = "containers"
	RulePlatform   = "aws_healthomics"
)

var (
	processRe   = regexp.MustCompile(`(?m)^[ \t]*process[ \t]+(\w+)\s*\{`)
	workflowRe  = regexp.MustCompile(`(?m)^[ \t]*workflow(?:[ \t]+(\w+))?\s*\{`)
	paramRe     = regexp.MustCompile(`(?m)^[ \t]*params\.(\w+)\s*=`)
	containerRe = regexp.MustCompile(`container\s*['"]([^'"]+)['"]`)
	callRe      = regexp.MustCompile(`\b(\w+)\s*\(`)
	doubleSemi  = regexp.MustCompile(`;\s*;`)

	scriptRe        = regexp.MustCompile(`(?m)^[ \t]*(script|shell|exec)\s*:`)
	inputRe         = regexp.MustCompile(`(?m)^[ \t]*input\s*:`)
	outputRe        = regexp.MustCompile(`(?m)^[ \t]*output\s*:`)
	containerDirRe  = regexp.MustCompile(`(?m)^[ \t]*container[ \t]+\S`)
	workflowEmitRe  = regexp.MustCompile(`(?m)^[ \t]*(emit|output|publish)\s*:`)
	awsBatchRe      = regexp.MustCompile(`executor\s*=\s*['"]awsbatch['"]`)
	awsRegionRe     = regexp.MustCompile(`aws\s*\{[^}]*region`)
	healthomicsRe   = regexp.MustCompile(`healthomics\s*\{`)
	observabilityRe = regexp.MustCompile(`(?i)cloudwatch|monitoring`)
	durableOutputRe = regexp.MustCompile(`s3://`)
)

// DefaultRules returns the built-in rules. reg decides which container
// images count as canonical.
func DefaultRules(reg container.Registry) []Rule {
	return []Rule{
		NewRule(RuleSyntax, checkSyntax),
		NewRule(RuleStructure, checkStructure),
		NewRule(RuleProcesses, checkProcesses),
		NewRule(RuleWorkflow, checkWorkflow),
		NewRule(RuleParameters, checkParameters),
		NewRule(RuleContainers, func(src *Source) (Outcome, error) { return checkContainers(src, reg) }),
		NewRule(RulePlatform, checkPlatform),
	}
}

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

type opener struct {
	char byte
	line int
}

// checkSyntax tracks delimiter balance across the whole text, ignoring
// comments and string contents. Every unmatched, mismatched or unclosed
// delimiter, unterminated literal and doubled semicolon is one issue.
func checkSyntax(src *Source) (Outcome, error) {
	var out Outcome
	var stack []opener
	lines := 0

	for i, line := range strings.Split(src.Bare, "\n") {
		n := i + 1
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines++
		for j := 0; j < len(line); j++ {
			c := line[j]
			switch c {
			case '(', '[', '{':
				stack = append(stack, opener{char: c, line: n})
			case ')', ']', '}':
				if len(stack) == 0 {
					out.Issues = append(out.Issues, fmt.Sprintf("Line %d: unmatched '%c'", n, c))
					continue
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.char != closers[c] {
					out.Issues = append(out.Issues, fmt.Sprintf("Line %d: '%c' does not close '%c' opened on line %d", n, c, top.char, top.line))
				}
			}
		}
		if doubleSemi.MatchString(line) {
			out.Issues = append(out.Issues, fmt.Sprintf("Line %d: double semicolon", n))
		}
	}
	for _, o := range stack {
		out.Issues = append(out.Issues, fmt.Sprintf("Line %d: unclosed '%c'", o.line, o.char))
	}
	for _, n := range src.Unterminated {
		out.Issues = append(out.Issues, fmt.Sprintf("Line %d: unterminated string or comment", n))
	}

	out.Score = 100
	if lines > 0 {
		out.Score = float64(lines-len(out.Issues)) / float64(lines) * 100
	}
	return out, nil
}

func checkStructure(src *Source) (Outcome, error) {
	var out Outcome
	if processRe.MatchString(src.Bare) {
		out.Score += 50
	} else {
		out.Issues = append(out.Issues, "No processes defined")
	}
	if workflowRe.MatchString(src.Bare) {
		out.Score += 30
	} else {
		out.Warnings = append(out.Warnings, "No workflow definition found")
	}
	if paramRe.MatchString(src.Bare) {
		out.Score += 20
	} else {
		out.Warnings = append(out.Warnings, "No parameters defined")
	}
	return out, nil
}

// checkProcesses scores four sections per process: script, input, output
// and container. Only a missing script is an issue.
func checkProcesses(src *Source) (Outcome, error) {
	var out Outcome
	procs := src.Blocks(processRe)
	if len(procs) == 0 {
		return out, nil
	}

	passed := 0
	for _, p := range procs {
		if scriptRe.MatchString(p.BareBody) || strings.Contains(p.Body, `"""`) {
			passed++
		} else {
			out.Issues = append(out.Issues, fmt.Sprintf("Process '%s' has no script defined", p.Name))
		}
		if inputRe.MatchString(p.BareBody) {
			passed++
		} else {
			out.Warnings = append(out.Warnings, fmt.Sprintf("Process '%s' has no input defined", p.Name))
		}
		if outputRe.MatchString(p.BareBody) {
			passed++
		} else {
			out.Warnings = append(out.Warnings, fmt.Sprintf("Process '%s' has no output defined", p.Name))
		}
		if containerDirRe.MatchString(p.BareBody) {
			passed++
		} else {
			out.Warnings = append(out.Warnings, fmt.Sprintf("Process '%s' has no container defined", p.Name))
		}
	}
	out.Score = float64(passed) / float64(4*len(procs)) * 100
	return out, nil
}

// checkWorkflow counts invocations of declared processes and named
// workflows across all workflow blocks.
func checkWorkflow(src *Source) (Outcome, error) {
	var out Outcome
	flows := src.Blocks(workflowRe)
	if len(flows) == 0 {
		out.Warnings = append(out.Warnings, "No workflow definition found")
		return out, nil
	}

	callable := map[string]bool{}
	for _, p := range src.Blocks(processRe) {
		callable[p.Name] = true
	}
	for _, f := range flows {
		if f.Name != "" {
			callable[f.Name] = true
		}
	}

	calls, emits := 0, false
	for _, f := range flows {
		for _, m := range callRe.FindAllStringSubmatch(f.BareBody, -1) {
			if callable[m[1]] && m[1] != f.Name {
				calls++
			}
		}
		if workflowEmitRe.MatchString(f.BareBody) {
			emits = true
		}
	}

	if calls == 0 {
		out.Warnings = append(out.Warnings, "Workflow has no process calls")
		out.Score = 20
		return out, nil
	}
	out.Score = min(100, float64(calls)*20)
	if emits {
		out.Score += 20
	}
	return out, nil
}

func checkParameters(src *Source) (Outcome, error) {
	var out Outcome
	seen := map[string]bool{}
	for _, m := range paramRe.FindAllStringSubmatch(src.Bare, -1) {
		seen[m[1]] = true
	}
	if len(seen) == 0 {
		out.Warnings = append(out.Warnings, "No parameters declared; inputs cannot be set from the command line")
		return out, nil
	}
	out.Score = min(100, float64(len(seen))*25)
	return out, nil
}

func checkContainers(src *Source, reg container.Registry) (Outcome, error) {
	var out Outcome
	matches := containerRe.FindAllStringSubmatch(src.Code, -1)
	if len(matches) == 0 {
		out.Warnings = append(out.Warnings, "No container specifications found")
		return out, nil
	}
	for _, m := range matches {
		if reg.IsCanonical(m[1]) {
			out.Score = 100
			return out, nil
		}
	}
	out.Warnings = append(out.Warnings, "No AWS-optimized containers found")
	out.Recommendations = append(out.Recommendations, "Mirror container images to Amazon ECR and reference them from public.ecr.aws")
	out.Score = 50
	return out, nil
}

// checkPlatform looks for the HealthOmics scaffolding anywhere in the text,
// comments included, since configuration may be carried as a comment block.
func checkPlatform(src *Source) (Outcome, error) {
	var out Outcome
	features := []struct {
		re      *regexp.Regexp
		warning string
	}{
		{awsBatchRe, "AWS Batch executor not configured"},
		{awsRegionRe, "AWS region not specified"},
		{healthomicsRe, ""},
		{observabilityRe, ""},
		{durableOutputRe, ""},
	}
	found := 0
	for _, f := range features {
		if f.re.MatchString(src.Text) {
			found++
		} else if f.warning != "" {
			out.Warnings = append(out.Warnings, f.warning)
		}
	}
	if !healthomicsRe.MatchString(src.Text) {
		out.Recommendations = append(out.Recommendations, "Augment the pipeline to add AWS HealthOmics configuration")
	}
	out.Score = float64(found) / float64(len(features)) * 100
	return out, nil
}
