// Package validate scores generated Nextflow pipelines with a set of
// independent rules and aggregates their findings.
package validate

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/me/cwl2nf/internal/container"
	"github.com/me/cwl2nf/pkg/model"
)

const component = "validator"

// Validator runs rules against pipeline text.
type Validator struct {
	rules    []Rule
	registry container.Registry
	logger   *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithRegistry sets the registry used to recognize canonical images.
func WithRegistry(r container.Registry) Option {
	return func(v *Validator) { v.registry = r }
}

// WithRules replaces the built-in rules.
func WithRules(rules ...Rule) Option {
	return func(v *Validator) { v.rules = rules }
}

// New creates a Validator. Without WithRules it runs DefaultRules.
func New(logger *slog.Logger, opts ...Option) *Validator {
	v := &Validator{
		registry: container.DefaultRegistry(),
		logger:   logger.With("component", component),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.rules == nil {
		v.rules = DefaultRules(v.registry)
	}
	return v
}

// RuleNames returns the configured rule names in evaluation order.
func (v *Validator) RuleNames() []string {
	names := make([]string, len(v.rules))
	for i, r := range v.rules {
		names[i] = r.Name()
	}
	return names
}

// Validate runs every rule. A rule that fails or panics contributes one
// issue naming it, no score and a ValidationRuleFailure diagnostic; the
// other rules are unaffected.
func (v *Validator) Validate(text string) (*model.ValidationResult, model.Diagnostics) {
	src := NewSource(text)

	var findings model.Findings
	var diags model.Diagnostics
	scores := make(map[string]float64, len(v.rules))

	for _, r := range v.rules {
		name := r.Name()
		out, err := evaluate(r, src)
		if err != nil {
			findings.Issues = append(findings.Issues, fmt.Sprintf("Validation error in %s: %v", name, err))
			diags.Add(model.ValidationRuleFailure, component, name, "%v", err)
			v.logger.Error("validation rule failed", "rule", name, "error", err)
			continue
		}
		findings.Append(out.Findings)
		scores[name] = clamp(out.Score)
	}

	res := model.NewValidationResult(findings, scores)
	v.logger.Debug("validation completed", "valid", res.Valid, "score", res.OverallScore, "issues", len(res.Issues))
	return res, diags
}

func evaluate(r Rule, src *Source) (out Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Evaluate(src)
}

func clamp(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(100, score))
}

// Report renders a validation result as text.
func Report(r *model.ValidationResult) string {
	var b strings.Builder
	b.WriteString("Nextflow Workflow Validation Report\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	status := "VALID"
	if !r.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(&b, "Overall Status: %s\n", status)
	fmt.Fprintf(&b, "Overall Score: %.1f/100\n\n", r.OverallScore)

	section := func(title, marker string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(title + ":\n")
		for _, item := range items {
			fmt.Fprintf(&b, "  %s %s\n", marker, item)
		}
		b.WriteString("\n")
	}
	section("Issues", "[x]", r.Issues)
	section("Warnings", "[!]", r.Warnings)
	section("Recommendations", "[-]", r.Recommendations)

	if len(r.Scores) > 0 {
		names := make([]string, 0, len(r.Scores))
		for name := range r.Scores {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("Detailed Scores:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "  %s: %.1f/100\n", name, r.Scores[name])
		}
	}
	return b.String()
}
