// Package resources derives normalized compute-resource profiles per process
// and fits them to a target compute tier.
package resources

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/me/cwl2nf/internal/cwlexpr"
	"github.com/me/cwl2nf/pkg/ir"
	"github.com/me/cwl2nf/pkg/model"
)

const component = "resources"

// Defaults are the profile values used when no requirement specifies a field.
type Defaults struct {
	CPUs   int    `mapstructure:"cpus"`
	Memory string `mapstructure:"memory"`
	Disk   string `mapstructure:"disk"`
	Time   string `mapstructure:"time"`
}

// DefaultDefaults returns {cpus:1, memory:"1 GB", disk:"10 GB", time:"1h"}.
func DefaultDefaults() Defaults {
	return Defaults{CPUs: 1, Memory: "1 GB", Disk: "10 GB", Time: "1h"}
}

// DefaultScheduling is attached to tier-fitted profiles.
func DefaultScheduling() model.SchedulingHints {
	return model.SchedulingHints{Queue: "default", JobDefinition: "nextflow-job", RetryAttempts: 3}
}

// Mapper derives resource profiles from an IR. It never writes into the IR.
type Mapper struct {
	defaults   Defaults
	catalog    Catalog
	units      UnitTable
	scheduling model.SchedulingHints
	// numericUnit is the unit bare numbers in ram/tmpdir fields are read in.
	numericUnit string
	// exprTimeout bounds each expression evaluation.
	exprTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithDefaults overrides the default profile.
func WithDefaults(d Defaults) Option { return func(m *Mapper) { m.defaults = d } }

// WithCatalog injects the tier catalog.
func WithCatalog(c Catalog) Option { return func(m *Mapper) { m.catalog = c } }

// WithUnitTable injects the memory unit table.
func WithUnitTable(u UnitTable) Option { return func(m *Mapper) { m.units = u } }

// WithScheduling overrides the scheduling hints attached by OptimizeForTier.
func WithScheduling(s model.SchedulingHints) Option { return func(m *Mapper) { m.scheduling = s } }

// WithNumericUnit sets the unit bare numeric ram/tmpdir values are expressed in.
// The default is bytes ("B").
func WithNumericUnit(unit string) Option { return func(m *Mapper) { m.numericUnit = unit } }

// WithExpressionTimeout bounds each resource or time-limit expression.
// An expression that runs longer falls back to the default value.
func WithExpressionTimeout(d time.Duration) Option {
	return func(m *Mapper) { m.exprTimeout = d }
}

// NewMapper creates a Mapper with the default tables.
func NewMapper(logger *slog.Logger, opts ...Option) *Mapper {
	m := &Mapper{
		defaults:    DefaultDefaults(),
		catalog:     DefaultCatalog(),
		units:       DefaultUnitTable(),
		scheduling:  DefaultScheduling(),
		numericUnit: "B",
		exprTimeout: cwlexpr.DefaultTimeout,
		logger:      logger.With("component", component),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Catalog returns the injected tier catalog.
func (m *Mapper) Catalog() Catalog { return m.catalog }

// Units returns the injected unit table.
func (m *Mapper) Units() UnitTable { return m.units }

// Map derives one profile per process.
func (m *Mapper) Map(w *ir.WorkflowIR) (model.ResourceMap, model.Diagnostics) {
	var diags model.Diagnostics
	ctx := cwlexpr.NewContext(w.InputDefaults())
	eval := cwlexpr.NewEvaluator(expressionLib(w), cwlexpr.WithTimeout(m.exprTimeout))

	out := make(model.ResourceMap, len(w.Processes))
	for _, id := range w.SortedProcessIDs() {
		p := w.Processes[id]
		f := fieldMapper{m: m, process: id, eval: eval, ctx: ctx, diags: &diags}
		prof := model.ResourceProfile{
			CPUs:   m.defaults.CPUs,
			Memory: m.defaults.Memory,
			Disk:   m.defaults.Disk,
			Time:   m.defaults.Time,
		}
		if req := firstResource(p, w); req != nil {
			f.apply(req, &prof)
		}
		if tl := firstTimeLimit(p, w); tl != nil {
			if t, ok := f.duration(tl.Timelimit); ok {
				prof.Time = t
			}
		}
		out[id] = prof
	}
	return out, diags
}

// OptimizeForTier maps the workflow and fits every profile to the named tier:
// cpus and memory are clamped down to the tier ceiling, never raised, and
// minimums of one cpu and 1 GB are enforced. An empty tier name applies
// only the minimums and scheduling hints; an unknown one is reported and
// leaves profiles unclamped.
func (m *Mapper) OptimizeForTier(w *ir.WorkflowIR, tierName string) (model.ResourceMap, model.Diagnostics) {
	rm, diags := m.Map(w)

	tier, found := m.catalog.Lookup(tierName)
	if tierName != "" && !found {
		m.logger.Warn("unknown tier, skipping clamp", "tier", tierName)
		diags.Add(model.UnknownTier, component, tierName, "tier %q not in catalog; resources not clamped", tierName)
	}

	for id, prof := range rm {
		if found {
			prof = m.clamp(prof, tier)
		}
		prof = m.enforceMinimums(prof)
		sched := m.scheduling
		prof.Scheduling = &sched
		rm[id] = prof
	}
	return rm, diags
}

func (m *Mapper) clamp(prof model.ResourceProfile, tier Tier) model.ResourceProfile {
	if tier.CPUs > 0 && prof.CPUs > tier.CPUs {
		m.logger.Debug("clamped cpus", "from", prof.CPUs, "to", tier.CPUs, "tier", tier.Name)
		prof.CPUs = tier.CPUs
	}
	if gb, ok := m.units.GB(prof.Memory); ok && tier.MemoryGB > 0 && gb > tier.MemoryGB {
		m.logger.Debug("clamped memory", "from", prof.Memory, "tier", tier.Name)
		prof.Memory = formatNumber(tier.MemoryGB) + " GB"
	}
	prof.Tier = tier.Name
	prof.InstanceType = tier.InstanceType
	return prof
}

func (m *Mapper) enforceMinimums(prof model.ResourceProfile) model.ResourceProfile {
	if prof.CPUs < 1 {
		prof.CPUs = 1
	}
	if gb, ok := m.units.GB(prof.Memory); !ok || gb < 1 {
		prof.Memory = "1 GB"
	}
	return prof
}

// firstResource returns the first ResourceRequirement in local scope
// (requirements, then hints), else in global scope.
func firstResource(p ir.ProcessSpec, w *ir.WorkflowIR) *ir.ResourceRequirement {
	for _, list := range [][]ir.Requirement{p.Requirements, p.Hints, w.Requirements.Resource, w.Hints.Resource} {
		for _, r := range list {
			if r.Resource != nil {
				return r.Resource
			}
		}
	}
	return nil
}

// firstTimeLimit mirrors firstResource for ToolTimeLimit records.
func firstTimeLimit(p ir.ProcessSpec, w *ir.WorkflowIR) *ir.TimeLimitRequirement {
	for _, list := range [][]ir.Requirement{p.Requirements, p.Hints, w.Requirements.Other, w.Hints.Other} {
		for _, r := range list {
			if r.TimeLimit != nil {
				return r.TimeLimit
			}
		}
	}
	return nil
}

// expressionLib collects InlineJavascriptRequirement libraries of the workflow.
func expressionLib(w *ir.WorkflowIR) []string {
	var lib []string
	for _, r := range append(append([]ir.Requirement{}, w.Requirements.Other...), w.Hints.Other...) {
		if !strings.EqualFold(r.Class, "InlineJavascriptRequirement") {
			continue
		}
		if list, ok := r.Fields["expressionLib"].([]any); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					lib = append(lib, s)
				}
			}
		}
	}
	return lib
}

// fieldMapper converts individual requirement values for one process.
type fieldMapper struct {
	m       *Mapper
	process string
	eval    *cwlexpr.Evaluator
	ctx     *cwlexpr.Context
	diags   *model.Diagnostics
}

func (f fieldMapper) fallback(field string, v any, reason string) {
	f.m.logger.Warn("resource value not understood, using default",
		"process", f.process, "field", field, "value", v, "reason", reason)
	f.diags.Add(model.ResourceParseFallback, component, f.process, "%s %v: %s; default kept", field, v, reason)
}

func (f fieldMapper) apply(req *ir.ResourceRequirement, prof *model.ResourceProfile) {
	if v, field := pick(req.CoresMin, req.CoresMax, "coresMin", "coresMax"); v != nil {
		if n, ok := f.number(field, v); ok {
			prof.CPUs = max(1, int(math.Ceil(n)))
		}
	}
	if v, field := pick(req.RamMin, req.RamMax, "ramMin", "ramMax"); v != nil {
		if s, ok := f.size(field, v); ok {
			prof.Memory = s
		}
	}
	if v, field := pick(req.TmpdirMin, req.TmpdirMax, "tmpdirMin", "tmpdirMax"); v != nil {
		if s, ok := f.size(field, v); ok {
			prof.Disk = s
		}
	}
}

func pick(lo, hi any, loName, hiName string) (any, string) {
	if lo != nil {
		return lo, loName
	}
	return hi, hiName
}

// number resolves a numeric field: literal, numeric string or expression.
func (f fieldMapper) number(field string, v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case string:
		if cwlexpr.IsExpression(val) {
			n, err := f.eval.EvaluateNumber(val, f.ctx)
			if err != nil {
				f.fallback(field, v, err.Error())
				return 0, false
			}
			return n, true
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			f.fallback(field, v, "not a number")
			return 0, false
		}
		return n, true
	}
	f.fallback(field, v, fmt.Sprintf("unsupported type %T", v))
	return 0, false
}

// size resolves a ram or tmpdir field into a canonical memory string.
func (f fieldMapper) size(field string, v any) (string, bool) {
	units := f.m.units
	factor, ok := units.Factor(f.m.numericUnit)
	if !ok {
		factor = 1
	}

	if s, isString := v.(string); isString && !cwlexpr.IsExpression(s) {
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			canonical, _, ok := units.Normalize(s)
			if !ok {
				f.fallback(field, v, "unrecognized unit")
				return "", false
			}
			return canonical, true
		}
	}

	n, ok := f.number(field, v)
	if !ok {
		return "", false
	}
	if n <= 0 {
		f.fallback(field, v, "must be positive")
		return "", false
	}
	return units.Format(n * factor), true
}

var durationString = regexp.MustCompile(`^\s*([0-9]+)\s*([smhdSMHD])\s*$`)

// duration renders a ToolTimeLimit value. Numbers are seconds; zero means
// no limit and keeps the default.
func (f fieldMapper) duration(v any) (string, bool) {
	if s, isString := v.(string); isString {
		if m := durationString.FindStringSubmatch(s); m != nil {
			n, _ := strconv.Atoi(m[1])
			mult := map[string]int{"s": 1, "m": 60, "h": 3600, "d": 86400}[strings.ToLower(m[2])]
			return formatSeconds(n * mult), n > 0
		}
	}
	n, ok := f.number("timelimit", v)
	if !ok {
		return "", false
	}
	if n <= 0 {
		return "", false
	}
	return formatSeconds(int(math.Ceil(n))), true
}

// formatSeconds picks the largest unit that divides the value exactly.
func formatSeconds(sec int) string {
	switch {
	case sec%86400 == 0:
		return strconv.Itoa(sec/86400) + "d"
	case sec%3600 == 0:
		return strconv.Itoa(sec/3600) + "h"
	case sec%60 == 0:
		return strconv.Itoa(sec/60) + "m"
	default:
		return strconv.Itoa(sec) + "s"
	}
}
