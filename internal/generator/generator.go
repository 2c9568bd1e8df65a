// Package generator renders Nextflow DSL2 pipelines and their configuration
// from a workflow IR and its derived resource and container maps.
package generator

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/template"

	"github.com/me/cwl2nf/pkg/ir"
	"github.com/me/cwl2nf/pkg/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Built-in template names.
const (
	baseTemplate            = "base.nf.tmpl"
	augmentedTemplate       = "augmented.nf.tmpl"
	baseConfigTemplate      = "base.config.tmpl"
	augmentedConfigTemplate = "augmented.config.tmpl"
	customTemplate          = "custom"
)

// ErrNoCustomTemplate is returned when custom mode is requested without a template.
var ErrNoCustomTemplate = errors.New("custom mode requires a template")

// Platform holds target-platform values rendered into augmented output.
type Platform struct {
	Region     string `mapstructure:"region"`
	OutputDir  string `mapstructure:"output_dir"`
	Queue      string `mapstructure:"queue"`
	MaxRetries int    `mapstructure:"max_retries"`

	// RetryableExitCodes are retried; any other exit status terminates.
	RetryableExitCodes []int `mapstructure:"retryable_exit_codes"`
}

// DefaultPlatform returns the platform values used when none are configured.
func DefaultPlatform() Platform {
	return Platform{
		Region:             "us-east-1",
		OutputDir:          "results",
		Queue:              "default",
		MaxRetries:         3,
		RetryableExitCodes: []int{143, 137, 104, 134, 139},
	}
}

// RetryRule renders a Groovy expression that retries a task whose exit
// status is in codes and terminates it otherwise.
func RetryRule(codes []int) string {
	if len(codes) == 0 {
		return "'terminate'"
	}
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return "task.exitStatus in [" + strings.Join(parts, ", ") + "] ? 'retry' : 'terminate'"
}

var funcs = template.FuncMap{
	"groovy":    Quote,
	"literal":   Literal,
	"join":      strings.Join,
	"upper":     strings.ToUpper,
	"comment":   commentText,
	"retryRule": RetryRule,
}

// Generator renders pipelines. Output depends only on its arguments and the
// values fixed at construction.
type Generator struct {
	templates     *template.Template
	defaults      model.ResourceProfile
	platform      Platform
	errorStrategy string
	logger        *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithDefaults sets the profile used for processes missing from the resource map.
func WithDefaults(p model.ResourceProfile) Option {
	return func(g *Generator) { g.defaults = p }
}

// WithPlatform sets the target-platform values.
func WithPlatform(p Platform) Option {
	return func(g *Generator) { g.platform = p }
}

// WithErrorStrategy makes managed processes delegate their error strategy
// to call, a Groovy expression evaluated per task. Without it the
// platform's retryable exit codes are inlined.
func WithErrorStrategy(call string) Option {
	return func(g *Generator) { g.errorStrategy = call }
}

// New creates a Generator with the embedded templates.
func New(logger *slog.Logger, opts ...Option) *Generator {
	g := &Generator{
		templates: template.Must(template.New("pipeline").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")),
		defaults:  model.ResourceProfile{CPUs: 1, Memory: "1 GB", Disk: "10 GB", Time: "1h"},
		platform:  DefaultPlatform(),
		logger:    logger.With("component", "generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate renders the pipeline text. A non-empty custom template takes
// precedence; otherwise mode selects the augmented or base template.
// Cyclic step graphs are rejected with *model.CycleError.
func (g *Generator) Generate(w *ir.WorkflowIR, rm model.ResourceMap, cm model.ContainerMap, mode model.Mode, custom string) (string, error) {
	tmpl, name, err := g.selectTemplate(mode, custom)
	if err != nil {
		return "", err
	}

	data, err := g.project(w, rm, cm, mode)
	if err != nil {
		return "", fmt.Errorf("project workflow %s: %w", w.Info.Name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	g.logger.Debug("pipeline generated", "workflow", w.Info.Name, "template", name, "processes", len(data.Processes))
	return buf.String(), nil
}

// CheckTemplate reports whether custom parses against the built-in partials.
func (g *Generator) CheckTemplate(custom string) error {
	if strings.TrimSpace(custom) == "" {
		return ErrNoCustomTemplate
	}
	_, _, err := g.selectTemplate(model.ModeCustom, custom)
	return err
}

func (g *Generator) selectTemplate(mode model.Mode, custom string) (*template.Template, string, error) {
	if strings.TrimSpace(custom) != "" {
		t, err := g.templates.Clone()
		if err != nil {
			return nil, "", fmt.Errorf("clone templates: %w", err)
		}
		if _, err := t.New(customTemplate).Parse(custom); err != nil {
			return nil, "", fmt.Errorf("parse custom template: %w", err)
		}
		return t, customTemplate, nil
	}
	switch mode {
	case model.ModeCustom:
		return nil, "", ErrNoCustomTemplate
	case model.ModeAugmented:
		return g.templates, augmentedTemplate, nil
	default:
		return g.templates, baseTemplate, nil
	}
}

// ConfigData is rendered by the configuration templates.
type ConfigData struct {
	Name        string
	Version     string
	Description string
	Defaults    model.ResourceProfile
	Processes   []Process
	Platform    Platform
}

// GenerateConfig renders the execution configuration for the pipeline:
// executor, resource defaults, per-process resources and profiles.
func (g *Generator) GenerateConfig(w *ir.WorkflowIR, rm model.ResourceMap, mode model.Mode) (string, error) {
	name := baseConfigTemplate
	if mode == model.ModeAugmented {
		name = augmentedConfigTemplate
	}

	pr := &projector{
		w:         w,
		processes: uniqueIdents(w.SortedProcessIDs(), func(id string) string { return strings.ToUpper(Ident(id)) }),
		outputs:   map[string]map[string]string{},
		params:    map[string]string{},
	}
	data := ConfigData{
		Name:        w.Info.Name,
		Version:     w.Info.Version,
		Description: commentText(w.Info.Description),
		Defaults:    g.defaults,
		Platform:    g.platform,
	}
	for _, id := range w.SortedProcessIDs() {
		data.Processes = append(data.Processes, g.process(pr, id, rm, nil, mode == model.ModeAugmented))
	}

	var buf bytes.Buffer
	if err := g.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
