// Package loader builds a WorkflowIR from a raw structural document.
//
// Two strategies sit behind one entry point: the full-fidelity strategy
// (internal/parser expansion plus link validation) and the raw strategy,
// which reads the mapping as-is and is always available. Load tries the
// full strategy first and falls back to the raw one on any error or panic.
package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/cwl2nf/internal/parser"
	"github.com/me/cwl2nf/pkg/ir"
	"github.com/me/cwl2nf/pkg/model"
	"gopkg.in/yaml.v3"
)

// Document is a decoded source document and where it came from.
type Document struct {
	// Path is the source path, used for the default workflow name and for
	// resolving relative references. It may be empty.
	Path string
	Raw  any
}

// Strategy builds an IR from a mapping document.
type Strategy interface {
	Name() string
	Load(doc Document, m map[string]any) (*ir.WorkflowIR, model.Diagnostics, error)
}

// Result is the outcome of a successful load.
type Result struct {
	IR          *ir.WorkflowIR
	Strategy    string
	Diagnostics model.Diagnostics
}

// Loader is the single load entry point.
type Loader struct {
	primary  Strategy
	fallback Strategy
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithPrimary replaces the preferred strategy. A nil strategy disables it.
func WithPrimary(s Strategy) Option {
	return func(l *Loader) { l.primary = s }
}

// New creates a Loader that prefers the full-fidelity strategy.
func New(logger *slog.Logger, opts ...Option) *Loader {
	logger = logger.With("component", component)
	l := &Loader{
		primary:  NewFullStrategy(logger),
		fallback: RawStrategy{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Decode parses document bytes as YAML (JSON is accepted as a subset).
// Undecodable content is a *model.DocumentFormatError.
func Decode(path string, data []byte) (Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, &model.DocumentFormatError{Source: path, Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	return Document{Path: path, Raw: canonicalize(raw)}, nil
}

// LoadFile reads, decodes and loads a document from disk.
func (l *Loader) LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Decode(path, data)
	if err != nil {
		return nil, err
	}
	return l.Load(doc)
}

// Load builds the IR. It fails only with *model.DocumentFormatError when
// the document is not a mapping.
func (l *Loader) Load(doc Document) (*Result, error) {
	m, ok := canonicalize(doc.Raw).(map[string]any)
	if !ok {
		reason := fmt.Sprintf("document is %s, not a mapping", describe(doc.Raw))
		return nil, &model.DocumentFormatError{Source: doc.Path, Reason: reason}
	}

	var diags model.Diagnostics
	if l.primary != nil {
		w, pd, err := safeLoad(l.primary, doc, m)
		if err == nil {
			l.logger.Debug("loaded workflow", "strategy", l.primary.Name(), "name", w.Info.Name)
			return &Result{IR: w, Strategy: l.primary.Name(), Diagnostics: pd}, nil
		}
		l.logger.Warn("full-fidelity load failed, falling back",
			"strategy", l.primary.Name(), "path", doc.Path, "error", err)
		diags.Add(model.LoaderFallback, component, doc.Path, "%s strategy failed: %v", l.primary.Name(), err)
	}

	w, fd, err := safeLoad(l.fallback, doc, m)
	if err != nil {
		return nil, fmt.Errorf("%s strategy: %w", l.fallback.Name(), err)
	}
	diags = append(diags, fd...)
	for _, d := range fd {
		l.logger.Warn("normalized field", "subject", d.Subject, "message", d.Message)
	}
	l.logger.Debug("loaded workflow", "strategy", l.fallback.Name(), "name", w.Info.Name)
	return &Result{IR: w, Strategy: l.fallback.Name(), Diagnostics: diags}, nil
}

// safeLoad converts a strategy panic into an error.
func safeLoad(s Strategy, doc Document, m map[string]any) (w *ir.WorkflowIR, diags model.Diagnostics, err error) {
	defer func() {
		if r := recover(); r != nil {
			w, diags, err = nil, nil, fmt.Errorf("panic in %s strategy: %v", s.Name(), r)
		}
	}()
	return s.Load(doc, m)
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "empty"
	case []any:
		return "a list"
	case string:
		return "a string"
	default:
		return fmt.Sprintf("a scalar (%T)", v)
	}
}

// RawStrategy reads the mapping structurally without resolving references.
type RawStrategy struct{}

// Name implements Strategy.
func (RawStrategy) Name() string { return "raw" }

// Load implements Strategy.
func (RawStrategy) Load(doc Document, m map[string]any) (*ir.WorkflowIR, model.Diagnostics, error) {
	w, diags := build(m, doc.Path)
	return w, diags, nil
}

// FullStrategy expands the document with the CWL engine and validates its links.
type FullStrategy struct {
	parser    *parser.Parser
	validator *parser.Validator
}

// NewFullStrategy creates the full-fidelity strategy.
func NewFullStrategy(logger *slog.Logger, opts ...parser.Option) *FullStrategy {
	return &FullStrategy{
		parser:    parser.New(logger, opts...),
		validator: parser.NewValidator(logger),
	}
}

// Name implements Strategy.
func (*FullStrategy) Name() string { return "full" }

// Load implements Strategy.
func (s *FullStrategy) Load(doc Document, m map[string]any) (*ir.WorkflowIR, model.Diagnostics, error) {
	baseDir := "."
	if doc.Path != "" {
		baseDir = filepath.Dir(doc.Path)
	}
	expanded, err := s.parser.Expand(m, baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("expand: %w", err)
	}
	w, diags := build(expanded, doc.Path)
	if apiErr := s.validator.Validate(w); apiErr != nil {
		return nil, nil, validationError(apiErr)
	}
	return w, diags, nil
}

func validationError(e *model.APIError) error {
	errs := make([]error, 0, len(e.Details))
	for _, d := range e.Details {
		errs = append(errs, fmt.Errorf("%s: %s", d.Field, d.Message))
	}
	return fmt.Errorf("%s: %w", e.Message, errors.Join(errs...))
}
