// Package convert orchestrates CWL to Nextflow conversions: loading, the
// concurrent resource and container passes, generation, augmentation and
// validation, for single documents and bounded-parallel batches.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/me/cwl2nf/internal/augment"
	"github.com/me/cwl2nf/internal/container"
	"github.com/me/cwl2nf/internal/generator"
	"github.com/me/cwl2nf/internal/loader"
	"github.com/me/cwl2nf/internal/resources"
	"github.com/me/cwl2nf/internal/validate"
	"github.com/me/cwl2nf/pkg/ir"
	"github.com/me/cwl2nf/pkg/model"
)

// Options are the per-conversion choices.
type Options struct {
	Mode model.Mode
	// Augment wraps the pipeline with platform scaffolding. Augmented mode
	// implies it.
	Augment bool
	// Optimize fits resources to Tier; a non-empty Tier implies it.
	Optimize bool
	Tier     string
	// Template is custom template text; it overrides Mode's built-in template.
	Template string
}

func (o Options) augmented() bool { return o.Augment || o.Mode == model.ModeAugmented }
func (o Options) optimized() bool { return o.Optimize || o.Tier != "" }

// Recorder persists conversion history. Failures are logged, never returned
// to the caller of a conversion.
type Recorder interface {
	SaveConversion(ctx context.Context, rec *model.HistoryRecord) error
	SaveBatch(ctx context.Context, rec *model.BatchRecord) error
}

// Components are the pipeline stages. Nil stages are built with defaults.
type Components struct {
	Loader    *loader.Loader
	Mapper    *resources.Mapper
	Resolver  *container.Resolver
	Generator *generator.Generator
	Augmenter *augment.Augmenter
	Validator *validate.Validator
}

// Converter runs conversions. It holds no per-conversion state and is safe
// for concurrent use.
type Converter struct {
	Components
	recorder Recorder
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithRecorder records every conversion and batch.
func WithRecorder(r Recorder) Option {
	return func(c *Converter) { c.recorder = r }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) { c.now = now }
}

// New creates a Converter.
func New(comp Components, logger *slog.Logger, opts ...Option) *Converter {
	if comp.Loader == nil {
		comp.Loader = loader.New(logger)
	}
	if comp.Mapper == nil {
		comp.Mapper = resources.NewMapper(logger)
	}
	if comp.Resolver == nil {
		comp.Resolver = container.NewResolver(logger)
	}
	if comp.Generator == nil {
		comp.Generator = generator.New(logger, generator.WithErrorStrategy(augment.ErrorStrategyCall))
	}
	if comp.Augmenter == nil {
		comp.Augmenter = augment.New(augment.DefaultPlatform(), logger)
	}
	if comp.Validator == nil {
		comp.Validator = validate.New(logger, validate.WithRegistry(comp.Resolver.Registry()))
	}
	c := &Converter{
		Components: comp,
		now:        time.Now,
		logger:     logger.With("component", "converter"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConvertFile reads and converts one document from disk.
func (c *Converter) ConvertFile(ctx context.Context, path string, opts Options) (*model.Conversion, error) {
	conv, err := c.convertFile(path, opts)
	c.record(ctx, "", path, conv, err)
	return conv, err
}

// Convert converts an already decoded document. Only a
// *model.DocumentFormatError or a cyclic step graph fail the conversion;
// every other problem is reported in the result.
func (c *Converter) Convert(ctx context.Context, doc loader.Document, opts Options) (*model.Conversion, error) {
	conv, err := c.convert(doc, opts)
	c.record(ctx, "", doc.Path, conv, err)
	return conv, err
}

func (c *Converter) convertFile(path string, opts Options) (*model.Conversion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := loader.Decode(path, data)
	if err != nil {
		return nil, err
	}
	return c.convert(doc, opts)
}

func (c *Converter) convert(doc loader.Document, opts Options) (*model.Conversion, error) {
	if _, ok := model.ParseMode(string(opts.Mode)); !ok {
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}
	if opts.Mode == "" {
		opts.Mode = model.ModeBase
	}

	loaded, err := c.Loader.Load(doc)
	if err != nil {
		return nil, err
	}
	w := loaded.IR
	diags := append(model.Diagnostics(nil), loaded.Diagnostics...)

	rm, cm, derived := c.derive(w, opts)
	diags = append(diags, derived...)

	pipeline, err := c.Generator.Generate(w, rm, cm, opts.Mode, opts.Template)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", w.Info.Name, err)
	}
	configMode := opts.Mode
	if opts.augmented() {
		configMode = model.ModeAugmented
	}
	config, err := c.Generator.GenerateConfig(w, rm, configMode)
	if err != nil {
		return nil, fmt.Errorf("generate config %s: %w", w.Info.Name, err)
	}

	if opts.augmented() {
		if pipeline, err = c.Augmenter.Augment(pipeline, w); err != nil {
			return nil, fmt.Errorf("augment %s: %w", w.Info.Name, err)
		}
	}

	result, vdiags := c.Validator.Validate(pipeline)
	result.Merge(c.Resolver.Validate(cm))
	diags = append(diags, vdiags...)

	conv := &model.Conversion{
		ID:           uuid.New().String(),
		Input:        doc.Path,
		WorkflowName: w.Info.Name,
		Strategy:     loaded.Strategy,
		Mode:         opts.Mode,
		Augmented:    opts.augmented(),
		Tier:         opts.Tier,
		Pipeline:     pipeline,
		Config:       config,
		Resources:    rm,
		Containers:   cm,
		Validation:   result,
		Diagnostics:  diags,
		CreatedAt:    c.now().UTC(),
	}
	c.logger.Info("conversion completed",
		"workflow", conv.WorkflowName,
		"strategy", conv.Strategy,
		"processes", len(w.Processes),
		"valid", result.Valid,
		"score", fmt.Sprintf("%.1f", result.OverallScore),
		"diagnostics", len(diags),
	)
	return conv, nil
}

// derive runs the resource and container passes concurrently. Both only
// read the IR.
func (c *Converter) derive(w *ir.WorkflowIR, opts Options) (model.ResourceMap, model.ContainerMap, model.Diagnostics) {
	var (
		rm           model.ResourceMap
		cm           model.ContainerMap
		rdiag, cdiag model.Diagnostics
		g            errgroup.Group
	)
	g.Go(func() error {
		if opts.optimized() {
			rm, rdiag = c.Mapper.OptimizeForTier(w, opts.Tier)
		} else {
			rm, rdiag = c.Mapper.Map(w)
		}
		return nil
	})
	g.Go(func() error {
		cm, cdiag = c.Resolver.Resolve(w)
		return nil
	})
	_ = g.Wait()
	return rm, cm, append(rdiag, cdiag...)
}

func (c *Converter) record(ctx context.Context, batchID, input string, conv *model.Conversion, err error) {
	if c.recorder == nil {
		return
	}
	rec := &model.HistoryRecord{
		ID:        uuid.New().String(),
		BatchID:   batchID,
		Input:     input,
		Success:   err == nil,
		CreatedAt: c.now().UTC(),
	}
	if conv != nil {
		rec.ID = conv.ID
		rec.WorkflowName = conv.WorkflowName
		rec.Strategy = conv.Strategy
		rec.Mode = conv.Mode
		rec.Valid = conv.Validation.Valid
		rec.OverallScore = conv.Validation.OverallScore
		rec.CreatedAt = conv.CreatedAt
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if serr := c.recorder.SaveConversion(ctx, rec); serr != nil {
		c.logger.Warn("record conversion failed", "input", input, "error", serr)
	}
}
