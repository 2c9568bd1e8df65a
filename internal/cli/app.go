package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/me/cwl2nf/internal/augment"
	"github.com/me/cwl2nf/internal/config"
	"github.com/me/cwl2nf/internal/container"
	"github.com/me/cwl2nf/internal/convert"
	"github.com/me/cwl2nf/internal/generator"
	"github.com/me/cwl2nf/internal/loader"
	"github.com/me/cwl2nf/internal/parser"
	"github.com/me/cwl2nf/internal/resources"
	"github.com/me/cwl2nf/internal/store"
	"github.com/me/cwl2nf/internal/validate"
	"github.com/me/cwl2nf/pkg/model"
)

// buildConverter wires every stage from configuration. allowFiles controls
// whether documents may pull in run: and $import files from disk.
func buildConverter(c config.Config, logger *slog.Logger, st store.Store, allowFiles bool) *convert.Converter {
	var primary loader.Strategy
	if c.Loader.FullFidelity {
		var popts []parser.Option
		if !allowFiles {
			popts = append(popts, parser.WithoutFiles())
		}
		primary = loader.NewFullStrategy(logger, popts...)
	}

	d := c.Resources.Defaults
	resolver := container.NewResolver(logger,
		container.WithRegistry(c.Containers.Registry()),
		container.WithOptimize(c.Containers.Optimize),
	)
	gen := generator.New(logger,
		generator.WithPlatform(c.Platform.Generator()),
		generator.WithDefaults(model.ResourceProfile{CPUs: d.CPUs, Memory: d.Memory, Disk: d.Disk, Time: d.Time}),
		generator.WithErrorStrategy(augment.ErrorStrategyCall),
	)
	comp := convert.Components{
		Loader:    loader.New(logger, loader.WithPrimary(primary)),
		Mapper:    resources.NewMapper(logger, c.Resources.MapperOptions()...),
		Resolver:  resolver,
		Generator: gen,
		Augmenter: augment.New(c.Platform.Platform, logger),
		Validator: validate.New(logger, validate.WithRegistry(resolver.Registry())),
	}

	var opts []convert.Option
	if st != nil {
		opts = append(opts, convert.WithRecorder(st))
	}
	return convert.New(comp, logger, opts...)
}

// openStore opens and migrates the history store at path. An empty path
// disables history and returns a nil store.
func openStore(ctx context.Context, path string, logger *slog.Logger) (store.Store, error) {
	if path == "" {
		return nil, nil
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	logger.Debug("history store ready", "path", path)
	return st, nil
}

// conversionFlags are shared by convert and batch.
type conversionFlags struct {
	mode     string
	augment  bool
	optimize bool
	tier     string
	template string
	scripts  bool
}

func (f *conversionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "base", "Pipeline template: base, augmented or custom")
	cmd.Flags().BoolVar(&f.augment, "augment", false, "Wrap the pipeline with AWS HealthOmics scaffolding")
	cmd.Flags().BoolVar(&f.optimize, "optimize-resources", false, "Attach scheduling hints and enforce resource minimums")
	cmd.Flags().StringVar(&f.tier, "tier", "", "Fit resources to this compute tier (see 'cwl2nf tiers')")
	cmd.Flags().StringVar(&f.template, "template", "", "Custom pipeline template file; replaces the --mode template")
	cmd.Flags().BoolVar(&f.scripts, "scripts", false, "Also write container pull and push scripts")
}

// options validates the flags and reads the template file.
func (f *conversionFlags) options() (convert.Options, error) {
	mode, ok := model.ParseMode(f.mode)
	if !ok {
		return convert.Options{}, fmt.Errorf("unknown mode %q; want base, augmented or custom", f.mode)
	}
	opts := convert.Options{
		Mode:     mode,
		Augment:  f.augment,
		Optimize: f.optimize,
		Tier:     f.tier,
	}
	if f.template != "" {
		data, err := os.ReadFile(f.template)
		if err != nil {
			return convert.Options{}, fmt.Errorf("read template: %w", err)
		}
		opts.Template = string(data)
	}
	if opts.Mode == model.ModeCustom && opts.Template == "" {
		return convert.Options{}, fmt.Errorf("--mode custom needs --template")
	}
	return opts, nil
}
