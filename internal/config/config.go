// Package config loads cwl2nf settings from defaults, an optional config
// file and CWL2NF_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/me/cwl2nf/internal/augment"
	"github.com/me/cwl2nf/internal/container"
	"github.com/me/cwl2nf/internal/cwlexpr"
	"github.com/me/cwl2nf/internal/generator"
	"github.com/me/cwl2nf/internal/resources"
	"github.com/me/cwl2nf/pkg/model"
)

// EnvPrefix is the prefix for environment variables. Nested keys use
// underscores: CWL2NF_PLATFORM_REGION sets platform.region.
const EnvPrefix = "CWL2NF"

// Config holds all cwl2nf settings.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Loader     LoaderConfig     `mapstructure:"loader"`
	Resources  ResourcesConfig  `mapstructure:"resources"`
	Containers ContainersConfig `mapstructure:"containers"`
	Platform   PlatformConfig   `mapstructure:"platform"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Publish    PublishConfig    `mapstructure:"publish"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// LoaderConfig controls document loading.
type LoaderConfig struct {
	// FullFidelity enables the full strategy; when off only the raw
	// strategy runs.
	FullFidelity bool `mapstructure:"full_fidelity"`
}

// ResourcesConfig feeds the resource mapper.
type ResourcesConfig struct {
	Defaults    resources.Defaults `mapstructure:"defaults"`
	NumericUnit string             `mapstructure:"numeric_unit"`
	Scheduling  SchedulingConfig   `mapstructure:"scheduling"`

	// ExpressionTimeout bounds each resource or time-limit expression.
	ExpressionTimeout time.Duration `mapstructure:"expression_timeout"`

	// Tiers are added to the default catalog, replacing tiers of the same name.
	Tiers []resources.Tier `mapstructure:"tiers"`
}

// SchedulingConfig are the hints attached to tier-fitted profiles.
type SchedulingConfig struct {
	Queue         string `mapstructure:"queue"`
	JobDefinition string `mapstructure:"job_definition"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
}

// ContainersConfig feeds the container resolver. Empty fields keep the
// default registry tables.
type ContainersConfig struct {
	Optimize         bool                `mapstructure:"optimize"`
	Namespace        string              `mapstructure:"namespace"`
	CanonicalMarkers []string            `mapstructure:"canonical_markers"`
	Mappings         []container.Mapping `mapstructure:"mappings"`
	Curated          map[string]string   `mapstructure:"curated"`
}

// PlatformConfig holds the target platform settings shared by the
// generator and the augmenter.
type PlatformConfig struct {
	augment.Platform `mapstructure:",squash"`
	OutputDir        string `mapstructure:"output_dir"`
}

// BatchConfig bounds batch runs.
type BatchConfig struct {
	Workers int           `mapstructure:"workers"` // 0 means GOMAXPROCS
	Timeout time.Duration `mapstructure:"timeout"` // 0 means no deadline
}

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig locates the conversion history database. An empty path
// disables history.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// PublishConfig is the default s3://bucket/prefix artifacts are published to.
type PublishConfig struct {
	Target string `mapstructure:"target"`
	Region string `mapstructure:"region"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	sched := resources.DefaultScheduling()
	return Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Loader: LoaderConfig{FullFidelity: true},
		Resources: ResourcesConfig{
			Defaults:          resources.DefaultDefaults(),
			NumericUnit:       "B",
			ExpressionTimeout: cwlexpr.DefaultTimeout,
			Scheduling: SchedulingConfig{
				Queue:         sched.Queue,
				JobDefinition: sched.JobDefinition,
				RetryAttempts: sched.RetryAttempts,
			},
		},
		Containers: ContainersConfig{Optimize: true, Namespace: container.DefaultNamespace},
		Platform: PlatformConfig{
			Platform:  augment.DefaultPlatform(),
			OutputDir: generator.DefaultPlatform().OutputDir,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load overlays the config file at path (YAML, JSON or TOML, by extension)
// and CWL2NF_* environment variables onto DefaultConfig. An empty path
// means defaults and environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every scalar key so environment variables can
// override it. Tables have no defaults here; they overlay the built-in ones.
func setDefaults(v *viper.Viper, d Config) {
	for key, val := range map[string]any{
		"log.level":                           d.Log.Level,
		"log.format":                          d.Log.Format,
		"loader.full_fidelity":                d.Loader.FullFidelity,
		"resources.defaults.cpus":             d.Resources.Defaults.CPUs,
		"resources.defaults.memory":           d.Resources.Defaults.Memory,
		"resources.defaults.disk":             d.Resources.Defaults.Disk,
		"resources.defaults.time":             d.Resources.Defaults.Time,
		"resources.numeric_unit":              d.Resources.NumericUnit,
		"resources.expression_timeout":        d.Resources.ExpressionTimeout,
		"resources.scheduling.queue":          d.Resources.Scheduling.Queue,
		"resources.scheduling.job_definition": d.Resources.Scheduling.JobDefinition,
		"resources.scheduling.retry_attempts": d.Resources.Scheduling.RetryAttempts,
		"containers.optimize":                 d.Containers.Optimize,
		"containers.namespace":                d.Containers.Namespace,
		"platform.region":                     d.Platform.Region,
		"platform.bucket":                     d.Platform.Bucket,
		"platform.workgroup":                  d.Platform.Workgroup,
		"platform.role":                       d.Platform.Role,
		"platform.queue":                      d.Platform.Queue,
		"platform.retryable_exit_codes":       d.Platform.RetryableExitCodes,
		"platform.max_retries":                d.Platform.MaxRetries,
		"platform.backoff_seconds":            d.Platform.BackoffSeconds,
		"platform.output_dir":                 d.Platform.OutputDir,
		"batch.workers":                       d.Batch.Workers,
		"batch.timeout":                       d.Batch.Timeout,
		"server.addr":                         d.Server.Addr,
		"store.path":                          d.Store.Path,
		"publish.target":                      d.Publish.Target,
		"publish.region":                      d.Publish.Region,
	} {
		v.SetDefault(key, val)
	}
}

// Validate rejects settings no component can work with.
func (c Config) Validate() error {
	var errs []string
	if c.Resources.Defaults.CPUs < 1 {
		errs = append(errs, "resources.defaults.cpus must be at least 1")
	}
	if _, ok := resources.DefaultUnitTable().Factor(c.Resources.NumericUnit); !ok {
		errs = append(errs, fmt.Sprintf("resources.numeric_unit %q is not a known unit", c.Resources.NumericUnit))
	}
	for i, t := range c.Resources.Tiers {
		if t.Name == "" || t.CPUs < 1 || t.MemoryGB <= 0 {
			errs = append(errs, fmt.Sprintf("resources.tiers[%d] needs a name, cpus >= 1 and memory_gb > 0", i))
		}
	}
	if c.Platform.MaxRetries < 0 || c.Platform.BackoffSeconds < 0 {
		errs = append(errs, "platform.max_retries and platform.backoff_seconds must not be negative")
	}
	if c.Batch.Workers < 0 {
		errs = append(errs, "batch.workers must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Catalog returns the default tiers overlaid with the configured ones.
func (c ResourcesConfig) Catalog() resources.Catalog {
	return resources.NewCatalog(append(resources.DefaultTiers(), c.Tiers...))
}

// MapperOptions converts the section into resource mapper options.
func (c ResourcesConfig) MapperOptions() []resources.Option {
	return []resources.Option{
		resources.WithDefaults(c.Defaults),
		resources.WithNumericUnit(c.NumericUnit),
		resources.WithExpressionTimeout(c.ExpressionTimeout),
		resources.WithCatalog(c.Catalog()),
		resources.WithScheduling(model.SchedulingHints{
			Queue:         c.Scheduling.Queue,
			JobDefinition: c.Scheduling.JobDefinition,
			RetryAttempts: c.Scheduling.RetryAttempts,
		}),
	}
}

// Registry returns the default registry tables with the configured
// fields replacing them. Curated entries are merged.
func (c ContainersConfig) Registry() container.Registry {
	r := container.DefaultRegistry()
	if c.Namespace != "" {
		r.Namespace = c.Namespace
	}
	if len(c.CanonicalMarkers) > 0 {
		r.CanonicalMarkers = append([]string(nil), c.CanonicalMarkers...)
	}
	if len(c.Mappings) > 0 {
		r.Mappings = append([]container.Mapping(nil), c.Mappings...)
	}
	for tool, image := range c.Curated {
		r.Curated[tool] = image
	}
	return r
}

// Generator returns the platform values the pipeline generator renders.
func (c PlatformConfig) Generator() generator.Platform {
	return generator.Platform{
		Region:             c.Region,
		OutputDir:          c.OutputDir,
		Queue:              c.Queue,
		MaxRetries:         c.MaxRetries,
		RetryableExitCodes: append([]int(nil), c.RetryableExitCodes...),
	}
}
