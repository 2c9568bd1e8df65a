// Package augment wraps generated pipelines with AWS HealthOmics scaffolding:
// monitoring helpers, platform configuration and a retry policy.
package augment

import (
	"bytes"
	"embed"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/template"

	"github.com/me/cwl2nf/internal/generator"
	"github.com/me/cwl2nf/pkg/ir"
)

//go:embed scaffold/*.tmpl
var scaffoldFS embed.FS

const (
	monitoringScaffold = "monitoring.nf.tmpl"
	platformScaffold   = "platform.nf.tmpl"
	errorsScaffold     = "errors.nf.tmpl"
)

// ErrorStrategyCall invokes the retry policy defined by the error-handling
// scaffold. Processes of an augmented pipeline use it as their errorStrategy.
const ErrorStrategyCall = "healthomics_error_strategy(task)"

// Platform holds the HealthOmics settings rendered into the scaffolds.
type Platform struct {
	Region             string `mapstructure:"region"`
	Bucket             string `mapstructure:"bucket"`
	Workgroup          string `mapstructure:"workgroup"`
	Role               string `mapstructure:"role"`
	Queue              string `mapstructure:"queue"`
	RetryableExitCodes []int  `mapstructure:"retryable_exit_codes"`
	MaxRetries         int    `mapstructure:"max_retries"`
	BackoffSeconds     int    `mapstructure:"backoff_seconds"`
}

// DefaultPlatform returns the settings used when none are configured.
// Retried exit codes are SIGTERM (143), SIGKILL/out-of-memory (137),
// connection reset (104), SIGABRT (134) and SIGSEGV (139).
func DefaultPlatform() Platform {
	return Platform{
		Region:             "us-east-1",
		Workgroup:          "default",
		Queue:              "default",
		RetryableExitCodes: []int{143, 137, 104, 134, 139},
		MaxRetries:         3,
		BackoffSeconds:     30,
	}
}

type scaffoldData struct {
	Platform
	Name           string
	OutputLocation string
	LogLocation    string
}

// Augmenter renders the scaffolds around a base pipeline.
type Augmenter struct {
	platform  Platform
	templates *template.Template
	logger    *slog.Logger
}

// New creates an Augmenter for the given platform settings.
func New(p Platform, logger *slog.Logger) *Augmenter {
	funcs := template.FuncMap{
		"groovy": generator.Quote,
		"join":   joinInts,
	}
	p.RetryableExitCodes = append([]int(nil), p.RetryableExitCodes...)
	return &Augmenter{
		platform:  p,
		templates: template.Must(template.New("scaffold").Funcs(funcs).ParseFS(scaffoldFS, "scaffold/*.tmpl")),
		logger:    logger.With("component", "augmenter"),
	}
}

// Platform returns the configured settings.
func (a *Augmenter) Platform() Platform { return a.platform }

// Augment returns the monitoring scaffold, the base pipeline, the platform
// configuration scaffold and the error-handling scaffold, in that order.
func (a *Augmenter) Augment(base string, w *ir.WorkflowIR) (string, error) {
	data := a.data(w)

	var out strings.Builder
	for i, name := range []string{monitoringScaffold, "", platformScaffold, errorsScaffold} {
		if i > 0 {
			out.WriteString("\n")
		}
		if name == "" {
			out.WriteString(base)
			continue
		}
		var buf bytes.Buffer
		if err := a.templates.ExecuteTemplate(&buf, name, data); err != nil {
			return "", fmt.Errorf("render scaffold %s: %w", name, err)
		}
		out.Write(buf.Bytes())
	}

	a.logger.Debug("pipeline augmented", "workflow", data.Name, "region", a.platform.Region)
	return out.String(), nil
}

func (a *Augmenter) data(w *ir.WorkflowIR) scaffoldData {
	name := ir.DefaultName
	if w != nil && w.Info.Name != "" {
		name = safeName(w.Info.Name)
	}

	bucket := a.platform.Bucket
	if bucket == "" {
		bucket = "${AWS_HEALTHOMICS_BUCKET}"
	}
	bucket = "s3://" + strings.TrimSuffix(strings.TrimPrefix(bucket, "s3://"), "/")

	d := scaffoldData{
		Platform:       a.platform,
		Name:           name,
		OutputLocation: bucket + "/outputs/" + name + "/",
		LogLocation:    bucket + "/logs/" + name + "/",
	}
	// Values land inside a block comment.
	d.Region = uncomment(d.Region)
	d.Workgroup = uncomment(d.Workgroup)
	d.Role = uncomment(d.Role)
	d.Queue = uncomment(d.Queue)
	d.OutputLocation = uncomment(d.OutputLocation)
	d.LogLocation = uncomment(d.LogLocation)
	return d
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		}
		return '_'
	}, s)
}

func uncomment(s string) string {
	return strings.ReplaceAll(s, "*/", "* /")
}

func joinInts(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ", ")
}
