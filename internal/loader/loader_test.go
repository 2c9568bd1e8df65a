package loader

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/me/cwl2nf/internal/parser"
	"github.com/me/cwl2nf/pkg/ir"
	"github.com/me/cwl2nf/pkg/model"
	"gopkg.in/yaml.v3"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testLoader(opts ...Option) *Loader {
	return New(testLogger(), opts...)
}

func mustLoadFile(t *testing.T, l *Loader, rel string) *Result {
	t.Helper()
	res, err := l.LoadFile(filepath.Join("testdata", rel))
	if err != nil {
		t.Fatalf("LoadFile(%s): %v", rel, err)
	}
	return res
}

func TestLoadFile_FullFidelity(t *testing.T) {
	res := mustLoadFile(t, testLoader(), "variant-calling.cwl")
	w := res.IR

	if res.Strategy != "full" {
		t.Fatalf("Strategy = %q, want full (diagnostics: %v)", res.Strategy, res.Diagnostics)
	}
	if w.Info.Name != "variant-calling" {
		t.Errorf("Name = %q, want variant-calling", w.Info.Name)
	}
	if w.Info.Version != "v1.2" {
		t.Errorf("Version = %q, want v1.2", w.Info.Version)
	}
	if w.Info.Description != "Align, sort and call variants\non a single sample." {
		t.Errorf("Description = %q, want joined doc lines", w.Info.Description)
	}

	align := w.Processes["align"]
	if diff := cmp.Diff([]string{"bwa", "mem"}, align.Command); diff != "" {
		t.Errorf("align.Command mismatch (-want +got):\n%s", diff)
	}
	if len(align.Requirements) != 2 {
		t.Fatalf("align requirements = %d, want 2 lifted from the tool", len(align.Requirements))
	}
	if align.Requirements[0].Docker == nil || align.Requirements[0].Docker.DockerPull != "docker.io/bwa:latest" {
		t.Errorf("align.Requirements[0] = %+v, want docker.io/bwa:latest", align.Requirements[0])
	}
	if align.Requirements[1].TimeLimit == nil {
		t.Errorf("align.Requirements[1] = %+v, want ToolTimeLimit", align.Requirements[1])
	}

	if diff := cmp.Diff([]string{"tools/bwa.cwl", "tools/bcftools.cwl"}, w.Dependencies); diff != "" {
		t.Errorf("Dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile_TypesAndBuckets(t *testing.T) {
	w := mustLoadFile(t, testLoader(), "variant-calling.cwl").IR

	tests := map[string]string{
		"reads":       "array<File>",
		"reference":   "File",
		"threads":     "int",
		"sample_name": "union",
	}
	for name, want := range tests {
		if got := w.Inputs[name].Type; got != want {
			t.Errorf("inputs.%s.Type = %q, want %q", name, got, want)
		}
	}
	if w.Inputs["threads"].Required {
		t.Error("threads.Required = true, want false (has default)")
	}
	if !w.Inputs["reads"].Required {
		t.Error("reads.Required = false, want true")
	}

	if len(w.Requirements.Resource) != 1 {
		t.Errorf("Requirements.Resource = %d, want 1", len(w.Requirements.Resource))
	}
	if len(w.Hints.Docker) != 1 {
		t.Errorf("Hints.Docker = %d, want 1", len(w.Hints.Docker))
	}
	if len(w.Hints.Software) != 0 || len(w.Hints.Other) != 1 {
		t.Errorf("Hints software/other = %d/%d, want 0/1", len(w.Hints.Software), len(w.Hints.Other))
	}

	call := w.Processes["call"]
	if diff := cmp.Diff([]string{"vcf"}, call.Outputs); diff != "" {
		t.Errorf("call.Outputs mismatch (-want +got):\n%s", diff)
	}
	if got := call.Inputs["bam"]; got.Kind != ir.StepInputReference || got.Source() != "align/bam" {
		t.Errorf("call.in.bam = %+v, want reference to align/bam", got)
	}
	if got := w.Processes["align"].Inputs["threads"]; got.Kind != ir.StepInputRecord || got.Source() != "threads" {
		t.Errorf("align.in.threads = %+v, want record with source threads", got)
	}
}

func TestLoad_FallsBackOnBrokenLinks(t *testing.T) {
	res := mustLoadFile(t, testLoader(), "broken-link.cwl")

	if res.Strategy != "raw" {
		t.Fatalf("Strategy = %q, want raw", res.Strategy)
	}
	if res.Diagnostics.Count(model.LoaderFallback) != 1 {
		t.Errorf("diagnostics = %v, want one LoaderFallback", res.Diagnostics)
	}
	count := res.IR.Processes["count"]
	if count.Tool != "tools/bcftools.cwl" {
		t.Errorf("Tool = %q, want tools/bcftools.cwl", count.Tool)
	}
	if count.Command != nil {
		t.Errorf("Command = %v, want nil from the raw strategy", count.Command)
	}
}

func TestLoad_MinimalDocumentDefaults(t *testing.T) {
	res := mustLoadFile(t, testLoader(), "minimal.yml")
	w := res.IR

	if w.Info.Name != "minimal" {
		t.Errorf("Name = %q, want minimal", w.Info.Name)
	}
	if w.Info.Version != ir.DefaultVersion {
		t.Errorf("Version = %q, want %q", w.Info.Version, ir.DefaultVersion)
	}
	if w.Inputs["name"].Type != "string" {
		t.Errorf("inputs.name.Type = %q, want string", w.Inputs["name"].Type)
	}
	if w.Outputs["greeting"].Type != "File" {
		t.Errorf("outputs.greeting.Type = %q, want File", w.Outputs["greeting"].Type)
	}
	if got := res.Diagnostics.Count(model.FieldNormalizationWarning); got != 3 {
		t.Errorf("FieldNormalizationWarning count = %d, want 3 (%v)", got, res.Diagnostics)
	}
}

func TestLoad_EmptyMapping(t *testing.T) {
	res, err := testLoader().Load(Document{Raw: map[string]any{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	w := res.IR
	if w.Info.Name != ir.DefaultName {
		t.Errorf("Name = %q, want %q", w.Info.Name, ir.DefaultName)
	}
	if w.Inputs == nil || w.Outputs == nil || w.Processes == nil {
		t.Error("containers must be empty, not nil")
	}
	if len(w.Dependencies) != 0 {
		t.Errorf("Dependencies = %v, want empty", w.Dependencies)
	}
}

func TestLoad_NotAMapping(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{"list", []any{"a"}, "a list"},
		{"string", "workflow", "a string"},
		{"empty", nil, "empty"},
		{"number", 3, "a scalar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testLoader().Load(Document{Path: "x.cwl", Raw: tt.raw})
			var dfe *model.DocumentFormatError
			if !errors.As(err, &dfe) {
				t.Fatalf("err = %v, want *model.DocumentFormatError", err)
			}
			if !strings.Contains(dfe.Reason, tt.want) {
				t.Errorf("Reason = %q, want it to contain %q", dfe.Reason, tt.want)
			}
		})
	}
}

func TestLoadFile_NotAMapping(t *testing.T) {
	_, err := testLoader().LoadFile(filepath.Join("testdata", "not-a-mapping.yml"))
	var dfe *model.DocumentFormatError
	if !errors.As(err, &dfe) {
		t.Fatalf("err = %v, want *model.DocumentFormatError", err)
	}
	if !strings.HasPrefix(err.Error(), "DocumentFormatError") {
		t.Errorf("Error() = %q, want DocumentFormatError prefix", err.Error())
	}
}

func TestDecode_InvalidYAML(t *testing.T) {
	_, err := Decode("bad.cwl", []byte("steps: [unclosed"))
	var dfe *model.DocumentFormatError
	if !errors.As(err, &dfe) {
		t.Fatalf("err = %v, want *model.DocumentFormatError", err)
	}
}

func TestDecode_NonStringKeys(t *testing.T) {
	doc, err := Decode("", []byte("inputs:\n  1: File\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	inputs := doc.Raw.(map[string]any)["inputs"]
	if _, ok := inputs.(map[string]any)["1"]; !ok {
		t.Errorf("inputs = %#v, want string key \"1\"", inputs)
	}
}

type panicStrategy struct{}

func (panicStrategy) Name() string { return "boom" }

func (panicStrategy) Load(Document, map[string]any) (*ir.WorkflowIR, model.Diagnostics, error) {
	panic("engine exploded")
}

func TestLoad_PrimaryPanicFallsBack(t *testing.T) {
	l := testLoader(WithPrimary(panicStrategy{}))
	res, err := l.Load(Document{Raw: map[string]any{"id": "wf"}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Strategy != "raw" {
		t.Errorf("Strategy = %q, want raw", res.Strategy)
	}
	if len(res.Diagnostics) == 0 || !strings.Contains(res.Diagnostics[0].Message, "engine exploded") {
		t.Errorf("diagnostics = %v, want the recovered panic", res.Diagnostics)
	}
}

func TestLoad_PrimaryDisabled(t *testing.T) {
	l := testLoader(WithPrimary(nil))
	res := mustLoadFile(t, l, "variant-calling.cwl")
	if res.Strategy != "raw" {
		t.Errorf("Strategy = %q, want raw", res.Strategy)
	}
	if res.Diagnostics.Count(model.LoaderFallback) != 0 {
		t.Errorf("diagnostics = %v, want no fallback when the primary is disabled", res.Diagnostics)
	}
}

func TestLoad_FullWithoutFiles(t *testing.T) {
	l := testLoader(WithPrimary(NewFullStrategy(testLogger(), parser.WithoutFiles())))
	res := mustLoadFile(t, l, "variant-calling.cwl")
	if res.Strategy != "raw" {
		t.Errorf("Strategy = %q, want raw after the file reference is refused", res.Strategy)
	}
	if res.Diagnostics.Count(model.LoaderFallback) != 1 {
		t.Errorf("diagnostics = %v, want one fallback", res.Diagnostics)
	}
}

// Reloading the canonical serialization of a loaded IR yields the same IR.
func TestLoad_Idempotent(t *testing.T) {
	for _, rel := range []string{"variant-calling.cwl", "broken-link.cwl", "minimal.yml"} {
		t.Run(rel, func(t *testing.T) {
			l := testLoader()
			path := filepath.Join("testdata", rel)
			first := mustLoadFile(t, l, rel).IR

			data, err := yaml.Marshal(first.ToDocument())
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			doc, err := Decode(path, data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			second, err := l.Load(doc)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(first, second.IR); diff != "" {
				t.Errorf("IR changed on reload (-first +second):\n%s", diff)
			}
		})
	}
}
