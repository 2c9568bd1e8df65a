package validate

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/me/cwl2nf/internal/container"
	"github.com/me/cwl2nf/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

const wellFormed = `#!/usr/bin/env nextflow
nextflow.enable.dsl = 2

params.reads = null
params.outdir = 'results'

process ALIGN {
    container 'public.ecr.aws/healthomics/bwa:latest'
    cpus 2

    input:
    path reads

    output:
    path 'bam*', emit: bam

    script:
    """
    bwa mem ${reads} > out.bam
    """
}

workflow MAIN {
    take:
    ch_reads

    main:
    ALIGN(ch_reads)

    emit:
    bam = ALIGN.out.bam
}

workflow {
    MAIN(Channel.fromPath(params.reads))
}
`

func TestValidate_WellFormed(t *testing.T) {
	v := New(testLogger())
	res, diags := v.Validate(wellFormed)

	if !res.Valid {
		t.Fatalf("Valid = false, issues: %v", res.Issues)
	}
	if len(diags) != 0 {
		t.Errorf("diagnostics = %v, want none", diags)
	}

	want := map[string]float64{
		RuleSyntax:     100,
		RuleStructure:  100,
		RuleProcesses:  100,
		RuleWorkflow:   60,
		RuleParameters: 50,
		RuleContainers: 100,
		RulePlatform:   0,
	}
	if diff := cmp.Diff(want, res.Scores); diff != "" {
		t.Errorf("Scores mismatch (-want +got):\n%s", diff)
	}
	if got, want := res.OverallScore, 510.0/7; math.Abs(got-want) > 1e-9 {
		t.Errorf("OverallScore = %v, want %v", got, want)
	}
	wantWarnings := []string{"AWS Batch executor not configured", "AWS region not specified"}
	if diff := cmp.Diff(wantWarnings, res.Warnings); diff != "" {
		t.Errorf("Warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_Empty(t *testing.T) {
	res, _ := New(testLogger()).Validate("")

	if res.Valid {
		t.Error("empty pipeline reported valid")
	}
	if diff := cmp.Diff([]string{"No processes defined"}, res.Issues); diff != "" {
		t.Errorf("Issues mismatch (-want +got):\n%s", diff)
	}
	if res.Scores[RuleSyntax] != 100 {
		t.Errorf("syntax score = %v, want 100", res.Scores[RuleSyntax])
	}
	if got, want := res.OverallScore, 100.0/7; math.Abs(got-want) > 1e-9 {
		t.Errorf("OverallScore = %v, want %v", got, want)
	}
}

func TestSyntax(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		issues []string
	}{
		{"balanced", "a {\n    b(c[0])\n}\n", nil},
		{"unclosed", "a {\n", []string{"Line 1: unclosed '{'"}},
		{"unmatched", "\n}\n", []string{"Line 2: unmatched '}'"}},
		{"mismatched", "a ( ]", []string{"Line 1: ']' does not close '(' opened on line 1"}},
		{"delimiter in string", "x = '}'\ny = \"(\"\n", nil},
		{"delimiter in comments", "// }\n/* {\n( */\n", nil},
		{"escaped quote", `x = "a\"}"`, nil},
		{"script block", "s = \"\"\"\n}\n\"\"\"\n", nil},
		{"unterminated string", "x = 'abc\n", []string{"Line 1: unterminated string or comment"}},
		{"unterminated comment", "a\n/* b\n", []string{"Line 2: unterminated string or comment"}},
		{"double semicolon", "a;;\nb; ;\nc = ';;'\n", []string{"Line 1: double semicolon", "Line 2: double semicolon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := checkSyntax(NewSource(tt.text))
			if err != nil {
				t.Fatalf("checkSyntax: %v", err)
			}
			if diff := cmp.Diff(tt.issues, out.Issues, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("issues mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSyntax_Score(t *testing.T) {
	// Four counted lines, one issue.
	out, _ := checkSyntax(NewSource("a {\nb\nc\n}}\n"))
	if out.Score != 75 {
		t.Errorf("Score = %v, want 75", out.Score)
	}
}

func TestNewSource(t *testing.T) {
	src := NewSource("#!/bin/nf\nx = 'a{b' // c\n")
	if src.Code != "         \nx = 'a{b'     \n" {
		t.Errorf("Code = %q", src.Code)
	}
	if src.Bare != "         \nx = '   '     \n" {
		t.Errorf("Bare = %q", src.Bare)
	}
}

func TestBlocks(t *testing.T) {
	src := NewSource("// process FAKE {\nprocess A {\n    x { y }\n}\n\nprocess B {\n    s = '}'\n}\n")
	blocks := src.Blocks(processRe)
	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}
	if blocks[0].Name != "A" || blocks[0].Line != 2 {
		t.Errorf("blocks[0] = %s@%d, want A@2", blocks[0].Name, blocks[0].Line)
	}
	if blocks[0].Body != "\n    x { y }\n" {
		t.Errorf("blocks[0].Body = %q", blocks[0].Body)
	}
	if blocks[1].Name != "B" || blocks[1].Body != "\n    s = '}'\n" {
		t.Errorf("blocks[1] = %s %q", blocks[1].Name, blocks[1].Body)
	}
}

func TestProcesses(t *testing.T) {
	out, _ := checkProcesses(NewSource("process X {\n    input:\n    val a\n}\n"))
	if diff := cmp.Diff([]string{"Process 'X' has no script defined"}, out.Issues); diff != "" {
		t.Errorf("Issues mismatch (-want +got):\n%s", diff)
	}
	wantWarnings := []string{"Process 'X' has no output defined", "Process 'X' has no container defined"}
	if diff := cmp.Diff(wantWarnings, out.Warnings); diff != "" {
		t.Errorf("Warnings mismatch (-want +got):\n%s", diff)
	}
	if out.Score != 25 {
		t.Errorf("Score = %v, want 25", out.Score)
	}
}

func TestWorkflow(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		score   float64
		warning string
	}{
		{"missing", "process A {\n}\n", 0, "No workflow definition found"},
		{"no calls", "workflow {\n    println('hi')\n}\n", 20, "Workflow has no process calls"},
		{"one call", "process A {\n}\nworkflow {\n    A()\n}\n", 20, ""},
		{"calls and emit", "process A {\n}\nworkflow W {\n    main:\n    A()\n    A()\n    emit:\n    x = A.out\n}\n", 60, ""},
		{"capped", "process A {\n}\nworkflow {\n    A()\n    A()\n    A()\n    A()\n    A()\n    A()\n}\n", 100, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := checkWorkflow(NewSource(tt.text))
			if out.Score != tt.score {
				t.Errorf("Score = %v, want %v", out.Score, tt.score)
			}
			var want []string
			if tt.warning != "" {
				want = []string{tt.warning}
			}
			if diff := cmp.Diff(want, out.Warnings, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Warnings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParameters(t *testing.T) {
	out, _ := checkParameters(NewSource("params.a = 1\nparams.b = 2\nparams.a = 3\n"))
	if out.Score != 50 {
		t.Errorf("Score = %v, want 50", out.Score)
	}
	out, _ = checkParameters(NewSource("// params.a = 1\n"))
	if out.Score != 0 || len(out.Warnings) != 1 {
		t.Errorf("commented params: score %v, warnings %v", out.Score, out.Warnings)
	}
}

func TestContainers(t *testing.T) {
	reg := container.DefaultRegistry()
	tests := []struct {
		name  string
		text  string
		score float64
		recs  int
	}{
		{"none", "process A {\n}\n", 0, 0},
		{"commented", "// container 'public.ecr.aws/x:1'\n", 0, 0},
		{"canonical", "container 'ubuntu:22.04'\ncontainer \"public.ecr.aws/x:1\"\n", 100, 0},
		{"public only", "container 'ubuntu:22.04'\n", 50, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := checkContainers(NewSource(tt.text), reg)
			if out.Score != tt.score {
				t.Errorf("Score = %v, want %v", out.Score, tt.score)
			}
			if len(out.Recommendations) != tt.recs {
				t.Errorf("Recommendations = %v, want %d", out.Recommendations, tt.recs)
			}
		})
	}

	custom := container.Registry{CanonicalMarkers: []string{"registry.internal"}}
	out, _ := checkContainers(NewSource("container 'registry.internal/bwa:1'\n"), custom)
	if out.Score != 100 {
		t.Errorf("custom registry score = %v, want 100", out.Score)
	}
}

func TestPlatform(t *testing.T) {
	text := `process { executor = 'awsbatch' }
aws {
    region = 'us-east-1'
}
healthomics { workgroup = 'x' }
// CloudWatch
params.outdir = 's3://bucket/out'
`
	out, _ := checkPlatform(NewSource(text))
	if out.Score != 100 {
		t.Errorf("Score = %v, want 100", out.Score)
	}
	if len(out.Warnings)+len(out.Recommendations) != 0 {
		t.Errorf("unexpected findings: %+v", out.Findings)
	}

	out, _ = checkPlatform(NewSource("params.outdir = 's3://bucket/out'\n"))
	if out.Score != 20 {
		t.Errorf("Score = %v, want 20", out.Score)
	}
	if len(out.Recommendations) != 1 {
		t.Errorf("Recommendations = %v, want one", out.Recommendations)
	}
}

func TestValidate_RuleFailure(t *testing.T) {
	v := New(testLogger(), WithRules(
		NewRule("boom", func(*Source) (Outcome, error) { panic("index out of range") }),
		NewRule("broken", func(*Source) (Outcome, error) { return Outcome{}, errors.New("bad input") }),
		NewRule("ok", func(*Source) (Outcome, error) {
			return Outcome{Score: 80, Findings: model.Findings{Warnings: []string{"w"}}}, nil
		}),
	))

	res, diags := v.Validate("anything")

	wantIssues := []string{
		"Validation error in boom: panic: index out of range",
		"Validation error in broken: bad input",
	}
	if diff := cmp.Diff(wantIssues, res.Issues); diff != "" {
		t.Errorf("Issues mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]float64{"ok": 80}, res.Scores); diff != "" {
		t.Errorf("Scores mismatch (-want +got):\n%s", diff)
	}
	if res.OverallScore != 80 {
		t.Errorf("OverallScore = %v, want 80", res.OverallScore)
	}
	if res.Valid {
		t.Error("Valid = true with issues")
	}
	if got := diags.Count(model.ValidationRuleFailure); got != 2 {
		t.Errorf("ValidationRuleFailure diagnostics = %d, want 2", got)
	}
}

func TestValidate_ScoreBounds(t *testing.T) {
	v := New(testLogger(), WithRules(
		NewRule("high", func(*Source) (Outcome, error) { return Outcome{Score: 150}, nil }),
		NewRule("low", func(*Source) (Outcome, error) { return Outcome{Score: -10}, nil }),
		NewRule("nan", func(*Source) (Outcome, error) { return Outcome{Score: math.NaN()}, nil }),
		NewRule("warn", func(*Source) (Outcome, error) {
			return Outcome{Score: 50, Findings: model.Findings{Warnings: []string{"w"}, Recommendations: []string{"r"}}}, nil
		}),
	))
	res, _ := v.Validate("")

	want := map[string]float64{"high": 100, "low": 0, "nan": 0, "warn": 50}
	if diff := cmp.Diff(want, res.Scores); diff != "" {
		t.Errorf("Scores mismatch (-want +got):\n%s", diff)
	}
	if res.OverallScore != 37.5 {
		t.Errorf("OverallScore = %v, want 37.5", res.OverallScore)
	}
	if !res.Valid {
		t.Error("warnings and recommendations made the result invalid")
	}
}

func TestRuleNames(t *testing.T) {
	want := []string{"syntax", "structure", "processes", "workflow", "parameters", "containers", "aws_healthomics"}
	if diff := cmp.Diff(want, New(testLogger()).RuleNames()); diff != "" {
		t.Errorf("RuleNames mismatch (-want +got):\n%s", diff)
	}
}

func TestReport(t *testing.T) {
	r := model.NewValidationResult(model.Findings{
		Issues:          []string{"No processes defined"},
		Warnings:        []string{"No parameters defined"},
		Recommendations: []string{"Use ECR"},
	}, map[string]float64{"b": 100, "a": 0})

	got := Report(r)
	for _, want := range []string{
		"Nextflow Workflow Validation Report\n" + strings.Repeat("=", 50) + "\n\n",
		"Overall Status: INVALID\n",
		"Overall Score: 50.0/100\n",
		"Issues:\n  [x] No processes defined\n",
		"Warnings:\n  [!] No parameters defined\n",
		"Recommendations:\n  [-] Use ECR\n",
		"Detailed Scores:\n  a: 0.0/100\n  b: 100.0/100\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

type lintRunner struct {
	stdout, stderr string
	code           int
	err            error
	block          bool
	args           []string
}

func (r *lintRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	r.args = append([]string{name}, args...)
	if r.block {
		<-ctx.Done()
		return "", "", -1, ctx.Err()
	}
	return r.stdout, r.stderr, r.code, r.err
}

func TestLinter(t *testing.T) {
	ok := &lintRunner{stdout: "process {}"}
	res := newLinterWithRunner("", 0, ok).Lint(context.Background(), "main.nf")
	if !res.Valid || res.Output != "process {}" {
		t.Errorf("ok result = %+v", res)
	}
	if diff := cmp.Diff([]string{"nextflow", "config", "main.nf"}, ok.args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	res = newLinterWithRunner("nf", 0, &lintRunner{stderr: "syntax error", code: 1}).Lint(context.Background(), "main.nf")
	if res.Valid || res.ExitCode != 1 || res.Error != "syntax error" {
		t.Errorf("failed result = %+v", res)
	}

	res = newLinterWithRunner("nf", 0, &lintRunner{code: -1, err: errors.New("executable file not found")}).Lint(context.Background(), "main.nf")
	if res.Valid || res.Error != "executable file not found" {
		t.Errorf("missing binary result = %+v", res)
	}

	res = newLinterWithRunner("nf", 10*time.Millisecond, &lintRunner{block: true}).Lint(context.Background(), "main.nf")
	if res.Valid || res.Error != "validation timed out" {
		t.Errorf("timeout result = %+v", res)
	}
}
