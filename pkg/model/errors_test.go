package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrNotFound, Message: "Conversion 'conv_123' not found"}
	want := "NOT_FOUND: Conversion 'conv_123' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Conversion", "conv_abc")
	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Message != "Conversion 'conv_abc' not found" {
		t.Errorf("Message = %q, want %q", err.Message, "Conversion 'conv_abc' not found")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("Invalid request",
		FieldError{Field: "document", Message: "required"},
		FieldError{Field: "mode", Message: "unknown mode"},
	)
	if err.Code != ErrValidation {
		t.Errorf("Code = %q, want %q", err.Code, ErrValidation)
	}
	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
}

func TestDocumentFormatError(t *testing.T) {
	err := &DocumentFormatError{Source: "bad.cwl", Reason: "document is a list, not a mapping"}
	want := "DocumentFormatError: bad.cwl: document is a list, not a mapping"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	anon := &DocumentFormatError{Reason: "empty document"}
	if got := anon.Error(); got != "DocumentFormatError: empty document" {
		t.Errorf("Error() = %q, want DocumentFormatError: empty document", got)
	}
}

func TestBatchItemFailure_Unwrap(t *testing.T) {
	inner := &DocumentFormatError{Reason: "scalar"}
	err := fmt.Errorf("convert: %w", &BatchItemFailure{Input: "a.cwl", Err: inner})

	var dfe *DocumentFormatError
	if !errors.As(err, &dfe) {
		t.Fatal("errors.As did not find DocumentFormatError through BatchItemFailure")
	}
	if !strings.Contains(err.Error(), "DocumentFormatError") {
		t.Errorf("Error() = %q, want it to mention DocumentFormatError", err.Error())
	}
}

func TestCycleError(t *testing.T) {
	err := &CycleError{Steps: []string{"a", "b"}}
	want := "workflow contains a cycle involving steps: a, b"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationResult_ValidTracksIssues(t *testing.T) {
	r := NewValidationResult(Findings{Warnings: []string{"w"}}, map[string]float64{"a": 100, "b": 50})
	if !r.Valid {
		t.Error("Valid = false with warnings only, want true")
	}
	if r.OverallScore != 75 {
		t.Errorf("OverallScore = %v, want 75", r.OverallScore)
	}

	r.Merge(Findings{Issues: []string{"missing image"}})
	if r.Valid {
		t.Error("Valid = true after merging an issue, want false")
	}
	if r.OverallScore != 75 {
		t.Errorf("OverallScore = %v after merge, want 75", r.OverallScore)
	}
}

func TestDiagnostics_AddAndCount(t *testing.T) {
	var ds Diagnostics
	ds.Add(ResourceParseFallback, "resources", "align", "unparsable memory %q", "lots")
	ds.Add(FieldNormalizationWarning, "loader", "", "input type missing")
	if got := ds.Count(ResourceParseFallback); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
	want := `ResourceParseFallback [resources] align: unparsable memory "lots"`
	if got := ds[0].String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
