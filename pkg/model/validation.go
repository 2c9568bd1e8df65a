package model

import "sort"

// Findings groups categorized validation findings.
type Findings struct {
	Issues          []string `json:"issues"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

// Append concatenates other onto f.
func (f *Findings) Append(other Findings) {
	f.Issues = append(f.Issues, other.Issues...)
	f.Warnings = append(f.Warnings, other.Warnings...)
	f.Recommendations = append(f.Recommendations, other.Recommendations...)
}

// ValidationResult is the aggregated quality report for a generated pipeline.
type ValidationResult struct {
	Valid           bool               `json:"valid"`
	Issues          []string           `json:"issues"`
	Warnings        []string           `json:"warnings"`
	Recommendations []string           `json:"recommendations"`
	Scores          map[string]float64 `json:"scores"`
	OverallScore    float64            `json:"overall_score"`
}

// NewValidationResult builds a result from findings and per-rule scores.
// Valid is derived from the issue list; OverallScore is the mean of scores.
func NewValidationResult(f Findings, scores map[string]float64) *ValidationResult {
	r := &ValidationResult{
		Issues:          nonNil(f.Issues),
		Warnings:        nonNil(f.Warnings),
		Recommendations: nonNil(f.Recommendations),
		Scores:          scores,
	}
	if r.Scores == nil {
		r.Scores = map[string]float64{}
	}
	r.recompute()
	return r
}

// Merge appends extra findings without contributing a score.
func (r *ValidationResult) Merge(f Findings) {
	r.Issues = append(r.Issues, f.Issues...)
	r.Warnings = append(r.Warnings, f.Warnings...)
	r.Recommendations = append(r.Recommendations, f.Recommendations...)
	r.recompute()
}

func (r *ValidationResult) recompute() {
	r.Valid = len(r.Issues) == 0
	if len(r.Scores) == 0 {
		r.OverallScore = 0
		return
	}
	names := make([]string, 0, len(r.Scores))
	for name := range r.Scores {
		names = append(names, name)
	}
	sort.Strings(names)
	var sum float64
	for _, name := range names {
		sum += r.Scores[name]
	}
	r.OverallScore = sum / float64(len(r.Scores))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
