package model

import "fmt"

// DiagnosticCode names a non-fatal condition recorded during a conversion.
type DiagnosticCode string

const (
	FieldNormalizationWarning DiagnosticCode = "FieldNormalizationWarning"
	ResourceParseFallback     DiagnosticCode = "ResourceParseFallback"
	ContainerResolutionGap    DiagnosticCode = "ContainerResolutionGap"
	ValidationRuleFailure     DiagnosticCode = "ValidationRuleFailure"
	UnknownTier               DiagnosticCode = "UnknownTier"
	LoaderFallback            DiagnosticCode = "LoaderFallback"
)

// Diagnostic is one degraded condition: a default was substituted, a rule
// failed, or a strategy fell back. Diagnostics never abort a conversion.
type Diagnostic struct {
	Code      DiagnosticCode `json:"code"`
	Component string         `json:"component"`
	Subject   string         `json:"subject,omitempty"`
	Message   string         `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Subject == "" {
		return fmt.Sprintf("%s [%s]: %s", d.Code, d.Component, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", d.Code, d.Component, d.Subject, d.Message)
}

// Diagnostics is an ordered list of diagnostics.
type Diagnostics []Diagnostic

// Add appends a diagnostic.
func (ds *Diagnostics) Add(code DiagnosticCode, component, subject, format string, args ...any) {
	*ds = append(*ds, Diagnostic{
		Code:      code,
		Component: component,
		Subject:   subject,
		Message:   fmt.Sprintf(format, args...),
	})
}

// Count returns how many diagnostics carry the given code.
func (ds Diagnostics) Count(code DiagnosticCode) int {
	n := 0
	for _, d := range ds {
		if d.Code == code {
			n++
		}
	}
	return n
}
