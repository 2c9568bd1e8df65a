package parser

import (
	"fmt"
	"log/slog"

	"github.com/me/cwl2nf/pkg/ir"
	"github.com/me/cwl2nf/pkg/model"
)

// SupportedVersions lists the cwlVersion values the full-fidelity engine accepts.
var SupportedVersions = []string{"v1.0", "v1.1", "v1.2"}

// Validator performs link-level validation on an expanded workflow IR.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a Validator with the given logger.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger.With("component", "link-validator")}
}

// Validate checks that every reference in the workflow resolves.
// Returns nil if valid, or an *model.APIError with FieldError details.
func (v *Validator) Validate(w *ir.WorkflowIR) *model.APIError {
	var errs []model.FieldError

	errs = append(errs, v.validateVersion(w)...)
	errs = append(errs, v.validateSteps(w)...)
	errs = append(errs, v.validateSources(w)...)
	errs = append(errs, v.validateOutputSources(w)...)
	errs = append(errs, v.validateDAG(w)...)

	if len(errs) == 0 {
		return nil
	}
	v.logger.Debug("workflow failed link validation", "errors", len(errs))
	return model.NewValidationError("CWL validation failed", errs...)
}

func (v *Validator) validateVersion(w *ir.WorkflowIR) []model.FieldError {
	for _, ver := range SupportedVersions {
		if w.Info.Version == ver {
			return nil
		}
	}
	return []model.FieldError{{
		Field:   "cwlVersion",
		Message: fmt.Sprintf("unsupported cwlVersion %q", w.Info.Version),
	}}
}

func (v *Validator) validateSteps(w *ir.WorkflowIR) []model.FieldError {
	var errs []model.FieldError
	for _, id := range w.SortedProcessIDs() {
		if w.Processes[id].Tool == "" {
			errs = append(errs, model.FieldError{
				Field:   fmt.Sprintf("steps.%s.run", id),
				Message: fmt.Sprintf("step %q is missing 'run' reference", id),
			})
		}
	}
	return errs
}

func (v *Validator) validSources(w *ir.WorkflowIR) map[string]bool {
	valid := make(map[string]bool)
	for id := range w.Inputs {
		valid[id] = true
	}
	for stepID, step := range w.Processes {
		for _, outID := range step.Outputs {
			valid[stepID+"/"+outID] = true
		}
	}
	return valid
}

func (v *Validator) validateSources(w *ir.WorkflowIR) []model.FieldError {
	var errs []model.FieldError
	valid := v.validSources(w)

	for _, stepID := range w.SortedProcessIDs() {
		step := w.Processes[stepID]
		for _, inID := range step.SortedInputNames() {
			si := step.Inputs[inID]
			if len(si.Sources) == 0 && si.Default == nil && si.ValueFrom == "" {
				errs = append(errs, model.FieldError{
					Field:   fmt.Sprintf("steps.%s.in.%s", stepID, inID),
					Message: fmt.Sprintf("step %q input %q has no source and no default", stepID, inID),
				})
				continue
			}
			for _, src := range si.Sources {
				if !valid[src] {
					errs = append(errs, model.FieldError{
						Field:   fmt.Sprintf("steps.%s.in.%s.source", stepID, inID),
						Message: fmt.Sprintf("source %q does not match any workflow input or step output", src),
					})
				}
			}
		}
	}
	return errs
}

func (v *Validator) validateOutputSources(w *ir.WorkflowIR) []model.FieldError {
	var errs []model.FieldError
	valid := v.validSources(w)

	for _, id := range w.SortedOutputNames() {
		out := w.Outputs[id]
		if out.Source == "" {
			errs = append(errs, model.FieldError{
				Field:   fmt.Sprintf("outputs.%s.outputSource", id),
				Message: fmt.Sprintf("output %q is missing outputSource", id),
			})
			continue
		}
		if !valid[out.Source] {
			errs = append(errs, model.FieldError{
				Field:   fmt.Sprintf("outputs.%s.outputSource", id),
				Message: fmt.Sprintf("outputSource %q does not match any step output or workflow input", out.Source),
			})
		}
	}
	return errs
}

func (v *Validator) validateDAG(w *ir.WorkflowIR) []model.FieldError {
	if _, err := BuildDAG(w); err != nil {
		return []model.FieldError{{
			Field:   "steps",
			Message: err.Error(),
		}}
	}
	return nil
}
