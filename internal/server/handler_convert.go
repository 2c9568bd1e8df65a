package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/me/cwl2nf/internal/convert"
	"github.com/me/cwl2nf/internal/loader"
	"github.com/me/cwl2nf/pkg/model"
)

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.ConvertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, reqID, "Invalid JSON body: "+err.Error())
		return
	}

	var details []model.FieldError
	if strings.TrimSpace(req.Document) == "" {
		details = append(details, model.FieldError{Field: "document", Message: "document is required"})
	}
	mode, ok := model.ParseMode(req.Mode)
	if !ok {
		details = append(details, model.FieldError{
			Field:   "mode",
			Message: fmt.Sprintf("unknown mode %q; want base, augmented or custom", req.Mode),
		})
	}
	if mode == model.ModeCustom || req.Template != "" {
		if err := s.converter.Generator.CheckTemplate(req.Template); err != nil {
			details = append(details, model.FieldError{Field: "template", Message: err.Error()})
		}
	}
	if len(details) > 0 {
		badRequest(w, reqID, "Invalid convert request", details...)
		return
	}

	doc, err := loader.Decode(req.Name, []byte(req.Document))
	if err != nil {
		s.respondConvertError(w, reqID, err)
		return
	}
	conv, err := s.converter.Convert(r.Context(), doc, convert.Options{
		Mode:     mode,
		Augment:  req.Augment,
		Optimize: req.OptimizeResources,
		Tier:     req.Tier,
		Template: req.Template,
	})
	if err != nil {
		s.respondConvertError(w, reqID, err)
		return
	}
	respondOK(w, reqID, conv)
}

// respondConvertError maps conversion failures to HTTP statuses: a
// non-mapping document or a cyclic step graph is the client's to fix.
func (s *Server) respondConvertError(w http.ResponseWriter, reqID string, err error) {
	var dfe *model.DocumentFormatError
	var cycle *model.CycleError
	switch {
	case errors.As(err, &dfe):
		respondError(w, reqID, http.StatusUnprocessableEntity, &model.APIError{
			Code:    model.ErrDocumentFormat,
			Message: dfe.Error(),
		})
	case errors.As(err, &cycle):
		respondError(w, reqID, http.StatusUnprocessableEntity, model.NewValidationError(cycle.Error(),
			model.FieldError{Field: "steps", Message: strings.Join(cycle.Steps, ", ")}))
	default:
		s.logger.Error("conversion failed", "request_id", reqID, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code:    model.ErrInternal,
			Message: "conversion failed: " + err.Error(),
		})
	}
}

type validateResponse struct {
	*model.ValidationResult
	Diagnostics model.Diagnostics `json:"diagnostics,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, reqID, "Invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Pipeline) == "" {
		badRequest(w, reqID, "Invalid validate request",
			model.FieldError{Field: "pipeline", Message: "pipeline is required"})
		return
	}

	result, diags := s.converter.Validator.Validate(req.Pipeline)
	respondOK(w, reqID, validateResponse{ValidationResult: result, Diagnostics: diags})
}
