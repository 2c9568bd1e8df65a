package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/cwl2nf/pkg/model"
)

// listOptions parses ?limit, ?offset and ?batch_id. Bad numbers are
// reported as field errors.
func listOptions(r *http.Request) (model.ListOptions, []model.FieldError) {
	opts := model.DefaultListOptions()
	var details []model.FieldError
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			details = append(details, model.FieldError{Field: p.name, Message: "must be an integer"})
			continue
		}
		*p.dst = n
	}
	opts.BatchID = q.Get("batch_id")
	opts.Clamp()
	return opts, details
}

// historyEnabled writes a 404 when no store is configured.
func (s *Server) historyEnabled(w http.ResponseWriter, reqID string) bool {
	if s.history != nil {
		return true
	}
	respondError(w, reqID, http.StatusNotFound, &model.APIError{
		Code:    model.ErrNotFound,
		Message: "conversion history is not enabled; start the server with --db",
	})
	return false
}

func (s *Server) handleListConversions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.historyEnabled(w, reqID) {
		return
	}
	opts, details := listOptions(r)
	if len(details) > 0 {
		badRequest(w, reqID, "Invalid query parameters", details...)
		return
	}

	recs, total, err := s.history.ListConversions(r.Context(), opts)
	if err != nil {
		s.internalError(w, reqID, "list conversions", err)
		return
	}
	respondList(w, reqID, recs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(recs) < total,
	})
}

func (s *Server) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.historyEnabled(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := s.history.GetConversion(r.Context(), id)
	if err != nil {
		s.internalError(w, reqID, "get conversion", err)
		return
	}
	if rec == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("conversion", id))
		return
	}
	respondOK(w, reqID, rec)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.historyEnabled(w, reqID) {
		return
	}
	opts, details := listOptions(r)
	if len(details) > 0 {
		badRequest(w, reqID, "Invalid query parameters", details...)
		return
	}

	recs, total, err := s.history.ListBatches(r.Context(), opts)
	if err != nil {
		s.internalError(w, reqID, "list batches", err)
		return
	}
	respondList(w, reqID, recs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(recs) < total,
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.historyEnabled(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := s.history.GetBatch(r.Context(), id)
	if err != nil {
		s.internalError(w, reqID, "get batch", err)
		return
	}
	if rec == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("batch", id))
		return
	}
	respondOK(w, reqID, rec)
}

func (s *Server) internalError(w http.ResponseWriter, reqID, op string, err error) {
	s.logger.Error(op+" failed", "request_id", reqID, "error", err)
	respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
		Code:    model.ErrInternal,
		Message: op + " failed",
	})
}
