package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "cwl2nf API",
		Version:     "v1",
		Description: "Convert CWL workflows to Nextflow pipelines for AWS HealthOmics",
		Endpoints: []endpointInfo{
			{"/api/v1/convert", []string{"POST"}, "Convert a CWL document to a Nextflow pipeline and config"},
			{"/api/v1/validate", []string{"POST"}, "Score a Nextflow pipeline"},
			{"/api/v1/tiers", []string{"GET"}, "List the compute tiers resources can be fitted to"},
			{"/api/v1/conversions", []string{"GET"}, "Conversion history, newest first. Accepts ?limit, ?offset and ?batch_id"},
			{"/api/v1/conversions/{id}", []string{"GET"}, "Single conversion history record"},
			{"/api/v1/batches", []string{"GET"}, "Batch history, newest first"},
			{"/api/v1/batches/{id}", []string{"GET"}, "Single batch history record; its conversions are listed with ?batch_id"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
