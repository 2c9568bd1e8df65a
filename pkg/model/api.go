package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions configures history queries.
type ListOptions struct {
	Limit   int
	Offset  int
	BatchID string // Optional batch filter
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// ConvertRequest is the body of POST /api/v1/convert.
type ConvertRequest struct {
	Name              string `json:"name"`
	Document          string `json:"document"`
	Mode              string `json:"mode"`
	Augment           bool   `json:"augment"`
	OptimizeResources bool   `json:"optimize_resources"`
	Tier              string `json:"tier"`
	Template          string `json:"template"`
}

// ValidateRequest is the body of POST /api/v1/validate.
type ValidateRequest struct {
	Pipeline string `json:"pipeline"`
}
