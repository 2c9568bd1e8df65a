package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/cwl2nf/internal/config"
	"github.com/me/cwl2nf/internal/convert"
	"github.com/me/cwl2nf/internal/logging"
	"github.com/me/cwl2nf/internal/store"
	"github.com/me/cwl2nf/pkg/model"
)

func testServer(t *testing.T, withStore bool) *Server {
	t.Helper()
	logger := logging.Discard()
	var (
		convOpts []convert.Option
		srvOpts  []Option
	)
	if withStore {
		st, err := store.NewSQLiteStore(":memory:", logger)
		require.NoError(t, err)
		require.NoError(t, st.Migrate(context.Background()))
		t.Cleanup(func() { st.Close() })
		convOpts = append(convOpts, convert.WithRecorder(st))
		srvOpts = append(srvOpts, WithStore(st))
	}
	conv := convert.New(convert.Components{}, logger, convOpts...)
	return New(config.DefaultConfig().Server, conv, logger, srvOpts...)
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func do(t *testing.T, srv *Server, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "%s %s: body=%s", method, path, w.Body.String())
	return w.Code, env
}

func convertBody(t *testing.T, req model.ConvertRequest) string {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return string(b)
}

const fastqcTool = `cwlVersion: v1.2
class: CommandLineTool
id: fastqc
baseCommand: fastqc
requirements:
  DockerRequirement:
    dockerPull: quay.io/biocontainers/fastqc:0.12.1
  ResourceRequirement:
    coresMin: 4
inputs:
  reads: File
outputs:
  report: File
`

const cyclicWorkflow = `cwlVersion: v1.2
class: Workflow
inputs: {}
outputs: {}
steps:
  first:
    run: a.cwl
    in: {x: second/out}
    out: [out]
  second:
    run: b.cwl
    in: {x: first/out}
    out: [out]
`

func TestDiscovery(t *testing.T) {
	code, env := do(t, testServer(t, false), "GET", "/api/v1/", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", env.Status)
	assert.NotEmpty(t, env.RequestID)

	var data discoveryResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "cwl2nf API", data.Name)
	assert.Len(t, data.Endpoints, 8)
}

func TestHealth(t *testing.T) {
	code, env := do(t, testServer(t, false), "GET", "/api/v1/health", "")
	require.Equal(t, http.StatusOK, code)

	var data healthResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "healthy", data.Status)
	assert.Equal(t, "0.1.0", data.Version)
	assert.Equal(t, "disabled", data.Store)
	assert.Positive(t, data.Tiers)

	_, env = do(t, testServer(t, true), "GET", "/api/v1/health", "")
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "sqlite", data.Store)
}

func TestRequestIDHeader(t *testing.T) {
	srv := testServer(t, false)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req_client1")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, "req_client1", w.Header().Get("X-Request-ID"))
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "req_client1", env.RequestID)
}

func TestTiers(t *testing.T) {
	code, env := do(t, testServer(t, false), "GET", "/api/v1/tiers", "")
	require.Equal(t, http.StatusOK, code)

	var tiers []struct {
		Name     string  `json:"name"`
		CPUs     int     `json:"cpus"`
		MemoryGB float64 `json:"memory_gb"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tiers))
	require.NotEmpty(t, tiers)
	var names []string
	for i, tier := range tiers {
		names = append(names, tier.Name)
		if i > 0 {
			assert.LessOrEqual(t, tiers[i-1].CPUs, tier.CPUs)
		}
	}
	assert.Contains(t, names, "m5.large")
}

type conversionData struct {
	ID           string `json:"id"`
	WorkflowName string `json:"workflow_name"`
	Strategy     string `json:"strategy"`
	Augmented    bool   `json:"augmented"`
	Pipeline     string `json:"pipeline"`
	Config       string `json:"config"`
	Resources    map[string]struct {
		CPUs int    `json:"cpus"`
		Tier string `json:"tier"`
	} `json:"resources"`
	Containers map[string]struct {
		Image     string `json:"image"`
		Optimized bool   `json:"optimized"`
	} `json:"containers"`
	Validation struct {
		Valid  bool               `json:"valid"`
		Scores map[string]float64 `json:"scores"`
	} `json:"validation"`
}

func TestConvert(t *testing.T) {
	srv := testServer(t, false)
	code, env := do(t, srv, "POST", "/api/v1/convert", convertBody(t, model.ConvertRequest{
		Name:     "fastqc.cwl",
		Document: fastqcTool,
		Augment:  true,
		Tier:     "m5.large",
	}))
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	assert.Nil(t, env.Error)

	var data conversionData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.ID)
	assert.Equal(t, "fastqc", data.WorkflowName)
	assert.Equal(t, "full", data.Strategy)
	assert.True(t, data.Augmented)
	assert.Contains(t, data.Pipeline, "// AWS HealthOmics monitoring for fastqc")
	assert.Contains(t, data.Config, "executor = 'awsbatch'")
	require.Len(t, data.Resources, 1)
	require.Len(t, data.Containers, 1)
	for _, prof := range data.Resources {
		assert.Equal(t, 2, prof.CPUs)
		assert.Equal(t, "m5.large", prof.Tier)
	}
	for _, spec := range data.Containers {
		assert.True(t, strings.HasPrefix(spec.Image, "public.ecr.aws/"), spec.Image)
		assert.True(t, spec.Optimized)
	}
	assert.Len(t, data.Validation.Scores, 7)
}

func TestConvert_CustomTemplate(t *testing.T) {
	code, env := do(t, testServer(t, false), "POST", "/api/v1/convert", convertBody(t, model.ConvertRequest{
		Document: fastqcTool,
		Mode:     "custom",
		Template: "// {{ .Name }} has {{ len .Processes }} process",
	}))
	require.Equal(t, http.StatusOK, code)
	var data conversionData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "// fastqc has 1 process", data.Pipeline)
}

func TestConvert_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   model.ErrorCode
		wantField  string
	}{
		{"invalid json", "not json", http.StatusBadRequest, model.ErrValidation, ""},
		{"unknown field", `{"document": "a: 1", "colour": "blue"}`, http.StatusBadRequest, model.ErrValidation, ""},
		{"missing document", `{"mode": "base"}`, http.StatusBadRequest, model.ErrValidation, "document"},
		{"unknown mode", convertBody(t, model.ConvertRequest{Document: fastqcTool, Mode: "fancy"}), http.StatusBadRequest, model.ErrValidation, "mode"},
		{"custom without template", convertBody(t, model.ConvertRequest{Document: fastqcTool, Mode: "custom"}), http.StatusBadRequest, model.ErrValidation, "template"},
		{"malformed template", convertBody(t, model.ConvertRequest{Document: fastqcTool, Template: "{{ .Name "}), http.StatusBadRequest, model.ErrValidation, "template"},
		{"sequence document", convertBody(t, model.ConvertRequest{Document: "- a\n- b\n"}), http.StatusUnprocessableEntity, model.ErrDocumentFormat, ""},
		{"scalar document", convertBody(t, model.ConvertRequest{Document: "just text"}), http.StatusUnprocessableEntity, model.ErrDocumentFormat, ""},
		{"invalid yaml", convertBody(t, model.ConvertRequest{Document: "steps: [a, b"}), http.StatusUnprocessableEntity, model.ErrDocumentFormat, ""},
		{"cycle", convertBody(t, model.ConvertRequest{Document: cyclicWorkflow}), http.StatusUnprocessableEntity, model.ErrValidation, "steps"},
	}
	srv := testServer(t, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, srv, "POST", "/api/v1/convert", tt.body)
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, "error", env.Status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			if tt.wantField != "" {
				require.NotEmpty(t, env.Error.Details)
				assert.Equal(t, tt.wantField, env.Error.Details[0].Field)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	srv := testServer(t, false)
	pipeline := `#!/usr/bin/env nextflow
nextflow.enable.dsl = 2

params.reads = null

process FASTQC {
    container 'public.ecr.aws/healthomics/fastqc:latest'
    cpus 2
    memory '4 GB'

    input:
    path reads

    output:
    path '*.html', emit: report

    script:
    """
    fastqc ${reads}
    """
}

workflow {
    FASTQC(Channel.fromPath(params.reads))
}
`
	body, err := json.Marshal(model.ValidateRequest{Pipeline: pipeline})
	require.NoError(t, err)
	code, env := do(t, srv, "POST", "/api/v1/validate", string(body))
	require.Equal(t, http.StatusOK, code)

	var data struct {
		Valid        bool               `json:"valid"`
		Issues       []string           `json:"issues"`
		Scores       map[string]float64 `json:"scores"`
		OverallScore float64            `json:"overall_score"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Len(t, data.Scores, 7)
	assert.Contains(t, data.Scores, "syntax")
	assert.Contains(t, data.Scores, "aws_healthomics")
	assert.InDelta(t, 50, data.OverallScore, 50)

	code, env = do(t, srv, "POST", "/api/v1/validate", `{"pipeline": "  "}`)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "pipeline", env.Error.Details[0].Field)
}

func TestHistoryDisabled(t *testing.T) {
	srv := testServer(t, false)
	for _, path := range []string{"/api/v1/conversions", "/api/v1/conversions/abc", "/api/v1/batches", "/api/v1/batches/abc"} {
		code, env := do(t, srv, "GET", path, "")
		assert.Equal(t, http.StatusNotFound, code, path)
		require.NotNil(t, env.Error, path)
		assert.Equal(t, model.ErrNotFound, env.Error.Code, path)
	}
}

func TestHistory(t *testing.T) {
	srv := testServer(t, true)

	var ids []string
	for _, name := range []string{"one.cwl", "two.cwl", "three.cwl"} {
		code, env := do(t, srv, "POST", "/api/v1/convert", convertBody(t, model.ConvertRequest{Name: name, Document: fastqcTool}))
		require.Equal(t, http.StatusOK, code)
		var data conversionData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		ids = append(ids, data.ID)
	}
	// A failed conversion is recorded too.
	code, _ := do(t, srv, "POST", "/api/v1/convert", convertBody(t, model.ConvertRequest{Name: "list.cwl", Document: "- a\n"}))
	require.Equal(t, http.StatusUnprocessableEntity, code)

	code, env := do(t, srv, "GET", "/api/v1/conversions?limit=2", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 4, env.Pagination.Total)
	assert.Equal(t, 2, env.Pagination.Limit)
	assert.True(t, env.Pagination.HasMore)

	var recs []model.HistoryRecord
	require.NoError(t, json.Unmarshal(env.Data, &recs))
	assert.Len(t, recs, 2)

	code, env = do(t, srv, "GET", "/api/v1/conversions/"+ids[1], "")
	require.Equal(t, http.StatusOK, code)
	var rec model.HistoryRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "two.cwl", rec.Input)
	assert.Equal(t, "fastqc", rec.WorkflowName)
	assert.True(t, rec.Success)

	code, env = do(t, srv, "GET", "/api/v1/conversions/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, model.ErrNotFound, env.Error.Code)

	code, env = do(t, srv, "GET", "/api/v1/conversions?offset=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "offset", env.Error.Details[0].Field)

	code, env = do(t, srv, "GET", "/api/v1/batches", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Pagination.Total)
}

func TestGetBatch(t *testing.T) {
	logger := logging.Discard()
	st, err := store.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveBatch(context.Background(), &model.BatchRecord{
		ID: "batch-1", Total: 3, Successful: 2, Failed: 1, CreatedAt: created,
	}))
	srv := New(config.DefaultConfig().Server, convert.New(convert.Components{}, logger), logger, WithStore(st))

	code, env := do(t, srv, "GET", "/api/v1/batches/batch-1", "")
	require.Equal(t, http.StatusOK, code)
	var rec model.BatchRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "batch-1", rec.ID)
	assert.Equal(t, []int{3, 2, 1}, []int{rec.Total, rec.Successful, rec.Failed})
	assert.True(t, created.Equal(rec.CreatedAt), rec.CreatedAt)

	code, env = do(t, srv, "GET", "/api/v1/batches/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.ErrNotFound, env.Error.Code)
}
