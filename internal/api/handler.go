// Package api exposes the advisor over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/domain"
	"mv-advisor/internal/service/advisor"
	"mv-advisor/internal/store"
	"mv-advisor/internal/workload"
)

// maxRequestBytes bounds the analyze request body.
const maxRequestBytes = 16 << 20

// Handler serves the advisor endpoints.
type Handler struct {
	svc      *advisor.Service
	defaults advisor.Options
	logger   *slog.Logger
}

// NewHandler creates a Handler. defaults are the options an analyze request
// starts from before applying its own overrides.
func NewHandler(svc *advisor.Service, defaults advisor.Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{svc: svc, defaults: defaults, logger: logger}
}

// AnalyzeRequest is the body of POST /v1/analyze. Schema and Workload take
// the same documents the CLI reads from files; Options overrides individual
// fields of the server defaults.
type AnalyzeRequest struct {
	Schema   json.RawMessage `json:"schema"`
	Workload json.RawMessage `json:"workload"`
	Options  json.RawMessage `json:"options,omitempty"`
	Persist  bool            `json:"persist,omitempty"`
	Label    string          `json:"label,omitempty"`
}

// RunSummary is one entry of GET /v1/runs.
type RunSummary struct {
	ID        string           `json:"id"`
	Label     string           `json:"label,omitempty"`
	Source    string           `json:"source,omitempty"`
	Summary   store.RunSummary `json:"summary"`
	CreatedAt time.Time        `json:"created_at"`
}

// ListRunsResponse is the body of GET /v1/runs.
type ListRunsResponse struct {
	Runs       []RunSummary `json:"runs"`
	Total      int64        `json:"total"`
	NextOffset int          `json:"next_offset,omitempty"`
}

// RunResponse is the body of GET /v1/runs/{id}.
type RunResponse struct {
	RunSummary
	Report *advisor.Report `json:"report"`
}

// Analyze handles POST /v1/analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Schema) == 0 {
		h.writeDomainError(w, r, domain.ErrValidation("schema is required"))
		return
	}
	if len(body.Workload) == 0 {
		h.writeDomainError(w, r, domain.ErrValidation("workload is required"))
		return
	}

	schema, err := catalog.Parse(body.Schema, catalog.LoadOptions{})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	wl, err := workload.Parse(body.Workload, workload.LoadOptions{})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	opts := h.defaults
	opts.FactTables = append([]string(nil), h.defaults.FactTables...)
	if len(body.Options) > 0 {
		if err := json.Unmarshal(body.Options, &opts); err != nil {
			h.writeDomainError(w, r, domain.ErrValidation("invalid options: %v", err))
			return
		}
	}

	report, err := h.svc.Analyze(r.Context(), advisor.Request{
		Schema:   schema,
		Workload: wl,
		Options:  opts,
		Persist:  body.Persist,
		Label:    body.Label,
		Source:   "api",
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if report.RunID != "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, report)
}

// ListRuns handles GET /v1/runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	runs, total, err := h.svc.ListRuns(r.Context(), page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp := ListRunsResponse{Runs: make([]RunSummary, len(runs)), Total: total}
	for i, run := range runs {
		resp.Runs[i] = runToAPI(run)
	}
	if next := page.NextOffset(total); next > 0 {
		resp.NextOffset = next
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRun handles GET /v1/runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, report, err := h.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{RunSummary: runToAPI(*run), Report: report})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "store": h.svc.HasStore()})
}

func runToAPI(run store.Run) RunSummary {
	return RunSummary{
		ID:        run.ID,
		Label:     run.Label,
		Source:    run.Source,
		Summary:   run.Summary,
		CreatedAt: run.CreatedAt,
	}
}

// pageFromQuery reads the optional max_results and offset parameters.
func pageFromQuery(r *http.Request) (domain.Page, error) {
	var p domain.Page
	q := r.URL.Query()
	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, domain.ErrValidation("max_results must be a non-negative integer")
		}
		p.Size = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, domain.ErrValidation("offset must be a non-negative integer")
		}
		p.Offset = n
	}
	return p, nil
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		id, _ := domain.RequestIDFromContext(r.Context())
		h.logger.Error("request failed", "error", err, "path", r.URL.Path, "request_id", id)
		msg = "internal error"
	}
	h.writeError(w, r, status, msg)
}

func (h *Handler) writeError(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	writeJSON(w, status, Error{Code: int32(status), Message: msg}) //nolint:gosec // HTTP status codes are always in [100,599]
}
