// Package api exposes deployment status, run history, and the deploy
// trigger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mwessel/netrollout/internal/core/domain"
	"github.com/mwessel/netrollout/internal/core/sequencer"
	"github.com/mwessel/netrollout/internal/core/templates"
	"github.com/mwessel/netrollout/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API. Deployment requests are
// serialized with a mutex; the sequencer does not support concurrent runs.
type Handler struct {
	sequencer *sequencer.Sequencer
	validator *templates.Validator
	archive   store.Archive
	logger    *slog.Logger

	deployMu sync.Mutex
}

// NewHandler creates a new API handler. archive may be nil when persistence
// is disabled; the run endpoints then serve from in-memory history only.
func NewHandler(seq *sequencer.Sequencer, validator *templates.Validator, archive store.Archive, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sequencer: seq,
		validator: validator,
		archive:   archive,
		logger:    logger,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestLogger)

	r.Get("/health", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Get("/runs", h.handleListRuns)
		r.Get("/runs/{id}", h.handleGetRun)
		r.Get("/templates/validation", h.handleTemplateValidation)
		r.Post("/deploy", h.handleDeploy)
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request with method, path, and duration.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// =============================================================================
// Health Handler
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// =============================================================================
// Status Handler
// =============================================================================

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.sequencer.History().Status()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no run yet", "not_found")
		return
	}
	h.writeJSON(w, http.StatusOK, StatusResponse{
		RunID:           snap.RunID,
		TotalDevices:    snap.TotalDevices,
		Successful:      snap.Successful,
		Failed:          snap.Failed,
		Skipped:         snap.Skipped,
		ExecutionTimeMs: snap.ExecutionTime.Milliseconds(),
		Summary:         snap.Summary,
		Timestamp:       snap.Timestamp,
	})
}

// =============================================================================
// Run Handlers
// =============================================================================

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	opts = opts.Normalize()

	var runs []*domain.DeploymentResult
	if h.archive != nil {
		var err error
		runs, err = h.archive.ListRuns(r.Context(), opts)
		if err != nil {
			h.logger.Error("listing runs failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
			return
		}
	} else {
		// In-memory history is oldest first; serve newest first.
		all := h.sequencer.History().Runs()
		for i := len(all) - 1; i >= 0; i-- {
			runs = append(runs, all[i])
		}
	}

	resp := ListRunsResponse{
		Runs:   make([]RunResponse, 0, len(runs)),
		Total:  len(runs),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, runToResponse(run))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.archive != nil {
		run, err := h.archive.GetRun(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				h.writeError(w, http.StatusNotFound, "run not found", "not_found")
				return
			}
			h.logger.Error("loading run failed", "run_id", id, "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to load run", "internal_error")
			return
		}
		h.writeJSON(w, http.StatusOK, runToResponse(run))
		return
	}

	for _, run := range h.sequencer.History().Runs() {
		if run.ID == id {
			h.writeJSON(w, http.StatusOK, runToResponse(run))
			return
		}
	}
	h.writeError(w, http.StatusNotFound, "run not found", "not_found")
}

// =============================================================================
// Validation Handler
// =============================================================================

func (h *Handler) handleTemplateValidation(w http.ResponseWriter, r *http.Request) {
	infos, err := h.validator.DescribeAll()
	if err != nil {
		h.logger.Error("template validation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to validate templates", "internal_error")
		return
	}

	resp := ValidationReportResponse{
		AllValid:  true,
		Templates: make(map[string]TemplateValidationResponse, len(infos)),
	}
	for _, info := range infos {
		res := info.Validation
		if !res.Valid {
			resp.AllValid = false
		}
		resp.Templates[info.Name] = TemplateValidationResponse{
			Valid:          res.Valid,
			SizeBytes:      info.SizeBytes,
			ModifiedAt:     info.ModifiedAt,
			ErrorKind:      string(res.Kind),
			Error:          res.Error,
			Line:           res.Line,
			RenderedLength: res.RenderedLength,
			LineCount:      res.LineCount,
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Deploy Handler
// =============================================================================

func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
			return
		}
	}

	h.deployMu.Lock()
	result := h.sequencer.DeployAll(r.Context(), req.DryRun)
	h.deployMu.Unlock()

	// The run already happened; archiving must survive the client hanging
	// up, so it runs on a detached context rather than the request's.
	if h.archive != nil {
		if err := h.archive.SaveRun(context.Background(), result); err != nil {
			h.logger.Error("archiving run failed", "run_id", result.ID, "error", err)
		}
	}

	h.writeJSON(w, http.StatusOK, runToResponse(result))
}

// =============================================================================
// Helpers
// =============================================================================

func runToResponse(run *domain.DeploymentResult) RunResponse {
	resp := RunResponse{
		ID:              run.ID,
		TotalDevices:    run.TotalDevices,
		Successful:      run.Successful,
		Failed:          run.Failed,
		Skipped:         run.Skipped,
		ExecutionTimeMs: run.ExecutionTime.Milliseconds(),
		StartedAt:       run.StartedAt,
		DryRun:          run.DryRun,
		Summary:         run.Summary,
		Results:         make(map[string]DeviceResultResponse, len(run.Results)),
	}
	for name, dr := range run.Results {
		resp.Results[name] = DeviceResultResponse{
			DeviceName:      dr.DeviceName,
			Status:          string(dr.Status),
			Message:         dr.Message,
			ConfigLines:     dr.ConfigLines,
			ExecutionTimeMs: dr.ExecutionTime.Milliseconds(),
			Error:           dr.Error,
		}
	}
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
