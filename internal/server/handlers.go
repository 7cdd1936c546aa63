package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/renderbox/overlay-api/internal/encoder"
	"github.com/renderbox/overlay-api/internal/job"
	"github.com/renderbox/overlay-api/internal/overlay"
	"github.com/renderbox/overlay-api/internal/publish"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *job.RenderService
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.RenderService, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateRender handles POST /render requests. The default is a
// synchronous render: the stage pipeline runs to completion and the
// result (or a classified failure) maps onto this response. With
// async=true the job is admitted, 202 is returned, and the caller polls
// GET /jobs/{id}.
func (h *Handlers) CreateRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	input := job.RenderInput{
		Input:      req.Input,
		Overlay:    req.Overlay,
		OutputName: req.OutputName,
	}

	if req.Async {
		created, err := h.service.Submit(r.Context(), input)
		if err != nil {
			h.writeRenderError(w, "", err)
			return
		}
		h.logger.Info("render job accepted",
			slog.String("job_id", created.ID),
		)
		writeJSON(w, http.StatusAccepted, AcceptedResponse{
			ID:     created.ID,
			Status: string(created.Status),
		})
		return
	}

	// The job keeps running after a client disconnect; only the encode
	// and fetch timeouts bound it.
	finished, err := h.service.Render(context.WithoutCancel(r.Context()), input)
	if err != nil {
		jobID := ""
		if finished != nil {
			jobID = finished.ID
		}
		h.writeRenderError(w, jobID, err)
		return
	}

	writeJSON(w, http.StatusOK, RenderResponse{
		ID:             finished.ID,
		Status:         string(finished.Status),
		URL:            finished.ResultURL,
		SizeBytes:      finished.SizeBytes,
		DurationSec:    finished.DurationSec,
		OverlayApplied: finished.OverlayApplied,
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(found))
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, jb := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(jb))
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeRenderError maps a pipeline error onto the HTTP status table.
// Encoder diagnostics (stderr tails) are logged by the service and
// never returned to the caller.
func (h *Handlers) writeRenderError(w http.ResponseWriter, jobID string, err error) {
	status, code, message := classifyRenderError(err)
	if jobID != "" {
		h.logger.Warn("render request failed",
			slog.String("job_id", jobID),
			slog.String("code", code),
		)
	}
	writeError(w, status, message, code)
}

// classifyRenderError translates pipeline failures into status codes:
// resolver and publisher failures are upstream problems (502), encoder
// failures are internal (500), admission rejections are 429, and
// anything request-shaped is 400.
func classifyRenderError(err error) (status int, code, message string) {
	var encErr *encoder.Error
	switch {
	case errors.Is(err, job.ErrCapacityExceeded):
		return http.StatusTooManyRequests, "CAPACITY_EXCEEDED", "too many jobs in flight, retry later"
	case errors.Is(err, overlay.ErrUnknownOverlay):
		return http.StatusBadRequest, "UNKNOWN_OVERLAY", "unknown overlay name"
	case errors.Is(err, overlay.ErrAssetUnavailable):
		return http.StatusBadGateway, "ASSET_UNAVAILABLE", "overlay asset unavailable"
	case errors.Is(err, job.ErrInputUnavailable):
		return http.StatusBadGateway, "INPUT_UNAVAILABLE", "input media unavailable"
	case errors.Is(err, encoder.ErrEncodeTimeout):
		return http.StatusInternalServerError, "ENCODE_TIMEOUT", "encoding timed out"
	case errors.As(err, &encErr):
		return http.StatusInternalServerError, "ENCODE_FAILED", "encoding failed"
	case errors.Is(err, publish.ErrPublishFailed):
		return http.StatusBadGateway, "PUBLISH_FAILED", "failed to publish artifact"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

// toJobResponse converts a job record into its HTTP representation.
func toJobResponse(jb *job.Job) JobResponse {
	return JobResponse{
		ID:          jb.ID,
		Status:      string(jb.Status),
		Stage:       jb.Stage,
		Error:       jb.Error,
		URL:         jb.ResultURL,
		SizeBytes:   jb.SizeBytes,
		DurationSec: jb.DurationSec,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
