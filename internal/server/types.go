// Package server provides the HTTP front-end for the render API.
// It includes handlers, middleware, routes, and DTOs separated from
// domain types. No business logic lives here beyond request shape
// validation and delegation to the render service.
package server

// RenderRequest is the HTTP request body for submitting a render job.
type RenderRequest struct {
	// Input is the input media reference: an http(s) URL or a local path.
	Input string `json:"input" validate:"required"`
	// Overlay selects the overlay: empty or "default" for the configured
	// source, "none" to disable, or a registered overlay name.
	Overlay string `json:"overlay" validate:"omitempty,max=128"`
	// OutputName is an optional naming hint for the published artifact.
	OutputName string `json:"output_name" validate:"omitempty,max=64"`
	// Async, when true, returns 202 immediately; poll /jobs/{id} for the
	// result.
	Async bool `json:"async"`
}

// RenderResponse is the HTTP response for a completed render.
type RenderResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the final job status.
	Status string `json:"status"`
	// URL is the public URL of the published artifact.
	URL string `json:"url"`
	// SizeBytes is the size of the published artifact.
	SizeBytes int64 `json:"size_bytes"`
	// DurationSec is the artifact duration in seconds, 0 if unknown.
	DurationSec float64 `json:"duration_sec"`
	// OverlayApplied reports whether an overlay was composited.
	OverlayApplied bool `json:"overlay_applied"`
}

// AcceptedResponse is the HTTP response for an async submission.
type AcceptedResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Stage names the failing pipeline stage if the job failed.
	Stage string `json:"stage,omitempty"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// URL is the public URL of the artifact (if completed).
	URL string `json:"url,omitempty"`
	// SizeBytes is the artifact size (if completed).
	SizeBytes int64 `json:"size_bytes,omitempty"`
	// DurationSec is the artifact duration in seconds (if known).
	DurationSec float64 `json:"duration_sec,omitempty"`
}

// JobListResponse is the HTTP response for listing jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// WebhookResponse is the HTTP response for webhook ingestion. Webhook
// callers retry on non-2xx, so this endpoint replies 200 even when the
// payload is ignored.
type WebhookResponse struct {
	// Status is "queued", "ignored", or "dropped".
	Status string `json:"status"`
	// Reason explains an ignored or dropped payload.
	Reason string `json:"reason,omitempty"`
	// MediaURL is the MP4 URL extracted from the payload.
	MediaURL string `json:"media_url,omitempty"`
	// ID is the render job id (queued) or the upstream id if present.
	ID string `json:"id,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
