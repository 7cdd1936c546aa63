// Package job provides the render job aggregate and its orchestration.
// A job moves through a fixed pipeline (resolve overlay, encode,
// publish) under a state machine; every state change is persisted
// through the Repository port.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/renderbox/overlay-api/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusPending indicates the job has been admitted but not started.
	StatusPending Status = "PENDING"
	// StatusResolving indicates the overlay asset and input media are
	// being located.
	StatusResolving Status = "RESOLVING_ASSET"
	// StatusEncoding indicates the encoder child process is running.
	StatusEncoding Status = "ENCODING"
	// StatusUploading indicates the artifact is being published.
	StatusUploading Status = "UPLOADING"
	// StatusDone indicates the job finished and the result URL is set.
	StatusDone Status = "DONE"
	// StatusFailed indicates the job failed at some stage.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed. FAILED
// is reachable from every non-terminal state; DONE only from UPLOADING.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusResolving, StatusFailed},
	StatusResolving: {StatusEncoding, StatusFailed},
	StatusEncoding:  {StatusUploading, StatusFailed},
	StatusUploading: {StatusDone, StatusFailed},
	StatusDone:      {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one end-to-end render request: download or locate the
// input, composite the overlay, publish the artifact.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Input is the input media reference (URL or local path).
	Input string
	// Overlay is the requested overlay selection ("", "none", or a name).
	Overlay string
	// OutputName is an optional naming hint for the published artifact.
	OutputName string
	// WorkDir is the job-scoped temporary directory. Never shared with
	// another job; removed on every exit path.
	WorkDir string
	// Stage names the pipeline stage a failure occurred in.
	Stage string
	// Error contains any error message if the job failed.
	Error string
	// ResultURL is the public URL of the published artifact.
	ResultURL string
	// SizeBytes is the size of the published artifact.
	SizeBytes int64
	// DurationSec is the duration of the published artifact in seconds.
	DurationSec float64
	// OverlayApplied records whether an overlay was composited.
	OverlayApplied bool
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial PENDING status.
func New() *Job {
	now := time.Now()
	return &Job{
		ID:        id.Generate(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewWithID creates a new Job with the specified ID and initial PENDING
// status. Useful for testing or when the ID is externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusResolving:
		j.StartedAt = j.UpdatedAt
	case StatusDone, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Fail transitions the job to FAILED, recording the failing stage and
// error message. Returns ErrInvalidTransition from terminal states.
func (j *Job) Fail(stage, errMsg string) error {
	j.mu.Lock()
	j.Stage = stage
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// SetResult records the published artifact metadata.
func (j *Job) SetResult(url string, sizeBytes int64, durationSec float64, overlayApplied bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ResultURL = url
	j.SizeBytes = sizeBytes
	j.DurationSec = durationSec
	j.OverlayApplied = overlayApplied
	j.UpdatedAt = time.Now()
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusDone || j.Status == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:             j.ID,
		Status:         j.Status,
		Input:          j.Input,
		Overlay:        j.Overlay,
		OutputName:     j.OutputName,
		WorkDir:        j.WorkDir,
		Stage:          j.Stage,
		Error:          j.Error,
		ResultURL:      j.ResultURL,
		SizeBytes:      j.SizeBytes,
		DurationSec:    j.DurationSec,
		OverlayApplied: j.OverlayApplied,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
