// Package run provides the Run aggregate: one invocation of the sampling
// pipeline over a set of input locations, with its state machine, statistics
// and outputs, plus the service that executes it.
package run

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/framesampler/internal/extract"
	"github.com/maauso/framesampler/internal/pipeline"
	"github.com/maauso/framesampler/internal/run/id"
)

// Status represents the current state of a Run.
type Status string

const (
	// StatusInQueue indicates the run was accepted and has not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the pipeline is executing.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates every job returned. Individual files may still have failed.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the run could not execute at all.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the run was stopped before finishing.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Request is what a caller asks a run to do.
type Request struct {
	// Inputs are video files or directories.
	Inputs      []string
	Interval    int
	Backend     extract.Backend
	Mode        pipeline.CreationMode
	Concurrency pipeline.ConcurrencyMode
	// Publish uploads produced videos to S3.
	Publish bool
}

func (r Request) clone() Request {
	r.Inputs = slices.Clone(r.Inputs)
	return r
}

// Run is one execution of the pipeline.
type Run struct {
	mu sync.RWMutex

	// ID is the unique identifier for this run.
	ID string
	// Status is the current run state.
	Status Status
	// Request is what the run was asked to do.
	Request Request
	// Stats is filled in when the run completes.
	Stats pipeline.Stats
	// URLs lists published outputs.
	URLs []string
	// Error contains any error message if the run failed.
	Error string
	// CreatedAt is when the run was created.
	CreatedAt time.Time
	// UpdatedAt is when the run was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Run with a generated ID and initial IN_QUEUE status.
func New(req Request) *Run {
	return NewWithID(id.Generate(), req)
}

// NewWithID creates a new Run with the specified ID and initial IN_QUEUE status.
func NewWithID(runID string, req Request) *Run {
	now := time.Now()
	return &Run{
		ID:        runID,
		Status:    StatusInQueue,
		Request:   req.clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the run status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (r *Run) TransitionTo(status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(status)
}

func (r *Run) transitionLocked(status Status) error {
	if !canTransition(r.Status, status) {
		return ErrInvalidTransition
	}

	r.Status = status
	r.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		r.StartedAt = r.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		r.CompletedAt = r.UpdatedAt
	}
	return nil
}

// Start transitions the run from IN_QUEUE to RUNNING.
func (r *Run) Start() error {
	return r.TransitionTo(StatusRunning)
}

// Complete records the final statistics and published URLs and transitions
// the run to COMPLETED.
func (r *Run) Complete(stats pipeline.Stats, urls []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	r.Stats = stats
	r.URLs = slices.Clone(urls)
	return nil
}

// Fail transitions the run to FAILED state with an error message.
func (r *Run) Fail(errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusFailed); err != nil {
		return err
	}
	r.Error = errMsg
	return nil
}

// Cancel transitions the run to CANCELLED, keeping whatever statistics were gathered.
func (r *Run) Cancel(stats pipeline.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusCancelled); err != nil {
		return err
	}
	r.Stats = stats
	return nil
}

// GetStatus returns the current run status (thread-safe).
func (r *Run) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// IsTerminal returns true if the run is in a terminal state.
func (r *Run) IsTerminal() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(validTransitions[r.Status]) == 0
}

// Clone creates a deep copy of the run for safe reads.
func (r *Run) Clone() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := r.Stats
	stats.Errors = slices.Clone(r.Stats.Errors)
	stats.Outputs = slices.Clone(r.Stats.Outputs)

	return &Run{
		ID:          r.ID,
		Status:      r.Status,
		Request:     r.Request.clone(),
		Stats:       stats,
		URLs:        slices.Clone(r.URLs),
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}
