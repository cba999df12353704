package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/framesampler/internal/extract"
	"github.com/maauso/framesampler/internal/pipeline"
	"github.com/maauso/framesampler/internal/run"
)

// RunService is the subset of run.Service used by the handlers.
type RunService interface {
	Submit(ctx context.Context, req run.Request) (*run.Run, error)
	Execute(ctx context.Context, runID string) (*run.Run, error)
	Get(ctx context.Context, runID string) (*run.Run, error)
	List(ctx context.Context) ([]*run.Run, error)
}

// Defaults are applied to request fields the client omits.
type Defaults struct {
	Interval    int
	Backend     extract.Backend
	Mode        pipeline.CreationMode
	Concurrency pipeline.ConcurrencyMode
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            RunService
	defaults           Defaults
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	s3Enabled          bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateRun only queues the run and returns immediately.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithS3 reports whether runs may ask for their outputs to be published.
func WithS3(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.s3Enabled = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service RunService, defaults Defaults, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		defaults:           defaults,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateRun handles POST /runs requests.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
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

	if req.PushToS3 && !h.s3Enabled {
		writeError(w, http.StatusBadRequest, "S3 publishing is not configured", "S3_NOT_CONFIGURED")
		return
	}

	runReq, err := h.toRunRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	created, err := h.service.Submit(r.Context(), runReq)
	if err != nil {
		if errors.Is(err, run.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create run",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create run", "RUN_CREATION_FAILED")
		return
	}

	// Detach from the request so the run outlives it.
	if h.enableAsyncProcess {
		go func(ctx context.Context, runID string) {
			if _, execErr := h.service.Execute(ctx, runID); execErr != nil {
				h.logger.Error("background run failed",
					slog.String("run_id", runID),
					slog.String("error", execErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), created.ID)
	}

	h.logger.Info("run created",
		slog.String("run_id", created.ID),
		slog.Int("inputs", len(runReq.Inputs)),
	)

	writeJSON(w, http.StatusAccepted, CreateRunResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// GetRun handles GET /runs/{id} requests.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID is required", "MISSING_RUN_ID")
		return
	}

	found, err := h.service.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, run.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found", "RUN_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get run",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get run", "RUN_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(found))
}

// ListRuns handles GET /runs requests.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list runs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list runs", "RUN_LIST_FAILED")
		return
	}

	resp := ListRunsResponse{Runs: make([]RunResponse, 0, len(runs))}
	for _, found := range runs {
		resp.Runs = append(resp.Runs, toRunResponse(found))
	}
	writeJSON(w, http.StatusOK, resp)
}

// toRunRequest applies defaults and parses the enumerated fields.
func (h *Handlers) toRunRequest(req CreateRunRequest) (run.Request, error) {
	out := run.Request{
		Inputs:      req.Inputs,
		Interval:    h.defaults.Interval,
		Backend:     h.defaults.Backend,
		Mode:        h.defaults.Mode,
		Concurrency: h.defaults.Concurrency,
		Publish:     req.PushToS3,
	}
	if req.FrameInterval > 0 {
		out.Interval = req.FrameInterval
	}

	var err error
	if req.Backend != "" {
		if out.Backend, err = extract.ParseBackend(req.Backend); err != nil {
			return run.Request{}, err
		}
	}
	if req.CreationMode != "" {
		if out.Mode, err = pipeline.ParseCreationMode(req.CreationMode); err != nil {
			return run.Request{}, err
		}
	}
	if req.ProcessingMode != "" {
		if out.Concurrency, err = pipeline.ParseConcurrencyMode(req.ProcessingMode); err != nil {
			return run.Request{}, err
		}
	}
	return out, nil
}

func toRunResponse(r *run.Run) RunResponse {
	resp := RunResponse{
		ID:             r.ID,
		Status:         string(r.Status),
		Inputs:         r.Request.Inputs,
		FrameInterval:  r.Request.Interval,
		Backend:        r.Request.Backend.String(),
		CreationMode:   r.Request.Mode.String(),
		ProcessingMode: r.Request.Concurrency.String(),
		Error:          r.Error,
		URLs:           r.URLs,
		CreatedAt:      formatTime(r.CreatedAt),
		StartedAt:      formatTime(r.StartedAt),
		CompletedAt:    formatTime(r.CompletedAt),
	}

	switch r.Status {
	case run.StatusCompleted, run.StatusCancelled:
		resp.Stats = &StatsResponse{
			FilesProcessed: r.Stats.FilesProcessed,
			FilesFailed:    r.Stats.FilesFailed,
			TotalBytes:     r.Stats.TotalBytes,
			SuccessRate:    r.Stats.SuccessRate(),
			ElapsedMs:      r.Stats.Elapsed.Milliseconds(),
			Outputs:        r.Stats.Outputs,
			Errors:         r.Stats.Errors,
		}
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
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
