// Package server provides the HTTP API for submitting and inspecting
// frame sampling runs. It includes handlers, middleware, routes, and DTOs
// separated from domain types.
package server

// CreateRunRequest is the HTTP request body for starting a run.
// Omitted sampling fields fall back to the server configuration.
type CreateRunRequest struct {
	// Inputs are video files or directories visible to the server.
	Inputs []string `json:"inputs" validate:"required,min=1,dive,required"`
	// FrameInterval keeps every Nth frame.
	FrameInterval int `json:"frame_interval,omitempty" validate:"omitempty,min=1"`
	// Backend is "opencv" or "ffmpeg".
	Backend string `json:"backend,omitempty" validate:"omitempty,oneof=opencv ffmpeg"`
	// CreationMode is "temp_frames", "direct", "skip" or "none".
	CreationMode string `json:"creation_mode,omitempty" validate:"omitempty,oneof=temp_frames direct skip none"`
	// ProcessingMode is "sequential" or "parallel".
	ProcessingMode string `json:"processing_mode,omitempty" validate:"omitempty,oneof=sequential parallel"`
	// PushToS3 uploads produced videos after the run.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateRunResponse is the HTTP response after creating a run.
type CreateRunResponse struct {
	// ID is the unique identifier for the created run.
	ID string `json:"id"`
	// Status is the initial run status.
	Status string `json:"status"`
}

// StatsResponse mirrors the aggregate statistics of a run.
type StatsResponse struct {
	FilesProcessed int      `json:"files_processed"`
	FilesFailed    int      `json:"files_failed"`
	TotalBytes     int64    `json:"total_bytes"`
	SuccessRate    float64  `json:"success_rate"`
	ElapsedMs      int64    `json:"elapsed_ms"`
	Outputs        []string `json:"outputs,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// RunResponse is the HTTP response for getting run details.
type RunResponse struct {
	// ID is the unique identifier for the run.
	ID string `json:"id"`
	// Status is the current run status.
	Status string `json:"status"`
	// Inputs echoes the requested input locations.
	Inputs         []string `json:"inputs"`
	FrameInterval  int      `json:"frame_interval"`
	Backend        string   `json:"backend"`
	CreationMode   string   `json:"creation_mode"`
	ProcessingMode string   `json:"processing_mode"`
	// Error contains any error message if the run failed.
	Error string `json:"error,omitempty"`
	// Stats is present once the run is terminal.
	Stats *StatsResponse `json:"stats,omitempty"`
	// URLs lists published outputs.
	URLs        []string `json:"urls,omitempty"`
	CreatedAt   string   `json:"created_at"`
	StartedAt   string   `json:"started_at,omitempty"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

// ListRunsResponse is the HTTP response for listing runs.
type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
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
