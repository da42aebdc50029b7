package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// DeployRequest is the request body for starting a deployment run. A nil
// DryRun defers to the inventory's dry_run_default.
type DeployRequest struct {
	DryRun *bool `json:"dry_run"`
}

// =============================================================================
// Response Types
// =============================================================================

// DeviceResultResponse represents one device outcome in a run response.
type DeviceResultResponse struct {
	DeviceName      string `json:"device_name"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	ConfigLines     int    `json:"config_lines"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Error           string `json:"error,omitempty"`
}

// RunResponse is the response for run operations.
type RunResponse struct {
	ID              string                          `json:"id"`
	TotalDevices    int                             `json:"total_devices"`
	Successful      int                             `json:"successful"`
	Failed          int                             `json:"failed"`
	Skipped         int                             `json:"skipped"`
	ExecutionTimeMs int64                           `json:"execution_time_ms"`
	StartedAt       time.Time                       `json:"started_at"`
	DryRun          bool                            `json:"dry_run"`
	Summary         string                          `json:"summary"`
	Results         map[string]DeviceResultResponse `json:"results"`
}

// ListRunsResponse is the response for listing archived runs.
type ListRunsResponse struct {
	Runs   []RunResponse `json:"runs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// StatusResponse is the current-run status snapshot.
type StatusResponse struct {
	RunID           string    `json:"run_id"`
	TotalDevices    int       `json:"total_devices"`
	Successful      int       `json:"successful"`
	Failed          int       `json:"failed"`
	Skipped         int       `json:"skipped"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Summary         string    `json:"summary"`
	Timestamp       time.Time `json:"timestamp"`
}

// TemplateValidationResponse is one template's validation report entry,
// combining file metadata with its validation status.
type TemplateValidationResponse struct {
	Valid          bool      `json:"valid"`
	SizeBytes      int64     `json:"size_bytes"`
	ModifiedAt     time.Time `json:"modified_at"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	Line           int       `json:"line,omitempty"`
	RenderedLength int       `json:"rendered_length,omitempty"`
	LineCount      int       `json:"line_count,omitempty"`
}

// ValidationReportResponse is the full validation report.
type ValidationReportResponse struct {
	AllValid  bool                                  `json:"all_valid"`
	Templates map[string]TemplateValidationResponse `json:"templates"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}
