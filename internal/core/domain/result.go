package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Device Result
// =============================================================================

// DeviceResult is the outcome of one device within one run. It is created
// once, after the device reaches a terminal status, and never mutated.
type DeviceResult struct {
	DeviceName    string        `json:"device_name"`
	Status        DeviceStatus  `json:"status"`
	Message       string        `json:"message"`
	ConfigLines   int           `json:"config_lines"`
	ExecutionTime time.Duration `json:"execution_time"`
	Error         string        `json:"error,omitempty"`
}

// =============================================================================
// Deployment Result
// =============================================================================

// DeploymentResult is the outcome of one full deployment run.
type DeploymentResult struct {
	ID            string                  `json:"id"`
	TotalDevices  int                     `json:"total_devices"`
	Successful    int                     `json:"successful"`
	Failed        int                     `json:"failed"`
	Skipped       int                     `json:"skipped"`
	ExecutionTime time.Duration           `json:"execution_time"`
	StartedAt     time.Time               `json:"started_at"`
	DryRun        bool                    `json:"dry_run"`
	Results       map[string]DeviceResult `json:"results"`
	Summary       string                  `json:"summary"`
}

// NewDeploymentResult creates an empty result for a run starting now.
func NewDeploymentResult(totalDevices int, dryRun bool) *DeploymentResult {
	return &DeploymentResult{
		ID:           uuid.New().String(),
		TotalDevices: totalDevices,
		StartedAt:    time.Now().UTC(),
		DryRun:       dryRun,
		Results:      make(map[string]DeviceResult),
	}
}

// SuccessRate returns the percentage of successful devices, 0 for an empty run.
func (r *DeploymentResult) SuccessRate() float64 {
	if r.TotalDevices == 0 {
		return 0
	}
	return float64(r.Successful) / float64(r.TotalDevices) * 100
}

// FormatSummary renders the canonical one-line run summary, e.g.
// "3/4 devices deployed successfully (75.0%)".
func FormatSummary(successful, total int) string {
	rate := 0.0
	if total > 0 {
		rate = float64(successful) / float64(total) * 100
	}
	return fmt.Sprintf("%d/%d devices deployed successfully (%.1f%%)", successful, total, rate)
}

// =============================================================================
// Status Snapshot
// =============================================================================

// StatusSnapshot is a point-in-time view of the most recent run.
type StatusSnapshot struct {
	RunID         string        `json:"run_id"`
	TotalDevices  int           `json:"total_devices"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	ExecutionTime time.Duration `json:"execution_time"`
	Summary       string        `json:"summary"`
	Timestamp     time.Time     `json:"timestamp"`
}
