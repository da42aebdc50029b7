package sequencer

import "log/slog"

// =============================================================================
// Event Recording
// =============================================================================

// EventKind names a sequencer lifecycle event.
type EventKind string

const (
	EventRunStarted       EventKind = "run_started"
	EventRunCompleted     EventKind = "run_completed"
	EventValidationPassed EventKind = "validation_passed"
	EventValidationFailed EventKind = "validation_failed"
	EventDeviceStarted    EventKind = "device_started"
	EventDeviceSucceeded  EventKind = "device_succeeded"
	EventDeviceFailed     EventKind = "device_failed"
	EventDeviceSkipped    EventKind = "device_skipped"
	EventDryRun           EventKind = "dry_run"
)

// Recorder is the single observability seam of the sequencer. Core logic
// reports what happened through it and stays free of presentation concerns.
type Recorder interface {
	RecordEvent(kind EventKind, deviceName, detail string)
}

// =============================================================================
// Implementations
// =============================================================================

// SlogRecorder logs events through a structured logger.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder creates a recorder over the given logger.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{logger: logger}
}

// RecordEvent logs one event; failures log at warn, the rest at info.
func (r *SlogRecorder) RecordEvent(kind EventKind, deviceName, detail string) {
	attrs := []any{"event", string(kind)}
	if deviceName != "" {
		attrs = append(attrs, "device", deviceName)
	}
	if detail != "" {
		attrs = append(attrs, "detail", detail)
	}

	switch kind {
	case EventValidationFailed, EventDeviceFailed:
		r.logger.Warn("deployment event", attrs...)
	default:
		r.logger.Info("deployment event", attrs...)
	}
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) RecordEvent(EventKind, string, string) {}
