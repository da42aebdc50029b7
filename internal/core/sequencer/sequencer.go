// Package sequencer drives a deployment run across the inventory, one
// device at a time. It is the decision core: template gate, skip gate,
// per-device state machine, and result aggregation all live here, while
// every side effect goes through the Transport and Recorder seams.
package sequencer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mwessel/netrollout/internal/core/domain"
	"github.com/mwessel/netrollout/internal/core/inventory"
	"github.com/mwessel/netrollout/internal/core/templates"
)

// Transport pushes rendered configuration to devices. Implementations own
// their timeouts and connection caching; the sequencer only sequences calls.
type Transport interface {
	Connect(ctx context.Context, device inventory.Device) error
	DeployConfig(ctx context.Context, deviceName, config string, dryRun bool) error
	Disconnect(deviceName string) error
}

// =============================================================================
// Sequencer
// =============================================================================

// Sequencer orchestrates one deployment run at a time. Concurrent DeployAll
// calls on one Sequencer are not supported; callers serialize.
type Sequencer struct {
	inv       *inventory.Inventory
	renderer  *templates.Renderer
	validator *templates.Validator
	transport Transport
	recorder  Recorder
	history   *History
}

// New creates a sequencer. A nil recorder falls back to NopRecorder.
func New(inv *inventory.Inventory, renderer *templates.Renderer, validator *templates.Validator, transport Transport, recorder Recorder) *Sequencer {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Sequencer{
		inv:       inv,
		renderer:  renderer,
		validator: validator,
		transport: transport,
		recorder:  recorder,
		history:   NewHistory(),
	}
}

// History exposes the run history for status queries.
func (s *Sequencer) History() *History {
	return s.history
}

// DeployAll runs one full deployment. dryRunOverride, when non-nil, wins
// over the inventory's dry_run_default. The returned result is always
// non-nil and already appended to history.
func (s *Sequencer) DeployAll(ctx context.Context, dryRunOverride *bool) *domain.DeploymentResult {
	dryRun := s.inv.DryRunDefault
	if dryRunOverride != nil {
		dryRun = *dryRunOverride
	}

	result := domain.NewDeploymentResult(s.inv.Len(), dryRun)
	started := time.Now()

	if s.inv.Len() == 0 {
		result.Summary = "No devices to deploy"
		result.ExecutionTime = time.Since(started)
		s.history.Append(result)
		s.recorder.RecordEvent(EventRunCompleted, "", result.Summary)
		return result
	}

	s.recorder.RecordEvent(EventRunStarted, "", fmt.Sprintf("devices=%d dry_run=%t", s.inv.Len(), dryRun))

	// The sequence is fixed once per run; ordering cannot drift mid-run.
	sequence := s.inv.DeploymentSequence()

	// Gate the whole run on the templates the run will actually render:
	// the role-mapped template of every device in the sequence. A single
	// invalid template aborts before any device is touched.
	referenced := gateTemplates(sequence)
	if gate, ok := s.validator.ValidateReferenced(referenced); !ok {
		for name, res := range gate {
			if !res.Valid {
				s.recorder.RecordEvent(EventValidationFailed, "", fmt.Sprintf("template=%s error=%s", name, res.Error))
			}
		}
		result.Failed = result.TotalDevices
		result.Summary = "Template validation failed - deployment aborted"
		result.ExecutionTime = time.Since(started)
		s.history.Append(result)
		return result
	}
	s.recorder.RecordEvent(EventValidationPassed, "", fmt.Sprintf("templates=%d", len(referenced)))

	for _, device := range sequence {
		if s.inv.RollbackOnFailure && result.Failed > 0 {
			result.Results[device.Name] = domain.DeviceResult{
				DeviceName: device.Name,
				Status:     domain.StatusSkipped,
				Message:    "Skipped due to previous deployment failures",
			}
			result.Skipped++
			s.recorder.RecordEvent(EventDeviceSkipped, device.Name, "previous failure")
			continue
		}

		dr := s.deployDevice(ctx, device, dryRun)
		result.Results[device.Name] = dr

		switch dr.Status {
		case domain.StatusSuccess:
			result.Successful++
			s.recorder.RecordEvent(EventDeviceSucceeded, device.Name, dr.Message)
		default:
			result.Failed++
			s.recorder.RecordEvent(EventDeviceFailed, device.Name, dr.Error)
		}
	}

	result.ExecutionTime = time.Since(started)
	result.Summary = domain.FormatSummary(result.Successful, result.TotalDevices)
	s.history.Append(result)
	s.recorder.RecordEvent(EventRunCompleted, "", result.Summary)
	return result
}

// =============================================================================
// Per-Device Deployment
// =============================================================================

// deployDevice walks one device through the state machine and returns its
// terminal result. It never lets a fault escape: a panic anywhere below
// becomes a Failed result and the run continues.
func (s *Sequencer) deployDevice(ctx context.Context, device inventory.Device, dryRun bool) (dr domain.DeviceResult) {
	started := time.Now()

	dr = domain.DeviceResult{
		DeviceName: device.Name,
		Status:     domain.StatusInProgress,
	}

	defer func() {
		if r := recover(); r != nil {
			dr.Status = domain.StatusFailed
			dr.Message = "Deployment failed with exception"
			dr.Error = fmt.Sprintf("%v", r)
		}
		dr.ExecutionTime = time.Since(started)
	}()

	s.recorder.RecordEvent(EventDeviceStarted, device.Name, fmt.Sprintf("dry_run=%t", dryRun))

	if device.IP == "" {
		dr.Status = domain.StatusFailed
		dr.Message = "No IP address specified"
		dr.Error = "Missing device IP address"
		return dr
	}
	if device.Template == "" {
		dr.Status = domain.StatusFailed
		dr.Message = "No template specified"
		dr.Error = "Missing template name"
		return dr
	}

	if !dryRun {
		if err := s.transport.Connect(ctx, device); err != nil {
			dr.Status = domain.StatusFailed
			dr.Message = "Failed to connect to device"
			dr.Error = "SSH connection failed: " + err.Error()
			return dr
		}
		defer s.transport.Disconnect(device.Name)
	}

	// Configuration is rendered from the role's template; the declared
	// template name above is a required precondition, not the render input.
	config, err := s.renderer.GenerateConfig(device.Role, deviceVars(device))
	if err != nil {
		dr.Status = domain.StatusFailed
		dr.Message = "Failed to generate configuration"
		dr.Error = "Template rendering failed: " + err.Error()
		return dr
	}
	dr.ConfigLines = countConfigLines(config)

	if dryRun {
		dr.Status = domain.StatusSuccess
		dr.Message = fmt.Sprintf("Successfully deployed %d configuration lines", dr.ConfigLines)
		s.recorder.RecordEvent(EventDryRun, device.Name, dr.Message)
		return dr
	}

	if err := s.transport.DeployConfig(ctx, device.Name, config, dryRun); err != nil {
		dr.Status = domain.StatusFailed
		dr.Message = "Configuration deployment failed"
		dr.Error = "Deployment execution failed: " + err.Error()
		return dr
	}

	dr.Status = domain.StatusSuccess
	dr.Message = fmt.Sprintf("Successfully deployed %d configuration lines", dr.ConfigLines)
	return dr
}

// gateTemplates returns the distinct role-mapped template names the
// sequence will render, in first-reference order. Devices whose role has
// no mapping contribute nothing; they fail individually during rendering.
func gateTemplates(sequence []inventory.Device) []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range sequence {
		name, ok := templates.TemplateForRole(d.Role)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// deviceVars builds the render variable set for one device. Inventory-level
// variables win over the derived identity keys.
func deviceVars(device inventory.Device) map[string]any {
	vars := map[string]any{
		"device_name":   device.Name,
		"hostname":      device.Name,
		"management_ip": device.IP,
		"device_type":   device.DeviceType,
		"role":          device.Role,
	}
	for k, v := range device.Variables {
		vars[k] = v
	}
	return vars
}

// countConfigLines counts non-empty lines of rendered configuration.
func countConfigLines(config string) int {
	n := 0
	for _, line := range strings.Split(config, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
