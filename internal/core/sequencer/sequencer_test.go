package sequencer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwessel/netrollout/internal/core/domain"
	"github.com/mwessel/netrollout/internal/core/inventory"
	"github.com/mwessel/netrollout/internal/core/templates"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// fakeTransport records every call and fails on demand per device.
type fakeTransport struct {
	calls       []string
	connectErr  map[string]error
	deployErr   map[string]error
	lastConfigs map[string]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connectErr:  make(map[string]error),
		deployErr:   make(map[string]error),
		lastConfigs: make(map[string]string),
	}
}

func (f *fakeTransport) Connect(_ context.Context, device inventory.Device) error {
	f.calls = append(f.calls, "connect:"+device.Name)
	return f.connectErr[device.Name]
}

func (f *fakeTransport) DeployConfig(_ context.Context, deviceName, config string, dryRun bool) error {
	f.calls = append(f.calls, fmt.Sprintf("deploy:%s:dry=%t", deviceName, dryRun))
	f.lastConfigs[deviceName] = config
	return f.deployErr[deviceName]
}

func (f *fakeTransport) Disconnect(deviceName string) error {
	f.calls = append(f.calls, "disconnect:"+deviceName)
	return nil
}

// newTestSequencer wires a sequencer over a temp template dir and the given
// inventory YAML.
func newTestSequencer(t *testing.T, inventoryYAML string, tmpls map[string]string) (*Sequencer, *fakeTransport) {
	t.Helper()

	dir := t.TempDir()
	for name, body := range tmpls {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+templates.Ext), []byte(body), 0o644))
	}

	inv, err := inventory.Parse([]byte(inventoryYAML))
	require.NoError(t, err)

	store := templates.NewDirStore(dir)
	transport := newFakeTransport()
	seq := New(inv, templates.NewRenderer(store), templates.NewValidator(store), transport, NopRecorder{})
	return seq, transport
}

const liveInventory = `
devices:
  mgmt-sw:
    ip: 192.168.10.2
    role: management
    template: management_switch
    deployment_order: 1
  core-sw:
    ip: 192.168.10.3
    role: core
    template: core_switch
    deployment_order: 2
  access-sw:
    ip: 192.168.10.4
    role: access
    template: access_switch
    deployment_order: 3
global_settings:
  dry_run_default: false
`

const switchTemplate = "sysname {{ .hostname }}\n#\nstp mode rstp\n"

// roleTemplateSet covers every role in liveInventory with the same body.
func roleTemplateSet(body string) map[string]string {
	return map[string]string{
		"management_switch": body,
		"core_switch":       body,
		"access_switch":     body,
	}
}

func boolPtr(b bool) *bool { return &b }

// =============================================================================
// DeployAll Tests
// =============================================================================

func TestDeployAll_EmptyInventory(t *testing.T) {
	seq, transport := newTestSequencer(t, "devices: {}\n", nil)

	result := seq.DeployAll(context.Background(), nil)

	assert.Equal(t, "No devices to deploy", result.Summary)
	assert.Zero(t, result.TotalDevices)
	assert.Empty(t, result.Results)
	assert.Empty(t, transport.calls)
	assert.Equal(t, 1, seq.History().Len())
}

func TestDeployAll_AllSucceed(t *testing.T) {
	seq, transport := newTestSequencer(t, liveInventory,
		roleTemplateSet(switchTemplate))

	result := seq.DeployAll(context.Background(), nil)

	assert.Equal(t, 3, result.TotalDevices)
	assert.Equal(t, 3, result.Successful)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.Skipped)
	assert.Equal(t, "3/3 devices deployed successfully (100.0%)", result.Summary)

	// Strict deployment order, connect before deploy, disconnect after.
	assert.Equal(t, []string{
		"connect:mgmt-sw", "deploy:mgmt-sw:dry=false", "disconnect:mgmt-sw",
		"connect:core-sw", "deploy:core-sw:dry=false", "disconnect:core-sw",
		"connect:access-sw", "deploy:access-sw:dry=false", "disconnect:access-sw",
	}, transport.calls)
}

func TestDeployAll_DryRunNeverTouchesTransport(t *testing.T) {
	seq, transport := newTestSequencer(t, liveInventory,
		roleTemplateSet(switchTemplate))

	result := seq.DeployAll(context.Background(), boolPtr(true))

	assert.True(t, result.DryRun)
	assert.Equal(t, 3, result.Successful)
	assert.Empty(t, transport.calls)

	for _, dr := range result.Results {
		assert.Equal(t, domain.StatusSuccess, dr.Status)
		assert.Equal(t, 3, dr.ConfigLines)
		assert.Equal(t, "Successfully deployed 3 configuration lines", dr.Message)
	}
}

func TestDeployAll_DryRunDefaultsOnWhenUnset(t *testing.T) {
	seq, transport := newTestSequencer(t, `
devices:
  core-sw:
    ip: 192.168.10.3
    role: core
    template: core_switch
`, roleTemplateSet(switchTemplate))

	result := seq.DeployAll(context.Background(), nil)

	assert.True(t, result.DryRun)
	assert.Empty(t, transport.calls)
}

func TestDeployAll_OverrideWinsOverInventoryDefault(t *testing.T) {
	// Inventory says live; override forces dry-run.
	seq, transport := newTestSequencer(t, liveInventory,
		roleTemplateSet(switchTemplate))

	result := seq.DeployAll(context.Background(), boolPtr(true))
	assert.True(t, result.DryRun)
	assert.Empty(t, transport.calls)
}

func TestDeployAll_ValidationGateAborts(t *testing.T) {
	seq, transport := newTestSequencer(t, liveInventory,
		roleTemplateSet("sysname {{ .hostname }\n"))

	result := seq.DeployAll(context.Background(), boolPtr(false))

	assert.Equal(t, "Template validation failed - deployment aborted", result.Summary)
	assert.Equal(t, 3, result.Failed)
	assert.Zero(t, result.Successful)
	assert.Empty(t, result.Results)
	assert.Empty(t, transport.calls)
}

func TestDeployAll_GateIgnoresUnreferencedTemplates(t *testing.T) {
	tmpls := roleTemplateSet(switchTemplate)
	tmpls["orphan"] = "{{ if }}\n"
	seq, _ := newTestSequencer(t, liveInventory, tmpls)

	result := seq.DeployAll(context.Background(), boolPtr(true))
	assert.Equal(t, 3, result.Successful)
}

func TestDeployAll_SkipGateAfterFailure(t *testing.T) {
	seq, transport := newTestSequencer(t, liveInventory,
		roleTemplateSet(switchTemplate))
	transport.connectErr["core-sw"] = errors.New("dial tcp: timeout")

	result := seq.DeployAll(context.Background(), boolPtr(false))

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "1/3 devices deployed successfully (33.3%)", result.Summary)

	assert.Equal(t, domain.StatusSuccess, result.Results["mgmt-sw"].Status)
	assert.Equal(t, domain.StatusFailed, result.Results["core-sw"].Status)
	assert.Equal(t, "Failed to connect to device", result.Results["core-sw"].Message)

	skipped := result.Results["access-sw"]
	assert.Equal(t, domain.StatusSkipped, skipped.Status)
	assert.Equal(t, "Skipped due to previous deployment failures", skipped.Message)

	// The skipped device never reaches the transport.
	for _, call := range transport.calls {
		assert.NotContains(t, call, "access-sw")
	}
}

func TestDeployAll_NoSkipGateWhenRollbackDisabled(t *testing.T) {
	yaml := liveInventory + `deployment_strategy:
  rollback_on_failure: false
`
	seq, transport := newTestSequencer(t, yaml,
		roleTemplateSet(switchTemplate))
	transport.connectErr["mgmt-sw"] = errors.New("dial tcp: refused")

	result := seq.DeployAll(context.Background(), boolPtr(false))

	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Skipped)
}

func TestDeployAll_AppendsToHistory(t *testing.T) {
	seq, _ := newTestSequencer(t, liveInventory,
		roleTemplateSet(switchTemplate))

	first := seq.DeployAll(context.Background(), boolPtr(true))
	second := seq.DeployAll(context.Background(), boolPtr(true))

	runs := seq.History().Runs()
	require.Len(t, runs, 2)
	assert.Same(t, first, runs[0])
	assert.Same(t, second, runs[1])
	assert.Same(t, second, seq.History().Current())
	assert.NotEqual(t, first.ID, second.ID)
}

// =============================================================================
// Per-Device Tests
// =============================================================================

func TestDeployDevice_MissingIP(t *testing.T) {
	seq, transport := newTestSequencer(t, `
devices:
  broken:
    role: core
    template: core_switch
`, roleTemplateSet(switchTemplate))

	// Missing identity fails even in dry-run.
	result := seq.DeployAll(context.Background(), boolPtr(true))

	dr := result.Results["broken"]
	assert.Equal(t, domain.StatusFailed, dr.Status)
	assert.Equal(t, "No IP address specified", dr.Message)
	assert.Equal(t, "Missing device IP address", dr.Error)
	assert.Empty(t, transport.calls)
}

func TestDeployDevice_MissingTemplate(t *testing.T) {
	seq, _ := newTestSequencer(t, `
devices:
  bare:
    ip: 192.168.10.9
    role: core
`, roleTemplateSet(switchTemplate))

	result := seq.DeployAll(context.Background(), boolPtr(true))

	dr := result.Results["bare"]
	assert.Equal(t, domain.StatusFailed, dr.Status)
	assert.Equal(t, "No template specified", dr.Message)
	assert.Equal(t, "Missing template name", dr.Error)
}

func TestDeployDevice_RoleSelectsTemplate(t *testing.T) {
	// The declared template only satisfies the precondition; the deployed
	// configuration comes from the role's template.
	seq, transport := newTestSequencer(t, `
devices:
  core-sw:
    ip: 192.168.10.3
    role: core
    template: special
`, map[string]string{
		"core_switch": "sysname {{ .hostname }}\nstp mode rstp\n",
		"special":     "sysname DECLARED\n",
	})

	result := seq.DeployAll(context.Background(), boolPtr(false))
	require.Equal(t, 1, result.Successful)

	assert.Equal(t, "sysname core-sw\nstp mode rstp\n", transport.lastConfigs["core-sw"])
}

func TestDeployDevice_UnknownRole(t *testing.T) {
	seq, transport := newTestSequencer(t, `
devices:
  spine-sw:
    ip: 192.168.10.7
    role: spine
    template: core_switch
`, map[string]string{"core_switch": switchTemplate})

	result := seq.DeployAll(context.Background(), boolPtr(true))

	dr := result.Results["spine-sw"]
	assert.Equal(t, domain.StatusFailed, dr.Status)
	assert.Equal(t, "Failed to generate configuration", dr.Message)
	assert.Contains(t, dr.Error, "unknown device role")
	assert.Empty(t, transport.calls)
}

func TestDeployDevice_RenderFailure(t *testing.T) {
	// The gate passes against the canonical tree; rendering still fails for
	// a device whose variables shadow a map the template descends into.
	seq, _ := newTestSequencer(t, `
devices:
  core-sw:
    ip: 192.168.10.3
    role: core
    template: core_switch
    variables:
      stp:
        mode: mstp
`, map[string]string{"core_switch": "stp priority {{ .stp.priority }}\n"})

	result := seq.DeployAll(context.Background(), boolPtr(true))

	dr := result.Results["core-sw"]
	assert.Equal(t, domain.StatusFailed, dr.Status)
	assert.Equal(t, "Failed to generate configuration", dr.Message)
	assert.Contains(t, dr.Error, "Template rendering failed")
}

func TestDeployDevice_DeployFailure(t *testing.T) {
	seq, transport := newTestSequencer(t, `
devices:
  core-sw:
    ip: 192.168.10.3
    role: core
    template: core_switch
`, roleTemplateSet(switchTemplate))
	transport.deployErr["core-sw"] = errors.New("commit rejected")

	result := seq.DeployAll(context.Background(), boolPtr(false))

	dr := result.Results["core-sw"]
	assert.Equal(t, domain.StatusFailed, dr.Status)
	assert.Equal(t, "Configuration deployment failed", dr.Message)
	assert.Contains(t, dr.Error, "Deployment execution failed")
	// Disconnect still runs after a failed deploy.
	assert.Contains(t, transport.calls, "disconnect:core-sw")
}

func TestDeployDevice_VariablesReachTemplate(t *testing.T) {
	seq, transport := newTestSequencer(t, `
devices:
  core-sw:
    ip: 192.168.10.3
    device_type: S5700
    role: core
    template: core_switch
    variables:
      hostname: CORE-SW-01
`, map[string]string{"core_switch": "sysname {{ .hostname }} ip {{ .management_ip }} type {{ .device_type }}\n"})

	result := seq.DeployAll(context.Background(), boolPtr(false))
	require.Equal(t, 1, result.Successful)

	assert.Equal(t, "sysname CORE-SW-01 ip 192.168.10.3 type S5700\n",
		transport.lastConfigs["core-sw"])
}

type panicTransport struct{ fakeTransport }

func (p *panicTransport) DeployConfig(context.Context, string, string, bool) error {
	panic("wedged session")
}

func TestDeployDevice_PanicBecomesFailure(t *testing.T) {
	dir := t.TempDir()
	for name, body := range roleTemplateSet(switchTemplate) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+templates.Ext), []byte(body), 0o644))
	}

	inv, err := inventory.Parse([]byte(liveInventory))
	require.NoError(t, err)

	store := templates.NewDirStore(dir)
	transport := &panicTransport{*newFakeTransport()}
	seq := New(inv, templates.NewRenderer(store), templates.NewValidator(store), transport, nil)

	result := seq.DeployAll(context.Background(), boolPtr(false))

	// First device panics mid-deploy, the skip gate covers the rest, and the
	// run still completes with a summary.
	dr := result.Results["mgmt-sw"]
	assert.Equal(t, domain.StatusFailed, dr.Status)
	assert.Equal(t, "Deployment failed with exception", dr.Message)
	assert.Contains(t, dr.Error, "wedged session")
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, "0/3 devices deployed successfully (0.0%)", result.Summary)
}

// =============================================================================
// History Tests
// =============================================================================

func TestHistory_StatusEmpty(t *testing.T) {
	h := NewHistory()
	_, ok := h.Status()
	assert.False(t, ok)
	assert.Nil(t, h.Current())
	assert.Empty(t, h.Runs())
}

func TestHistory_StatusReflectsCurrentRun(t *testing.T) {
	h := NewHistory()

	r := domain.NewDeploymentResult(4, false)
	r.Successful = 3
	r.Failed = 1
	r.Summary = domain.FormatSummary(3, 4)
	h.Append(r)

	snap, ok := h.Status()
	require.True(t, ok)
	assert.Equal(t, r.ID, snap.RunID)
	assert.Equal(t, 4, snap.TotalDevices)
	assert.Equal(t, 3, snap.Successful)
	assert.Equal(t, "3/4 devices deployed successfully (75.0%)", snap.Summary)
}

func TestHistory_RunsIsDefensiveCopy(t *testing.T) {
	h := NewHistory()
	h.Append(domain.NewDeploymentResult(1, true))

	runs := h.Runs()
	runs[0] = nil
	require.NotNil(t, h.Runs()[0])
}
