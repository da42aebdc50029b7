package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Defaulting Tests
// =============================================================================

func TestWithDefaults_FillsMissingTopLevelKeys(t *testing.T) {
	complete := WithDefaults(map[string]any{"hostname": "CORE-01"})

	assert.Equal(t, "CORE-01", complete["hostname"])
	assert.Equal(t, "device", complete["device_name"])
	assert.Equal(t, map[string]any{}, complete["vlans"])
	assert.Equal(t, 10, complete["mgmt_vlan"])

	stp, ok := complete["stp"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rstp", stp["mode"])
	assert.Equal(t, 32768, stp["priority"])
}

func TestWithDefaults_DoesNotMutateInput(t *testing.T) {
	partial := map[string]any{"hostname": "CORE-01"}
	_ = WithDefaults(partial)
	assert.Len(t, partial, 1)
}

func TestWithDefaults_TopLevelOnly(t *testing.T) {
	// A caller-supplied map is used as-is, never deep-merged.
	complete := WithDefaults(map[string]any{
		"stp": map[string]any{"mode": "mstp"},
	})
	stp := complete["stp"].(map[string]any)
	assert.Equal(t, "mstp", stp["mode"])
	_, hasPriority := stp["priority"]
	assert.False(t, hasPriority)
}

func TestWithDefaults_ShallowMergeSurfacesInTemplate(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "stp", "stp instance 0 priority {{ .stp.priority }}\n")

	r := NewRenderer(NewDirStore(dir))
	// stp supplied without priority: the gap surfaces as an
	// undefined-variable error, it is not silently patched.
	_, err := r.Render("stp", map[string]any{
		"stp": map[string]any{"mode": "mstp"},
	})
	require.Error(t, err)

	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ErrorUndefined, rerr.Kind)
}

// =============================================================================
// Renderer Tests
// =============================================================================

func TestRenderer_Render_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "base", "sysname {{ .hostname }} vlan {{ .mgmt_vlan }}\n")

	r := NewRenderer(NewDirStore(dir))
	out, err := r.Render("base", map[string]any{"hostname": "ACCESS-03"})
	require.NoError(t, err)
	assert.Equal(t, "sysname ACCESS-03 vlan 10\n", out)
}

func TestRenderer_Render_InjectsTemplateName(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "self", "# rendered from {{ .template_name }}\n")

	r := NewRenderer(NewDirStore(dir))
	out, err := r.Render("self", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "# rendered from self\n", out)
}

func TestRenderer_GenerateConfig_RoleMapping(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "core_switch", "sysname {{ .hostname }}\n")
	writeTemplate(t, dir, "edge_router", "sysname {{ .hostname }} # edge\n")

	r := NewRenderer(NewDirStore(dir))

	out, err := r.GenerateConfig("core", map[string]any{"hostname": "CORE-01"})
	require.NoError(t, err)
	assert.Equal(t, "sysname CORE-01\n", out)

	// Both edge and router resolve to the edge_router template.
	out, err = r.GenerateConfig("router", map[string]any{"hostname": "EDGE-01"})
	require.NoError(t, err)
	assert.Equal(t, "sysname EDGE-01 # edge\n", out)
}

func TestRenderer_GenerateConfig_UnknownRole(t *testing.T) {
	r := NewRenderer(NewDirStore(t.TempDir()))
	_, err := r.GenerateConfig("spine", map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestTemplateForRole(t *testing.T) {
	for role, want := range map[string]string{
		"management": "management_switch",
		"core":       "core_switch",
		"access":     "access_switch",
		"edge":       "edge_router",
		"router":     "edge_router",
	} {
		got, ok := TemplateForRole(role)
		assert.True(t, ok, role)
		assert.Equal(t, want, got, role)
	}
	_, ok := TemplateForRole("spine")
	assert.False(t, ok)
}

// =============================================================================
// SaveRenderedConfig Tests
// =============================================================================

func TestSaveRenderedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "core-01.cfg")
	require.NoError(t, SaveRenderedConfig("sysname CORE-01\n", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sysname CORE-01\n", string(data))
}
