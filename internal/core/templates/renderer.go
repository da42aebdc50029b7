package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrUnknownRole is returned when a role has no template mapping.
	ErrUnknownRole = errors.New("unknown device role")
)

// =============================================================================
// Role Mapping
// =============================================================================

// roleTemplates is the fixed role -> template table.
var roleTemplates = map[string]string{
	"management": "management_switch",
	"core":       "core_switch",
	"access":     "access_switch",
	"edge":       "edge_router",
	"router":     "edge_router",
}

// TemplateForRole resolves a device role to its template name.
func TemplateForRole(role string) (string, bool) {
	name, ok := roleTemplates[role]
	return name, ok
}

// =============================================================================
// Renderer
// =============================================================================

// Renderer produces final device configuration text from a template and a
// partial variable set completed by WithDefaults.
type Renderer struct {
	store Store
}

// NewRenderer creates a renderer over the given template store.
func NewRenderer(store Store) *Renderer {
	return &Renderer{store: store}
}

// Render completes vars with the documented top-level defaults and executes
// the named template. All failures come back as *RenderError; none
// propagate as faults.
func (r *Renderer) Render(name string, vars map[string]any) (string, error) {
	complete := WithDefaults(vars)
	complete["template_name"] = name
	return r.store.Render(name, complete)
}

// GenerateConfig resolves a device role to its template and renders it with
// the device's variables.
func (r *Renderer) GenerateConfig(role string, deviceVars map[string]any) (string, error) {
	name, ok := TemplateForRole(role)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return r.Render(name, deviceVars)
}

// SaveRenderedConfig writes rendered configuration to a file, creating
// parent directories as needed.
func SaveRenderedConfig(config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		return fmt.Errorf("write rendered config: %w", err)
	}
	return nil
}
