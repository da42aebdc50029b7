package templates

// =============================================================================
// Canonical Variable Tree
// =============================================================================

// CanonicalVars returns the fixed variable tree used to probe templates
// during validation. It covers every section a role template may reference:
// host identity, VLAN and interface maps, port config, STP settings, the
// OSPF routing block, the NAT block, the feature list, and free-form
// metadata. A fresh copy is returned on every call so validation passes
// cannot leak state into each other.
func CanonicalVars() map[string]any {
	return map[string]any{
		"hostname":      "TEST-DEVICE",
		"device_name":   "test-device",
		"device_type":   "huawei",
		"management_ip": "192.168.1.1",
		"vlans":         map[string]any{},
		"interfaces":    map[string]any{},
		"port_config":   map[string]any{},
		"stp": map[string]any{
			"mode":     "rstp",
			"priority": 32768,
		},
		"routing": map[string]any{
			"ospf": map[string]any{
				"process_id": 1,
				"router_id":  "1.1.1.1",
				"area":       0,
				"networks":   []any{},
			},
			"static_routes": []any{},
		},
		"nat": map[string]any{
			"inside_interfaces":  []any{},
			"outside_interfaces": []any{},
		},
		"features":        []any{},
		"mgmt_vlan":       10,
		"generation_time": "2025-09-01 12:00:00",
		"template_name":   "unknown",
	}
}

// =============================================================================
// Render Defaults
// =============================================================================

// renderDefaults is the documented default for every top-level key a
// template may reference. Kept separate from CanonicalVars so the probe
// identity ("TEST-DEVICE") never leaks into real output.
func renderDefaults() map[string]any {
	return map[string]any{
		"hostname":      "DEVICE",
		"device_name":   "device",
		"device_type":   "huawei",
		"management_ip": "192.168.1.1",
		"vlans":         map[string]any{},
		"interfaces":    map[string]any{},
		"port_config":   map[string]any{},
		"stp": map[string]any{
			"mode":     "rstp",
			"priority": 32768,
		},
		"routing": map[string]any{
			"ospf": map[string]any{
				"process_id": 1,
				"router_id":  "1.1.1.1",
				"area":       0,
				"networks":   []any{},
			},
			"static_routes": []any{},
		},
		"nat": map[string]any{
			"inside_interfaces":  []any{},
			"outside_interfaces": []any{},
		},
		"features":        []any{},
		"mgmt_vlan":       10,
		"generation_time": "2025-09-01 12:00:00",
		"template_name":   "unknown",
	}
}

// WithDefaults returns a complete variable set: every top-level key present
// in partial is used as-is, every absent top-level key receives its default.
// Defaulting is deliberately shallow. A caller-supplied map is never
// deep-merged against a nested default, so a map missing required sub-fields
// surfaces as an undefined-variable error inside the template instead of
// being silently patched.
func WithDefaults(partial map[string]any) map[string]any {
	complete := make(map[string]any, len(partial))
	for k, v := range partial {
		complete[k] = v
	}
	for k, v := range renderDefaults() {
		if _, ok := complete[k]; !ok {
			complete[k] = v
		}
	}
	return complete
}
