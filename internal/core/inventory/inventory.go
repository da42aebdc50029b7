// Package inventory loads and models the device roster that drives a
// deployment run. This is part of the Functional Core - the only I/O is
// reading the inventory file handed to Load.
package inventory

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound is returned when the inventory file does not exist.
	ErrNotFound = errors.New("inventory file not found")

	// ErrInvalidYAML is returned when the inventory cannot be parsed.
	ErrInvalidYAML = errors.New("inventory is not valid YAML")

	// ErrNoDevices is returned when the inventory lacks a devices mapping.
	ErrNoDevices = errors.New("inventory has no devices section")
)

// DefaultDeploymentOrder is assigned to devices that do not declare one.
// It sorts after any explicitly ordered device.
const DefaultDeploymentOrder = 999

// =============================================================================
// Types
// =============================================================================

// Credentials carry the authentication material for a device. The core
// never interprets them; they are passed through to the transport.
type Credentials struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	SSHKeyFile string `yaml:"ssh_key_file"`
}

// Device is one entry of the roster. Identity is Name (the YAML map key).
// Devices are immutable after load.
type Device struct {
	Name            string
	IP              string
	DeviceType      string
	Role            string
	Template        string
	DeploymentOrder int
	Credentials     Credentials
	Variables       map[string]any
}

// Inventory is the declarative list of devices plus the global policy flags
// for one deployment run. The device list is stably sorted ascending by
// DeploymentOrder; equal orders keep their file-declaration order.
type Inventory struct {
	devices           []Device
	DryRunDefault     bool
	RollbackOnFailure bool
}

// =============================================================================
// Loading
// =============================================================================

// deviceSpec is the YAML shape of a single device entry.
type deviceSpec struct {
	IP              string         `yaml:"ip"`
	DeviceType      string         `yaml:"device_type"`
	Role            string         `yaml:"role"`
	Template        string         `yaml:"template"`
	DeploymentOrder *int           `yaml:"deployment_order"`
	Credentials     Credentials    `yaml:"credentials"`
	Variables       map[string]any `yaml:"variables"`
}

// fileSpec is the YAML shape of the inventory file. Devices is kept as a
// raw node so that declaration order survives decoding; Go maps would
// destroy the tie-break order the stable sort depends on.
type fileSpec struct {
	Devices  yaml.Node `yaml:"devices"`
	Settings struct {
		DryRunDefault *bool `yaml:"dry_run_default"`
	} `yaml:"global_settings"`
	Strategy struct {
		RollbackOnFailure *bool `yaml:"rollback_on_failure"`
	} `yaml:"deployment_strategy"`
}

// Load reads and parses an inventory file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read inventory %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses inventory YAML. Every device entry receives its map key as
// Name; missing deployment_order defaults to DefaultDeploymentOrder;
// dry_run_default and rollback_on_failure both default to true, the safer
// settings.
func Parse(data []byte) (*Inventory, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if spec.Devices.Kind != yaml.MappingNode {
		return nil, ErrNoDevices
	}

	inv := &Inventory{
		DryRunDefault:     true,
		RollbackOnFailure: true,
	}
	if spec.Settings.DryRunDefault != nil {
		inv.DryRunDefault = *spec.Settings.DryRunDefault
	}
	if spec.Strategy.RollbackOnFailure != nil {
		inv.RollbackOnFailure = *spec.Strategy.RollbackOnFailure
	}

	// Mapping nodes store key/value pairs as alternating content entries,
	// in file order.
	content := spec.Devices.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value

		var ds deviceSpec
		if err := content[i+1].Decode(&ds); err != nil {
			return nil, fmt.Errorf("%w: device %s: %v", ErrInvalidYAML, name, err)
		}

		order := DefaultDeploymentOrder
		if ds.DeploymentOrder != nil {
			order = *ds.DeploymentOrder
		}

		inv.devices = append(inv.devices, Device{
			Name:            name,
			IP:              ds.IP,
			DeviceType:      ds.DeviceType,
			Role:            ds.Role,
			Template:        ds.Template,
			DeploymentOrder: order,
			Credentials:     ds.Credentials,
			Variables:       ds.Variables,
		})
	}

	// Stable sort: equal orders keep declaration order.
	sort.SliceStable(inv.devices, func(a, b int) bool {
		return inv.devices[a].DeploymentOrder < inv.devices[b].DeploymentOrder
	})

	return inv, nil
}

// =============================================================================
// Accessors
// =============================================================================

// Len returns the number of devices.
func (inv *Inventory) Len() int {
	return len(inv.devices)
}

// Devices returns a defensive copy of the sorted device list. Callers never
// observe later mutation of the inventory.
func (inv *Inventory) Devices() []Device {
	out := make([]Device, len(inv.devices))
	copy(out, inv.devices)
	return out
}

// DeploymentSequence returns the rollout order. It is the single source of
// truth for ordering: the sequencer calls it exactly once per run so the
// order cannot drift mid-run.
func (inv *Inventory) DeploymentSequence() []Device {
	return inv.Devices()
}
