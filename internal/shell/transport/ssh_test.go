package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwessel/netrollout/internal/core/inventory"
)

func TestConfigCommands(t *testing.T) {
	config := "#\n# generated\nsysname CORE-01\n\n vlan batch 10 20 \nstp mode rstp\n"
	assert.Equal(t,
		[]string{"sysname CORE-01", "vlan batch 10 20", "stp mode rstp"},
		configCommands(config))
}

func TestConfigCommands_Empty(t *testing.T) {
	assert.Empty(t, configCommands("#\n\n# all comments\n"))
}

func TestDeployConfig_DryRunWithoutConnection(t *testing.T) {
	tr := NewSSH(DefaultConfig(), nil)

	// Dry run must succeed with no cached client and no network at all.
	err := tr.DeployConfig(context.Background(), "core-sw", "sysname X\n", true)
	assert.NoError(t, err)
}

func TestDeployConfig_NotConnected(t *testing.T) {
	tr := NewSSH(DefaultConfig(), nil)

	err := tr.DeployConfig(context.Background(), "core-sw", "sysname X\n", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestDisconnect_UnknownDeviceIsNoop(t *testing.T) {
	tr := NewSSH(DefaultConfig(), nil)
	assert.NoError(t, tr.Disconnect("never-connected"))
}

func TestClientConfig_Auth(t *testing.T) {
	tr := NewSSH(DefaultConfig(), nil)

	cfg, err := tr.clientConfig(inventory.Device{
		Name: "core-sw",
		Credentials: inventory.Credentials{
			Username: "netops",
			Password: "secret",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "netops", cfg.User)
	assert.Len(t, cfg.Auth, 1)
}

func TestClientConfig_DefaultUsername(t *testing.T) {
	tr := NewSSH(DefaultConfig(), nil)

	cfg, err := tr.clientConfig(inventory.Device{
		Name:        "core-sw",
		Credentials: inventory.Credentials{Password: "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.User)
}

func TestClientConfig_NoCredentials(t *testing.T) {
	tr := NewSSH(DefaultConfig(), nil)

	_, err := tr.clientConfig(inventory.Device{Name: "core-sw"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no authentication methods")
}

func TestClientConfig_MissingKeyFile(t *testing.T) {
	tr := NewSSH(DefaultConfig(), nil)

	_, err := tr.clientConfig(inventory.Device{
		Name:        "core-sw",
		Credentials: inventory.Credentials{SSHKeyFile: "/nonexistent/id_rsa"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read SSH key")
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.Port = 1
	tr := NewSSH(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := tr.Connect(ctx, inventory.Device{
		Name:        "ghost",
		IP:          "127.0.0.1",
		Credentials: inventory.Credentials{Username: "admin", Password: "x"},
	})
	require.Error(t, err)
}
