// Package transport implements the sequencer's Transport over SSH. This is
// part of the Imperative Shell: it owns dial timeouts, session handling,
// and the per-device client cache.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/mwessel/netrollout/internal/core/inventory"
)

// probeCommand verifies a fresh session actually answers.
const probeCommand = "display version"

// =============================================================================
// Configuration
// =============================================================================

// Config carries transport timeouts and credential fallbacks.
type Config struct {
	ConnectTimeout  time.Duration
	CommandTimeout  time.Duration
	DefaultUsername string
	DefaultKeyFile  string
	Port            int
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  10 * time.Second,
		CommandTimeout:  30 * time.Second,
		DefaultUsername: "admin",
		Port:            22,
	}
}

// =============================================================================
// SSH Transport
// =============================================================================

// SSH pushes configuration to devices over SSH, caching one live client per
// device name.
type SSH struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*ssh.Client
}

// NewSSH creates an SSH transport.
func NewSSH(cfg Config, logger *slog.Logger) *SSH {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SSH{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*ssh.Client),
	}
}

// Connect dials the device, probes the session, and caches the client.
// Reconnecting an already connected device replaces the cached client.
func (t *SSH) Connect(ctx context.Context, device inventory.Device) error {
	clientConfig, err := t.clientConfig(device)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(device.IP, fmt.Sprintf("%d", t.cfg.Port))
	t.logger.Debug("dialing device", "device", device.Name, "addr", addr)

	dialer := net.Dialer{Timeout: t.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	if _, err := t.runCommand(client, probeCommand); err != nil {
		client.Close()
		return fmt.Errorf("probe %s: %w", device.Name, err)
	}

	t.mu.Lock()
	if old, ok := t.clients[device.Name]; ok {
		old.Close()
	}
	t.clients[device.Name] = client
	t.mu.Unlock()

	t.logger.Info("device connected", "device", device.Name, "addr", addr)
	return nil
}

// DeployConfig splits the rendered configuration into commands and executes
// them in a system-view session, then saves. With dryRun the batch is only
// logged; the device is never touched.
func (t *SSH) DeployConfig(ctx context.Context, deviceName, config string, dryRun bool) error {
	commands := configCommands(config)

	if dryRun {
		t.logger.Info("dry run, configuration not pushed",
			"device", deviceName, "commands", len(commands))
		return nil
	}

	t.mu.Lock()
	client, ok := t.clients[deviceName]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("device %s is not connected", deviceName)
	}

	batch := make([]string, 0, len(commands)+3)
	batch = append(batch, "system-view")
	batch = append(batch, commands...)
	batch = append(batch, "return", "save")

	done := make(chan error, 1)
	go func() {
		_, err := t.runCommand(client, strings.Join(batch, "\n"))
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("execute configuration on %s: %w", deviceName, err)
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.cfg.CommandTimeout):
		return fmt.Errorf("configuration push to %s timed out after %s", deviceName, t.cfg.CommandTimeout)
	}

	t.logger.Info("configuration deployed", "device", deviceName, "commands", len(commands))
	return nil
}

// Disconnect closes and forgets the cached client for a device. Unknown
// devices are a no-op.
func (t *SSH) Disconnect(deviceName string) error {
	t.mu.Lock()
	client, ok := t.clients[deviceName]
	delete(t.clients, deviceName)
	t.mu.Unlock()

	if !ok {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("close connection to %s: %w", deviceName, err)
	}
	t.logger.Debug("device disconnected", "device", deviceName)
	return nil
}

// DisconnectAll closes every cached client. Used on shutdown.
func (t *SSH) DisconnectAll() {
	t.mu.Lock()
	clients := t.clients
	t.clients = make(map[string]*ssh.Client)
	t.mu.Unlock()

	for name, client := range clients {
		if err := client.Close(); err != nil {
			t.logger.Warn("closing connection failed", "device", name, "error", err)
		}
	}
}

// =============================================================================
// Internals
// =============================================================================

// clientConfig builds the auth config for one device. A private key file
// wins over a password; transport defaults fill missing credentials.
func (t *SSH) clientConfig(device inventory.Device) (*ssh.ClientConfig, error) {
	creds := device.Credentials

	username := creds.Username
	if username == "" {
		username = t.cfg.DefaultUsername
	}

	keyFile := creds.SSHKeyFile
	if keyFile == "" && creds.Password == "" {
		keyFile = t.cfg.DefaultKeyFile
	}

	var authMethods []ssh.AuthMethod
	if keyFile != "" {
		key, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read SSH key for %s: %w", device.Name, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse SSH key for %s: %w", device.Name, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		authMethods = append(authMethods, ssh.Password(creds.Password))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication methods for %s", device.Name)
	}

	return &ssh.ClientConfig{
		User: username,
		Auth: authMethods,
		// Network gear rarely has stable host keys in the lab inventories
		// this targets; known-hosts support is operator-supplied later.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         t.cfg.ConnectTimeout,
	}, nil
}

// runCommand executes one command string in a fresh session.
func (t *SSH) runCommand(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(cmd)
	if err != nil {
		return string(out), fmt.Errorf("run %q: %w", firstLine(cmd), err)
	}
	return string(out), nil
}

// configCommands extracts executable commands from rendered configuration:
// non-empty lines that are not comment markers.
func configCommands(config string) []string {
	var commands []string
	for _, line := range strings.Split(config, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		commands = append(commands, trimmed)
	}
	return commands
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
