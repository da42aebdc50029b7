package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/mwessel/netrollout/internal/core/domain"
	"github.com/mwessel/netrollout/internal/core/inventory"
	"github.com/mwessel/netrollout/internal/core/sequencer"
	"github.com/mwessel/netrollout/internal/core/templates"
	"github.com/mwessel/netrollout/internal/shell/store"
	"github.com/mwessel/netrollout/internal/shell/transport"
)

// =============================================================================
// Wiring
// =============================================================================

// components bundles everything a command needs.
type components struct {
	inv       *inventory.Inventory
	store     *templates.DirStore
	renderer  *templates.Renderer
	validator *templates.Validator
}

// buildComponents loads the inventory and wires the template layer.
func buildComponents(cfg *Config) (*components, error) {
	inv, err := inventory.Load(cfg.Inventory.Path)
	if err != nil {
		return nil, &AppError{Op: "LoadInventory", Err: err, ExitCode: ExitInventoryError}
	}

	tmplStore := templates.NewDirStore(cfg.Templates.Dir)
	return &components{
		inv:       inv,
		store:     tmplStore,
		renderer:  templates.NewRenderer(tmplStore),
		validator: templates.NewValidator(tmplStore),
	}, nil
}

// openArchive opens the run archive when a DSN is configured.
func openArchive(cfg *Config) (store.Archive, error) {
	if cfg.Database.DSN == "" {
		return nil, nil
	}
	archive, err := store.NewSQLiteArchive(cfg.Database.DSN)
	if err != nil {
		return nil, &AppError{Op: "OpenArchive", Err: err, ExitCode: ExitDatabaseError}
	}
	return archive, nil
}

// =============================================================================
// deploy
// =============================================================================

func runDeploy(cfg *Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "Force a dry run")
	live := fs.Bool("live", false, "Force a live run")
	if err := fs.Parse(args); err != nil {
		return &AppError{Op: "ParseFlags", Err: err, ExitCode: ExitConfigError}
	}
	if *dryRun && *live {
		return &AppError{
			Op:       "ParseFlags",
			Err:      errors.New("--dry-run and --live are mutually exclusive"),
			ExitCode: ExitConfigError,
		}
	}

	c, err := buildComponents(cfg)
	if err != nil {
		return err
	}

	archive, err := openArchive(cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
	}

	ssh := transport.NewSSH(transport.Config{
		ConnectTimeout:  cfg.SSH.ConnectTimeout,
		CommandTimeout:  cfg.SSH.CommandTimeout,
		DefaultUsername: cfg.SSH.DefaultUsername,
		DefaultKeyFile:  cfg.SSH.DefaultKeyFile,
		Port:            cfg.SSH.Port,
	}, logger)
	defer ssh.DisconnectAll()

	seq := sequencer.New(c.inv, c.renderer, c.validator, ssh, sequencer.NewSlogRecorder(logger))

	var override *bool
	if *dryRun {
		override = dryRun
	} else if *live {
		f := false
		override = &f
	}

	result := seq.DeployAll(context.Background(), override)
	printResult(result)

	if archive != nil {
		if err := archive.SaveRun(context.Background(), result); err != nil {
			logger.Error("archiving run failed", "run_id", result.ID, "error", err)
		}
	}

	if result.Failed > 0 {
		return &AppError{
			Op:       "Deploy",
			Err:      fmt.Errorf("%d of %d devices failed", result.Failed, result.TotalDevices),
			ExitCode: ExitDeployFailures,
		}
	}
	return nil
}

// printResult writes the human-readable run report to stdout.
func printResult(result *domain.DeploymentResult) {
	names := make([]string, 0, len(result.Results))
	for name := range result.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dr := result.Results[name]
		line := fmt.Sprintf("%-12s %-20s %s", dr.Status, name, dr.Message)
		if dr.Error != "" {
			line += " (" + dr.Error + ")"
		}
		fmt.Println(line)
	}
	if result.DryRun {
		fmt.Println("mode: dry run")
	}
	fmt.Println(result.Summary)
}

// =============================================================================
// validate
// =============================================================================

func runValidate(cfg *Config, _ *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return &AppError{Op: "ParseFlags", Err: err, ExitCode: ExitConfigError}
	}

	tmplStore := templates.NewDirStore(cfg.Templates.Dir)
	validator := templates.NewValidator(tmplStore)

	results, err := validator.ValidateAll()
	if err != nil {
		return &AppError{Op: "Validate", Err: err, ExitCode: ExitConfigError}
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	invalid := 0
	for _, name := range names {
		res := results[name]
		if res.Valid {
			fmt.Printf("ok      %-24s %d lines\n", name, res.LineCount)
			continue
		}
		invalid++
		fmt.Printf("invalid %-24s %s: %s\n", name, res.Kind, res.Error)
	}

	if invalid > 0 {
		return &AppError{
			Op:       "Validate",
			Err:      fmt.Errorf("%d of %d templates invalid", invalid, len(results)),
			ExitCode: ExitConfigError,
		}
	}
	fmt.Printf("%d templates valid\n", len(results))
	return nil
}

// =============================================================================
// render
// =============================================================================

func runRender(cfg *Config, _ *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	deviceName := fs.String("device", "", "Device name from the inventory")
	toFile := fs.Bool("write", false, "Write to the output directory instead of stdout")
	if err := fs.Parse(args); err != nil {
		return &AppError{Op: "ParseFlags", Err: err, ExitCode: ExitConfigError}
	}
	if *deviceName == "" {
		return &AppError{
			Op:       "ParseFlags",
			Err:      errors.New("--device is required"),
			ExitCode: ExitConfigError,
		}
	}

	c, err := buildComponents(cfg)
	if err != nil {
		return err
	}

	var device *inventory.Device
	for _, d := range c.inv.Devices() {
		if d.Name == *deviceName {
			dd := d
			device = &dd
			break
		}
	}
	if device == nil {
		return &AppError{
			Op:       "Render",
			Err:      fmt.Errorf("device %q not in inventory", *deviceName),
			ExitCode: ExitInventoryError,
		}
	}
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

	// Rendered from the device's role, the same path a deployment takes.
	config, err := c.renderer.GenerateConfig(device.Role, vars)
	if err != nil {
		code := ExitConfigError
		if errors.Is(err, templates.ErrUnknownRole) {
			code = ExitInventoryError
		}
		return &AppError{Op: "Render", Err: err, ExitCode: code}
	}

	if *toFile {
		path := filepath.Join(cfg.Output.Dir, device.Name+".cfg")
		if err := templates.SaveRenderedConfig(config, path); err != nil {
			return &AppError{Op: "Render", Err: err, ExitCode: ExitConfigError}
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	}

	_, err = os.Stdout.WriteString(config)
	return err
}
