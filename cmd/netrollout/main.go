// Command netrollout deploys rendered configuration to network devices
// according to a YAML inventory.
package main

import (
	"flag"
	"fmt"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitInventoryError  = 3
	ExitDeployFailures  = 4
	ExitHTTPServerError = 5
)

// AppError represents an error during command execution.
type AppError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *AppError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Entry Point
// =============================================================================

const usage = `Usage: netrollout [flags] <command>

Commands:
  deploy     run a deployment against the inventory
  validate   validate all discovered templates
  render     render one device's configuration
  serve      run the status API server
  version    print version and exit

Flags:
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("netrollout", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return ExitConfigError
	}
	command := fs.Arg(0)
	commandArgs := fs.Args()[1:]

	if command == "version" {
		fmt.Printf("netrollout %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg)

	var cmdErr error
	switch command {
	case "deploy":
		cmdErr = runDeploy(cfg, logger, commandArgs)
	case "validate":
		cmdErr = runValidate(cfg, logger, commandArgs)
	case "render":
		cmdErr = runRender(cfg, logger, commandArgs)
	case "serve":
		cmdErr = runServe(cfg, logger, commandArgs)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		fs.Usage()
		return ExitConfigError
	}

	if cmdErr != nil {
		if aErr, ok := cmdErr.(*AppError); ok {
			logger.Error("command failed",
				"command", command,
				"operation", aErr.Op,
				"error", aErr.Err,
			)
			return aErr.ExitCode
		}
		logger.Error("command failed", "command", command, "error", cmdErr)
		return ExitConfigError
	}
	return ExitSuccess
}
