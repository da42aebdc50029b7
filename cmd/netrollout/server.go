package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwessel/netrollout/internal/core/sequencer"
	"github.com/mwessel/netrollout/internal/shell/api"
	"github.com/mwessel/netrollout/internal/shell/transport"
)

// =============================================================================
// serve
// =============================================================================

// runServe runs the status API until SIGINT/SIGTERM, then shuts down
// gracefully within the configured timeout.
func runServe(cfg *Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return &AppError{Op: "ParseFlags", Err: err, ExitCode: ExitConfigError}
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
	handler := api.NewHandler(seq, c.validator, archive, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return &AppError{Op: "Serve", Err: err, ExitCode: ExitHTTPServerError}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return &AppError{Op: "Shutdown", Err: err, ExitCode: ExitHTTPServerError}
	}

	logger.Info("shutdown complete")
	return nil
}
