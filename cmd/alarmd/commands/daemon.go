package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/config"
	"git.home.luguber.info/inful/alarmd/internal/daemon"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Listen string `short:"l" help:"Override the control API listen address"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadedConfig()
	if err != nil {
		return err
	}
	if d.Listen != "" {
		cfg.HTTP.Listen = d.Listen
	}
	logger := slog.Default()
	if g != nil && g.Logger != nil {
		logger = g.Logger
	}
	return RunDaemon(cfg, logger)
}

func RunDaemon(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(ctx, cfg, daemon.WithLogger(logger))
	if err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "failed to create daemon").Build()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start(ctx)
	}()

	var startErr error
	select {
	case startErr = <-errChan:
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping daemon...")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := d.Stop(stopCtx); err != nil {
		logger.Error("Daemon stopped with errors", logfields.Error(err))
		if startErr == nil {
			return errors.WrapError(err, errors.CategoryDaemon, "failed to stop daemon").Build()
		}
	}
	if startErr != nil {
		return startErr
	}
	logger.Info("Daemon stopped successfully")
	return nil
}
