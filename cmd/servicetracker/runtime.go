package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"servicetracker/internal/config"
	"servicetracker/internal/logger"
	"servicetracker/internal/storage"
	"servicetracker/internal/tracker"
)

// globalFlags holds persistent flags shared by every command.
type globalFlags struct {
	ConfigPath string
	Driver     string
}

// runtime is the wiring every command needs: config, logger, store and log.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	logClose io.Closer
	store    storage.Store
	log      *tracker.Log
}

func openRuntime(ctx context.Context, flags *globalFlags, console io.Writer) (*runtime, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.Driver != "" {
		cfg.Store = storage.Config{Driver: flags.Driver}
		if cfg, err = config.Normalise(cfg); err != nil {
			return nil, err
		}
	}

	log, logClose, err := logger.New(cfg.Log, console)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	store, err := storage.Open(cfg.Store)
	if err != nil {
		_ = logClose.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	svcLog, err := tracker.New(ctx, store,
		tracker.WithLogger(log),
		tracker.WithSummaryOptions(cfg.Summary.Options()),
	)
	if err != nil {
		_ = store.Close()
		_ = logClose.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, logger: log, logClose: logClose, store: store, log: svcLog}, nil
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warn("close store", "error", err)
	}
	_ = r.logClose.Close()
}
