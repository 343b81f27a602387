package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xADE/ade-fetchd/internal/apps"
	"github.com/0xADE/ade-fetchd/internal/config"
	"github.com/0xADE/ade-fetchd/internal/engine"
	"github.com/0xADE/ade-fetchd/internal/scanner"
	"github.com/0xADE/ade-fetchd/internal/scanner/icon"
	"github.com/0xADE/ade-fetchd/internal/scanner/procs"
	"github.com/0xADE/ade-fetchd/internal/store"
	"github.com/0xADE/ade-fetchd/internal/watcher"
	"github.com/0xADE/ade-fetchd/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ade-fetchd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize configuration
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	// Start config watcher
	if err := config.Run(); err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	cfg := config.Get()
	defer cfg.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	st, err := store.Open(store.Driver(cfg.Store()), cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	// The scanner is rebuilt per enumeration so rc reloads take effect.
	source := apps.SourceFunc(func(ctx context.Context) (apps.Catalog, error) {
		sc := scanner.New(scanner.Config{
			DesktopDirs:  cfg.DesktopDirs(),
			DesktopFiles: cfg.DesktopFiles(),
			ExecDirs:     cfg.Path(),
			IndexExecs:   cfg.IndexPath(),
			SearchPath:   cfg.Path(),
			Locale:       cfg.Locale(),
			Icons: icon.Finder{
				DataDirs: cfg.DataDirs(),
				Theme:    cfg.IconTheme(),
				MinSize:  cfg.IconMinSize(),
			},
			ProcRoot: procs.DefaultRoot,
		}, logger)
		return sc.Enumerate(ctx)
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, source, st,
		engine.WithLogger(logger),
		engine.WithWorkers(cfg.Workers()),
		engine.WithTokenReset(cfg.ResetTokens()),
		engine.WithIncrementalDelivery(cfg.Incremental()),
	)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer eng.Close()

	watchedDirs := func() []string {
		dirs := cfg.DesktopDirs()
		if cfg.IndexPath() {
			dirs = append(dirs, cfg.Path()...)
		}
		return dirs
	}
	w, err := watcher.New(watcher.Config{Dirs: watchedDirs()}, eng.Refresh, logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()
	w.Start(ctx)

	// Directories dropped from the rc stay watched until restart.
	cfg.OnReload(func() {
		w.Watch(watchedDirs()...)
		if _, err := eng.Refresh(ctx); err != nil {
			logger.Warn("refresh after config reload failed", "error", err)
		}
	})

	// Create server
	srv, err := server.NewServer(cfg.UnixSocket(), eng,
		server.WithLogger(logger),
		server.WithListLimit(cfg.ListLimit()),
		server.WithTerminal(cfg.Terminal()),
		server.WithShortcuts(cfg.Shortcut),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(ctx)
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("ade-fetchd started", "socket", cfg.UnixSocket(), "apps", eng.Catalog().Len(), "store", cfg.Store())

	select {
	case sig := <-sigChan:
		logger.Info("received signal", "signal", sig.String())
		cancel()
		if err := srv.Stop(); err != nil {
			logger.Error("error stopping server", "error", err)
		}
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("ade-fetchd stopped")
	return nil
}
