package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"stacker/internal/config"
	"stacker/internal/logger"
	"stacker/internal/manager"
	"stacker/internal/store/sqlite"
	httpapi "stacker/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := os.Getenv("STACKER_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("initializing log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ config loaded (env=%s, bots=%d, data_dir=%s)", cfg.App.Env, len(cfg.Bots), cfg.App.DataDir)

	journal, err := sqlite.NewFillStore(cfg.History.Path)
	if err != nil {
		log.Fatalf("opening trade history failed: %v", err)
	}
	defer journal.Close()

	mgr := manager.New(*cfg, journal)
	srv, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:  cfg.App.HTTPAddr,
		Token: cfg.App.APIToken,
		Fleet: mgr,
		Fills: journal,
	})
	if err != nil {
		log.Fatalf("initializing http server failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Start(ctx) })
	g.Go(func() error {
		logger.Infof("✓ dashboard listening on %s", srv.Addr())
		return srv.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("runtime failure: %v", err)
	}
	logger.Infof("shutdown complete")
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
