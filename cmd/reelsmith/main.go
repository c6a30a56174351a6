package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jo-hoe/reelsmith/internal/common"
	appcfg "github.com/jo-hoe/reelsmith/internal/config"
	"github.com/jo-hoe/reelsmith/internal/fetch"
	"github.com/jo-hoe/reelsmith/internal/jobs"
	"github.com/jo-hoe/reelsmith/internal/media"
	"github.com/jo-hoe/reelsmith/internal/objectstore"
	"github.com/jo-hoe/reelsmith/internal/processor"
	"github.com/jo-hoe/reelsmith/internal/server"
	"github.com/jo-hoe/reelsmith/internal/storage"
)

func main() {
	// Load config
	cfg, err := appcfg.Load("")
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	// Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	// Store (SQLite)
	store, err := jobs.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("sqlite open", "err", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// Object store and uploader
	objects, err := objectstore.NewFileStore(cfg.Storage.Dir, cfg.Storage.PublicURLPrefix)
	if err != nil {
		logger.Error("init object store", "err", err)
		os.Exit(1)
	}
	uploader := storage.NewUploader(objects)

	// Media pipeline and source fetcher
	pipeline := media.NewFFmpeg(logger, cfg.Media.FFmpegPath)
	fetcher := fetch.New(logger, cfg.Fetch.Timeout)

	// Worker and queue
	scratchRoot := filepath.Join(cfg.Storage.Dir, common.ScratchDirName)
	worker := processor.New(logger, store, fetcher, pipeline, objects, scratchRoot, cfg.Media.StepTimeout)
	queue := jobs.NewQueue(logger, cfg.Server.QueueCapacity, cfg.Server.WorkerCount)
	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := queue.Start(rootCtx, worker); err != nil {
		logger.Error("start queue", "err", err)
		os.Exit(1)
	}

	// HTTP server
	svc := &server.Service{
		Log:       logger,
		Cfg:       cfg,
		Store:     store,
		Queue:     queue,
		Uploader:  uploader,
		FilesRoot: objects.BasePath(),
	}
	httpSrv := server.NewHTTPServer(svc)

	// Run server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "address", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	// Stop workers
	queue.Shutdown(cfg.Server.ShutdownGrace)
	logger.Info("server stopped")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
