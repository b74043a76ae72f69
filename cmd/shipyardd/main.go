// Command shipyardd runs the shipyard build orchestration HTTP server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shipyardci/shipyard/internal/api"
	"github.com/shipyardci/shipyard/internal/api/middleware"
	"github.com/shipyardci/shipyard/internal/config"
	"github.com/shipyardci/shipyard/internal/janitor"
	"github.com/shipyardci/shipyard/internal/orchestrator"
	"github.com/shipyardci/shipyard/internal/store"
)

func main() {
	configPath := flag.String("config", "shipyard.toml", "path to the TOML configuration file")
	flag.Parse()

	logLevel := slog.LevelInfo
	if os.Getenv("SHIPYARD_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("starting shipyard", "name", cfg.Name, "port", cfg.Port, "projects", len(cfg.Projects))

	historyStore, err := store.Open(cfg.History)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer historyStore.Close()

	registry := orchestrator.NewRegistry(cfg.Projects)

	replayCtx, replayCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Replay(replayCtx, historyStore, registry); err != nil {
		logger.Warn("failed to replay build history", "error", err)
	}
	replayCancel()

	resolver := orchestrator.NewResolver()
	webhook := orchestrator.NewWebhookSender(logger)

	var s3Cfg *orchestrator.S3Config
	if cfg.Archive.Enable {
		s3Cfg = &orchestrator.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
		}
	}
	archiver, err := orchestrator.NewArchiver(cfg.LogPath, s3Cfg, logger)
	if err != nil {
		logger.Error("failed to create build log archiver", "error", err)
		os.Exit(1)
	}

	executor := orchestrator.NewExecutor(resolver, webhook, archiver, logger)
	queue := orchestrator.NewQueueManager(registry, executor, logger)
	queue.SetOnComplete(func(result orchestrator.BuildResult) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := historyStore.Record(ctx, result); err != nil {
			logger.Error("failed to archive build result", "project", result.ProjectName, "build_id", result.ID, "error", err)
		}
	})
	ingress := orchestrator.NewIngress(registry, queue, resolver)

	j := janitor.New(cfg.Janitor, cfg.LogPath, registry, historyStore, logger)
	if err := j.Start(); err != nil {
		logger.Error("failed to start janitor", "error", err)
		os.Exit(1)
	}
	defer j.Stop()

	serverCfg := api.DefaultServerConfig(cfg, ingress, logger)
	serverCfg.CORSConfig = middleware.DefaultCORSConfig()
	serverCfg.RateLimitConfig = middleware.DefaultRateLimitConfig()

	server := api.NewServer(serverCfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
