package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nvr-worker-go/internal/api"
	"nvr-worker-go/internal/config"
	"nvr-worker-go/internal/logging"
	"nvr-worker-go/internal/services"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	var out io.Writer = os.Stderr
	if cfg.Environment != "production" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	if cfg.LogdyEnabled {
		ld, _ := logging.StartLogdy(cfg)
		out = zerolog.MultiLevelWriter(out, ld)
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("storage_root", cfg.StorageRoot).
		Dur("segment_max_duration", cfg.SegmentMaxDuration).
		Msg("Starting NVR worker")

	container, err := services.NewServiceContainer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	// Create and start server
	server, err := api.NewServer(cfg, container)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	if cfg.Autostart {
		go func() {
			if _, err := container.Autostart(context.Background()); err != nil {
				log.Error().Err(err).Msg("Autostart failed")
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}
}
