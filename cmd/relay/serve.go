package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carenest/relay/internal/config"
	"github.com/carenest/relay/internal/events"
	"github.com/carenest/relay/internal/export"
	"github.com/carenest/relay/internal/journal"
	"github.com/carenest/relay/internal/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the broadcast server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ValidateServe(); err != nil {
			return err
		}

		// Connect to the bus: one connection publishes ingested frames, one
		// feeds the consumer.
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		sub, err := events.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			pub.Close()
			return err
		}
		logger.Info("connected to bus", "nats_url", cfg.NATSURL)

		// Open the event journal if configured.
		var (
			pgJournal       *journal.PostgresJournal
			consumerJournal relay.Journal
		)
		if cfg.DatabaseURL != "" {
			pgJournal, err = journal.New(cfg.DatabaseURL)
			if err != nil {
				sub.Close()
				pub.Close()
				return err
			}
			consumerJournal = pgJournal
			logger.Info("event journal enabled")
		} else {
			logger.Info("event journal disabled (RELAY_DATABASE_URL not set)")
		}

		// Create server components.
		hub := relay.NewHub(logger)
		server := relay.NewServer(hub, pub, cfg.BusKey, logger)
		consumer := relay.NewConsumer(sub, hub, consumerJournal, logger)
		server.AttachConsumer(consumer)

		// Start the consumer.
		consumerCtx, consumerCancel := context.WithCancel(context.Background())
		consumerDone := make(chan struct{})
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(consumerCtx); err != nil {
				logger.Error("consumer error", "err", err)
			}
		}()

		// Start the HTTP server.
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: server.NewHTTPHandler(),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the export scheduler if a destination is configured. Export
		// needs the journal as its source.
		var scheduler *export.Scheduler
		if pgJournal != nil && cfg.ExportS3Bucket != "" && cfg.ExportInterval > 0 {
			s3Dest, err := export.NewS3Destination(
				context.Background(),
				cfg.ExportS3Bucket,
				cfg.ExportS3Key,
				cfg.ExportS3Region,
				cfg.ExportS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 export destination", "err", err)
			} else {
				scheduler = export.NewScheduler(pgJournal, []export.Destination{s3Dest}, cfg.ExportInterval, logger)
				scheduler.Start()
				logger.Info("export scheduler started",
					"bucket", cfg.ExportS3Bucket,
					"key", cfg.ExportS3Key,
					"interval", cfg.ExportInterval,
				)
			}
		}

		logger.Info("relay server started", "http_addr", cfg.HTTPAddr)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}

		consumerCancel()
		<-consumerDone
		logger.Info("consumer stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := sub.Close(); err != nil {
			logger.Error("error closing subscriber", "err", err)
		}
		if err := pub.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if pgJournal != nil {
			if err := pgJournal.Close(); err != nil {
				logger.Error("error closing journal", "err", err)
			}
		}

		logger.Info("shutdown complete")
		return nil
	},
}
