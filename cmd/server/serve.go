package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/skypro1111/audio-ingest-service/internal/config"
	"github.com/skypro1111/audio-ingest-service/internal/events"
	"github.com/skypro1111/audio-ingest-service/internal/ingest"
	"github.com/skypro1111/audio-ingest-service/internal/metrics"
	"github.com/skypro1111/audio-ingest-service/internal/server"
	"github.com/skypro1111/audio-ingest-service/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ingestion service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	// Log configuration summary (without storage location or credentials)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("http_address", cfg.HTTP.Address),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.Bool("events_enabled", cfg.Events.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database initialized successfully", slog.String("driver", cfg.Storage.Driver))

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	processor := ingest.NewProcessor(store, logger, appMetrics, cfg.Audio.SampleRate)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.Enabled {
		client, err := events.Connect(events.ClientConfig{
			Broker:   cfg.Events.Broker,
			ClientID: cfg.Events.ClientID,
			Username: cfg.Events.Username,
			Password: cfg.Events.Password,
		}, logger)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)

		mqttPublisher := events.NewMQTTPublisher(client, events.PublisherConfig{
			Topic:      cfg.Events.Topic,
			BufferSize: cfg.Events.BufferSize,
		}, logger, appMetrics)
		go mqttPublisher.Start(ctx)

		publisher = mqttPublisher
		logger.Info("Event publisher initialized", slog.String("topic", cfg.Events.Topic))
	}

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:         cfg.HTTP.Port,
		Address:      cfg.HTTP.Address,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
	}, logger, cfg, processor, store, publisher, appMetrics, prometheus.DefaultGatherer)

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeout())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the event publisher after in-flight requests have finished
	cancel()

	logger.Info("Service stopped")
	return nil
}

// openStore opens the metadata store selected by configuration
func openStore(ctx context.Context, cfg *config.Config) (storage.MetadataStore, error) {
	store, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		MaxConns:    cfg.Storage.MaxConns,
		MinConns:    cfg.Storage.MinConns,
		MaxConnLife: cfg.Storage.GetMaxConnLife(),
		MaxConnIdle: cfg.Storage.GetMaxConnIdle(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	return store, nil
}
