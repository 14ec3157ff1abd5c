package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/skypro1111/audio-ingest-service/internal/storage"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the audio_metadata table if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		attrs := []any{slog.String("driver", cfg.Storage.Driver)}
		if sqliteStore, ok := store.(*storage.SQLiteStore); ok {
			attrs = append(attrs, slog.String("path", sqliteStore.Path()))
		}
		logger.Info("Database initialized successfully", attrs...)
		return nil
	},
}
