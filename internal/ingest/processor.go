package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/skypro1111/audio-ingest-service/internal/audio"
	"github.com/skypro1111/audio-ingest-service/internal/metrics"
	"github.com/skypro1111/audio-ingest-service/internal/storage"
)

// RecordStore is the subset of storage.MetadataStore the processor writes to
type RecordStore interface {
	Insert(ctx context.Context, rec storage.Record) (int64, error)
}

// Processor validates batches and turns their files into stored records.
// Batch-level validation is all-or-nothing; per-file decode and store
// failures only drop the affected file.
type Processor struct {
	store      RecordStore
	logger     *slog.Logger
	metrics    *metrics.Metrics
	sampleRate int
}

// NewProcessor creates a processor writing to store. Durations are computed
// at sampleRate; zero or negative selects audio.SampleRate.
func NewProcessor(store RecordStore, logger *slog.Logger, m *metrics.Metrics, sampleRate int) *Processor {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}

	return &Processor{
		store:      store,
		logger:     logger,
		metrics:    m,
		sampleRate: sampleRate,
	}
}

type loggerKey struct{}

// WithLogger attaches a request-scoped logger used by Process
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func (p *Processor) loggerFor(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return p.logger
}

// Process handles one batch. It returns a *ValidationError when the batch
// is rejected, a systemic *storage.StorageError when the store became
// unavailable mid-batch, and otherwise a success result listing processed
// and skipped files.
func (p *Processor) Process(ctx context.Context, batch Batch) (*Result, error) {
	logger := p.loggerFor(ctx).With(
		slog.String("session_id", batch.SessionID),
		slog.Int("files", len(batch.AudioFiles)),
	)

	p.metrics.RecordBatchReceived(len(batch.AudioFiles))

	if err := Validate(batch); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			p.metrics.RecordBatchRejected(validationErr.Reason)
		}
		logger.Warn("Batch rejected", slog.String("error", err.Error()))
		return nil, err
	}

	result := &Result{
		Status:         StatusSuccess,
		ProcessedFiles: make([]ProcessedFile, 0, len(batch.AudioFiles)),
		SkippedFiles:   make([]SkippedFile, 0),
	}

	for _, file := range batch.AudioFiles {
		fileLogger := logger.With(slog.String("file_name", file.FileName))

		clip, err := audio.DecodeAt(file.EncodedAudio, p.sampleRate)
		if err != nil {
			fileLogger.Error("Failed to decode audio file", slog.String("error", err.Error()))
			p.skip(result, file.FileName, StageDecode, err.Error())
			continue
		}

		length := clip.Duration()

		start := time.Now()
		_, err = p.store.Insert(ctx, storage.Record{
			SessionID:     batch.SessionID,
			Timestamp:     batch.Timestamp,
			FileName:      file.FileName,
			LengthSeconds: length,
		})
		p.metrics.RecordStore(time.Since(start).Seconds())

		if err != nil {
			var storageErr *storage.StorageError
			if errors.As(err, &storageErr) && storageErr.Systemic {
				fileLogger.Error("Metadata store unavailable, aborting batch",
					slog.String("error", err.Error()),
					slog.Int("processed", len(result.ProcessedFiles)),
				)
				p.metrics.RecordBatchFailed()
				return nil, err
			}

			fileLogger.Error("Failed to store audio metadata", slog.String("error", err.Error()))
			p.skip(result, file.FileName, StageStore, "failed to store audio metadata")
			continue
		}

		p.metrics.RecordFileProcessed(length)
		fileLogger.Info("Metadata stored successfully", slog.Float64("length_seconds", length))

		result.ProcessedFiles = append(result.ProcessedFiles, ProcessedFile{
			FileName:      file.FileName,
			LengthSeconds: roundSeconds(length),
		})
	}

	logger.Info("Batch processed",
		slog.Int("processed", len(result.ProcessedFiles)),
		slog.Int("skipped", len(result.SkippedFiles)),
	)

	return result, nil
}

func (p *Processor) skip(result *Result, fileName, stage, reason string) {
	p.metrics.RecordFileSkipped(stage)
	result.SkippedFiles = append(result.SkippedFiles, SkippedFile{
		FileName: fileName,
		Stage:    stage,
		Reason:   reason,
	})
}

// roundSeconds rounds to 2 decimal places for responses; stored values stay
// unrounded. Formatting rounds the exact binary value half to even, so 0.125
// becomes 0.12 and 0.015 (stored just below) becomes 0.01.
func roundSeconds(v float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return rounded
}
