package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skypro1111/audio-ingest-service/internal/audio"
	"github.com/skypro1111/audio-ingest-service/internal/metrics"
	"github.com/skypro1111/audio-ingest-service/internal/storage"
)

// fakeStore records inserts and fails on the configured file names
type fakeStore struct {
	mu      sync.Mutex
	records []storage.Record
	failOn  map[string]error
	nextID  int64
}

func (f *fakeStore) Insert(ctx context.Context, rec storage.Record) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failOn[rec.FileName]; ok {
		return 0, err
	}

	f.nextID++
	rec.ID = f.nextID
	f.records = append(f.records, rec)
	return rec.ID, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// encodeSamples builds a base64 payload of n random int16 samples
func encodeSamples(n int) string {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(rand.Intn(65536) - 32768)
	}
	return base64.StdEncoding.EncodeToString(audio.PCMToBytes(samples))
}

func newTestProcessor(store RecordStore) (*Processor, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewProcessor(store, newTestLogger(), m, audio.SampleRate), m
}

func TestProcessSingleFile(t *testing.T) {
	store := &fakeStore{}
	p, m := newTestProcessor(store)

	result, err := p.Process(context.Background(), Batch{
		SessionID:  "test-session",
		Timestamp:  "2025-01-02T12:00:00Z",
		AudioFiles: []AudioFile{{FileName: "test_audio.wav", EncodedAudio: encodeSamples(4000)}},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.Status != StatusSuccess {
		t.Errorf("Expected status success, got %s", result.Status)
	}

	if len(result.ProcessedFiles) != 1 || result.ProcessedFiles[0].LengthSeconds != 1.0 {
		t.Fatalf("Unexpected processed files: %+v", result.ProcessedFiles)
	}

	if len(store.records) != 1 {
		t.Fatalf("Expected 1 stored record, got %d", len(store.records))
	}

	rec := store.records[0]
	if rec.SessionID != "test-session" || rec.Timestamp != "2025-01-02T12:00:00Z" || rec.FileName != "test_audio.wav" {
		t.Errorf("Stored record does not match request: %+v", rec)
	}

	if got := testutil.ToFloat64(m.FilesProcessed); got != 1 {
		t.Errorf("Expected 1 processed file metric, got %f", got)
	}
}

func TestProcessRoundsResponseOnly(t *testing.T) {
	store := &fakeStore{}
	p, _ := newTestProcessor(store)

	// 4123 samples = 1.03075 seconds
	result, err := p.Process(context.Background(), Batch{
		SessionID:  "s",
		Timestamp:  "2025-01-02T12:00:00Z",
		AudioFiles: []AudioFile{{FileName: "a.wav", EncodedAudio: encodeSamples(4123)}},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.ProcessedFiles[0].LengthSeconds != 1.03 {
		t.Errorf("Expected rounded 1.03, got %f", result.ProcessedFiles[0].LengthSeconds)
	}

	if store.records[0].LengthSeconds != 1.03075 {
		t.Errorf("Expected unrounded 1.03075 stored, got %f", store.records[0].LengthSeconds)
	}
}

func TestProcessUsesConfiguredSampleRate(t *testing.T) {
	store := &fakeStore{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := NewProcessor(store, newTestLogger(), m, 8000)

	result, err := p.Process(context.Background(), Batch{
		SessionID:  "s",
		Timestamp:  "2025-01-02T12:00:00Z",
		AudioFiles: []AudioFile{{FileName: "a.wav", EncodedAudio: encodeSamples(4000)}},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.ProcessedFiles[0].LengthSeconds != 0.5 || store.records[0].LengthSeconds != 0.5 {
		t.Errorf("Expected 0.5s at 8000 Hz, got %+v", result.ProcessedFiles[0])
	}

	if NewProcessor(store, newTestLogger(), m, 0).sampleRate != audio.SampleRate {
		t.Error("Expected default sample rate for zero")
	}
}

func TestProcessEmptyPayload(t *testing.T) {
	store := &fakeStore{}
	p, _ := newTestProcessor(store)

	result, err := p.Process(context.Background(), Batch{
		SessionID:  "s",
		Timestamp:  "2025-01-02T12:00:00Z",
		AudioFiles: []AudioFile{{FileName: "silence.wav", EncodedAudio: ""}},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(result.ProcessedFiles) != 1 || result.ProcessedFiles[0].LengthSeconds != 0.0 {
		t.Errorf("Expected one 0.0 second file, got %+v", result.ProcessedFiles)
	}
}

func TestProcessRejectionHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name   string
		batch  Batch
		reason string
	}{
		{
			name:   "no files",
			batch:  Batch{SessionID: "s", Timestamp: "2025-01-02T12:00:00Z"},
			reason: ReasonNoFiles,
		},
		{
			name: "timestamp",
			batch: Batch{
				SessionID:  "s",
				Timestamp:  "2025-01-02T12:00:00",
				AudioFiles: []AudioFile{{FileName: "a.wav", EncodedAudio: encodeSamples(10)}},
			},
			reason: ReasonInvalidTimestamp,
		},
		{
			name: "base64 on later file",
			batch: Batch{
				SessionID: "s",
				Timestamp: "2025-01-02T12:00:00Z",
				AudioFiles: []AudioFile{
					{FileName: "a.wav", EncodedAudio: encodeSamples(10)},
					{FileName: "b.wav", EncodedAudio: "not base64"},
				},
			},
			reason: ReasonInvalidBase64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			p, m := newTestProcessor(store)

			result, err := p.Process(context.Background(), tt.batch)
			if result != nil {
				t.Errorf("Expected no result on rejection, got %+v", result)
			}

			var validationErr *ValidationError
			if !errors.As(err, &validationErr) || validationErr.Reason != tt.reason {
				t.Fatalf("Expected rejection %q, got %v", tt.reason, err)
			}

			if len(store.records) != 0 {
				t.Errorf("Expected no stored records, got %d", len(store.records))
			}

			if got := testutil.ToFloat64(m.BatchesRejected.WithLabelValues(tt.reason)); got != 1 {
				t.Errorf("Expected 1 rejection metric, got %f", got)
			}
		})
	}
}

func TestProcessStoreFailureSkipsOnlyThatFile(t *testing.T) {
	store := &fakeStore{
		failOn: map[string]error{
			"b.wav": &storage.StorageError{Op: "insert", Err: errors.New("constraint failed")},
		},
	}
	p, m := newTestProcessor(store)

	result, err := p.Process(context.Background(), Batch{
		SessionID: "s",
		Timestamp: "2025-01-02T12:00:00Z",
		AudioFiles: []AudioFile{
			{FileName: "a.wav", EncodedAudio: encodeSamples(2000)},
			{FileName: "b.wav", EncodedAudio: encodeSamples(2000)},
			{FileName: "c.wav", EncodedAudio: encodeSamples(8000)},
		},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(result.ProcessedFiles) != 2 {
		t.Fatalf("Expected 2 processed files, got %+v", result.ProcessedFiles)
	}

	if result.ProcessedFiles[0].FileName != "a.wav" || result.ProcessedFiles[1].FileName != "c.wav" {
		t.Errorf("Expected input order a.wav, c.wav; got %+v", result.ProcessedFiles)
	}

	if result.ProcessedFiles[1].LengthSeconds != 2.0 {
		t.Errorf("Expected 2.0 seconds for c.wav, got %f", result.ProcessedFiles[1].LengthSeconds)
	}

	if len(result.SkippedFiles) != 1 || result.SkippedFiles[0].FileName != "b.wav" || result.SkippedFiles[0].Stage != StageStore {
		t.Errorf("Expected b.wav skipped at store, got %+v", result.SkippedFiles)
	}

	if got := testutil.ToFloat64(m.FilesSkipped.WithLabelValues(StageStore)); got != 1 {
		t.Errorf("Expected 1 store skip metric, got %f", got)
	}
}

func TestProcessAllFilesSkippedIsSuccess(t *testing.T) {
	storeErr := &storage.StorageError{Op: "insert", Err: errors.New("disk quota for row")}
	store := &fakeStore{failOn: map[string]error{"a.wav": storeErr, "b.wav": storeErr}}
	p, _ := newTestProcessor(store)

	result, err := p.Process(context.Background(), Batch{
		SessionID: "s",
		Timestamp: "2025-01-02T12:00:00Z",
		AudioFiles: []AudioFile{
			{FileName: "a.wav", EncodedAudio: encodeSamples(10)},
			{FileName: "b.wav", EncodedAudio: encodeSamples(10)},
		},
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.Status != StatusSuccess {
		t.Errorf("Expected success status, got %s", result.Status)
	}

	if result.ProcessedFiles == nil || len(result.ProcessedFiles) != 0 {
		t.Errorf("Expected empty non-nil processed files, got %v", result.ProcessedFiles)
	}

	if len(result.SkippedFiles) != 2 {
		t.Errorf("Expected 2 skipped files, got %d", len(result.SkippedFiles))
	}
}

func TestProcessSystemicStoreFailureAborts(t *testing.T) {
	store := &fakeStore{
		failOn: map[string]error{
			"b.wav": &storage.StorageError{Op: "insert", Systemic: true, Err: errors.New("database is closed")},
		},
	}
	p, m := newTestProcessor(store)

	result, err := p.Process(context.Background(), Batch{
		SessionID: "s",
		Timestamp: "2025-01-02T12:00:00Z",
		AudioFiles: []AudioFile{
			{FileName: "a.wav", EncodedAudio: encodeSamples(10)},
			{FileName: "b.wav", EncodedAudio: encodeSamples(10)},
			{FileName: "c.wav", EncodedAudio: encodeSamples(10)},
		},
	})
	if result != nil {
		t.Errorf("Expected no result, got %+v", result)
	}

	var storageErr *storage.StorageError
	if !errors.As(err, &storageErr) || !storageErr.Systemic {
		t.Fatalf("Expected systemic storage error, got %v", err)
	}

	// a.wav stays committed, c.wav is never attempted
	if len(store.records) != 1 || store.records[0].FileName != "a.wav" {
		t.Errorf("Expected only a.wav stored, got %+v", store.records)
	}

	if got := testutil.ToFloat64(m.BatchesFailed); got != 1 {
		t.Errorf("Expected 1 failed batch metric, got %f", got)
	}
}

func TestProcessWithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "metadata.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	p, _ := newTestProcessor(store)
	batch := Batch{
		SessionID: "test-session",
		Timestamp: "2025-01-02T12:00:00Z",
		AudioFiles: []AudioFile{
			{FileName: "test_audio_1.wav", EncodedAudio: encodeSamples(4000)},
			{FileName: "test_audio_2.wav", EncodedAudio: encodeSamples(4000)},
		},
	}

	// Same batch twice yields independent records
	for i := 0; i < 2; i++ {
		result, err := p.Process(ctx, batch)
		if err != nil {
			t.Fatalf("Process %d failed: %v", i, err)
		}
		if len(result.ProcessedFiles) != 2 {
			t.Fatalf("Expected 2 processed files, got %d", len(result.ProcessedFiles))
		}
	}

	records, err := store.ListBySession(ctx, "test-session")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}

	if len(records) != 4 {
		t.Fatalf("Expected 4 records, got %d", len(records))
	}

	for _, rec := range records {
		if rec.Timestamp != "2025-01-02T12:00:00Z" || rec.LengthSeconds != 1.0 {
			t.Errorf("Unexpected record: %+v", rec)
		}
	}
}

func TestWithLoggerOverridesDefault(t *testing.T) {
	p, _ := newTestProcessor(&fakeStore{})
	custom := newTestLogger()

	if p.loggerFor(WithLogger(context.Background(), custom)) != custom {
		t.Error("Expected request logger from context")
	}

	if p.loggerFor(context.Background()) != p.logger {
		t.Error("Expected processor logger without context logger")
	}
}

func TestRoundSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1.03075, 1.03},
		{1.005000001, 1.01},
		{2.999, 3.0},
		{500.0 / 4000, 0.12},
		{60.0 / 4000, 0.01},
		{2500.0 / 4000, 0.62},
		{1500.0 / 4000, 0.38},
		{4500.0 / 4000, 1.12},
	}

	for _, tt := range tests {
		if got := roundSeconds(tt.in); got != tt.want {
			t.Errorf("roundSeconds(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
