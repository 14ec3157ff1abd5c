package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/audio-ingest-service/internal/config"
	"github.com/skypro1111/audio-ingest-service/internal/events"
	"github.com/skypro1111/audio-ingest-service/internal/ingest"
	"github.com/skypro1111/audio-ingest-service/internal/metrics"
	"github.com/skypro1111/audio-ingest-service/internal/storage"
)

const (
	serviceName    = "audio-ingest-service"
	serviceVersion = "1.0.0"

	requestIDHeader = "X-Request-ID"
)

// HTTPServer serves the ingestion endpoint plus monitoring endpoints
type HTTPServer struct {
	server    *http.Server
	handler   http.Handler
	logger    *slog.Logger
	config    *config.Config
	processor *ingest.Processor
	store     storage.MetadataStore
	publisher events.Publisher
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer

	maxBodyBytes int64

	// Server state
	startTime time.Time
	stats     ingestStats
}

// ingestStats are in-process counters reported by /stats
type ingestStats struct {
	batchesAccepted atomic.Uint64
	batchesRejected atomic.Uint64
	batchesFailed   atomic.Uint64
	filesProcessed  atomic.Uint64
	filesSkipped    atomic.Uint64
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port         int
	Address      string
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// errorResponse carries a rejection reason under both keys clients read
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config,
	processor *ingest.Processor, store storage.MetadataStore, publisher events.Publisher,
	m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	h := &HTTPServer{
		logger:       logger,
		config:       appConfig,
		processor:    processor,
		store:        store,
		publisher:    publisher,
		metrics:      m,
		gatherer:     gatherer,
		maxBodyBytes: cfg.MaxBodyBytes,
		startTime:    time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Ingestion endpoint
	mux.HandleFunc("/process-audio", h.withMetrics("/process-audio", h.handleProcessAudio))

	// Stored records of a session
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}/records", h.handleSessionRecords))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the routed handler, for embedding and tests
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleProcessAudio implements the /process-audio endpoint
func (h *HTTPServer) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)

	logger := h.logger.With(slog.String("request_id", requestID))

	var req processAudioRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("Request body too large", slog.Int64("limit", tooLarge.Limit))
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		logger.Warn("Invalid request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	batch, err := req.toBatch()
	if err != nil {
		logger.Warn("Invalid request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := ingest.WithLogger(r.Context(), logger)
	result, err := h.processor.Process(ctx, batch)
	if err != nil {
		var validationErr *ingest.ValidationError
		if errors.As(err, &validationErr) {
			h.stats.batchesRejected.Add(1)
			writeError(w, http.StatusBadRequest, validationErr.Reason)
			return
		}

		h.stats.batchesFailed.Add(1)
		logger.Error("Batch processing failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to store audio metadata")
		return
	}

	h.stats.batchesAccepted.Add(1)
	h.stats.filesProcessed.Add(uint64(len(result.ProcessedFiles)))
	h.stats.filesSkipped.Add(uint64(len(result.SkippedFiles)))

	h.publisher.Publish(events.NewBatchEvent(requestID, batch, result))

	writeJSON(w, http.StatusOK, result)
}

// handleSessionRecords implements the /sessions/{session_id}/records endpoint
func (h *HTTPServer) handleSessionRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extract session ID from URL path
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	sessionID, ok := strings.CutSuffix(rest, "/records")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	records, err := h.store.ListBySession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to list session records",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Failed to read audio metadata")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"total":      len(records),
		"records":    records,
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	storageStatus := map[string]interface{}{
		"status": "running",
		"driver": h.config.Storage.Driver,
	}
	code := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		status = "unhealthy"
		storageStatus["status"] = "unavailable"
		storageStatus["error"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"storage": storageStatus,
			"events": map[string]interface{}{
				"enabled": h.config.Events.Enabled,
			},
		},
	}

	writeJSON(w, code, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (storage location and broker credentials omitted)
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":           h.config.HTTP.Port,
			"address":        h.config.HTTP.Address,
			"max_body_bytes": h.config.HTTP.MaxBodyBytes,
			"read_timeout":   h.config.HTTP.ReadTimeout,
			"write_timeout":  h.config.HTTP.WriteTimeout,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
		},
		"storage": map[string]interface{}{
			"driver":    h.config.Storage.Driver,
			"max_conns": h.config.Storage.MaxConns,
			"min_conns": h.config.Storage.MinConns,
		},
		"events": map[string]interface{}{
			"enabled":     h.config.Events.Enabled,
			"topic":       h.config.Events.Topic,
			"buffer_size": h.config.Events.BufferSize,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"batches": map[string]interface{}{
			"accepted": h.stats.batchesAccepted.Load(),
			"rejected": h.stats.batchesRejected.Load(),
			"failed":   h.stats.batchesFailed.Load(),
		},
		"files": map[string]interface{}{
			"processed": h.stats.filesProcessed.Load(),
			"skipped":   h.stats.filesSkipped.Load(),
		},
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Audio Metadata Ingest Service",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                              "API documentation",
			"POST /process-audio":                "Ingest a batch of base64 audio files",
			"GET /sessions/{session_id}/records": "List stored metadata for a session",
			"GET /health":                        "Service health check",
			"GET /config":                        "Get service configuration",
			"GET /stats":                         "Get ingest statistics",
			"GET /metrics":                       "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, reason string) {
	writeJSON(w, code, errorResponse{
		Status:  "error",
		Message: reason,
		Detail:  reason,
	})
}
