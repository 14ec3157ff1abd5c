// Package server implements the HTTP API of the audio ingest service.
// It exposes the batch ingestion endpoint, per-session record listing and
// the health, stats, config and Prometheus monitoring endpoints.
package server
