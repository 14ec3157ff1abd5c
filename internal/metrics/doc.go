// Package metrics defines the Prometheus instruments of the audio ingest service.
package metrics
