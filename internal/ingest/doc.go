// Package ingest implements the audio batch ingestion pipeline.
// It validates a batch up front, rejecting it whole on any structural
// problem, then decodes and stores each file independently so one bad
// clip never fails its siblings.
package ingest
