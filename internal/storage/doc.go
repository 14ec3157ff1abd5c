// Package storage persists audio metadata records.
// It provides SQLite and Postgres implementations of an append-only
// MetadataStore and classifies failures as per-record or systemic.
package storage
