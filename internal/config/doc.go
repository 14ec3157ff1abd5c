// Package config provides configuration loading and validation for the audio ingest service.
// It reads a YAML file on top of built-in defaults, applies .env and environment
// overrides (DATABASE selects the storage location) and validates every section.
package config
