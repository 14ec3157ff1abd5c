package storage

import (
	"context"
	"fmt"
	"time"
)

// Record is one persisted audio metadata row
type Record struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	Timestamp     string    `json:"timestamp"`
	FileName      string    `json:"file_name"`
	LengthSeconds float64   `json:"length_seconds"`
	CreatedAt     time.Time `json:"created_at"`
}

// MetadataStore appends audio metadata records to durable storage.
// Records are never updated or deleted through this interface.
type MetadataStore interface {
	// Insert appends one record and returns its engine-assigned id
	Insert(ctx context.Context, rec Record) (int64, error)

	// ListBySession returns the records of a session in id order
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)

	// EnsureSchema creates the metadata table if it is absent
	EnsureSchema(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a store implementation
type Config struct {
	Driver      string
	Path        string
	DSN         string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

// StorageError reports a failed storage operation. Systemic is set when the
// store as a whole is unusable rather than a single write failing.
type StorageError struct {
	Op       string
	Systemic bool
	Err      error
}

func (e *StorageError) Error() string {
	if e.Systemic {
		return fmt.Sprintf("storage %s failed (store unavailable): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Open creates the store selected by cfg.Driver
func Open(ctx context.Context, cfg Config) (MetadataStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		store, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := OpenPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
