package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MetadataStore backed by a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres creates a connection pool and verifies connectivity
func OpenPostgres(ctx context.Context, cfg Config) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLife > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLife
	}
	if cfg.MaxConnIdle > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdle
	}
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the audio_metadata table if it does not exist
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{PostgresSchemaSQL, PostgresSessionIndexSQL} {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return wrapPostgres("schema", err)
		}
	}
	return nil
}

// Insert appends one record
func (p *PostgresStore) Insert(ctx context.Context, rec Record) (int64, error) {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
        INSERT INTO audio_metadata (session_id, timestamp, file_name, length_seconds, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `

	var id int64
	err := p.pool.QueryRow(ctx, query,
		rec.SessionID, rec.Timestamp, rec.FileName, rec.LengthSeconds, createdAt,
	).Scan(&id)
	if err != nil {
		return 0, wrapPostgres("insert", err)
	}

	return id, nil
}

// ListBySession returns every record stored for sessionID
func (p *PostgresStore) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	query := `
        SELECT id, session_id, timestamp, file_name, length_seconds, created_at
        FROM audio_metadata
        WHERE session_id = $1
        ORDER BY id
    `

	rows, err := p.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, wrapPostgres("list", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Timestamp, &rec.FileName, &rec.LengthSeconds, &rec.CreatedAt); err != nil {
			return nil, wrapPostgres("list", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapPostgres("list", err)
	}

	return records, nil
}

// Ping verifies the pool can reach the server
func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return wrapPostgres("ping", err)
	}
	return nil
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func wrapPostgres(op string, err error) error {
	return &StorageError{Op: op, Systemic: isSystemicPostgres(err), Err: err}
}

// isSystemicPostgres treats server-reported row errors (constraint, data)
// as per-record and everything else (network, pool, connection classes)
// as the store being unavailable.
func isSystemicPostgres(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return true
	}

	// 08 connection exception, 53 insufficient resources, 57 operator intervention
	for _, class := range []string{"08", "53", "57"} {
		if strings.HasPrefix(pgErr.Code, class) {
			return true
		}
	}
	return false
}
