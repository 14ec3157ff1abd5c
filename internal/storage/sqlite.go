package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore is a MetadataStore backed by a SQLite database file
type SQLiteStore struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// OpenSQLite opens (creating if needed) the database file at path
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	// One writer at a time; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database %s: %w", path, err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// sqliteDSN builds a file: URI for path. The path is percent-escaped so
// '?', '#' and '%' in file names cannot leak into the pragma query.
func sqliteDSN(path string) string {
	escaped := (&url.URL{Path: path}).EscapedPath()
	return "file:" + escaped + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// EnsureSchema creates the audio_metadata table if it does not exist
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{SQLiteSchemaSQL, SQLiteSessionIndexSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return s.wrap("schema", err)
		}
	}
	return nil
}

// Insert appends one record
func (s *SQLiteStore) Insert(ctx context.Context, rec Record) (int64, error) {
	if s.closed.Load() {
		return 0, &StorageError{Op: "insert", Systemic: true, Err: sql.ErrConnDone}
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audio_metadata (session_id, timestamp, file_name, length_seconds, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.SessionID, rec.Timestamp, rec.FileName, rec.LengthSeconds, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, s.wrap("insert", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, s.wrap("insert", err)
	}

	return id, nil
}

// ListBySession returns every record stored for sessionID
func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	if s.closed.Load() {
		return nil, &StorageError{Op: "list", Systemic: true, Err: sql.ErrConnDone}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, timestamp, file_name, length_seconds, created_at
		FROM audio_metadata
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, s.wrap("list", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Timestamp, &rec.FileName, &rec.LengthSeconds, &createdAt); err != nil {
			return nil, s.wrap("list", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, s.wrap("list", err)
	}

	return records, nil
}

// Ping verifies the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return &StorageError{Op: "ping", Systemic: true, Err: sql.ErrConnDone}
	}
	if err := s.db.PingContext(ctx); err != nil {
		return s.wrap("ping", err)
	}
	return nil
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

// Path returns the database file location
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) wrap(op string, err error) error {
	return &StorageError{Op: op, Systemic: s.closed.Load() || isSystemicSQLite(err), Err: err}
}

// isSystemicSQLite reports failures that affect every write, not one row
func isSystemicSQLite(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL,
		sqlite3.SQLITE_READONLY, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return true
	}
	return false
}
