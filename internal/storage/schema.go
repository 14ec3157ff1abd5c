package storage

// SQL schemas for the audio metadata table

const (
	// SQLiteSchemaSQL creates the audio_metadata table in SQLite
	SQLiteSchemaSQL = `
		CREATE TABLE IF NOT EXISTS audio_metadata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			file_name TEXT NOT NULL,
			length_seconds REAL NOT NULL,
			created_at TEXT NOT NULL
		)
	`

	// SQLiteSessionIndexSQL speeds up per-session listing
	SQLiteSessionIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_audio_metadata_session
		ON audio_metadata (session_id)
	`

	// PostgresSchemaSQL creates the audio_metadata table in Postgres
	PostgresSchemaSQL = `
		CREATE TABLE IF NOT EXISTS audio_metadata (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			file_name TEXT NOT NULL,
			length_seconds DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`

	// PostgresSessionIndexSQL speeds up per-session listing
	PostgresSessionIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_audio_metadata_session
		ON audio_metadata (session_id)
	`
)
