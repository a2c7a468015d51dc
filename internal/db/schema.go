package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema. The mock_* tables back the mock legacy
// backend and stay empty on the front server.
const schema = `
CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    id             TEXT PRIMARY KEY,
    empresa_ip     TEXT NOT NULL,
    empresa_puerto INTEGER NOT NULL CHECK (empresa_puerto > 0),
    empresa_codigo TEXT NOT NULL DEFAULT '',
    empresa_nombre TEXT NOT NULL DEFAULT '',
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    expires_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS mock_tokens (
    token   TEXT PRIMARY KEY,
    usuario TEXT NOT NULL,
    nombre  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mock_pending (
    position    INTEGER PRIMARY KEY,
    id          TEXT NOT NULL UNIQUE,
    codigo      TEXT NOT NULL,
    descripcion TEXT NOT NULL,
    fecha       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS mock_counts (
    id           INTEGER PRIMARY KEY,
    solicitud_id TEXT NOT NULL,
    codigo       TEXT NOT NULL,
    descripcion  TEXT NOT NULL,
    cantidad     REAL NOT NULL,
    usuario      TEXT NOT NULL DEFAULT '',
    counted_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
