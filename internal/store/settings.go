package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
)

const masterSecretKey = "master_secret"

// GetMasterSecret returns the master secret the session and CSRF keys are
// derived from, creating it on first run. Concurrent first runs all read back
// the row that won the insert.
func GetMasterSecret(ctx context.Context, db *sql.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating master secret: %w", err)
	}
	candidate := hex.EncodeToString(buf)

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		masterSecretKey, candidate,
	)
	if err != nil {
		return "", fmt.Errorf("storing master secret: %w", err)
	}

	var secret string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, masterSecretKey,
	).Scan(&secret)
	if err != nil {
		return "", fmt.Errorf("querying master secret: %w", err)
	}

	return secret, nil
}
