package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cormons/controlstock/internal/model"
)

// Session caches the resolved legacy backend of one browser session.
type Session struct {
	ID        string
	Config    model.ConnectionConfig
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SaveSession inserts or replaces the cached connection config for a session.
func SaveSession(ctx context.Context, db *sql.DB, id string, cfg model.ConnectionConfig, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (id, empresa_ip, empresa_puerto, empresa_codigo, empresa_nombre, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     empresa_ip = excluded.empresa_ip,
		     empresa_puerto = excluded.empresa_puerto,
		     empresa_codigo = excluded.empresa_codigo,
		     empresa_nombre = excluded.empresa_nombre,
		     expires_at = excluded.expires_at`,
		id, cfg.IP, cfg.Port, cfg.Code, cfg.Name, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession returns a live session, or nil if it is missing or expired.
func GetSession(ctx context.Context, db *sql.DB, id string) (*Session, error) {
	s := &Session{ID: id}
	err := db.QueryRowContext(ctx,
		`SELECT empresa_ip, empresa_puerto, empresa_codigo, empresa_nombre, created_at, expires_at
		 FROM sessions WHERE id = ? AND expires_at > ?`, id, time.Now().UTC(),
	).Scan(&s.Config.IP, &s.Config.Port, &s.Config.Code, &s.Config.Name, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return s, nil
}

// RevokeSession deletes the session and adds its id to the revocation list
// so the signed cookie carrying it is refused until it expires.
func RevokeSession(ctx context.Context, db *sql.DB, id string, expiresAt time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		id, expiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing revocation: %w", err)
	}

	// Opportunistically clean up expired rows.
	if err := PurgeExpired(ctx, db); err != nil {
		return err
	}
	return nil
}

// IsRevoked checks if a session id has been revoked.
func IsRevoked(ctx context.Context, db *sql.DB, id string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking session revocation: %w", err)
	}
	return count > 0, nil
}

// PurgeExpired removes expired sessions and revocations.
func PurgeExpired(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC()
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now); err != nil {
		return fmt.Errorf("purging sessions: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= ?`, now); err != nil {
		return fmt.Errorf("purging revocations: %w", err)
	}
	return nil
}
