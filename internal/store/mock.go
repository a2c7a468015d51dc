package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cormons/controlstock/internal/model"
)

// MockUser is a token accepted by the mock legacy backend.
type MockUser struct {
	Token   string
	Usuario string
	Nombre  string
}

// MockCount is a count recorded by the mock legacy backend.
type MockCount struct {
	SolicitudID string
	Codigo      string
	Descripcion string
	Cantidad    float64
	Usuario     string
	CountedAt   time.Time
}

// DefaultMockUsers are seeded into an empty mock database.
var DefaultMockUsers = []MockUser{
	{Token: "123abc456def", Usuario: "usuario123", Nombre: "Juan Pérez"},
	{Token: "test_token", Usuario: "admin", Nombre: "Admin Test"},
}

// DefaultMockPending are seeded into an empty mock database.
var DefaultMockPending = []model.PendingRequest{
	{ID: "SOL001", Code: "PROD001", Description: "Tornillo 1/4", RequestedAt: "2024-12-01"},
	{ID: "SOL002", Code: "PROD002", Description: "Tuerca 1/4", RequestedAt: "2024-12-02"},
	{ID: "SOL003", Code: "PROD003", Description: "Arandela M6", RequestedAt: "2024-12-03"},
	{ID: "SOL004", Code: "PROD004", Description: "Cable UTP Cat6", RequestedAt: "2024-12-04"},
	{ID: "SOL005", Code: "PROD005", Description: "Conector RJ45", RequestedAt: "2024-12-05"},
}

// SeedMock inserts the default tokens and pending requests if the mock
// tables are empty.
func SeedMock(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM mock_tokens`).Scan(&n); err != nil {
		return fmt.Errorf("counting mock tokens: %w", err)
	}
	if n == 0 {
		for _, u := range DefaultMockUsers {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO mock_tokens (token, usuario, nombre) VALUES (?, ?, ?)`,
				u.Token, u.Usuario, u.Nombre,
			); err != nil {
				return fmt.Errorf("seeding mock token: %w", err)
			}
		}
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM mock_pending`).Scan(&n); err != nil {
		return fmt.Errorf("counting mock pending: %w", err)
	}
	if n == 0 {
		for _, p := range DefaultMockPending {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO mock_pending (id, codigo, descripcion, fecha) VALUES (?, ?, ?, ?)`,
				p.ID, p.Code, p.Description, p.RequestedAt,
			); err != nil {
				return fmt.Errorf("seeding mock pending: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing mock seed: %w", err)
	}
	return nil
}

// GetMockUser returns the user owning a token, or nil.
func GetMockUser(ctx context.Context, db *sql.DB, token string) (*MockUser, error) {
	u := &MockUser{Token: token}
	err := db.QueryRowContext(ctx,
		`SELECT usuario, nombre FROM mock_tokens WHERE token = ?`, token,
	).Scan(&u.Usuario, &u.Nombre)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting mock user: %w", err)
	}
	return u, nil
}

// ListMockPending returns the pending requests in insertion order.
func ListMockPending(ctx context.Context, db *sql.DB) ([]model.PendingRequest, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, codigo, descripcion, fecha FROM mock_pending ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing mock pending: %w", err)
	}
	defer rows.Close()

	var out []model.PendingRequest
	for rows.Next() {
		var p model.PendingRequest
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &p.RequestedAt); err != nil {
			return nil, fmt.Errorf("scanning mock pending: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CompleteMockPending removes a pending request and records its count.
// Returns nil if the request does not exist.
func CompleteMockPending(ctx context.Context, db *sql.DB, id string, cantidad float64, usuario string) (*model.PendingRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var p model.PendingRequest
	err = tx.QueryRowContext(ctx,
		`SELECT id, codigo, descripcion, fecha FROM mock_pending WHERE id = ?`, id,
	).Scan(&p.ID, &p.Code, &p.Description, &p.RequestedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding mock pending: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM mock_pending WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("removing mock pending: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO mock_counts (solicitud_id, codigo, descripcion, cantidad, usuario) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Code, p.Description, cantidad, usuario,
	); err != nil {
		return nil, fmt.Errorf("recording mock count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing mock count: %w", err)
	}
	return &p, nil
}

// ListMockCounts returns the recorded counts, oldest first.
func ListMockCounts(ctx context.Context, db *sql.DB) ([]MockCount, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT solicitud_id, codigo, descripcion, cantidad, usuario, counted_at
		 FROM mock_counts ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing mock counts: %w", err)
	}
	defer rows.Close()

	var out []MockCount
	for rows.Next() {
		var c MockCount
		if err := rows.Scan(&c.SolicitudID, &c.Codigo, &c.Descripcion, &c.Cantidad, &c.Usuario, &c.CountedAt); err != nil {
			return nil, fmt.Errorf("scanning mock count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
