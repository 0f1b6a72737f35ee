package database

import (
	"context"
	"database/sql"
	"fmt"

	"tradedash/internal/hierarchy"
)

// HierarchyStore is the Postgres implementation of hierarchy.Store,
// one table per tier with foreign keys giving the tree its shape.
type HierarchyStore struct {
	db *DB
}

// NewHierarchyStore creates a Postgres hierarchy store
func NewHierarchyStore(db *DB) *HierarchyStore {
	return &HierarchyStore{db: db}
}

func (s *HierarchyStore) InsertAdmin(ctx context.Context, a *hierarchy.Admin) error {
	query := `
		INSERT INTO admins (username, email, created_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, a.Username, nullIfEmpty(a.Email), a.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert admin: %w", err)
	}
	return nil
}

func (s *HierarchyStore) GetAdmin(ctx context.Context, username string) (*hierarchy.Admin, error) {
	a := &hierarchy.Admin{}
	var email sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT username, email, created_at FROM admins WHERE username = $1`, username).
		Scan(&a.Username, &email, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup admin: %w", err)
	}
	a.Email = email.String
	return a, nil
}

// DeleteAdmin removes one admin row. The service deletes the subtree
// first, so the foreign keys never block.
func (s *HierarchyStore) DeleteAdmin(ctx context.Context, username string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE username = $1`, username); err != nil {
		return fmt.Errorf("failed to delete admin: %w", err)
	}
	return nil
}

func (s *HierarchyStore) ListAdmins(ctx context.Context) ([]*hierarchy.Admin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, email, created_at FROM admins ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var out []*hierarchy.Admin
	for rows.Next() {
		a := &hierarchy.Admin{}
		var email sql.NullString
		if err := rows.Scan(&a.Username, &email, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		a.Email = email.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *HierarchyStore) InsertTrader(ctx context.Context, t *hierarchy.Trader) error {
	query := `
		INSERT INTO traders (username, admin, created_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, t.Username, t.Admin, t.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert trader: %w", err)
	}
	return nil
}

func (s *HierarchyStore) GetTrader(ctx context.Context, username string) (*hierarchy.Trader, error) {
	t := &hierarchy.Trader{}
	err := s.db.QueryRowContext(ctx,
		`SELECT username, admin, created_at FROM traders WHERE username = $1`, username).
		Scan(&t.Username, &t.Admin, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup trader: %w", err)
	}
	return t, nil
}

func (s *HierarchyStore) DeleteTrader(ctx context.Context, username string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM traders WHERE username = $1`, username); err != nil {
		return fmt.Errorf("failed to delete trader: %w", err)
	}
	return nil
}

func (s *HierarchyStore) ListTradersByAdmin(ctx context.Context, admin string) ([]*hierarchy.Trader, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, admin, created_at FROM traders WHERE admin = $1 ORDER BY username`, admin)
	if err != nil {
		return nil, fmt.Errorf("failed to list traders: %w", err)
	}
	defer rows.Close()

	var out []*hierarchy.Trader
	for rows.Next() {
		t := &hierarchy.Trader{}
		if err := rows.Scan(&t.Username, &t.Admin, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trader: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const clientColumns = "id, name, email, trader, admin, created_at"

func (s *HierarchyStore) InsertClient(ctx context.Context, c *hierarchy.Client) error {
	query := `
		INSERT INTO clients (id, name, email, trader, admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Email, c.Trader, c.Admin, c.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

func (s *HierarchyStore) GetClient(ctx context.Context, id string) (*hierarchy.Client, error) {
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE id = $1`, clientColumns)
	return s.scanClient(s.db.QueryRowContext(ctx, query, id))
}

func (s *HierarchyStore) GetClientByEmail(ctx context.Context, email string) (*hierarchy.Client, error) {
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE lower(email) = lower($1)`, clientColumns)
	return s.scanClient(s.db.QueryRowContext(ctx, query, email))
}

func (s *HierarchyStore) scanClient(row rowScanner) (*hierarchy.Client, error) {
	c := &hierarchy.Client{}
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Trader, &c.Admin, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup client: %w", err)
	}
	return c, nil
}

func (s *HierarchyStore) DeleteClient(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

func (s *HierarchyStore) MoveClient(ctx context.Context, id, newTrader, newAdmin string) error {
	query := `UPDATE clients SET trader = $2, admin = $3 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, newTrader, newAdmin); err != nil {
		return fmt.Errorf("failed to move client: %w", err)
	}
	return nil
}

func (s *HierarchyStore) ListClientsByTrader(ctx context.Context, trader string) ([]*hierarchy.Client, error) {
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE trader = $1 ORDER BY name`, clientColumns)
	rows, err := s.db.QueryContext(ctx, query, trader)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var out []*hierarchy.Client
	for rows.Next() {
		c := &hierarchy.Client{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Trader, &c.Admin, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
