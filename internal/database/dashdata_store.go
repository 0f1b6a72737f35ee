package database

import (
	"context"
	"database/sql"
	"fmt"

	"tradedash/internal/dashdata"
)

// DashDataStore is the Postgres implementation of dashdata.Store.
// Section payloads land in a JSONB column; single fields get their own
// narrow table so updates stay cheap.
type DashDataStore struct {
	db *DB
}

// NewDashDataStore creates a Postgres dashboard data store
func NewDashDataStore(db *DB) *DashDataStore {
	return &DashDataStore{db: db}
}

func (s *DashDataStore) SaveSection(ctx context.Context, snap *dashdata.Snapshot) error {
	query := `
		INSERT INTO client_data (client_id, section, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, section) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		snap.ClientID, snap.Section, []byte(snap.Payload), snap.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save client data section: %w", err)
	}
	return nil
}

func (s *DashDataStore) GetSection(ctx context.Context, clientID, section string) (*dashdata.Snapshot, error) {
	query := `
		SELECT client_id, section, payload, updated_at
		FROM client_data WHERE client_id = $1 AND section = $2
	`
	snap := &dashdata.Snapshot{}
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, clientID, section).Scan(
		&snap.ClientID, &snap.Section, &payload, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup client data section: %w", err)
	}
	snap.Payload = payload
	return snap, nil
}

func (s *DashDataStore) ListSections(ctx context.Context, clientID string) ([]*dashdata.Snapshot, error) {
	query := `
		SELECT client_id, section, payload, updated_at
		FROM client_data WHERE client_id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list client data sections: %w", err)
	}
	defer rows.Close()

	var out []*dashdata.Snapshot
	for rows.Next() {
		snap := &dashdata.Snapshot{}
		var payload []byte
		if err := rows.Scan(&snap.ClientID, &snap.Section, &payload, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client data section: %w", err)
		}
		snap.Payload = payload
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *DashDataStore) SetField(ctx context.Context, field *dashdata.Field) error {
	query := `
		INSERT INTO client_fields (client_id, name, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, name) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		field.ClientID, field.Name, field.Value, field.UpdatedAt); err != nil {
		return fmt.Errorf("failed to set client field: %w", err)
	}
	return nil
}

func (s *DashDataStore) ListFields(ctx context.Context, clientID string) ([]*dashdata.Field, error) {
	query := `
		SELECT client_id, name, value, updated_at
		FROM client_fields WHERE client_id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list client fields: %w", err)
	}
	defer rows.Close()

	var out []*dashdata.Field
	for rows.Next() {
		f := &dashdata.Field{}
		if err := rows.Scan(&f.ClientID, &f.Name, &f.Value, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client field: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteClient drops both sections and fields in one transaction
func (s *DashDataStore) DeleteClient(ctx context.Context, clientID string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM client_data WHERE client_id = $1`, clientID); err != nil {
			return fmt.Errorf("failed to delete client data: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM client_fields WHERE client_id = $1`, clientID); err != nil {
			return fmt.Errorf("failed to delete client fields: %w", err)
		}
		return nil
	})
}
