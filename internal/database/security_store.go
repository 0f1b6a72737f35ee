package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tradedash/internal/security"
)

// CredentialStore is the Postgres implementation of
// security.CredentialStore, backed by the credentials table.
type CredentialStore struct {
	db *DB
}

// NewCredentialStore creates a Postgres credential store
func NewCredentialStore(db *DB) *CredentialStore {
	return &CredentialStore{db: db}
}

const credentialColumns = "identity, email, actor_type, digest, salt, iterations, created_at, updated_at"

// Lookup resolves a credential by username or email
func (s *CredentialStore) Lookup(ctx context.Context, identifier string) (*security.Credential, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM credentials
		WHERE identity = $1 OR lower(email) = lower($1)
	`, credentialColumns)

	cred := &security.Credential{}
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, query, identifier).Scan(
		&cred.Identity, &email, &cred.ActorType, &cred.Digest,
		&cred.Salt, &cred.Iterations, &cred.CreatedAt, &cred.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup credential: %w", err)
	}
	cred.Email = email.String
	return cred, nil
}

// Save creates or overwrites a credential
func (s *CredentialStore) Save(ctx context.Context, cred *security.Credential) error {
	query := `
		INSERT INTO credentials (identity, email, actor_type, digest, salt, iterations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (identity) DO UPDATE SET
			email = EXCLUDED.email,
			actor_type = EXCLUDED.actor_type,
			digest = EXCLUDED.digest,
			salt = EXCLUDED.salt,
			iterations = EXCLUDED.iterations,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		cred.Identity, nullIfEmpty(cred.Email), cred.ActorType, cred.Digest,
		cred.Salt, cred.Iterations, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Delete removes a credential
func (s *CredentialStore) Delete(ctx context.Context, identity string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE identity = $1`, identity); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// APIKeyStore is the Postgres implementation of security.APIKeyStore
type APIKeyStore struct {
	db *DB
}

// NewAPIKeyStore creates a Postgres API key store
func NewAPIKeyStore(db *DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

const apiKeyColumns = "id, digest, prefix, admin, trader, client, active, created_at, last_used_at"

// Insert stores a new key record
func (s *APIKeyStore) Insert(ctx context.Context, rec *security.APIKeyRecord) error {
	query := `
		INSERT INTO api_keys (id, digest, prefix, admin, trader, client, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Digest, rec.Prefix, rec.Admin, rec.Trader,
		nullIfEmpty(rec.Client), rec.Active, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

// GetActiveByDigest returns the active record matching the digest
func (s *APIKeyStore) GetActiveByDigest(ctx context.Context, digest string) (*security.APIKeyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE digest = $1 AND active`, apiKeyColumns)

	rec, err := scanAPIKey(s.db.QueryRowContext(ctx, query, digest))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup api key: %w", err)
	}
	return rec, nil
}

// SetActive flips the active flag for every key with the given prefix
func (s *APIKeyStore) SetActive(ctx context.Context, prefix string, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET active = $2 WHERE prefix = $1`, prefix, active)
	if err != nil {
		return false, fmt.Errorf("failed to update api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// DeactivateByTrader revokes every active key bound to a trader
func (s *APIKeyStore) DeactivateByTrader(ctx context.Context, trader string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET active = FALSE WHERE trader = $1 AND active`, trader)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate trader keys: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// Touch updates the last-used timestamp
func (s *APIKeyStore) Touch(ctx context.Context, id string, when time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, when)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}

// List returns all key records, newest first
func (s *APIKeyStore) List(ctx context.Context) ([]*security.APIKeyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys ORDER BY created_at DESC`, apiKeyColumns)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var recs []*security.APIKeyRecord
	for rows.Next() {
		rec, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAPIKey(row rowScanner) (*security.APIKeyRecord, error) {
	rec := &security.APIKeyRecord{}
	var client sql.NullString
	var lastUsed sql.NullTime
	err := row.Scan(&rec.ID, &rec.Digest, &rec.Prefix, &rec.Admin, &rec.Trader,
		&client, &rec.Active, &rec.CreatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	rec.Client = client.String
	if lastUsed.Valid {
		t := lastUsed.Time
		rec.LastUsedAt = &t
	}
	return rec, nil
}

// SessionStore is the Postgres implementation of security.SessionStore
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a Postgres session store
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// Insert stores a session
func (s *SessionStore) Insert(ctx context.Context, rec *security.SessionRecord) error {
	query := `
		INSERT INTO sessions (token, actor_type, identity, ip, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.Token, rec.ActorType, rec.Identity, nullIfEmpty(rec.IP),
		rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get returns the session for a token, or nil when unknown
func (s *SessionStore) Get(ctx context.Context, token string) (*security.SessionRecord, error) {
	query := `
		SELECT token, actor_type, identity, ip, created_at, expires_at
		FROM sessions WHERE token = $1
	`
	rec := &security.SessionRecord{}
	var ip sql.NullString
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&rec.Token, &rec.ActorType, &rec.Identity, &ip,
		&rec.CreatedAt, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup session: %w", err)
	}
	rec.IP = ip.String
	return rec, nil
}

// Delete removes a session
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByIdentity removes every session held by one identity
func (s *SessionStore) DeleteByIdentity(ctx context.Context, identity string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE identity = $1`, identity)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// DeleteExpired removes all sessions expiring before the cutoff
func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// AuditStore is the Postgres implementation of security.AuditStore
type AuditStore struct {
	db *DB
}

// NewAuditStore creates a Postgres audit store
func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db}
}

// Insert appends an entry
func (s *AuditStore) Insert(ctx context.Context, entry *security.AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, ts, action, actor_type, actor_id, ip, success, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.Timestamp, entry.Action, entry.ActorType, entry.ActorID,
		nullIfEmpty(entry.IP), entry.Success, nullIfEmpty(entry.Detail))
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Query returns matching entries, newest first
func (s *AuditStore) Query(ctx context.Context, filter security.AuditFilter) ([]*security.AuditEntry, error) {
	var conditions []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.ActorType != "" {
		add("actor_type = $%d", filter.ActorType)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.Success != nil {
		add("success = $%d", *filter.Success)
	}
	if !filter.Since.IsZero() {
		add("ts >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("ts <= $%d", filter.Until)
	}

	query := "SELECT id, ts, action, actor_type, actor_id, ip, success, detail FROM audit_log"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY ts DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*security.AuditEntry
	for rows.Next() {
		entry := &security.AuditEntry{}
		var ip, detail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Action, &entry.ActorType,
			&entry.ActorID, &ip, &entry.Success, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.IP = ip.String
		entry.Detail = detail.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteBefore removes entries older than the cutoff
func (s *AuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
