package security

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// ActorType identifies the tier an actor belongs to
type ActorType string

const (
	ActorAdmin  ActorType = "admin"
	ActorTrader ActorType = "trader"
	ActorClient ActorType = "client"
	ActorSystem ActorType = "system"
)

// Credential is a stored password credential. The plaintext password is
// never persisted, logged or reconstructed; only digest and salt are kept.
type Credential struct {
	Identity   string    `json:"identity"`
	Email      string    `json:"email,omitempty"`
	ActorType  ActorType `json:"actor_type"`
	Digest     string    `json:"-"`
	Salt       string    `json:"-"`
	Iterations int       `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CredentialStore persists password credentials
type CredentialStore interface {
	// Lookup resolves a credential by username or email
	Lookup(ctx context.Context, identifier string) (*Credential, error)
	// Save creates or overwrites a credential (password set/reset)
	Save(ctx context.Context, cred *Credential) error
	// Delete removes a credential; unknown identities are a no-op
	Delete(ctx context.Context, identity string) error
}

// APIKeyRecord is the stored form of an API key. Only the digest and a
// short display prefix survive generation; the full secret does not.
type APIKeyRecord struct {
	ID         string     `json:"id"`
	Digest     string     `json:"-"`
	Prefix     string     `json:"prefix"`
	Admin      string     `json:"admin"`
	Trader     string     `json:"trader"`
	Client     string     `json:"client,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// APIKeyStore persists API key records
type APIKeyStore interface {
	Insert(ctx context.Context, rec *APIKeyRecord) error
	// GetActiveByDigest returns the active record matching the digest,
	// or nil when no active record matches
	GetActiveByDigest(ctx context.Context, digest string) (*APIKeyRecord, error)
	// SetActive flips the active flag for the key with the given prefix.
	// Records are never deleted so the audit trail stays resolvable.
	SetActive(ctx context.Context, prefix string, active bool) (bool, error)
	// DeactivateByTrader revokes every active key bound to a trader
	DeactivateByTrader(ctx context.Context, trader string) (int64, error)
	Touch(ctx context.Context, id string, when time.Time) error
	List(ctx context.Context) ([]*APIKeyRecord, error)
}

// SessionRecord is a stored web session
type SessionRecord struct {
	Token     string    `json:"-"`
	ActorType ActorType `json:"actor_type"`
	Identity  string    `json:"identity"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore persists sessions
type SessionStore interface {
	Insert(ctx context.Context, rec *SessionRecord) error
	Get(ctx context.Context, token string) (*SessionRecord, error)
	Delete(ctx context.Context, token string) error
	// DeleteByIdentity removes every session held by one identity
	DeleteByIdentity(ctx context.Context, identity string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is one immutable row in the audit trail
type AuditEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	ActorType ActorType `json:"actor_type"`
	ActorID   string    `json:"actor_id"`
	IP        string    `json:"ip,omitempty"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
}

// AuditFilter narrows an audit query
type AuditFilter struct {
	Action    string
	ActorType ActorType
	ActorID   string
	Success   *bool
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// AuditStore persists audit entries. Inserts are append-only; there is
// deliberately no update or single-row delete.
type AuditStore interface {
	Insert(ctx context.Context, entry *AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ---- In-memory implementations, used as test doubles and for ----
// ---- single-process deployments without a database.           ----

// MemoryCredentialStore is an in-memory CredentialStore
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential // keyed by identity
}

// NewMemoryCredentialStore creates an empty in-memory credential store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]*Credential)}
}

// Lookup resolves a credential by username or email
func (s *MemoryCredentialStore) Lookup(ctx context.Context, identifier string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cred, ok := s.creds[identifier]; ok {
		c := *cred
		return &c, nil
	}
	for _, cred := range s.creds {
		if cred.Email != "" && strings.EqualFold(cred.Email, identifier) {
			c := *cred
			return &c, nil
		}
	}
	return nil, nil
}

// Save creates or overwrites a credential
func (s *MemoryCredentialStore) Save(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cred
	s.creds[cred.Identity] = &c
	return nil
}

// Delete removes a credential
func (s *MemoryCredentialStore) Delete(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.creds, identity)
	return nil
}

// MemoryAPIKeyStore is an in-memory APIKeyStore
type MemoryAPIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKeyRecord // keyed by ID
}

// NewMemoryAPIKeyStore creates an empty in-memory API key store
func NewMemoryAPIKeyStore() *MemoryAPIKeyStore {
	return &MemoryAPIKeyStore{keys: make(map[string]*APIKeyRecord)}
}

// Insert stores a new key record
func (s *MemoryAPIKeyStore) Insert(ctx context.Context, rec *APIKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *rec
	s.keys[rec.ID] = &r
	return nil
}

// GetActiveByDigest returns the active record matching the digest
func (s *MemoryAPIKeyStore) GetActiveByDigest(ctx context.Context, digest string) (*APIKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.keys {
		if rec.Active && rec.Digest == digest {
			r := *rec
			return &r, nil
		}
	}
	return nil, nil
}

// SetActive flips the active flag for the key with the given prefix
func (s *MemoryAPIKeyStore) SetActive(ctx context.Context, prefix string, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, rec := range s.keys {
		if rec.Prefix == prefix {
			rec.Active = active
			found = true
		}
	}
	return found, nil
}

// DeactivateByTrader revokes every active key bound to a trader
func (s *MemoryAPIKeyStore) DeactivateByTrader(ctx context.Context, trader string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.keys {
		if rec.Active && rec.Trader == trader {
			rec.Active = false
			n++
		}
	}
	return n, nil
}

// Touch updates the last-used timestamp
func (s *MemoryAPIKeyStore) Touch(ctx context.Context, id string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.keys[id]; ok {
		t := when
		rec.LastUsedAt = &t
	}
	return nil
}

// List returns all key records, newest first
func (s *MemoryAPIKeyStore) List(ctx context.Context) ([]*APIKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*APIKeyRecord, 0, len(s.keys))
	for _, rec := range s.keys {
		r := *rec
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MemorySessionStore is an in-memory SessionStore
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionRecord
}

// NewMemorySessionStore creates an empty in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*SessionRecord)}
}

// Insert stores a session
func (s *MemorySessionStore) Insert(ctx context.Context, rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *rec
	s.sessions[rec.Token] = &r
	return nil
}

// Get returns the session for a token, or nil when unknown
func (s *MemorySessionStore) Get(ctx context.Context, token string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.sessions[token]; ok {
		r := *rec
		return &r, nil
	}
	return nil, nil
}

// Delete removes a session; unknown tokens are a no-op
func (s *MemorySessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

// DeleteByIdentity removes every session held by one identity
func (s *MemorySessionStore) DeleteByIdentity(ctx context.Context, identity string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for token, rec := range s.sessions {
		if rec.Identity == identity {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes all sessions expiring before the cutoff
func (s *MemorySessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for token, rec := range s.sessions {
		if rec.ExpiresAt.Before(before) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

// MemoryAuditStore is an in-memory AuditStore
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*AuditEntry
}

// NewMemoryAuditStore creates an empty in-memory audit store
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Insert appends an entry
func (s *MemoryAuditStore) Insert(ctx context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *entry
	s.entries = append(s.entries, &e)
	return nil
}

// Query returns matching entries, newest first
func (s *MemoryAuditStore) Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*AuditEntry
	for _, entry := range s.entries {
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.ActorType != "" && entry.ActorType != filter.ActorType {
			continue
		}
		if filter.ActorID != "" && entry.ActorID != filter.ActorID {
			continue
		}
		if filter.Success != nil && entry.Success != *filter.Success {
			continue
		}
		if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && entry.Timestamp.After(filter.Until) {
			continue
		}
		e := *entry
		matched = append(matched, &e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// DeleteBefore removes entries older than the cutoff (retention sweep)
func (s *MemoryAuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*AuditEntry
	var n int64
	for _, entry := range s.entries {
		if entry.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, entry)
	}
	s.entries = kept
	return n, nil
}
