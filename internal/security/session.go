package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	apperrors "tradedash/internal/errors"
)

const (
	// DefaultSessionTTL is how long a session lives after creation
	DefaultSessionTTL = 24 * time.Hour
	// sessionTokenBytes is the entropy behind a session token
	sessionTokenBytes = 32
)

// SessionManager issues and validates opaque web session tokens.
// Tokens carry no embedded claims; everything lives server side.
type SessionManager struct {
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionManager creates a session manager; a non-positive ttl falls
// back to the default.
func NewSessionManager(store SessionStore, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Create opens a session for an authenticated actor and returns the
// token to hand to the client.
func (m *SessionManager) Create(ctx context.Context, actorType ActorType, identity, ip string) (string, error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrCodeInternal, "generate session token")
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	created := m.now().UTC()
	rec := &SessionRecord{
		Token:     token,
		ActorType: actorType,
		Identity:  identity,
		IP:        ip,
		CreatedAt: created,
		ExpiresAt: created.Add(m.ttl),
	}
	if err := m.store.Insert(ctx, rec); err != nil {
		return "", apperrors.NewStorageFailure("insert session", err)
	}
	return token, nil
}

// Validate resolves a token to its session. Expired sessions are
// removed on the way through and reported exactly like unknown tokens.
func (m *SessionManager) Validate(ctx context.Context, token string) (*SessionRecord, error) {
	if token == "" {
		return nil, apperrors.ErrSessionInvalid
	}

	rec, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, apperrors.NewStorageFailure("lookup session", err)
	}
	if rec == nil {
		return nil, apperrors.ErrSessionInvalid
	}
	if !m.now().UTC().Before(rec.ExpiresAt) {
		// lazy expiry: callers cannot tell expired from never-issued
		_ = m.store.Delete(ctx, token)
		return nil, apperrors.ErrSessionInvalid
	}
	return rec, nil
}

// Destroy ends a session; destroying an unknown token is a no-op
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, token); err != nil {
		return apperrors.NewStorageFailure("delete session", err)
	}
	return nil
}

// DestroyForIdentity ends every session held by one identity. Used
// when the identity itself is removed or its credential revoked.
func (m *SessionManager) DestroyForIdentity(ctx context.Context, identity string) (int64, error) {
	if identity == "" {
		return 0, nil
	}
	n, err := m.store.DeleteByIdentity(ctx, identity)
	if err != nil {
		return 0, apperrors.NewStorageFailure("delete sessions", err)
	}
	return n, nil
}

// Sweep removes sessions whose expiry has passed and returns how many
// went. Intended for a periodic job; validation does not depend on it.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, apperrors.NewStorageFailure("sweep sessions", err)
	}
	return n, nil
}
