package security

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "tradedash/internal/errors"
)

const (
	// KeyPrefix marks every issued API key
	KeyPrefix = "tk_"
	// keySecretBytes is the entropy of the random part of a key
	keySecretBytes = 32
	// keyDisplayLen is how many leading characters are kept in clear
	// for listings and revocation lookups
	keyDisplayLen = 12
)

// KeyVault issues and verifies API keys. The full key material is shown
// exactly once at generation; afterwards only its SHA-256 digest and a
// short prefix are retained.
type KeyVault struct {
	store  APIKeyStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewKeyVault creates a key vault backed by the given store
func NewKeyVault(store APIKeyStore, logger *logrus.Logger) *KeyVault {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &KeyVault{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// IssuedKey is the one-time result of generating a key. Key holds the
// only copy of the full secret that will ever exist.
type IssuedKey struct {
	Key    string `json:"api_key"`
	Prefix string `json:"prefix"`
	ID     string `json:"id"`
}

// Generate mints a new API key bound to an admin/trader pair and an
// optional client, stores its digest and returns the full key once.
func (v *KeyVault) Generate(ctx context.Context, admin, trader, client string) (*IssuedKey, error) {
	if admin == "" || trader == "" {
		return nil, apperrors.ErrInvalidInput
	}

	raw := make([]byte, keySecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInternal, "generate key material")
	}
	key := KeyPrefix + base64.RawURLEncoding.EncodeToString(raw)

	rec := &APIKeyRecord{
		ID:        uuid.NewString(),
		Digest:    DigestKey(key),
		Prefix:    key[:keyDisplayLen],
		Admin:     admin,
		Trader:    trader,
		Client:    client,
		Active:    true,
		CreatedAt: v.now().UTC(),
	}
	if err := v.store.Insert(ctx, rec); err != nil {
		return nil, apperrors.NewStorageFailure("insert api key", err)
	}

	return &IssuedKey{Key: key, Prefix: rec.Prefix, ID: rec.ID}, nil
}

// Verify checks a presented key and returns its record when the key is
// active. Unknown, malformed and revoked keys all fail the same way.
func (v *KeyVault) Verify(ctx context.Context, presented string) (*APIKeyRecord, error) {
	if !WellFormedKey(presented) {
		return nil, apperrors.ErrInvalidCredential
	}

	rec, err := v.store.GetActiveByDigest(ctx, DigestKey(presented))
	if err != nil {
		return nil, apperrors.NewStorageFailure("lookup api key", err)
	}
	if rec == nil {
		return nil, apperrors.ErrInvalidCredential
	}

	// Last-used bookkeeping must not add latency or failure modes to
	// the request path.
	go v.touch(rec.ID)

	return rec, nil
}

func (v *KeyVault) touch(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := v.store.Touch(ctx, id, v.now().UTC()); err != nil {
		v.logger.WithError(err).WithField("key_id", id).Warn("api key touch failed")
	}
}

// Revoke deactivates the key identified by its display prefix. The
// record is kept so historical audit entries stay resolvable.
func (v *KeyVault) Revoke(ctx context.Context, prefix string) error {
	if len(prefix) != keyDisplayLen || !strings.HasPrefix(prefix, KeyPrefix) {
		return apperrors.ErrNotFound
	}
	found, err := v.store.SetActive(ctx, prefix, false)
	if err != nil {
		return apperrors.NewStorageFailure("revoke api key", err)
	}
	if !found {
		return apperrors.ErrNotFound
	}
	return nil
}

// RevokeForTrader deactivates every active key bound to a trader and
// returns how many keys were revoked. Used when a trader is removed.
func (v *KeyVault) RevokeForTrader(ctx context.Context, trader string) (int64, error) {
	n, err := v.store.DeactivateByTrader(ctx, trader)
	if err != nil {
		return 0, apperrors.NewStorageFailure("revoke trader keys", err)
	}
	return n, nil
}

// List returns all key records for management listings; full key
// material is never part of the result.
func (v *KeyVault) List(ctx context.Context) ([]*APIKeyRecord, error) {
	recs, err := v.store.List(ctx)
	if err != nil {
		return nil, apperrors.NewStorageFailure("list api keys", err)
	}
	return recs, nil
}

// DigestKey returns the hex SHA-256 digest of a full key
func DigestKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// WellFormedKey reports whether a presented value has the shape of an
// issued key
func WellFormedKey(key string) bool {
	if !strings.HasPrefix(key, KeyPrefix) || len(key) <= keyDisplayLen {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(key[len(KeyPrefix):])
	return err == nil
}

// KeyDisplay formats a record's prefix for listings, e.g. "tk_ab12cd45…"
func KeyDisplay(rec *APIKeyRecord) string {
	return fmt.Sprintf("%s...", rec.Prefix)
}
