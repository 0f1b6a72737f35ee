package security

import (
	"context"
	"strings"
	"testing"

	apperrors "tradedash/internal/errors"
)

func newTestVault() *KeyVault {
	return NewKeyVault(NewMemoryAPIKeyStore(), nil)
}

func TestGenerateAndVerifyKey(t *testing.T) {
	ctx := context.Background()
	v := newTestVault()

	issued, err := v.Generate(ctx, "alice", "bob", "client-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(issued.Key, KeyPrefix) {
		t.Errorf("key %q missing %q prefix", issued.Key, KeyPrefix)
	}
	if issued.Prefix != issued.Key[:12] {
		t.Errorf("display prefix %q does not match key head", issued.Prefix)
	}

	rec, err := v.Verify(ctx, issued.Key)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rec.Admin != "alice" || rec.Trader != "bob" || rec.Client != "client-1" {
		t.Errorf("unexpected record binding: %+v", rec)
	}
}

func TestKeyMaterialNotStored(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAPIKeyStore()
	v := NewKeyVault(store, nil)

	issued, err := v.Generate(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	recs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Digest == issued.Key || strings.Contains(recs[0].Digest, issued.Key) {
		t.Error("stored digest contains the raw key")
	}
	if recs[0].Digest != DigestKey(issued.Key) {
		t.Error("stored digest is not the SHA-256 of the key")
	}
}

func TestVerifyRejectsUnknownAndMalformedKeys(t *testing.T) {
	ctx := context.Background()
	v := newTestVault()

	cases := []string{
		"",
		"not-a-key",
		"tk_",
		"tk_%%%not-base64%%%",
		KeyPrefix + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", // well formed, never issued
	}
	for _, key := range cases {
		if _, err := v.Verify(ctx, key); !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredential) {
			t.Errorf("Verify(%q): expected invalid credential, got %v", key, err)
		}
	}
}

func TestRevokeDeactivatesButKeepsRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAPIKeyStore()
	v := NewKeyVault(store, nil)

	issued, err := v.Generate(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := v.Revoke(ctx, issued.Prefix); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := v.Verify(ctx, issued.Key); !apperrors.IsCode(err, apperrors.ErrCodeInvalidCredential) {
		t.Errorf("revoked key still verifies: %v", err)
	}

	recs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("revocation must not delete the record, got %d records", len(recs))
	}
	if recs[0].Active {
		t.Error("revoked record still active")
	}
}

func TestRevokeUnknownPrefix(t *testing.T) {
	ctx := context.Background()
	v := newTestVault()

	if err := v.Revoke(ctx, "tk_aaaaaaaaa"); !apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := v.Revoke(ctx, "short"); !apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("expected not found for malformed prefix, got %v", err)
	}
}

func TestGenerateRequiresBinding(t *testing.T) {
	ctx := context.Background()
	v := newTestVault()

	if _, err := v.Generate(ctx, "", "bob", ""); err == nil {
		t.Error("expected an error without an admin")
	}
	if _, err := v.Generate(ctx, "alice", "", ""); err == nil {
		t.Error("expected an error without a trader")
	}
}
