package security

import (
	"context"
	"testing"
	"time"

	apperrors "tradedash/internal/errors"
)

func TestAuditRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	log := NewAuditLog(NewMemoryAuditStore(), nil)

	if err := log.Record(ctx, ActionLogin, ActorAdmin, "alice", "10.0.0.1", true, ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := log.Record(ctx, ActionLogin, ActorSystem, "bob", "10.0.0.2", false, "bad password"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := log.Record(ctx, ActionDataPush, ActorTrader, "bob", "10.0.0.2", true, ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := log.Query(ctx, AuditFilter{Action: ActionLogin})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 login entries, got %d", len(entries))
	}

	failed := false
	entries, err = log.Query(ctx, AuditFilter{Success: &failed})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ActorID != "bob" {
		t.Errorf("unexpected failed entries: %+v", entries)
	}

	entries, err = log.Query(ctx, AuditFilter{ActorID: "bob", Limit: 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("limit ignored, got %d entries", len(entries))
	}
}

func TestAuditRecordFailureIsStorageFailure(t *testing.T) {
	ctx := context.Background()
	log := NewAuditLog(brokenAuditStore{}, nil)

	err := log.Record(ctx, ActionLogin, ActorAdmin, "alice", "", true, "")
	if !apperrors.IsCode(err, apperrors.ErrCodeStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
}

func TestAuditPrune(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()
	log := NewAuditLog(store, nil)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return base.Add(-120 * 24 * time.Hour) }
	if err := log.Record(ctx, ActionLogin, ActorAdmin, "old", "", true, ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	log.now = func() time.Time { return base }
	if err := log.Record(ctx, ActionLogin, ActorAdmin, "recent", "", true, ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	n, err := log.Prune(ctx, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned entry, got %d", n)
	}

	entries, err := log.Query(ctx, AuditFilter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ActorID != "recent" {
		t.Errorf("unexpected surviving entries: %+v", entries)
	}
}
