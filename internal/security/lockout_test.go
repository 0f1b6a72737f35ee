package security

import (
	"testing"
	"time"
)

func TestLockoutTripsAtThreshold(t *testing.T) {
	g := NewLockoutGuard(5, 15*time.Minute)

	for i := 0; i < 4; i++ {
		if tripped := g.RecordFailure("philip"); tripped {
			t.Fatalf("locked after %d failures", i+1)
		}
		if g.Locked("philip") {
			t.Fatalf("Locked reported true after %d failures", i+1)
		}
	}

	if tripped := g.RecordFailure("philip"); !tripped {
		t.Fatal("fifth failure did not trip the lock")
	}
	if !g.Locked("philip") {
		t.Fatal("subject not locked after threshold")
	}
	if g.Remaining("philip") <= 0 {
		t.Error("expected a positive remaining lock duration")
	}
}

func TestLockoutExpires(t *testing.T) {
	g := NewLockoutGuard(5, 15*time.Minute)

	base := time.Now()
	g.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		g.RecordFailure("philip")
	}
	if !g.Locked("philip") {
		t.Fatal("subject not locked")
	}

	g.now = func() time.Time { return base.Add(15*time.Minute + time.Second) }
	if g.Locked("philip") {
		t.Fatal("lock survived its duration")
	}

	// the stale lock resets the count: it takes a full threshold of
	// fresh failures to trip again
	for i := 0; i < 4; i++ {
		if g.RecordFailure("philip") {
			t.Fatalf("relocked after only %d fresh failures", i+1)
		}
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	g := NewLockoutGuard(5, 15*time.Minute)

	for i := 0; i < 4; i++ {
		g.RecordFailure("philip")
	}
	g.RecordSuccess("philip")

	for i := 0; i < 4; i++ {
		if g.RecordFailure("philip") {
			t.Fatalf("locked after %d post-reset failures", i+1)
		}
	}
	if !g.RecordFailure("philip") {
		t.Error("fifth post-reset failure should trip the lock")
	}
}

func TestLockoutSubjectsAreIndependent(t *testing.T) {
	g := NewLockoutGuard(5, 15*time.Minute)

	for i := 0; i < 5; i++ {
		g.RecordFailure("philip")
	}
	if g.Locked("chris") {
		t.Error("unrelated subject got locked")
	}
}
