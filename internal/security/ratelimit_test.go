package security

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginClassAllowsTenPerMinute(t *testing.T) {
	ctx := context.Background()
	l := NewRateLimiter(NewMemoryCounterStore(), nil, nil)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	for i := 0; i < 10; i++ {
		if !l.Allow(ctx, ClassLogin, "10.0.0.1") {
			t.Fatalf("request %d rejected under the limit", i+1)
		}
	}
	if l.Allow(ctx, ClassLogin, "10.0.0.1") {
		t.Error("eleventh login in the window was allowed")
	}

	// next window starts clean
	l.now = func() time.Time { return base.Add(time.Minute) }
	if !l.Allow(ctx, ClassLogin, "10.0.0.1") {
		t.Error("request rejected in a fresh window")
	}
}

func TestDefaultClassEnforcesBothWindows(t *testing.T) {
	ctx := context.Background()
	l := NewRateLimiter(NewMemoryCounterStore(), nil, nil)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	// the hourly window is the tighter one: 50 allowed, then rejected
	// even though the daily window still has room
	for i := 0; i < 50; i++ {
		if !l.Allow(ctx, ClassDefault, "caller") {
			t.Fatalf("request %d rejected under both windows", i+1)
		}
	}
	if l.Allow(ctx, ClassDefault, "caller") {
		t.Error("51st request in the hour was allowed")
	}
}

func TestCallersAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewRateLimiter(NewMemoryCounterStore(), nil, nil)

	for i := 0; i < 10; i++ {
		l.Allow(ctx, ClassLogin, "10.0.0.1")
	}
	if !l.Allow(ctx, ClassLogin, "10.0.0.2") {
		t.Error("a different caller was throttled by someone else's traffic")
	}
}

func TestUnknownClassFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	l := NewRateLimiter(NewMemoryCounterStore(), nil, nil)

	for i := 0; i < 50; i++ {
		if !l.Allow(ctx, EndpointClass("mystery"), "caller") {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if l.Allow(ctx, EndpointClass("mystery"), "caller") {
		t.Error("unknown class did not inherit the default hourly limit")
	}
}

type failingCounterStore struct{}

func (failingCounterStore) Incr(ctx context.Context, key string, bucket int64, window time.Duration) (int, error) {
	return 0, errors.New("counter store down")
}

func TestLimiterFailsOpen(t *testing.T) {
	ctx := context.Background()
	l := NewRateLimiter(failingCounterStore{}, nil, nil)

	for i := 0; i < 100; i++ {
		if !l.Allow(ctx, ClassLogin, "10.0.0.1") {
			t.Fatal("a broken counter store must not reject traffic")
		}
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	ctx := context.Background()
	l := NewRateLimiter(NewMemoryCounterStore(), nil, nil)
	l.SetEnabled(false)

	for i := 0; i < 100; i++ {
		if !l.Allow(ctx, ClassAdminLogin, "10.0.0.1") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}
