package security

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// EndpointClass buckets endpoints that share a rate-limit policy
type EndpointClass string

const (
	ClassDefault     EndpointClass = "default"
	ClassLogin       EndpointClass = "login"
	ClassAdminLogin  EndpointClass = "admin_login"
	ClassDataPush    EndpointClass = "data_push"
	ClassKeyGen      EndpointClass = "key_generation"
	ClassPasswordChg EndpointClass = "password_change"
)

// Limit is one fixed-window allowance
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits returns the built-in policy per endpoint class. The
// default class carries two windows; both have to pass.
func DefaultLimits() map[EndpointClass][]Limit {
	return map[EndpointClass][]Limit{
		ClassDefault: {
			{Requests: 200, Window: 24 * time.Hour},
			{Requests: 50, Window: time.Hour},
		},
		ClassLogin:       {{Requests: 10, Window: time.Minute}},
		ClassAdminLogin:  {{Requests: 5, Window: time.Minute}},
		ClassDataPush:    {{Requests: 30, Window: time.Minute}},
		ClassKeyGen:      {{Requests: 10, Window: time.Hour}},
		ClassPasswordChg: {{Requests: 3, Window: time.Hour}},
	}
}

// CounterStore increments fixed-window counters. Implementations exist
// for process memory and for Redis so limits can be shared across
// replicas.
type CounterStore interface {
	// Incr adds one to the counter for key within the current window
	// and returns the new count. The window is identified by bucket.
	Incr(ctx context.Context, key string, bucket int64, window time.Duration) (int, error)
}

// RateLimiter enforces fixed-window rate limits per endpoint class and
// caller. Counter store failures never block traffic; the limiter is a
// throttle, not a gate.
type RateLimiter struct {
	store   CounterStore
	limits  map[EndpointClass][]Limit
	logger  *logrus.Logger
	enabled atomic.Bool
	now     func() time.Time
}

// NewRateLimiter creates a limiter over the given counter store; nil
// limits means the built-in policy.
func NewRateLimiter(store CounterStore, limits map[EndpointClass][]Limit, logger *logrus.Logger) *RateLimiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	l := &RateLimiter{
		store:  store,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
	l.enabled.Store(true)
	return l
}

// SetEnabled toggles enforcement; a disabled limiter allows everything.
// Safe to call while Allow is running.
func (l *RateLimiter) SetEnabled(enabled bool) {
	l.enabled.Store(enabled)
}

// Allow counts one request from caller against class and reports
// whether it fits every window of the class's policy. Unknown classes
// fall back to the default policy.
func (l *RateLimiter) Allow(ctx context.Context, class EndpointClass, caller string) bool {
	if !l.enabled.Load() || l.store == nil {
		return true
	}

	limits, ok := l.limits[class]
	if !ok {
		limits = l.limits[ClassDefault]
	}

	allowed := true
	for _, lim := range limits {
		bucket := l.now().Unix() / int64(lim.Window/time.Second)
		key := fmt.Sprintf("rl:%s:%s:%d", class, caller, lim.Window/time.Second)
		count, err := l.store.Incr(ctx, key, bucket, lim.Window)
		if err != nil {
			// best effort: a broken counter store must not take
			// the API down with it
			l.logger.WithError(err).WithField("class", class).Warn("rate limit counter unavailable")
			continue
		}
		if count > lim.Requests {
			allowed = false
		}
	}
	return allowed
}

// MemoryCounterStore is an in-memory CounterStore
type MemoryCounterStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

type memoryBucket struct {
	bucket int64
	count  int
}

// NewMemoryCounterStore creates an empty in-memory counter store
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{buckets: make(map[string]*memoryBucket)}
}

// Incr adds one to the counter for key within the current window
func (s *MemoryCounterStore) Incr(ctx context.Context, key string, bucket int64, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || b.bucket != bucket {
		b = &memoryBucket{bucket: bucket}
		s.buckets[key] = b
	}
	b.count++
	return b.count, nil
}
