package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisCounterStore implements security.CounterStore on Redis so rate
// limit windows are shared across replicas.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore connects to Redis and verifies it with a ping
func NewRedisCounterStore(cfg *Config, logger *logrus.Logger) (*RedisCounterStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("addr", cfg.Addr).Info("redis connection established")
	return &RedisCounterStore{client: client}, nil
}

// Incr adds one to the window counter and returns the new count. The
// key expires with the window, so idle counters clean themselves up.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, bucket int64, window time.Duration) (int, error) {
	redisKey := fmt.Sprintf("%s:%d", key, bucket)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return int(incr.Val()), nil
}

// HealthCheck pings Redis
func (s *RedisCounterStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *RedisCounterStore) Close() error {
	return s.client.Close()
}
