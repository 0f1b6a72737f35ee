package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DB wraps the sql connection pool
type DB struct {
	*sql.DB
	config *Config
	logger *logrus.Logger
	stats  *PoolStats
	mu     sync.RWMutex
}

// Config holds database connection settings
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpen         int
	MaxIdle         int
	Timeout         time.Duration
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PoolStats is a snapshot of connection pool statistics
type PoolStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	LastUpdated        time.Time
}

// NewConnection opens a pooled connection and verifies it with a ping
func NewConnection(cfg *Config, logger *logrus.Logger) (*DB, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = 25
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = time.Hour
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = 15 * time.Minute
	}

	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	var pingErr error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			break
		}
		logger.WithError(pingErr).Warnf("database ping attempt %d/%d failed", i+1, maxRetries)
		if i < maxRetries-1 {
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	if pingErr != nil {
		return nil, fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, pingErr)
	}

	logger.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"database": cfg.DBName,
		"max_open": cfg.MaxOpen,
		"max_idle": cfg.MaxIdle,
	}).Info("database connection established")

	database := &DB{
		DB:     db,
		config: cfg,
		logger: logger,
		stats:  &PoolStats{},
	}

	go database.monitorPoolStats()

	return database, nil
}

// Close closes the pool
func (db *DB) Close() error {
	return db.DB.Close()
}

// HealthCheck pings the database
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// GetPoolStats returns a copy of the latest pool statistics
func (db *DB) GetPoolStats() *PoolStats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stats := *db.stats
	return &stats
}

func (db *DB) monitorPoolStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := db.DB.Stats()

		db.mu.Lock()
		db.stats.MaxOpenConnections = stats.MaxOpenConnections
		db.stats.OpenConnections = stats.OpenConnections
		db.stats.InUse = stats.InUse
		db.stats.Idle = stats.Idle
		db.stats.WaitCount = stats.WaitCount
		db.stats.WaitDuration = stats.WaitDuration
		db.stats.LastUpdated = time.Now()
		db.mu.Unlock()

		if stats.WaitCount > 0 {
			db.logger.WithFields(logrus.Fields{
				"wait_count":    stats.WaitCount,
				"wait_duration": stats.WaitDuration,
				"in_use":        stats.InUse,
				"idle":          stats.Idle,
			}).Warn("database connection pool under pressure")
		}
	}
}

// WithTx runs fn inside a transaction, rolling back on error
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
