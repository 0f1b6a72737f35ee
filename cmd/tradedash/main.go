package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"tradedash/internal/api"
	"tradedash/internal/cache"
	"tradedash/internal/config"
	"tradedash/internal/dashdata"
	"tradedash/internal/database"
	"tradedash/internal/hierarchy"
	"tradedash/internal/logger"
	"tradedash/internal/monitoring"
	"tradedash/internal/security"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	migrationsPath := flag.String("migrations", "migrations", "path to migration files")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Filename:   cfg.Logging.Filename,
		MaxSize:    cfg.Logging.MaxSize,
		MaxAge:     cfg.Logging.MaxAge,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})

	log.WithFields(logrus.Fields{
		"name":    cfg.App.Name,
		"version": cfg.App.Version,
		"env":     cfg.App.Env,
	}).Info("starting tradedash")

	db, err := database.NewConnection(&database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxOpen:  cfg.Database.MaxOpen,
		MaxIdle:  cfg.Database.MaxIdle,
		Timeout:  cfg.Database.Timeout,
	}, log)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	migrator, err := database.NewMigrator(db, *migrationsPath)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	log.Info("database migrations applied")

	// shared windows when Redis is available, per-process otherwise
	var counter security.CounterStore
	var redisStore *cache.RedisCounterStore
	if cfg.Redis.Enabled {
		redisStore, err = cache.NewRedisCounterStore(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, log)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, rate limits fall back to process memory")
		} else {
			counter = redisStore
		}
	}
	if counter == nil {
		counter = security.NewMemoryCounterStore()
	}

	limits := security.DefaultLimits()
	for name, r := range cfg.RateLimit.Classes {
		limits[security.EndpointClass(name)] = []security.Limit{{Requests: r.Requests, Window: r.Window}}
	}
	limiter := security.NewRateLimiter(counter, limits, log)
	limiter.SetEnabled(cfg.RateLimit.Enabled)

	metrics := monitoring.NewMetrics()
	hasher := security.NewHasher(cfg.Auth.HashIterations)
	vault := security.NewKeyVault(database.NewAPIKeyStore(db), log)
	sessions := security.NewSessionManager(database.NewSessionStore(db), cfg.Auth.SessionTTL)
	audit := security.NewAuditLog(database.NewAuditStore(db), log)
	lockout := security.NewLockoutGuard(cfg.Auth.LockoutLimit, cfg.Auth.LockoutDuration)

	access, err := security.NewAccessController(
		hasher, database.NewCredentialStore(db), vault, sessions, lockout, limiter, audit, metrics, log)
	if err != nil {
		log.Fatalf("failed to create access controller: %v", err)
	}

	tree := hierarchy.NewService(database.NewHierarchyStore(db), access, log)
	data := dashdata.NewService(database.NewDashDataStore(db), tree, audit)

	if err := bootstrapAdmin(cfg, tree, log); err != nil {
		log.Fatalf("failed to bootstrap admin: %v", err)
	}

	sched := startScheduler(cfg, sessions, audit, log)
	defer sched.Stop()

	server := api.NewServer(cfg, api.Deps{
		Access:  access,
		Tree:    tree,
		Data:    data,
		Metrics: metrics,
		Logger:  log,
		DB:      db,
		Redis:   redisStore,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("server exited")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
}

// bootstrapAdmin ensures the configured first admin exists so a fresh
// install has a way in. The password comes from the environment, never
// from the config file.
func bootstrapAdmin(cfg *config.Config, tree *hierarchy.Service, log *logrus.Logger) error {
	username := cfg.Auth.BootstrapAdmin
	if username == "" {
		return nil
	}
	password := os.Getenv("TRADEDASH_BOOTSTRAP_ADMIN_PASSWORD")
	if password == "" {
		log.Warn("bootstrap admin configured but TRADEDASH_BOOTSTRAP_ADMIN_PASSWORD not set, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admins, err := tree.ListAdmins(ctx)
	if err != nil {
		return err
	}
	for _, a := range admins {
		if a.Username == username {
			return nil
		}
	}

	if _, err := tree.AddAdmin(ctx, "system", username, "", password, ""); err != nil {
		return err
	}
	log.WithField("username", username).Info("bootstrap admin created")
	return nil
}

// startScheduler runs the periodic session sweep and audit retention
func startScheduler(cfg *config.Config, sessions *security.SessionManager, audit *security.AuditLog, log *logrus.Logger) *cron.Cron {
	sched := cron.New()

	if _, err := sched.AddFunc("@every 1h", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := sessions.Sweep(ctx)
		if err != nil {
			log.WithError(err).Error("session sweep failed")
			return
		}
		if n > 0 {
			log.WithField("removed", n).Info("expired sessions swept")
		}
	}); err != nil {
		log.WithError(err).Error("failed to schedule session sweep")
	}

	retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
	if _, err := sched.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, err := audit.Prune(ctx, retention)
		if err != nil {
			log.WithError(err).Error("audit retention prune failed")
			return
		}
		if n > 0 {
			log.WithField("removed", n).Info("audit entries pruned")
		}
	}); err != nil {
		log.WithError(err).Error("failed to schedule audit retention")
	}

	sched.Start()
	return sched
}
