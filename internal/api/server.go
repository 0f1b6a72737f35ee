package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"tradedash/internal/cache"
	"tradedash/internal/config"
	"tradedash/internal/dashdata"
	"tradedash/internal/database"
	"tradedash/internal/hierarchy"
	"tradedash/internal/monitoring"
	"tradedash/internal/security"
)

// Server is the HTTP front end of the dashboard
type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *logrus.Logger

	access  *security.AccessController
	tree    *hierarchy.Service
	data    *dashdata.Service
	metrics *monitoring.Metrics

	db    *database.DB
	redis *cache.RedisCounterStore
}

// Deps carries the wired services into the server. DB and Redis are
// optional and only feed the health endpoint.
type Deps struct {
	Access  *security.AccessController
	Tree    *hierarchy.Service
	Data    *dashdata.Service
	Metrics *monitoring.Metrics
	Logger  *logrus.Logger
	DB      *database.DB
	Redis   *cache.RedisCounterStore
}

// NewServer creates the API server and wires its routes
func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	server := &Server{
		config:  cfg,
		router:  gin.New(),
		logger:  logger,
		access:  deps.Access,
		tree:    deps.Tree,
		data:    deps.Data,
		metrics: deps.Metrics,
		db:      deps.DB,
		redis:   deps.Redis,
	}
	server.setupRoutes()
	return server
}

// Router exposes the configured engine, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(newIPThrottle(20, 40).middleware())
	if s.metrics != nil {
		s.router.Use(s.metrics.MetricsMiddleware())
	}

	if s.config.App.Env == "development" {
		s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if s.config.Monitoring.PrometheusEnabled {
		s.router.GET(s.config.Monitoring.PrometheusPath, gin.WrapH(monitoring.PrometheusHandler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", s.login)
			auth.POST("/admin/login", s.adminLogin)
			auth.POST("/logout", s.logout)
		}

		// browser surface, any authenticated actor
		session := v1.Group("")
		session.Use(s.sessionAuth())
		{
			session.GET("/dashboard", s.clientDashboard)
			session.POST("/auth/password", s.changePassword)
		}

		// management surface, admins only
		admin := v1.Group("/admin")
		admin.Use(s.sessionAuth(), s.adminOnly())
		{
			admin.GET("/hierarchy", s.getHierarchy)
			admin.POST("/admins", s.addAdmin)
			admin.DELETE("/admins/:username", s.removeAdmin)
			admin.POST("/traders", s.addTrader)
			admin.DELETE("/traders/:username", s.removeTrader)
			admin.POST("/clients", s.addClient)
			admin.DELETE("/clients/:id", s.removeClient)
			admin.POST("/clients/:id/move", s.moveClient)

			admin.POST("/keys", s.generateAPIKey)
			admin.GET("/keys", s.listAPIKeys)
			admin.DELETE("/keys/:prefix", s.revokeAPIKey)

			admin.GET("/audit", s.classLimit(security.ClassDefault), s.queryAudit)
		}

		// machine surface, trader API keys only
		push := v1.Group("/push")
		push.Use(s.apiKeyAuth(security.ClassDataPush))
		{
			push.POST("/account", s.pushSection(dashdata.SectionAccount))
			push.POST("/positions", s.pushSection(dashdata.SectionPositions))
			push.POST("/deals", s.pushSection(dashdata.SectionDeals))
			push.POST("/evaluations", s.pushSection(dashdata.SectionEvaluations))
			push.POST("/update", s.updateField)
		}
	}

	s.router.GET("/health", s.health)
}

func (s *Server) health(c *gin.Context) {
	dbHealth := "unavailable"
	if s.db != nil {
		dbHealth = "ok"
		if err := s.db.HealthCheck(c.Request.Context()); err != nil {
			dbHealth = "error"
		}
	}

	redisHealth := "unavailable"
	if s.redis != nil {
		redisHealth = "ok"
		if err := s.redis.HealthCheck(c.Request.Context()); err != nil {
			redisHealth = "error"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
		"services": gin.H{
			"database": dbHealth,
			"redis":    redisHealth,
		},
	})
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.WithError(err).Warn("error closing redis")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.WithError(err).Warn("error closing database")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
