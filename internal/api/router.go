package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/adamscao/licenseserver/internal/api/handlers"
	"github.com/adamscao/licenseserver/internal/api/middleware"
	"github.com/adamscao/licenseserver/internal/config"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/metrics"
	"github.com/adamscao/licenseserver/internal/policy"
	"github.com/adamscao/licenseserver/internal/service"
)

// Dependencies are the components the API serves
type Dependencies struct {
	Service     *service.Service
	Keys        handlers.PublicKeySource
	DB          handlers.Pinger
	Users       *repository.UserRepository
	Products    *repository.ProductRepository
	Licenses    *repository.LicenseRepository
	LicenseLogs *repository.LicenseLogRepository
	Audit       *repository.AuditRepository
	Validator   *policy.Validator
	Metrics     *metrics.Metrics
	Version     string
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
	http   *http.Server
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics(deps.Metrics))

	// Create handlers
	keyHandler := handlers.NewKeyHandler(deps.Keys)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Version)
	licenseHandler := handlers.NewLicenseHandler(cfg, deps.Service, deps.Users, deps.Products, deps.Audit, deps.Validator, deps.Metrics)
	adminHandler := handlers.NewAdminHandler(deps.Service, deps.Users, deps.Products, deps.Licenses, deps.LicenseLogs, deps.Audit, deps.Validator, deps.Metrics)

	// API v1 routes
	v1 := router.Group("/api/v1")
	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	deps.Metrics.TrackRateLimitClients(limiter.Clients)
	v1.Use(middleware.RateLimit(limiter, deps.Metrics))
	{
		// Public endpoints
		keys := v1.Group("/keys")
		{
			keys.GET("/public", keyHandler.GetPublicKey)
		}

		// License endpoints
		licenses := v1.Group("/licenses")
		{
			licenses.POST("", licenseHandler.GenerateLicense)
			licenses.POST("/verify", licenseHandler.VerifyLicense)
			licenses.GET("/:key", licenseHandler.GetLicenseInfo)
		}

		// Admin endpoints (require admin token)
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(cfg.Admin.Token))
		{
			admin.POST("/users", adminHandler.CreateUser)
			admin.GET("/users", adminHandler.ListUsers)
			admin.POST("/products", adminHandler.CreateProduct)
			admin.GET("/products", adminHandler.ListProducts)
			admin.GET("/licenses", adminHandler.ListLicenses)
			admin.POST("/licenses/:key/revoke", adminHandler.RevokeLicense)
			admin.POST("/licenses/:key/renew", adminHandler.RenewLicense)
			admin.GET("/licenses/:key/logs", adminHandler.GetLicenseLogs)
			admin.GET("/audit", adminHandler.ListAuditLogs)
		}
	}

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	return &Server{
		router: router,
		config: cfg,
		http: &http.Server{
			Addr:         cfg.Server.ListenAddr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.http.Addr).Info("HTTP server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
