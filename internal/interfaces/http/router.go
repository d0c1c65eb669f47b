// Package http wires the Gin engine, middleware chain, and administrative
// routes into a runnable HTTP server.
package http

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/apiguard/internal/config"
	"github.com/turtacn/apiguard/internal/interfaces/http/handlers"
	"github.com/turtacn/apiguard/internal/interfaces/http/middleware"
	"github.com/turtacn/apiguard/internal/protection"
	"github.com/turtacn/apiguard/pkg/logger"
)

// Router owns the Gin engine and the HTTP server lifecycle.
type Router struct {
	engine          *gin.Engine
	config          *config.Config
	logger          logger.Logger
	protectionSvc   *protection.Service
	securityHandler *handlers.SecurityHandler
	registry        *prometheus.Registry
	server          *http.Server
}

// NewRouter creates a router around the given protection service.
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	svc *protection.Service,
	registry *prometheus.Registry,
) *Router {
	return &Router{
		engine:          gin.New(),
		config:          cfg,
		logger:          log.WithComponent("http-router"),
		protectionSvc:   svc,
		securityHandler: handlers.NewSecurityHandler(svc, log),
		registry:        registry,
	}
}

// SetupRoutes installs the middleware chain and routes.
func (r *Router) SetupRoutes() {
	r.engine.Use(gin.Recovery())

	if r.config.Server.GlobalRPS > 0 {
		r.engine.Use(middleware.Throttle(r.config.Server.GlobalRPS, r.config.Server.GlobalBurst))
	}

	corsConfig := cors.Config{
		AllowOrigins:     r.config.Security.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Client-ID"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 1 && corsConfig.AllowOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	r.engine.Use(cors.New(corsConfig))

	// Operational endpoints bypass admission control.
	r.engine.GET("/healthz", handlers.Health)
	if r.registry != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))
	}
	pprof.Register(r.engine)

	admin := r.engine.Group("/admin/security")
	{
		admin.GET("/stats", r.securityHandler.GetStats)
		admin.GET("/violations", r.securityHandler.GetViolations)
		admin.POST("/block", r.securityHandler.Block)
		admin.POST("/unblock", r.securityHandler.Unblock)
	}

	// Everything below runs through the admission pipeline.
	guarded := r.engine.Group("/")
	guarded.Use(middleware.MaxRequestSize(r.config.Security.MaxRequestSize))
	guarded.Use(middleware.Admission(r.protectionSvc, r.logger))
	{
		guarded.Any("/api/*path", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

// Start runs the HTTP server until it is shut down.
func (r *Router) Start() error {
	r.SetupRoutes()

	port := r.config.Server.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, port)
	r.server = &http.Server{
		Addr:           addr,
		Handler:        r.engine,
		ReadTimeout:    time.Duration(r.config.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(r.config.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	r.logger.Info(context.Background(), "Starting HTTP server",
		logger.String("address", addr))

	go r.gracefulShutdown()

	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (r *Router) gracefulShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	r.logger.Info(context.Background(), "Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.server.Shutdown(ctx); err != nil {
		r.logger.Error(ctx, "Server forced to shutdown", err)
	}
}

// Stop shuts down the HTTP server.
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}

