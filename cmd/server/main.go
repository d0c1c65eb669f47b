package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/turtacn/apiguard/internal/alert"
	"github.com/turtacn/apiguard/internal/config"
	httpiface "github.com/turtacn/apiguard/internal/interfaces/http"
	"github.com/turtacn/apiguard/internal/monitoring"
	"github.com/turtacn/apiguard/internal/protection"
)

func main() {
	// Logger for startup
	startupLogger, _ := monitoring.NewZapLogger(&config.LogConfig{Level: "info"})

	// Load config
	cfg, err := config.LoadConfig(startupLogger)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx := context.Background()

	// Initialize tracing
	shutdownTracer, err := monitoring.InitTracer(&cfg.Tracing, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize tracer", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "Failed to shut down tracer", err)
		}
	}()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	// Initialize the protection service
	opts := []protection.Option{
		protection.WithMetrics(metrics),
	}
	if cfg.Alerting.Enabled {
		alerter := alert.NewKafkaAlerter(&cfg.Alerting, appLogger)
		defer func() {
			if err := alerter.Close(); err != nil {
				appLogger.Error(ctx, "Failed to close Kafka alerter", err)
			}
		}()
		opts = append(opts, protection.WithAlerter(alerter))
	}

	svc := protection.NewService(&cfg.Security, &cfg.RateLimit, appLogger, opts...)
	defer svc.Close()

	// Start the HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := httpiface.NewRouter(cfg, appLogger, svc, registry)
	if err := router.Start(); err != nil {
		appLogger.Fatal(ctx, "HTTP server failed", err)
	}
}
