package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/pesio-ai/be-dms-workflow/internal/client"
	"github.com/pesio-ai/be-dms-workflow/internal/config"
	"github.com/pesio-ai/be-dms-workflow/internal/handler"
	"github.com/pesio-ai/be-dms-workflow/internal/platform/database"
	"github.com/pesio-ai/be-dms-workflow/internal/platform/logger"
	natsclient "github.com/pesio-ai/be-dms-workflow/internal/platform/nats"
	"github.com/pesio-ai/be-dms-workflow/internal/repository"
	"github.com/pesio-ai/be-dms-workflow/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting DMS Workflow Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		LockTimeout: cfg.Database.LockTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize NATS; the service runs without notifications when the
	// broker is down, it never refuses to start.
	var natsConn *natsclient.Client
	natsConn, err = natsclient.Connect(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          cfg.Service.Name,
		ConnectWait:   cfg.NATS.ConnectWait,
		MaxReconnects: cfg.NATS.MaxReconnects,
	})
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable; workflow notifications disabled")
		natsConn = nil
	} else {
		defer natsConn.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}

	// Initialize repositories
	auditRepo := repository.NewAuditRepository(db)
	reassignmentRepo := repository.NewReassignmentRepository(db)
	entityRepo := repository.NewEntityRepository(db, auditRepo, reassignmentRepo)

	// Initialize clients
	identityClient := client.NewIdentityHTTPClient(cfg.Identity.BaseURL, cfg.Identity.Timeout)
	notifications := client.NewNotificationPublisher(natsConn, log.Logger)

	// Initialize services
	workflowService := service.NewWorkflowService(
		entityRepo,
		auditRepo,
		reassignmentRepo,
		identityClient,
		notifications,
		log,
	)

	// Setup HTTP routes
	if cfg.Service.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	httpHandler := handler.NewHTTPHandler(workflowService, log)
	httpHandler.Register(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
