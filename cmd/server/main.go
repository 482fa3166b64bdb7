package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appsync "github.com/qbridge/backend/internal/application/sync"
	"github.com/qbridge/backend/internal/domain/mapping"
	"github.com/qbridge/backend/internal/infrastructure/config"
	"github.com/qbridge/backend/internal/infrastructure/logger"
	"github.com/qbridge/backend/internal/infrastructure/odoo"
	"github.com/qbridge/backend/internal/infrastructure/persistence"
	"github.com/qbridge/backend/internal/interfaces/http/handler"
	"github.com/qbridge/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting QBridge Sync Server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("pairing", cfg.Sync.Pairing))

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	// Initialize repositories
	checkpointStore := persistence.NewGormCheckpointStore(db.DB)
	mappingRepo := persistence.NewGormIdentityMappingRepository(db.DB)

	// Remote ERP client
	erpClient := odoo.NewClient(odoo.Config{
		URL:      cfg.ERP.URL,
		Database: cfg.ERP.Database,
		Username: cfg.ERP.Username,
		Password: cfg.ERP.Password,
		Timeout:  cfg.ERP.Timeout,
	}, log)
	if err := erpClient.Ping(context.Background()); err != nil {
		// sessions retry on their own; a cold ERP at boot is not fatal
		log.Warn("Remote ERP unreachable at startup", zap.Error(err))
	}

	// Session engine
	sessionStore := appsync.NewSessionStore()
	sessionService := appsync.NewSessionService(appsync.Config{
		User:        cfg.Sync.User,
		Password:    cfg.Sync.Password,
		Pairing:     cfg.Sync.Pairing,
		BatchSize:   cfg.Sync.BatchSize,
		RetryBudget: cfg.Sync.RetryBudget,
		IdleTimeout: cfg.Sync.IdleTimeout,
		NameFilter:  cfg.Sync.NameFilter,
		WireVersion: cfg.Sync.WireVersion,
	}, sessionStore, checkpointStore, mappingRepo, erpClient, mapping.DefaultTable(), log)

	// Background sweep so a crashed client never wedges the pairing
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sessionService.SweepIdleSessions()
			case <-sweepDone:
				return
			}
		}
	}()
	defer close(sweepDone)

	// HTTP surface
	engine, err := router.New(cfg, log, router.Handlers{
		Soap:   handler.NewSoapHandler(sessionService),
		System: handler.NewSystemHandler(db, erpClient),
		Admin:  handler.NewAdminHandler(cfg.Sync.Pairing, checkpointStore, mappingRepo, sessionService, erpClient),
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
